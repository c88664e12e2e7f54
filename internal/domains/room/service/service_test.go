package service_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"roomkey/config"
	"roomkey/infras/otel/mocks"
	roomMocks "roomkey/internal/domains/room/mocks"
	"roomkey/internal/domains/room/model"
	"roomkey/internal/domains/room/model/dto"
	"roomkey/internal/domains/room/service"
	cacheMocks "roomkey/shared/cache/mocks"
	"roomkey/shared/constant"
	gDto "roomkey/shared/dto"
	"roomkey/shared/failure"
)

func newService(t *testing.T) (service.Room, *roomMocks.MockRoom, *cacheMocks.MockRedisCache) {
	t.Helper()

	ctrl := gomock.NewController(t)
	mockRepo := roomMocks.NewMockRoom(ctrl)
	mockCache := cacheMocks.NewMockRedisCache(ctrl)

	cfg := &config.Config{}
	cfg.Cache.TTL = 3600

	return service.New(mockRepo, cfg, mockCache, mocks.NewOtel()), mockRepo, mockCache
}

func TestRoomService_Get(t *testing.T) {
	studio := model.Room{
		ID:           "room-1",
		Name:         "Studio A",
		PricingMode:  model.PricingSplit,
		DayRate:      700,
		EveningRate:  900,
		DayStartHour: 9,
		DayEndHour:   17,
		FrontLockID:  sql.NullString{String: "lock-front", Valid: true},
	}

	tests := []struct {
		name      string
		setupMock func(repo *roomMocks.MockRoom, cache *cacheMocks.MockRedisCache)
		wantErr   bool
		wantCode  int
		want      dto.RoomResponse
	}{
		{
			name: "cache hit",
			setupMock: func(_ *roomMocks.MockRoom, cache *cacheMocks.MockRedisCache) {
				cache.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
			},
		},
		{
			name: "loads from repository on cache miss",
			setupMock: func(repo *roomMocks.MockRoom, cache *cacheMocks.MockRedisCache) {
				cache.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("cache miss"))
				repo.EXPECT().Get(gomock.Any(), gomock.Any()).Return(studio, nil)
				cache.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
			},
			want: dto.RoomResponse{
				ID:          "room-1",
				Name:        "Studio A",
				PricingMode: model.PricingSplit,
				DayRate:     700,
				EveningRate: 900,
				DayStart:    "09:00",
				DayEnd:      "17:00",
				FrontLockID: "lock-front",
			},
		},
		{
			name: "not found",
			setupMock: func(repo *roomMocks.MockRoom, cache *cacheMocks.MockRedisCache) {
				cache.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("cache miss"))
				repo.EXPECT().Get(gomock.Any(), gomock.Any()).Return(model.Room{}, nil)
			},
			wantErr:  true,
			wantCode: 404,
		},
		{
			name: "repository error",
			setupMock: func(repo *roomMocks.MockRoom, cache *cacheMocks.MockRedisCache) {
				cache.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("cache miss"))
				repo.EXPECT().Get(gomock.Any(), gomock.Any()).Return(model.Room{}, errors.New("db down"))
			},
			wantErr:  true,
			wantCode: 500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, cache := newService(t)
			tt.setupMock(repo, cache)

			res, err := svc.Get(context.Background(), "room-1")

			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, tt.wantCode, failure.GetCode(err))

				return
			}

			assert.NoError(t, err)

			if tt.want.ID != "" {
				res.Metadata = gDto.Metadata{}
				assert.Equal(t, tt.want, res)
			}
		})
	}
}

func TestRoomService_GetAll(t *testing.T) {
	svc, repo, cache := newService(t)

	cache.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("cache miss")).Times(2)
	repo.EXPECT().Count(gomock.Any(), gomock.Any()).Return(3, nil)
	repo.EXPECT().GetAll(gomock.Any(), gomock.Any(), gomock.Any()).Return([]model.Room{
		{ID: "a", PricingMode: model.PricingFlat, HourlyRate: 800},
		{ID: "b", PricingMode: model.PricingFlat, HourlyRate: 800},
		{ID: "c", PricingMode: model.PricingFlat, HourlyRate: 800},
	}, nil)
	cache.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	res, err := svc.GetAll(context.Background(), gDto.QueryParams{Page: 1, Limit: 2}, gDto.FilterGroup{})

	assert.NoError(t, err)
	assert.Equal(t, 3, res.TotalData)
	assert.Equal(t, 2, res.TotalPage)
	assert.Len(t, res.Rooms, 3)
	assert.Empty(t, res.Rooms[0].DayStart)
}

func TestRoomService_UpdateLocks(t *testing.T) {
	front := "lock-front"
	empty := ""

	tests := []struct {
		name      string
		req       dto.UpdateLocksRequest
		setupMock func(repo *roomMocks.MockRoom, cache *cacheMocks.MockRedisCache)
		wantCode  int
	}{
		{
			name: "attaches front lock and detaches interior",
			req:  dto.UpdateLocksRequest{FrontLockID: &front, InteriorLockID: &empty},
			setupMock: func(repo *roomMocks.MockRoom, cache *cacheMocks.MockRedisCache) {
				repo.EXPECT().Exist(gomock.Any(), gomock.Any()).Return(true, nil)
				repo.EXPECT().Update(gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, fields map[string]any, _ gDto.FilterGroup) error {
						assert.Equal(t, sql.NullString{String: front, Valid: true}, fields[model.FieldFrontLockID])
						assert.Equal(t, sql.NullString{}, fields[model.FieldInteriorLockID])
						assert.Equal(t, "admin-1", fields[constant.FieldModifiedBy])

						return nil
					})
				cache.EXPECT().Delete(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
				cache.EXPECT().Clear(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
			},
		},
		{
			name: "unknown room",
			req:  dto.UpdateLocksRequest{FrontLockID: &front},
			setupMock: func(repo *roomMocks.MockRoom, _ *cacheMocks.MockRedisCache) {
				repo.EXPECT().Exist(gomock.Any(), gomock.Any()).Return(false, nil)
			},
			wantCode: 404,
		},
		{
			name: "empty request",
			req:  dto.UpdateLocksRequest{},
			setupMock: func(repo *roomMocks.MockRoom, _ *cacheMocks.MockRedisCache) {
				repo.EXPECT().Exist(gomock.Any(), gomock.Any()).Return(true, nil)
			},
			wantCode: 400,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, cache := newService(t)
			tt.setupMock(repo, cache)

			ctx := context.WithValue(context.Background(), constant.ContextKeyUserID, "admin-1")
			err := svc.UpdateLocks(ctx, tt.req, "room-1")

			if tt.wantCode == 0 {
				assert.NoError(t, err)

				return
			}

			assert.Equal(t, tt.wantCode, failure.GetCode(err))
		})
	}
}
