package service_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"roomkey/config"
	"roomkey/infras/otel/mocks"
	"roomkey/infras/sqlite/sqlitetest"
	blockMocks "roomkey/internal/domains/block/mocks"
	"roomkey/internal/domains/block/model"
	"roomkey/internal/domains/block/model/dto"
	"roomkey/internal/domains/block/repository"
	"roomkey/internal/domains/block/service"
	roomRepo "roomkey/internal/domains/room/repository"
	cacheMocks "roomkey/shared/cache/mocks"
	"roomkey/shared/constant"
	gDto "roomkey/shared/dto"
	"roomkey/shared/failure"
	"roomkey/shared/slot"
)

type fixture struct {
	svc  service.Block
	repo repository.BlockedSlot
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	conn := sqlitetest.NewConnection(t)
	otl := mocks.NewOtel()

	ctrl := gomock.NewController(t)
	mockCache := cacheMocks.NewMockRedisCache(ctrl)
	mockCache.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("cache miss")).AnyTimes()
	mockCache.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	mockCache.EXPECT().Clear(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	cfg := &config.Config{}
	cfg.Cache.TTL = 60
	cfg.Block.MaxOccurrences = 10

	repo := repository.New(conn, otl)

	return fixture{
		svc:  service.New(repo, roomRepo.New(conn, otl), conn, cfg, mockCache, otl),
		repo: repo,
	}
}

func adminContext() context.Context {
	return context.WithValue(context.Background(), constant.ContextKeyUserID, "admin-1")
}

func weeklySeries() dto.CreateBlockRequest {
	return dto.CreateBlockRequest{
		RoomID:     sqlitetest.StudioA,
		Date:       "2025-01-06",
		StartTime:  "10:00",
		EndTime:    "11:00",
		Reason:     "maintenance",
		Recurring:  true,
		RecurUntil: "2025-01-27",
	}
}

func (f fixture) stored(t *testing.T) []model.BlockedSlot {
	t.Helper()

	blocks, err := f.repo.GetAll(context.Background(), gDto.QueryParams{SortBy: model.FieldBlockDate, SortDir: gDto.SortDirAsc}, gDto.FilterGroup{})
	require.NoError(t, err)

	return blocks
}

func TestBlockService_CreateRecurring(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Create(adminContext(), weeklySeries())
	require.NoError(t, err)
	require.Len(t, res, 4)

	blocks := f.stored(t)
	require.Len(t, blocks, 4)

	head := blocks[0]
	assert.Equal(t, "2025-01-06", slot.FormatDate(head.BlockDate))
	assert.False(t, head.ParentID.Valid)
	assert.True(t, head.Recurring)
	assert.Equal(t, "2025-01-27", slot.FormatDate(head.RecurUntil.Time))
	assert.Equal(t, model.RecurrenceHead{Until: head.RecurUntil.Time}, head.Variant())

	wantDates := []string{"2025-01-13", "2025-01-20", "2025-01-27"}
	for i, child := range blocks[1:] {
		assert.Equal(t, wantDates[i], slot.FormatDate(child.BlockDate))
		assert.Equal(t, head.ID, child.ParentID.String)
		assert.True(t, child.Recurring)
		assert.Equal(t, model.KindRecurrenceChild, child.Kind)
	}

	for _, block := range blocks {
		assert.Equal(t, 10, block.StartHour)
		assert.Equal(t, 11, block.EndHour)
		assert.Equal(t, "maintenance", block.Reason.String)
	}
}

func TestBlockService_CreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(req *dto.CreateBlockRequest)
		want   string
	}{
		{
			name:   "recurrence end before start",
			mutate: func(req *dto.CreateBlockRequest) { req.RecurUntil = "2025-01-06" },
			want:   "recur_until must be after date",
		},
		{
			name:   "series too long",
			mutate: func(req *dto.CreateBlockRequest) { req.RecurUntil = "2026-01-06" },
			want:   "series would create 53 blocks, the limit is 10",
		},
		{
			name:   "end before start",
			mutate: func(req *dto.CreateBlockRequest) { req.StartTime, req.EndTime = "12:00", "11:00" },
			want:   slot.ErrInvalidInterval.Error(),
		},
		{
			name:   "unknown room",
			mutate: func(req *dto.CreateBlockRequest) { req.RoomID = "00000000-0000-0000-0000-000000000000" },
			want:   "room does not exist",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			req := weeklySeries()
			tt.mutate(&req)

			_, err := f.svc.Create(adminContext(), req)

			assert.Equal(t, 400, failure.GetCode(err))
			assert.EqualError(t, err, tt.want)
			assert.Empty(t, f.stored(t))
		})
	}
}

func TestBlockService_Delete(t *testing.T) {
	t.Run("head removes the whole series", func(t *testing.T) {
		f := newFixture(t)

		res, err := f.svc.Create(adminContext(), weeklySeries())
		require.NoError(t, err)

		deleted, err := f.svc.Delete(adminContext(), res[0].ID)

		assert.NoError(t, err)
		assert.Equal(t, 4, deleted)
		assert.Empty(t, f.stored(t))
	})

	t.Run("child removes only itself", func(t *testing.T) {
		f := newFixture(t)

		res, err := f.svc.Create(adminContext(), weeklySeries())
		require.NoError(t, err)

		deleted, err := f.svc.Delete(adminContext(), res[2].ID)

		assert.NoError(t, err)
		assert.Equal(t, 1, deleted)

		remaining := f.stored(t)
		require.Len(t, remaining, 3)

		for _, block := range remaining {
			assert.NotEqual(t, res[2].ID, block.ID)
		}

		assert.Equal(t, res[0].ID, remaining[0].ID)
	})

	t.Run("standalone", func(t *testing.T) {
		f := newFixture(t)

		req := weeklySeries()
		req.Recurring = false

		res, err := f.svc.Create(adminContext(), req)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, model.LabelStandalone, res[0].Label)

		deleted, err := f.svc.Delete(adminContext(), res[0].ID)

		assert.NoError(t, err)
		assert.Equal(t, 1, deleted)
	})

	t.Run("unknown block", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Delete(adminContext(), "missing")

		assert.Equal(t, 404, failure.GetCode(err))
	})
}

func TestBlockService_OrphanedChildren(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Create(adminContext(), weeklySeries())
	require.NoError(t, err)

	// A head that disappears without its children, as after a partially applied cascade.
	require.NoError(t, f.repo.Delete(context.Background(), gDto.FilterGroup{
		Filters: []any{gDto.Filter{Field: model.FieldID, Value: res[0].ID, Operator: gDto.FilterOperatorEq}},
	}))

	list, err := f.svc.GetAll(adminContext(), gDto.QueryParams{Page: 1, Limit: 10, SortBy: model.FieldBlockDate, SortDir: gDto.SortDirAsc}, dto.ListBlocksRequest{RoomID: sqlitetest.StudioA})
	require.NoError(t, err)
	require.Len(t, list.Blocks, 3)

	for _, block := range list.Blocks {
		assert.Equal(t, model.LabelOrphaned, block.Label)
	}

	child, err := f.svc.Get(adminContext(), res[1].ID)
	assert.NoError(t, err)
	assert.Equal(t, model.LabelOrphaned, child.Label)

	deleted, err := f.svc.Delete(adminContext(), res[1].ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, deleted)
}

func TestBlockService_Update(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Create(adminContext(), weeklySeries())
	require.NoError(t, err)

	start, reason := "09:00", "deep clean"
	require.NoError(t, f.svc.Update(adminContext(), dto.UpdateBlockRequest{StartTime: &start, Reason: &reason}, res[1].ID))

	for _, block := range f.stored(t) {
		if block.ID == res[1].ID {
			assert.Equal(t, 9, block.StartHour)
			assert.Equal(t, "deep clean", block.Reason.String)

			continue
		}

		assert.Equal(t, 10, block.StartHour)
		assert.Equal(t, "maintenance", block.Reason.String)
	}

	late := "12:00"
	err = f.svc.Update(adminContext(), dto.UpdateBlockRequest{StartTime: &late}, res[1].ID)
	assert.Equal(t, 400, failure.GetCode(err))
}

func TestBlockService_StorageFailures(t *testing.T) {
	standalone := model.BlockedSlot{ID: "block-1", RoomID: sqlitetest.StudioA, StartHour: 10, EndHour: 11, Kind: model.KindStandalone}
	reason := "painting"
	storageErr := errors.New("database is locked")

	tests := []struct {
		name     string
		mock     func(repo *blockMocks.MockBlockedSlot)
		call     func(svc service.Block) error
		wantCode int
	}{
		{
			name: "get fails",
			mock: func(repo *blockMocks.MockBlockedSlot) {
				repo.EXPECT().Get(gomock.Any(), gomock.Any()).Return(model.BlockedSlot{}, storageErr)
			},
			call: func(svc service.Block) error {
				_, err := svc.Get(adminContext(), "block-1")

				return err
			},
			wantCode: http.StatusInternalServerError,
		},
		{
			name: "get finds nothing",
			mock: func(repo *blockMocks.MockBlockedSlot) {
				repo.EXPECT().Get(gomock.Any(), gomock.Any()).Return(model.BlockedSlot{}, nil)
			},
			call: func(svc service.Block) error {
				_, err := svc.Get(adminContext(), "block-1")

				return err
			},
			wantCode: http.StatusNotFound,
		},
		{
			name: "update fails",
			mock: func(repo *blockMocks.MockBlockedSlot) {
				repo.EXPECT().Get(gomock.Any(), gomock.Any()).Return(standalone, nil)
				repo.EXPECT().Update(gomock.Any(), gomock.Any(), gomock.Any()).Return(storageErr)
			},
			call: func(svc service.Block) error {
				return svc.Update(adminContext(), dto.UpdateBlockRequest{Reason: &reason}, "block-1")
			},
			wantCode: http.StatusInternalServerError,
		},
		{
			name: "delete fails",
			mock: func(repo *blockMocks.MockBlockedSlot) {
				repo.EXPECT().Get(gomock.Any(), gomock.Any()).Return(standalone, nil)
				repo.EXPECT().Delete(gomock.Any(), gomock.Any()).Return(storageErr)
			},
			call: func(svc service.Block) error {
				_, err := svc.Delete(adminContext(), "block-1")

				return err
			},
			wantCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			repo := blockMocks.NewMockBlockedSlot(ctrl)
			tt.mock(repo)

			cfg := &config.Config{}
			cfg.Cache.TTL = 60

			// No cache calls are expected: a failed write must not invalidate anything.
			svc := service.New(repo, nil, nil, cfg, cacheMocks.NewMockRedisCache(ctrl), mocks.NewOtel())

			err := tt.call(svc)

			require.Error(t, err)
			assert.Equal(t, tt.wantCode, failure.GetCode(err))

			if tt.wantCode == http.StatusInternalServerError {
				assert.ErrorIs(t, err, storageErr)
			}
		})
	}
}
