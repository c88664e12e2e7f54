package service_test

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"roomkey/config"
	"roomkey/infras/lockgateway"
	gatewayMocks "roomkey/infras/lockgateway/mocks"
	"roomkey/infras/otel/mocks"
	queueMocks "roomkey/infras/queue/mocks"
	"roomkey/infras/sqlite/sqlitetest"
	blockModel "roomkey/internal/domains/block/model"
	blockRepo "roomkey/internal/domains/block/repository"
	"roomkey/internal/domains/booking/model"
	"roomkey/internal/domains/booking/model/dto"
	"roomkey/internal/domains/booking/repository"
	"roomkey/internal/domains/booking/service"
	"roomkey/internal/domains/credential/passcode"
	credentialRepo "roomkey/internal/domains/credential/repository"
	credential "roomkey/internal/domains/credential/service"
	roomModel "roomkey/internal/domains/room/model"
	roomRepo "roomkey/internal/domains/room/repository"
	"roomkey/internal/events"
	eventMocks "roomkey/internal/events/mocks"
	"roomkey/shared"
	cacheMocks "roomkey/shared/cache/mocks"
	"roomkey/shared/constant"
	gDto "roomkey/shared/dto"
	"roomkey/shared/failure"
	gModel "roomkey/shared/model"
	"roomkey/shared/slot"
	"roomkey/shared/timezone"
)

type fixture struct {
	svc     service.Booking
	repo    repository.Booking
	blocks  blockRepo.BlockedSlot
	rooms   roomRepo.Room
	gateway *gatewayMocks.MockGateway
	queue   *queueMocks.MockClient
	insert  func(t *testing.T, blocks ...blockModel.BlockedSlot)
	// published counts the events of one type.
	published func(eventType string) int
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	conn := sqlitetest.NewConnection(t)
	otl := mocks.NewOtel()
	ctrl := gomock.NewController(t)

	mockCache := cacheMocks.NewMockRedisCache(ctrl)
	mockCache.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("cache miss")).AnyTimes()
	mockCache.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	mockCache.EXPECT().Delete(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	mockCache.EXPECT().Clear(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	var (
		eventsMu sync.Mutex
		seen     = map[string]int{}
	)

	publisher := eventMocks.NewMockPublisher(ctrl)
	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Do(func(_ context.Context, event events.Event) {
		eventsMu.Lock()
		defer eventsMu.Unlock()

		seen[event.Type]++
	}).AnyTimes()

	gateway := gatewayMocks.NewMockGateway(ctrl)
	gateway.EXPECT().Configured().Return(true).AnyTimes()

	queueClient := queueMocks.NewMockClient(ctrl)

	cfg := &config.Config{}
	cfg.Cache.TTL = 60
	cfg.Booking.OpenHour = 8
	cfg.Booking.CloseHour = 22
	cfg.Lock.ProvisionBudgetSeconds = 2
	cfg.Lock.RetryDelayMinutes = 15
	cfg.Lock.RetryMaxAttempts = 5

	repo := repository.New(conn, otl)
	rooms := roomRepo.New(conn, otl)
	blocks := blockRepo.New(conn, otl)

	manager := credential.New(credentialRepo.New(conn, otl), repo, rooms, conn, gateway, queueClient, publisher, cfg, mockCache, otl)

	return fixture{
		svc:     service.New(repo, rooms, blocks, manager, conn, publisher, cfg, mockCache, otl),
		repo:    repo,
		blocks:  blocks,
		rooms:   rooms,
		gateway: gateway,
		queue:   queueClient,
		published: func(eventType string) int {
			eventsMu.Lock()
			defer eventsMu.Unlock()

			return seen[eventType]
		},
		insert: func(t *testing.T, slots ...blockModel.BlockedSlot) {
			t.Helper()

			require.NoError(t, conn.WithTx(context.Background(), func(tx *sqlx.Tx) error {
				return blocks.InsertBulkTx(context.Background(), tx, slots)
			}))
		},
	}
}

func userContext(id string) context.Context {
	ctx := context.WithValue(context.Background(), constant.ContextKeyUserID, id)

	return context.WithValue(ctx, constant.ContextKeyUserRole, constant.RoleUser)
}

func adminContext() context.Context {
	ctx := context.WithValue(context.Background(), constant.ContextKeyUserID, "admin-1")

	return context.WithValue(ctx, constant.ContextKeyUserRole, constant.RoleAdmin)
}

func daysAhead(days int) string {
	return slot.FormatDate(slot.Day(timezone.Now().AddDate(0, 0, days), timezone.GetLocation()))
}

func request(room, date, start, end string) dto.CreateBookingRequest {
	return dto.CreateBookingRequest{RoomID: room, Date: date, StartTime: start, EndTime: end}
}

func block(room, date string, start, end int) blockModel.BlockedSlot {
	day, _ := slot.ParseDate(date)
	now := timezone.Now()

	return blockModel.BlockedSlot{
		ID:        uuid.NewString(),
		RoomID:    room,
		BlockDate: day,
		StartHour: start,
		EndHour:   end,
		Kind:      blockModel.KindStandalone,
		Metadata:  gModel.Metadata{CreatedAt: now, ModifiedAt: now, CreatedBy: "admin-1", ModifiedBy: "admin-1"},
	}
}

func TestBooking_ConcurrentCreatesOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	date := daysAhead(5)

	const attempts = 8

	requests := []dto.CreateBookingRequest{
		request(sqlitetest.StudioA, date, "10:00", "12:00"),
		request(sqlitetest.StudioA, date, "09:00", "11:00"),
		request(sqlitetest.StudioA, date, "10:00", "11:00"),
		request(sqlitetest.StudioA, date, "08:00", "13:00"),
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)

	for i := range attempts {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := f.svc.Create(userContext("user-1"), requests[i%len(requests)])

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, service.ErrSlotBooked):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, conflicts)

	day, _ := slot.ParseDate(date)
	confirmed, err := f.repo.GetAll(context.Background(), gDto.QueryParams{}, repository.ByRoomDay(sqlitetest.StudioA, day, model.StatusConfirmed))
	require.NoError(t, err)
	assert.Len(t, confirmed, 1)
}

func TestBooking_Create(t *testing.T) {
	date := daysAhead(5)

	tests := []struct {
		name    string
		setup   func(t *testing.T, f fixture)
		req     dto.CreateBookingRequest
		wantErr error
		price   int64
	}{
		{
			name:  "flat room",
			req:   request(sqlitetest.StudioB, date, "10:00", "12:00"),
			price: 1600,
		},
		{
			name:  "split rate across the evening boundary",
			req:   request(sqlitetest.StudioA, date, "15:00", "19:00"),
			price: 2*700 + 2*900,
		},
		{
			name:  "discount applies to the summed total",
			req:   request(sqlitetest.StudioA, date, "15:00", "20:00"),
			price: (2*700 + 3*900) * 90 / 100,
		},
		{
			name: "adjacent bookings do not overlap",
			setup: func(t *testing.T, f fixture) {
				_, err := f.svc.Create(userContext("user-2"), request(sqlitetest.StudioA, date, "10:00", "12:00"))
				require.NoError(t, err)
			},
			req:   request(sqlitetest.StudioA, date, "12:00", "13:00"),
			price: 700,
		},
		{
			name: "overlapping booking",
			setup: func(t *testing.T, f fixture) {
				_, err := f.svc.Create(userContext("user-2"), request(sqlitetest.StudioA, date, "10:00", "12:00"))
				require.NoError(t, err)
			},
			req:     request(sqlitetest.StudioA, date, "11:00", "12:00"),
			wantErr: service.ErrSlotBooked,
		},
		{
			name: "cancelled booking frees the slot",
			setup: func(t *testing.T, f fixture) {
				res, err := f.svc.Create(userContext("user-2"), request(sqlitetest.StudioA, date, "10:00", "12:00"))
				require.NoError(t, err)
				require.NoError(t, f.svc.Cancel(userContext("user-2"), res.ID))
			},
			req:   request(sqlitetest.StudioA, date, "10:00", "12:00"),
			price: 1400,
		},
		{
			name:    "blocked slot",
			setup:   func(t *testing.T, f fixture) { f.insert(t, block(sqlitetest.StudioA, date, 12, 14)) },
			req:     request(sqlitetest.StudioA, date, "11:00", "13:00"),
			wantErr: service.ErrSlotBlocked,
		},
		{
			name:  "block on another room",
			setup: func(t *testing.T, f fixture) { f.insert(t, block(sqlitetest.StudioB, date, 10, 14)) },
			req:   request(sqlitetest.StudioA, date, "11:00", "13:00"),
			price: 1400,
		},
		{
			name:  "block ending at the start",
			setup: func(t *testing.T, f fixture) { f.insert(t, block(sqlitetest.StudioA, date, 8, 11)) },
			req:   request(sqlitetest.StudioA, date, "11:00", "12:00"),
			price: 700,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(t, f)
			}

			res, err := f.svc.Create(userContext("user-1"), tt.req)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, http.StatusBadRequest, failure.GetCode(err))

				return
			}

			require.NoError(t, err)
			assert.Equal(t, model.StatusConfirmed, res.Status)
			assert.Equal(t, tt.price, res.TotalPrice)
			assert.Equal(t, "user-1", res.UserID)
			assert.Equal(t, tt.req.Date, res.Date)
		})
	}
}

func TestBooking_CreateValidation(t *testing.T) {
	f := newFixture(t)
	date := daysAhead(5)

	tests := []struct {
		name    string
		req     dto.CreateBookingRequest
		message string
	}{
		{
			name:    "half hour",
			req:     request(sqlitetest.StudioA, date, "10:30", "12:00"),
			message: `start time "10:30": ` + slot.ErrInvalidHour.Error(),
		},
		{
			name:    "end before start",
			req:     request(sqlitetest.StudioA, date, "12:00", "10:00"),
			message: slot.ErrInvalidInterval.Error(),
		},
		{
			name:    "outside business hours",
			req:     request(sqlitetest.StudioA, date, "06:00", "09:00"),
			message: slot.ErrOutsideHours.Error(),
		},
		{
			name:    "malformed date",
			req:     request(sqlitetest.StudioA, "05/01/2030", "10:00", "12:00"),
			message: slot.ErrInvalidDate.Error(),
		},
		{
			name:    "past date",
			req:     request(sqlitetest.StudioA, daysAhead(-1), "10:00", "12:00"),
			message: "booking must start in the future",
		},
		{
			name:    "unknown room",
			req:     request(uuid.NewString(), date, "10:00", "12:00"),
			message: "room does not exist",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(userContext("user-1"), tt.req)

			require.Error(t, err)
			assert.Equal(t, http.StatusBadRequest, failure.GetCode(err))
			assert.Equal(t, tt.message, err.Error())
		})
	}
}

func TestBooking_DegradedCredentialKeepsBooking(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.rooms.Update(context.Background(), map[string]any{
		roomModel.FieldFrontLockID:    sql.NullString{String: "lock-front", Valid: true},
		roomModel.FieldInteriorLockID: sql.NullString{String: "lock-interior", Valid: true},
	}, shared.FilterByID(sqlitetest.StudioA, roomModel.FieldID, roomModel.TableName)))

	f.gateway.EXPECT().CreatePasscode(gomock.Any(), gomock.Any()).Return("", lockgateway.ErrTransient).Times(2)
	f.queue.EXPECT().Enqueue(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	res, err := f.svc.Create(userContext("user-1"), request(sqlitetest.StudioA, daysAhead(5), "10:00", "12:00"))

	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, res.Status)
	assert.False(t, res.CredentialEnabled)
	assert.Equal(t, model.CredentialPending, res.CredentialStatus)
	assert.Equal(t, passcode.Fallback(res.ID), res.Passcode)

	stored, err := f.repo.Get(context.Background(), shared.FilterByID(res.ID, model.FieldID, model.TableName))
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, stored.Status)
	assert.Equal(t, res.Passcode, stored.Passcode.String)
}

func TestBooking_SlowGatewayDoesNotHoldTheResponse(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.rooms.Update(context.Background(), map[string]any{
		roomModel.FieldFrontLockID: sql.NullString{String: "lock-front", Valid: true},
	}, shared.FilterByID(sqlitetest.StudioA, roomModel.FieldID, roomModel.TableName)))

	f.gateway.EXPECT().CreatePasscode(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ lockgateway.PasscodeRequest) (string, error) {
			<-ctx.Done()

			return "", ctx.Err()
		})
	f.queue.EXPECT().Enqueue(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	started := time.Now()
	res, err := f.svc.Create(userContext("user-1"), request(sqlitetest.StudioA, daysAhead(5), "10:00", "12:00"))

	require.NoError(t, err)
	assert.Less(t, time.Since(started), 5*time.Second)
	assert.False(t, res.CredentialEnabled)
	assert.NotEmpty(t, res.Passcode)
}

func TestBooking_Cancel(t *testing.T) {
	date := daysAhead(5)

	tests := []struct {
		name     string
		ctx      context.Context
		twice    bool
		missing  bool
		wantCode int
	}{
		{name: "owner", ctx: userContext("user-1")},
		{name: "admin", ctx: adminContext()},
		{name: "someone else", ctx: userContext("user-2"), wantCode: http.StatusForbidden},
		{name: "already cancelled", ctx: userContext("user-1"), twice: true, wantCode: http.StatusBadRequest},
		{name: "unknown booking", ctx: userContext("user-1"), missing: true, wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			created, err := f.svc.Create(userContext("user-1"), request(sqlitetest.StudioA, date, "10:00", "12:00"))
			require.NoError(t, err)

			id := created.ID
			if tt.missing {
				id = uuid.NewString()
			}

			if tt.twice {
				require.NoError(t, f.svc.Cancel(tt.ctx, id))
			}

			err = f.svc.Cancel(tt.ctx, id)

			if tt.wantCode != 0 {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, failure.GetCode(err))

				return
			}

			require.NoError(t, err)

			stored, err := f.repo.Get(context.Background(), shared.FilterByID(id, model.FieldID, model.TableName))
			require.NoError(t, err)
			assert.Equal(t, model.StatusCancelled, stored.Status)
		})
	}
}

func TestBooking_ConcurrentCancelsOnlyOneWins(t *testing.T) {
	f := newFixture(t)

	created, err := f.svc.Create(userContext("user-1"), request(sqlitetest.StudioA, daysAhead(5), "10:00", "12:00"))
	require.NoError(t, err)

	const attempts = 6

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)

	for range attempts {
		wg.Add(1)

		go func() {
			defer wg.Done()

			err := f.svc.Cancel(userContext("user-1"), created.ID)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, service.ErrAlreadyCancelled):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, rejected)
	assert.Equal(t, 1, f.published(events.TypeBookingCancelled))
}

func TestBooking_CancelUserBookings(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.Create(userContext("user-1"), request(sqlitetest.StudioA, daysAhead(3), "10:00", "12:00"))
	require.NoError(t, err)

	second, err := f.svc.Create(userContext("user-1"), request(sqlitetest.StudioB, daysAhead(4), "14:00", "15:00"))
	require.NoError(t, err)

	other, err := f.svc.Create(userContext("user-2"), request(sqlitetest.StudioB, daysAhead(4), "10:00", "11:00"))
	require.NoError(t, err)

	res, err := f.svc.CancelUserBookings(adminContext(), "user-1")

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{first.ID, second.ID}, res.Cancelled)

	stored, err := f.repo.Get(context.Background(), shared.FilterByID(other.ID, model.FieldID, model.TableName))
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, stored.Status)
}

func TestBooking_Availability(t *testing.T) {
	f := newFixture(t)
	date := daysAhead(5)

	_, err := f.svc.Create(userContext("user-1"), request(sqlitetest.StudioA, date, "10:00", "12:00"))
	require.NoError(t, err)

	f.insert(t, block(sqlitetest.StudioA, date, 14, 15))

	res, err := f.svc.Availability(context.Background(), sqlitetest.StudioA, date)
	require.NoError(t, err)

	require.Len(t, res.Slots, 14)

	states := map[string]string{}
	for _, s := range res.Slots {
		states[s.StartTime] = s.State
	}

	assert.Equal(t, dto.SlotAvailable, states["09:00"])
	assert.Equal(t, dto.SlotBooked, states["10:00"])
	assert.Equal(t, dto.SlotBooked, states["11:00"])
	assert.Equal(t, dto.SlotAvailable, states["12:00"])
	assert.Equal(t, dto.SlotBlocked, states["14:00"])

	_, err = f.svc.Availability(context.Background(), uuid.NewString(), date)
	assert.Equal(t, http.StatusNotFound, failure.GetCode(err))
}

func TestBooking_GetHidesOtherUsersBookings(t *testing.T) {
	f := newFixture(t)

	created, err := f.svc.Create(userContext("user-1"), request(sqlitetest.StudioA, daysAhead(5), "10:00", "12:00"))
	require.NoError(t, err)

	res, err := f.svc.Get(userContext("user-1"), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, res.ID)

	_, err = f.svc.Get(adminContext(), created.ID)
	require.NoError(t, err)

	_, err = f.svc.Get(userContext("user-2"), created.ID)
	assert.Equal(t, http.StatusNotFound, failure.GetCode(err))
}

func TestBooking_GetAll(t *testing.T) {
	f := newFixture(t)

	for _, start := range []string{"10:00", "12:00", "14:00"} {
		end, _ := slot.ParseHour(start)
		_, err := f.svc.Create(userContext("user-1"), request(sqlitetest.StudioA, daysAhead(5), start, slot.FormatHour(end+1)))
		require.NoError(t, err)
	}

	_, err := f.svc.Create(userContext("user-2"), request(sqlitetest.StudioB, daysAhead(5), "10:00", "11:00"))
	require.NoError(t, err)

	res, err := f.svc.GetAll(context.Background(), gDto.QueryParams{Page: 1, Limit: 2}, dto.ListBookingsRequest{UserID: "user-1"})

	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalData)
	assert.Equal(t, 2, res.TotalPage)
	assert.Len(t, res.Bookings, 2)
}
