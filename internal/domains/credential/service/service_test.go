package service_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"roomkey/config"
	"roomkey/infras/database"
	"roomkey/infras/lockgateway"
	gatewayMocks "roomkey/infras/lockgateway/mocks"
	"roomkey/infras/otel/mocks"
	"roomkey/infras/queue"
	queueMocks "roomkey/infras/queue/mocks"
	"roomkey/infras/sqlite/sqlitetest"
	bookingModel "roomkey/internal/domains/booking/model"
	bookingRepo "roomkey/internal/domains/booking/repository"
	"roomkey/internal/domains/credential/model"
	"roomkey/internal/domains/credential/passcode"
	"roomkey/internal/domains/credential/repository"
	"roomkey/internal/domains/credential/service"
	roomModel "roomkey/internal/domains/room/model"
	roomRepo "roomkey/internal/domains/room/repository"
	eventMocks "roomkey/internal/events/mocks"
	"roomkey/shared"
	cacheMocks "roomkey/shared/cache/mocks"
	gDto "roomkey/shared/dto"
	gModel "roomkey/shared/model"
	"roomkey/shared/slot"
	"roomkey/shared/timezone"
)

const (
	frontLock    = "lock-front"
	interiorLock = "lock-interior"
)

type fixture struct {
	conn     *database.Connection
	gateway  *gatewayMocks.MockGateway
	queue    *queueMocks.MockClient
	manager  service.Manager
	bookings bookingRepo.Booking
	rooms    roomRepo.Room
	creds    repository.Credential
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	conn := sqlitetest.NewConnection(t)
	otl := mocks.NewOtel()
	ctrl := gomock.NewController(t)

	gateway := gatewayMocks.NewMockGateway(ctrl)
	queueClient := queueMocks.NewMockClient(ctrl)

	publisher := eventMocks.NewMockPublisher(ctrl)
	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).AnyTimes()

	mockCache := cacheMocks.NewMockRedisCache(ctrl)
	mockCache.EXPECT().Delete(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	mockCache.EXPECT().Clear(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	cfg := &config.Config{}
	cfg.Lock.RetryDelayMinutes = 15
	cfg.Lock.RetryMaxAttempts = 5
	cfg.Lock.LowBatteryThreshold = 20

	f := fixture{
		conn:     conn,
		gateway:  gateway,
		queue:    queueClient,
		bookings: bookingRepo.New(conn, otl),
		rooms:    roomRepo.New(conn, otl),
		creds:    repository.New(conn, otl),
	}

	f.manager = service.New(f.creds, f.bookings, f.rooms, conn, gateway, queueClient, publisher, cfg, mockCache, otl)

	return f
}

// room attaches the given locks to Studio A and returns it.
func (f fixture) room(t *testing.T, front, interior string) roomModel.Room {
	t.Helper()

	ctx := context.Background()
	filter := shared.FilterByID(sqlitetest.StudioA, roomModel.FieldID, roomModel.TableName)

	require.NoError(t, f.rooms.Update(ctx, map[string]any{
		roomModel.FieldFrontLockID:    sql.NullString{String: front, Valid: front != ""},
		roomModel.FieldInteriorLockID: sql.NullString{String: interior, Valid: interior != ""},
	}, filter))

	room, err := f.rooms.Get(ctx, filter)
	require.NoError(t, err)

	return room
}

func (f fixture) booking(t *testing.T, daysAhead int) bookingModel.Booking {
	t.Helper()

	now := timezone.Now()
	booking := bookingModel.Booking{
		ID:               uuid.NewString(),
		RoomID:           sqlitetest.StudioA,
		UserID:           "user-1",
		BookingDate:      slot.Day(now.AddDate(0, 0, daysAhead), timezone.GetLocation()),
		StartHour:        10,
		EndHour:          12,
		Status:           bookingModel.StatusConfirmed,
		TotalPrice:       1400,
		CredentialStatus: bookingModel.CredentialNone,
		Metadata:         gModel.Metadata{CreatedAt: now, ModifiedAt: now, CreatedBy: "user-1", ModifiedBy: "user-1"},
	}

	require.NoError(t, f.conn.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		return f.bookings.InsertTx(context.Background(), tx, booking)
	}))

	return booking
}

func (f fixture) reload(t *testing.T, id string) bookingModel.Booking {
	t.Helper()

	booking, err := f.bookings.Get(context.Background(), shared.FilterByID(id, bookingModel.FieldID, bookingModel.TableName))
	require.NoError(t, err)

	return booking
}

func (f fixture) rows(t *testing.T, bookingID string) map[string]model.BookingCredential {
	t.Helper()

	rows, err := f.creds.GetAll(context.Background(), gDto.QueryParams{}, repository.ByBooking(bookingID))
	require.NoError(t, err)

	byLock := map[string]model.BookingCredential{}
	for _, row := range rows {
		byLock[row.LockID] = row
	}

	return byLock
}

func TestManager_Provision(t *testing.T) {
	t.Run("every lock accepts the same code", func(t *testing.T) {
		f := newFixture(t)
		room := f.room(t, frontLock, interiorLock)
		booking := f.booking(t, 3)

		var (
			mu    sync.Mutex
			codes []string
		)

		f.gateway.EXPECT().Configured().Return(true).AnyTimes()
		f.gateway.EXPECT().CreatePasscode(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req lockgateway.PasscodeRequest) (string, error) {
				from, until := booking.Window(timezone.GetLocation())
				assert.True(t, from.Equal(req.ValidFrom))
				assert.True(t, until.Equal(req.ValidUntil))

				mu.Lock()
				codes = append(codes, req.Code)
				mu.Unlock()

				return "cred-" + req.LockID, nil
			}).Times(2)

		out, err := f.manager.Provision(context.Background(), booking, room)

		require.NoError(t, err)
		assert.True(t, out.Enabled)
		assert.False(t, out.Degraded())
		assert.True(t, passcode.Valid(out.Passcode))
		require.Len(t, codes, 2)
		assert.Equal(t, codes[0], codes[1])
		assert.Equal(t, out.Passcode, codes[0])

		rows := f.rows(t, booking.ID)
		assert.Equal(t, "cred-"+frontLock, rows[frontLock].CredentialID.String)
		assert.Equal(t, model.StatusProvisioned, rows[interiorLock].Status)

		stored := f.reload(t, booking.ID)
		assert.True(t, stored.CredentialEnabled)
		assert.Equal(t, bookingModel.CredentialProvisioned, stored.CredentialStatus)
		assert.Equal(t, out.Passcode, stored.Passcode.String)
	})

	t.Run("interior failure does not block the front door", func(t *testing.T) {
		f := newFixture(t)
		room := f.room(t, frontLock, interiorLock)
		booking := f.booking(t, 3)

		f.gateway.EXPECT().Configured().Return(true).AnyTimes()
		f.gateway.EXPECT().CreatePasscode(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req lockgateway.PasscodeRequest) (string, error) {
				if req.LockID == interiorLock {
					return "", lockgateway.ErrTransient
				}

				return "cred-front", nil
			}).Times(2)
		f.queue.EXPECT().Enqueue(gomock.Any(), queue.TypeCredentialResync, gomock.Any(), gomock.Any()).Return(nil)

		out, err := f.manager.Provision(context.Background(), booking, room)

		require.NoError(t, err)
		assert.True(t, out.Enabled)
		assert.True(t, out.Degraded())
		assert.Equal(t, 1, out.Failed())

		rows := f.rows(t, booking.ID)
		assert.Equal(t, model.StatusProvisioned, rows[frontLock].Status)
		assert.Equal(t, model.StatusFailed, rows[interiorLock].Status)
		assert.False(t, rows[interiorLock].CredentialID.Valid)
		assert.Equal(t, lockgateway.ErrTransient.Error(), rows[interiorLock].LastError.String)

		assert.True(t, f.reload(t, booking.ID).CredentialEnabled)
	})

	t.Run("gateway down falls back to a derived code", func(t *testing.T) {
		f := newFixture(t)
		room := f.room(t, frontLock, interiorLock)
		booking := f.booking(t, 3)

		f.gateway.EXPECT().Configured().Return(true).AnyTimes()
		f.gateway.EXPECT().CreatePasscode(gomock.Any(), gomock.Any()).Return("", errors.New("timeout")).Times(2)
		f.queue.EXPECT().Enqueue(gomock.Any(), queue.TypeCredentialResync, gomock.Any(), gomock.Any()).Return(queue.ErrDisabled)

		out, err := f.manager.Provision(context.Background(), booking, room)

		require.NoError(t, err)
		assert.False(t, out.Enabled)
		assert.Equal(t, passcode.Fallback(booking.ID), out.Passcode)

		stored := f.reload(t, booking.ID)
		assert.False(t, stored.CredentialEnabled)
		assert.Equal(t, bookingModel.CredentialPending, stored.CredentialStatus)
		assert.Equal(t, passcode.Fallback(booking.ID), stored.Passcode.String)
	})

	t.Run("unconfigured gateway is never called", func(t *testing.T) {
		f := newFixture(t)
		room := f.room(t, frontLock, "")
		booking := f.booking(t, 3)

		f.gateway.EXPECT().Configured().Return(false).AnyTimes()

		out, err := f.manager.Provision(context.Background(), booking, room)

		require.NoError(t, err)
		assert.False(t, out.Enabled)
		assert.False(t, out.Retryable)
		assert.Equal(t, passcode.Fallback(booking.ID), out.Passcode)
		assert.Equal(t, model.StatusFailed, f.rows(t, booking.ID)[frontLock].Status)
	})

	t.Run("room without locks", func(t *testing.T) {
		f := newFixture(t)
		room := f.room(t, "", "")
		booking := f.booking(t, 3)

		f.gateway.EXPECT().Configured().Return(true).AnyTimes()

		out, err := f.manager.Provision(context.Background(), booking, room)

		require.NoError(t, err)
		assert.False(t, out.Enabled)
		assert.False(t, out.Retryable)
		assert.Empty(t, f.rows(t, booking.ID))
	})
}

func provisionBoth(t *testing.T, f fixture) (roomModel.Room, bookingModel.Booking) {
	t.Helper()

	room := f.room(t, frontLock, interiorLock)
	booking := f.booking(t, 3)

	f.gateway.EXPECT().Configured().Return(true).AnyTimes()
	f.gateway.EXPECT().CreatePasscode(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req lockgateway.PasscodeRequest) (string, error) {
			return "cred-" + req.LockID, nil
		}).Times(2)

	_, err := f.manager.Provision(context.Background(), booking, room)
	require.NoError(t, err)

	return room, f.reload(t, booking.ID)
}

func TestManager_Revoke(t *testing.T) {
	f := newFixture(t)
	_, booking := provisionBoth(t, f)

	f.gateway.EXPECT().DeletePasscode(gomock.Any(), frontLock, "cred-"+frontLock).
		Return(fmt.Errorf("passcode gone: %w", lockgateway.ErrNotFound))
	f.gateway.EXPECT().DeletePasscode(gomock.Any(), interiorLock, "cred-"+interiorLock).Return(lockgateway.ErrTransient)

	res, err := f.manager.Revoke(context.Background(), booking)

	require.NoError(t, err)
	assert.Equal(t, 1, res.Revoked)
	assert.Equal(t, 1, res.Remaining)

	rows := f.rows(t, booking.ID)
	assert.Equal(t, model.StatusRevoked, rows[frontLock].Status)
	assert.Equal(t, model.StatusProvisioned, rows[interiorLock].Status)
	assert.Equal(t, lockgateway.ErrTransient.Error(), rows[interiorLock].LastError.String)
	assert.True(t, f.reload(t, booking.ID).CredentialEnabled)

	f.gateway.EXPECT().DeletePasscode(gomock.Any(), interiorLock, "cred-"+interiorLock).Return(nil)

	res, err = f.manager.Revoke(context.Background(), booking)

	require.NoError(t, err)
	assert.True(t, res.Complete())
	assert.Equal(t, 1, res.Revoked)

	stored := f.reload(t, booking.ID)
	assert.False(t, stored.CredentialEnabled)
	assert.Equal(t, bookingModel.CredentialRevoked, stored.CredentialStatus)
}

func TestManager_ExpireIsIdempotent(t *testing.T) {
	f := newFixture(t)
	_, booking := provisionBoth(t, f)

	f.gateway.EXPECT().DeletePasscode(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)

	first, err := f.manager.Expire(context.Background(), booking)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Revoked)

	afterFirst := f.rows(t, booking.ID)

	second, err := f.manager.Expire(context.Background(), booking)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Revoked)
	assert.True(t, second.Complete())

	assert.Equal(t, afterFirst, f.rows(t, booking.ID))

	stored := f.reload(t, booking.ID)
	assert.False(t, stored.CredentialEnabled)
	assert.Equal(t, bookingModel.CredentialExpired, stored.CredentialStatus)
}

func TestManager_Resync(t *testing.T) {
	t.Run("reuses the stored code", func(t *testing.T) {
		f := newFixture(t)
		_, booking := provisionBoth(t, f)

		f.gateway.EXPECT().DeletePasscode(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)
		f.gateway.EXPECT().CreatePasscode(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req lockgateway.PasscodeRequest) (string, error) {
				assert.Equal(t, booking.Passcode.String, req.Code)

				return "fresh-" + req.LockID, nil
			}).Times(2)

		out, err := f.manager.Resync(context.Background(), booking.ID)

		require.NoError(t, err)
		assert.True(t, out.Enabled)
		assert.Equal(t, booking.Passcode.String, out.Passcode)

		rows := f.rows(t, booking.ID)
		assert.Len(t, rows, 2)
		assert.Equal(t, "fresh-"+frontLock, rows[frontLock].CredentialID.String)
	})

	t.Run("keeps a lock whose old code could not be removed", func(t *testing.T) {
		f := newFixture(t)
		_, booking := provisionBoth(t, f)

		f.gateway.EXPECT().DeletePasscode(gomock.Any(), frontLock, gomock.Any()).Return(lockgateway.ErrTransient)
		f.gateway.EXPECT().DeletePasscode(gomock.Any(), interiorLock, gomock.Any()).Return(nil)
		f.gateway.EXPECT().CreatePasscode(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req lockgateway.PasscodeRequest) (string, error) {
				assert.Equal(t, interiorLock, req.LockID)

				return "fresh-" + req.LockID, nil
			})

		out, err := f.manager.Resync(context.Background(), booking.ID)

		require.NoError(t, err)
		assert.False(t, out.Degraded())

		rows := f.rows(t, booking.ID)
		assert.Equal(t, "cred-"+frontLock, rows[frontLock].CredentialID.String)
		assert.Equal(t, "fresh-"+interiorLock, rows[interiorLock].CredentialID.String)
	})

	t.Run("queues a retry when the fresh codes are rejected", func(t *testing.T) {
		f := newFixture(t)
		_, booking := provisionBoth(t, f)

		f.gateway.EXPECT().DeletePasscode(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)
		f.gateway.EXPECT().CreatePasscode(gomock.Any(), gomock.Any()).Return("", lockgateway.ErrTransient).Times(2)
		f.queue.EXPECT().Enqueue(gomock.Any(), queue.TypeCredentialResync, gomock.Any(), gomock.Any()).Return(nil)

		out, err := f.manager.Resync(context.Background(), booking.ID)

		require.NoError(t, err)
		assert.True(t, out.Degraded())

		stored := f.reload(t, booking.ID)
		assert.False(t, stored.CredentialEnabled)
		assert.Equal(t, bookingModel.CredentialPending, stored.CredentialStatus)
		assert.Equal(t, booking.Passcode.String, stored.Passcode.String)
	})

	t.Run("skips cancelled bookings", func(t *testing.T) {
		f := newFixture(t)
		booking := f.booking(t, 3)

		require.NoError(t, f.bookings.Update(context.Background(), map[string]any{bookingModel.FieldStatus: bookingModel.StatusCancelled},
			shared.FilterByID(booking.ID, bookingModel.FieldID, bookingModel.TableName)))

		out, err := f.manager.Resync(context.Background(), booking.ID)

		require.NoError(t, err)
		assert.True(t, out.Skipped)
	})

	t.Run("skips bookings that have ended", func(t *testing.T) {
		f := newFixture(t)
		booking := f.booking(t, -2)

		out, err := f.manager.Resync(context.Background(), booking.ID)

		require.NoError(t, err)
		assert.True(t, out.Skipped)
	})
}

func TestManager_HandleResyncTask(t *testing.T) {
	f := newFixture(t)
	room := f.room(t, frontLock, "")
	booking := f.booking(t, 3)

	f.gateway.EXPECT().Configured().Return(true).AnyTimes()
	f.gateway.EXPECT().CreatePasscode(gomock.Any(), gomock.Any()).Return("", lockgateway.ErrTransient).Times(2)
	f.queue.EXPECT().Enqueue(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	_, err := f.manager.Provision(context.Background(), booking, room)
	require.NoError(t, err)

	task := asynq.NewTask(queue.TypeCredentialResync, []byte(`{"booking_id":"`+booking.ID+`"}`))
	assert.Error(t, f.manager.HandleResyncTask(context.Background(), task))

	missing := asynq.NewTask(queue.TypeCredentialResync, []byte(`{"booking_id":"missing"}`))
	assert.ErrorIs(t, f.manager.HandleResyncTask(context.Background(), missing), asynq.SkipRetry)

	malformed := asynq.NewTask(queue.TypeCredentialResync, []byte(`{`))
	assert.ErrorIs(t, f.manager.HandleResyncTask(context.Background(), malformed), asynq.SkipRetry)
}

func TestManager_LockStatuses(t *testing.T) {
	f := newFixture(t)
	f.room(t, frontLock, interiorLock)

	f.gateway.EXPECT().Configured().Return(true)
	f.gateway.EXPECT().GetLockStatus(gomock.Any(), frontLock).Return(lockgateway.LockStatus{LockID: frontLock, Online: true, BatteryLevel: 80}, nil)
	f.gateway.EXPECT().GetLockStatus(gomock.Any(), interiorLock).Return(lockgateway.LockStatus{LockID: interiorLock, Online: true, BatteryLevel: 10}, nil)

	res, err := f.manager.LockStatuses(context.Background())

	require.NoError(t, err)
	require.Len(t, res, 2)

	health := map[string]bool{}
	for _, lock := range res {
		health[lock.LockID] = lock.Healthy
	}

	assert.Equal(t, map[string]bool{frontLock: true, interiorLock: false}, health)
}

func TestManager_AccessLog(t *testing.T) {
	f := newFixture(t)
	f.room(t, frontLock, interiorLock)

	from := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	f.gateway.EXPECT().Configured().Return(true)
	f.gateway.EXPECT().GetAccessLog(gomock.Any(), frontLock, from, to).Return([]lockgateway.AccessEvent{
		{RecordID: "2", LockID: frontLock, OccurredAt: from.Add(3 * time.Hour)},
	}, nil)
	f.gateway.EXPECT().GetAccessLog(gomock.Any(), interiorLock, from, to).Return([]lockgateway.AccessEvent{
		{RecordID: "1", LockID: interiorLock, OccurredAt: from.Add(time.Hour)},
	}, nil)

	res, err := f.manager.AccessLog(context.Background(), sqlitetest.StudioA, from, to)

	require.NoError(t, err)
	require.Len(t, res.Events, 2)
	assert.Equal(t, "1", res.Events[0].RecordID)
	assert.Equal(t, "2", res.Events[1].RecordID)
}
