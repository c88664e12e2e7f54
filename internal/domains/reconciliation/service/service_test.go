package service_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"roomkey/config"
	"roomkey/infras/database"
	"roomkey/infras/lockgateway"
	gatewayMocks "roomkey/infras/lockgateway/mocks"
	"roomkey/infras/otel/mocks"
	queueMocks "roomkey/infras/queue/mocks"
	s3Mocks "roomkey/infras/s3/mocks"
	"roomkey/infras/sqlite/sqlitetest"
	blockModel "roomkey/internal/domains/block/model"
	blockRepo "roomkey/internal/domains/block/repository"
	bookingModel "roomkey/internal/domains/booking/model"
	bookingRepo "roomkey/internal/domains/booking/repository"
	credentialMocks "roomkey/internal/domains/credential/mocks"
	credentialModel "roomkey/internal/domains/credential/model"
	credentialDto "roomkey/internal/domains/credential/model/dto"
	credentialRepo "roomkey/internal/domains/credential/repository"
	credential "roomkey/internal/domains/credential/service"
	"roomkey/internal/domains/reconciliation/model/dto"
	"roomkey/internal/domains/reconciliation/service"
	roomModel "roomkey/internal/domains/room/model"
	roomRepo "roomkey/internal/domains/room/repository"
	"roomkey/internal/events"
	eventMocks "roomkey/internal/events/mocks"
	"roomkey/shared"
	cacheMocks "roomkey/shared/cache/mocks"
	gDto "roomkey/shared/dto"
	gModel "roomkey/shared/model"
	"roomkey/shared/slot"
	"roomkey/shared/timezone"
)

const lockID = "lock-front"

type fixture struct {
	conn      *database.Connection
	svc       service.Reconciler
	gateway   *gatewayMocks.MockGateway
	archive   *s3Mocks.MockS3
	cfg       *config.Config
	bookings  bookingRepo.Booking
	blocks    blockRepo.BlockedSlot
	creds     credentialRepo.Credential
	published chan events.Event
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	conn := sqlitetest.NewConnection(t)
	otl := mocks.NewOtel()
	ctrl := gomock.NewController(t)

	mockCache := cacheMocks.NewMockRedisCache(ctrl)
	mockCache.EXPECT().Delete(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	mockCache.EXPECT().Clear(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	published := make(chan events.Event, 64)
	publisher := eventMocks.NewMockPublisher(ctrl)
	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Do(func(_ context.Context, event events.Event) {
		published <- event
	}).AnyTimes()

	gateway := gatewayMocks.NewMockGateway(ctrl)
	archive := s3Mocks.NewMockS3(ctrl)

	cfg := &config.Config{}
	cfg.Reconciliation.ExpireBufferHours = 2
	cfg.Reconciliation.RetentionDays = 30
	cfg.External.S3.ArchivePrefix = "archive"

	bookings := bookingRepo.New(conn, otl)
	rooms := roomRepo.New(conn, otl)
	blocks := blockRepo.New(conn, otl)
	creds := credentialRepo.New(conn, otl)

	require.NoError(t, rooms.Update(context.Background(), map[string]any{
		roomModel.FieldFrontLockID: sql.NullString{String: lockID, Valid: true},
	}, shared.FilterByID(sqlitetest.StudioA, roomModel.FieldID, roomModel.TableName)))

	manager := credential.New(creds, bookings, rooms, conn, gateway, queueMocks.NewMockClient(ctrl), publisher, cfg, mockCache, otl)

	return fixture{
		conn:      conn,
		svc:       service.New(bookings, blocks, creds, manager, gateway, conn, archive, publisher, cfg, mockCache, otl),
		gateway:   gateway,
		archive:   archive,
		cfg:       cfg,
		bookings:  bookings,
		blocks:    blocks,
		creds:     creds,
		published: published,
	}
}

// booking stores a confirmed booking on Studio A 10:00-12:00 the given number of days from today and, when
// credentialID is set, a live credential for it.
func (f fixture) booking(t *testing.T, days int, credentialID string) bookingModel.Booking {
	t.Helper()

	now := timezone.Now()
	booking := bookingModel.Booking{
		ID:               uuid.NewString(),
		RoomID:           sqlitetest.StudioA,
		UserID:           "user-1",
		BookingDate:      slot.Day(now.AddDate(0, 0, days), timezone.GetLocation()),
		StartHour:        10,
		EndHour:          12,
		Status:           bookingModel.StatusConfirmed,
		CredentialStatus: bookingModel.CredentialNone,
		Metadata:         gModel.Metadata{CreatedAt: now, ModifiedAt: now, CreatedBy: "user-1", ModifiedBy: "user-1"},
	}

	from, until := booking.Window(timezone.GetLocation())

	require.NoError(t, f.conn.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		if err := f.bookings.InsertTx(context.Background(), tx, booking); err != nil {
			return err
		}

		if credentialID == "" {
			return nil
		}

		return f.creds.InsertBulkTx(context.Background(), tx, []credentialModel.BookingCredential{{
			ID:           uuid.NewString(),
			BookingID:    booking.ID,
			RoomID:       booking.RoomID,
			LockID:       lockID,
			LockRole:     roomModel.LockRoleFront,
			CredentialID: sql.NullString{String: credentialID, Valid: true},
			Status:       credentialModel.StatusProvisioned,
			ValidFrom:    from.UTC(),
			ValidUntil:   until.UTC(),
			Metadata:     booking.Metadata,
		}})
	}))

	return booking
}

func (f fixture) credentialStatus(t *testing.T, bookingID string) string {
	t.Helper()

	rows, err := f.creds.GetAll(context.Background(), gDto.QueryParams{}, credentialRepo.ByBooking(bookingID))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	return rows[0].Status
}

func (f fixture) exists(t *testing.T, bookingID string) bool {
	t.Helper()

	exist, err := f.bookings.Exist(context.Background(), shared.FilterByID(bookingID, bookingModel.FieldID, bookingModel.TableName))
	require.NoError(t, err)

	return exist
}

func TestReconciler_ExpireCredentials(t *testing.T) {
	f := newFixture(t)

	ended := f.booking(t, -1, "cred-ended")
	stuck := f.booking(t, -2, "cred-stuck")
	upcoming := f.booking(t, 2, "cred-upcoming")

	f.gateway.EXPECT().DeletePasscode(gomock.Any(), lockID, "cred-ended").Return(nil)
	f.gateway.EXPECT().DeletePasscode(gomock.Any(), lockID, "cred-stuck").Return(lockgateway.ErrTransient)

	first, err := f.svc.ExpireCredentials(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, first.Scanned)
	assert.Equal(t, 1, first.Succeeded)
	assert.Equal(t, 1, first.Failed)

	assert.Equal(t, credentialModel.StatusRevoked, f.credentialStatus(t, ended.ID))
	assert.Equal(t, credentialModel.StatusProvisioned, f.credentialStatus(t, stuck.ID))
	assert.Equal(t, credentialModel.StatusProvisioned, f.credentialStatus(t, upcoming.ID))
	assert.True(t, f.exists(t, ended.ID))

	f.gateway.EXPECT().DeletePasscode(gomock.Any(), lockID, "cred-stuck").Return(nil)

	second, err := f.svc.ExpireCredentials(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, second.Scanned)
	assert.Equal(t, 1, second.Succeeded)

	third, err := f.svc.ExpireCredentials(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, third.Scanned)
	assert.Equal(t, credentialModel.StatusRevoked, f.credentialStatus(t, stuck.ID))

	stored, err := f.bookings.Get(context.Background(), shared.FilterByID(ended.ID, bookingModel.FieldID, bookingModel.TableName))
	require.NoError(t, err)
	assert.Equal(t, bookingModel.CredentialExpired, stored.CredentialStatus)
	assert.False(t, stored.CredentialEnabled)
}

func TestReconciler_ExpireRevokesCancelledBookings(t *testing.T) {
	f := newFixture(t)

	cancelled := f.booking(t, 3, "cred-cancelled")
	upcoming := f.booking(t, 3, "cred-upcoming")

	require.NoError(t, f.bookings.Update(context.Background(), map[string]any{
		bookingModel.FieldStatus: bookingModel.StatusCancelled,
	}, shared.FilterByID(cancelled.ID, bookingModel.FieldID, bookingModel.TableName)))

	f.gateway.EXPECT().DeletePasscode(gomock.Any(), lockID, "cred-cancelled").Return(lockgateway.ErrTransient)

	first, err := f.svc.ExpireCredentials(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, first.Scanned)
	assert.Equal(t, 1, first.Failed)
	assert.Equal(t, credentialModel.StatusProvisioned, f.credentialStatus(t, cancelled.ID))

	f.gateway.EXPECT().DeletePasscode(gomock.Any(), lockID, "cred-cancelled").Return(nil)

	second, err := f.svc.ExpireCredentials(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, second.Scanned)
	assert.Equal(t, 1, second.Succeeded)
	assert.Equal(t, credentialModel.StatusRevoked, f.credentialStatus(t, cancelled.ID))
	assert.Equal(t, credentialModel.StatusProvisioned, f.credentialStatus(t, upcoming.ID))

	stored, err := f.bookings.Get(context.Background(), shared.FilterByID(cancelled.ID, bookingModel.FieldID, bookingModel.TableName))
	require.NoError(t, err)
	assert.Equal(t, bookingModel.CredentialRevoked, stored.CredentialStatus)

	third, err := f.svc.ExpireCredentials(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, third.Scanned)
}

func TestReconciler_ExpireRespectsBuffer(t *testing.T) {
	f := newFixture(t)
	f.cfg.Reconciliation.ExpireBufferHours = 24 * 3

	f.booking(t, -1, "cred-recent")

	res, err := f.svc.ExpireCredentials(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, res.Scanned)
}

func TestReconciler_PurgeOldRecords(t *testing.T) {
	f := newFixture(t)
	f.cfg.Reconciliation.ArchiveEnable = true

	old := f.booking(t, -40, "")
	oldLive := f.booking(t, -40, "cred-live")
	recent := f.booking(t, -5, "")

	oldBlock := blockModel.BlockedSlot{
		ID:        uuid.NewString(),
		RoomID:    sqlitetest.StudioA,
		BlockDate: slot.Day(timezone.Now().AddDate(0, 0, -45), timezone.GetLocation()),
		StartHour: 9,
		EndHour:   10,
		Kind:      blockModel.KindStandalone,
		Metadata:  old.Metadata,
	}

	require.NoError(t, f.conn.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		return f.blocks.InsertBulkTx(context.Background(), tx, []blockModel.BlockedSlot{oldBlock})
	}))

	require.NoError(t, f.bookings.Update(context.Background(), map[string]any{bookingModel.FieldPasscode: "482913"},
		shared.FilterByID(old.ID, bookingModel.FieldID, bookingModel.TableName)))

	var archived []bookingModel.Booking

	f.gateway.EXPECT().DeletePasscode(gomock.Any(), lockID, "cred-live").Return(lockgateway.ErrTransient)
	f.archive.EXPECT().UploadJSON(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, directory, fileName string, data any) (string, error) {
			if rows, ok := data.([]bookingModel.Booking); ok {
				archived = rows
			}

			return "s3://bucket/" + directory + "/" + fileName, nil
		}).Times(2)

	res, err := f.svc.PurgeOldRecords(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, res.Scanned)
	assert.Equal(t, 2, res.Purged)
	assert.Equal(t, 1, res.Skipped)
	assert.Len(t, res.Archive, 2)

	require.Len(t, archived, 1)
	assert.Equal(t, old.ID, archived[0].ID)
	assert.False(t, archived[0].Passcode.Valid)

	raw, err := json.Marshal(archived)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "482913")

	assert.False(t, f.exists(t, old.ID))
	assert.True(t, f.exists(t, oldLive.ID))
	assert.True(t, f.exists(t, recent.ID))

	blocks, err := f.blocks.GetAll(context.Background(), gDto.QueryParams{}, gDto.FilterGroup{})
	require.NoError(t, err)
	assert.Empty(t, blocks)
}

func TestReconciler_PurgeKeepsRowsWhenArchiveFails(t *testing.T) {
	f := newFixture(t)
	f.cfg.Reconciliation.ArchiveEnable = true

	old := f.booking(t, -40, "")

	f.archive.EXPECT().UploadJSON(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("", errors.New("bucket unavailable"))

	_, err := f.svc.PurgeOldRecords(context.Background())

	require.Error(t, err)
	assert.True(t, f.exists(t, old.ID))
}

func TestReconciler_ResyncFuture(t *testing.T) {
	t.Run("unconfigured gateway", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.EXPECT().Configured().Return(false).AnyTimes()

		res, err := f.svc.ResyncFuture(context.Background())

		require.NoError(t, err)
		assert.Equal(t, lockgateway.ErrNotConfigured.Error(), res.NotRunReason)
	})

	t.Run("re-provisions bookings that have not ended", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.EXPECT().Configured().Return(true).AnyTimes()

		first := f.booking(t, 2, "cred-first")
		second := f.booking(t, 3, "")
		f.booking(t, -3, "")

		f.gateway.EXPECT().DeletePasscode(gomock.Any(), lockID, "cred-first").Return(nil)
		f.gateway.EXPECT().CreatePasscode(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req lockgateway.PasscodeRequest) (string, error) {
				return "fresh-" + req.Label, nil
			}).Times(2)

		res, err := f.svc.ResyncFuture(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 2, res.Scanned)
		assert.Equal(t, 2, res.Succeeded)

		for _, id := range []string{first.ID, second.ID} {
			rows, err := f.creds.GetAll(context.Background(), gDto.QueryParams{}, credentialRepo.ByBooking(id))
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, "fresh-booking "+id, rows[0].CredentialID.String)
		}
	})

	t.Run("stops when the context ends", func(t *testing.T) {
		f := newFixture(t)
		f.cfg.Reconciliation.ResyncDelayMillis = 60_000
		f.gateway.EXPECT().Configured().Return(true).AnyTimes()
		f.gateway.EXPECT().CreatePasscode(gomock.Any(), gomock.Any()).Return("cred", nil)

		f.booking(t, 2, "")
		f.booking(t, 3, "")

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		res, err := f.svc.ResyncFuture(ctx)

		require.NoError(t, err)
		assert.Equal(t, 1, res.Succeeded)
	})
}

func TestReconciler_CheckLockHealth(t *testing.T) {
	ctrl := gomock.NewController(t)
	otl := mocks.NewOtel()

	manager := credentialMocks.NewMockManager(ctrl)
	publisher := eventMocks.NewMockPublisher(ctrl)

	var published []events.Event

	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Do(func(_ context.Context, event events.Event) {
		published = append(published, event)
	}).AnyTimes()

	svc := service.New(nil, nil, nil, manager, nil, nil, nil, publisher, &config.Config{}, nil, otl)

	manager.EXPECT().LockStatuses(gomock.Any()).Return([]credentialDto.LockHealth{
		{RoomID: sqlitetest.StudioA, LockID: "lock-1", Online: true, BatteryLevel: 90, Healthy: true},
		{RoomID: sqlitetest.StudioA, LockID: "lock-2", Online: false, Healthy: false},
		{RoomID: sqlitetest.StudioB, LockID: "lock-3", Online: true, BatteryLevel: 5, Healthy: false},
	}, nil)

	res, err := svc.CheckLockHealth(context.Background())

	require.NoError(t, err)
	assert.Equal(t, dto.JobLockHealth, res.Job)
	assert.Equal(t, 3, res.Scanned)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 2, res.Failed)

	var unhealthy []string

	for _, event := range published {
		if event.Type == events.TypeLockUnhealthy {
			unhealthy = append(unhealthy, event.Data["lock_id"].(string))
		}
	}

	assert.Equal(t, []string{"lock-2", "lock-3"}, unhealthy)
	assert.Equal(t, events.TypeReconciliationComplete, published[len(published)-1].Type)
}
