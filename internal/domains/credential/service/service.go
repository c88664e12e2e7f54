package service

//go:generate go run go.uber.org/mock/mockgen -source=./service.go -destination=../mocks/service_mock.go -package=mocks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"roomkey/config"
	"roomkey/infras/database"
	"roomkey/infras/lockgateway"
	"roomkey/infras/otel"
	"roomkey/infras/queue"
	bookingModel "roomkey/internal/domains/booking/model"
	bookingRepo "roomkey/internal/domains/booking/repository"
	"roomkey/internal/domains/credential/model"
	"roomkey/internal/domains/credential/model/dto"
	"roomkey/internal/domains/credential/passcode"
	"roomkey/internal/domains/credential/repository"
	roomModel "roomkey/internal/domains/room/model"
	roomRepo "roomkey/internal/domains/room/repository"
	"roomkey/internal/events"
	"roomkey/shared"
	"roomkey/shared/cache"
	"roomkey/shared/constant"
	gDto "roomkey/shared/dto"
	"roomkey/shared/failure"
	gModel "roomkey/shared/model"
	"roomkey/shared/timezone"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	systemUser = "system"

	lockQueryLimit = 4
)

// Manager owns the lifecycle of the passcodes a booking holds on its room's locks.
type Manager interface {
	Provision(ctx context.Context, booking bookingModel.Booking, room roomModel.Room) (dto.Outcome, error)
	Revoke(ctx context.Context, booking bookingModel.Booking) (dto.RevokeResult, error)
	Expire(ctx context.Context, booking bookingModel.Booking) (dto.RevokeResult, error)
	Resync(ctx context.Context, bookingID string) (dto.Outcome, error)
	HandleResyncTask(ctx context.Context, task *asynq.Task) error
	LockStatuses(ctx context.Context) ([]dto.LockHealth, error)
	AccessLog(ctx context.Context, roomID string, from, to time.Time) (dto.AccessLogResponse, error)
}

type managerImpl struct {
	repo        repository.Credential
	bookingRepo bookingRepo.Booking
	roomRepo    roomRepo.Room
	db          database.Transactor
	gateway     lockgateway.Gateway
	queue       queue.Client
	publisher   events.Publisher
	cfg         *config.Config
	cache       cache.RedisCache
	otel        otel.Otel
}

func New(
	repo repository.Credential,
	bookingRepo bookingRepo.Booking,
	roomRepo roomRepo.Room,
	db database.Transactor,
	gateway lockgateway.Gateway,
	queue queue.Client,
	publisher events.Publisher,
	cfg *config.Config,
	cache cache.RedisCache,
	otel otel.Otel,
) Manager {
	return &managerImpl{
		repo:        repo,
		bookingRepo: bookingRepo,
		roomRepo:    roomRepo,
		db:          db,
		gateway:     gateway,
		queue:       queue,
		publisher:   publisher,
		cfg:         cfg,
		cache:       cache,
		otel:        otel,
	}
}

// Provision pushes one code to every lock of the room. Locks succeed or fail independently and the booking is
// never failed because of the gateway: when no lock accepts the code the booking keeps a fallback code with the
// credential disabled, and a delayed resync is queued.
func (m *managerImpl) Provision(ctx context.Context, booking bookingModel.Booking, room roomModel.Room) (dto.Outcome, error) {
	return m.provision(ctx, booking, room, true)
}

func (m *managerImpl) provision(ctx context.Context, booking bookingModel.Booking, room roomModel.Room, enqueue bool) (out dto.Outcome, err error) {
	ctx, scope := m.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".credential.Provision")
	defer scope.End()
	defer scope.TraceIfError(&err)

	from, until := booking.Window(timezone.GetLocation())
	locks := room.Locks()

	live, err := m.liveByLock(ctx, booking.ID)
	if err != nil {
		return out, err
	}

	code := booking.Passcode.String
	if code == constant.Empty {
		if code, err = passcode.Generate(); err != nil {
			log.Error().Err(err).Str("booking_id", booking.ID).Msg("failed to generate passcode, using fallback")

			code = passcode.Fallback(booking.ID)
		}
	}

	out.Locks = make([]dto.LockResult, len(locks))
	out.Retryable = m.gateway.Configured() && len(locks) > 0

	var group errgroup.Group

	for i, lock := range locks {
		result := dto.LockResult{LockID: lock.ID, Role: lock.Role}

		switch row, ok := live[lock.ID]; {
		case ok:
			result.CredentialID = row.CredentialID.String
		case !m.gateway.Configured():
			result.Err = lockgateway.ErrNotConfigured
		default:
			group.Go(func() error {
				result.CredentialID, result.Err = m.gateway.CreatePasscode(ctx, lockgateway.PasscodeRequest{
					LockID:     lock.ID,
					Code:       code,
					ValidFrom:  from,
					ValidUntil: until,
					Label:      "booking " + booking.ID,
				})
				out.Locks[i] = result

				return nil
			})

			continue
		}

		out.Locks[i] = result
	}

	_ = group.Wait()

	if len(locks) > 0 && out.Failed() < len(locks) {
		out.Passcode = code
		out.Enabled = true
		out.Status = bookingModel.CredentialProvisioned
	} else {
		out.Passcode = passcode.Fallback(booking.ID)
		if booking.Passcode.Valid && booking.Passcode.String != constant.Empty {
			out.Passcode = booking.Passcode.String
		}

		out.Status = bookingModel.CredentialPending
	}

	for _, lock := range out.Locks {
		if lock.Err != nil {
			log.Warn().Err(lock.Err).Str("booking_id", booking.ID).Str("lock_id", lock.LockID).Str("role", lock.Role).Msg("failed to provision passcode on lock")
		}
	}

	// The credentials exist on the hardware now, so they are recorded even if the caller has gone away.
	if err = m.persist(context.WithoutCancel(ctx), booking, out, live, from, until); err != nil {
		return out, err
	}

	m.publishOutcome(ctx, booking, out)

	if enqueue && out.Retryable && out.Degraded() {
		m.enqueueResync(ctx, booking.ID)
	}

	return out, nil
}

func (m *managerImpl) liveByLock(ctx context.Context, bookingID string) (map[string]model.BookingCredential, error) {
	rows, err := m.repo.GetAll(ctx, gDto.QueryParams{}, repository.ByBookingStatus(bookingID, model.StatusProvisioned))
	if err != nil {
		log.Error().Err(err).Str("booking_id", bookingID).Msg("failed to get live credentials")

		return nil, fmt.Errorf("failed to get live credentials: %w", err)
	}

	live := make(map[string]model.BookingCredential, len(rows))
	for _, row := range rows {
		if row.Live() {
			live[row.LockID] = row
		}
	}

	return live, nil
}

func (m *managerImpl) persist(ctx context.Context, booking bookingModel.Booking, out dto.Outcome, live map[string]model.BookingCredential, from, until time.Time) error {
	now := timezone.Now()
	rows := make([]model.BookingCredential, 0, len(out.Locks))

	for _, lock := range out.Locks {
		if _, ok := live[lock.LockID]; ok {
			continue
		}

		row := model.BookingCredential{
			ID:         uuid.NewString(),
			BookingID:  booking.ID,
			RoomID:     booking.RoomID,
			LockID:     lock.LockID,
			LockRole:   lock.Role,
			Status:     model.StatusProvisioned,
			ValidFrom:  from.UTC(),
			ValidUntil: until.UTC(),
			Metadata: gModel.Metadata{
				CreatedAt:  now,
				ModifiedAt: now,
				CreatedBy:  systemUser,
				ModifiedBy: systemUser,
			},
		}

		if lock.Err != nil {
			row.Status = model.StatusFailed
			row.LastError = sql.NullString{String: lock.Err.Error(), Valid: true}
		} else {
			row.CredentialID = sql.NullString{String: lock.CredentialID, Valid: true}
		}

		rows = append(rows, row)
	}

	err := m.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := m.repo.DeleteTx(ctx, tx, repository.ByBookingStatus(booking.ID, model.StatusFailed, model.StatusRevoked)); err != nil {
			return err //nolint:wrapcheck
		}

		if err := m.repo.InsertBulkTx(ctx, tx, rows); err != nil {
			return err //nolint:wrapcheck
		}

		return m.bookingRepo.UpdateTx(ctx, tx, map[string]any{
			bookingModel.FieldPasscode:          sql.NullString{String: out.Passcode, Valid: true},
			bookingModel.FieldCredentialEnabled: out.Enabled,
			bookingModel.FieldCredentialStatus:  out.Status,
			constant.FieldModifiedAt:            now,
			constant.FieldModifiedBy:            systemUser,
		}, shared.FilterByID(booking.ID, bookingModel.FieldID, bookingModel.TableName))
	})
	if err != nil {
		log.Error().Err(err).Str("booking_id", booking.ID).Msg("failed to save credential outcome")

		return fmt.Errorf("failed to save credential outcome: %w", err)
	}

	m.invalidateBooking(ctx, booking.ID)

	return nil
}

func (m *managerImpl) publishOutcome(ctx context.Context, booking bookingModel.Booking, out dto.Outcome) {
	eventType := events.TypeCredentialProvisioned
	if out.Degraded() {
		eventType = events.TypeCredentialDegraded
	}

	m.publisher.Publish(ctx, events.Event{
		Type:      eventType,
		BookingID: booking.ID,
		RoomID:    booking.RoomID,
		UserID:    booking.UserID,
		Data: map[string]any{
			"enabled":      out.Enabled,
			"locks":        len(out.Locks),
			"failed_locks": out.Failed(),
		},
	})
}

func (m *managerImpl) enqueueResync(ctx context.Context, bookingID string) {
	err := m.queue.Enqueue(ctx, queue.TypeCredentialResync, dto.ResyncPayload{BookingID: bookingID},
		asynq.TaskID(queue.TypeCredentialResync+":"+bookingID),
		asynq.ProcessIn(time.Duration(m.cfg.Lock.RetryDelayMinutes)*time.Minute),
		asynq.MaxRetry(m.cfg.Lock.RetryMaxAttempts),
	)

	switch {
	case errors.Is(err, queue.ErrDisabled):
		log.Debug().Str("booking_id", bookingID).Msg("queue disabled, leaving degraded credential to the daily resync")
	case err != nil:
		log.Warn().Err(err).Str("booking_id", bookingID).Msg("failed to queue credential resync")
	}
}

// Revoke removes the booking's passcodes from every lock. A lock that already lost the code counts as revoked;
// any other failure leaves that row live for the next reconciliation pass.
func (m *managerImpl) Revoke(ctx context.Context, booking bookingModel.Booking) (dto.RevokeResult, error) {
	return m.revoke(ctx, booking, bookingModel.CredentialRevoked, events.TypeCredentialRevoked)
}

// Expire is Revoke for bookings that have ended.
func (m *managerImpl) Expire(ctx context.Context, booking bookingModel.Booking) (dto.RevokeResult, error) {
	return m.revoke(ctx, booking, bookingModel.CredentialExpired, events.TypeCredentialExpired)
}

// revoke leaves the booking row untouched when final is empty.
func (m *managerImpl) revoke(ctx context.Context, booking bookingModel.Booking, final, eventType string) (res dto.RevokeResult, err error) {
	ctx, scope := m.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".credential.Revoke")
	defer scope.End()
	defer scope.TraceIfError(&err)

	rows, err := m.repo.GetAll(ctx, gDto.QueryParams{}, repository.ByBookingStatus(booking.ID, model.StatusProvisioned, model.StatusFailed))
	if err != nil {
		log.Error().Err(err).Str("booking_id", booking.ID).Msg("failed to get booking credentials")

		return res, fmt.Errorf("failed to get booking credentials: %w", err)
	}

	for _, row := range rows {
		fields := map[string]any{
			constant.FieldModifiedAt: timezone.Now(),
			constant.FieldModifiedBy: systemUser,
		}

		if row.Live() {
			deleteErr := m.gateway.DeletePasscode(ctx, row.LockID, row.CredentialID.String)
			if deleteErr != nil && !errors.Is(deleteErr, lockgateway.ErrNotFound) {
				log.Warn().Err(deleteErr).Str("booking_id", booking.ID).Str("lock_id", row.LockID).Msg("failed to delete passcode from lock")

				fields[model.FieldLastError] = sql.NullString{String: deleteErr.Error(), Valid: true}
				if err = m.repo.Update(ctx, fields, shared.FilterByID(row.ID, model.FieldID, model.TableName)); err != nil {
					log.Error().Err(err).Str("credential_id", row.ID).Msg("failed to record revoke failure")
				}

				res.Remaining++

				continue
			}
		}

		fields[model.FieldStatus] = model.StatusRevoked
		if err = m.repo.Update(ctx, fields, shared.FilterByID(row.ID, model.FieldID, model.TableName)); err != nil {
			log.Error().Err(err).Str("credential_id", row.ID).Msg("failed to mark credential revoked")

			return res, fmt.Errorf("failed to mark credential revoked: %w", err)
		}

		res.Revoked++
	}

	if final != constant.Empty && res.Complete() {
		err = m.bookingRepo.Update(ctx, map[string]any{
			bookingModel.FieldCredentialEnabled: false,
			bookingModel.FieldCredentialStatus:  final,
			constant.FieldModifiedAt:            timezone.Now(),
			constant.FieldModifiedBy:            systemUser,
		}, shared.FilterByID(booking.ID, bookingModel.FieldID, bookingModel.TableName))
		if err != nil {
			log.Error().Err(err).Str("booking_id", booking.ID).Msg("failed to update booking credential state")

			return res, fmt.Errorf("failed to update booking credential state: %w", err)
		}

		m.invalidateBooking(ctx, booking.ID)
	}

	if res.Revoked > 0 && final != constant.Empty {
		m.publisher.Publish(ctx, events.Event{
			Type:      eventType,
			BookingID: booking.ID,
			RoomID:    booking.RoomID,
			UserID:    booking.UserID,
			Data:      map[string]any{"revoked": res.Revoked, "remaining": res.Remaining},
		})
	}

	return res, nil
}

// Resync overwrites the credentials of a booking that has not ended yet, keeping its stored code so the code the
// customer already holds becomes valid. A booking that loses working codes on the way gets a delayed retry queued.
func (m *managerImpl) Resync(ctx context.Context, bookingID string) (dto.Outcome, error) {
	return m.resync(ctx, bookingID, true)
}

func (m *managerImpl) resync(ctx context.Context, bookingID string, enqueue bool) (out dto.Outcome, err error) {
	ctx, scope := m.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".credential.Resync")
	defer scope.End()
	defer scope.TraceIfError(&err)

	booking, err := m.bookingRepo.Get(ctx, shared.FilterByID(bookingID, bookingModel.FieldID, bookingModel.TableName))
	if err != nil {
		log.Error().Err(err).Str("booking_id", bookingID).Msg("failed to get booking")

		return out, fmt.Errorf("failed to get booking: %w", err)
	}

	if booking.ID == constant.Empty {
		return out, failure.NotFound("booking not found") // nolint:wrapcheck
	}

	_, until := booking.Window(timezone.GetLocation())
	if !booking.IsConfirmed() || !until.After(timezone.Now()) {
		log.Info().Str("booking_id", bookingID).Str("status", booking.Status).Msg("skipping resync of inactive booking")

		return dto.Outcome{Skipped: true}, nil
	}

	room, err := m.roomRepo.Get(ctx, shared.FilterByID(booking.RoomID, roomModel.FieldID, roomModel.TableName))
	if err != nil {
		log.Error().Err(err).Str("room_id", booking.RoomID).Msg("failed to get room")

		return out, fmt.Errorf("failed to get room: %w", err)
	}

	revoked, err := m.revoke(ctx, booking, constant.Empty, constant.Empty)
	if err != nil {
		return out, err
	}

	return m.provision(ctx, booking, room, enqueue && revoked.Revoked > 0)
}

// HandleResyncTask fails while the credential is still degraded so the queue retries it with backoff.
func (m *managerImpl) HandleResyncTask(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.Decode[dto.ResyncPayload](task)
	if err != nil {
		return err //nolint:wrapcheck
	}

	// The queue retries a failed task itself.
	out, err := m.resync(ctx, payload.BookingID, false)
	if failure.GetCode(err) == http.StatusNotFound {
		return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
	}

	if err != nil {
		return err
	}

	if out.Retryable && out.Degraded() {
		return fmt.Errorf("credential for booking %s still degraded on %d of %d locks", payload.BookingID, out.Failed(), len(out.Locks))
	}

	return nil
}

func (m *managerImpl) LockStatuses(ctx context.Context) (res []dto.LockHealth, err error) {
	ctx, scope := m.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".credential.LockStatuses")
	defer scope.End()
	defer scope.TraceIfError(&err)

	if !m.gateway.Configured() {
		return nil, failure.BadRequestFromString(lockgateway.ErrNotConfigured.Error()) // nolint:wrapcheck
	}

	rooms, err := m.roomRepo.GetAll(ctx, gDto.QueryParams{SortBy: roomModel.FieldName, SortDir: gDto.SortDirAsc}, gDto.FilterGroup{})
	if err != nil {
		log.Error().Err(err).Msg("failed to get rooms")

		return nil, fmt.Errorf("failed to get rooms: %w", err)
	}

	for _, room := range rooms {
		for _, lock := range room.Locks() {
			res = append(res, dto.LockHealth{RoomID: room.ID, RoomName: room.Name, LockID: lock.ID, Role: lock.Role})
		}
	}

	var group errgroup.Group
	group.SetLimit(lockQueryLimit)

	for i := range res {
		group.Go(func() error {
			status, statusErr := m.gateway.GetLockStatus(ctx, res[i].LockID)
			if statusErr != nil {
				res[i].Error = statusErr.Error()

				return nil
			}

			res[i].Online = status.Online
			res[i].BatteryLevel = status.BatteryLevel
			res[i].Healthy = status.Online && status.BatteryLevel >= m.cfg.Lock.LowBatteryThreshold

			return nil
		})
	}

	_ = group.Wait()

	return res, nil
}

func (m *managerImpl) AccessLog(ctx context.Context, roomID string, from, to time.Time) (res dto.AccessLogResponse, err error) {
	ctx, scope := m.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".credential.AccessLog")
	defer scope.End()
	defer scope.TraceIfError(&err)

	if !to.After(from) {
		return res, failure.BadRequestFromString("to must be after from") // nolint:wrapcheck
	}

	if !m.gateway.Configured() {
		return res, failure.BadRequestFromString(lockgateway.ErrNotConfigured.Error()) // nolint:wrapcheck
	}

	room, err := m.roomRepo.Get(ctx, shared.FilterByID(roomID, roomModel.FieldID, roomModel.TableName))
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to get room")

		return res, fmt.Errorf("failed to get room: %w", err)
	}

	if room.ID == constant.Empty {
		return res, failure.NotFound("room not found") // nolint:wrapcheck
	}

	locks := room.Locks()
	logs := make([][]lockgateway.AccessEvent, len(locks))

	group, groupCtx := errgroup.WithContext(ctx)

	for i, lock := range locks {
		group.Go(func() error {
			entries, logErr := m.gateway.GetAccessLog(groupCtx, lock.ID, from, to)
			if logErr != nil {
				return fmt.Errorf("lock %s: %w", lock.ID, logErr)
			}

			logs[i] = entries

			return nil
		})
	}

	if err = group.Wait(); err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to fetch access log")

		return res, fmt.Errorf("failed to fetch access log: %w", err)
	}

	res.RoomID = room.ID
	res.From = from.Format(constant.DateFormat)
	res.To = to.Format(constant.DateFormat)
	res.Events = slices.Concat(logs...)

	slices.SortStableFunc(res.Events, func(a, b lockgateway.AccessEvent) int {
		return a.OccurredAt.Compare(b.OccurredAt)
	})

	if res.Events == nil {
		res.Events = []lockgateway.AccessEvent{}
	}

	return res, nil
}

func (m *managerImpl) invalidateBooking(ctx context.Context, bookingID string) {
	go func() {
		c := context.WithoutCancel(ctx)

		if err := m.cache.Delete(c, shared.BuildCacheKey(bookingModel.CacheGetBooking, bookingID)); err != nil {
			log.Error().Err(err).Msg("failed to delete booking cache")
		}

		shared.InvalidateCaches(c, m.cache, bookingModel.CacheGetAllBooking)
	}()
}
