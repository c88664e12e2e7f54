// Package service corrects drift between stored booking state and the lock hardware. Every job is safe to re-run:
// work that fails is left in place and picked up by the next run.
package service

//go:generate go run go.uber.org/mock/mockgen -source=./service.go -destination=../mocks/service_mock.go -package=mocks

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"time"

	"roomkey/config"
	"roomkey/infras/database"
	"roomkey/infras/lockgateway"
	"roomkey/infras/otel"
	"roomkey/infras/s3"
	blockModel "roomkey/internal/domains/block/model"
	blockRepo "roomkey/internal/domains/block/repository"
	bookingModel "roomkey/internal/domains/booking/model"
	bookingRepo "roomkey/internal/domains/booking/repository"
	credentialModel "roomkey/internal/domains/credential/model"
	credentialDto "roomkey/internal/domains/credential/model/dto"
	credentialRepo "roomkey/internal/domains/credential/repository"
	credential "roomkey/internal/domains/credential/service"
	"roomkey/internal/domains/reconciliation/model/dto"
	"roomkey/internal/events"
	"roomkey/shared"
	"roomkey/shared/cache"
	"roomkey/shared/constant"
	gDto "roomkey/shared/dto"
	"roomkey/shared/failure"
	"roomkey/shared/slot"
	"roomkey/shared/timezone"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

const fieldID = "id"

type Reconciler interface {
	ExpireCredentials(ctx context.Context) (dto.JobResult, error)
	PurgeOldRecords(ctx context.Context) (dto.JobResult, error)
	ResyncFuture(ctx context.Context) (dto.JobResult, error)
	CheckLockHealth(ctx context.Context) (dto.JobResult, error)
}

type serviceImpl struct {
	bookingRepo    bookingRepo.Booking
	blockRepo      blockRepo.BlockedSlot
	credentialRepo credentialRepo.Credential
	credentials    credential.Manager
	gateway        lockgateway.Gateway
	db             database.Transactor
	archive        s3.S3
	publisher      events.Publisher
	cfg            *config.Config
	cache          cache.RedisCache
	otel           otel.Otel
}

func New(
	bookingRepo bookingRepo.Booking,
	blockRepo blockRepo.BlockedSlot,
	credentialRepo credentialRepo.Credential,
	credentials credential.Manager,
	gateway lockgateway.Gateway,
	db database.Transactor,
	archive s3.S3,
	publisher events.Publisher,
	cfg *config.Config,
	cache cache.RedisCache,
	otel otel.Otel,
) Reconciler {
	return &serviceImpl{
		bookingRepo:    bookingRepo,
		blockRepo:      blockRepo,
		credentialRepo: credentialRepo,
		credentials:    credentials,
		gateway:        gateway,
		db:             db,
		archive:        archive,
		publisher:      publisher,
		cfg:            cfg,
		cache:          cache,
		otel:           otel,
	}
}

// ExpireCredentials revokes every credential whose validity ended more than the buffer ago, then every code still
// left on a lock by a cancelled booking. Booking rows are never deleted here.
func (s *serviceImpl) ExpireCredentials(ctx context.Context) (res dto.JobResult, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelJobScopeName, constant.OtelJobScopeName+".ExpireCredentials")
	defer scope.End()
	defer scope.TraceIfError(&err)

	res = start(dto.JobExpireCredentials)
	defer s.finish(ctx, &res)

	cutoff := timezone.Now().Add(-time.Duration(s.cfg.Reconciliation.ExpireBufferHours) * time.Hour).UTC()

	ended, err := s.unrevokedBookings(ctx, gDto.FilterOperatorLessEq, cutoff)
	if err != nil {
		return res, err
	}

	for _, booking := range ended {
		revoked, expireErr := s.credentials.Expire(ctx, booking)
		countRevoke(&res, booking, revoked, expireErr)
	}

	// Cancel revokes best effort, and a resync racing a cancel can push the code again.
	active, err := s.unrevokedBookings(ctx, gDto.FilterOperatorGreater, cutoff)
	if err != nil {
		return res, err
	}

	for _, booking := range active {
		if booking.IsConfirmed() {
			continue
		}

		revoked, revokeErr := s.credentials.Revoke(ctx, booking)
		countRevoke(&res, booking, revoked, revokeErr)
	}

	return res, nil
}

// unrevokedBookings loads the bookings owning provisioned or failed credentials whose validity end compares to
// cutoff with op.
func (s *serviceImpl) unrevokedBookings(ctx context.Context, op string, cutoff time.Time) ([]bookingModel.Booking, error) {
	rows, err := s.credentialRepo.GetAll(ctx, gDto.QueryParams{}, gDto.FilterGroup{
		Operator: gDto.FilterGroupOperatorAnd,
		Filters: []any{
			gDto.Filter{
				Field:    credentialModel.FieldStatus,
				Value:    []string{credentialModel.StatusProvisioned, credentialModel.StatusFailed},
				Operator: gDto.FilterOperatorIn,
				Table:    credentialModel.TableName,
			},
			gDto.Filter{Field: credentialModel.FieldValidUntil, Value: cutoff, Operator: op, Table: credentialModel.TableName},
		},
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to get unrevoked credentials")

		return nil, fmt.Errorf("failed to get unrevoked credentials: %w", err)
	}

	bookingIDs := distinctBookings(rows)
	if len(bookingIDs) == 0 {
		return nil, nil
	}

	bookings, err := s.bookingRepo.GetAll(ctx, gDto.QueryParams{}, byIDs(bookingIDs))
	if err != nil {
		log.Error().Err(err).Msg("failed to get bookings of unrevoked credentials")

		return nil, fmt.Errorf("failed to get bookings of unrevoked credentials: %w", err)
	}

	return bookings, nil
}

func countRevoke(res *dto.JobResult, booking bookingModel.Booking, revoked credentialDto.RevokeResult, err error) {
	res.Scanned++

	if err != nil || !revoked.Complete() {
		log.Warn().Err(err).Str("job", res.Job).Str("booking_id", booking.ID).Str("status", booking.Status).
			Int("remaining", revoked.Remaining).Msg("credential not fully revoked, retrying next run")

		res.Failed++

		return
	}

	res.Succeeded++
}

// PurgeOldRecords deletes bookings and blocks older than the retention window. A booking is deleted only after
// all of its credentials are gone from the locks; the rest wait for the next run.
func (s *serviceImpl) PurgeOldRecords(ctx context.Context) (res dto.JobResult, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelJobScopeName, constant.OtelJobScopeName+".PurgeOldRecords")
	defer scope.End()
	defer scope.TraceIfError(&err)

	res = start(dto.JobPurgeOldRecords)
	defer s.finish(ctx, &res)

	cutoff := slot.Day(timezone.Now(), timezone.GetLocation()).AddDate(0, 0, -s.cfg.Reconciliation.RetentionDays)

	bookings, err := s.bookingRepo.GetAll(ctx, gDto.QueryParams{}, olderThan(bookingModel.FieldBookingDate, bookingModel.TableName, cutoff))
	if err != nil {
		log.Error().Err(err).Msg("failed to get old bookings")

		return res, fmt.Errorf("failed to get old bookings: %w", err)
	}

	blocks, err := s.blockRepo.GetAll(ctx, gDto.QueryParams{}, olderThan(blockModel.FieldBlockDate, blockModel.TableName, cutoff))
	if err != nil {
		log.Error().Err(err).Msg("failed to get old blocked slots")

		return res, fmt.Errorf("failed to get old blocked slots: %w", err)
	}

	res.Scanned = len(bookings) + len(blocks)

	purgeable := make([]bookingModel.Booking, 0, len(bookings))

	for _, booking := range bookings {
		revoked, expireErr := s.credentials.Expire(ctx, booking)
		if expireErr != nil || !revoked.Complete() {
			log.Warn().Err(expireErr).Str("job", res.Job).Str("booking_id", booking.ID).Msg("keeping booking with live credentials")

			res.Skipped++

			continue
		}

		purgeable = append(purgeable, booking)
	}

	if len(purgeable) == 0 && len(blocks) == 0 {
		return res, nil
	}

	if s.cfg.Reconciliation.ArchiveEnable {
		if res.Archive, err = s.archiveRows(ctx, cutoff, purgeable, blocks); err != nil {
			return res, err
		}
	}

	bookingIDs := make([]string, len(purgeable))
	for i, booking := range purgeable {
		bookingIDs[i] = booking.ID
	}

	blockIDs := make([]string, len(blocks))
	for i, block := range blocks {
		blockIDs[i] = block.ID
	}

	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if len(bookingIDs) > 0 {
			if err := s.bookingRepo.DeleteTx(ctx, tx, byIDs(bookingIDs)); err != nil {
				return err //nolint:wrapcheck
			}
		}

		if len(blockIDs) > 0 {
			return s.blockRepo.DeleteTx(ctx, tx, byIDs(blockIDs))
		}

		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to purge old records")

		res.Failed = len(bookingIDs) + len(blockIDs)

		return res, fmt.Errorf("failed to purge old records: %w", err)
	}

	res.Purged = len(bookingIDs) + len(blockIDs)
	res.Succeeded = res.Purged

	go func() {
		c := context.WithoutCancel(ctx)

		shared.InvalidateCaches(c, s.cache, bookingModel.CacheGetAllBooking)
		shared.InvalidateCaches(c, s.cache, bookingModel.CacheCountBooking)
		shared.InvalidateCaches(c, s.cache, bookingModel.CacheGetBooking)
		shared.InvalidateCaches(c, s.cache, blockModel.CacheGetAllBlock)
	}()

	return res, nil
}

func (s *serviceImpl) archiveRows(ctx context.Context, cutoff time.Time, bookings []bookingModel.Booking, blocks []blockModel.BlockedSlot) ([]string, error) {
	directory := path.Join(s.cfg.External.S3.ArchivePrefix, slot.FormatDate(cutoff))
	stamp := timezone.Now().UTC().Format("20060102T150405")
	locations := make([]string, 0, 2)

	if len(bookings) > 0 {
		archived := make([]bookingModel.Booking, len(bookings))
		for i, booking := range bookings {
			archived[i] = booking.WithoutPasscode()
		}

		location, err := s.archive.UploadJSON(ctx, directory, "bookings-"+stamp+".json", archived)
		if err != nil {
			return nil, fmt.Errorf("failed to archive bookings: %w", err)
		}

		locations = append(locations, location)
	}

	if len(blocks) > 0 {
		location, err := s.archive.UploadJSON(ctx, directory, "blocked-slots-"+stamp+".json", blocks)
		if err != nil {
			return nil, fmt.Errorf("failed to archive blocked slots: %w", err)
		}

		locations = append(locations, location)
	}

	return locations, nil
}

// ResyncFuture re-provisions every confirmed booking that has not ended, pausing between bookings so the vendor
// rate limit is not exhausted.
func (s *serviceImpl) ResyncFuture(ctx context.Context) (res dto.JobResult, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelJobScopeName, constant.OtelJobScopeName+".ResyncFuture")
	defer scope.End()
	defer scope.TraceIfError(&err)

	res = start(dto.JobResyncFuture)
	defer s.finish(ctx, &res)

	if !s.gateway.Configured() {
		res.NotRunReason = lockgateway.ErrNotConfigured.Error()

		return res, nil
	}

	bookings, err := s.bookingRepo.GetAll(ctx, gDto.QueryParams{SortBy: bookingModel.FieldBookingDate, SortDir: gDto.SortDirAsc}, gDto.FilterGroup{
		Operator: gDto.FilterGroupOperatorAnd,
		Filters: []any{
			gDto.Filter{Field: bookingModel.FieldStatus, Value: bookingModel.StatusConfirmed, Operator: gDto.FilterOperatorEq, Table: bookingModel.TableName},
			gDto.Filter{
				Field:    bookingModel.FieldBookingDate,
				Value:    slot.Day(timezone.Now(), timezone.GetLocation()),
				Operator: gDto.FilterOperatorGreaterEq,
				Table:    bookingModel.TableName,
			},
		},
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to get future bookings")

		return res, fmt.Errorf("failed to get future bookings: %w", err)
	}

	res.Scanned = len(bookings)
	delay := time.Duration(s.cfg.Reconciliation.ResyncDelayMillis) * time.Millisecond

	for i, booking := range bookings {
		if i > 0 && delay > 0 {
			if err = sleep(ctx, delay); err != nil {
				log.Warn().Err(err).Str("job", res.Job).Int("remaining", len(bookings)-i).Msg("resync interrupted")

				return res, nil
			}
		}

		out, resyncErr := s.credentials.Resync(ctx, booking.ID)

		switch {
		case resyncErr != nil:
			log.Error().Err(resyncErr).Str("job", res.Job).Str("booking_id", booking.ID).Msg("failed to resync credential")

			res.Failed++
		case out.Skipped, len(out.Locks) == 0:
			res.Skipped++
		case out.Degraded():
			res.Failed++
		default:
			res.Succeeded++
		}
	}

	return res, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CheckLockHealth reports offline and low battery locks as events.
func (s *serviceImpl) CheckLockHealth(ctx context.Context) (res dto.JobResult, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelJobScopeName, constant.OtelJobScopeName+".CheckLockHealth")
	defer scope.End()
	defer scope.TraceIfError(&err)

	res = start(dto.JobLockHealth)
	defer s.finish(ctx, &res)

	locks, err := s.credentials.LockStatuses(ctx)
	if failure.GetCode(err) == http.StatusBadRequest {
		res.NotRunReason = err.Error()

		return res, nil
	}

	if err != nil {
		return res, err //nolint:wrapcheck
	}

	res.Scanned = len(locks)

	for _, lock := range locks {
		if lock.Healthy {
			res.Succeeded++

			continue
		}

		res.Failed++

		log.Warn().Str("job", res.Job).Str("room_id", lock.RoomID).Str("lock_id", lock.LockID).
			Bool("online", lock.Online).Int("battery_level", lock.BatteryLevel).Str("error", lock.Error).
			Msg("lock unhealthy")

		s.publisher.Publish(ctx, events.Event{
			Type:   events.TypeLockUnhealthy,
			RoomID: lock.RoomID,
			Data: map[string]any{
				"room_name":     lock.RoomName,
				"lock_id":       lock.LockID,
				"role":          lock.Role,
				"online":        lock.Online,
				"battery_level": lock.BatteryLevel,
				"error":         lock.Error,
			},
		})
	}

	return res, nil
}

func start(job string) dto.JobResult {
	return dto.JobResult{Job: job, StartedAt: timezone.Now()}
}

func (s *serviceImpl) finish(ctx context.Context, res *dto.JobResult) {
	res.Duration = time.Since(res.StartedAt)

	log.Info().Str("job", res.Job).Fields(res.Fields()).Msg("reconciliation job finished")

	data := res.Fields()
	data["job"] = res.Job

	s.publisher.Publish(ctx, events.Event{Type: events.TypeReconciliationComplete, Data: data})
}

func distinctBookings(rows []credentialModel.BookingCredential) []string {
	seen := make(map[string]struct{}, len(rows))
	ids := make([]string, 0, len(rows))

	for _, row := range rows {
		if _, ok := seen[row.BookingID]; ok {
			continue
		}

		seen[row.BookingID] = struct{}{}
		ids = append(ids, row.BookingID)
	}

	return ids
}

// byIDs expects a non-empty ids slice.
func byIDs(ids []string) gDto.FilterGroup {
	return gDto.FilterGroup{
		Filters: []any{gDto.Filter{Field: fieldID, Value: ids, Operator: gDto.FilterOperatorIn}},
	}
}

func olderThan(field, table string, cutoff time.Time) gDto.FilterGroup {
	return gDto.FilterGroup{
		Filters: []any{gDto.Filter{Field: field, Value: cutoff, Operator: gDto.FilterOperatorLess, Table: table}},
	}
}
