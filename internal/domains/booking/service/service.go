package service

//go:generate go run go.uber.org/mock/mockgen -source=./service.go -destination=../mocks/service_mock.go -package=mocks -mock_names=Booking=MockBookingService

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"roomkey/config"
	"roomkey/infras/database"
	"roomkey/infras/otel"
	blockModel "roomkey/internal/domains/block/model"
	blockRepo "roomkey/internal/domains/block/repository"
	"roomkey/internal/domains/booking/model"
	"roomkey/internal/domains/booking/model/dto"
	"roomkey/internal/domains/booking/repository"
	credential "roomkey/internal/domains/credential/service"
	roomModel "roomkey/internal/domains/room/model"
	roomRepo "roomkey/internal/domains/room/repository"
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

var (
	ErrSlotBooked  = &failure.Failure{Code: http.StatusBadRequest, Message: "slot already booked"}
	ErrSlotBlocked = &failure.Failure{Code: http.StatusBadRequest, Message: "slot blocked"}

	ErrAlreadyCancelled = &failure.Failure{Code: http.StatusBadRequest, Message: "booking is already cancelled"}
)

type Booking interface {
	Create(ctx context.Context, req dto.CreateBookingRequest) (dto.BookingResponse, error)
	Cancel(ctx context.Context, id string) error
	CancelUserBookings(ctx context.Context, userID string) (dto.CancelUserBookingsResponse, error)
	Availability(ctx context.Context, roomID, date string) (dto.AvailabilityResponse, error)
	GetAll(ctx context.Context, params gDto.QueryParams, req dto.ListBookingsRequest) (dto.GetBookingsResponse, error)
	Count(ctx context.Context, params gDto.QueryParams, filter gDto.FilterGroup) (int, error)
	Get(ctx context.Context, id string) (dto.BookingResponse, error)
}

type serviceImpl struct {
	repo        repository.Booking
	roomRepo    roomRepo.Room
	blockRepo   blockRepo.BlockedSlot
	credentials credential.Manager
	db          database.Transactor
	publisher   events.Publisher
	cfg         *config.Config
	cache       cache.RedisCache
	otel        otel.Otel
}

func New(
	repo repository.Booking,
	roomRepo roomRepo.Room,
	blockRepo blockRepo.BlockedSlot,
	credentials credential.Manager,
	db database.Transactor,
	publisher events.Publisher,
	cfg *config.Config,
	cache cache.RedisCache,
	otel otel.Otel,
) Booking {
	return &serviceImpl{
		repo:        repo,
		roomRepo:    roomRepo,
		blockRepo:   blockRepo,
		credentials: credentials,
		db:          db,
		publisher:   publisher,
		cfg:         cfg,
		cache:       cache,
		otel:        otel,
	}
}

// Create commits the booking only if no confirmed booking or blocked slot overlaps it. The conflict check runs
// inside the write transaction against freshly read rows, then the lock credential is provisioned after commit.
func (s *serviceImpl) Create(ctx context.Context, req dto.CreateBookingRequest) (res dto.BookingResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".booking.Create")
	defer scope.End()
	defer scope.TraceIfError(&err)

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)

	interval, err := slot.Parse(req.StartTime, req.EndTime)
	if err != nil {
		return res, failure.BadRequest(err) // nolint:wrapcheck
	}

	if !interval.Within(s.cfg.Booking.OpenHour, s.cfg.Booking.CloseHour) {
		return res, failure.BadRequest(slot.ErrOutsideHours) // nolint:wrapcheck
	}

	date, err := slot.ParseDate(req.Date)
	if err != nil {
		return res, failure.BadRequest(err) // nolint:wrapcheck
	}

	if !slot.Instant(date, interval.Start, timezone.GetLocation()).After(timezone.Now()) {
		return res, failure.BadRequestFromString("booking must start in the future") // nolint:wrapcheck
	}

	room, err := s.roomRepo.Get(ctx, shared.FilterByID(req.RoomID, roomModel.FieldID, roomModel.TableName))
	if err != nil {
		log.Error().Err(err).Msg("failed to get room")

		return res, fmt.Errorf("failed to get room: %w", err)
	}

	if room.ID == constant.Empty {
		return res, failure.BadRequestFromString("room does not exist") // nolint:wrapcheck
	}

	booking := req.ToModel(interval, date, room.Price(interval), user)

	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.roomRepo.LockTx(ctx, tx, room.ID); err != nil {
			return err //nolint:wrapcheck
		}

		if err := s.checkConflicts(ctx, tx, room.ID, date, interval); err != nil {
			return err
		}

		return s.repo.InsertTx(ctx, tx, booking)
	})

	switch {
	case errors.Is(err, ErrSlotBooked), errors.Is(err, ErrSlotBlocked):
		log.Info().Str("room_id", room.ID).Str("date", req.Date).Str("slot", interval.String()).Msg(err.Error())

		return res, err
	case repository.IsOverlapViolation(err):
		log.Info().Str("room_id", room.ID).Str("date", req.Date).Str("slot", interval.String()).Msg("overlap rejected by constraint")

		return res, ErrSlotBooked
	case err != nil:
		log.Error().Err(err).Str("room_id", room.ID).Msg("failed to create booking")

		return res, fmt.Errorf("failed to create booking: %w", err)
	}

	log.Info().Str("booking_id", booking.ID).Str("room_id", room.ID).Str("date", req.Date).Str("slot", interval.String()).Msg("booking created")

	s.provision(ctx, &booking, room)

	s.publisher.Publish(ctx, events.Event{
		Type:      events.TypeBookingCreated,
		BookingID: booking.ID,
		RoomID:    booking.RoomID,
		UserID:    booking.UserID,
		Data: map[string]any{
			"date":               req.Date,
			"start_time":         slot.FormatHour(booking.StartHour),
			"end_time":           slot.FormatHour(booking.EndHour),
			"total_price":        booking.TotalPrice,
			"credential_enabled": booking.CredentialEnabled,
		},
	})

	s.invalidate(ctx, booking.ID)

	res.FromModel(booking)

	return res, nil
}

func (s *serviceImpl) checkConflicts(ctx context.Context, tx *sqlx.Tx, roomID string, date time.Time, interval slot.Interval) error {
	bookings, err := s.repo.GetAllTx(ctx, tx, gDto.QueryParams{}, repository.ByRoomDay(roomID, date, model.StatusConfirmed))
	if err != nil {
		return err //nolint:wrapcheck
	}

	for _, existing := range bookings {
		if existing.Interval().Overlaps(interval) {
			return ErrSlotBooked
		}
	}

	blocks, err := s.blockRepo.GetAllTx(ctx, tx, gDto.QueryParams{}, blockRepo.ByRoomDay(roomID, date))
	if err != nil {
		return err //nolint:wrapcheck
	}

	for _, block := range blocks {
		if block.Interval().Overlaps(interval) {
			return ErrSlotBlocked
		}
	}

	return nil
}

// provision never fails the booking. It runs detached from the request under a short budget; whatever the
// gateway did not finish is picked up by the retry queue and the daily resync.
func (s *serviceImpl) provision(ctx context.Context, booking *model.Booking, room roomModel.Room) {
	budget := time.Duration(s.cfg.Lock.ProvisionBudgetSeconds) * time.Second

	provisionCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), budget)
	defer cancel()

	out, err := s.credentials.Provision(provisionCtx, *booking, room)
	if err != nil {
		log.Error().Err(err).Str("booking_id", booking.ID).Msg("failed to provision credential")

		return
	}

	booking.Passcode.String, booking.Passcode.Valid = out.Passcode, out.Passcode != constant.Empty
	booking.CredentialEnabled = out.Enabled
	booking.CredentialStatus = out.Status
}

// Cancel is allowed for the owner and for admins. Credential revocation is best effort: locks that could not be
// cleared are retried by reconciliation.
func (s *serviceImpl) Cancel(ctx context.Context, id string) (err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".booking.Cancel")
	defer scope.End()
	defer scope.TraceIfError(&err)

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)

	booking, err := s.repo.Get(ctx, shared.FilterByID(id, model.FieldID, model.TableName))
	if err != nil {
		log.Error().Err(err).Str("booking_id", id).Msg("failed to get booking")

		return fmt.Errorf("failed to get booking: %w", err)
	}

	if booking.ID == constant.Empty {
		return failure.NotFound("booking not found") // nolint:wrapcheck
	}

	if booking.UserID != user && !isAdmin(ctx) {
		return failure.Forbidden("you can only cancel your own bookings") // nolint:wrapcheck
	}

	if !booking.IsConfirmed() {
		return ErrAlreadyCancelled
	}

	remaining, err := s.cancel(ctx, booking, user)
	if err != nil {
		return err
	}

	log.Info().Str("booking_id", id).Str("cancelled_by", user).Int("credentials_remaining", remaining).Msg("booking cancelled")

	return nil
}

// cancel flips the status only while the booking is still confirmed, so of two racing cancels one loses with
// ErrAlreadyCancelled and nothing after the update runs twice.
func (s *serviceImpl) cancel(ctx context.Context, booking model.Booking, user string) (int, error) {
	affected, err := s.repo.UpdateAffected(ctx, map[string]any{
		model.FieldStatus:        model.StatusCancelled,
		constant.FieldModifiedAt: timezone.Now(),
		constant.FieldModifiedBy: user,
	}, repository.ByIDStatus(booking.ID, model.StatusConfirmed))
	if err != nil {
		log.Error().Err(err).Str("booking_id", booking.ID).Msg("failed to cancel booking")

		return 0, fmt.Errorf("failed to cancel booking: %w", err)
	}

	if affected == 0 {
		return 0, ErrAlreadyCancelled
	}

	booking.Status = model.StatusCancelled

	revoked, err := s.credentials.Revoke(context.WithoutCancel(ctx), booking)
	if err != nil {
		log.Error().Err(err).Str("booking_id", booking.ID).Msg("failed to revoke credential of cancelled booking")
	}

	s.publisher.Publish(ctx, events.Event{
		Type:      events.TypeBookingCancelled,
		BookingID: booking.ID,
		RoomID:    booking.RoomID,
		UserID:    booking.UserID,
		Data: map[string]any{
			"date":         slot.FormatDate(booking.BookingDate),
			"start_time":   slot.FormatHour(booking.StartHour),
			"end_time":     slot.FormatHour(booking.EndHour),
			"cancelled_by": user,
		},
	})

	s.invalidate(ctx, booking.ID)

	return revoked.Remaining, nil
}

// CancelUserBookings cancels every confirmed booking of the user from today on.
func (s *serviceImpl) CancelUserBookings(ctx context.Context, userID string) (res dto.CancelUserBookingsResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".booking.CancelUserBookings")
	defer scope.End()
	defer scope.TraceIfError(&err)

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)

	filter := gDto.FilterGroup{
		Operator: gDto.FilterGroupOperatorAnd,
		Filters: []any{
			gDto.Filter{Field: model.FieldUserID, Value: userID, Operator: gDto.FilterOperatorEq, Table: model.TableName},
			gDto.Filter{Field: model.FieldStatus, Value: model.StatusConfirmed, Operator: gDto.FilterOperatorEq, Table: model.TableName},
			gDto.Filter{
				Field:    model.FieldBookingDate,
				Value:    slot.Day(timezone.Now(), timezone.GetLocation()),
				Operator: gDto.FilterOperatorGreaterEq,
				Table:    model.TableName,
			},
		},
	}

	bookings, err := s.repo.GetAll(ctx, gDto.QueryParams{}, filter)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("failed to get user bookings")

		return res, fmt.Errorf("failed to get user bookings: %w", err)
	}

	res.UserID = userID
	res.Cancelled = make([]string, 0, len(bookings))

	for _, booking := range bookings {
		remaining, cancelErr := s.cancel(ctx, booking, user)
		if errors.Is(cancelErr, ErrAlreadyCancelled) {
			continue
		}

		if cancelErr != nil {
			return res, cancelErr
		}

		res.Cancelled = append(res.Cancelled, booking.ID)
		res.CredentialsRemaining += remaining
	}

	log.Info().Str("user_id", userID).Int("cancelled", len(res.Cancelled)).Msg("user bookings cancelled")

	return res, nil
}

func (s *serviceImpl) Availability(ctx context.Context, roomID, date string) (res dto.AvailabilityResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".booking.Availability")
	defer scope.End()
	defer scope.TraceIfError(&err)

	day, err := slot.ParseDate(date)
	if err != nil {
		return res, failure.BadRequest(err) // nolint:wrapcheck
	}

	key := shared.BuildCacheKey(model.CacheAvailability, roomID, date)

	return cache.Remember(ctx, s.cache, key, s.cfg.Cache.TTL, func() (grid dto.AvailabilityResponse, err error) {
		exist, err := s.roomRepo.Exist(ctx, shared.FilterByID(roomID, roomModel.FieldID, roomModel.TableName))
		if err != nil {
			log.Error().Err(err).Msg("failed to check if room exists")

			return grid, fmt.Errorf("failed to check if room exists: %w", err)
		}

		if !exist {
			return grid, failure.NotFound("room not found") // nolint:wrapcheck
		}

		bookings, err := s.repo.GetAll(ctx, gDto.QueryParams{}, repository.ByRoomDay(roomID, day, model.StatusConfirmed))
		if err != nil {
			log.Error().Err(err).Msg("failed to get bookings")

			return grid, fmt.Errorf("failed to get bookings: %w", err)
		}

		blocks, err := s.blockRepo.GetAll(ctx, gDto.QueryParams{}, blockRepo.ByRoomDay(roomID, day))
		if err != nil {
			log.Error().Err(err).Msg("failed to get blocked slots")

			return grid, fmt.Errorf("failed to get blocked slots: %w", err)
		}

		grid.RoomID = roomID
		grid.Date = slot.FormatDate(day)
		grid.BuildGrid(s.cfg.Booking.OpenHour, s.cfg.Booking.CloseHour, bookingIntervals(bookings), blockIntervals(blocks))

		return grid, nil
	})
}

func bookingIntervals(bookings []model.Booking) []slot.Interval {
	intervals := make([]slot.Interval, len(bookings))
	for i, booking := range bookings {
		intervals[i] = booking.Interval()
	}

	return intervals
}

func blockIntervals(blocks []blockModel.BlockedSlot) []slot.Interval {
	intervals := make([]slot.Interval, len(blocks))
	for i, block := range blocks {
		intervals[i] = block.Interval()
	}

	return intervals
}

func (s *serviceImpl) GetAll(ctx context.Context, params gDto.QueryParams, req dto.ListBookingsRequest) (res dto.GetBookingsResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".booking.GetAll")
	defer scope.End()
	defer scope.TraceIfError(&err)

	filter := req.Filter()
	key := shared.BuildCacheKeyWithQuery(model.CacheGetAllBooking, params, filter)

	return cache.Remember(ctx, s.cache, key, s.cfg.Cache.TTL, func() (page dto.GetBookingsResponse, err error) {
		total, err := s.Count(ctx, params, filter)
		if err != nil {
			return page, err
		}

		models, err := s.repo.GetAll(ctx, params, filter)
		if err != nil {
			log.Error().Err(err).Msg("failed to get bookings")

			return page, fmt.Errorf("failed to get bookings: %w", err)
		}

		page.FromModels(models, total, params.Limit)

		return page, nil
	})
}

func (s *serviceImpl) Count(ctx context.Context, params gDto.QueryParams, filter gDto.FilterGroup) (res int, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".booking.Count")
	defer scope.End()
	defer scope.TraceIfError(&err)

	key := shared.BuildCacheKeyWithQuery(model.CacheCountBooking, params, filter)

	return cache.Remember(ctx, s.cache, key, s.cfg.Cache.TTL, func() (int, error) {
		total, err := s.repo.Count(ctx, filter)
		if err != nil {
			log.Error().Err(err).Msg("failed to count bookings")

			return 0, fmt.Errorf("failed to count bookings: %w", err)
		}

		return total, nil
	})
}

// Get returns the booking to its owner or an admin.
func (s *serviceImpl) Get(ctx context.Context, id string) (res dto.BookingResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".booking.Get")
	defer scope.End()
	defer scope.TraceIfError(&err)

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)

	res, err = cache.Remember(ctx, s.cache, shared.BuildCacheKey(model.CacheGetBooking, id), s.cfg.Cache.TTL, func() (found dto.BookingResponse, err error) {
		booking, err := s.repo.Get(ctx, shared.FilterByID(id, model.FieldID, model.TableName))
		if err != nil {
			log.Error().Err(err).Str("booking_id", id).Msg("failed to get booking")

			return found, fmt.Errorf("failed to get booking: %w", err)
		}

		if booking.ID == constant.Empty {
			return found, failure.NotFound("booking not found") // nolint:wrapcheck
		}

		found.FromModel(booking)

		return found, nil
	})
	if err != nil {
		return res, err
	}

	if res.UserID != user && !isAdmin(ctx) {
		return dto.BookingResponse{}, failure.NotFound("booking not found") // nolint:wrapcheck
	}

	return res, nil
}

func (s *serviceImpl) invalidate(ctx context.Context, id string) {
	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Delete(c, shared.BuildCacheKey(model.CacheGetBooking, id)); err != nil {
			log.Error().Err(err).Msg("failed to delete booking from cache")
		}

		shared.InvalidateCaches(c, s.cache, model.CacheGetAllBooking)
		shared.InvalidateCaches(c, s.cache, model.CacheCountBooking)
		shared.InvalidateCaches(c, s.cache, model.CacheAvailability)
	}()
}

func isAdmin(ctx context.Context) bool {
	role, _ := ctx.Value(constant.ContextKeyUserRole).(string)

	return role == constant.RoleAdmin || role == constant.RoleSuperAdmin
}
