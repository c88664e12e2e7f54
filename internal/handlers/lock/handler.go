package lock

import (
	"net/http"
	"time"

	"roomkey/infras/otel"
	"roomkey/internal/domains/credential/model/dto"
	"roomkey/internal/domains/credential/service"
	"roomkey/shared/constant"
	"roomkey/shared/failure"
	"roomkey/shared/slot"
	"roomkey/shared/timezone"
	"roomkey/transport/http/response"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

const defaultAccessLogWindow = 24 * time.Hour

type Handler struct {
	service service.Manager
	otel    otel.Otel
}

func New(service service.Manager, otel otel.Otel) Handler {
	return Handler{
		service: service,
		otel:    otel,
	}
}

func (handler *Handler) Router(router chi.Router) {
	router.Get("/admin/locks/status", handler.GetLockStatuses)
	router.Get("/admin/rooms/{id}/access-logs", handler.GetAccessLogs)
	router.Post("/admin/bookings/{id}/resync", handler.ResyncBooking)
}

// GetLockStatuses reports connectivity and battery of every attached lock.
// @Summary Get lock statuses
// @Tags Lock
// @Produce json
// @Success 200 {object} response.Data[[]dto.LockHealth] "Lock statuses"
// @Failure 400 {object} response.Error "Lock gateway not configured"
// @Failure 500 {object} response.Error
// @Router /v1/admin/locks/status [get]
// @Security BearerAuth
func (handler *Handler) GetLockStatuses(writer http.ResponseWriter, request *http.Request) {
	ctx, scope := handler.otel.NewScope(request.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".GetLockStatuses")
	defer scope.End()

	statuses, err := handler.service.LockStatuses(ctx)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to get lock statuses")

		response.WithError(writer, err)

		return
	}

	if statuses == nil {
		statuses = []dto.LockHealth{}
	}

	response.WithJSON(writer, http.StatusOK, statuses)
}

// GetAccessLogs returns the unlock history of a room's locks.
// @Summary Get room access logs
// @Description from and to accept RFC3339 instants or dates; the default window is the last 24 hours.
// @Tags Lock
// @Produce json
// @Param id path string true "Room ID"
// @Param from query string false "Window start"
// @Param to query string false "Window end"
// @Success 200 {object} response.Data[dto.AccessLogResponse] "Access events, oldest first"
// @Failure 400 {object} response.Error
// @Failure 404 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/admin/rooms/{id}/access-logs [get]
// @Security BearerAuth
func (handler *Handler) GetAccessLogs(writer http.ResponseWriter, request *http.Request) {
	ctx, scope := handler.otel.NewScope(request.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".GetAccessLogs")
	defer scope.End()

	to, err := parseInstant(request.URL.Query().Get(constant.RequestParamTo), timezone.Now())
	if err != nil {
		response.WithError(writer, err)

		return
	}

	from, err := parseInstant(request.URL.Query().Get(constant.RequestParamFrom), to.Add(-defaultAccessLogWindow))
	if err != nil {
		response.WithError(writer, err)

		return
	}

	roomID := chi.URLParam(request, constant.RequestParamID)

	logs, err := handler.service.AccessLog(ctx, roomID, from, to)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to get access logs")

		response.WithError(writer, err)

		return
	}

	response.WithJSON(writer, http.StatusOK, logs)
}

// ResyncBooking overwrites the lock credentials of one booking with its stored code.
// @Summary Resync a booking's door code
// @Tags Lock
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Data[dto.ResyncResponse] "Per-lock outcome"
// @Failure 404 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/admin/bookings/{id}/resync [post]
// @Security BearerAuth
func (handler *Handler) ResyncBooking(writer http.ResponseWriter, request *http.Request) {
	ctx, scope := handler.otel.NewScope(request.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".ResyncBooking")
	defer scope.End()

	id := chi.URLParam(request, constant.RequestParamID)

	out, err := handler.service.Resync(ctx, id)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Str("booking_id", id).Msg("failed to resync booking")

		response.WithError(writer, err)

		return
	}

	res := dto.ResyncResponse{}
	res.FromOutcome(id, out)

	response.WithJSON(writer, http.StatusOK, res)
}

func parseInstant(value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}

	if instant, err := time.Parse(constant.DateFormat, value); err == nil {
		return instant, nil
	}

	date, err := slot.ParseDate(value)
	if err != nil {
		return time.Time{}, failure.BadRequestFromString("invalid time " + value)
	}

	return slot.Instant(date, 0, timezone.GetLocation()), nil
}
