package event

import (
	"net/http"

	"roomkey/infras/otel"
	"roomkey/infras/websocket"
	"roomkey/shared/constant"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

type Handler struct {
	hub  *websocket.Hub
	otel otel.Otel
}

func New(hub *websocket.Hub, otel otel.Otel) Handler {
	return Handler{
		hub:  hub,
		otel: otel,
	}
}

func (handler *Handler) Router(router chi.Router) {
	router.Get("/admin/events", handler.Stream)
}

// Stream upgrades to a websocket that receives every booking, credential and reconciliation event.
// @Summary Stream domain events
// @Description Browsers may pass the bearer token as the access_token query parameter.
// @Tags Event
// @Param access_token query string false "Bearer token"
// @Success 101 "Switching protocols"
// @Failure 401 {object} response.Error
// @Failure 403 {object} response.Error
// @Router /v1/admin/events [get]
// @Security BearerAuth
func (handler *Handler) Stream(writer http.ResponseWriter, request *http.Request) {
	_, scope := handler.otel.NewScope(request.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".Stream")
	defer scope.End()

	if err := handler.hub.Serve(writer, request); err != nil {
		// The upgrader has already written the error response.
		scope.TraceError(err)
		log.Warn().Err(err).Msg("failed to upgrade event stream")

		return
	}

	scope.SetAttribute("ws.clients", handler.hub.ClientCount())
}
