package router

import (
	"net/http"

	"roomkey/internal/handlers/block"
	"roomkey/internal/handlers/booking"
	"roomkey/internal/handlers/event"
	"roomkey/internal/handlers/lock"
	"roomkey/internal/handlers/reconciliation"
	"roomkey/internal/handlers/room"
	"roomkey/transport/http/middleware"

	"github.com/go-chi/chi/v5"
)

type DomainHandlers struct {
	Room           room.Handler
	Booking        booking.Handler
	Block          block.Handler
	Lock           lock.Handler
	Event          event.Handler
	Reconciliation reconciliation.Handler
}

type Router struct {
	DomainHandlers DomainHandlers
	AuthRole       middleware.AuthRole
}

// SetupRoutes mounts every domain under /v1. Authentication and role checks run on all of them; public
// endpoints opt out through the permissions table.
func (r *Router) SetupRoutes(router chi.Router, health http.HandlerFunc) {
	router.Route("/v1", func(routerGroup chi.Router) {
		routerGroup.Use(r.AuthRole.APIKey, r.AuthRole.Auth, r.AuthRole.RBAC)

		routerGroup.Get("/health", health)

		r.DomainHandlers.Room.Router(routerGroup)
		r.DomainHandlers.Booking.Router(routerGroup)
		r.DomainHandlers.Block.Router(routerGroup)
		r.DomainHandlers.Lock.Router(routerGroup)
		r.DomainHandlers.Event.Router(routerGroup)
		r.DomainHandlers.Reconciliation.Router(routerGroup)
	})
}

func New(domainHandlers DomainHandlers, authRole middleware.AuthRole) Router {
	return Router{
		DomainHandlers: domainHandlers,
		AuthRole:       authRole,
	}
}
