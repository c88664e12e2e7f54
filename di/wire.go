//go:build wireinject
// +build wireinject

package di

import (
	"roomkey/config"
	"roomkey/infras/database"
	"roomkey/infras/jwt"
	"roomkey/infras/lockgateway"
	"roomkey/infras/otel"
	"roomkey/infras/queue"
	"roomkey/infras/redis"
	"roomkey/infras/s3"
	"roomkey/infras/websocket"
	"roomkey/internal/events"
	"roomkey/permissions"
	"roomkey/shared/cache"
	"roomkey/transport/http"
	"roomkey/transport/http/middleware"
	"roomkey/transport/http/router"

	blockRepository "roomkey/internal/domains/block/repository"
	blockService "roomkey/internal/domains/block/service"
	bookingRepository "roomkey/internal/domains/booking/repository"
	bookingService "roomkey/internal/domains/booking/service"
	credentialRepository "roomkey/internal/domains/credential/repository"
	credentialService "roomkey/internal/domains/credential/service"
	"roomkey/internal/domains/reconciliation/scheduler"
	reconciliationService "roomkey/internal/domains/reconciliation/service"
	roomRepository "roomkey/internal/domains/room/repository"
	roomService "roomkey/internal/domains/room/service"

	blockHandler "roomkey/internal/handlers/block"
	bookingHandler "roomkey/internal/handlers/booking"
	eventHandler "roomkey/internal/handlers/event"
	lockHandler "roomkey/internal/handlers/lock"
	reconciliationHandler "roomkey/internal/handlers/reconciliation"
	roomHandler "roomkey/internal/handlers/room"

	"github.com/google/wire"
)

var configurations = wire.NewSet(
	config.Get,
	permissions.Get,
)

var infrastructures = wire.NewSet(
	provideDatabase,
	wire.Bind(new(database.Transactor), new(*database.Connection)),
	otel.New,
	redis.New,
	jwt.New,
	lockgateway.New,
	queue.NewClient,
	queue.NewWorker,
	s3.New,
	websocket.NewHub,
)

var middlewares = wire.NewSet(
	middleware.NewAppMiddleware,
	middleware.NewAuthRoleMiddleware,
)

var sharedHelpers = wire.NewSet(
	cache.NewRedisCache,
	events.NewProducer,
	events.New,
)

var roomDomain = wire.NewSet(
	roomRepository.New,
	roomService.New,
)

var blockDomain = wire.NewSet(
	blockRepository.New,
	blockService.New,
)

var bookingDomain = wire.NewSet(
	bookingRepository.New,
	bookingService.New,
)

var credentialDomain = wire.NewSet(
	credentialRepository.New,
	credentialService.New,
)

var reconciliationDomain = wire.NewSet(
	reconciliationService.New,
	scheduler.New,
)

var domains = wire.NewSet(
	roomDomain,
	blockDomain,
	bookingDomain,
	credentialDomain,
	reconciliationDomain,
)

var routing = wire.NewSet(
	wire.Struct(new(router.DomainHandlers), "*"),
	roomHandler.New,
	bookingHandler.New,
	blockHandler.New,
	lockHandler.New,
	eventHandler.New,
	reconciliationHandler.New,
	router.New,
)

func InitializeApp() *App {
	wire.Build(
		configurations,
		infrastructures,
		middlewares,
		sharedHelpers,
		domains,
		routing,
		http.New,
		wire.Struct(new(App), "*"),
	)

	return &App{}
}
