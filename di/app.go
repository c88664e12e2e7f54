package di

import (
	"context"

	"roomkey/config"
	"roomkey/infras/database"
	"roomkey/infras/kafka"
	"roomkey/infras/otel"
	"roomkey/infras/postgres"
	"roomkey/infras/queue"
	"roomkey/infras/sqlite"
	"roomkey/infras/websocket"
	credentialService "roomkey/internal/domains/credential/service"
	"roomkey/internal/domains/reconciliation/scheduler"
	"roomkey/transport/http"

	"github.com/rs/zerolog/log"
)

// App is every long-running part of the service. cmd/app starts and stops them together.
type App struct {
	HTTP        *http.HTTP
	Scheduler   *scheduler.Scheduler
	Worker      *queue.Worker
	Hub         *websocket.Hub
	Credentials credentialService.Manager
	Queue       queue.Client
	Producer    kafka.Producer
	DB          *database.Connection
	Otel        otel.Otel
}

// Close releases the outbound clients. Servers are stopped by their own Shutdown.
func (a *App) Close(ctx context.Context) {
	if err := a.Queue.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close queue client")
	}

	if a.Producer != nil {
		if err := a.Producer.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close kafka producer")
		}
	}

	a.DB.Close()

	otel.Shutdown(ctx, a.Otel)
}

// provideDatabase opens the store selected by DB_DRIVER.
func provideDatabase(cfg *config.Config) *database.Connection {
	if cfg.DB.Driver == config.DriverSQLite {
		return sqlite.New(cfg)
	}

	return postgres.New(cfg)
}
