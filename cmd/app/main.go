package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roomkey/config"
	"roomkey/di"
	"roomkey/infras/queue"
	"roomkey/shared/logger"
	"roomkey/shared/timezone"

	"github.com/rs/zerolog/log"
)

const stopTimeout = 30 * time.Second

// @title RoomKey API
// @version 1.0
// @description Studio room booking with smart-lock door codes.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg := config.Get()

	logger.InitLogger(cfg)
	timezone.Init(cfg.App.Timezone)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := di.InitializeApp()

	go app.Hub.Run(ctx)

	app.Worker.HandleFunc(queue.TypeCredentialResync, app.Credentials.HandleResyncTask)

	if err := app.Worker.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start task worker")
	}

	if err := app.Scheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start reconciliation scheduler")
	}

	serverErr := make(chan error, 1)

	go func() {
		serverErr <- app.HTTP.Serve()
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server stopped")
		}
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received.")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	app.HTTP.Shutdown(shutdownCtx)
	app.Scheduler.Stop(shutdownCtx)
	app.Worker.Shutdown()
	app.Close(shutdownCtx)

	log.Info().Msg("Service stopped.")
}
