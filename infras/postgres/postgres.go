package postgres

//nolint:revive
import (
	"context"
	"fmt"
	"time"

	"roomkey/config"
	"roomkey/helper"
	"roomkey/infras/database"

	"github.com/cenkalti/backoff/v5"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// New opens the primary pool and, when configured, a replica for reads. It exits when the primary is
// unreachable; a missing replica only degrades reads onto the primary.
func New(cfg *config.Config) *database.Connection {
	ctx := context.Background()
	pg := cfg.DB.Postgres

	write, err := Connect(ctx, cfg, "write", pg.Write)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not connect to the primary database")
	}

	if cfg.DB.AutoMigrate {
		if err := helper.Up(cfg); err != nil {
			log.Fatal().Err(err).Msg("Could not migrate postgres database")
		}
	}

	read := write
	if pg.Read.Host != "" {
		replica, err := Connect(ctx, cfg, "read", pg.Read)
		if err != nil {
			log.Error().Err(err).Msg("Replica unavailable, reading from the primary")
		} else {
			read = replica
		}
	}

	return &database.Connection{
		Read:   read,
		Write:  write,
		Driver: config.DriverPostgres,
	}
}

// Connect dials one endpoint, retrying with exponential backoff up to MaxRetry attempts.
func Connect(ctx context.Context, cfg *config.Config, role string, endpoint config.Endpoint) (*sqlx.DB, error) {
	pg := cfg.DB.Postgres
	dsn := endpoint.URL(pg.Prefix, nil)

	logger := log.With().
		Str("role", role).
		Str("host", endpoint.Host).
		Str("db", pg.Prefix+endpoint.Name).
		Logger()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Duration(max(pg.RetryWaitTime, 1)) * time.Second

	attempt := 0

	db, err := backoff.Retry(ctx, func() (*sqlx.DB, error) {
		attempt++

		db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
		if err != nil {
			logger.Warn().Err(err).Int("attempt", attempt).Msg("Failed connecting to database")

			return nil, err //nolint:wrapcheck
		}

		return db, nil
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(uint(max(pg.MaxRetry, 1))))
	if err != nil {
		return nil, fmt.Errorf("connect %s database after %d attempts: %w", role, attempt, err)
	}

	db.SetMaxOpenConns(pg.MaxOpenConns)
	db.SetMaxIdleConns(pg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(pg.ConnMaxLifetime) * time.Second)

	logger.Info().Msg("Connected to database")

	return db, nil
}
