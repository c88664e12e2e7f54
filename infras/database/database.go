package database

import (
	"context"
	"database/sql"
	"fmt"

	"roomkey/config"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// Connection is the read/write pool pair every repository is built on.
type Connection struct {
	Read   *sqlx.DB
	Write  *sqlx.DB
	Driver string
}

// Transactor runs fn inside one write transaction.
type Transactor interface {
	WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

func (c *Connection) IsPostgres() bool {
	return c.Driver == config.DriverPostgres
}

// WithTx commits when fn returns nil and rolls back on error or panic.
func (c *Connection) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	var opts *sql.TxOptions
	if c.IsPostgres() {
		opts = &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	}

	tx, err := c.Write.BeginTxx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error().Err(rbErr).Msg("failed to rollback transaction after panic")
			}

			panic(recovered)
		}

		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error().Err(rbErr).Msg("failed to rollback transaction")
			}

			return
		}

		if err = tx.Commit(); err != nil {
			err = fmt.Errorf("failed to commit transaction: %w", err)
		}
	}()

	return fn(tx)
}

func (c *Connection) Close() {
	if c.Read != nil && c.Read != c.Write {
		if err := c.Read.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close read connection")
		}
	}

	if c.Write != nil {
		if err := c.Write.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close write connection")
		}
	}
}
