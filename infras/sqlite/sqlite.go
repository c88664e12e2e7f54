package sqlite

//nolint:revive
import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"roomkey/config"
	"roomkey/infras/database"
	"roomkey/migrations"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// Writers take the database lock at BEGIN, so concurrent booking transactions queue instead of deadlocking.
const dsnOptions = "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"

// New opens the single-file store used for development and single-node deployments.
func New(cfg *config.Config) *database.Connection {
	conn, err := Open(cfg.DB.SQLite.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DB.SQLite.Path).Msg("Could not open sqlite database")
	}

	if cfg.DB.AutoMigrate {
		if err := Migrate(conn.Write); err != nil {
			log.Fatal().Err(err).Msg("Could not migrate sqlite database")
		}
	}

	return conn
}

func Open(path string) (*database.Connection, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite3", path+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	log.Info().Str("path", path).Msg("Connected to sqlite database")

	return &database.Connection{Read: db, Write: db, Driver: config.DriverSQLite}, nil
}

// Migrate applies the embedded schema. The migrate instance is not closed because that would close db.
func Migrate(db *sqlx.DB) error {
	driver, err := migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrations.FS, config.DriverSQLite)
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	mig, err := migrate.NewWithInstance("iofs", source, config.DriverSQLite, driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := mig.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
