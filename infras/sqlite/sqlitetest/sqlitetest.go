// Package sqlitetest opens migrated throwaway databases for repository and service tests.
package sqlitetest

import (
	"path/filepath"
	"testing"

	"roomkey/infras/database"
	"roomkey/infras/sqlite"
)

const (
	StudioA = "6b0f8a52-2f4e-4c1d-9a57-1f3c2d6e8b01"
	StudioB = "6b0f8a52-2f4e-4c1d-9a57-1f3c2d6e8b02"
	Hall    = "6b0f8a52-2f4e-4c1d-9a57-1f3c2d6e8b03"
)

// NewConnection returns a seeded database in a temp dir that is closed when the test ends.
func NewConnection(t testing.TB) *database.Connection {
	t.Helper()

	conn, err := sqlite.Open(filepath.Join(t.TempDir(), "roomkey.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	if err := sqlite.Migrate(conn.Write); err != nil {
		conn.Close()
		t.Fatalf("migrate sqlite: %v", err)
	}

	t.Cleanup(conn.Close)

	return conn
}
