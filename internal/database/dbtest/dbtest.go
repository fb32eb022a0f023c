// Package dbtest opens throwaway SQLite-backed repositories for tests.
package dbtest

import (
	"io"
	"log/slog"
	"testing"

	"staffduty/internal/database"
)

// Open returns a migrated in-memory database closed at test cleanup
func Open(t testing.TB) *database.DB {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, ":memory:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// Repository returns a repository over a fresh in-memory database
func Repository(t testing.TB) *database.Repository {
	t.Helper()
	return database.NewRepository(Open(t))
}
