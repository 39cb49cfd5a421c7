package testutil

import (
	"testing"

	"vfs-go/internal/database"
)

// NewTestDatabase creates a new in-memory SQLite database with the schema
// and seed data applied. The database is closed when the test completes.
func NewTestDatabase(t *testing.T) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}
