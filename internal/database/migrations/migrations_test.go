package migrations

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestMigrateUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	// Migrate up
	err := MigrateUp(db)
	if err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	// Verify tables were created
	tables := []string{
		"users", "user_groups", "group_members", "projects", "project_resources",
		"resources", "structures", "contents", "properties", "links", "locks",
		"backup_versions", "backup_resources", "publish_history", "operations", "schema_migrations",
	}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s was not created: %v", table, err)
		}
	}
}

func TestCheckDBMigrationStatus_FreshDatabase(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	// Fresh database should need migration
	err := CheckDBMigrationStatus(db)
	if err == nil {
		t.Error("CheckDBMigrationStatus() expected error for fresh database, got nil")
	}

	// Error should mention needing migration
	if err.Error() != "database has no schema version (needs migration)" {
		t.Errorf("CheckDBMigrationStatus() error = %q, want error about needing migration", err.Error())
	}
}

func TestCheckDBMigrationStatus_AfterMigration(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	// Migrate up
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	// Status should be OK now
	err := CheckDBMigrationStatus(db)
	if err != nil {
		t.Errorf("CheckDBMigrationStatus() after migration returned error: %v", err)
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	// Run migration twice
	if err := MigrateUp(db); err != nil {
		t.Fatalf("First MigrateUp() failed: %v", err)
	}

	if err := MigrateUp(db); err != nil {
		t.Errorf("Second MigrateUp() failed: %v (should be idempotent)", err)
	}

	// Status should still be OK
	if err := CheckDBMigrationStatus(db); err != nil {
		t.Errorf("CheckDBMigrationStatus() after double migration returned error: %v", err)
	}
}

func TestForeignKeyConstraints(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}

	// Migrate
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	// A structure entry must point at a resource record of the same view
	_, err := db.Exec(`
		INSERT INTO structures (view, structure_id, resource_id, parent_id, path, state, project_id)
		VALUES (0, 's-1', 'missing-resource', 'root', '/a.txt', 2, 2)
	`)

	if err == nil {
		t.Error("Expected foreign key constraint violation, but insert succeeded")
	}
}

func TestSchema_Seed(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	var name string
	if err := db.QueryRow("SELECT name FROM projects WHERE id = 1").Scan(&name); err != nil {
		t.Fatalf("online project missing: %v", err)
	}
	if name != "Online" {
		t.Errorf("project 1 name = %q, want %q", name, "Online")
	}

	for _, view := range []int{0, 1} {
		var path string
		err := db.QueryRow("SELECT path FROM structures WHERE view = ? AND structure_id = 'root'", view).Scan(&path)
		if err != nil {
			t.Fatalf("root folder missing in view %d: %v", view, err)
		}
		if path != "/" {
			t.Errorf("root path in view %d = %q, want /", view, path)
		}
	}

	var admin bool
	if err := db.QueryRow("SELECT admin FROM users WHERE id = 'admin'").Scan(&admin); err != nil {
		t.Fatalf("admin user missing: %v", err)
	}
	if !admin {
		t.Error("seeded admin user is not an admin")
	}
}

func TestSchema_StructurePathUniquePerView(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	// the root path exists in both views; a second offline "/" must be rejected
	_, err := db.Exec(`INSERT INTO structures (view, structure_id, resource_id, parent_id, path, state, project_id)
		VALUES (0, 'other-root', 'root', '', '/', 0, 1)`)
	if err == nil {
		t.Error("Expected unique constraint violation for duplicate path, but insert succeeded")
	}
}

func TestLatestVersion(t *testing.T) {
	v, err := LatestVersion()
	if err != nil {
		t.Fatalf("LatestVersion() error = %v", err)
	}
	if v < 1 {
		t.Errorf("LatestVersion() = %d, want >= 1", v)
	}
}

// openTestDB opens an in-memory SQLite database for testing.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}

	return db
}
