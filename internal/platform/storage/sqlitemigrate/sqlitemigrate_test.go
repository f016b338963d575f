package sqlitemigrate

import (
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return sqlDB
}

func TestApplyRunsInOrderOnce(t *testing.T) {
	migrations := fstest.MapFS{
		"0002_add_column.sql": {Data: []byte("ALTER TABLE things ADD COLUMN label TEXT;")},
		"0001_create.sql":     {Data: []byte("CREATE TABLE things (id TEXT PRIMARY KEY);")},
	}
	sqlDB := openTestDB(t)

	if err := Apply(sqlDB, migrations); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if _, err := sqlDB.Exec("INSERT INTO things (id, label) VALUES ('a', 'b')"); err != nil {
		t.Fatalf("expected migrated schema, got %v", err)
	}

	// Second run must be a no-op.
	if err := Apply(sqlDB, migrations); err != nil {
		t.Fatalf("re-apply migrations: %v", err)
	}

	var count int
	if err := sqlDB.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 recorded migrations, got %d", count)
	}
}

func TestApplyToleratesAlreadyExists(t *testing.T) {
	sqlDB := openTestDB(t)
	if _, err := sqlDB.Exec("CREATE TABLE things (id TEXT PRIMARY KEY)"); err != nil {
		t.Fatalf("seed table: %v", err)
	}

	migrations := fstest.MapFS{
		"0001_create.sql": {Data: []byte("CREATE TABLE things (id TEXT PRIMARY KEY);")},
	}
	if err := Apply(sqlDB, migrations); err != nil {
		t.Fatalf("apply migrations over existing table: %v", err)
	}
}

func TestApplyRejectsBrokenSQL(t *testing.T) {
	sqlDB := openTestDB(t)
	migrations := fstest.MapFS{
		"0001_broken.sql": {Data: []byte("CREATE TABE nope;")},
	}
	if err := Apply(sqlDB, migrations); err == nil {
		t.Fatal("expected error for broken migration")
	}
}
