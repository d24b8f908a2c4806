package sqlite

import (
	"database/sql"
	"path/filepath"
	"testing"
)

// OpenTestDB opens a read-write and a read-only handle to a fresh
// database file under the test's temp dir.
func OpenTestDB(t *testing.T) (*sql.DB, *sql.DB, func()) {
	t.Helper()

	file := filepath.Join(t.TempDir(), "test.db")

	dbRW, err := Open(file)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	// the read-only handle needs the file to exist
	if _, err := dbRW.Exec("PRAGMA user_version = 1"); err != nil {
		t.Fatalf("failed to initialize database: %v", err)
	}

	dbRO, err := Open(file, WithReadOnly(true))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	return dbRW, dbRO, func() {
		_ = dbRW.Close()
		_ = dbRO.Close()
	}
}
