package cli

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/emiliopalmerini/abcsmc/internal/adapters/turso"
	"github.com/emiliopalmerini/abcsmc/internal/migrate"
)

// testDB creates an in-memory SQLite database with all migrations applied.
// This is fast and suitable for most unit/integration tests.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := sql.Open("libsql", "file:"+name+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}
	if err := migrate.RunAll(context.Background(), db); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })
	return db
}

// testRemoteDB connects to the libsql server at ABCSMC_TEST_LIBSQL_URL for
// full integration testing, e.g. a local ghcr.io/tursodatabase/libsql-server
// container. The test is skipped when the variable is unset or in short mode.
func testRemoteDB(t *testing.T) *sql.DB {
	t.Helper()

	url := os.Getenv("ABCSMC_TEST_LIBSQL_URL")
	if url == "" || testing.Short() {
		t.Skip("ABCSMC_TEST_LIBSQL_URL not set")
	}
	db, err := sql.Open("libsql", url)
	if err != nil {
		t.Fatalf("Failed to connect to libsql server: %v", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to ping libsql server: %v", err)
	}
	if err := migrate.RunAll(context.Background(), db); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// testDBType specifies which database backend to use for tests
type testDBType int

const (
	// DBTypeMemory uses in-memory SQLite (fast, for most tests)
	DBTypeMemory testDBType = iota
	// DBTypeRemote uses a running libsql server (slower, for full integration)
	DBTypeRemote
)

func testRepo(t *testing.T, dbType testDBType) *turso.HistoryRepository {
	t.Helper()
	switch dbType {
	case DBTypeRemote:
		return turso.NewHistoryRepository(testRemoteDB(t))
	default:
		return turso.NewHistoryRepository(testDB(t))
	}
}
