package migrate_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"testing/fstest"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/emiliopalmerini/abcsmc/internal/migrate"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("libsql", "file::memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		t.Fatalf("failed to query sqlite_master: %v", err)
	}
	return n == 1
}

func TestSplitSQL(t *testing.T) {
	got := migrate.SplitSQL("CREATE TABLE a (x INT);\n\n  ;CREATE TABLE b (y INT);  ")
	if len(got) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(got), got)
	}
	if got[1] != "CREATE TABLE b (y INT)" {
		t.Errorf("unexpected statement %q", got[1])
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	if err := migrate.RunAll(ctx, db); err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}
	for _, table := range []string{"abc_smc", "populations", "models", "particles", "parameters", "samples", "summary_statistics"} {
		if !tableExists(t, db, table) {
			t.Errorf("expected table %s to exist", table)
		}
	}

	// Running again is a no-op.
	n, err := migrate.New(db, nil).Up(ctx)
	if err != nil {
		t.Fatalf("second Up failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 migrations on second run, got %d", n)
	}
}

func testMigrator(db *sql.DB) *migrate.Migrator {
	m := migrate.New(db, nil)
	m.FS = fstest.MapFS{
		"001_a.up.sql":   {Data: []byte("CREATE TABLE a (x INTEGER);")},
		"001_a.down.sql": {Data: []byte("DROP TABLE a;")},
		"002_b.up.sql":   {Data: []byte("CREATE TABLE b (y INTEGER);")},
		"002_b.down.sql": {Data: []byte("DROP TABLE b;")},
		"003_c.up.sql":   {Data: []byte("CREATE TABLE c (z INTEGER);")},
		"README.md":      {Data: []byte("ignored")},
	}
	return m
}

func TestMigrator_UpAndDown(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	m := testMigrator(db)

	migs, err := m.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(migs) != 3 || migs[2].DownSQL != "" {
		t.Fatalf("unexpected migrations: %+v", migs)
	}

	n, err := m.UpTo(ctx, 2)
	if err != nil {
		t.Fatalf("UpTo failed: %v", err)
	}
	if n != 2 || !tableExists(t, db, "b") || tableExists(t, db, "c") {
		t.Fatalf("expected tables a and b only, applied %d", n)
	}

	version, dirty, err := m.Version(ctx)
	if err != nil || version != 2 || dirty {
		t.Fatalf("expected clean version 2, got %d dirty=%v err=%v", version, dirty, err)
	}

	if _, err := m.DownTo(ctx, 0); err != nil {
		t.Fatalf("DownTo failed: %v", err)
	}
	if tableExists(t, db, "a") {
		t.Error("expected table a to be dropped")
	}
	version, _, _ = m.Version(ctx)
	if version != 0 {
		t.Errorf("expected version 0, got %d", version)
	}

	if _, err := m.Up(ctx); err != nil {
		t.Fatalf("Up failed: %v", err)
	}
	if _, err := m.DownTo(ctx, 0); err == nil {
		t.Error("expected error for missing down migration")
	}
}

func TestMigrator_Dirty(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	m := testMigrator(db)
	m.FS.(fstest.MapFS)["002_b.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE b (y INTEGER); NOT SQL")}

	if _, err := m.Up(ctx); err == nil {
		t.Fatal("expected failing migration")
	}
	if _, err := m.Up(ctx); !errors.Is(err, migrate.ErrDirty) {
		t.Fatalf("expected ErrDirty, got %v", err)
	}

	if err := m.Force(ctx, 1); err != nil {
		t.Fatalf("Force failed: %v", err)
	}
	version, dirty, err := m.Version(ctx)
	if err != nil || version != 1 || dirty {
		t.Fatalf("expected clean version 1, got %d dirty=%v err=%v", version, dirty, err)
	}
}
