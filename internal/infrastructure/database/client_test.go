package database

import (
	"context"
	"errors"
	"testing"
)

func TestConnString(t *testing.T) {
	tests := []struct {
		url, token, want string
	}{
		{"file:abcsmc.db", "secret", "file:abcsmc.db"},
		{"libsql://db.turso.io", "", "libsql://db.turso.io"},
		{"libsql://db.turso.io", "a b", "libsql://db.turso.io?authToken=a+b"},
		{"https://db.turso.io?tls=1", "tok", "https://db.turso.io?tls=1&authToken=tok"},
	}
	for _, tt := range tests {
		if got := ConnString(tt.url, tt.token); got != tt.want {
			t.Errorf("ConnString(%q, %q) = %q, want %q", tt.url, tt.token, got, tt.want)
		}
	}
}

func TestWithRetry(t *testing.T) {
	ctx := context.Background()
	attempts := 0
	got, err := WithRetry(ctx, 3, func() (int, error) {
		attempts++
		if attempts < 3 {
			return 0, errors.New("hrana: stream not found")
		}
		return 42, nil
	})
	if err != nil || got != 42 || attempts != 3 {
		t.Fatalf("expected 42 after 3 attempts, got %d after %d (err %v)", got, attempts, err)
	}

	attempts = 0
	_, err = WithRetry(ctx, 3, func() (int, error) {
		attempts++
		return 0, errors.New("constraint failed")
	})
	if err == nil || attempts != 1 {
		t.Fatalf("expected single attempt for non-stream error, got %d", attempts)
	}
}

func TestNew_LocalFile(t *testing.T) {
	c, err := New("file:"+t.TempDir()+"/test.db", "")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	var fk int
	if err := c.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("failed to read pragma: %v", err)
	}
	if fk != 1 {
		t.Errorf("expected foreign keys enabled, got %d", fk)
	}
}
