package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

func TestOpenMemoryKeepsOneConnection(t *testing.T) {
	database, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	defer database.Close()

	if got := database.Stats().MaxOpenConnections; got != 1 {
		t.Fatalf("expected 1 max open connection, got %d", got)
	}

	if _, err := database.Exec(`CREATE TABLE t (id INTEGER PRIMARY KEY)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	var n int
	if err := database.QueryRow(`SELECT COUNT(*) FROM t`).Scan(&n); err != nil {
		t.Fatalf("table not visible on the pooled connection: %v", err)
	}

	var fk int
	if err := database.QueryRow(`PRAGMA foreign_keys`).Scan(&fk); err != nil || fk != 1 {
		t.Fatalf("expected foreign keys on, got %d (%v)", fk, err)
	}
}

func TestOpenConfiguresEveryConnection(t *testing.T) {
	database, err := Open(filepath.Join(t.TempDir(), "camp.db"))
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	defer database.Close()

	// Holding both connections forces the pool to dial a second one.
	ctx := context.Background()
	conns := make([]*sql.Conn, 2)
	for i := range conns {
		conn, err := database.Conn(ctx)
		if err != nil {
			t.Fatalf("conn %d: %v", i, err)
		}
		defer conn.Close()
		conns[i] = conn
	}

	for i, conn := range conns {
		var fk, timeout int
		if err := conn.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&fk); err != nil {
			t.Fatalf("conn %d foreign_keys: %v", i, err)
		}
		if err := conn.QueryRowContext(ctx, `PRAGMA busy_timeout`).Scan(&timeout); err != nil {
			t.Fatalf("conn %d busy_timeout: %v", i, err)
		}
		if fk != 1 || timeout != 5000 {
			t.Fatalf("conn %d: foreign_keys=%d busy_timeout=%d", i, fk, timeout)
		}
	}
}

func TestDSN(t *testing.T) {
	const pragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	tests := []struct {
		path string
		want string
	}{
		{path: "./dev.db", want: "./dev.db?" + pragmas},
		{path: "file:test?mode=memory&cache=shared", want: "file:test?mode=memory&cache=shared&" + pragmas},
	}
	for _, tt := range tests {
		if got := dsn(tt.path); got != tt.want {
			t.Errorf("dsn(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestIsMemory(t *testing.T) {
	tests := map[string]bool{
		":memory:":                           true,
		"file:test?mode=memory&cache=shared": true,
		"./dev.db":                           false,
	}
	for path, want := range tests {
		if got := isMemory(path); got != want {
			t.Errorf("isMemory(%q) = %v, want %v", path, got, want)
		}
	}
}
