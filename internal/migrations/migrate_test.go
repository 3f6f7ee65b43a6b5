package migrations_test

import (
	"path/filepath"
	"testing"

	"github.com/u4rad/campcost/internal/db"
	"github.com/u4rad/campcost/internal/migrations"
)

func TestUpIsRepeatableAndSeedsCounter(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	defer database.Close()

	for i := 0; i < 2; i++ {
		if err := migrations.Up(database); err != nil {
			t.Fatalf("run migrations (pass %d): %v", i+1, err)
		}
	}

	v, err := migrations.Version(database)
	if err != nil {
		t.Fatalf("read version: %v", err)
	}
	if v != 1 {
		t.Fatalf("expected schema version 1, got %d", v)
	}

	var counter int
	if err := database.QueryRow(`SELECT value FROM billing_counter WHERE id = 1`).Scan(&counter); err != nil {
		t.Fatalf("read billing counter: %v", err)
	}
	if counter != 0 {
		t.Fatalf("expected counter to start at 0, got %d", counter)
	}
}
