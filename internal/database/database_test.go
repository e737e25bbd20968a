package database_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"path/filepath"
	"testing"

	"github.com/playperu/detective/internal/database"
)

func TestOpenSQLiteMemory(t *testing.T) {
	db, err := database.Open(context.Background(), database.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("reading pragma: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := database.Open(context.Background(), "postgres", ":memory:"); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func readPragmas(t *testing.T, db *sql.DB) (fk, timeout int) {
	t.Helper()
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("reading foreign_keys: %v", err)
	}
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&timeout); err != nil {
		t.Fatalf("reading busy_timeout: %v", err)
	}
	return fk, timeout
}

func TestPragmasSurviveReconnect(t *testing.T) {
	for _, drv := range []string{database.DriverSQLite, database.DriverLibSQL} {
		t.Run(drv, func(t *testing.T) {
			ctx := context.Background()
			db, err := database.Open(ctx, drv, filepath.Join(t.TempDir(), "test.db"))
			if err != nil {
				t.Fatalf("opening database: %v", err)
			}
			defer db.Close()

			if got := db.Stats().MaxOpenConnections; got != 1 {
				t.Errorf("MaxOpenConnections = %d, want 1", got)
			}

			var mode string
			if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
				t.Fatalf("reading journal_mode: %v", err)
			}
			if mode != "wal" {
				t.Errorf("journal_mode = %q, want wal", mode)
			}

			// Discard the pooled connection so the next query dials a new one.
			conn, err := db.Conn(ctx)
			if err != nil {
				t.Fatalf("conn: %v", err)
			}
			conn.Raw(func(any) error { return driver.ErrBadConn })
			conn.Close()

			fk, timeout := readPragmas(t, db)
			if fk != 1 {
				t.Errorf("foreign_keys = %d, want 1", fk)
			}
			if timeout != 5000 {
				t.Errorf("busy_timeout = %d, want 5000", timeout)
			}
		})
	}
}
