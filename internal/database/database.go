package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	_ "github.com/tursodatabase/go-libsql"
	_ "modernc.org/sqlite"
)

const (
	DriverLibSQL = "libsql"
	DriverSQLite = "sqlite"
)

// connPragmas are per-connection settings; they are applied to every
// connection the pool opens.
var connPragmas = []string{
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
}

// Open creates a SQLite connection through the named driver and configures
// it for concurrent use: WAL journal mode, 5 s busy timeout, foreign keys
// enabled. driver is "libsql" (default) or "sqlite" (pure Go, no cgo).
//
// The pool holds a single connection so writes are serialised in process.
func Open(ctx context.Context, driverName, path string) (*sql.DB, error) {
	var dsn string
	switch driverName {
	case "", DriverLibSQL:
		driverName, dsn = DriverLibSQL, "file:"+path
	case DriverSQLite:
		dsn = path
	default:
		return nil, fmt.Errorf("unknown database driver %q", driverName)
	}

	handle, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	d := handle.Driver()
	handle.Close()

	db := sql.OpenDB(&connector{driver: d, dsn: dsn, pragmas: connPragmas})
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// journal_mode is stored in the database file, so once is enough.
	if err := pragma(ctx, db, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}

// libSQL rejects Exec for PRAGMAs that return rows, but some PRAGMAs (like
// foreign_keys=ON) return nothing. Queries handle both cases uniformly.
func pragma(ctx context.Context, db *sql.DB, p string) error {
	rows, err := db.QueryContext(ctx, p)
	if err != nil {
		return fmt.Errorf("executing %s: %w", p, err)
	}
	return rows.Close()
}

type connector struct {
	driver  driver.Driver
	dsn     string
	pragmas []string
}

func (c *connector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := c.driver.Open(c.dsn)
	if err != nil {
		return nil, err
	}
	for _, p := range c.pragmas {
		if err := connPragma(ctx, conn, p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("executing %s: %w", p, err)
		}
	}
	return conn, nil
}

func (c *connector) Driver() driver.Driver { return c.driver }

func connPragma(ctx context.Context, conn driver.Conn, p string) error {
	var (
		rows driver.Rows
		err  error
	)
	if q, ok := conn.(driver.QueryerContext); ok {
		rows, err = q.QueryContext(ctx, p, nil)
	} else {
		var stmt driver.Stmt
		if stmt, err = conn.Prepare(p); err != nil {
			return err
		}
		defer stmt.Close()
		rows, err = stmt.Query(nil)
	}
	if err != nil {
		return err
	}
	return rows.Close()
}
