// Package db provides database connection handling and schema bootstrap for pinmap.
// Postgres (lib/pq) is the production store; SQLite (modernc, pure Go) backs local
// development and tests.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Driver identifies the SQL dialect behind a DB.
type Driver string

// Supported drivers.
const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

// ErrUnsupportedURL is returned when the database URL scheme is not recognized.
var ErrUnsupportedURL = errors.New("unsupported database url")

// pqUniqueViolation is the Postgres SQLSTATE for unique_violation.
const pqUniqueViolation = "23505"

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at_ns BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS pins (
    id            TEXT PRIMARY KEY,
    username      TEXT NOT NULL,
    title         TEXT NOT NULL,
    description   TEXT NOT NULL DEFAULT '',
    rating        INTEGER NOT NULL CHECK (rating BETWEEN 0 AND 5),
    lat           DOUBLE PRECISION NOT NULL CHECK (lat BETWEEN -90 AND 90),
    lng           DOUBLE PRECISION NOT NULL CHECK (lng BETWEEN -180 AND 180),
    geohash       TEXT NOT NULL DEFAULT '',
    created_at_ns BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pins_username ON pins(username);
CREATE INDEX IF NOT EXISTS idx_pins_geohash ON pins(geohash);
CREATE INDEX IF NOT EXISTS idx_pins_created_at ON pins(created_at_ns);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at_ns INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS pins (
    id            TEXT PRIMARY KEY,
    username      TEXT NOT NULL,
    title         TEXT NOT NULL,
    description   TEXT NOT NULL DEFAULT '',
    rating        INTEGER NOT NULL CHECK (rating BETWEEN 0 AND 5),
    lat           REAL NOT NULL CHECK (lat BETWEEN -90 AND 90),
    lng           REAL NOT NULL CHECK (lng BETWEEN -180 AND 180),
    geohash       TEXT NOT NULL DEFAULT '',
    created_at_ns INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pins_username ON pins(username);
CREATE INDEX IF NOT EXISTS idx_pins_geohash ON pins(geohash);
CREATE INDEX IF NOT EXISTS idx_pins_created_at ON pins(created_at_ns);
`

// DB wraps *sql.DB with the dialect it talks to.
type DB struct {
	*sql.DB
	Driver Driver
}

// ParseURL maps a database URL to a driver name and DSN.
//
//	postgres://... or postgresql://...  -> lib/pq
//	sqlite://path/to/file.db            -> modernc sqlite (path/to/file.db)
//	sqlite::memory: / file:...          -> modernc sqlite
func ParseURL(databaseURL string) (Driver, string, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return DriverPostgres, databaseURL, nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return DriverSQLite, strings.TrimPrefix(databaseURL, "sqlite://"), nil
	case strings.HasPrefix(databaseURL, "sqlite:"):
		return DriverSQLite, strings.TrimPrefix(databaseURL, "sqlite:"), nil
	case strings.HasPrefix(databaseURL, "file:"):
		return DriverSQLite, databaseURL, nil
	}
	return "", "", fmt.Errorf("%w: %q", ErrUnsupportedURL, databaseURL)
}

// Open connects to the database at databaseURL, verifies the connection and
// applies the schema.
func Open(ctx context.Context, databaseURL string) (*DB, error) {
	driver, dsn, err := ParseURL(databaseURL)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(string(driver), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writers; a single connection also keeps ":memory:" databases alive.
	if driver == DriverSQLite {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	d := &DB{DB: conn, Driver: driver}
	if err := d.Migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return d, nil
}

// Migrate creates tables and indexes if they do not exist.
func (d *DB) Migrate(ctx context.Context) error {
	schema := postgresSchema
	if d.Driver == DriverSQLite {
		schema = sqliteSchema
	}
	if _, err := d.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// System returns the OpenTelemetry db.system value for the driver.
func (d *DB) System() string {
	if d.Driver == DriverPostgres {
		return "postgresql"
	}
	return "sqlite"
}

// Rebind rewrites '?' placeholders into the driver's positional form.
// Queries in this repository are written with '?' and rebound once per call.
func (d *DB) Rebind(query string) string {
	if d.Driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// IsUniqueViolation reports whether err is a unique constraint failure on either driver.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pqUniqueViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
		// Without extended result codes only the base code is reported.
		return strings.Contains(liteErr.Error(), "UNIQUE constraint failed")
	}
	return false
}
