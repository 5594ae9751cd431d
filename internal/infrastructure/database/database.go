package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Engine configuration constants.
const (
	// dirPermissions is the permission mode for dataset directories.
	dirPermissions = 0750

	// msPerSecond converts seconds to milliseconds.
	msPerSecond = 1000

	// connectionTimeout is the timeout for verifying engine connectivity.
	connectionTimeout = 5 * time.Second

	// memoryDSN is the private in-memory handle the engine is opened on.
	// Every other schema is attached to this connection.
	memoryDSN = "file::memory:"
)

// Config contains controller configuration options.
// These map to the database section of config.yaml.
type Config struct {
	// FileID identifies the persistent dataset file under <root>/<DatasetID>.
	// Empty means DefaultFileID.
	FileID string

	// BusyTimeout is the maximum time to wait for a file lock (seconds).
	BusyTimeout int
}

// DB is the embedded engine: one database/sql pool restricted to a single
// connection, with that connection pinned for the lifetime of the DB.
//
// ATTACH and DETACH are connection-scoped in SQLite, so every statement must
// run on the pinned connection. The pool itself is never used directly.
type DB struct {
	pool *sql.DB
	conn *sql.Conn
}

// Open opens the engine on a private in-memory handle.
//
// It performs the following setup:
//  1. Opens the in-memory database with busy timeout and foreign keys enabled
//  2. Restricts the pool to one connection that is never recycled
//  3. Pins that connection and verifies it with a ping
//
// Parameters:
//   - ctx: Context for the connection checkout
//   - cfg: Engine configuration
//
// Returns:
//   - *DB: Open engine
//   - error: If opening or verifying the connection fails
func Open(ctx context.Context, cfg Config) (*DB, error) {
	// See: https://github.com/mattn/go-sqlite3#connection-string
	connStr := fmt.Sprintf("%s?_busy_timeout=%d&_foreign_keys=on",
		memoryDSN,
		cfg.BusyTimeout*msPerSecond,
	)

	pool, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening engine: %w", err)
	}

	// A recycled connection would lose the in-memory main schema and every attachment.
	pool.SetMaxOpenConns(1)
	pool.SetMaxIdleConns(1)
	pool.SetConnMaxLifetime(0)
	pool.SetConnMaxIdleTime(0)

	checkoutCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()

	conn, err := pool.Conn(checkoutCtx)
	if err != nil {
		pool.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("acquiring engine connection: %w", err)
	}

	if err := conn.PingContext(checkoutCtx); err != nil {
		conn.Close() //nolint:errcheck // Best effort cleanup on error path
		pool.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying engine connection: %w", err)
	}

	return &DB{pool: pool, conn: conn}, nil
}

// Conn returns the pinned engine connection.
func (db *DB) Conn() *sql.Conn {
	return db.conn
}

// Close releases the pinned connection and closes the engine.
//
// Returns:
//   - error: If closing fails
func (db *DB) Close() error {
	if db == nil || db.pool == nil {
		return nil
	}
	var connErr error
	if db.conn != nil {
		connErr = db.conn.Close()
		db.conn = nil
	}
	err := db.pool.Close()
	db.pool = nil
	if connErr != nil {
		return fmt.Errorf("closing engine connection: %w", connErr)
	}
	if err != nil {
		return fmt.Errorf("closing engine: %w", err)
	}
	return nil
}

// HealthCheck verifies the engine is accessible and functioning.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (db *DB) HealthCheck(ctx context.Context) error {
	var result int
	err := db.conn.QueryRowContext(ctx, "SELECT 1").Scan(&result)
	if err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Stats returns engine connection pool statistics.
func (db *DB) Stats() sql.DBStats {
	return db.pool.Stats()
}
