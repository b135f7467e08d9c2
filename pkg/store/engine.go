package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Engine is a live, backend-bound handle producing raw connections per its
// profile's pooling strategy. Engines are owned exclusively by the Manager.
type Engine struct {
	profile Profile
	dialect Dialect
	db      *sql.DB
}

// openEngine connects to the backend described by the profile and configures
// the connection pool. Connect-time failures come back as BackendUnavailableError.
func openEngine(ctx context.Context, profile Profile) (*Engine, error) {
	db, err := sql.Open(profile.Driver, profile.DSN)
	if err != nil {
		return nil, &BackendUnavailableError{Backend: profile.Backend, Err: err}
	}

	switch profile.Strategy {
	case PoolSingleShared:
		// The single connection is the serialization point: a second checkout
		// blocks until the first is released, so no extra mutex is needed.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	default:
		db.SetMaxOpenConns(profile.maxOpen())
		db.SetMaxIdleConns(profile.PoolSize)
		db.SetConnMaxLifetime(profile.Recycle)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, &BackendUnavailableError{Backend: profile.Backend, Err: err}
	}

	eng := &Engine{
		profile: profile,
		dialect: dialectForDriver(profile.Driver),
		db:      db,
	}

	if eng.dialect == DialectSQLite {
		if err := eng.applyPragmas(pingCtx); err != nil {
			db.Close()
			return nil, &BackendUnavailableError{Backend: profile.Backend, Err: err}
		}
	}

	return eng, nil
}

// applyPragmas sets durability settings for the embedded backend:
// WAL journaling with NORMAL synchronous trades fsync frequency for write
// throughput, which is safe for a single-writer file database.
func (e *Engine) applyPragmas(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := e.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to apply pragma %q: %w", pragma, err)
		}
	}
	return nil
}

// checkout obtains a dedicated connection, waiting at most the profile's
// checkout timeout. Expiry surfaces as PoolExhaustedError; the store layer
// never retries on the caller's behalf.
func (e *Engine) checkout(ctx context.Context) (*sql.Conn, error) {
	timeout := e.profile.CheckoutTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	connCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := e.db.Conn(connCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &PoolExhaustedError{Backend: e.profile.Backend, Timeout: timeout}
		}
		return nil, fmt.Errorf("failed to check out connection for backend %q: %w", e.profile.Backend, err)
	}
	return conn, nil
}

// Backend returns the identifier the engine is bound to.
func (e *Engine) Backend() string {
	return e.profile.Backend
}

// Dialect returns the SQL flavor of the engine's backend.
func (e *Engine) Dialect() Dialect {
	return e.dialect
}

// DB exposes the underlying pool for schema management. Data access goes
// through scoped sessions, not through this handle.
func (e *Engine) DB() *sql.DB {
	return e.db
}

// Close releases all pooled connections.
func (e *Engine) Close() error {
	return e.db.Close()
}

// PoolStatus is a point-in-time snapshot of an engine's connection pool.
type PoolStatus struct {
	Backend  string        `json:"backend"`
	Strategy PoolStrategy  `json:"strategy"`
	Open     int           `json:"open"`
	InUse    int           `json:"in_use"`
	Capacity int           `json:"capacity"`
	Recycle  time.Duration `json:"recycle"`
}

// status reads pool counters without blocking or opening connections.
func (e *Engine) status() PoolStatus {
	stats := e.db.Stats()
	return PoolStatus{
		Backend:  e.profile.Backend,
		Strategy: e.profile.Strategy,
		Open:     stats.OpenConnections,
		InUse:    stats.InUse,
		Capacity: e.profile.maxOpen(),
		Recycle:  e.profile.Recycle,
	}
}
