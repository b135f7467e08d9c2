package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
)

// PoolStrategy selects how an engine hands out connections.
type PoolStrategy string

const (
	// PoolSingleShared serializes all work through one shared connection.
	// Used for the embedded backend, which has no safe concurrent-connection model.
	PoolSingleShared PoolStrategy = "single-shared"

	// PoolBoundedMultiplexed multiplexes work over a bounded pool with an
	// overflow ceiling, checkout timeout and idle-connection recycling.
	PoolBoundedMultiplexed PoolStrategy = "bounded-multiplexed"
)

// Backend identifiers for the built-in profiles.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMySQL    = "mysql"
)

// Profile describes how to reach one backend and how to pool its connections.
// Profiles are immutable once registered; compare by value.
type Profile struct {
	// Backend is the identifier the profile is registered under.
	Backend string

	// Driver is the database/sql driver name.
	Driver string

	// DSN is the fully rendered connection string.
	DSN string

	// Strategy selects single-shared vs bounded-multiplexed pooling.
	Strategy PoolStrategy

	// PoolSize is the base pool size (idle connections kept warm).
	PoolSize int

	// MaxOverflow is the number of extra connections allowed above PoolSize.
	MaxOverflow int

	// CheckoutTimeout bounds how long a session waits for a free connection.
	CheckoutTimeout time.Duration

	// Recycle discards connections older than this to guard against
	// server-side idle teardown. Zero disables recycling.
	Recycle time.Duration
}

// maxOpen returns the hard connection ceiling for the profile.
func (p Profile) maxOpen() int {
	if p.Strategy == PoolSingleShared {
		return 1
	}
	n := p.PoolSize + p.MaxOverflow
	if n <= 0 {
		n = 1
	}
	return n
}

// SQLiteProfile returns the embedded single-file profile.
// The DSN enables WAL journaling and reduced fsync frequency: acceptable
// because the file backend is single-writer.
func SQLiteProfile(path string) Profile {
	return Profile{
		Backend:         BackendSQLite,
		Driver:          "sqlite3",
		DSN:             fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on", path),
		Strategy:        PoolSingleShared,
		PoolSize:        1,
		CheckoutTimeout: 30 * time.Second,
	}
}

// PostgresProfile returns the client/server PostgreSQL profile.
func PostgresProfile(dsn string) Profile {
	return Profile{
		Backend:         BackendPostgres,
		Driver:          "postgres",
		DSN:             dsn,
		Strategy:        PoolBoundedMultiplexed,
		PoolSize:        5,
		MaxOverflow:     10,
		CheckoutTimeout: 30 * time.Second,
		Recycle:         time.Hour,
	}
}

// MySQLProfile returns the client/server MySQL profile.
// parseTime=true is forced onto the DSN so TIMESTAMP columns scan into
// time.Time; a DSN the driver cannot parse is left alone and fails at
// connect time instead.
func MySQLProfile(dsn string) Profile {
	if cfg, err := mysql.ParseDSN(dsn); err == nil && !cfg.ParseTime {
		cfg.ParseTime = true
		dsn = cfg.FormatDSN()
	}
	return Profile{
		Backend:         BackendMySQL,
		Driver:          "mysql",
		DSN:             dsn,
		Strategy:        PoolBoundedMultiplexed,
		PoolSize:        5,
		MaxOverflow:     10,
		CheckoutTimeout: 30 * time.Second,
		Recycle:         time.Hour,
	}
}

// Registry maps backend identifiers to connection profiles.
// Re-registering under an active identifier takes effect on the next switch;
// it never mutates a live engine.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewRegistry creates an empty profile registry.
func NewRegistry() *Registry {
	return &Registry{profiles: make(map[string]Profile)}
}

// Register stores or replaces the profile under its backend identifier.
func (r *Registry) Register(p Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.Backend] = p
}

// Resolve returns the profile registered under the identifier.
func (r *Registry) Resolve(backend string) (Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[backend]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
	return p, nil
}

// Backends returns the registered identifiers.
func (r *Registry) Backends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	return names
}
