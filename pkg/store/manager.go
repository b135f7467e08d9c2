package store

import (
	"context"
	"fmt"
	"sync"
)

// Manager owns exactly one live engine per active backend identifier and is
// the only sanctioned source of scoped sessions. Switching backends is an
// atomic swap of the active engine; sessions already open against the previous
// engine run to completion unaffected.
type Manager struct {
	registry *Registry

	mu      sync.RWMutex
	active  *Engine
	engines map[string]*Engine
	retired []*Engine
}

// NewManager creates a manager over the registry without connecting anywhere.
// Call Switch to activate a backend.
func NewManager(registry *Registry) *Manager {
	return &Manager{
		registry: registry,
		engines:  make(map[string]*Engine),
	}
}

// Open creates a manager and activates the given backend.
func Open(ctx context.Context, registry *Registry, backend string) (*Manager, error) {
	m := NewManager(registry)
	if err := m.Switch(ctx, backend); err != nil {
		return nil, err
	}
	return m, nil
}

// Switch resolves the profile, constructs (or reuses) an engine for the
// identifier and atomically replaces the active engine. On failure the
// previous engine stays active; no partial switch is observable.
func (m *Manager) Switch(ctx context.Context, backend string) error {
	profile, err := m.registry.Resolve(backend)
	if err != nil {
		return err
	}

	// Reuse a cached engine only when the registered profile is unchanged;
	// re-registration takes effect here, never against a live engine.
	m.mu.RLock()
	cached := m.engines[backend]
	m.mu.RUnlock()

	engine := cached
	if engine == nil || engine.profile != profile {
		engine, err = openEngine(ctx, profile)
		if err != nil {
			return err
		}
	}

	m.mu.Lock()
	if stale := m.engines[backend]; stale != nil && stale != engine {
		// The stale engine may still serve in-flight sessions; closing it is
		// deferred to Manager.Close.
		m.retired = append(m.retired, stale)
	}
	m.engines[backend] = engine
	m.active = engine
	m.mu.Unlock()

	return nil
}

// Active returns the identifier of the currently active backend.
func (m *Manager) Active() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return ""
	}
	return m.active.profile.Backend
}

// PoolStatus reports the active engine's pooling strategy and connection
// counts. It never blocks and never opens connections.
func (m *Manager) PoolStatus() (PoolStatus, error) {
	m.mu.RLock()
	engine := m.active
	m.mu.RUnlock()
	if engine == nil {
		return PoolStatus{}, fmt.Errorf("%w: no active backend", ErrUnknownBackend)
	}
	return engine.status(), nil
}

// OpenSession returns a new scoped session bound to the engine active at call
// time. Capturing the engine under the read lock closes the window between
// "read active engine" and "create session", so a session never spans a switch.
func (m *Manager) OpenSession(ctx context.Context) (*Session, error) {
	m.mu.RLock()
	engine := m.active
	m.mu.RUnlock()
	if engine == nil {
		return nil, fmt.Errorf("%w: no active backend", ErrUnknownBackend)
	}

	conn, err := engine.checkout(ctx)
	if err != nil {
		return nil, err
	}

	return &Session{
		backend: engine.profile.Backend,
		dialect: engine.dialect,
		conn:    conn,
		state:   StateOpen,
	}, nil
}

// WithSession opens a session, runs the unit of work and guarantees release.
func (m *Manager) WithSession(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	session, err := m.OpenSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close()
	return session.Run(ctx, fn)
}

// Initialize ensures the schema exists on the active backend.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.RLock()
	engine := m.active
	m.mu.RUnlock()
	if engine == nil {
		return fmt.Errorf("%w: no active backend", ErrUnknownBackend)
	}
	return EnsureSchema(ctx, engine.DB(), engine.dialect)
}

// Close shuts down every engine the manager ever constructed.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for _, engine := range m.engines {
		if err := engine.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, engine := range m.retired {
		if err := engine.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.engines = make(map[string]*Engine)
	m.retired = nil
	m.active = nil
	return firstErr
}
