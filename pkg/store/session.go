package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// SessionState tracks the lifecycle of a scoped session.
type SessionState string

const (
	StateOpen       SessionState = "open"
	StateCommitted  SessionState = "committed"
	StateRolledBack SessionState = "rolled-back"
	StateClosed     SessionState = "closed"
)

// Tx is the querying surface handed to a unit of work. Queries are written
// with ? placeholders and rebound for the session's dialect.
type Tx struct {
	tx      *sql.Tx
	dialect Dialect
}

// Exec executes a statement inside the transaction.
func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.dialect.Rebind(query), args...)
}

// Query runs a query inside the transaction. Callers must close the rows.
func (t *Tx) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, t.dialect.Rebind(query), args...)
}

// QueryRow runs a single-row query inside the transaction.
func (t *Tx) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.dialect.Rebind(query), args...)
}

// Insert executes an INSERT and returns the generated integer key.
// Postgres has no LastInsertId, so the statement gains a RETURNING clause there.
func (t *Tx) Insert(ctx context.Context, query string, args ...any) (int64, error) {
	if t.dialect == DialectPostgres {
		var id int64
		err := t.tx.QueryRowContext(ctx, t.dialect.Rebind(query+" RETURNING id"), args...).Scan(&id)
		return id, err
	}
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Dialect returns the SQL flavor the transaction runs against.
func (t *Tx) Dialect() Dialect {
	return t.dialect
}

// Session is a transactional unit of work bound to the engine that was active
// when it was opened. It owns one checked-out connection for its lifetime and
// transitions to exactly one terminal state, releasing the connection on every
// exit path.
type Session struct {
	backend string
	dialect Dialect
	conn    *sql.Conn

	mu      sync.Mutex
	state   SessionState
	running bool
}

// Run executes the unit of work inside a transaction. On normal return the
// transaction commits; on error (including context cancellation) it rolls back
// and the original error is returned unchanged. The connection is released
// exactly once either way. Calling Run from inside a running unit of work
// fails with ErrNestedSession.
func (s *Session) Run(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("%w (backend %q)", ErrNestedSession, s.backend)
	}
	if s.state != StateOpen {
		s.mu.Unlock()
		return fmt.Errorf("%w: state %s", ErrSessionClosed, s.state)
	}
	s.running = true
	s.mu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		s.finish(StateRolledBack)
		return fmt.Errorf("failed to begin transaction on backend %q: %w", s.backend, err)
	}

	finished := false
	defer func() {
		if !finished {
			// Unit of work panicked: roll back and release before repanicking.
			_ = tx.Rollback()
			s.finish(StateRolledBack)
		}
	}()

	if err := fn(ctx, &Tx{tx: tx, dialect: s.dialect}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			// The unit of work's error still wins; the rollback failure is lost
			// to the caller but the connection is released regardless.
			_ = rbErr
		}
		s.finish(StateRolledBack)
		finished = true
		return err
	}

	if err := tx.Commit(); err != nil {
		s.finish(StateRolledBack)
		finished = true
		return fmt.Errorf("failed to commit transaction on backend %q: %w", s.backend, err)
	}

	s.finish(StateCommitted)
	finished = true
	return nil
}

// finish transitions to a terminal state and releases the connection.
// The state guard makes the release idempotent.
func (s *Session) finish(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return
	}
	s.state = state
	s.running = false
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

// Close releases the session without running a unit of work. Safe to defer
// immediately after OpenSession; it is a no-op once Run has completed.
func (s *Session) Close() error {
	s.finish(StateClosed)
	return nil
}

// State reports the session lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Backend returns the identifier of the engine the session is bound to.
func (s *Session) Backend() string {
	return s.backend
}
