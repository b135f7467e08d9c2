package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqliteTestProfile(t *testing.T, name string) Profile {
	t.Helper()
	p := SQLiteProfile(filepath.Join(t.TempDir(), name))
	p.CheckoutTimeout = 2 * time.Second
	return p
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	reg := NewRegistry()
	reg.Register(sqliteTestProfile(t, "store.db"))

	mgr, err := Open(context.Background(), reg, BackendSQLite)
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	require.NoError(t, mgr.Initialize(context.Background()))
	return mgr
}

func TestRegistryResolveUnknown(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Resolve("oracle")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestRegistryRegisterAndResolve(t *testing.T) {
	reg := NewRegistry()
	reg.Register(PostgresProfile("postgres://localhost/test"))

	p, err := reg.Resolve(BackendPostgres)
	require.NoError(t, err)
	assert.Equal(t, PoolBoundedMultiplexed, p.Strategy)
	assert.Equal(t, 5, p.PoolSize)
	assert.Equal(t, 10, p.MaxOverflow)
	assert.Equal(t, 15, p.maxOpen())

	assert.ElementsMatch(t, []string{BackendPostgres}, reg.Backends())
}

func TestMySQLProfileForcesParseTime(t *testing.T) {
	p := MySQLProfile("user:pw@tcp(localhost:3306)/graphmem")
	assert.Contains(t, p.DSN, "parseTime=true")

	// Already set, stays set once.
	p = MySQLProfile("user:pw@tcp(localhost:3306)/graphmem?parseTime=true&charset=utf8mb4")
	assert.Equal(t, 1, strings.Count(p.DSN, "parseTime"))

	// Unparseable DSNs pass through untouched.
	p = MySQLProfile("not-a-dsn")
	assert.Equal(t, "not-a-dsn", p.DSN)
}

func TestIsUniqueViolation(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	insert := func(ctx context.Context, tx *Tx) error {
		_, err := tx.Exec(ctx,
			"INSERT INTO memory_entities (name, entity_type, created_at, updated_at) VALUES (?, ?, ?, ?)",
			"zeta", "service", time.Now(), time.Now())
		return err
	}
	require.NoError(t, mgr.WithSession(ctx, insert))

	err := mgr.WithSession(ctx, insert)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	assert.False(t, IsUniqueViolation(errors.New("boom")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestSwitchUnknownBackendKeepsActive(t *testing.T) {
	mgr := newTestManager(t)

	err := mgr.Switch(context.Background(), "oracle")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownBackend)
	assert.Equal(t, BackendSQLite, mgr.Active())
}

func TestSessionCommit(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	session, err := mgr.OpenSession(ctx)
	require.NoError(t, err)
	defer session.Close()

	err = session.Run(ctx, func(ctx context.Context, tx *Tx) error {
		_, err := tx.Exec(ctx,
			"INSERT INTO memory_entities (name, entity_type, created_at, updated_at) VALUES (?, ?, ?, ?)",
			"alpha", "service", time.Now(), time.Now())
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, session.State())

	var count int
	err = mgr.WithSession(ctx, func(ctx context.Context, tx *Tx) error {
		return tx.QueryRow(ctx, "SELECT COUNT(*) FROM memory_entities").Scan(&count)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSessionRollbackOnError(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := mgr.WithSession(ctx, func(ctx context.Context, tx *Tx) error {
		_, execErr := tx.Exec(ctx,
			"INSERT INTO memory_entities (name, entity_type, created_at, updated_at) VALUES (?, ?, ?, ?)",
			"beta", "service", time.Now(), time.Now())
		require.NoError(t, execErr)
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int
	err = mgr.WithSession(ctx, func(ctx context.Context, tx *Tx) error {
		return tx.QueryRow(ctx, "SELECT COUNT(*) FROM memory_entities").Scan(&count)
	})
	require.NoError(t, err)
	assert.Equal(t, 0, count, "rolled-back insert must not be visible")
}

func TestSessionPartialFailureLeavesNothing(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	// Second statement fails on the UNIQUE constraint; the first insert must
	// roll back with it.
	err := mgr.WithSession(ctx, func(ctx context.Context, tx *Tx) error {
		for i := 0; i < 2; i++ {
			if _, err := tx.Exec(ctx,
				"INSERT INTO memory_entities (name, entity_type, created_at, updated_at) VALUES (?, ?, ?, ?)",
				"gamma", "service", time.Now(), time.Now()); err != nil {
				return err
			}
		}
		return nil
	})
	require.Error(t, err)

	var count int
	err = mgr.WithSession(ctx, func(ctx context.Context, tx *Tx) error {
		return tx.QueryRow(ctx, "SELECT COUNT(*) FROM memory_entities").Scan(&count)
	})
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestNestedSessionFails(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	session, err := mgr.OpenSession(ctx)
	require.NoError(t, err)
	defer session.Close()

	err = session.Run(ctx, func(ctx context.Context, tx *Tx) error {
		return session.Run(ctx, func(ctx context.Context, tx *Tx) error {
			return nil
		})
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNestedSession)
	assert.Equal(t, StateRolledBack, session.State())
}

func TestSessionTerminalStateRejectsReuse(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	session, err := mgr.OpenSession(ctx)
	require.NoError(t, err)

	require.NoError(t, session.Run(ctx, func(ctx context.Context, tx *Tx) error { return nil }))
	assert.Equal(t, StateCommitted, session.State())

	err = session.Run(ctx, func(ctx context.Context, tx *Tx) error { return nil })
	assert.ErrorIs(t, err, ErrSessionClosed)

	// Close after a completed run stays a no-op.
	require.NoError(t, session.Close())
	assert.Equal(t, StateCommitted, session.State())
}

func TestSessionCloseWithoutRun(t *testing.T) {
	mgr := newTestManager(t)

	session, err := mgr.OpenSession(context.Background())
	require.NoError(t, err)

	require.NoError(t, session.Close())
	assert.Equal(t, StateClosed, session.State())

	err = session.Run(context.Background(), func(ctx context.Context, tx *Tx) error { return nil })
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestPoolExhausted(t *testing.T) {
	reg := NewRegistry()
	p := sqliteTestProfile(t, "exhausted.db")
	p.CheckoutTimeout = 100 * time.Millisecond
	reg.Register(p)

	mgr, err := Open(context.Background(), reg, BackendSQLite)
	require.NoError(t, err)
	defer mgr.Close()

	ctx := context.Background()
	holder, err := mgr.OpenSession(ctx)
	require.NoError(t, err)
	defer holder.Close()

	// The single shared connection is held, so the second checkout times out.
	_, err = mgr.OpenSession(ctx)
	require.Error(t, err)

	var exhausted *PoolExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, BackendSQLite, exhausted.Backend)
	assert.Equal(t, 100*time.Millisecond, exhausted.Timeout)

	// Releasing the holder frees the connection for the next session.
	require.NoError(t, holder.Close())
	session, err := mgr.OpenSession(ctx)
	require.NoError(t, err)
	session.Close()
}

func TestSessionCancelledMidRun(t *testing.T) {
	mgr := newTestManager(t)

	ctx, cancel := context.WithCancel(context.Background())

	session, err := mgr.OpenSession(ctx)
	require.NoError(t, err)

	// Cancel between two statements of the same unit of work. The second
	// statement fails, the transaction rolls back and the error surfaces
	// unchanged.
	err = session.Run(ctx, func(ctx context.Context, tx *Tx) error {
		if _, err := tx.Exec(ctx,
			"INSERT INTO memory_entities (name, entity_type, created_at, updated_at) VALUES (?, ?, ?, ?)",
			"delta", "service", time.Now(), time.Now()); err != nil {
			return err
		}
		cancel()
		_, err := tx.Exec(ctx,
			"INSERT INTO memory_entities (name, entity_type, created_at, updated_at) VALUES (?, ?, ?, ?)",
			"epsilon", "service", time.Now(), time.Now())
		return err
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateRolledBack, session.State())

	// The single shared connection was released and no partial work survived.
	var count int
	err = mgr.WithSession(context.Background(), func(ctx context.Context, tx *Tx) error {
		return tx.QueryRow(ctx, "SELECT COUNT(*) FROM memory_entities").Scan(&count)
	})
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestOpenSessionCancelledContext(t *testing.T) {
	mgr := newTestManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := mgr.OpenSession(ctx)
	require.Error(t, err)

	var exhausted *PoolExhaustedError
	assert.False(t, errors.As(err, &exhausted), "caller cancellation is not pool exhaustion")
}

func TestSwitchIsolation(t *testing.T) {
	reg := NewRegistry()
	a := sqliteTestProfile(t, "a.db")
	reg.Register(a)

	mgr, err := Open(context.Background(), reg, BackendSQLite)
	require.NoError(t, err)
	defer mgr.Close()

	ctx := context.Background()
	require.NoError(t, mgr.Initialize(ctx))

	err = mgr.WithSession(ctx, func(ctx context.Context, tx *Tx) error {
		_, err := tx.Exec(ctx,
			"INSERT INTO memory_entities (name, entity_type, created_at, updated_at) VALUES (?, ?, ?, ?)",
			"only-in-a", "service", time.Now(), time.Now())
		return err
	})
	require.NoError(t, err)

	// Re-register the identifier against a different file and switch. The new
	// engine must not see the old file's rows.
	b := sqliteTestProfile(t, "b.db")
	reg.Register(b)
	require.NoError(t, mgr.Switch(ctx, BackendSQLite))
	require.NoError(t, mgr.Initialize(ctx))

	var count int
	err = mgr.WithSession(ctx, func(ctx context.Context, tx *Tx) error {
		return tx.QueryRow(ctx, "SELECT COUNT(*) FROM memory_entities").Scan(&count)
	})
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Switching back restores the first file with its data intact.
	reg.Register(a)
	require.NoError(t, mgr.Switch(ctx, BackendSQLite))

	err = mgr.WithSession(ctx, func(ctx context.Context, tx *Tx) error {
		return tx.QueryRow(ctx, "SELECT COUNT(*) FROM memory_entities").Scan(&count)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPoolStatus(t *testing.T) {
	mgr := newTestManager(t)

	status, err := mgr.PoolStatus()
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, status.Backend)
	assert.Equal(t, PoolSingleShared, status.Strategy)
	assert.Equal(t, 1, status.Capacity)
	assert.LessOrEqual(t, status.InUse, status.Open)
}

func TestRebind(t *testing.T) {
	tests := []struct {
		dialect Dialect
		in      string
		want    string
	}{
		{DialectSQLite, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = ? AND b = ?"},
		{DialectMySQL, "SELECT * FROM t WHERE a = ?", "SELECT * FROM t WHERE a = ?"},
		{DialectPostgres, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = $1 AND b = $2"},
		{DialectPostgres, "SELECT '?' , a FROM t WHERE b = ?", "SELECT '?' , a FROM t WHERE b = $1"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.dialect, tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.dialect.Rebind(tt.in))
		})
	}
}

func TestErrorTaxonomy(t *testing.T) {
	unavailable := &BackendUnavailableError{Backend: "postgres", Err: errors.New("refused")}
	assert.ErrorIs(t, unavailable, &BackendUnavailableError{})
	assert.Contains(t, unavailable.Error(), "postgres")

	exhausted := &PoolExhaustedError{Backend: "mysql", Timeout: time.Second}
	assert.ErrorIs(t, exhausted, &PoolExhaustedError{})

	duplicate := &DuplicateNameError{Name: "alpha"}
	assert.ErrorIs(t, duplicate, &DuplicateNameError{})
	assert.Contains(t, duplicate.Error(), "alpha")

	dangling := &DanglingReferenceError{From: "a", To: "b", Missing: "b"}
	assert.ErrorIs(t, dangling, &DanglingReferenceError{})
	assert.Contains(t, dangling.Error(), "b")
}
