package sessions

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/graphmem/pkg/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	reg := store.NewRegistry()
	reg.Register(store.SQLiteProfile(filepath.Join(t.TempDir(), "sessions.db")))

	mgr, err := store.Open(context.Background(), reg, store.BackendSQLite)
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	require.NoError(t, mgr.Initialize(context.Background()))
	return NewStore(mgr)
}

func TestCreateAndGetUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateUser(ctx, "ada", "a3f5")
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	user, err := s.GetUser(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)
	assert.Equal(t, "a3f5", user.PasswordHash)
}

func TestCreateUserDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateUser(ctx, "ada", "a3f5")
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, "ada", "ffff")
	require.Error(t, err)

	var duplicate *store.DuplicateNameError
	require.ErrorAs(t, err, &duplicate)
	assert.Equal(t, "ada", duplicate.Name)
}

func TestGetUserNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetUser(context.Background(), "nobody")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdatePassword(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateUser(ctx, "ada", "old")
	require.NoError(t, err)

	require.NoError(t, s.UpdatePassword(ctx, "ada", "new"))

	user, err := s.GetUser(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, "new", user.PasswordHash)
	assert.False(t, user.UpdatedAt.Before(created.UpdatedAt))

	err = s.UpdatePassword(ctx, "nobody", "x")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRecordInvocationRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inv := &Invocation{
		SessionID:  "sess-1",
		ToolName:   "memory",
		MethodName: "create_entities",
		Parameters: map[string]any{"count": json.Number("2"), "dry_run": false},
	}
	id, err := s.RecordInvocation(ctx, inv)
	require.NoError(t, err)
	assert.NotZero(t, id)

	require.NoError(t, s.AttachResult(ctx, id, map[string]any{"created": json.Number("2")}, 42, true, ""))

	listed, err := s.ListBySession(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, listed, 1)

	got := listed[0]
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "memory", got.ToolName)
	assert.Equal(t, inv.Parameters, got.Parameters)
	assert.Equal(t, map[string]any{"created": json.Number("2")}, got.Result)
	require.NotNil(t, got.ExecutionMS)
	assert.EqualValues(t, 42, *got.ExecutionMS)
	require.NotNil(t, got.Success)
	assert.True(t, *got.Success)
	assert.Empty(t, got.ErrorMsg)
}

func TestAttachResultRejectsSecondAttachment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.RecordInvocation(ctx, &Invocation{
		SessionID:  "sess-1",
		ToolName:   "memory",
		MethodName: "read_graph",
	})
	require.NoError(t, err)

	require.NoError(t, s.AttachResult(ctx, id, map[string]any{"entities": json.Number("1")}, 10, true, ""))

	err = s.AttachResult(ctx, id, nil, 99, false, "second attempt")
	require.ErrorIs(t, err, ErrResultAttached)

	// The first outcome is untouched.
	listed, err := s.ListBySession(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, map[string]any{"entities": json.Number("1")}, listed[0].Result)
	require.NotNil(t, listed[0].Success)
	assert.True(t, *listed[0].Success)
	assert.Empty(t, listed[0].ErrorMsg)

	// The corrective update still applies to a completed invocation.
	require.NoError(t, s.UpdateParameters(ctx, id, map[string]any{"query": "fixed"}))
}

func TestCreateUserConcurrentDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.CreateUser(ctx, "ada", "a3f5")
		}(i)
	}
	wg.Wait()

	// Exactly one registration wins; the loser gets the typed duplicate
	// error whether it lost at the existence check or at the insert.
	var duplicate *store.DuplicateNameError
	switch {
	case errs[0] == nil:
		require.ErrorAs(t, errs[1], &duplicate)
	case errs[1] == nil:
		require.ErrorAs(t, errs[0], &duplicate)
	default:
		t.Fatalf("both registrations failed: %v / %v", errs[0], errs[1])
	}

	user, err := s.GetUser(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, "a3f5", user.PasswordHash)
}

func TestAttachResultNotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.AttachResult(context.Background(), 999, nil, 0, false, "exploded")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateParameters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.RecordInvocation(ctx, &Invocation{
		SessionID:  "sess-1",
		ToolName:   "memory",
		MethodName: "search_nodes",
		Parameters: map[string]any{"query": "typo"},
	})
	require.NoError(t, err)

	require.NoError(t, s.UpdateParameters(ctx, id, map[string]any{"query": "fixed"}))

	listed, err := s.ListBySession(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, map[string]any{"query": "fixed"}, listed[0].Parameters)

	err = s.UpdateParameters(ctx, 999, map[string]any{})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListByTool(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, rec := range []struct{ session, tool string }{
		{"sess-1", "memory"},
		{"sess-2", "memory"},
		{"sess-2", "think"},
	} {
		_, err := s.RecordInvocation(ctx, &Invocation{
			SessionID:  rec.session,
			ToolName:   rec.tool,
			MethodName: "run",
		})
		require.NoError(t, err)
	}

	byTool, err := s.ListByTool(ctx, "memory")
	require.NoError(t, err)
	assert.Len(t, byTool, 2)

	bySession, err := s.ListBySession(ctx, "sess-2")
	require.NoError(t, err)
	assert.Len(t, bySession, 2)
}
