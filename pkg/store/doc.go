// Package store provides the connection and session management layer shared
// by every graphmem persistence component.
//
// # Backends
//
// Three backends sit behind one contract:
//   - sqlite: embedded single-file engine with a single shared, serialized
//     connection and WAL durability settings
//   - postgres: client/server engine with a bounded multiplexed pool
//   - mysql: client/server engine with a bounded multiplexed pool
//
// A Registry maps backend identifiers to immutable connection Profiles. The
// Manager owns one live Engine per active identifier and performs backend
// switches as an atomic swap; scoped sessions already open against the
// previous engine run to completion unaffected.
//
// # Scoped sessions
//
// All data access happens inside a scoped Session obtained from
// Manager.OpenSession (or the Manager.WithSession convenience wrapper):
//
//	err := mgr.WithSession(ctx, func(ctx context.Context, tx *store.Tx) error {
//	    _, err := tx.Exec(ctx, "INSERT INTO memory_entities ...", args...)
//	    return err
//	})
//
// Run commits on success, rolls back on any failure (the original error is
// returned unchanged) and releases the checked-out connection exactly once on
// every exit path, including panics and context cancellation. Nesting Run
// inside Run fails with ErrNestedSession; there are no implicit savepoints.
//
// # Failure taxonomy
//
// Connection and pool failures carry their own typed kinds (ErrUnknownBackend,
// BackendUnavailableError, PoolExhaustedError) so callers can distinguish
// invalid data from an unreachable backend from a saturated pool. The layer
// never retries: transient conditions surface to the caller as typed errors.
package store
