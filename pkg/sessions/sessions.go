// Package sessions persists users and the per-tool invocation history of
// thinking sessions.
package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/soundprediction/graphmem/pkg/codec"
	"github.com/soundprediction/graphmem/pkg/store"
)

// ErrResultAttached indicates the invocation already carries a result.
// A completed invocation is immutable apart from the corrective
// UpdateParameters operation.
var ErrResultAttached = errors.New("invocation result already attached")

// User is a registered account. The password is stored as a hex-encoded
// digest, never in the clear.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Invocation is one recorded tool call within a thinking session.
type Invocation struct {
	ID          int64          `json:"id"`
	UserID      *int64         `json:"user_id,omitempty"`
	SessionID   string         `json:"session_id"`
	ToolName    string         `json:"tool_name"`
	MethodName  string         `json:"method_name"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Result      any            `json:"result,omitempty"`
	ExecutionMS *int64         `json:"execution_ms,omitempty"`
	Success     *bool          `json:"success,omitempty"`
	ErrorMsg    string         `json:"error_message,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Store persists users and invocations through scoped sessions.
type Store struct {
	mgr *store.Manager
}

// NewStore creates a session store over the connection manager.
func NewStore(mgr *store.Manager) *Store {
	return &Store{mgr: mgr}
}

// CreateUser registers a new user. An already-taken username fails with
// DuplicateNameError.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (*User, error) {
	user := &User{Username: username, PasswordHash: passwordHash}

	err := s.mgr.WithSession(ctx, func(ctx context.Context, tx *store.Tx) error {
		var existing int64
		err := tx.QueryRow(ctx, "SELECT id FROM users WHERE username = ?", username).Scan(&existing)
		if err == nil {
			return &store.DuplicateNameError{Name: username}
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("failed to check username %q: %w", username, err)
		}

		now := time.Now().UTC().Truncate(time.Second)
		id, err := tx.Insert(ctx,
			"INSERT INTO users (username, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?)",
			username, passwordHash, now, now)
		if err != nil {
			// A concurrent registration can win the race between the
			// existence check and the insert.
			if store.IsUniqueViolation(err) {
				return &store.DuplicateNameError{Name: username}
			}
			return fmt.Errorf("failed to insert user %q: %w", username, err)
		}
		user.ID = id
		user.CreatedAt = now
		user.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser looks up a user by username, failing with ErrNotFound when the
// account does not exist.
func (s *Store) GetUser(ctx context.Context, username string) (*User, error) {
	var user User

	err := s.mgr.WithSession(ctx, func(ctx context.Context, tx *store.Tx) error {
		err := tx.QueryRow(ctx,
			"SELECT id, username, password_hash, created_at, updated_at FROM users WHERE username = ?",
			username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
		if err == sql.ErrNoRows {
			return fmt.Errorf("user %q: %w", username, store.ErrNotFound)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdatePassword replaces a user's password hash and touches updated_at.
// A missing account fails with ErrNotFound.
func (s *Store) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	return s.mgr.WithSession(ctx, func(ctx context.Context, tx *store.Tx) error {
		now := time.Now().UTC().Truncate(time.Second)
		res, err := tx.Exec(ctx,
			"UPDATE users SET password_hash = ?, updated_at = ? WHERE username = ?",
			passwordHash, now, username)
		if err != nil {
			return fmt.Errorf("failed to update password for %q: %w", username, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("user %q: %w", username, store.ErrNotFound)
		}
		return nil
	})
}

// RecordInvocation stores a new invocation row and returns its id. Parameters
// are serialized through the codec; a nil map stores NULL.
func (s *Store) RecordInvocation(ctx context.Context, inv *Invocation) (int64, error) {
	var params any
	if inv.Parameters != nil {
		encoded, err := codec.Encode(inv.Parameters)
		if err != nil {
			return 0, err
		}
		params = encoded
	}

	var id int64
	err := s.mgr.WithSession(ctx, func(ctx context.Context, tx *store.Tx) error {
		now := time.Now().UTC().Truncate(time.Second)
		var userID any
		if inv.UserID != nil {
			userID = *inv.UserID
		}
		var err error
		id, err = tx.Insert(ctx, `
			INSERT INTO thinking_sessions
				(user_id, session_id, tool_name, method_name, parameters, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			userID, inv.SessionID, inv.ToolName, inv.MethodName, params, now)
		if err != nil {
			return fmt.Errorf("failed to record invocation: %w", err)
		}
		inv.ID = id
		inv.CreatedAt = now
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AttachResult completes a recorded invocation with its outcome. A missing
// row fails with ErrNotFound; an already-completed one fails with
// ErrResultAttached.
func (s *Store) AttachResult(ctx context.Context, id int64, result any, executionMS int64, success bool, errorMsg string) error {
	var encoded any
	if result != nil {
		text, err := codec.Encode(result)
		if err != nil {
			return err
		}
		encoded = text
	}

	return s.mgr.WithSession(ctx, func(ctx context.Context, tx *store.Tx) error {
		// success is written on every completion, so a non-NULL value marks
		// the row as already completed.
		var done sql.NullBool
		err := tx.QueryRow(ctx, "SELECT success FROM thinking_sessions WHERE id = ?", id).Scan(&done)
		if err == sql.ErrNoRows {
			return fmt.Errorf("invocation %d: %w", id, store.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to load invocation %d: %w", id, err)
		}
		if done.Valid {
			return fmt.Errorf("invocation %d: %w", id, ErrResultAttached)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE thinking_sessions
			SET result = ?, execution_ms = ?, success = ?, error_message = ?
			WHERE id = ?`,
			encoded, executionMS, success, nullableString(errorMsg), id); err != nil {
			return fmt.Errorf("failed to attach result to invocation %d: %w", id, err)
		}
		return nil
	})
}

// UpdateParameters corrects the stored parameters of a recorded invocation.
// A missing row fails with ErrNotFound.
func (s *Store) UpdateParameters(ctx context.Context, id int64, parameters map[string]any) error {
	encoded, err := codec.Encode(parameters)
	if err != nil {
		return err
	}

	return s.mgr.WithSession(ctx, func(ctx context.Context, tx *store.Tx) error {
		res, err := tx.Exec(ctx,
			"UPDATE thinking_sessions SET parameters = ? WHERE id = ?", encoded, id)
		if err != nil {
			return fmt.Errorf("failed to update invocation %d: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("invocation %d: %w", id, store.ErrNotFound)
		}
		return nil
	})
}

// ListBySession returns all invocations recorded under one session id, oldest
// first.
func (s *Store) ListBySession(ctx context.Context, sessionID string) ([]Invocation, error) {
	return s.list(ctx, "session_id = ?", sessionID)
}

// ListByTool returns all invocations of one tool, oldest first.
func (s *Store) ListByTool(ctx context.Context, toolName string) ([]Invocation, error) {
	return s.list(ctx, "tool_name = ?", toolName)
}

func (s *Store) list(ctx context.Context, where string, arg any) ([]Invocation, error) {
	var out []Invocation

	err := s.mgr.WithSession(ctx, func(ctx context.Context, tx *store.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, user_id, session_id, tool_name, method_name,
			       parameters, result, execution_ms, success, error_message, created_at
			FROM thinking_sessions
			WHERE `+where+`
			ORDER BY id`, arg)
		if err != nil {
			return fmt.Errorf("failed to query invocations: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var inv Invocation
			var userID sql.NullInt64
			var params, result, errorMsg sql.NullString
			var execMS sql.NullInt64
			var success sql.NullBool
			if err := rows.Scan(&inv.ID, &userID, &inv.SessionID, &inv.ToolName,
				&inv.MethodName, &params, &result, &execMS, &success, &errorMsg,
				&inv.CreatedAt); err != nil {
				return err
			}
			if userID.Valid {
				inv.UserID = &userID.Int64
			}
			if params.Valid {
				m, err := codec.DecodeMap(params.String)
				if err != nil {
					return err
				}
				inv.Parameters = m
			}
			if result.Valid {
				v, err := codec.Decode(result.String)
				if err != nil {
					return err
				}
				inv.Result = v
			}
			if execMS.Valid {
				inv.ExecutionMS = &execMS.Int64
			}
			if success.Valid {
				inv.Success = &success.Bool
			}
			if errorMsg.Valid {
				inv.ErrorMsg = errorMsg.String
			}
			out = append(out, inv)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
