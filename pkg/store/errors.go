package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	sqlite3 "github.com/mattn/go-sqlite3"
)

// Common store errors
var (
	// ErrUnknownBackend indicates the backend identifier is not registered
	ErrUnknownBackend = errors.New("unknown backend")

	// ErrNestedSession indicates Run was invoked from inside another Run on the same session
	ErrNestedSession = errors.New("nested scoped session is not allowed")

	// ErrSessionClosed indicates the scoped session already reached a terminal state
	ErrSessionClosed = errors.New("scoped session is no longer open")

	// ErrNotFound indicates the requested record does not exist
	ErrNotFound = errors.New("record not found")
)

// BackendUnavailableError indicates the backend could not be reached at connect time.
// The previously active engine stays active when a switch fails with this error.
type BackendUnavailableError struct {
	Backend string
	Err     error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("backend %q unavailable: %v", e.Backend, e.Err)
}

func (e *BackendUnavailableError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support for BackendUnavailableError.
// This allows errors.Is(err, &BackendUnavailableError{}) to work with wrapped errors.
func (e *BackendUnavailableError) Is(target error) bool {
	_, ok := target.(*BackendUnavailableError)
	return ok
}

// PoolExhaustedError indicates no connection became available within the checkout timeout.
// The caller may retry; the store layer never retries on its behalf.
type PoolExhaustedError struct {
	Backend string
	Timeout time.Duration
}

func (e *PoolExhaustedError) Error() string {
	return fmt.Sprintf("connection pool for backend %q exhausted after %s", e.Backend, e.Timeout)
}

// Is implements errors.Is support for PoolExhaustedError.
func (e *PoolExhaustedError) Is(target error) bool {
	_, ok := target.(*PoolExhaustedError)
	return ok
}

// DuplicateNameError indicates a unique-name constraint was violated
// (entity names, usernames).
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("name %q already exists", e.Name)
}

// Is implements errors.Is support for DuplicateNameError.
func (e *DuplicateNameError) Is(target error) bool {
	_, ok := target.(*DuplicateNameError)
	return ok
}

// IsUniqueViolation reports whether the error is a unique-constraint violation
// from any of the supported drivers. Callers use it to surface a typed error
// when a concurrent writer wins the race between an existence check and the
// insert.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// DanglingReferenceError indicates a relation endpoint references a missing entity.
type DanglingReferenceError struct {
	From    string
	To      string
	Missing string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("relation %q -> %q references missing entity %q", e.From, e.To, e.Missing)
}

// Is implements errors.Is support for DanglingReferenceError.
func (e *DanglingReferenceError) Is(target error) bool {
	_, ok := target.(*DanglingReferenceError)
	return ok
}
