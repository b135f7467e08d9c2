// Package types defines small shared types used across graphmem packages.
package types

// ContextKey is the type for request-scoped context values.
type ContextKey string

const (
	// ContextKeyUserID carries the authenticated user identifier.
	ContextKeyUserID ContextKey = "user_id"

	// ContextKeySessionID carries the thinking-session identifier.
	ContextKeySessionID ContextKey = "session_id"

	// ContextKeyRequestSource carries the origin of the request (api, cli).
	ContextKeyRequestSource ContextKey = "request_source"
)
