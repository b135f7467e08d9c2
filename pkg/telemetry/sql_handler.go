package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/soundprediction/graphmem/pkg/store"
)

// SQLHandler is a slog.Handler that writes error logs into the telemetry_logs
// table of the active backend. Writes go through the connection manager, so
// telemetry follows backend switches like every other store.
type SQLHandler struct {
	next slog.Handler
	mgr  *store.Manager
}

// NewSQLHandler creates a new SQLHandler over the connection manager. The
// telemetry_logs table is part of the shared schema; EnsureSchema creates it.
func NewSQLHandler(next slog.Handler, mgr *store.Manager) *SQLHandler {
	return &SQLHandler{next: next, mgr: mgr}
}

// Enabled implements slog.Handler
func (h *SQLHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler
func (h *SQLHandler) Handle(ctx context.Context, r slog.Record) error {
	// Always pass to next handler first
	if err := h.next.Handle(ctx, r); err != nil {
		return err
	}

	// Only errors (and above) are persisted, same as ParquetHandler
	if r.Level < slog.LevelError {
		return nil
	}

	rec := recordFromSlog(ctx, r)

	// A cancelled request context must not drop the error record.
	err := h.mgr.WithSession(context.WithoutCancel(ctx), func(ctx context.Context, tx *store.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO telemetry_logs
				(id, logged_at, level, message, user_id, session_id, request_source, source_file, line_number, attributes)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.Timestamp, rec.Level, rec.Message,
			rec.UserID, rec.SessionID, rec.RequestSource,
			rec.SourceFile, rec.LineNumber, rec.Attributes)
		return err
	})
	if err != nil {
		// Don't block the logging chain on a storage error
		fmt.Fprintf(os.Stderr, "Failed to write log to SQL: %v\n", err)
	}

	return nil
}

// WithAttrs implements slog.Handler
func (h *SQLHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SQLHandler{next: h.next.WithAttrs(attrs), mgr: h.mgr}
}

// WithGroup implements slog.Handler
func (h *SQLHandler) WithGroup(name string) slog.Handler {
	return &SQLHandler{next: h.next.WithGroup(name), mgr: h.mgr}
}
