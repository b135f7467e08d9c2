package store

import (
	"context"
	"database/sql"
	"fmt"
)

// EnsureSchema creates the graphmem tables on the given backend if they do
// not exist. The logical row sets are identical across dialects; only the
// autoincrement and timestamp spellings differ. JSON-shaped columns
// (parameters, result, attributes) are plain TEXT everywhere and always pass
// through the codec, so the schema stays portable to backends without native
// JSON support.
func EnsureSchema(ctx context.Context, db *sql.DB, dialect Dialect) error {
	for _, stmt := range schemaStatements(dialect) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

func schemaStatements(dialect Dialect) []string {
	var pk, timestamp string
	switch dialect {
	case DialectPostgres:
		pk = "SERIAL PRIMARY KEY"
		timestamp = "TIMESTAMP"
	case DialectMySQL:
		pk = "INT AUTO_INCREMENT PRIMARY KEY"
		timestamp = "DATETIME"
	default:
		pk = "INTEGER PRIMARY KEY AUTOINCREMENT"
		timestamp = "TIMESTAMP"
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS users (
			id %s,
			username VARCHAR(50) NOT NULL UNIQUE,
			password_hash VARCHAR(64) NOT NULL,
			created_at %s NOT NULL,
			updated_at %s NOT NULL
		)`, pk, timestamp, timestamp),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS thinking_sessions (
			id %s,
			user_id INT,
			session_id VARCHAR(50) NOT NULL,
			tool_name VARCHAR(50) NOT NULL,
			method_name VARCHAR(50) NOT NULL,
			parameters TEXT,
			result TEXT,
			execution_ms INT,
			success BOOLEAN,
			error_message TEXT,
			created_at %s NOT NULL%s
		)`, pk, timestamp, inlineIndexes(dialect, "thinking_sessions")),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memory_entities (
			id %s,
			name VARCHAR(100) NOT NULL UNIQUE,
			entity_type VARCHAR(50) NOT NULL,
			created_at %s NOT NULL,
			updated_at %s NOT NULL%s
		)`, pk, timestamp, timestamp, inlineIndexes(dialect, "memory_entities")),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memory_observations (
			id %s,
			entity_id INT NOT NULL,
			content TEXT NOT NULL,
			created_at %s NOT NULL%s
		)`, pk, timestamp, inlineIndexes(dialect, "memory_observations")),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memory_relations (
			id %s,
			from_entity_id INT NOT NULL,
			to_entity_id INT NOT NULL,
			relation_type VARCHAR(50) NOT NULL,
			created_at %s NOT NULL%s
		)`, pk, timestamp, inlineIndexes(dialect, "memory_relations")),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS telemetry_logs (
			id VARCHAR(36) PRIMARY KEY,
			logged_at %s NOT NULL,
			level VARCHAR(10) NOT NULL,
			message TEXT,
			user_id VARCHAR(255),
			session_id VARCHAR(255),
			request_source VARCHAR(255),
			source_file VARCHAR(255),
			line_number INT,
			attributes TEXT
		)`, timestamp),
	}

	// MySQL has no CREATE INDEX IF NOT EXISTS; its indexes are declared inline.
	if dialect != DialectMySQL {
		stmts = append(stmts,
			"CREATE INDEX IF NOT EXISTS idx_session_tool ON thinking_sessions (session_id, tool_name)",
			"CREATE INDEX IF NOT EXISTS idx_user_tool ON thinking_sessions (user_id, tool_name)",
			"CREATE INDEX IF NOT EXISTS idx_sessions_created ON thinking_sessions (created_at)",
			"CREATE INDEX IF NOT EXISTS idx_entity_type ON memory_entities (entity_type)",
			"CREATE INDEX IF NOT EXISTS idx_obs_entity ON memory_observations (entity_id)",
			"CREATE INDEX IF NOT EXISTS idx_rel_from_to ON memory_relations (from_entity_id, to_entity_id)",
			"CREATE INDEX IF NOT EXISTS idx_rel_type ON memory_relations (relation_type)",
		)
	}

	return stmts
}

func inlineIndexes(dialect Dialect, table string) string {
	if dialect != DialectMySQL {
		return ""
	}
	switch table {
	case "thinking_sessions":
		return `,
			INDEX idx_session_tool (session_id, tool_name),
			INDEX idx_user_tool (user_id, tool_name),
			INDEX idx_sessions_created (created_at)`
	case "memory_entities":
		return `,
			INDEX idx_entity_type (entity_type)`
	case "memory_observations":
		return `,
			INDEX idx_obs_entity (entity_id)`
	case "memory_relations":
		return `,
			INDEX idx_rel_from_to (from_entity_id, to_entity_id),
			INDEX idx_rel_type (relation_type)`
	default:
		return ""
	}
}
