package main

import (
	"log/slog"

	"github.com/soundprediction/graphmem/pkg/logger"
)

// Walks through the log lines a typical migration and backend switch emit,
// so the terminal colors can be checked by eye: persistence progress green,
// warnings yellow, errors red.
func main() {
	log := logger.NewDefaultLogger(slog.LevelDebug)

	log.Debug("loaded config", "backend", "sqlite", "path", "./graphmem.db")
	log.Info("schema initialized", "backend", "sqlite")

	log.Info("migration started", "file", "memory.jsonl")
	log.Info("Persisting entities", "count", 42)
	log.Info("Persisting relations", "count", 156)
	log.Warn("repaired malformed line", "line", 7)
	log.Warn("skipped dangling relation", "from", "FastAPI", "to", "Python")
	log.Info("migration finished", "entities", 42, "relations", 155, "skipped", 1)

	log.Info("switching backend", "from", "sqlite", "to", "postgres")
	log.Error("backend unavailable", "backend", "postgres", "error", "connection refused")
	log.Info("previous backend kept active", "backend", "sqlite")
}
