// Package migrate imports legacy memory dumps in line-delimited JSON form.
// Legacy files were appended by hand-rolled writers and frequently carry
// truncated or mis-quoted lines; parsing attempts a repair pass before giving
// up on a line.
package migrate

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/soundprediction/graphmem/pkg/codec"
	"github.com/soundprediction/graphmem/pkg/graph"
	"github.com/soundprediction/graphmem/pkg/store"
)

// Report summarizes an import run.
type Report struct {
	Entities  int `json:"entities"`
	Relations int `json:"relations"`
	Repaired  int `json:"repaired"`
	Skipped   int `json:"skipped"`
}

// Importer replays a legacy dump into the graph store.
type Importer struct {
	store  *graph.Store
	logger *slog.Logger
}

// NewImporter creates an importer over the graph store.
func NewImporter(store *graph.Store, logger *slog.Logger) *Importer {
	return &Importer{store: store, logger: logger}
}

// ImportFile reads a line-delimited dump and loads it. Entities are created
// before relations regardless of file order so references resolve. Records
// that already exist or still fail after repair are skipped, not fatal.
func (im *Importer) ImportFile(ctx context.Context, path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dump: %w", err)
	}
	defer f.Close()

	report := &Report{}
	var entities []graph.EntityInput
	var relations []graph.RelationInput

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		repaired := false
		value, decodeErr := codec.Decode(line)
		if decodeErr != nil {
			value, decodeErr = codec.DecodeRepaired(line)
			if decodeErr != nil {
				im.logger.Warn("Skipping unparseable line", "line", lineNo)
				report.Skipped++
				continue
			}
			repaired = true
		}

		record, ok := value.(map[string]any)
		if !ok {
			im.logger.Warn("Skipping non-object line", "line", lineNo)
			report.Skipped++
			continue
		}

		// A repair only counts once the line yields a usable record.
		switch record["type"] {
		case "entity":
			entities = append(entities, entityFromRecord(record))
		case "relation":
			relations = append(relations, relationFromRecord(record))
		default:
			im.logger.Warn("Skipping record of unknown kind", "line", lineNo)
			report.Skipped++
			continue
		}
		if repaired {
			report.Repaired++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dump: %w", err)
	}

	for _, entity := range entities {
		if entity.Name == "" {
			report.Skipped++
			continue
		}
		_, err := im.store.CreateEntities(ctx, []graph.EntityInput{entity})
		if err != nil {
			var duplicate *store.DuplicateNameError
			if errors.As(err, &duplicate) {
				report.Skipped++
				continue
			}
			return report, err
		}
		report.Entities++
	}

	for _, relation := range relations {
		created, err := im.store.CreateRelations(ctx, []graph.RelationInput{relation})
		if err != nil {
			var dangling *store.DanglingReferenceError
			if errors.As(err, &dangling) {
				im.logger.Warn("Skipping relation with missing endpoint", "missing", dangling.Missing)
				report.Skipped++
				continue
			}
			return report, err
		}
		if len(created) == 0 {
			report.Skipped++ // duplicate triple
			continue
		}
		report.Relations++
	}

	im.logger.Info("Import complete",
		"entities", report.Entities,
		"relations", report.Relations,
		"repaired", report.Repaired,
		"skipped", report.Skipped)
	return report, nil
}

func entityFromRecord(record map[string]any) graph.EntityInput {
	input := graph.EntityInput{
		Name:       stringField(record, "name"),
		EntityType: stringField(record, "entityType"),
	}
	if raw, ok := record["observations"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				input.Observations = append(input.Observations, s)
			}
		}
	}
	return input
}

func relationFromRecord(record map[string]any) graph.RelationInput {
	return graph.RelationInput{
		From:         stringField(record, "from"),
		To:           stringField(record, "to"),
		RelationType: stringField(record, "relationType"),
	}
}

func stringField(record map[string]any, key string) string {
	s, _ := record[key].(string)
	return s
}
