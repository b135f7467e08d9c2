package graph

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/soundprediction/graphmem/pkg/store"
)

// Store persists the knowledge graph through scoped sessions. Every
// multi-step operation runs inside a single session so partial failure never
// leaves orphaned rows.
type Store struct {
	mgr *store.Manager
}

// NewStore creates a graph store over the connection manager.
func NewStore(mgr *store.Manager) *Store {
	return &Store{mgr: mgr}
}

// entityID resolves an entity name inside the transaction. Returns 0 and no
// error when the entity does not exist.
func entityID(ctx context.Context, tx *store.Tx, name string) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, "SELECT id FROM memory_entities WHERE name = ?", name).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve entity %q: %w", name, err)
	}
	return id, nil
}

// CreateEntities creates the entities and their initial observations in one
// transaction. An already-existing name fails the whole batch with
// DuplicateNameError; nothing is persisted.
func (s *Store) CreateEntities(ctx context.Context, inputs []EntityInput) ([]Entity, error) {
	created := make([]Entity, 0, len(inputs))

	err := s.mgr.WithSession(ctx, func(ctx context.Context, tx *store.Tx) error {
		now := time.Now().UTC().Truncate(time.Second)
		for _, in := range inputs {
			id, err := entityID(ctx, tx, in.Name)
			if err != nil {
				return err
			}
			if id != 0 {
				return &store.DuplicateNameError{Name: in.Name}
			}

			id, err = tx.Insert(ctx,
				"INSERT INTO memory_entities (name, entity_type, created_at, updated_at) VALUES (?, ?, ?, ?)",
				in.Name, in.EntityType, now, now)
			if err != nil {
				// A concurrent writer can slip between the check and the
				// insert on a multiplexed backend.
				if store.IsUniqueViolation(err) {
					return &store.DuplicateNameError{Name: in.Name}
				}
				return fmt.Errorf("failed to insert entity %q: %w", in.Name, err)
			}

			for _, content := range in.Observations {
				if _, err := tx.Exec(ctx,
					"INSERT INTO memory_observations (entity_id, content, created_at) VALUES (?, ?, ?)",
					id, content, now); err != nil {
					return fmt.Errorf("failed to insert observation for %q: %w", in.Name, err)
				}
			}

			created = append(created, Entity{
				ID:           id,
				Name:         in.Name,
				EntityType:   in.EntityType,
				Observations: append([]string(nil), in.Observations...),
				CreatedAt:    now,
				UpdatedAt:    now,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// AddObservations appends new observations to an existing entity, filtering
// duplicates against the already-stored set.
func (s *Store) AddObservations(ctx context.Context, entityName string, contents []string) (*ObservationResult, error) {
	result := &ObservationResult{EntityName: entityName}

	err := s.mgr.WithSession(ctx, func(ctx context.Context, tx *store.Tx) error {
		id, err := entityID(ctx, tx, entityName)
		if err != nil {
			return err
		}
		if id == 0 {
			return fmt.Errorf("entity %q: %w", entityName, store.ErrNotFound)
		}

		existing := make(map[string]bool)
		rows, err := tx.Query(ctx, "SELECT content FROM memory_observations WHERE entity_id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to load observations for %q: %w", entityName, err)
		}
		for rows.Next() {
			var content string
			if err := rows.Scan(&content); err != nil {
				rows.Close()
				return err
			}
			existing[content] = true
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		now := time.Now().UTC().Truncate(time.Second)
		for _, content := range contents {
			if existing[content] {
				continue
			}
			if _, err := tx.Exec(ctx,
				"INSERT INTO memory_observations (entity_id, content, created_at) VALUES (?, ?, ?)",
				id, content, now); err != nil {
				return fmt.Errorf("failed to insert observation for %q: %w", entityName, err)
			}
			existing[content] = true
			result.Added = append(result.Added, content)
		}

		if len(result.Added) > 0 {
			if _, err := tx.Exec(ctx,
				"UPDATE memory_entities SET updated_at = ? WHERE id = ?", now, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CreateRelations creates the relations in one transaction. A missing
// endpoint fails the batch with DanglingReferenceError; an exact duplicate
// (from, to, type) triple is skipped.
func (s *Store) CreateRelations(ctx context.Context, inputs []RelationInput) ([]Relation, error) {
	created := make([]Relation, 0, len(inputs))

	err := s.mgr.WithSession(ctx, func(ctx context.Context, tx *store.Tx) error {
		now := time.Now().UTC().Truncate(time.Second)
		for _, in := range inputs {
			fromID, err := entityID(ctx, tx, in.From)
			if err != nil {
				return err
			}
			if fromID == 0 {
				return &store.DanglingReferenceError{From: in.From, To: in.To, Missing: in.From}
			}
			toID, err := entityID(ctx, tx, in.To)
			if err != nil {
				return err
			}
			if toID == 0 {
				return &store.DanglingReferenceError{From: in.From, To: in.To, Missing: in.To}
			}

			var existing int64
			err = tx.QueryRow(ctx,
				"SELECT id FROM memory_relations WHERE from_entity_id = ? AND to_entity_id = ? AND relation_type = ?",
				fromID, toID, in.RelationType).Scan(&existing)
			if err == nil {
				continue // duplicate triple, skip
			}
			if err != sql.ErrNoRows {
				return fmt.Errorf("failed to check relation %q -> %q: %w", in.From, in.To, err)
			}

			id, err := tx.Insert(ctx,
				"INSERT INTO memory_relations (from_entity_id, to_entity_id, relation_type, created_at) VALUES (?, ?, ?, ?)",
				fromID, toID, in.RelationType, now)
			if err != nil {
				return fmt.Errorf("failed to insert relation %q -> %q: %w", in.From, in.To, err)
			}

			created = append(created, Relation{
				ID:           id,
				From:         in.From,
				To:           in.To,
				RelationType: in.RelationType,
				CreatedAt:    now,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// DeleteEntities deletes the named entities together with their observations
// and incident relations, atomically. Names that do not exist are ignored.
func (s *Store) DeleteEntities(ctx context.Context, names []string) error {
	return s.mgr.WithSession(ctx, func(ctx context.Context, tx *store.Tx) error {
		for _, name := range names {
			id, err := entityID(ctx, tx, name)
			if err != nil {
				return err
			}
			if id == 0 {
				continue
			}
			if _, err := tx.Exec(ctx,
				"DELETE FROM memory_relations WHERE from_entity_id = ? OR to_entity_id = ?", id, id); err != nil {
				return fmt.Errorf("failed to delete relations of %q: %w", name, err)
			}
			if _, err := tx.Exec(ctx,
				"DELETE FROM memory_observations WHERE entity_id = ?", id); err != nil {
				return fmt.Errorf("failed to delete observations of %q: %w", name, err)
			}
			if _, err := tx.Exec(ctx,
				"DELETE FROM memory_entities WHERE id = ?", id); err != nil {
				return fmt.Errorf("failed to delete entity %q: %w", name, err)
			}
		}
		return nil
	})
}

// DeleteObservations removes the given observation texts from an entity.
// A missing entity is ignored.
func (s *Store) DeleteObservations(ctx context.Context, entityName string, contents []string) error {
	return s.mgr.WithSession(ctx, func(ctx context.Context, tx *store.Tx) error {
		id, err := entityID(ctx, tx, entityName)
		if err != nil {
			return err
		}
		if id == 0 {
			return nil
		}
		for _, content := range contents {
			if _, err := tx.Exec(ctx,
				"DELETE FROM memory_observations WHERE entity_id = ? AND content = ?", id, content); err != nil {
				return fmt.Errorf("failed to delete observation of %q: %w", entityName, err)
			}
		}
		return nil
	})
}

// DeleteRelations removes relations matched by their (from, to, type) triple.
func (s *Store) DeleteRelations(ctx context.Context, inputs []RelationInput) error {
	return s.mgr.WithSession(ctx, func(ctx context.Context, tx *store.Tx) error {
		for _, in := range inputs {
			fromID, err := entityID(ctx, tx, in.From)
			if err != nil {
				return err
			}
			toID, err := entityID(ctx, tx, in.To)
			if err != nil {
				return err
			}
			if fromID == 0 || toID == 0 {
				continue
			}
			if _, err := tx.Exec(ctx,
				"DELETE FROM memory_relations WHERE from_entity_id = ? AND to_entity_id = ? AND relation_type = ?",
				fromID, toID, in.RelationType); err != nil {
				return fmt.Errorf("failed to delete relation %q -> %q: %w", in.From, in.To, err)
			}
		}
		return nil
	})
}

// ReadGraph loads the entire knowledge graph in one consistent snapshot.
func (s *Store) ReadGraph(ctx context.Context) (*Graph, error) {
	graph := &Graph{}

	err := s.mgr.WithSession(ctx, func(ctx context.Context, tx *store.Tx) error {
		var err error
		graph.Entities, err = loadEntities(ctx, tx)
		if err != nil {
			return err
		}
		graph.Relations, err = loadRelations(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return graph, nil
}

// SearchNodes returns the entities whose name, type or observations contain
// the query (case-insensitive), plus the relations between matched entities.
func (s *Store) SearchNodes(ctx context.Context, query string) (*Graph, error) {
	full, err := s.ReadGraph(ctx)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(query)
	matched := make([]Entity, 0)
	for _, entity := range full.Entities {
		if entityMatches(entity, needle) {
			matched = append(matched, entity)
		}
	}
	return subgraph(matched, full.Relations), nil
}

// OpenNodes returns the named entities and the relations between them.
func (s *Store) OpenNodes(ctx context.Context, names []string) (*Graph, error) {
	full, err := s.ReadGraph(ctx)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}
	matched := make([]Entity, 0, len(names))
	for _, entity := range full.Entities {
		if wanted[entity.Name] {
			matched = append(matched, entity)
		}
	}
	return subgraph(matched, full.Relations), nil
}

func entityMatches(entity Entity, needle string) bool {
	if strings.Contains(strings.ToLower(entity.Name), needle) ||
		strings.Contains(strings.ToLower(entity.EntityType), needle) {
		return true
	}
	for _, obs := range entity.Observations {
		if strings.Contains(strings.ToLower(obs), needle) {
			return true
		}
	}
	return false
}

func subgraph(entities []Entity, relations []Relation) *Graph {
	names := make(map[string]bool, len(entities))
	for _, entity := range entities {
		names[entity.Name] = true
	}
	kept := make([]Relation, 0)
	for _, rel := range relations {
		if names[rel.From] && names[rel.To] {
			kept = append(kept, rel)
		}
	}
	return &Graph{Entities: entities, Relations: kept}
}

func loadEntities(ctx context.Context, tx *store.Tx) ([]Entity, error) {
	rows, err := tx.Query(ctx,
		"SELECT id, name, entity_type, created_at, updated_at FROM memory_entities ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	entities := make([]Entity, 0)
	index := make(map[int64]int)
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.ID, &e.Name, &e.EntityType, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.Observations = []string{}
		index[e.ID] = len(entities)
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	obsRows, err := tx.Query(ctx,
		"SELECT entity_id, content FROM memory_observations ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer obsRows.Close()

	for obsRows.Next() {
		var entityID int64
		var content string
		if err := obsRows.Scan(&entityID, &content); err != nil {
			return nil, err
		}
		if i, ok := index[entityID]; ok {
			entities[i].Observations = append(entities[i].Observations, content)
		}
	}
	return entities, obsRows.Err()
}

func loadRelations(ctx context.Context, tx *store.Tx) ([]Relation, error) {
	rows, err := tx.Query(ctx, `
		SELECT r.id, f.name, t.name, r.relation_type, r.created_at
		FROM memory_relations r
		JOIN memory_entities f ON f.id = r.from_entity_id
		JOIN memory_entities t ON t.id = r.to_entity_id
		ORDER BY r.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query relations: %w", err)
	}
	defer rows.Close()

	relations := make([]Relation, 0)
	for rows.Next() {
		var r Relation
		if err := rows.Scan(&r.ID, &r.From, &r.To, &r.RelationType, &r.CreatedAt); err != nil {
			return nil, err
		}
		relations = append(relations, r)
	}
	return relations, rows.Err()
}
