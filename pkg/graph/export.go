package graph

import (
	"context"
	"sort"
	"time"
)

// EntityRecord is the flattened wire form of an entity, tagged with a "type"
// discriminator so entities and relations can share one stream.
type EntityRecord struct {
	Type         string   `json:"type"`
	Name         string   `json:"name"`
	EntityType   string   `json:"entityType"`
	Observations []string `json:"observations"`
}

// RelationRecord is the flattened wire form of a relation.
type RelationRecord struct {
	Type         string `json:"type"`
	From         string `json:"from"`
	To           string `json:"to"`
	RelationType string `json:"relationType"`
}

// Stats summarizes a graph snapshot.
type Stats struct {
	EntitiesCount    int      `json:"entities_count"`
	RelationsCount   int      `json:"relations_count"`
	EntityTypesCount int      `json:"entity_types_count"`
	EntityTypes      []string `json:"entity_types"`
	LastUpdated      int64    `json:"last_updated"`
}

// FlattenGraph converts a graph snapshot into one record stream, entities
// first, then relations, each tagged with its kind.
func FlattenGraph(g *Graph) []any {
	records := make([]any, 0, len(g.Entities)+len(g.Relations))
	for _, entity := range g.Entities {
		obs := entity.Observations
		if obs == nil {
			obs = []string{}
		}
		records = append(records, EntityRecord{
			Type:         "entity",
			Name:         entity.Name,
			EntityType:   entity.EntityType,
			Observations: obs,
		})
	}
	for _, rel := range g.Relations {
		records = append(records, RelationRecord{
			Type:         "relation",
			From:         rel.From,
			To:           rel.To,
			RelationType: rel.RelationType,
		})
	}
	return records
}

// ComputeStats derives summary statistics from a graph snapshot. LastUpdated
// is the latest entity update expressed in epoch seconds, zero for an empty
// graph.
func ComputeStats(g *Graph) Stats {
	stats := Stats{
		EntitiesCount:  len(g.Entities),
		RelationsCount: len(g.Relations),
		EntityTypes:    []string{},
	}

	seen := make(map[string]bool)
	var latest time.Time
	for _, entity := range g.Entities {
		if !seen[entity.EntityType] {
			seen[entity.EntityType] = true
			stats.EntityTypes = append(stats.EntityTypes, entity.EntityType)
		}
		if entity.UpdatedAt.After(latest) {
			latest = entity.UpdatedAt
		}
	}
	sort.Strings(stats.EntityTypes)
	stats.EntityTypesCount = len(stats.EntityTypes)
	if !latest.IsZero() {
		stats.LastUpdated = latest.Unix()
	}
	return stats
}

// Stats loads the graph and computes its summary in one call.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	g, err := s.ReadGraph(ctx)
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(g), nil
}
