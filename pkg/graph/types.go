package graph

import "time"

// Entity is a knowledge-graph node with its attached observations.
type Entity struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	EntityType   string    `json:"entityType"`
	Observations []string  `json:"observations"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Relation is a typed directed edge between two entities, identified by the
// entity names on the wire and by ids in storage.
type Relation struct {
	ID           int64     `json:"id"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	RelationType string    `json:"relationType"`
	CreatedAt    time.Time `json:"created_at"`
}

// Graph is a snapshot of entities and the relations between them.
type Graph struct {
	Entities  []Entity   `json:"entities"`
	Relations []Relation `json:"relations"`
}

// EntityInput describes an entity to create.
type EntityInput struct {
	Name         string   `json:"name"`
	EntityType   string   `json:"entityType"`
	Observations []string `json:"observations,omitempty"`
}

// RelationInput describes a relation to create or delete.
type RelationInput struct {
	From         string `json:"from"`
	To           string `json:"to"`
	RelationType string `json:"relationType"`
}

// ObservationResult reports which observations were actually added to an
// entity (duplicates are filtered).
type ObservationResult struct {
	EntityName string   `json:"entityName"`
	Added      []string `json:"addedObservations"`
}
