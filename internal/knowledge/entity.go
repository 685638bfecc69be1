// Package knowledge wraps the GraphRAG entity graph (Neo4j) and the turn
// vector index (chromem-go) that back internal/rankers' graph and vector
// rankers. Both dependencies are optional: a nil client or store yields
// empty results rather than an error, the same way the rest of this engine
// degrades gracefully when an external backend is unavailable.
package knowledge

import "smriti/internal/types"

// EntityType classifies a node extracted from session content.
type EntityType string

const (
	EntityConcept EntityType = "concept"
	EntityTool    EntityType = "tool"
	EntityProject EntityType = "project"
	EntitySession EntityType = "session"
	EntityFile    EntityType = "file"
)

// RelationshipType classifies an edge between two entities.
type RelationshipType string

const (
	RelMentions  RelationshipType = "MENTIONS"
	RelUsedIn    RelationshipType = "USED_IN"
	RelRelatesTo RelationshipType = "RELATES_TO"
	RelPartOf    RelationshipType = "PART_OF"
)

// Entity is a node in the GraphRAG graph: a concept, tool, file, project,
// or session that appeared in recorded content.
type Entity struct {
	ID          string           `json:"id"`
	Label       string           `json:"label"`
	Type        EntityType       `json:"type"`
	Description string           `json:"description,omitempty"`
	Project     string           `json:"project,omitempty"`
	PramanaType types.PramanaType `json:"pramana_type,omitempty"`
	CreatedAt   int64            `json:"created_at"`
	UpdatedAt   int64            `json:"updated_at"`
}

// Relationship is a directed, typed edge between two entities.
type Relationship struct {
	ID        string           `json:"id"`
	FromID    string           `json:"from_id"`
	ToID      string           `json:"to_id"`
	Type      RelationshipType `json:"type"`
	Strength  float64          `json:"strength"`
	CreatedAt int64            `json:"created_at"`
}
