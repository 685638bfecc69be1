package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"smriti/internal/types"
)

// GraphStore provides CRUD and traversal operations over the GraphRAG
// entity graph. A nil *GraphStore (no client configured) answers every
// read with an empty result rather than an error, so the graph ranker can
// run unconditionally.
type GraphStore struct {
	client   *Neo4jClient
	database string
}

// NewGraphStore wraps a Neo4j client. client may be nil.
func NewGraphStore(client *Neo4jClient, database string) *GraphStore {
	return &GraphStore{client: client, database: database}
}

func (s *GraphStore) enabled() bool { return s != nil && s.client != nil }

// InitializeSchema creates the constraints and indexes the graph store
// relies on. Safe to call repeatedly (every statement is IF NOT EXISTS).
func (s *GraphStore) InitializeSchema(ctx context.Context) error {
	if !s.enabled() {
		return nil
	}
	statements := []string{
		"CREATE CONSTRAINT entity_id_unique IF NOT EXISTS FOR (e:Entity) REQUIRE e.id IS UNIQUE",
		"CREATE INDEX entity_type_idx IF NOT EXISTS FOR (e:Entity) ON (e.type)",
		"CREATE INDEX entity_label_idx IF NOT EXISTS FOR (e:Entity) ON (e.label)",
		"CREATE INDEX entity_project_idx IF NOT EXISTS FOR (e:Entity) ON (e.project)",
	}
	for _, stmt := range statements {
		_, err := s.client.executeWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
			res, err := tx.Run(ctx, stmt, nil)
			if err != nil {
				return nil, err
			}
			return res.Consume(ctx)
		})
		if err != nil {
			return fmt.Errorf("knowledge: failed to apply schema statement %q: %w", stmt, err)
		}
	}
	return nil
}

// CreateEntity stores or updates an entity node, keyed by ID.
func (s *GraphStore) CreateEntity(ctx context.Context, e *Entity) error {
	if !s.enabled() {
		return nil
	}
	now := time.Now().Unix()
	if e.CreatedAt == 0 {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	query := `
		MERGE (e:Entity {id: $id})
		SET e.label = $label, e.type = $type, e.description = $description,
		    e.project = $project, e.pramana_type = $pramana_type,
		    e.created_at = coalesce(e.created_at, $created_at), e.updated_at = $updated_at
	`
	params := map[string]interface{}{
		"id": e.ID, "label": e.Label, "type": string(e.Type), "description": e.Description,
		"project": e.Project, "pramana_type": string(e.PramanaType),
		"created_at": e.CreatedAt, "updated_at": e.UpdatedAt,
	}

	_, err := s.client.executeWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("knowledge: failed to create entity: %w", err)
	}
	return nil
}

// CreateRelationship links two existing entities. Unknown endpoints are a
// no-op, not an error: callers extract relationships best-effort from
// content and may reference an entity that was filtered out upstream.
func (s *GraphStore) CreateRelationship(ctx context.Context, rel *Relationship) error {
	if !s.enabled() {
		return nil
	}
	if rel.CreatedAt == 0 {
		rel.CreatedAt = time.Now().Unix()
	}

	query := fmt.Sprintf(`
		MATCH (from:Entity {id: $from_id})
		MATCH (to:Entity {id: $to_id})
		MERGE (from)-[r:%s]->(to)
		SET r.strength = $strength, r.created_at = coalesce(r.created_at, $created_at)
	`, sanitizeRelType(rel.Type))

	params := map[string]interface{}{
		"from_id": rel.FromID, "to_id": rel.ToID,
		"strength": rel.Strength, "created_at": rel.CreatedAt,
	}

	_, err := s.client.executeWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("knowledge: failed to create relationship: %w", err)
	}
	return nil
}

// sanitizeRelType guards against Cypher injection through a relationship
// type string, since it is interpolated directly (Cypher has no
// parameterized syntax for relationship type names).
func sanitizeRelType(t RelationshipType) string {
	s := strings.ToUpper(string(t))
	var b strings.Builder
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || r == '_' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return string(RelRelatesTo)
	}
	return b.String()
}

// FindByLabel returns entities whose label contains term (case-insensitive),
// optionally scoped to a project, ordered most-recently-updated first.
func (s *GraphStore) FindByLabel(ctx context.Context, term, project string, limit int) ([]*Entity, error) {
	if !s.enabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	query := `
		MATCH (e:Entity)
		WHERE toLower(e.label) CONTAINS toLower($term)
		  AND ($project = '' OR e.project = $project)
		RETURN e.id, e.label, e.type, e.description, e.project, e.pramana_type, e.created_at, e.updated_at
		ORDER BY e.updated_at DESC
		LIMIT $limit
	`
	params := map[string]interface{}{"term": term, "project": project, "limit": int64(limit)}

	result, err := s.client.executeRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		var entities []*Entity
		for res.Next(ctx) {
			entities = append(entities, scanEntity(res.Record().Values))
		}
		return entities, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge: label lookup failed: %w", err)
	}
	entities, _ := result.([]*Entity)
	return entities, nil
}

// Neighbors returns entities within maxHops of id, nearest first. Used by
// the GraphRAG ranker's edge-neighborhood expansion step.
func (s *GraphStore) Neighbors(ctx context.Context, id string, maxHops, limit int) ([]*Entity, error) {
	if !s.enabled() {
		return nil, nil
	}
	if maxHops <= 0 {
		maxHops = 2
	}
	if limit <= 0 {
		limit = 10
	}

	query := fmt.Sprintf(`
		MATCH path = (start:Entity {id: $id})-[*1..%d]-(connected:Entity)
		WHERE start.id <> connected.id
		RETURN DISTINCT connected.id, connected.label, connected.type, connected.description,
		       connected.project, connected.pramana_type, connected.created_at, connected.updated_at,
		       length(path) as hops
		ORDER BY hops ASC, connected.updated_at DESC
		LIMIT $limit
	`, maxHops)
	params := map[string]interface{}{"id": id, "limit": int64(limit)}

	result, err := s.client.executeRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		var entities []*Entity
		for res.Next(ctx) {
			entities = append(entities, scanEntity(res.Record().Values))
		}
		return entities, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge: neighbor expansion failed: %w", err)
	}
	entities, _ := result.([]*Entity)
	return entities, nil
}

// PramanaBatch returns the pramana_type of every entity in ids that has one
// set. Missing entries are left absent from the map; callers default them
// to shabda, per spec.
func (s *GraphStore) PramanaBatch(ctx context.Context, ids []string) (map[string]types.PramanaType, error) {
	out := make(map[string]types.PramanaType)
	if !s.enabled() || len(ids) == 0 {
		return out, nil
	}

	query := `
		MATCH (e:Entity)
		WHERE e.id IN $ids AND e.pramana_type IS NOT NULL AND e.pramana_type <> ''
		RETURN e.id, e.pramana_type
	`
	result, err := s.client.executeRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		res, err := tx.Run(ctx, query, map[string]interface{}{"ids": ids})
		if err != nil {
			return nil, err
		}
		m := make(map[string]types.PramanaType)
		for res.Next(ctx) {
			v := res.Record().Values
			m[asString(v[0])] = types.PramanaType(asString(v[1]))
		}
		return m, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge: pramana batch lookup failed: %w", err)
	}
	if m, ok := result.(map[string]types.PramanaType); ok {
		return m, nil
	}
	return out, nil
}

func scanEntity(v []interface{}) *Entity {
	return &Entity{
		ID:          asString(v[0]),
		Label:       asString(v[1]),
		Type:        EntityType(asString(v[2])),
		Description: asString(v[3]),
		Project:     asString(v[4]),
		PramanaType: types.PramanaType(asString(v[5])),
		CreatedAt:   asInt64(v[6]),
		UpdatedAt:   asInt64(v[7]),
	}
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
