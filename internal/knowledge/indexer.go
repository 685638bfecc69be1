package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"smriti/internal/knowledge/extraction"
	"smriti/internal/types"
)

// entityTypeFor maps an extraction.ExtractedEntity's pattern label onto this
// package's coarser EntityType vocabulary. Everything that isn't clearly a
// file reference is indexed as a concept: spec.md's GraphRAG ranker only
// needs "something mentioned in this content", not the extractor's finer
// pattern taxonomy.
func entityTypeFor(extractedType string) EntityType {
	if extractedType == "file_path" {
		return EntityFile
	}
	return EntityConcept
}

// entityID derives a stable id for an extracted entity so repeated mentions
// of the same text within a project upsert onto the same node instead of
// duplicating it.
func entityID(project, entityType, text string) string {
	sum := sha256.Sum256([]byte(project + "\x1f" + entityType + "\x1f" + text))
	return hex.EncodeToString(sum[:])[:32]
}

// IndexTurnContent extracts entities from one turn's content and upserts
// them into the graph, each linked to the owning session with a MENTIONS
// relationship. A nil store is a no-op — the graph ranker it backs already
// tolerates an absent graph, so indexing degrades the same way.
func IndexTurnContent(ctx context.Context, store *GraphStore, extractor extraction.Extractor, project, sessionID string, turn *types.Turn) error {
	if !store.enabled() || extractor == nil || turn == nil || turn.Content == "" {
		return nil
	}

	result, err := extractor.Extract(turn.Content)
	if err != nil || result == nil || len(result.Entities) == 0 {
		return err
	}

	now := time.Now().Unix()
	sessionEntityID := entityID(project, string(EntitySession), sessionID)
	if err := store.CreateEntity(ctx, &Entity{
		ID:        sessionEntityID,
		Label:     sessionID,
		Type:      EntitySession,
		Project:   project,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return err
	}

	for _, ent := range result.Entities {
		id := entityID(project, ent.Type, ent.Text)
		if err := store.CreateEntity(ctx, &Entity{
			ID:        id,
			Label:     ent.Text,
			Type:      entityTypeFor(ent.Type),
			Project:   project,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return err
		}
		if err := store.CreateRelationship(ctx, &Relationship{
			ID:        sessionEntityID + ":" + id,
			FromID:    sessionEntityID,
			ToID:      id,
			Type:      RelMentions,
			Strength:  ent.Confidence,
			CreatedAt: now,
		}); err != nil {
			return err
		}
	}
	return nil
}
