package rankers

import (
	"context"
	"fmt"
	"log"

	"smriti/internal/knowledge"
	"smriti/internal/types"
)

// VectorRanker performs nearest-neighbor search over persisted turn
// embeddings. Gated on embedder presence: knowledge.VectorStore already
// degrades to empty results when its embedder is nil, so this ranker needs
// no separate gate.
type VectorRanker struct {
	store *knowledge.VectorStore
}

// NewVectorRanker wraps a vector store.
func NewVectorRanker(store *knowledge.VectorStore) *VectorRanker {
	return &VectorRanker{store: store}
}

func (r *VectorRanker) Source() types.RankerSource { return types.SourceVector }

func (r *VectorRanker) Search(ctx context.Context, query string, opts Options) []Result {
	if r == nil || r.store == nil {
		return nil
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = 10
	}

	matches, err := r.store.SearchSimilar(ctx, query, opts.Project, topK)
	if err != nil {
		log.Printf("rankers: vector search failed: %v", err)
		return nil
	}

	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		results = append(results, Result{
			ID:             fmt.Sprintf("session-%s#%d", m.SessionID, m.TurnNumber),
			Title:          m.SessionID,
			ContentSnippet: m.Content,
		})
	}
	return results
}
