package rankers

import (
	"context"
	"log"

	"smriti/internal/knowledge"
	"smriti/internal/types"
)

// GraphRanker performs node lookup by label plus edge-neighborhood
// expansion over the GraphRAG entity graph. Gated on a nil client:
// knowledge.GraphStore already answers every query with an empty result
// when disabled, so no separate gate is needed here either.
type GraphRanker struct {
	store *knowledge.GraphStore
}

// NewGraphRanker wraps a graph store.
func NewGraphRanker(store *knowledge.GraphStore) *GraphRanker {
	return &GraphRanker{store: store}
}

func (r *GraphRanker) Source() types.RankerSource { return types.SourceGraphRAG }

func (r *GraphRanker) Search(ctx context.Context, query string, opts Options) []Result {
	if r == nil || r.store == nil {
		return nil
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = 10
	}

	seeds, err := r.store.FindByLabel(ctx, query, opts.Project, topK)
	if err != nil {
		log.Printf("rankers: graph label lookup failed: %v", err)
		return nil
	}

	seen := make(map[string]bool, len(seeds))
	results := make([]Result, 0, topK)
	appendEntity := func(e *knowledge.Entity) {
		if seen[e.ID] || len(results) >= topK {
			return
		}
		seen[e.ID] = true
		results = append(results, Result{
			ID:             "entity-" + e.ID,
			Title:          e.Label,
			ContentSnippet: e.Description,
			Project:        e.Project,
		})
	}

	for _, e := range seeds {
		appendEntity(e)
	}

	// Expand the neighborhood of the best-matching seed so the graph
	// signal surfaces entities related to, not just mentioning, the query.
	if len(seeds) > 0 && len(results) < topK {
		neighbors, err := r.store.Neighbors(ctx, seeds[0].ID, 2, topK)
		if err != nil {
			log.Printf("rankers: graph neighbor expansion failed: %v", err)
			return results
		}
		for _, n := range neighbors {
			appendEntity(n)
		}
	}

	return results
}

// PramanaBatch looks up the epistemic category of each id, via the graph
// store's entity metadata. Exposed directly (not through the Ranker
// interface) because hybrid search's step 5 needs a map, not a ranked list.
func (r *GraphRanker) PramanaBatch(ctx context.Context, ids []string) map[string]types.PramanaType {
	if r == nil || r.store == nil {
		return map[string]types.PramanaType{}
	}
	m, err := r.store.PramanaBatch(ctx, ids)
	if err != nil {
		log.Printf("rankers: pramana batch lookup failed: %v", err)
		return map[string]types.PramanaType{}
	}
	return m
}
