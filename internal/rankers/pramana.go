package rankers

import (
	"context"

	"smriti/internal/types"
)

// PramanaLookup resolves the epistemic category of a batch of result ids,
// defaulting anything absent (or with an empty/unset type) to shabda
// (testimony) — the default epistemic category when none was recorded.
type PramanaLookup struct {
	batch func(ctx context.Context, ids []string) map[string]types.PramanaType
}

// NewPramanaLookup wraps a graph ranker's batch lookup. Passing nil yields
// a lookup that always defaults to shabda.
func NewPramanaLookup(graph *GraphRanker) *PramanaLookup {
	if graph == nil {
		return &PramanaLookup{}
	}
	return &PramanaLookup{batch: graph.PramanaBatch}
}

// Lookup returns pramana_type for every id in ids, defaulting missing
// entries to shabda.
func (p *PramanaLookup) Lookup(ctx context.Context, ids []string) map[string]types.PramanaType {
	out := make(map[string]types.PramanaType, len(ids))
	var found map[string]types.PramanaType
	if p != nil && p.batch != nil {
		found = p.batch(ctx, ids)
	}
	for _, id := range ids {
		t := found[id]
		if t == "" {
			t = types.PramanaShabda
		}
		out[id] = t
	}
	return out
}
