package hybridsearch

import (
	"sort"
	"time"

	"smriti/internal/kalachakra"
	"smriti/internal/rankers"
	"smriti/internal/types"
)

// fuse implements spec.md §4.6 steps 3-4: accumulate a reciprocal-rank
// contribution w[signal]/(k+rank) per ranker hit into one entry per id, then
// apply the multi-source bonus (×1.15 at 3+ sources, ×1.05 at 2+). Contains
// no sorting, filtering, or truncation — that's finalize's job, kept
// separate so each step is independently testable.
func fuse(byRanker map[types.RankerSource][]rankers.Result, w [4]float64, k int) []*FusedResult {
	entries := make(map[string]*FusedResult)

	for source, results := range byRanker {
		idx := source.SignalIndex()
		for rank, r := range results {
			e, ok := entries[r.ID]
			if !ok {
				e = &FusedResult{
					ID:        r.ID,
					Title:     r.Title,
					Timestamp: r.Timestamp,
					Project:   r.Project,
					Ranks:     make(map[types.RankerSource]int),
				}
				entries[r.ID] = e
			}
			if len(r.ContentSnippet) > len(e.ContentSnippet) {
				e.ContentSnippet = r.ContentSnippet
			}
			e.Score += w[idx] / float64(k+rank)
			if _, seen := e.Ranks[source]; !seen {
				e.Sources = append(e.Sources, source)
			}
			e.Ranks[source] = rank
		}
	}

	out := make([]*FusedResult, 0, len(entries))
	for _, e := range entries {
		switch {
		case len(e.Sources) >= 3:
			e.Score *= 1.15
		case len(e.Sources) >= 2:
			e.Score *= 1.05
		}
		out = append(out, e)
	}
	return out
}

// applyPramanaBoost implements spec.md §4.6 step 5: add δ·w[pramana]·
// reliability[type] to every entry with a known pramana type. Entries
// absent from pramanaTypes are left unboosted (the lookup itself already
// defaults absent ids to shabda; see rankers.PramanaLookup).
func applyPramanaBoost(entries []*FusedResult, pramanaTypes map[string]types.PramanaType, wPramana, delta float64) {
	for _, e := range entries {
		pt, ok := pramanaTypes[e.ID]
		if !ok {
			continue
		}
		r, ok := reliability[pt]
		if !ok {
			r = reliability[types.PramanaShabda]
		}
		e.PramanaType = &pt
		e.Score += delta * wPramana * r
	}
}

// applyTemporalBoost implements spec.md §4.6 step 6: multiply every entry
// that carries a timestamp by the Kala Chakra decay mixture relative to now.
// Entries without a timestamp are left unboosted.
func applyTemporalBoost(entries []*FusedResult, kala *kalachakra.KalaChakra, now time.Time) {
	for _, e := range entries {
		if e.Timestamp == nil {
			continue
		}
		e.Score = kala.Boost(e.Score, *e.Timestamp, now)
	}
}

// finalize implements spec.md §4.6 step 7: drop entries below min_score,
// stable-sort by score descending then id ascending, and truncate to top_k.
func finalize(entries []*FusedResult, cfg Config) []FusedResult {
	filtered := make([]*FusedResult, 0, len(entries))
	for _, e := range entries {
		if e.Score >= cfg.MinScore {
			filtered = append(filtered, e)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].Score != filtered[j].Score {
			return filtered[i].Score > filtered[j].Score
		}
		return filtered[i].ID < filtered[j].ID
	})

	if cfg.TopK > 0 && len(filtered) > cfg.TopK {
		filtered = filtered[:cfg.TopK]
	}

	out := make([]FusedResult, len(filtered))
	for i, e := range filtered {
		out[i] = *e
	}
	return out
}
