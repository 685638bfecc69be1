// Package temporal implements hierarchical yearly→monthly→daily drill-down
// search over consolidated summaries (spec.md §4.8). A query probes at most
// three small index layers instead of scanning every day-file directly,
// following the same query→embed→rank shape as the teacher's
// internal/similarity ThoughtSearcher, generalized from a flat corpus to a
// three-level hierarchy.
package temporal

import (
	"context"
	"sort"
	"strings"

	"smriti/internal/embeddings"
	"smriti/internal/storage"
	"smriti/internal/types"
)

// Result is one ranked hit from the drill.
type Result struct {
	Score   float64
	Level   types.SummaryLevel
	Period  string
	Snippet string
	Date    string
	Project string
}

// Config scopes one Search call.
type Config struct {
	Limit   int
	Project string
}

// DefaultConfig returns the spec's default: limit=10.
func DefaultConfig() Config { return Config{Limit: 10} }

// Engine drills yearly→monthly→daily summaries for a query.
type Engine struct {
	store    storage.TemporalRepository
	embedder embeddings.Embedder
}

// New builds an Engine. A nil embedder falls back to term-overlap scoring.
func New(store storage.TemporalRepository, embedder embeddings.Embedder) *Engine {
	return &Engine{store: store, embedder: embedder}
}

type candidate struct {
	summary    *types.TemporalSummary
	similarity float64
}

// contribution is the scoring formula spec.md §4.8 defines: similarity
// scaled by the level's fixed depth boost.
func contribution(similarity float64, level types.SummaryLevel) float64 {
	return similarity * level.DepthBoost()
}

func toResult(c candidate) Result {
	r := Result{
		Score:   contribution(c.similarity, c.summary.Level),
		Level:   c.summary.Level,
		Period:  c.summary.Period,
		Snippet: c.summary.Content,
		Project: c.summary.Project,
	}
	if c.summary.Level == types.LevelDaily {
		r.Date = c.summary.Period
	}
	return r
}

// Search implements spec.md §4.8's drill. Every store error is treated as
// an empty level, never a failure of the whole search.
func (e *Engine) Search(ctx context.Context, query string, cfg Config) []Result {
	if e.store == nil {
		return nil
	}

	yearly := e.rankLevel(ctx, query, types.LevelYearly, cfg.Project, nil, 3)

	var monthly []candidate
	if len(yearly) == 0 {
		monthly = e.rankLevel(ctx, query, types.LevelMonthly, cfg.Project, nil, 6)
	} else {
		for _, y := range yearly {
			monthly = append(monthly, e.rankLevel(ctx, query, types.LevelMonthly, cfg.Project, prefixFilter(y.summary.Period), 3)...)
		}
	}

	var results []Result
	for _, y := range yearly {
		results = append(results, toResult(y))
	}
	for _, m := range monthly {
		results = append(results, toResult(m))
	}

	if len(monthly) == 0 {
		daily := e.rankLevel(ctx, query, types.LevelDaily, cfg.Project, nil, cfg.Limit)
		for _, d := range daily {
			results = append(results, toResult(d))
		}
	} else {
		for _, m := range monthly {
			daily := e.rankLevel(ctx, query, types.LevelDaily, cfg.Project, prefixFilter(m.summary.Period), 5)
			for _, d := range daily {
				results = append(results, toResult(d))
			}
		}
	}

	return finalize(results, cfg.Limit)
}

func prefixFilter(prefix string) func(period string) bool {
	return func(period string) bool { return strings.HasPrefix(period, prefix) }
}

// rankLevel lists every summary at level (optionally filtered by period
// prefix), scores it against query, sorts descending, and caps at topN.
func (e *Engine) rankLevel(ctx context.Context, query string, level types.SummaryLevel, project string, keep func(string) bool, topN int) []candidate {
	summaries, err := e.store.ListSummaries(level, project)
	if err != nil || len(summaries) == 0 {
		return nil
	}

	cands := make([]candidate, 0, len(summaries))
	for _, s := range summaries {
		if keep != nil && !keep(s.Period) {
			continue
		}
		cands = append(cands, candidate{summary: s, similarity: e.similarity(ctx, query, s.Content)})
	}

	sort.SliceStable(cands, func(i, j int) bool { return cands[i].similarity > cands[j].similarity })
	if topN > 0 && len(cands) > topN {
		cands = cands[:topN]
	}
	return cands
}

// similarity prefers embedding cosine similarity when an embedder is
// configured, and falls back to term overlap otherwise or on embed error.
func (e *Engine) similarity(ctx context.Context, query, content string) float64 {
	if e.embedder != nil {
		qv, err1 := e.embedder.Embed(ctx, query)
		cv, err2 := e.embedder.Embed(ctx, content)
		if err1 == nil && err2 == nil {
			return embeddings.CosineSimilarity(qv, cv)
		}
	}
	return textSimilarity(query, content)
}

func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > 2 {
			terms = append(terms, f)
		}
	}
	return terms
}

func textSimilarity(query, content string) float64 {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	hits := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

// finalize dedups by (level, period) keeping the highest score, sorts
// descending, and truncates to limit.
func finalize(results []Result, limit int) []Result {
	best := make(map[string]Result)
	order := make([]string, 0, len(results))
	for _, r := range results {
		key := string(r.Level) + "::" + r.Period
		existing, ok := best[key]
		if !ok {
			order = append(order, key)
			best[key] = r
			continue
		}
		if r.Score > existing.Score {
			best[key] = r
		}
	}

	deduped := make([]Result, 0, len(order))
	for _, key := range order {
		deduped = append(deduped, best[key])
	}

	sort.SliceStable(deduped, func(i, j int) bool { return deduped[i].Score > deduped[j].Score })

	if limit > 0 && len(deduped) > limit {
		deduped = deduped[:limit]
	}
	return deduped
}
