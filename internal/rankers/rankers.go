// Package rankers implements the four retrieval signals fused by
// internal/hybridsearch (spec.md §4.5): BM25 over the session store, vector
// similarity over turn embeddings, GraphRAG node/neighborhood lookup, and
// the pramana epistemic-type lookup. Each ranker returns an empty list on
// internal failure rather than an error, so hybrid search can proceed with
// whichever signals actually answered — matching the teacher's preference
// for small, independently-failing interfaces (embeddings.Embedder,
// storage.SessionRepository).
package rankers

import (
	"context"
	"time"

	"smriti/internal/types"
)

// Result is one hit from a single ranker, before fusion.
type Result struct {
	ID             string
	Title          string
	ContentSnippet string
	Timestamp      *time.Time
	Project        string
}

// Options scopes a ranker query.
type Options struct {
	Project string
	TopK    int
}

// Ranker is the shared contract every retrieval signal implements.
type Ranker interface {
	// Source identifies which hybrid-search signal this ranker fills.
	Source() types.RankerSource
	// Search returns up to opts.TopK results, best-effort. A failure is
	// logged internally and reported as an empty slice, never an error.
	Search(ctx context.Context, query string, opts Options) []Result
}
