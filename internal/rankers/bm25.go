package rankers

import (
	"context"
	"log"

	"smriti/internal/storage"
	"smriti/internal/types"
)

// BM25Ranker delegates to the persistence store's native full-text search
// (FTS5 bm25() in SQLiteStore, substring-occurrence scoring in
// MemoryStore).
type BM25Ranker struct {
	store storage.SessionRepository
}

// NewBM25Ranker wraps a session repository.
func NewBM25Ranker(store storage.SessionRepository) *BM25Ranker {
	return &BM25Ranker{store: store}
}

func (r *BM25Ranker) Source() types.RankerSource { return types.SourceBM25 }

func (r *BM25Ranker) Search(ctx context.Context, query string, opts Options) []Result {
	if r == nil || r.store == nil {
		return nil
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = 10
	}

	matches, err := r.store.SearchSessions(query, opts.Project, topK)
	if err != nil {
		log.Printf("rankers: bm25 search failed: %v", err)
		return nil
	}

	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		updated := m.Session.UpdatedAt
		results = append(results, Result{
			ID:             "session-" + m.Session.ID,
			Title:          m.Session.Title,
			ContentSnippet: m.Session.Title,
			Timestamp:      &updated,
			Project:        m.Session.Project,
		})
	}
	return results
}
