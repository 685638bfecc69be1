package hybridsearch

import (
	"context"
	"testing"

	"smriti/internal/rankers"
	"smriti/internal/reinforcement"
	"smriti/internal/types"
)

type stubRanker struct {
	source  types.RankerSource
	results []rankers.Result
}

func (s stubRanker) Source() types.RankerSource { return s.source }
func (s stubRanker) Search(ctx context.Context, query string, opts rankers.Options) []rankers.Result {
	return s.results
}

// recordingRanker captures the opts it was last called with, so tests can
// assert Search/GatedSearch overrides actually reach the dispatched ranker.
type recordingRanker struct {
	source   types.RankerSource
	results  []rankers.Result
	lastOpts rankers.Options
}

func (r *recordingRanker) Source() types.RankerSource { return r.source }
func (r *recordingRanker) Search(ctx context.Context, query string, opts rankers.Options) []rankers.Result {
	r.lastOpts = opts
	return r.results
}

type failingRanker struct{ source types.RankerSource }

func (f failingRanker) Source() types.RankerSource { return f.source }
func (f failingRanker) Search(ctx context.Context, query string, opts rankers.Options) []rankers.Result {
	return nil
}

func TestSearchFusesAcrossRankers(t *testing.T) {
	bm25 := stubRanker{source: types.SourceBM25, results: []rankers.Result{{ID: "A"}, {ID: "B"}}}
	vector := stubRanker{source: types.SourceVector, results: []rankers.Result{{ID: "B"}, {ID: "C"}}}

	e := New(DefaultConfig(), bm25, vector, nil, nil, nil, nil)
	got := e.Search(context.Background(), "auth flow")

	if len(got) != 3 {
		t.Fatalf("Search() returned %d results, want 3", len(got))
	}
	if got[0].ID != "B" {
		t.Errorf("top result = %q, want B", got[0].ID)
	}
}

func TestSearchAllRankersFailReturnsEmptyNotNilPanic(t *testing.T) {
	e := New(DefaultConfig(), failingRanker{types.SourceBM25}, failingRanker{types.SourceVector}, failingRanker{types.SourceGraphRAG}, nil, nil, nil)
	got := e.Search(context.Background(), "anything")
	if len(got) != 0 {
		t.Errorf("Search() = %v, want empty", got)
	}
}

func TestSearchWithNoRankersConfiguredReturnsEmpty(t *testing.T) {
	e := New(DefaultConfig(), nil, nil, nil, nil, nil, nil)
	got := e.Search(context.Background(), "anything")
	if len(got) != 0 {
		t.Errorf("Search() = %v, want empty", got)
	}
}

func TestGatedSearchSkipsDispatchWhenGateClosed(t *testing.T) {
	bm25 := stubRanker{source: types.SourceBM25, results: []rankers.Result{{ID: "A"}}}
	e := New(DefaultConfig(), bm25, nil, nil, nil, nil, nil)
	got := e.GatedSearch(context.Background(), "hello")
	if got != nil {
		t.Errorf("GatedSearch() = %v, want nil for a non-knowledge-gap query", got)
	}
}

func TestGatedSearchDispatchesWhenGateOpen(t *testing.T) {
	bm25 := stubRanker{source: types.SourceBM25, results: []rankers.Result{{ID: "A"}}}
	e := New(DefaultConfig(), bm25, nil, nil, nil, nil, nil)
	got := e.GatedSearch(context.Background(), "what did we discuss last time about auth")
	if len(got) != 1 {
		t.Errorf("GatedSearch() = %v, want 1 result", got)
	}
}

func TestRecordFeedbackUpdatesContributingSignals(t *testing.T) {
	wl := reinforcement.NewWeightLearner(1)
	e := New(DefaultConfig(), nil, nil, nil, nil, WrapLearner(wl), nil)

	result := FusedResult{ID: "A", Sources: []types.RankerSource{types.SourceBM25, types.SourceVector}}
	e.RecordFeedback(result, true)

	if wl.TotalUpdates() != 2 {
		t.Errorf("TotalUpdates() = %d, want 2", wl.TotalUpdates())
	}
}

func TestRecordFeedbackUpdatesPramanaSignalWhenPresent(t *testing.T) {
	wl := reinforcement.NewWeightLearner(1)
	e := New(DefaultConfig(), nil, nil, nil, nil, WrapLearner(wl), nil)

	pt := types.PramanaPratyaksha
	result := FusedResult{ID: "A", Sources: []types.RankerSource{types.SourceBM25}, PramanaType: &pt}
	e.RecordFeedback(result, true)

	if wl.TotalUpdates() != 2 {
		t.Errorf("TotalUpdates() = %d, want 2 (bm25 + pramana)", wl.TotalUpdates())
	}
}

func TestRecordFeedbackNoopWithoutLearner(t *testing.T) {
	e := New(DefaultConfig(), nil, nil, nil, nil, nil, nil)
	e.RecordFeedback(FusedResult{ID: "A", Sources: []types.RankerSource{types.SourceBM25}}, true)
}

func TestWeightsFallBackToUniformWithoutLearner(t *testing.T) {
	e := New(DefaultConfig(), nil, nil, nil, nil, nil, nil)
	w := e.weights()
	if w != [4]float64{1, 1, 1, 1} {
		t.Errorf("weights() = %v, want {1,1,1,1}", w)
	}
}

func TestSearchOverridesProjectReachesDispatchedRankers(t *testing.T) {
	bm25 := &recordingRanker{source: types.SourceBM25, results: []rankers.Result{{ID: "A"}}}
	cfg := DefaultConfig()
	cfg.Project = "configured-project"
	e := New(cfg, bm25, nil, nil, nil, nil, nil)

	e.Search(context.Background(), "q", SearchOverrides{Project: "override-project"})

	if bm25.lastOpts.Project != "override-project" {
		t.Errorf("ranker saw project %q, want override-project", bm25.lastOpts.Project)
	}
}

func TestSearchWithoutOverridesUsesConfiguredProject(t *testing.T) {
	bm25 := &recordingRanker{source: types.SourceBM25, results: []rankers.Result{{ID: "A"}}}
	cfg := DefaultConfig()
	cfg.Project = "configured-project"
	e := New(cfg, bm25, nil, nil, nil, nil, nil)

	e.Search(context.Background(), "q")

	if bm25.lastOpts.Project != "configured-project" {
		t.Errorf("ranker saw project %q, want configured-project", bm25.lastOpts.Project)
	}
}

func TestGatedSearchThreadsOverridesThrough(t *testing.T) {
	bm25 := &recordingRanker{source: types.SourceBM25, results: []rankers.Result{{ID: "A"}}}
	e := New(DefaultConfig(), bm25, nil, nil, nil, nil, nil)

	e.GatedSearch(context.Background(), "what did we discuss last time about auth", SearchOverrides{Project: "override-project"})

	if bm25.lastOpts.Project != "override-project" {
		t.Errorf("ranker saw project %q, want override-project", bm25.lastOpts.Project)
	}
}
