// Package hybridsearch implements Samshodhana, the reciprocal-rank-fusion
// engine that blends the BM25, vector, and GraphRAG rankers (internal/rankers)
// into a single ranked list, boosted by epistemic reliability
// (internal/types PramanaType) and temporal recency (internal/kalachakra),
// and tuned online by a Thompson-sampled weight learner
// (internal/reinforcement).
package hybridsearch

import (
	"context"
	"sort"
	"sync"
	"time"

	"smriti/internal/kalachakra"
	"smriti/internal/rankers"
	"smriti/internal/reinforcement"
	"smriti/internal/types"
)

// reliability is the epistemic boost table from spec.md §4.6, keyed by
// PramanaType with shabda as the default for unrecognized/absent types.
var reliability = map[types.PramanaType]float64{
	types.PramanaPratyaksha:  1.0,
	types.PramanaAnumana:     0.85,
	types.PramanaShabda:      0.75,
	types.PramanaUpamana:     0.6,
	types.PramanaArthapatti:  0.5,
	types.PramanaAnupalabdhi: 0.4,
}

// Config holds the tunables of one Search call. The zero value is not
// useful; start from DefaultConfig.
type Config struct {
	K               int
	TopK            int
	EnableBM25      bool
	EnableVector    bool
	EnableGraphRAG  bool
	EnablePramana   bool
	PramanaWeight   float64
	MinScore        float64
	Project         string
}

// DefaultConfig returns the spec's defaults: k=60, top_k=10, all signals
// enabled, pramana_weight δ=0.1, min_score=0.
func DefaultConfig() Config {
	return Config{
		K:              60,
		TopK:           10,
		EnableBM25:     true,
		EnableVector:   true,
		EnableGraphRAG: true,
		EnablePramana:  true,
		PramanaWeight:  0.1,
		MinScore:       0,
	}
}

// FusedResult is one entry of a hybrid search response: a document merged
// across however many rankers surfaced it.
type FusedResult struct {
	ID             string
	Title          string
	ContentSnippet string
	Score          float64
	Sources        []types.RankerSource
	Ranks          map[types.RankerSource]int
	Timestamp      *time.Time
	Project        string
	PramanaType    *types.PramanaType
}

// Learner is the subset of *reinforcement.WeightLearner that Engine depends
// on, so tests can substitute a fixed-weight stand-in.
type Learner interface {
	Sample() [4]float64
	Update(signal int, success bool)
}

// learnerAdapter narrows *reinforcement.WeightLearner's [numSignals]float64
// return type to the [4]float64 this package declares in its own interface;
// the two are the same underlying array type, so the conversion is free.
type learnerAdapter struct{ wl *reinforcement.WeightLearner }

func (a learnerAdapter) Sample() [4]float64            { return a.wl.Sample() }
func (a learnerAdapter) Update(signal int, success bool) { a.wl.Update(signal, success) }

// WrapLearner adapts a *reinforcement.WeightLearner to the Learner interface.
func WrapLearner(wl *reinforcement.WeightLearner) Learner {
	if wl == nil {
		return nil
	}
	return learnerAdapter{wl: wl}
}

// Engine is Samshodhana: the fusion of up to four rankers plus the
// epistemic and temporal boosts, tuned by an optional weight learner.
type Engine struct {
	bm25, vector, graph rankers.Ranker
	pramana             *rankers.PramanaLookup
	learner             Learner
	kala                *kalachakra.KalaChakra
	cfg                 Config
}

// New builds an Engine. Any ranker/lookup/learner/clock argument may be nil;
// a nil component simply contributes nothing to the fused result.
func New(cfg Config, bm25, vector, graph rankers.Ranker, pramana *rankers.PramanaLookup, learner Learner, kala *kalachakra.KalaChakra) *Engine {
	return &Engine{bm25: bm25, vector: vector, graph: graph, pramana: pramana, learner: learner, kala: kala, cfg: cfg}
}

// weights samples the engine's weight learner, falling back to the raw
// {1,1,1,1} RRF weights spec.md §4.6 step 1 prescribes when no learner is
// configured.
func (e *Engine) weights() [4]float64 {
	if e.learner != nil {
		return e.learner.Sample()
	}
	return [4]float64{1, 1, 1, 1}
}

// dispatch fans out to every enabled, non-nil ranker concurrently, each
// requesting 2·top_k results (spec.md §4.6 step 2).
func (e *Engine) dispatch(ctx context.Context, query string, cfg Config) map[types.RankerSource][]rankers.Result {
	type call struct {
		source types.RankerSource
		ranker rankers.Ranker
		enable bool
	}
	calls := []call{
		{types.SourceBM25, e.bm25, cfg.EnableBM25},
		{types.SourceVector, e.vector, cfg.EnableVector},
		{types.SourceGraphRAG, e.graph, cfg.EnableGraphRAG},
	}

	opts := rankers.Options{Project: cfg.Project, TopK: 2 * cfg.TopK}
	out := make(map[types.RankerSource][]rankers.Result, len(calls))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, c := range calls {
		if !c.enable || c.ranker == nil {
			continue
		}
		wg.Add(1)
		go func(c call) {
			defer wg.Done()
			results := c.ranker.Search(ctx, query, opts)
			if len(results) == 0 {
				return
			}
			mu.Lock()
			out[c.source] = results
			mu.Unlock()
		}(c)
	}
	wg.Wait()
	return out
}

// SearchOverrides carries the per-call knobs spec.md §4.6's
// `search(query, overrides?)` / `gated_search(query, overrides?)` contract
// allows a caller to set on top of the engine's construction-time Config.
// The zero value overrides nothing.
type SearchOverrides struct {
	// Project, when non-empty, scopes this call to a project, overriding
	// the engine's configured Config.Project.
	Project string
	// TopK, when positive, overrides the engine's configured Config.TopK.
	TopK int
}

// resolve applies non-zero override fields on top of base.
func (o SearchOverrides) resolve(base Config) Config {
	if o.Project != "" {
		base.Project = o.Project
	}
	if o.TopK > 0 {
		base.TopK = o.TopK
	}
	return base
}

// Search runs the full Samshodhana pipeline: sample weights, dispatch
// rankers, fuse by reciprocal rank, apply the multi-source/pramana/temporal
// boosts, then filter, sort, and truncate to top_k. overrides is optional;
// omit it to use the engine's Config unchanged.
func (e *Engine) Search(ctx context.Context, query string, overrides ...SearchOverrides) []FusedResult {
	cfg := e.cfg
	if len(overrides) > 0 {
		cfg = overrides[0].resolve(cfg)
	}
	w := e.weights()

	byRanker := e.dispatch(ctx, query, cfg)
	fused := fuse(byRanker, w, cfg.K)

	if cfg.EnablePramana && e.pramana != nil && len(fused) > 0 {
		ids := make([]string, len(fused))
		for i, f := range fused {
			ids[i] = f.ID
		}
		pramanaTypes := e.pramana.Lookup(ctx, ids)
		applyPramanaBoost(fused, pramanaTypes, w[SignalPramana], cfg.PramanaWeight)
	}

	if e.kala != nil {
		applyTemporalBoost(fused, e.kala, time.Now())
	}

	return finalize(fused, cfg)
}

// GatedSearch returns Search's result, or nil without dispatching any
// ranker when should_retrieve(query) is false (the Self-RAG gate).
func (e *Engine) GatedSearch(ctx context.Context, query string, overrides ...SearchOverrides) []FusedResult {
	if !ShouldRetrieve(query) {
		return nil
	}
	return e.Search(ctx, query, overrides...)
}

// RecordFeedback updates the weight learner for every signal that
// contributed to result, and the pramana signal too when result carries a
// pramana type. A nil learner makes this a no-op.
func (e *Engine) RecordFeedback(result FusedResult, success bool) {
	if e.learner == nil {
		return
	}
	for _, source := range result.Sources {
		e.learner.Update(source.SignalIndex(), success)
	}
	if result.PramanaType != nil {
		e.learner.Update(SignalPramana, success)
	}
}

// SignalPramana is the fixed weight-learner index for the pramana signal
// (types.SourcePramana.SignalIndex()), used where no ranker.Result exists to
// derive it from (the pramana boost is additive, not dispatched).
const SignalPramana = 3
