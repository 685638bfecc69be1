package temporal

import (
	"context"
	"testing"

	"smriti/internal/storage"
	"smriti/internal/types"
)

const epsilon = 1e-9

func almostEqual(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < epsilon
}

// Seed scenario 6 (spec.md §8): yearly similarity 0.9, monthly 0.6, daily
// 0.7. Expected contributions 0.54, 0.48, 0.70; ranked [daily, yearly,
// monthly].
func TestContributionAndFinalizeSeedScenarioSix(t *testing.T) {
	yearly := candidate{summary: &types.TemporalSummary{Level: types.LevelYearly, Period: "2024"}, similarity: 0.9}
	monthly := candidate{summary: &types.TemporalSummary{Level: types.LevelMonthly, Period: "2024-05"}, similarity: 0.6}
	daily := candidate{summary: &types.TemporalSummary{Level: types.LevelDaily, Period: "2024-05-15"}, similarity: 0.7}

	if !almostEqual(contribution(yearly.similarity, yearly.summary.Level), 0.54) {
		t.Errorf("yearly contribution = %v, want 0.54", contribution(yearly.similarity, yearly.summary.Level))
	}
	if !almostEqual(contribution(monthly.similarity, monthly.summary.Level), 0.48) {
		t.Errorf("monthly contribution = %v, want 0.48", contribution(monthly.similarity, monthly.summary.Level))
	}
	if !almostEqual(contribution(daily.similarity, daily.summary.Level), 0.70) {
		t.Errorf("daily contribution = %v, want 0.70", contribution(daily.similarity, daily.summary.Level))
	}

	results := []Result{toResult(yearly), toResult(monthly), toResult(daily)}
	got := finalize(results, 10)

	wantOrder := []types.SummaryLevel{types.LevelDaily, types.LevelYearly, types.LevelMonthly}
	if len(got) != 3 {
		t.Fatalf("finalize() returned %d results, want 3", len(got))
	}
	for i, want := range wantOrder {
		if got[i].Level != want {
			t.Errorf("position %d = %v, want %v", i, got[i].Level, want)
		}
	}
}

func TestFinalizeDedupKeepsHighestScore(t *testing.T) {
	results := []Result{
		{Level: types.LevelDaily, Period: "2024-05-15", Score: 0.3},
		{Level: types.LevelDaily, Period: "2024-05-15", Score: 0.9},
	}
	got := finalize(results, 10)
	if len(got) != 1 {
		t.Fatalf("finalize() returned %d results, want 1", len(got))
	}
	if got[0].Score != 0.9 {
		t.Errorf("Score = %v, want 0.9 (the higher duplicate)", got[0].Score)
	}
}

func newStoreWithSummaries(t *testing.T) *storage.MemoryStore {
	t.Helper()
	store := storage.NewMemoryStore()
	summaries := []*types.TemporalSummary{
		{Level: types.LevelYearly, Period: "2024", Content: "a year of auth refactors and incident response"},
		{Level: types.LevelMonthly, Period: "2024-05", Content: "may: auth refactor landed, incident followups"},
		{Level: types.LevelMonthly, Period: "2024-06", Content: "june: unrelated billing work"},
		{Level: types.LevelDaily, Period: "2024-05-15", Content: "finished the auth refactor rollout"},
		{Level: types.LevelDaily, Period: "2024-05-20", Content: "incident retro notes"},
		{Level: types.LevelDaily, Period: "2024-06-02", Content: "billing migration notes"},
	}
	for _, s := range summaries {
		if err := store.PutSummary(s); err != nil {
			t.Fatalf("PutSummary() error: %v", err)
		}
	}
	return store
}

func TestSearchDrillsYearlyToMonthlyToDaily(t *testing.T) {
	store := newStoreWithSummaries(t)
	e := New(store, nil)

	got := e.Search(context.Background(), "auth refactor incident", DefaultConfig())
	if len(got) == 0 {
		t.Fatal("Search() returned no results")
	}

	var sawYearly, sawMonthly, sawDaily bool
	for _, r := range got {
		switch r.Level {
		case types.LevelYearly:
			sawYearly = true
		case types.LevelMonthly:
			sawMonthly = true
		case types.LevelDaily:
			sawDaily = true
			if r.Date != r.Period {
				t.Errorf("daily Result.Date = %q, want equal to Period %q", r.Date, r.Period)
			}
		}
	}
	if !sawYearly || !sawMonthly || !sawDaily {
		t.Errorf("Search() missing a level: yearly=%v monthly=%v daily=%v", sawYearly, sawMonthly, sawDaily)
	}
}

func TestSearchFallsBackToMonthlyWhenNoYearlySummaries(t *testing.T) {
	store := storage.NewMemoryStore()
	if err := store.PutSummary(&types.TemporalSummary{Level: types.LevelMonthly, Period: "2024-05", Content: "auth refactor work"}); err != nil {
		t.Fatalf("PutSummary() error: %v", err)
	}
	if err := store.PutSummary(&types.TemporalSummary{Level: types.LevelDaily, Period: "2024-05-15", Content: "auth refactor rollout day"}); err != nil {
		t.Fatalf("PutSummary() error: %v", err)
	}

	e := New(store, nil)
	got := e.Search(context.Background(), "auth refactor", DefaultConfig())

	var sawMonthly, sawDaily bool
	for _, r := range got {
		if r.Level == types.LevelMonthly {
			sawMonthly = true
		}
		if r.Level == types.LevelDaily {
			sawDaily = true
		}
	}
	if !sawMonthly {
		t.Error("expected a monthly result via the no-yearly fallback")
	}
	if !sawDaily {
		t.Error("expected the monthly fallback to still drill into daily")
	}
}

func TestSearchFallsBackToDailyWhenNoYearlyOrMonthlySummaries(t *testing.T) {
	store := storage.NewMemoryStore()
	if err := store.PutSummary(&types.TemporalSummary{Level: types.LevelDaily, Period: "2024-05-15", Content: "auth refactor rollout day"}); err != nil {
		t.Fatalf("PutSummary() error: %v", err)
	}

	e := New(store, nil)
	got := e.Search(context.Background(), "auth refactor", DefaultConfig())

	if len(got) != 1 || got[0].Level != types.LevelDaily {
		t.Fatalf("Search() = %v, want a single daily result via full fallback", got)
	}
}

func TestSearchNoSummariesAtAllReturnsEmpty(t *testing.T) {
	e := New(storage.NewMemoryStore(), nil)
	got := e.Search(context.Background(), "anything", DefaultConfig())
	if len(got) != 0 {
		t.Errorf("Search() = %v, want empty", got)
	}
}

func TestSearchNilStoreReturnsEmpty(t *testing.T) {
	e := New(nil, nil)
	got := e.Search(context.Background(), "anything", DefaultConfig())
	if got != nil {
		t.Errorf("Search() = %v, want nil", got)
	}
}

func TestTextSimilarityScoresTermOverlap(t *testing.T) {
	got := textSimilarity("auth refactor", "the auth refactor landed today")
	if !almostEqual(got, 1.0) {
		t.Errorf("textSimilarity() = %v, want 1.0 (both terms present)", got)
	}

	got = textSimilarity("auth refactor", "totally unrelated billing notes")
	if got != 0 {
		t.Errorf("textSimilarity() = %v, want 0", got)
	}
}
