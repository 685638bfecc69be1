package unifiedrecall

import (
	"context"
	"testing"
	"time"

	"smriti/internal/filestore"
	"smriti/internal/hybridsearch"
	"smriti/internal/rankers"
	"smriti/internal/storage"
	"smriti/internal/tokenizer"
	"smriti/internal/types"
)

func newStore(t *testing.T) *storage.MemoryStore {
	t.Helper()
	return storage.NewMemoryStore()
}

func newFileStore(t *testing.T) *filestore.FileStore {
	t.Helper()
	return filestore.New(t.TempDir(), tokenizer.NewFallback())
}

type stubRanker struct {
	source  types.RankerSource
	results []rankers.Result
}

func (s stubRanker) Source() types.RankerSource { return s.source }
func (s stubRanker) Search(ctx context.Context, query string, opts rankers.Options) []rankers.Result {
	return s.results
}

func TestRecallClassifiesHybridSourceByRankerSetMembership(t *testing.T) {
	graphOnly := stubRanker{source: types.SourceGraphRAG, results: []rankers.Result{{ID: "entity-1", Title: "auth service"}}}
	hybrid := hybridsearch.New(hybridsearch.DefaultConfig(), nil, nil, graphOnly, nil, nil, nil)
	e := New(hybrid, nil, nil, nil)

	got := e.Recall(context.Background(), "auth", DefaultConfig())
	if len(got) != 1 {
		t.Fatalf("Recall() returned %d answers, want 1", len(got))
	}
	if got[0].PrimarySource != types.AnswerGraph {
		t.Errorf("PrimarySource = %v, want graph", got[0].PrimarySource)
	}
}

func TestRecallFallsBackToTurnsWhenHybridEmpty(t *testing.T) {
	store := newStore(t)
	now := time.Now()
	if err := store.CreateSession(&types.Session{ID: "s1", Title: "auth timeout debugging", Project: "proj-a", Provider: "claude", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}
	if err := store.AppendTurn(&types.Turn{SessionID: "s1", TurnNumber: 0, Role: types.RoleUser, Content: "investigating the auth timeout bug", Timestamp: now}); err != nil {
		t.Fatalf("AppendTurn() error: %v", err)
	}

	e := New(nil, store, nil, nil)
	got := e.Recall(context.Background(), "auth timeout", DefaultConfig())

	if len(got) != 1 {
		t.Fatalf("Recall() returned %d answers, want 1", len(got))
	}
	if got[0].PrimarySource != types.AnswerTurns {
		t.Errorf("PrimarySource = %v, want turns", got[0].PrimarySource)
	}
	if got[0].SessionID != "s1" {
		t.Errorf("SessionID = %q, want s1", got[0].SessionID)
	}
}

func TestRecallMemoryLayerScoresAndPrefixesAnswer(t *testing.T) {
	store := newStore(t)
	if err := store.SetMemory(&types.MemoryEntry{Scope: "global", Key: "operator", Content: "the operator's name is Ada", UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("SetMemory() error: %v", err)
	}

	e := New(nil, nil, store, nil)
	got := e.Recall(context.Background(), "operator", DefaultConfig())

	if len(got) != 1 {
		t.Fatalf("Recall() returned %d answers, want 1", len(got))
	}
	if got[0].PrimarySource != types.AnswerMemory {
		t.Errorf("PrimarySource = %v, want memory", got[0].PrimarySource)
	}
	if got[0].Score != 0.6 {
		t.Errorf("Score = %v, want 0.6 (default relevance 0.5 + 0.1)", got[0].Score)
	}
	if got[0].AnswerText[:13] != "From memory: " {
		t.Errorf("AnswerText = %q, want a From memory: prefix", got[0].AnswerText)
	}
}

func TestRecallDayFileLayerJoinsMatchesOnOneLine(t *testing.T) {
	fs := newFileStore(t)
	if err := fs.WriteDay("2026-01-15", "## Notes\nfixed the auth bug\nunrelated line\nauth tests now pass\n"); err != nil {
		t.Fatalf("WriteDay() error: %v", err)
	}

	e := New(nil, nil, nil, fs)
	got := e.Recall(context.Background(), "auth bug", DefaultConfig())

	if len(got) != 1 {
		t.Fatalf("Recall() returned %d answers, want 1", len(got))
	}
	if got[0].PrimarySource != types.AnswerDayfile {
		t.Errorf("PrimarySource = %v, want dayfile", got[0].PrimarySource)
	}
	if got[0].Date != "2026-01-15" {
		t.Errorf("Date = %q, want 2026-01-15", got[0].Date)
	}
}

// Seed scenario 4 (spec.md §8): two memory answers with identical
// first-50-char snippets dedup to one; two turn answers sharing a
// session_id dedup to one.
func TestDedupCollapsesSameSnippetPrefix(t *testing.T) {
	const sharedPrefix = "the quick brown fox jumps over the lazy dog and ran" // 50+ identical leading chars
	answers := []Answer{
		{PrimarySource: types.AnswerMemory, Snippet: sharedPrefix + " off to the east", Score: 0.9},
		{PrimarySource: types.AnswerMemory, Snippet: sharedPrefix + " into the forest instead", Score: 0.5},
	}
	got := dedup(answers)
	if len(got) != 1 {
		t.Fatalf("dedup() returned %d answers, want 1", len(got))
	}
	if got[0].Score != 0.9 {
		t.Errorf("dedup() kept Score = %v, want the first occurrence's 0.9", got[0].Score)
	}
}

func TestDedupCollapsesSameSessionID(t *testing.T) {
	answers := []Answer{
		{PrimarySource: types.AnswerTurns, SessionID: "s1", Snippet: "first", Score: 0.9},
		{PrimarySource: types.AnswerTurns, SessionID: "s1", Snippet: "second, totally different text", Score: 0.5},
	}
	got := dedup(answers)
	if len(got) != 1 {
		t.Fatalf("dedup() returned %d answers, want 1", len(got))
	}
	if got[0].Snippet != "first" {
		t.Errorf("dedup() kept %q, want the first occurrence", got[0].Snippet)
	}
}

func TestRecallAllLayersFailingReturnsEmptyNotPanic(t *testing.T) {
	e := New(nil, nil, nil, nil)
	got := e.Recall(context.Background(), "anything", DefaultConfig())
	if len(got) != 0 {
		t.Errorf("Recall() = %v, want empty", got)
	}
}

func TestRecallTruncatesToLimit(t *testing.T) {
	store := newStore(t)
	for i := 0; i < 10; i++ {
		key := string(rune('a' + i))
		if err := store.SetMemory(&types.MemoryEntry{Scope: "global", Key: key, Content: "matchterm " + key, UpdatedAt: time.Now()}); err != nil {
			t.Fatalf("SetMemory() error: %v", err)
		}
	}
	e := New(nil, nil, store, nil)
	cfg := DefaultConfig()
	cfg.Limit = 2
	got := e.Recall(context.Background(), "matchterm", cfg)
	if len(got) != 2 {
		t.Errorf("Recall() returned %d answers, want 2 (limit)", len(got))
	}
}
