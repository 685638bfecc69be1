// Package unifiedrecall implements recall(), the single consumer-facing
// query surface that fans out across the hybrid search engine
// (internal/hybridsearch), the turn-level BM25 fallback, key-value memory,
// and consolidated day files (internal/filestore), then merges the results
// into one ranked, deduplicated answer list (spec.md §4.7).
package unifiedrecall

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"smriti/internal/filestore"
	"smriti/internal/hybridsearch"
	"smriti/internal/storage"
	"smriti/internal/types"
)

const maxFieldLen = 300

// Answer is one ranked recall result, uniform across every source layer.
type Answer struct {
	Score         float64
	AnswerText    string
	PrimarySource types.AnswerSource
	Snippet       string
	SessionID     string
	Project       string
	Date          string
	Provider      string
}

// Config scopes one Recall call.
type Config struct {
	Limit           int
	IncludeMemory   bool
	IncludeDayFiles bool
	Project         string
}

// DefaultConfig returns the spec's defaults: limit=5, memory and day-file
// layers both enabled.
func DefaultConfig() Config {
	return Config{Limit: 5, IncludeMemory: true, IncludeDayFiles: true}
}

// Engine wires the four recall layers together. Any dependency may be nil;
// a nil dependency's layer simply contributes no answers.
type Engine struct {
	hybrid   *hybridsearch.Engine
	sessions storage.SessionRepository
	memory   storage.MemoryRepository
	files    *filestore.FileStore
}

// New builds an Engine from its layer dependencies.
func New(hybrid *hybridsearch.Engine, sessions storage.SessionRepository, memory storage.MemoryRepository, files *filestore.FileStore) *Engine {
	return &Engine{hybrid: hybrid, sessions: sessions, memory: memory, files: files}
}

// Recall runs the hybrid/turns, memory, and day-file layers concurrently,
// merges, dedups, sorts by score descending, and truncates to cfg.Limit.
// No layer's failure propagates: each degrades to an empty answer set.
func (e *Engine) Recall(ctx context.Context, query string, cfg Config) []Answer {
	var hybridAnswers, memoryAnswers, dayfileAnswers []Answer
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() { recover() }()
		hybridAnswers = e.hybridOrTurnsFallback(ctx, query, cfg)
	}()

	if cfg.IncludeMemory {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { recover() }()
			memoryAnswers = e.memoryLayer(query, cfg)
		}()
	}

	if cfg.IncludeDayFiles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { recover() }()
			dayfileAnswers = e.dayFileLayer(query)
		}()
	}

	wg.Wait()

	merged := make([]Answer, 0, len(hybridAnswers)+len(memoryAnswers)+len(dayfileAnswers))
	merged = append(merged, hybridAnswers...)
	merged = append(merged, memoryAnswers...)
	merged = append(merged, dayfileAnswers...)

	merged = dedup(merged)

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })

	limit := cfg.Limit
	if limit <= 0 {
		limit = 5
	}
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// hybridOrTurnsFallback runs the hybrid search layer, then falls back to a
// plain BM25 turn scan only when hybrid produced nothing.
func (e *Engine) hybridOrTurnsFallback(ctx context.Context, query string, cfg Config) []Answer {
	hybridAnswers := e.hybridLayer(ctx, query, cfg)
	if len(hybridAnswers) > 0 {
		return hybridAnswers
	}
	return e.turnsFallback(query, cfg)
}

// hybridLayer maps hybridsearch.FusedResult hits to the unified Answer
// shape (spec.md §4.7 bullet 1).
func (e *Engine) hybridLayer(ctx context.Context, query string, cfg Config) []Answer {
	if e.hybrid == nil {
		return nil
	}
	hits := e.hybrid.Search(ctx, query, hybridsearch.SearchOverrides{Project: cfg.Project})
	answers := make([]Answer, 0, len(hits))
	for _, h := range hits {
		a := Answer{
			Score:         min1(h.Score / (h.Score + 0.5)),
			AnswerText:    truncate(firstNonEmpty(h.Title, h.ContentSnippet), maxFieldLen),
			Snippet:       truncate(h.ContentSnippet, maxFieldLen),
			PrimarySource: classifySource(h.Sources),
			Project:       h.Project,
		}
		if strings.HasPrefix(h.ID, "session-") {
			a.SessionID = sessionIDFromHitID(h.ID)
		}
		answers = append(answers, a)
	}
	return answers
}

// classifySource implements spec.md §4.7's primary_source rule: graph when
// sources is {graphrag} alone, turns when {bm25} alone, hybrid otherwise.
func classifySource(sources []types.RankerSource) types.AnswerSource {
	if len(sources) == 1 {
		switch sources[0] {
		case types.SourceGraphRAG:
			return types.AnswerGraph
		case types.SourceBM25:
			return types.AnswerTurns
		}
	}
	return types.AnswerHybrid
}

// sessionIDFromHitID strips the "session-" prefix and any trailing "#turn"
// suffix a vector-ranker hit id carries.
func sessionIDFromHitID(id string) string {
	rest := strings.TrimPrefix(id, "session-")
	if idx := strings.IndexByte(rest, '#'); idx >= 0 {
		rest = rest[:idx]
	}
	return rest
}

// turnsFallback implements spec.md §4.7 bullet 2: BM25 session search, then
// term-overlap scoring of each matched session's turns.
func (e *Engine) turnsFallback(query string, cfg Config) []Answer {
	if e.sessions == nil {
		return nil
	}
	matches, err := e.sessions.SearchSessions(query, cfg.Project, 10)
	if err != nil || len(matches) == 0 {
		return nil
	}

	terms := queryTerms(query)
	answers := make([]Answer, 0, len(matches))
	for _, m := range matches {
		turns, err := e.sessions.ListTurns(m.Session.ID)
		if err != nil || len(turns) == 0 {
			continue
		}

		var best *types.Turn
		var bestScore float64
		for _, t := range turns {
			score := termOverlapScore(t.Content, terms)
			if best == nil || score > bestScore {
				best = t
				bestScore = score
			}
		}
		if best == nil {
			continue
		}

		provider := m.Session.Provider
		if provider == "" {
			provider = m.Session.Agent
		}
		date := m.Session.CreatedAt.Format("2006-01-02")
		snippet := truncate(best.Content, maxFieldLen)
		answers = append(answers, Answer{
			Score:         bestScore,
			AnswerText:    truncate(fmt.Sprintf("In %s (%s) via %s: %s", filepath.Base(m.Session.Project), date, provider, snippet), maxFieldLen),
			Snippet:       snippet,
			PrimarySource: types.AnswerTurns,
			SessionID:     m.Session.ID,
			Project:       m.Session.Project,
			Date:          date,
			Provider:      provider,
		})
	}
	return answers
}

// queryTerms lowercases and splits a query into whitespace-separated terms
// longer than 2 characters, as spec.md §4.7's term-overlap scoring requires.
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

// termOverlapScore is min(term_hits/|query_terms| + 0.3, 1.0).
func termOverlapScore(content string, terms []string) float64 {
	if len(terms) == 0 {
		return 0.3
	}
	lower := strings.ToLower(content)
	hits := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			hits++
		}
	}
	return min1(float64(hits)/float64(len(terms)) + 0.3)
}

// memoryLayer implements spec.md §4.7 bullet 3: key-value memory search
// across the global scope and, when set, the project scope, capped at 5.
func (e *Engine) memoryLayer(query string, cfg Config) []Answer {
	if e.memory == nil {
		return nil
	}

	scopes := []string{"global"}
	if cfg.Project != "" && cfg.Project != "global" {
		scopes = append(scopes, cfg.Project)
	}

	lowerQuery := strings.ToLower(query)
	var answers []Answer
	for _, scope := range scopes {
		entries, err := e.memory.ListMemory(scope)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !strings.Contains(strings.ToLower(entry.Key), lowerQuery) && !strings.Contains(strings.ToLower(entry.Content), lowerQuery) {
				continue
			}
			relevance := 0.5
			if entry.Relevance != nil {
				relevance = *entry.Relevance
			}
			answers = append(answers, Answer{
				Score:         min1(relevance + 0.1),
				AnswerText:    truncate("From memory: "+entry.Content, maxFieldLen),
				Snippet:       truncate(entry.Content, maxFieldLen),
				PrimarySource: types.AnswerMemory,
				Project:       entry.Scope,
			})
			if len(answers) >= 5 {
				return answers
			}
		}
	}
	return answers
}

// dayFileLayer implements spec.md §4.7 bullet 4: scan consolidated day
// files for lines matching the query.
func (e *Engine) dayFileLayer(query string) []Answer {
	if e.files == nil {
		return nil
	}
	days, err := e.files.ListDays()
	if err != nil {
		return nil
	}

	terms := queryTerms(query)
	var answers []Answer
	for _, date := range days {
		content, err := e.files.ReadDay(date)
		if err != nil {
			continue
		}
		var matches []string
		for _, line := range strings.Split(content, "\n") {
			if lineMatches(line, terms) {
				matches = append(matches, strings.TrimSpace(line))
			}
		}
		if len(matches) == 0 {
			continue
		}
		answers = append(answers, Answer{
			Score:         0.5,
			AnswerText:    truncate(fmt.Sprintf("On %s: %s", date, strings.Join(matches, " | ")), maxFieldLen),
			Snippet:       truncate(strings.Join(matches, " | "), maxFieldLen),
			PrimarySource: types.AnswerDayfile,
			Date:          date,
		})
	}
	return answers
}

func lineMatches(line string, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	lower := strings.ToLower(line)
	for _, t := range terms {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

// dedup implements spec.md §4.7 bullet 3: first pass drops repeats by
// session_id (first occurrence kept), second pass by
// (primary_source, lowercase(snippet[0:50])).
func dedup(answers []Answer) []Answer {
	seenSession := make(map[string]bool)
	pass1 := make([]Answer, 0, len(answers))
	for _, a := range answers {
		if a.SessionID != "" {
			if seenSession[a.SessionID] {
				continue
			}
			seenSession[a.SessionID] = true
		}
		pass1 = append(pass1, a)
	}

	seenSnippet := make(map[string]bool)
	pass2 := make([]Answer, 0, len(pass1))
	for _, a := range pass1 {
		key := string(a.PrimarySource) + "::" + strings.ToLower(firstN(a.Snippet, 50))
		if seenSnippet[key] {
			continue
		}
		seenSnippet[key] = true
		pass2 = append(pass2, a)
	}
	return pass2
}

func firstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func min1(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	return v
}
