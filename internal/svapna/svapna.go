// Package svapna implements the offline five-phase consolidation cycle
// (spec.md §4.10): REPLAY surprise scoring, RECOMBINE cross-session
// association, CRYSTALLIZE tendency formation (delegated to vasana),
// PROCEDURALIZE anti-unified tool-sequence extraction, and COMPRESS
// Sinkhorn-weighted turn compression.
package svapna

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"smriti/internal/knowledge"
	"smriti/internal/knowledge/extraction"
	"smriti/internal/storage"
	"smriti/internal/tokenizer"
	"smriti/internal/types"
	"smriti/internal/vasana"
)

// Config holds the Svapna cycle's tunables (spec.md §4.10).
type Config struct {
	MaxSessionsPerCycle int
	SurpriseThreshold   float64
	MinPatternFrequency int
	MinSequenceLength   int
	MinSuccessRate      float64
}

// DefaultConfig returns spec.md §4.10's named defaults.
func DefaultConfig() Config {
	return Config{
		MaxSessionsPerCycle: 50,
		SurpriseThreshold:   0.7,
		MinPatternFrequency: 3,
		MinSequenceLength:   2,
		MinSuccessRate:      0.8,
	}
}

// ProgressFunc is invoked (phase, 0) when a phase starts and (phase, 1)
// when it finishes, for exactly the five phases in order.
type ProgressFunc func(phase types.ConsolidationPhase, fraction float64)

// PhaseResult is one phase's outcome, folded into CycleResult.
type PhaseResult struct {
	Status     types.ConsolidationStatus
	DurationMs int64
	Metrics    map[string]interface{}
	Err        error
}

// CycleResult is run()'s return value.
type CycleResult struct {
	CycleID         string
	Phases          map[types.ConsolidationPhase]PhaseResult
	TotalDurationMs int64
}

// DefaultScheduleInterval is how far out Run() schedules a project's next
// cycle when nothing else informs the cadence.
const DefaultScheduleInterval = 24 * time.Hour

// Engine runs one consolidation cycle against a project's sessions.
type Engine struct {
	sessions  storage.SessionRepository
	vidhis    storage.VidhiRepository
	log       storage.ConsolidationLogRepository
	schedule  storage.NidraScheduleRepository
	vasana    *vasana.Engine
	tokenizer tokenizer.Tokenizer

	graphStore *knowledge.GraphStore
	extractor  extraction.Extractor
}

// New builds an Engine. tok may be nil, in which case tokenizer.Fallback
// is used.
func New(sessions storage.SessionRepository, vidhis storage.VidhiRepository, log storage.ConsolidationLogRepository, vasanaEngine *vasana.Engine, tok tokenizer.Tokenizer) *Engine {
	if tok == nil {
		tok = tokenizer.NewFallback()
	}
	return &Engine{sessions: sessions, vidhis: vidhis, log: log, vasana: vasanaEngine, tokenizer: tok, extractor: extraction.NewRegexExtractor()}
}

// WithGraphIndexing attaches a graph store REPLAY indexes extracted
// entities into. A nil store (the default) leaves indexing a no-op.
func (e *Engine) WithGraphIndexing(store *knowledge.GraphStore) *Engine {
	e.graphStore = store
	return e
}

// WithSchedule attaches the repository Run() writes a cadence bookkeeping
// row to after each cycle, for the external Nidra scheduler to poll. A nil
// repository (the default) leaves scheduling a no-op.
func (e *Engine) WithSchedule(repo storage.NidraScheduleRepository) *Engine {
	e.schedule = repo
	return e
}

// Run executes the five-phase cycle against project's scope, calling
// progress (phase, 0) then (phase, 1) for each phase in turn (10 calls
// total) and writing one log row per phase status.
func (e *Engine) Run(project string, cfg Config, progress ProgressFunc) (CycleResult, error) {
	cycleID := uuid.NewString()
	result := CycleResult{CycleID: cycleID, Phases: make(map[types.ConsolidationPhase]PhaseResult)}
	start := time.Now()

	sessions, turnsBySession, err := e.loadScope(project, cfg.MaxSessionsPerCycle)
	if err != nil {
		return result, fmt.Errorf("svapna: failed to load session scope: %w", err)
	}

	var (
		scored        []ScoredTurn
		highSurprise  []ScoredTurn
		associations  []Association
		crystallized  vasana.CrystallizeResult
		vidhiCreated  int
		compressRatio = 1.0
		tokensSaved   int64
		fatal         bool
	)

	for _, phase := range types.AllPhases {
		if fatal {
			e.emit(progress, phase, 0)
			result.Phases[phase] = PhaseResult{Status: types.StatusSkipped}
			e.emit(progress, phase, 1)
			continue
		}

		e.emit(progress, phase, 0)
		e.logPhase(cycleID, project, phase, types.StatusRunning, nil)
		phaseStart := time.Now()

		var metrics map[string]interface{}
		var phaseErr error

		// A panic inside one phase (e.g. malformed persisted data the
		// phase's own validation didn't anticipate) must not take down the
		// rest of the cycle, matching the recover-per-layer idiom
		// internal/unifiedrecall.Recall uses for its concurrent layers.
		func() {
			defer func() {
				if r := recover(); r != nil {
					phaseErr = fmt.Errorf("svapna: phase %s panicked: %v", phase, r)
				}
			}()

			switch phase {
			case types.PhaseReplay:
				scored, highSurprise = replay(sessions, turnsBySession, cfg)
				indexed := e.indexEntities(project, turnsBySession)
				metrics = map[string]interface{}{"turns_scored": len(scored), "high_surprise": len(highSurprise), "entities_indexed": indexed}

			case types.PhaseRecombine:
				var crossSessions int
				associations, crossSessions = recombine(highSurprise, turnsBySession, cfg)
				metrics = map[string]interface{}{"associations": len(associations), "cross_sessions": crossSessions}

			case types.PhaseCrystallize:
				if e.vasana != nil {
					crystallized, phaseErr = e.vasana.Crystallize(project)
					metrics = map[string]interface{}{
						"vasanas_created":    len(crystallized.Created),
						"vasanas_reinforced": len(crystallized.Reinforced),
					}
				}

			case types.PhaseProceduralize:
				created, procErr := e.proceduralize(project, sessions, turnsBySession, cfg)
				vidhiCreated = created
				phaseErr = procErr
				metrics = map[string]interface{}{"vidhis_created": created}

			case types.PhaseCompress:
				allTurns := flattenTurns(turnsBySession, sessions)
				ratio, saved := compress(allTurns, e.tokenizer)
				compressRatio = ratio
				tokensSaved = saved
				metrics = map[string]interface{}{"compression_ratio": ratio, "tokens_compressed": saved}
			}
		}()

		status := types.StatusSuccess
		if phaseErr != nil {
			status = types.StatusError
			fatal = true
		}
		result.Phases[phase] = PhaseResult{Status: status, DurationMs: time.Since(phaseStart).Milliseconds(), Metrics: metrics, Err: phaseErr}
		e.logPhase(cycleID, project, phase, status, metrics)
		e.emit(progress, phase, 1)
	}

	result.TotalDurationMs = time.Since(start).Milliseconds()
	e.persistSchedule(project, cycleID, start)
	return result, nil
}

// persistSchedule records this cycle's cadence bookkeeping so the external
// Nidra scheduler can poll when the project is next due, instead of
// guessing a fixed global interval. Failure is logged, not propagated: it
// never affects the cycle result that already ran.
func (e *Engine) persistSchedule(project, cycleID string, ranAt time.Time) {
	if e.schedule == nil {
		return
	}
	sched := &types.NidraSchedule{
		Project:     project,
		LastCycleID: cycleID,
		LastCycleAt: ranAt,
		NextCycleAt: ranAt.Add(DefaultScheduleInterval),
	}
	if err := e.schedule.PutNidraSchedule(sched); err != nil {
		log.Printf("svapna: failed to persist nidra schedule for project %q: %v", project, err)
	}
}

func (e *Engine) emit(progress ProgressFunc, phase types.ConsolidationPhase, fraction float64) {
	if progress != nil {
		progress(phase, fraction)
	}
}

func (e *Engine) logPhase(cycleID, project string, phase types.ConsolidationPhase, status types.ConsolidationStatus, metrics map[string]interface{}) {
	if e.log == nil {
		return
	}
	now := time.Now()
	entry := &types.ConsolidationLogEntry{
		CycleID:   cycleID,
		Project:   project,
		Phase:     phase,
		Status:    status,
		Metrics:   metrics,
		StartedAt: now,
	}
	if status != types.StatusRunning {
		entry.EndedAt = &now
	}
	_ = e.log.AppendLogEntry(entry)
}

// loadScope loads up to limit most recent sessions for project plus every
// turn of each, newest first.
func (e *Engine) loadScope(project string, limit int) ([]*types.Session, map[string][]*types.Turn, error) {
	if e.sessions == nil {
		return nil, nil, nil
	}
	sessions, err := e.sessions.ListSessions(project)
	if err != nil {
		return nil, nil, err
	}
	sortSessionsByRecency(sessions)
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}

	turnsBySession := make(map[string][]*types.Turn, len(sessions))
	for _, s := range sessions {
		turns, err := e.sessions.ListTurns(s.ID)
		if err != nil {
			continue
		}
		turnsBySession[s.ID] = turns
	}
	return sessions, turnsBySession, nil
}

func sortSessionsByRecency(sessions []*types.Session) {
	for i := 1; i < len(sessions); i++ {
		for j := i; j > 0 && sessions[j].UpdatedAt.After(sessions[j-1].UpdatedAt); j-- {
			sessions[j], sessions[j-1] = sessions[j-1], sessions[j]
		}
	}
}

func flattenTurns(turnsBySession map[string][]*types.Turn, sessions []*types.Session) []*types.Turn {
	var all []*types.Turn
	for _, s := range sessions {
		all = append(all, turnsBySession[s.ID]...)
	}
	return all
}

// indexEntities feeds every turn's content through the regex extractor and
// upserts the resulting entities/mentions into the graph store, so sessions
// consolidated here become traversable by the GraphRAG ranker without a
// separate indexing pass. A nil graphStore makes this a no-op.
func (e *Engine) indexEntities(project string, turnsBySession map[string][]*types.Turn) int {
	if e.graphStore == nil {
		return 0
	}
	ctx := context.Background()
	indexed := 0
	for sessionID, turns := range turnsBySession {
		for _, t := range turns {
			if err := knowledge.IndexTurnContent(ctx, e.graphStore, e.extractor, project, sessionID, t); err != nil {
				log.Printf("svapna: entity indexing failed for session %s: %v", sessionID, err)
				continue
			}
			indexed++
		}
	}
	return indexed
}
