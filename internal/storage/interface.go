package storage

import (
	"io"

	"smriti/internal/types"
)

// SessionMatch is one full-text search hit over session title/tags/agent.
type SessionMatch struct {
	Session types.Session
	Score   float64
}

// SessionRepository manages session lifecycle and turn append.
type SessionRepository interface {
	CreateSession(session *types.Session) error
	GetSession(id string) (*types.Session, error)
	UpdateSession(session *types.Session) error
	ListSessions(project string) ([]*types.Session, error)

	AppendTurn(turn *types.Turn) error
	ListTurns(sessionID string) ([]*types.Turn, error)

	// SearchSessions scores sessions by the store's native BM25 full-text
	// index over (title, tags, agent). An empty project scopes nothing.
	SearchSessions(query, project string, limit int) ([]SessionMatch, error)
}

// SamskaraRepository manages observed patterns.
type SamskaraRepository interface {
	UpsertSamskara(s *types.Samskara) error
	ListSamskaras(project string) ([]*types.Samskara, error)
	GetSamskara(id string) (*types.Samskara, error)
}

// VasanaRepository manages crystallized tendencies.
type VasanaRepository interface {
	UpsertVasana(v *types.Vasana) error
	ListVasanas(project string) ([]*types.Vasana, error)
	GetVasana(name, project string) (*types.Vasana, error)
	DeleteVasana(id string) error
}

// VidhiRepository manages learned procedures.
type VidhiRepository interface {
	UpsertVidhi(v *types.Vidhi) error
	ListVidhis(project string) ([]*types.Vidhi, error)
	GetVidhiBySequence(sequenceKey, project string) (*types.Vidhi, error)
}

// MemoryRepository manages key-value facts.
type MemoryRepository interface {
	GetMemory(scope, key string) (*types.MemoryEntry, error)
	SetMemory(entry *types.MemoryEntry) error
	ListMemory(scope string) ([]*types.MemoryEntry, error)
}

// TemporalRepository manages consolidated summaries.
type TemporalRepository interface {
	GetSummary(level types.SummaryLevel, period, project string) (*types.TemporalSummary, error)
	PutSummary(summary *types.TemporalSummary) error
	ListSummaries(level types.SummaryLevel, project string) ([]*types.TemporalSummary, error)
}

// ConsolidationLogRepository manages the Svapna cycle audit log.
type ConsolidationLogRepository interface {
	AppendLogEntry(entry *types.ConsolidationLogEntry) error
	ListLogEntries(cycleID string) ([]*types.ConsolidationLogEntry, error)
}

// ConsolidationRuleRepository persists the opaque per-cluster BOCPD state
// blob owned by the Vasana engine. Each row is the learned change-point
// "rule" for one cluster key.
type ConsolidationRuleRepository interface {
	GetConsolidationRule(clusterKey string) ([]byte, error)
	PutConsolidationRule(clusterKey string, blob []byte) error
	ListConsolidationRuleKeys() ([]string, error)
}

// NidraScheduleRepository persists per-project cycle-cadence bookkeeping so
// the external Nidra scheduler can poll when a project's next Svapna cycle
// is due, instead of guessing or polling on a fixed global interval.
type NidraScheduleRepository interface {
	GetNidraSchedule(project string) (*types.NidraSchedule, error)
	PutNidraSchedule(sched *types.NidraSchedule) error
}

// WeightLearnerRepository persists the weight learner's serialized state.
type WeightLearnerRepository interface {
	GetWeightLearnerState() ([]byte, error)
	PutWeightLearnerState(blob []byte) error
}

// Store combines every repository the engine's components depend on. All
// write paths are transactional; read errors on a single row are skipped
// rather than failing the containing operation.
type Store interface {
	SessionRepository
	SamskaraRepository
	VasanaRepository
	VidhiRepository
	MemoryRepository
	TemporalRepository
	ConsolidationLogRepository
	ConsolidationRuleRepository
	NidraScheduleRepository
	WeightLearnerRepository
	io.Closer
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
