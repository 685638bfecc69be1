// Package types defines the core data structures shared across the Smriti
// memory and consolidation engine: sessions, turns, observed patterns
// (samskaras), crystallized tendencies (vasanas), learned procedures
// (vidhis), temporal summaries, and key-value memory entries.
//
// These types are used by the storage layer, the hybrid search engine, the
// Vasana and Svapna engines, and the unified recall dispatcher. Most types
// carry their own JSON tags since they round-trip through SQLite blobs and
// the MCP tool surface.
package types

import "time"

// Role identifies the speaker of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PatternType enumerates the kinds of samskara an extraction pipeline can emit.
type PatternType string

const (
	PatternToolSequence PatternType = "tool-sequence"
	PatternPreference   PatternType = "preference"
	PatternDecision     PatternType = "decision"
	PatternCorrection   PatternType = "correction"
	PatternConvention   PatternType = "convention"
)

// PramanaType is an epistemic category: how a claim or observation came to be known.
type PramanaType string

const (
	PramanaPratyaksha  PramanaType = "pratyaksha"  // direct perception
	PramanaAnumana     PramanaType = "anumana"     // inference
	PramanaShabda      PramanaType = "shabda"      // testimony
	PramanaUpamana     PramanaType = "upamana"     // analogy
	PramanaArthapatti  PramanaType = "arthapatti"  // postulation
	PramanaAnupalabdhi PramanaType = "anupalabdhi" // non-apprehension
)

// Reliability is the epistemic boost weight used by the hybrid search engine.
func (p PramanaType) Reliability() float64 {
	switch p {
	case PramanaPratyaksha:
		return 1.0
	case PramanaAnumana:
		return 0.85
	case PramanaShabda:
		return 0.75
	case PramanaUpamana:
		return 0.6
	case PramanaArthapatti:
		return 0.5
	case PramanaAnupalabdhi:
		return 0.4
	default:
		return PramanaShabda.Reliability()
	}
}

// Valence categorizes whether a tendency is reinforcing a good or bad habit.
type Valence string

const (
	ValencePositive Valence = "positive"
	ValenceNegative Valence = "negative"
	ValenceNeutral  Valence = "neutral"
)

// GlobalProject is the reserved project scope for promoted, cross-project vasanas.
const GlobalProject = "__global__"

// ToolCall records a single tool invocation embedded in a turn.
type ToolCall struct {
	Name    string                 `json:"name"`
	Input   map[string]interface{} `json:"input,omitempty"`
	Result  string                 `json:"result,omitempty"`
	IsError bool                   `json:"is_error"`
}

// Session is an immutable container of turns after it is closed.
type Session struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Project         string    `json:"project"` // empty means global
	Agent           string    `json:"agent"`
	Model           string    `json:"model"`
	Provider        string    `json:"provider"`
	ParentSessionID string    `json:"parent_session_id,omitempty"`
	Branch          string    `json:"branch,omitempty"`
	Tags            []string  `json:"tags,omitempty"`
	CostUSD         float64   `json:"cost_usd"`
	InputTokens     int64     `json:"input_tokens"`
	OutputTokens    int64     `json:"output_tokens"`
}

// Turn is one ordered entry in a session's conversation.
type Turn struct {
	SessionID  string     `json:"session_id"`
	TurnNumber int        `json:"turn_number"` // 0-indexed, monotone
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Samskara is an observed pattern extracted from a session by a pipeline
// external to this engine.
type Samskara struct {
	ID               string      `json:"id"`
	SessionID        string      `json:"session_id"`
	PatternType      PatternType `json:"pattern_type"`
	PatternContent   string      `json:"pattern_content"`
	ObservationCount int         `json:"observation_count"`
	Confidence       float64     `json:"confidence"`
	PramanaType      PramanaType `json:"pramana_type,omitempty"`
	Project          string      `json:"project"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// Vasana is a crystallized behavioral tendency.
type Vasana struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"` // normalized tendency name, upsert key with Project
	Description        string     `json:"description"`
	Valence            Valence    `json:"valence"`
	Strength           float64    `json:"strength"`            // [0,1], monotone non-decreasing under reinforcement
	Stability          float64    `json:"stability"`           // [0,1]
	PredictiveAccuracy float64    `json:"predictive_accuracy"` // [0,1]
	SourceSamskaras    []string   `json:"source_samskaras"`
	ReinforcementCount int        `json:"reinforcement_count"`
	Project            string     `json:"project"` // GlobalProject for promoted rows
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	LastActivated      *time.Time `json:"last_activated,omitempty"`
	ActivationCount    int        `json:"activation_count"`
}

// VidhiStep is one ordered step of a learned procedure.
type VidhiStep struct {
	Index       int                    `json:"index"`
	ToolName    string                 `json:"tool_name"`
	ArgTemplate map[string]interface{} `json:"arg_template"` // literals or "${varN}" placeholders
	Description string                 `json:"description,omitempty"`
}

// ParameterSpec describes one named placeholder of a Vidhi's parameter schema.
type ParameterSpec struct {
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description"`
}

// Vidhi is a learned procedure expressed as an anti-unified tool sequence template.
type Vidhi struct {
	ID              string                   `json:"id"`
	Name            string                   `json:"name"`
	Steps           []VidhiStep              `json:"steps"`
	Triggers        []string                 `json:"triggers"`
	ParameterSchema map[string]ParameterSpec `json:"parameter_schema"`
	Confidence      float64                  `json:"confidence"`
	SuccessCount    int                      `json:"success_count"`
	FailureCount    int                      `json:"failure_count"`
	LearnedFrom     []string                 `json:"learned_from"` // session ids
	Project         string                   `json:"project"`
	CreatedAt       time.Time                `json:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at"`
}

// ToolSequenceKey returns the ordered tool-name sequence used as the (sequence, project) upsert key.
func (v *Vidhi) ToolSequenceKey() string {
	key := ""
	for i, s := range v.Steps {
		if i > 0 {
			key += "\x1f"
		}
		key += s.ToolName
	}
	return key
}

// SummaryLevel is the granularity of a temporal summary.
type SummaryLevel string

const (
	LevelYearly  SummaryLevel = "yearly"
	LevelMonthly SummaryLevel = "monthly"
	LevelDaily   SummaryLevel = "daily"
)

// DepthBoost is the fixed scoring multiplier used by hierarchical temporal search.
func (l SummaryLevel) DepthBoost() float64 {
	switch l {
	case LevelYearly:
		return 0.6
	case LevelMonthly:
		return 0.8
	case LevelDaily:
		return 1.0
	default:
		return 0
	}
}

// TemporalSummary is a consolidated markdown digest for one period at one level.
type TemporalSummary struct {
	Level   SummaryLevel `json:"level"`
	Period  string       `json:"period"` // "YYYY", "YYYY-MM", or "YYYY-MM-DD"
	Project string       `json:"project,omitempty"`
	Content string       `json:"content"`
}

// MemoryEntry is a key-value fact scoped to a project or the global scope.
type MemoryEntry struct {
	Key       string    `json:"key"`
	Scope     string    `json:"scope"` // "global" or a project path
	Content   string    `json:"content"`
	Relevance *float64  `json:"relevance,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConsolidationPhase enumerates the five Svapna phases.
type ConsolidationPhase string

const (
	PhaseReplay        ConsolidationPhase = "replay"
	PhaseRecombine     ConsolidationPhase = "recombine"
	PhaseCrystallize   ConsolidationPhase = "crystallize"
	PhaseProceduralize ConsolidationPhase = "proceduralize"
	PhaseCompress      ConsolidationPhase = "compress"
)

// AllPhases is the fixed phase execution order.
var AllPhases = []ConsolidationPhase{
	PhaseReplay, PhaseRecombine, PhaseCrystallize, PhaseProceduralize, PhaseCompress,
}

// ConsolidationStatus is the outcome of one phase or cycle.
type ConsolidationStatus string

const (
	StatusRunning ConsolidationStatus = "running"
	StatusSuccess ConsolidationStatus = "success"
	StatusError   ConsolidationStatus = "error"
	StatusSkipped ConsolidationStatus = "skipped"
)

// ConsolidationLogEntry is one row of the append-only Svapna cycle log.
type ConsolidationLogEntry struct {
	CycleID   string                 `json:"cycle_id"`
	Project   string                 `json:"project"`
	Phase     ConsolidationPhase     `json:"phase"`
	Status    ConsolidationStatus    `json:"status"`
	Metrics   map[string]interface{} `json:"metrics,omitempty"`
	StartedAt time.Time              `json:"started_at"`
	EndedAt   *time.Time             `json:"ended_at,omitempty"`
}

// NidraSchedule is one project's cycle-cadence bookkeeping row, written by
// Svapna after each cycle and read by the external Nidra scheduler to decide
// when the next cycle is due.
type NidraSchedule struct {
	Project     string    `json:"project"`
	LastCycleID string    `json:"last_cycle_id"`
	LastCycleAt time.Time `json:"last_cycle_at"`
	NextCycleAt time.Time `json:"next_cycle_at"`
}

// RankerSource is the finite set of signals fused by hybrid search.
type RankerSource string

const (
	SourceBM25     RankerSource = "bm25"
	SourceVector   RankerSource = "vector"
	SourceGraphRAG RankerSource = "graphrag"
	SourcePramana  RankerSource = "pramana"
)

// SignalIndex is the fixed 0..3 index assigned to each weight-learner signal.
func (r RankerSource) SignalIndex() int {
	switch r {
	case SourceBM25:
		return 0
	case SourceVector:
		return 1
	case SourceGraphRAG:
		return 2
	case SourcePramana:
		return 3
	default:
		return -1
	}
}

// AnswerSource is the finite set of primary sources a unified-recall answer can carry.
type AnswerSource string

const (
	AnswerTurns   AnswerSource = "turns"
	AnswerMemory  AnswerSource = "memory"
	AnswerDayfile AnswerSource = "dayfile"
	AnswerHybrid  AnswerSource = "hybrid"
	AnswerGraph   AnswerSource = "graph"
)

// IdentityFileKind is the finite set of recognized identity file names.
type IdentityFileKind string

const (
	IdentitySoul        IdentityFileKind = "SOUL"
	IdentityIdentity    IdentityFileKind = "IDENTITY"
	IdentityPersonality IdentityFileKind = "PERSONALITY"
	IdentityUser        IdentityFileKind = "USER"
	IdentityAgents      IdentityFileKind = "AGENTS"
)

// Heading returns the markdown subheading used when assembling the identity section.
func (k IdentityFileKind) Heading() string {
	switch k {
	case IdentitySoul:
		return "Soul"
	case IdentityIdentity:
		return "Identity"
	case IdentityPersonality:
		return "Personality & Voice"
	case IdentityUser:
		return "User Profile"
	case IdentityAgents:
		return "Agent Behavior"
	default:
		return string(k)
	}
}

// FileName returns the canonical on-disk filename for the kind.
func (k IdentityFileKind) FileName() string {
	return string(k) + ".md"
}

// AllIdentityFileKinds is the fixed search order for the identity loader.
var AllIdentityFileKinds = []IdentityFileKind{
	IdentitySoul, IdentityIdentity, IdentityPersonality, IdentityUser, IdentityAgents,
}

// StreamKind enumerates the four preservation streams.
type StreamKind string

const (
	StreamIdentity StreamKind = "identity"
	StreamProjects StreamKind = "projects"
	StreamTasks    StreamKind = "tasks"
	StreamFlow     StreamKind = "flow"
)

// PreservationRatio is the fixed budget share for each stream (spec.md §6).
func (s StreamKind) PreservationRatio() float64 {
	switch s {
	case StreamIdentity:
		return 0.95
	case StreamProjects:
		return 0.80
	case StreamTasks:
		return 0.70
	case StreamFlow:
		return 0.30
	default:
		return 0
	}
}

// AllStreamKinds is the fixed iteration order for stream budget allocation.
var AllStreamKinds = []StreamKind{StreamIdentity, StreamProjects, StreamTasks, StreamFlow}
