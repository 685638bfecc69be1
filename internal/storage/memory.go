package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"smriti/internal/types"
)

// MemoryStore is a non-persistent Store, used as the default backend and as
// the fallback when SQLite initialization fails. All reads return deep
// copies so callers can mutate freely without corrupting stored state.
type MemoryStore struct {
	mu sync.RWMutex

	sessions   map[string]*types.Session
	turns      map[string][]*types.Turn      // keyed by session id, ordered
	samskaras  map[string]*types.Samskara
	vasanas    map[string]*types.Vasana       // keyed by id
	vidhis     map[string]*types.Vidhi        // keyed by id
	memory     map[string]*types.MemoryEntry  // keyed by scope+"\x1f"+key
	summaries  map[string]*types.TemporalSummary
	logEntries map[string][]*types.ConsolidationLogEntry // keyed by cycle id
	rules      map[string][]byte                         // consolidation_rules, keyed by cluster key
	schedules  map[string]*types.NidraSchedule            // keyed by project
	wlState    []byte
}

// NewMemoryStore creates an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:   make(map[string]*types.Session),
		turns:      make(map[string][]*types.Turn),
		samskaras:  make(map[string]*types.Samskara),
		vasanas:    make(map[string]*types.Vasana),
		vidhis:     make(map[string]*types.Vidhi),
		memory:     make(map[string]*types.MemoryEntry),
		summaries:  make(map[string]*types.TemporalSummary),
		logEntries: make(map[string][]*types.ConsolidationLogEntry),
		rules:      make(map[string][]byte),
		schedules:  make(map[string]*types.NidraSchedule),
	}
}

// Close is a no-op; there is no resource to release.
func (m *MemoryStore) Close() error { return nil }

func memoryKey(scope, key string) string { return scope + "\x1f" + key }
func summaryKey(level types.SummaryLevel, period, project string) string {
	return string(level) + "\x1f" + period + "\x1f" + project
}

// --- sessions ---

func (m *MemoryStore) CreateSession(session *types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *session
	cp.Tags = append([]string(nil), session.Tags...)
	m.sessions[session.ID] = &cp
	return nil
}

func (m *MemoryStore) GetSession(id string) (*types.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	cp := *s
	cp.Tags = append([]string(nil), s.Tags...)
	return &cp, nil
}

func (m *MemoryStore) UpdateSession(session *types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[session.ID]; !ok {
		return fmt.Errorf("session not found: %s", session.ID)
	}
	cp := *session
	cp.Tags = append([]string(nil), session.Tags...)
	m.sessions[session.ID] = &cp
	return nil
}

func (m *MemoryStore) ListSessions(project string) ([]*types.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*types.Session
	for _, s := range m.sessions {
		if project != "" && s.Project != project {
			continue
		}
		cp := *s
		cp.Tags = append([]string(nil), s.Tags...)
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (m *MemoryStore) AppendTurn(turn *types.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *turn
	cp.ToolCalls = append([]types.ToolCall(nil), turn.ToolCalls...)
	m.turns[turn.SessionID] = append(m.turns[turn.SessionID], &cp)
	return nil
}

func (m *MemoryStore) ListTurns(sessionID string) ([]*types.Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.turns[sessionID]
	result := make([]*types.Turn, len(src))
	for i, t := range src {
		cp := *t
		cp.ToolCalls = append([]types.ToolCall(nil), t.ToolCalls...)
		result[i] = &cp
	}
	return result, nil
}

// SearchSessions does a naive case-insensitive substring match over
// (title, tags, agent), scoring by occurrence count. It exists so the
// in-memory backend satisfies Store without an FTS engine; it is not a BM25
// approximation and callers should not compare its scores across backends.
func (m *MemoryStore) SearchSessions(query, project string, limit int) ([]SessionMatch, error) {
	if limit <= 0 {
		limit = 10
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []SessionMatch
	for _, s := range m.sessions {
		if project != "" && s.Project != project {
			continue
		}
		haystack := strings.ToLower(s.Title + " " + strings.Join(s.Tags, " ") + " " + s.Agent)
		score := float64(strings.Count(haystack, needle))
		if score == 0 {
			continue
		}
		cp := *s
		cp.Tags = append([]string(nil), s.Tags...)
		matches = append(matches, SessionMatch{Session: cp, Score: score})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Session.ID < matches[j].Session.ID
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// --- samskaras ---

func (m *MemoryStore) UpsertSamskara(s *types.Samskara) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.samskaras[s.ID] = &cp
	return nil
}

func (m *MemoryStore) ListSamskaras(project string) ([]*types.Samskara, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*types.Samskara
	for _, s := range m.samskaras {
		if project != "" && s.Project != project {
			continue
		}
		cp := *s
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt.After(result[j].UpdatedAt) })
	return result, nil
}

func (m *MemoryStore) GetSamskara(id string) (*types.Samskara, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.samskaras[id]
	if !ok {
		return nil, fmt.Errorf("samskara not found: %s", id)
	}
	cp := *s
	return &cp, nil
}

// --- vasanas ---

func (m *MemoryStore) UpsertVasana(v *types.Vasana) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.vasanas {
		if existing.Name == v.Name && existing.Project == v.Project && existing.ID != v.ID {
			v.ID = existing.ID
			break
		}
	}
	cp := *v
	cp.SourceSamskaras = append([]string(nil), v.SourceSamskaras...)
	m.vasanas[v.ID] = &cp
	return nil
}

func (m *MemoryStore) ListVasanas(project string) ([]*types.Vasana, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*types.Vasana
	for _, v := range m.vasanas {
		if project != "" && v.Project != project {
			continue
		}
		cp := *v
		cp.SourceSamskaras = append([]string(nil), v.SourceSamskaras...)
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Strength > result[j].Strength })
	return result, nil
}

func (m *MemoryStore) GetVasana(name, project string) (*types.Vasana, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, v := range m.vasanas {
		if v.Name == name && v.Project == project {
			cp := *v
			cp.SourceSamskaras = append([]string(nil), v.SourceSamskaras...)
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("vasana not found: %s/%s", project, name)
}

func (m *MemoryStore) DeleteVasana(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vasanas, id)
	return nil
}

// --- vidhis ---

func (m *MemoryStore) UpsertVidhi(v *types.Vidhi) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seqKey := v.ToolSequenceKey()
	for _, existing := range m.vidhis {
		if existing.ToolSequenceKey() == seqKey && existing.Project == v.Project && existing.ID != v.ID {
			v.ID = existing.ID
			break
		}
	}
	cp := *v
	cp.Steps = append([]types.VidhiStep(nil), v.Steps...)
	cp.Triggers = append([]string(nil), v.Triggers...)
	cp.LearnedFrom = append([]string(nil), v.LearnedFrom...)
	m.vidhis[v.ID] = &cp
	return nil
}

func (m *MemoryStore) ListVidhis(project string) ([]*types.Vidhi, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*types.Vidhi
	for _, v := range m.vidhis {
		if project != "" && v.Project != project {
			continue
		}
		cp := *v
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Confidence > result[j].Confidence })
	return result, nil
}

func (m *MemoryStore) GetVidhiBySequence(sequenceKey, project string) (*types.Vidhi, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, v := range m.vidhis {
		if v.ToolSequenceKey() == sequenceKey && v.Project == project {
			cp := *v
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("vidhi not found: %s/%s", project, sequenceKey)
}

// --- memory ---

func (m *MemoryStore) GetMemory(scope, key string) (*types.MemoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.memory[memoryKey(scope, key)]
	if !ok {
		return nil, fmt.Errorf("memory entry not found: %s/%s", scope, key)
	}
	cp := *e
	return &cp, nil
}

func (m *MemoryStore) SetMemory(entry *types.MemoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.memory[memoryKey(entry.Scope, entry.Key)] = &cp
	return nil
}

func (m *MemoryStore) ListMemory(scope string) ([]*types.MemoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*types.MemoryEntry
	for _, e := range m.memory {
		if e.Scope != scope {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt.After(result[j].UpdatedAt) })
	return result, nil
}

// --- temporal summaries ---

func (m *MemoryStore) GetSummary(level types.SummaryLevel, period, project string) (*types.TemporalSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sum, ok := m.summaries[summaryKey(level, period, project)]
	if !ok {
		return nil, fmt.Errorf("summary not found: %s/%s/%s", level, period, project)
	}
	cp := *sum
	return &cp, nil
}

func (m *MemoryStore) PutSummary(summary *types.TemporalSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *summary
	m.summaries[summaryKey(summary.Level, summary.Period, summary.Project)] = &cp
	return nil
}

func (m *MemoryStore) ListSummaries(level types.SummaryLevel, project string) ([]*types.TemporalSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*types.TemporalSummary
	for _, sum := range m.summaries {
		if sum.Level != level || sum.Project != project {
			continue
		}
		cp := *sum
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Period > result[j].Period })
	return result, nil
}

// --- consolidation log ---

func (m *MemoryStore) AppendLogEntry(entry *types.ConsolidationLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *entry
	entries := m.logEntries[entry.CycleID]
	for i, e := range entries {
		if e.Phase == entry.Phase {
			entries[i] = &cp
			m.logEntries[entry.CycleID] = entries
			return nil
		}
	}
	m.logEntries[entry.CycleID] = append(entries, &cp)
	return nil
}

func (m *MemoryStore) ListLogEntries(cycleID string) ([]*types.ConsolidationLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.logEntries[cycleID]
	result := make([]*types.ConsolidationLogEntry, len(src))
	for i, e := range src {
		cp := *e
		result[i] = &cp
	}
	return result, nil
}

// --- consolidation_rules (BOCPD) state ---

func (m *MemoryStore) GetConsolidationRule(clusterKey string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	blob, ok := m.rules[clusterKey]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), blob...), nil
}

func (m *MemoryStore) PutConsolidationRule(clusterKey string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[clusterKey] = append([]byte(nil), blob...)
	return nil
}

func (m *MemoryStore) ListConsolidationRuleKeys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.rules))
	for k := range m.rules {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// --- nidra_state (scheduler cadence bookkeeping) ---

func (m *MemoryStore) GetNidraSchedule(project string) (*types.NidraSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sched, ok := m.schedules[project]
	if !ok {
		return nil, nil
	}
	cp := *sched
	return &cp, nil
}

func (m *MemoryStore) PutNidraSchedule(sched *types.NidraSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sched
	m.schedules[sched.Project] = &cp
	return nil
}

// --- weight learner state ---

func (m *MemoryStore) GetWeightLearnerState() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.wlState == nil {
		return nil, nil
	}
	return append([]byte(nil), m.wlState...), nil
}

func (m *MemoryStore) PutWeightLearnerState(blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wlState = append([]byte(nil), blob...)
	return nil
}
