package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"smriti/internal/types"
)

// SQLiteStore implements Store against a single SQLite database file, using
// an FTS5 virtual table for session search.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) a SQLite database at dbPath and
// initializes its schema and pragmas.
func NewSQLiteStore(dbPath string, timeoutMs int) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=%d", dbPath, timeoutMs)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := configureSQLite(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure sqlite: %w", err)
	}

	if timeoutMs > 0 {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", timeoutMs)); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set busy timeout: %w", err)
		}
	}

	if err := initializeSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- sessions ---

func (s *SQLiteStore) CreateSession(session *types.Session) error {
	tagsJSON, _ := json.Marshal(session.Tags)

	_, err := s.db.Exec(`
		INSERT INTO sessions (id, title, created_at, updated_at, project, agent, model, provider,
			parent_session_id, branch, tags, cost_usd, input_tokens, output_tokens)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.Title, session.CreatedAt.Unix(), session.UpdatedAt.Unix(), session.Project,
		session.Agent, session.Model, session.Provider, nullableString(session.ParentSessionID),
		nullableString(session.Branch), tagsJSON, session.CostUSD, session.InputTokens, session.OutputTokens,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(id string) (*types.Session, error) {
	row := s.db.QueryRow(`
		SELECT id, title, created_at, updated_at, project, agent, model, provider,
			parent_session_id, branch, tags, cost_usd, input_tokens, output_tokens
		FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

func (s *SQLiteStore) UpdateSession(session *types.Session) error {
	tagsJSON, _ := json.Marshal(session.Tags)

	res, err := s.db.Exec(`
		UPDATE sessions SET title = ?, updated_at = ?, project = ?, agent = ?, model = ?, provider = ?,
			branch = ?, tags = ?, cost_usd = ?, input_tokens = ?, output_tokens = ?
		WHERE id = ?`,
		session.Title, session.UpdatedAt.Unix(), session.Project, session.Agent, session.Model, session.Provider,
		nullableString(session.Branch), tagsJSON, session.CostUSD, session.InputTokens, session.OutputTokens,
		session.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session not found: %s", session.ID)
	}
	return nil
}

func (s *SQLiteStore) ListSessions(project string) ([]*types.Session, error) {
	var rows *sql.Rows
	var err error
	query := `SELECT id, title, created_at, updated_at, project, agent, model, provider,
			parent_session_id, branch, tags, cost_usd, input_tokens, output_tokens
		FROM sessions`

	if project != "" {
		rows, err = s.db.Query(query+" WHERE project = ? ORDER BY created_at DESC", project)
	} else {
		rows, err = s.db.Query(query + " ORDER BY created_at DESC")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*types.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			log.Printf("smriti: skipping corrupt session row: %v", err)
			continue
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) AppendTurn(turn *types.Turn) error {
	toolCallsJSON, _ := json.Marshal(turn.ToolCalls)

	_, err := s.db.Exec(`
		INSERT INTO turns (session_id, turn_number, role, content, tool_calls, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		turn.SessionID, turn.TurnNumber, turn.Role, turn.Content, toolCallsJSON, turn.Timestamp.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListTurns(sessionID string) ([]*types.Turn, error) {
	rows, err := s.db.Query(`
		SELECT session_id, turn_number, role, content, tool_calls, timestamp
		FROM turns WHERE session_id = ? ORDER BY turn_number ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	defer rows.Close()

	var turns []*types.Turn
	for rows.Next() {
		var t types.Turn
		var toolCallsJSON []byte
		var ts int64
		if err := rows.Scan(&t.SessionID, &t.TurnNumber, &t.Role, &t.Content, &toolCallsJSON, &ts); err != nil {
			log.Printf("smriti: skipping corrupt turn row: %v", err)
			continue
		}
		t.Timestamp = time.Unix(ts, 0).UTC()
		t.ToolCalls = decodeToolCalls(toolCallsJSON)
		turns = append(turns, &t)
	}
	return turns, rows.Err()
}

// SearchSessions runs an FTS5 BM25-ranked query over (title, tags, agent).
func (s *SQLiteStore) SearchSessions(query, project string, limit int) ([]SessionMatch, error) {
	if limit <= 0 {
		limit = 10
	}

	sqlQuery := `
		SELECT s.id, s.title, s.created_at, s.updated_at, s.project, s.agent, s.model, s.provider,
			s.parent_session_id, s.branch, s.tags, s.cost_usd, s.input_tokens, s.output_tokens,
			bm25(sessions_fts) AS rank
		FROM sessions_fts
		JOIN sessions s ON s.rowid = sessions_fts.rowid
		WHERE sessions_fts MATCH ?`

	args := []interface{}{query}
	if project != "" {
		sqlQuery += " AND s.project = ?"
		args = append(args, project)
	}
	sqlQuery += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search sessions: %w", err)
	}
	defer rows.Close()

	var matches []SessionMatch
	for rows.Next() {
		var sess types.Session
		var createdAt, updatedAt int64
		var parentSessionID, branch sql.NullString
		var tagsJSON []byte
		var rank float64

		if err := rows.Scan(&sess.ID, &sess.Title, &createdAt, &updatedAt, &sess.Project, &sess.Agent,
			&sess.Model, &sess.Provider, &parentSessionID, &branch, &tagsJSON,
			&sess.CostUSD, &sess.InputTokens, &sess.OutputTokens, &rank); err != nil {
			log.Printf("smriti: skipping corrupt session search row: %v", err)
			continue
		}

		sess.CreatedAt = time.Unix(createdAt, 0).UTC()
		sess.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		sess.ParentSessionID = parentSessionID.String
		sess.Branch = branch.String
		_ = json.Unmarshal(tagsJSON, &sess.Tags)

		// bm25() in SQLite returns more-negative-is-better; invert so
		// higher is better, matching every other ranker's convention.
		matches = append(matches, SessionMatch{Session: sess, Score: -rank})
	}
	return matches, rows.Err()
}

func scanSession(row interface{ Scan(...interface{}) error }) (*types.Session, error) {
	var sess types.Session
	var createdAt, updatedAt int64
	var parentSessionID, branch sql.NullString
	var tagsJSON []byte

	err := row.Scan(&sess.ID, &sess.Title, &createdAt, &updatedAt, &sess.Project, &sess.Agent,
		&sess.Model, &sess.Provider, &parentSessionID, &branch, &tagsJSON,
		&sess.CostUSD, &sess.InputTokens, &sess.OutputTokens)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	sess.CreatedAt = time.Unix(createdAt, 0).UTC()
	sess.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	sess.ParentSessionID = parentSessionID.String
	sess.Branch = branch.String
	_ = json.Unmarshal(tagsJSON, &sess.Tags)
	return &sess, nil
}

func decodeToolCalls(raw []byte) []types.ToolCall {
	if len(raw) == 0 {
		return nil
	}
	var calls []types.ToolCall
	if err := json.Unmarshal(raw, &calls); err != nil {
		log.Printf("[DEBUG] smriti: malformed tool_calls json for turn, returning empty: %v", err)
		return nil
	}
	return calls
}

// --- samskaras ---

func (s *SQLiteStore) UpsertSamskara(sk *types.Samskara) error {
	_, err := s.db.Exec(`
		INSERT INTO samskaras (id, session_id, pattern_type, pattern_content, observation_count,
			confidence, pramana_type, project, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			pattern_type = excluded.pattern_type,
			pattern_content = excluded.pattern_content,
			observation_count = excluded.observation_count,
			confidence = excluded.confidence,
			pramana_type = excluded.pramana_type,
			updated_at = excluded.updated_at`,
		sk.ID, sk.SessionID, sk.PatternType, sk.PatternContent, sk.ObservationCount,
		sk.Confidence, nullableString(string(sk.PramanaType)), sk.Project,
		sk.CreatedAt.Unix(), sk.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert samskara: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListSamskaras(project string) ([]*types.Samskara, error) {
	var rows *sql.Rows
	var err error
	query := `SELECT id, session_id, pattern_type, pattern_content, observation_count,
			confidence, pramana_type, project, created_at, updated_at FROM samskaras`

	if project != "" {
		rows, err = s.db.Query(query+" WHERE project = ? ORDER BY updated_at DESC", project)
	} else {
		rows, err = s.db.Query(query + " ORDER BY updated_at DESC")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list samskaras: %w", err)
	}
	defer rows.Close()

	var result []*types.Samskara
	for rows.Next() {
		sk, err := scanSamskara(rows)
		if err != nil {
			log.Printf("smriti: skipping corrupt samskara row: %v", err)
			continue
		}
		result = append(result, sk)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) GetSamskara(id string) (*types.Samskara, error) {
	row := s.db.QueryRow(`SELECT id, session_id, pattern_type, pattern_content, observation_count,
			confidence, pramana_type, project, created_at, updated_at FROM samskaras WHERE id = ?`, id)
	return scanSamskara(row)
}

func scanSamskara(row interface{ Scan(...interface{}) error }) (*types.Samskara, error) {
	var sk types.Samskara
	var pramana sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&sk.ID, &sk.SessionID, &sk.PatternType, &sk.PatternContent, &sk.ObservationCount,
		&sk.Confidence, &pramana, &sk.Project, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("samskara not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan samskara: %w", err)
	}

	sk.PramanaType = types.PramanaType(pramana.String)
	sk.CreatedAt = time.Unix(createdAt, 0).UTC()
	sk.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &sk, nil
}

// --- vasanas ---

func (s *SQLiteStore) UpsertVasana(v *types.Vasana) error {
	sourceJSON, _ := json.Marshal(v.SourceSamskaras)
	var lastActivated sql.NullInt64
	if v.LastActivated != nil {
		lastActivated = sql.NullInt64{Int64: v.LastActivated.Unix(), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO vasanas (id, name, description, valence, strength, stability, predictive_accuracy,
			source_samskaras, reinforcement_count, project, created_at, updated_at, last_activated, activation_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name, project) DO UPDATE SET
			description = excluded.description,
			valence = excluded.valence,
			strength = excluded.strength,
			stability = excluded.stability,
			predictive_accuracy = excluded.predictive_accuracy,
			source_samskaras = excluded.source_samskaras,
			reinforcement_count = excluded.reinforcement_count,
			updated_at = excluded.updated_at,
			last_activated = excluded.last_activated,
			activation_count = excluded.activation_count`,
		v.ID, v.Name, v.Description, v.Valence, v.Strength, v.Stability, v.PredictiveAccuracy,
		sourceJSON, v.ReinforcementCount, v.Project, v.CreatedAt.Unix(), v.UpdatedAt.Unix(),
		lastActivated, v.ActivationCount,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert vasana: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListVasanas(project string) ([]*types.Vasana, error) {
	var rows *sql.Rows
	var err error
	query := `SELECT id, name, description, valence, strength, stability, predictive_accuracy,
			source_samskaras, reinforcement_count, project, created_at, updated_at, last_activated, activation_count
		FROM vasanas`

	if project != "" {
		rows, err = s.db.Query(query+" WHERE project = ? ORDER BY strength DESC", project)
	} else {
		rows, err = s.db.Query(query + " ORDER BY strength DESC")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list vasanas: %w", err)
	}
	defer rows.Close()

	var result []*types.Vasana
	for rows.Next() {
		v, err := scanVasana(rows)
		if err != nil {
			log.Printf("smriti: skipping corrupt vasana row: %v", err)
			continue
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) GetVasana(name, project string) (*types.Vasana, error) {
	row := s.db.QueryRow(`SELECT id, name, description, valence, strength, stability, predictive_accuracy,
			source_samskaras, reinforcement_count, project, created_at, updated_at, last_activated, activation_count
		FROM vasanas WHERE name = ? AND project = ?`, name, project)
	return scanVasana(row)
}

func (s *SQLiteStore) DeleteVasana(id string) error {
	_, err := s.db.Exec("DELETE FROM vasanas WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete vasana: %w", err)
	}
	return nil
}

func scanVasana(row interface{ Scan(...interface{}) error }) (*types.Vasana, error) {
	var v types.Vasana
	var sourceJSON []byte
	var createdAt, updatedAt int64
	var lastActivated sql.NullInt64

	err := row.Scan(&v.ID, &v.Name, &v.Description, &v.Valence, &v.Strength, &v.Stability, &v.PredictiveAccuracy,
		&sourceJSON, &v.ReinforcementCount, &v.Project, &createdAt, &updatedAt, &lastActivated, &v.ActivationCount)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("vasana not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan vasana: %w", err)
	}

	_ = json.Unmarshal(sourceJSON, &v.SourceSamskaras)
	v.CreatedAt = time.Unix(createdAt, 0).UTC()
	v.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if lastActivated.Valid {
		t := time.Unix(lastActivated.Int64, 0).UTC()
		v.LastActivated = &t
	}
	return &v, nil
}

// --- vidhis ---

func (s *SQLiteStore) UpsertVidhi(v *types.Vidhi) error {
	stepsJSON, _ := json.Marshal(v.Steps)
	triggersJSON, _ := json.Marshal(v.Triggers)
	schemaJSON, _ := json.Marshal(v.ParameterSchema)
	learnedFromJSON, _ := json.Marshal(v.LearnedFrom)

	_, err := s.db.Exec(`
		INSERT INTO vidhis (id, name, steps, triggers, parameter_schema, confidence, success_count,
			failure_count, learned_from, project, sequence_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sequence_key, project) DO UPDATE SET
			name = excluded.name,
			steps = excluded.steps,
			triggers = excluded.triggers,
			parameter_schema = excluded.parameter_schema,
			confidence = excluded.confidence,
			success_count = excluded.success_count,
			failure_count = excluded.failure_count,
			learned_from = excluded.learned_from,
			updated_at = excluded.updated_at`,
		v.ID, v.Name, stepsJSON, triggersJSON, schemaJSON, v.Confidence, v.SuccessCount,
		v.FailureCount, learnedFromJSON, v.Project, v.ToolSequenceKey(), v.CreatedAt.Unix(), v.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert vidhi: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListVidhis(project string) ([]*types.Vidhi, error) {
	var rows *sql.Rows
	var err error
	query := `SELECT id, name, steps, triggers, parameter_schema, confidence, success_count,
			failure_count, learned_from, project, created_at, updated_at FROM vidhis`

	if project != "" {
		rows, err = s.db.Query(query+" WHERE project = ? ORDER BY confidence DESC", project)
	} else {
		rows, err = s.db.Query(query + " ORDER BY confidence DESC")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list vidhis: %w", err)
	}
	defer rows.Close()

	var result []*types.Vidhi
	for rows.Next() {
		v, err := scanVidhi(rows)
		if err != nil {
			log.Printf("smriti: skipping corrupt vidhi row: %v", err)
			continue
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) GetVidhiBySequence(sequenceKey, project string) (*types.Vidhi, error) {
	row := s.db.QueryRow(`SELECT id, name, steps, triggers, parameter_schema, confidence, success_count,
			failure_count, learned_from, project, created_at, updated_at
		FROM vidhis WHERE sequence_key = ? AND project = ?`, sequenceKey, project)
	return scanVidhi(row)
}

func scanVidhi(row interface{ Scan(...interface{}) error }) (*types.Vidhi, error) {
	var v types.Vidhi
	var stepsJSON, triggersJSON, schemaJSON, learnedFromJSON []byte
	var createdAt, updatedAt int64

	err := row.Scan(&v.ID, &v.Name, &stepsJSON, &triggersJSON, &schemaJSON, &v.Confidence, &v.SuccessCount,
		&v.FailureCount, &learnedFromJSON, &v.Project, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("vidhi not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan vidhi: %w", err)
	}

	_ = json.Unmarshal(stepsJSON, &v.Steps)
	_ = json.Unmarshal(triggersJSON, &v.Triggers)
	_ = json.Unmarshal(schemaJSON, &v.ParameterSchema)
	_ = json.Unmarshal(learnedFromJSON, &v.LearnedFrom)
	v.CreatedAt = time.Unix(createdAt, 0).UTC()
	v.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &v, nil
}

// --- memory ---

func (s *SQLiteStore) GetMemory(scope, key string) (*types.MemoryEntry, error) {
	row := s.db.QueryRow(`SELECT scope, key, content, relevance, updated_at
		FROM memory_entries WHERE scope = ? AND key = ?`, scope, key)

	var m types.MemoryEntry
	var relevance sql.NullFloat64
	var updatedAt int64
	if err := row.Scan(&m.Scope, &m.Key, &m.Content, &relevance, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("memory entry not found")
		}
		return nil, fmt.Errorf("failed to scan memory entry: %w", err)
	}
	if relevance.Valid {
		m.Relevance = &relevance.Float64
	}
	m.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &m, nil
}

func (s *SQLiteStore) SetMemory(entry *types.MemoryEntry) error {
	var relevance interface{}
	if entry.Relevance != nil {
		relevance = *entry.Relevance
	}

	_, err := s.db.Exec(`
		INSERT INTO memory_entries (scope, key, content, relevance, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(scope, key) DO UPDATE SET
			content = excluded.content,
			relevance = excluded.relevance,
			updated_at = excluded.updated_at`,
		entry.Scope, entry.Key, entry.Content, relevance, entry.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to set memory entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListMemory(scope string) ([]*types.MemoryEntry, error) {
	rows, err := s.db.Query(`SELECT scope, key, content, relevance, updated_at
		FROM memory_entries WHERE scope = ? ORDER BY updated_at DESC`, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list memory entries: %w", err)
	}
	defer rows.Close()

	var result []*types.MemoryEntry
	for rows.Next() {
		var m types.MemoryEntry
		var relevance sql.NullFloat64
		var updatedAt int64
		if err := rows.Scan(&m.Scope, &m.Key, &m.Content, &relevance, &updatedAt); err != nil {
			log.Printf("smriti: skipping corrupt memory row: %v", err)
			continue
		}
		if relevance.Valid {
			m.Relevance = &relevance.Float64
		}
		m.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		result = append(result, &m)
	}
	return result, rows.Err()
}

// --- temporal summaries ---

func (s *SQLiteStore) GetSummary(level types.SummaryLevel, period, project string) (*types.TemporalSummary, error) {
	row := s.db.QueryRow(`SELECT level, period, project, content
		FROM consolidation_summaries WHERE level = ? AND period = ? AND project = ?`, level, period, project)

	var sum types.TemporalSummary
	if err := row.Scan(&sum.Level, &sum.Period, &sum.Project, &sum.Content); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("summary not found")
		}
		return nil, fmt.Errorf("failed to scan summary: %w", err)
	}
	return &sum, nil
}

func (s *SQLiteStore) PutSummary(summary *types.TemporalSummary) error {
	_, err := s.db.Exec(`
		INSERT INTO consolidation_summaries (level, period, project, content)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(level, period, project) DO UPDATE SET content = excluded.content`,
		summary.Level, summary.Period, summary.Project, summary.Content,
	)
	if err != nil {
		return fmt.Errorf("failed to put summary: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListSummaries(level types.SummaryLevel, project string) ([]*types.TemporalSummary, error) {
	rows, err := s.db.Query(`SELECT level, period, project, content
		FROM consolidation_summaries WHERE level = ? AND project = ? ORDER BY period DESC`, level, project)
	if err != nil {
		return nil, fmt.Errorf("failed to list summaries: %w", err)
	}
	defer rows.Close()

	var result []*types.TemporalSummary
	for rows.Next() {
		var sum types.TemporalSummary
		if err := rows.Scan(&sum.Level, &sum.Period, &sum.Project, &sum.Content); err != nil {
			log.Printf("smriti: skipping corrupt summary row: %v", err)
			continue
		}
		result = append(result, &sum)
	}
	return result, rows.Err()
}

// --- consolidation log ---

func (s *SQLiteStore) AppendLogEntry(entry *types.ConsolidationLogEntry) error {
	metricsJSON, _ := json.Marshal(entry.Metrics)
	var endedAt sql.NullInt64
	if entry.EndedAt != nil {
		endedAt = sql.NullInt64{Int64: entry.EndedAt.Unix(), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO consolidation_log (cycle_id, project, phase, status, metrics, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cycle_id, phase) DO UPDATE SET
			status = excluded.status,
			metrics = excluded.metrics,
			ended_at = excluded.ended_at`,
		entry.CycleID, entry.Project, entry.Phase, entry.Status, metricsJSON, entry.StartedAt.Unix(), endedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append log entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListLogEntries(cycleID string) ([]*types.ConsolidationLogEntry, error) {
	rows, err := s.db.Query(`SELECT cycle_id, project, phase, status, metrics, started_at, ended_at
		FROM consolidation_log WHERE cycle_id = ? ORDER BY started_at ASC`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list log entries: %w", err)
	}
	defer rows.Close()

	var result []*types.ConsolidationLogEntry
	for rows.Next() {
		var e types.ConsolidationLogEntry
		var metricsJSON []byte
		var startedAt int64
		var endedAt sql.NullInt64
		if err := rows.Scan(&e.CycleID, &e.Project, &e.Phase, &e.Status, &metricsJSON, &startedAt, &endedAt); err != nil {
			log.Printf("smriti: skipping corrupt log row: %v", err)
			continue
		}
		_ = json.Unmarshal(metricsJSON, &e.Metrics)
		e.StartedAt = time.Unix(startedAt, 0).UTC()
		if endedAt.Valid {
			t := time.Unix(endedAt.Int64, 0).UTC()
			e.EndedAt = &t
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}

// --- consolidation_rules (BOCPD) state ---

func (s *SQLiteStore) GetConsolidationRule(clusterKey string) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRow("SELECT blob FROM consolidation_rules WHERE cluster_key = ?", clusterKey).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get consolidation rule: %w", err)
	}
	return blob, nil
}

func (s *SQLiteStore) PutConsolidationRule(clusterKey string, blob []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO consolidation_rules (cluster_key, blob) VALUES (?, ?)
		ON CONFLICT(cluster_key) DO UPDATE SET blob = excluded.blob`, clusterKey, blob)
	if err != nil {
		return fmt.Errorf("failed to put consolidation rule: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListConsolidationRuleKeys() ([]string, error) {
	rows, err := s.db.Query("SELECT cluster_key FROM consolidation_rules")
	if err != nil {
		return nil, fmt.Errorf("failed to list consolidation rule keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			log.Printf("smriti: skipping corrupt consolidation rule key row: %v", err)
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, rows.Err()
}

// --- nidra_state (scheduler cadence bookkeeping) ---

func (s *SQLiteStore) GetNidraSchedule(project string) (*types.NidraSchedule, error) {
	var sched types.NidraSchedule
	var lastAt, nextAt int64
	err := s.db.QueryRow(
		"SELECT project, last_cycle_id, last_cycle_at, next_cycle_at FROM nidra_state WHERE project = ?",
		project,
	).Scan(&sched.Project, &sched.LastCycleID, &lastAt, &nextAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get nidra schedule: %w", err)
	}
	sched.LastCycleAt = time.Unix(lastAt, 0).UTC()
	sched.NextCycleAt = time.Unix(nextAt, 0).UTC()
	return &sched, nil
}

func (s *SQLiteStore) PutNidraSchedule(sched *types.NidraSchedule) error {
	_, err := s.db.Exec(`
		INSERT INTO nidra_state (project, last_cycle_id, last_cycle_at, next_cycle_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(project) DO UPDATE SET
			last_cycle_id = excluded.last_cycle_id,
			last_cycle_at = excluded.last_cycle_at,
			next_cycle_at = excluded.next_cycle_at`,
		sched.Project, sched.LastCycleID, sched.LastCycleAt.Unix(), sched.NextCycleAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to put nidra schedule: %w", err)
	}
	return nil
}

// --- weight learner state ---

func (s *SQLiteStore) GetWeightLearnerState() ([]byte, error) {
	var blob []byte
	err := s.db.QueryRow("SELECT blob FROM weight_learner_state WHERE id = 1").Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get weight learner state: %w", err)
	}
	return blob, nil
}

func (s *SQLiteStore) PutWeightLearnerState(blob []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO weight_learner_state (id, blob) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET blob = excluded.blob`, blob)
	if err != nil {
		return fmt.Errorf("failed to put weight learner state: %w", err)
	}
	return nil
}

func nullableString(s string) interface{} {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
