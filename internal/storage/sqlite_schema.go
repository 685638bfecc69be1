package storage

import (
	"database/sql"
	"fmt"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS schema_metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    project TEXT NOT NULL DEFAULT '',
    agent TEXT NOT NULL DEFAULT '',
    model TEXT NOT NULL DEFAULT '',
    provider TEXT NOT NULL DEFAULT '',
    parent_session_id TEXT,
    branch TEXT,
    tags TEXT,
    cost_usd REAL NOT NULL DEFAULT 0,
    input_tokens INTEGER NOT NULL DEFAULT 0,
    output_tokens INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS turns (
    session_id TEXT NOT NULL,
    turn_number INTEGER NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    tool_calls TEXT,
    timestamp INTEGER NOT NULL,
    PRIMARY KEY (session_id, turn_number),
    FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS samskaras (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    pattern_type TEXT NOT NULL,
    pattern_content TEXT NOT NULL,
    observation_count INTEGER NOT NULL DEFAULT 1,
    confidence REAL NOT NULL DEFAULT 0,
    pramana_type TEXT,
    project TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS vasanas (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    valence TEXT NOT NULL DEFAULT 'neutral',
    strength REAL NOT NULL DEFAULT 0,
    stability REAL NOT NULL DEFAULT 0,
    predictive_accuracy REAL NOT NULL DEFAULT 0,
    source_samskaras TEXT,
    reinforcement_count INTEGER NOT NULL DEFAULT 0,
    project TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    last_activated INTEGER,
    activation_count INTEGER NOT NULL DEFAULT 0,
    UNIQUE (name, project)
);

CREATE TABLE IF NOT EXISTS vidhis (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    steps TEXT NOT NULL,
    triggers TEXT,
    parameter_schema TEXT,
    confidence REAL NOT NULL DEFAULT 0,
    success_count INTEGER NOT NULL DEFAULT 0,
    failure_count INTEGER NOT NULL DEFAULT 0,
    learned_from TEXT,
    project TEXT NOT NULL DEFAULT '',
    sequence_key TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    UNIQUE (sequence_key, project)
);

CREATE TABLE IF NOT EXISTS memory_entries (
    scope TEXT NOT NULL,
    key TEXT NOT NULL,
    content TEXT NOT NULL,
    relevance REAL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (scope, key)
);

CREATE TABLE IF NOT EXISTS consolidation_summaries (
    level TEXT NOT NULL,
    period TEXT NOT NULL,
    project TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL,
    PRIMARY KEY (level, period, project)
);

CREATE TABLE IF NOT EXISTS consolidation_log (
    cycle_id TEXT NOT NULL,
    project TEXT NOT NULL DEFAULT '',
    phase TEXT NOT NULL,
    status TEXT NOT NULL,
    metrics TEXT,
    started_at INTEGER NOT NULL,
    ended_at INTEGER,
    PRIMARY KEY (cycle_id, phase)
);

CREATE TABLE IF NOT EXISTS consolidation_rules (
    cluster_key TEXT PRIMARY KEY,
    blob BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS nidra_state (
    project TEXT PRIMARY KEY,
    last_cycle_id TEXT NOT NULL,
    last_cycle_at INTEGER NOT NULL,
    next_cycle_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS weight_learner_state (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    blob BLOB NOT NULL
);

CREATE VIRTUAL TABLE IF NOT EXISTS sessions_fts USING fts5(
    id UNINDEXED,
    title,
    tags,
    agent,
    content='sessions',
    content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS sessions_fts_insert AFTER INSERT ON sessions BEGIN
    INSERT INTO sessions_fts(rowid, id, title, tags, agent) VALUES (new.rowid, new.id, new.title, new.tags, new.agent);
END;

CREATE TRIGGER IF NOT EXISTS sessions_fts_update AFTER UPDATE ON sessions BEGIN
    UPDATE sessions_fts SET title = new.title, tags = new.tags, agent = new.agent WHERE rowid = old.rowid;
END;

CREATE TRIGGER IF NOT EXISTS sessions_fts_delete AFTER DELETE ON sessions BEGIN
    DELETE FROM sessions_fts WHERE rowid = old.rowid;
END;

CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id);
CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project);
CREATE INDEX IF NOT EXISTS idx_samskaras_project ON samskaras(project);
CREATE INDEX IF NOT EXISTS idx_samskaras_session ON samskaras(session_id);
CREATE INDEX IF NOT EXISTS idx_vasanas_project ON vasanas(project);
CREATE INDEX IF NOT EXISTS idx_vidhis_project ON vidhis(project);
CREATE INDEX IF NOT EXISTS idx_summaries_level_project ON consolidation_summaries(level, project);
CREATE INDEX IF NOT EXISTS idx_log_cycle ON consolidation_log(cycle_id);
`

func initializeSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	var currentVersion int
	err := db.QueryRow("SELECT value FROM schema_metadata WHERE key = 'version'").Scan(&currentVersion)
	switch {
	case err == sql.ErrNoRows:
		if _, err := db.Exec("INSERT INTO schema_metadata (key, value) VALUES ('version', ?)", schemaVersion); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to query schema version: %w", err)
	case currentVersion != schemaVersion:
		return fmt.Errorf("schema version mismatch: expected %d, got %d", schemaVersion, currentVersion)
	}

	return nil
}

func configureSQLite(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA mmap_size = 268435456",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	return nil
}
