// Package storage provides the persistence layer: a single-writer SQLite
// store with an FTS5 session index, and an in-memory fallback.
package storage

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
)

// Type identifies which Store implementation to construct.
type Type string

const (
	// TypeMemory uses in-process, non-persistent storage (default).
	TypeMemory Type = "memory"
	// TypeSQLite uses a persistent SQLite-backed store.
	TypeSQLite Type = "sqlite"
)

// Config holds storage configuration.
type Config struct {
	Type          Type   // storage backend type
	SQLitePath    string // path to the SQLite database file
	SQLiteTimeout int    // busy timeout in milliseconds
	FallbackType  Type   // backend to fall back to if Type fails to initialize
}

// DefaultConfig returns default configuration: in-memory storage.
func DefaultConfig() Config {
	return Config{
		Type:          TypeMemory,
		SQLitePath:    "./data/smriti.db",
		SQLiteTimeout: 5000,
		FallbackType:  TypeMemory,
	}
}

// ConfigFromEnv reads storage configuration from environment variables:
//   - SMRITI_STORAGE_TYPE: "memory" (default) or "sqlite"
//   - SMRITI_SQLITE_PATH: path to the SQLite database file
//   - SMRITI_SQLITE_TIMEOUT: busy timeout in milliseconds
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if storageType := os.Getenv("SMRITI_STORAGE_TYPE"); storageType != "" {
		cfg.Type = Type(storageType)
	}

	if sqlitePath := os.Getenv("SMRITI_SQLITE_PATH"); sqlitePath != "" {
		cfg.SQLitePath = sqlitePath
	}

	if cfg.Type == TypeSQLite {
		dir := filepath.Dir(cfg.SQLitePath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			log.Printf("warning: failed to create sqlite directory %s: %v (factory will handle this)", dir, err)
		}
	}

	if timeout := os.Getenv("SMRITI_SQLITE_TIMEOUT"); timeout != "" {
		if val, err := strconv.Atoi(timeout); err == nil && val > 0 {
			cfg.SQLiteTimeout = val
		}
	}

	return cfg
}
