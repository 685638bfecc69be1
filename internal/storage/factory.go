package storage

import (
	"fmt"
	"log"
)

// New creates a Store backend from configuration, falling back to
// cfg.FallbackType if the preferred backend fails to initialize.
func New(cfg Config) (Store, error) {
	switch cfg.Type {
	case TypeMemory:
		log.Println("smriti: initializing in-memory storage")
		return NewMemoryStore(), nil

	case TypeSQLite:
		log.Printf("smriti: initializing sqlite storage at %s", cfg.SQLitePath)
		store, err := NewSQLiteStore(cfg.SQLitePath, cfg.SQLiteTimeout)
		if err != nil {
			if cfg.FallbackType != "" && cfg.FallbackType != cfg.Type {
				log.Printf("smriti: sqlite initialization failed: %v. Falling back to %s", err, cfg.FallbackType)
				return New(Config{Type: cfg.FallbackType})
			}
			return nil, fmt.Errorf("sqlite initialization failed: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// NewFromEnv creates a Store from environment-derived configuration.
func NewFromEnv() (Store, error) {
	return New(ConfigFromEnv())
}
