// Package config provides configuration management for the Smriti memory
// engine.
//
// Configuration can be loaded from multiple sources (in order of
// precedence):
//  1. Environment variables (highest priority)
//  2. Configuration file (JSON)
//  3. Default values (lowest priority)
//
// Each domain package (storage, embeddings, vasana, svapna, hybrid search,
// unified recall, temporal, identity) owns its own Config type and
// defaults; this package composes them into one tree and layers the
// SMRITI_ environment namespace and an optional JSON file on top.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"smriti/internal/embeddings"
	"smriti/internal/hybridsearch"
	"smriti/internal/identity"
	"smriti/internal/knowledge"
	"smriti/internal/storage"
	"smriti/internal/svapna"
	"smriti/internal/temporal"
	"smriti/internal/unifiedrecall"
	"smriti/internal/vasana"
)

// Config is the complete engine configuration.
type Config struct {
	Server ServerConfig `json:"server"`

	// Home is the filesystem root for sessions/{id}.md, streams/*.md, and
	// day/*.md (spec.md §6's "<home>/smriti" layout).
	Home string `json:"home"`

	Storage       storage.Config       `json:"storage"`
	Embeddings    *embeddings.Config   `json:"embeddings"`
	Neo4j         knowledge.Neo4jConfig `json:"neo4j"`
	Vasana        vasana.Config        `json:"vasana"`
	Svapna        svapna.Config        `json:"svapna"`
	HybridSearch  hybridsearch.Config  `json:"hybrid_search"`
	UnifiedRecall unifiedrecall.Config `json:"unified_recall"`
	Temporal      temporal.Config      `json:"temporal"`
	Identity      identity.Config      `json:"identity"`

	Logging LoggingConfig `json:"logging"`
}

// ServerConfig contains server-level identification.
type ServerConfig struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Environment string `json:"environment"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level            string `json:"level"`
	Format           string `json:"format"`
	EnableTimestamps bool   `json:"enable_timestamps"`
}

// Default returns the default configuration, composed from every domain
// package's own DefaultConfig. No environment variables are consulted.
func Default() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		Server: ServerConfig{
			Name:        "smritid",
			Version:     "0.1.0",
			Environment: "development",
		},
		Home: filepath.Join(home, "smriti"),

		Storage:       storage.DefaultConfig(),
		Embeddings:    embeddings.DefaultConfig(),
		Neo4j:         knowledge.Neo4jConfigFromEnv(), // no separate pure default exported; harmless with no SMRITI_NEO4J_* set
		Vasana:        vasana.DefaultConfig(),
		Svapna:        svapna.DefaultConfig(),
		HybridSearch:  hybridsearch.DefaultConfig(),
		UnifiedRecall: unifiedrecall.DefaultConfig(),
		Temporal:      temporal.DefaultConfig(),
		Identity: identity.Config{
			HomeDir:         home,
			MaxParents:      identity.DefaultConfig().MaxParents,
			MaxCharsPerFile: identity.DefaultConfig().MaxCharsPerFile,
		},

		Logging: LoggingConfig{
			Level:            "info",
			Format:           "text",
			EnableTimestamps: true,
		},
	}
}

// Load builds configuration from defaults, overlaid with environment
// variables, then validates the result.
func Load() (*Config, error) {
	cfg := Default()
	cfg.loadFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFromFile parses a JSON config file over the defaults, then overlays
// environment variables and validates.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.loadFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFromEnv overlays the SMRITI_ environment namespace. Domain packages
// with their own ConfigFromEnv (storage, embeddings, neo4j) are delegated
// to directly; the remaining domains expose only their most operationally
// relevant knobs here, matching the partial coverage of the teacher's own
// env-var layering rather than mirroring every field.
func (c *Config) loadFromEnv() {
	if v := os.Getenv("SMRITI_HOME"); v != "" {
		c.Home = v
	}
	if v := os.Getenv("SMRITI_SERVER_NAME"); v != "" {
		c.Server.Name = v
	}
	if v := os.Getenv("SMRITI_SERVER_VERSION"); v != "" {
		c.Server.Version = v
	}
	if v := os.Getenv("SMRITI_SERVER_ENVIRONMENT"); v != "" {
		c.Server.Environment = v
	}

	c.Storage = storage.ConfigFromEnv()
	c.Embeddings = embeddings.ConfigFromEnv()
	c.Neo4j = knowledge.Neo4jConfigFromEnv()

	if v := os.Getenv("SMRITI_VASANA_LAMBDA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.Vasana.Lambda = f
		}
	}
	if v := os.Getenv("SMRITI_VASANA_DECAY_HALF_LIFE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Vasana.DecayHalfLife = d
		}
	}

	if v := os.Getenv("SMRITI_SVAPNA_MAX_SESSIONS_PER_CYCLE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Svapna.MaxSessionsPerCycle = n
		}
	}
	if v := os.Getenv("SMRITI_SVAPNA_SURPRISE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			c.Svapna.SurpriseThreshold = f
		}
	}

	if v := os.Getenv("SMRITI_HYBRID_SEARCH_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.HybridSearch.TopK = n
		}
	}
	if v := os.Getenv("SMRITI_HYBRID_SEARCH_PROJECT"); v != "" {
		c.HybridSearch.Project = v
	}

	if v := os.Getenv("SMRITI_UNIFIED_RECALL_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.UnifiedRecall.Limit = n
		}
	}

	if v := os.Getenv("SMRITI_TEMPORAL_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Temporal.Limit = n
		}
	}

	if v := os.Getenv("SMRITI_IDENTITY_CONFIG_PATH"); v != "" {
		c.Identity.ConfigPath = v
	}
	if v := os.Getenv("SMRITI_IDENTITY_MAX_CHARS_PER_FILE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Identity.MaxCharsPerFile = n
		}
	}

	if v := os.Getenv("SMRITI_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("SMRITI_LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}
	if v := os.Getenv("SMRITI_LOG_ENABLE_TIMESTAMPS"); v != "" {
		c.Logging.EnableTimestamps = parseBool(v)
	}
}

// Validate checks the composed configuration for internally inconsistent
// values. Each domain package validates its own deeper invariants (e.g.
// vasana's gate thresholds) at construction time; this only catches
// cross-cutting and ambient-stack mistakes.
func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return fmt.Errorf("server.name cannot be empty")
	}
	switch c.Server.Environment {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("server.environment must be one of: development, staging, production")
	}

	if c.Home == "" {
		return fmt.Errorf("home cannot be empty")
	}

	if c.Vasana.Lambda <= 0 {
		return fmt.Errorf("vasana.lambda must be > 0")
	}
	if c.Svapna.MaxSessionsPerCycle < 1 {
		return fmt.Errorf("svapna.max_sessions_per_cycle must be >= 1")
	}
	if c.HybridSearch.TopK < 1 {
		return fmt.Errorf("hybrid_search.top_k must be >= 1")
	}
	if c.UnifiedRecall.Limit < 1 {
		return fmt.Errorf("unified_recall.limit must be >= 1")
	}
	if c.Temporal.Limit < 1 {
		return fmt.Errorf("temporal.limit must be >= 1")
	}
	if c.Identity.MaxCharsPerFile < 0 {
		return fmt.Errorf("identity.max_chars_per_file cannot be negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json'")
	}

	return nil
}

// parseBool parses a boolean from string, handling the same set of
// spellings as the rest of this codebase's env-driven config.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on" || s == "enabled"
}

// ToJSON serializes the configuration to indented JSON.
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// SaveToFile writes the configuration to a JSON file.
func (c *Config) SaveToFile(path string) error {
	data, err := c.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
