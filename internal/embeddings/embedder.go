// Package embeddings defines the pluggable embedding contract consumed by
// the vector ranker. The embedding model itself is an external collaborator
// — this package owns only the interface, a deterministic mock for tests,
// and an LRU cache in front of whatever real embedder is wired in.
package embeddings

import (
	"context"
	"os"
	"strconv"
	"time"
)

// Embedder generates fixed-dimension vector embeddings from text. Callers
// must treat a nil Embedder as "absent": the vector ranker gates on its
// presence and returns an empty result set rather than erroring.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding dimension.
	Dimension() int

	// Model returns the model identifier.
	Model() string

	// Provider returns the provider name.
	Provider() string
}

// Config holds embedding configuration for whichever Embedder is wired in.
type Config struct {
	Enabled  bool   `json:"enabled"`
	Provider string `json:"provider"`
	Model    string `json:"model"`

	CacheEmbeddings bool          `json:"cache_embeddings"`
	CacheTTL        time.Duration `json:"cache_ttl"`

	BatchSize     int           `json:"batch_size"`
	MaxConcurrent int           `json:"max_concurrent"`
	Timeout       time.Duration `json:"timeout"`
}

// DefaultConfig returns default embedding configuration. Enabled is false by
// default: without a concrete embedder wired in, the vector ranker degrades
// to an empty result set rather than failing the containing query.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         false,
		Provider:        "mock",
		Model:           "mock-model",
		CacheEmbeddings: true,
		CacheTTL:        24 * time.Hour,
		BatchSize:       100,
		MaxConcurrent:   5,
		Timeout:         30 * time.Second,
	}
}

// ConfigFromEnv overlays environment variables onto DefaultConfig.
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()

	if os.Getenv("SMRITI_EMBEDDINGS_ENABLED") == "true" {
		cfg.Enabled = true
	}
	if provider := os.Getenv("SMRITI_EMBEDDINGS_PROVIDER"); provider != "" {
		cfg.Provider = provider
	}
	if model := os.Getenv("SMRITI_EMBEDDINGS_MODEL"); model != "" {
		cfg.Model = model
	}
	if os.Getenv("SMRITI_EMBEDDINGS_CACHE_ENABLED") == "false" {
		cfg.CacheEmbeddings = false
	}
	if ttl := os.Getenv("SMRITI_EMBEDDINGS_CACHE_TTL"); ttl != "" {
		if duration, err := time.ParseDuration(ttl); err == nil {
			cfg.CacheTTL = duration
		}
	}
	if batchSize := os.Getenv("SMRITI_EMBEDDINGS_BATCH_SIZE"); batchSize != "" {
		if val, err := strconv.Atoi(batchSize); err == nil {
			cfg.BatchSize = val
		}
	}
	if timeout := os.Getenv("SMRITI_EMBEDDINGS_TIMEOUT"); timeout != "" {
		if duration, err := time.ParseDuration(timeout); err == nil {
			cfg.Timeout = duration
		}
	}

	return cfg
}
