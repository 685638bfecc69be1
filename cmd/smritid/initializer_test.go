package main

import (
	"testing"

	"smriti/internal/config"
	"smriti/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Home = t.TempDir()
	cfg.Storage = storage.DefaultConfig()
	return cfg
}

func TestInitializeDefaultConfig(t *testing.T) {
	c, err := Initialize(testConfig(t))
	if err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	defer c.Close()

	if c.Store == nil {
		t.Error("Store not initialized")
	}
	if c.Files == nil {
		t.Error("Files not initialized")
	}
	if c.Identity == nil {
		t.Error("Identity not initialized")
	}
	if c.HybridSearch == nil {
		t.Error("HybridSearch not initialized")
	}
	if c.UnifiedRecall == nil {
		t.Error("UnifiedRecall not initialized")
	}
	if c.Temporal == nil {
		t.Error("Temporal not initialized")
	}
	if c.Vasana == nil {
		t.Error("Vasana not initialized")
	}
	if c.Svapna == nil {
		t.Error("Svapna not initialized")
	}
	if c.WeightLearner == nil {
		t.Error("WeightLearner not initialized")
	}
	// Embeddings are disabled by default; vector search degrades rather
	// than requiring a live provider.
	if c.Embedder != nil {
		t.Error("Embedder should be nil when embeddings are disabled by default")
	}
}

func TestInitializeWithEmbeddingsEnabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Embeddings.Enabled = true

	c, err := Initialize(cfg)
	if err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	defer c.Close()

	if c.Embedder == nil {
		t.Error("Expected embedder to be initialized when embeddings.enabled is true")
	}
}

func TestInitializeCloseIsIdempotentAndPersistsWeightLearnerState(t *testing.T) {
	c, err := Initialize(testConfig(t))
	if err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}

	c.WeightLearner.Update(0, true)

	if err := c.Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}

	blob, err := c.Store.GetWeightLearnerState()
	if err != nil {
		t.Fatalf("GetWeightLearnerState() failed: %v", err)
	}
	if len(blob) == 0 {
		t.Error("Close() did not persist weight learner state")
	}
}

func TestComponentsCloseWithNilStoreDoesNotPanic(t *testing.T) {
	c := &Components{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on zero-value Components should not error, got: %v", err)
	}
}

func TestInitializeDisabledNeo4jLeavesGraphRankerNilSafely(t *testing.T) {
	cfg := testConfig(t)
	c, err := Initialize(cfg)
	if err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	defer c.Close()

	// With SMRITI_NEO4J_ENABLED unset, the graph client is never dialed;
	// hybrid search must still run to completion against BM25 alone.
	if c.graphClient != nil {
		t.Error("Expected graphClient to stay nil when SMRITI_NEO4J_ENABLED is unset")
	}
}
