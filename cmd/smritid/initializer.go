package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"time"

	"smriti/internal/config"
	"smriti/internal/embeddings"
	"smriti/internal/filestore"
	"smriti/internal/hybridsearch"
	"smriti/internal/identity"
	"smriti/internal/kalachakra"
	"smriti/internal/knowledge"
	"smriti/internal/rankers"
	"smriti/internal/reinforcement"
	"smriti/internal/storage"
	"smriti/internal/svapna"
	"smriti/internal/temporal"
	"smriti/internal/tokenizer"
	"smriti/internal/unifiedrecall"
	"smriti/internal/vasana"
)

// Components holds every initialized engine component, extracted from
// Initialize so main and tests can construct and tear down the same set.
type Components struct {
	Config *config.Config
	Store  storage.Store

	Tokenizer tokenizer.Tokenizer
	Files     *filestore.FileStore
	Identity  *identity.Loader

	Embedder embeddings.Embedder

	WeightLearner *reinforcement.WeightLearner
	HybridSearch  *hybridsearch.Engine
	UnifiedRecall *unifiedrecall.Engine
	Temporal      *temporal.Engine
	Vasana        *vasana.Engine
	Svapna        *svapna.Engine

	graphClient *knowledge.Neo4jClient
}

// Initialize builds every component from cfg. Optional dependencies
// (embedder, Neo4j-backed graph ranker) degrade to nil rather than failing
// startup: their rankers already treat a nil backing store as "contributes
// nothing" (spec.md §7's "missing dependency" error kind).
func Initialize(cfg *config.Config) (*Components, error) {
	c := &Components{Config: cfg}

	store, err := storage.New(cfg.Storage)
	if err != nil {
		return nil, err
	}
	c.Store = store
	log.Printf("smritid: storage backend %s ready", cfg.Storage.Type)

	c.Tokenizer = tokenizer.NewFallback()
	c.Files = filestore.New(cfg.Home, c.Tokenizer)
	c.Identity = identity.New(cfg.Identity)

	if cfg.Embeddings.Enabled {
		// No network-calling provider is wired into internal/embeddings yet
		// (Embedder is documented there as a pluggable external
		// collaborator); the deterministic mock is the only concrete
		// implementation available, so "enabled" backs the vector ranker
		// with it rather than leaving vector search permanently empty.
		c.Embedder = embeddings.NewMockEmbedder(384)
		log.Printf("smritid: embeddings enabled (provider=%s, using mock embedder: no live provider client implemented)", cfg.Embeddings.Provider)
	} else {
		log.Println("smritid: embeddings disabled, vector ranker will yield no results")
	}

	bm25 := rankers.NewBM25Ranker(store)

	vectorPersist := ""
	if cfg.Home != "" {
		vectorPersist = filepath.Join(cfg.Home, "vectors")
	}
	vectorStore, err := knowledge.NewVectorStore(knowledge.VectorStoreConfig{
		PersistPath: vectorPersist,
		Embedder:    c.Embedder,
	})
	if err != nil {
		return nil, err
	}
	vector := rankers.NewVectorRanker(vectorStore)

	var graphStore *knowledge.GraphStore
	if os.Getenv("SMRITI_NEO4J_ENABLED") == "true" {
		client, err := knowledge.NewNeo4jClient(cfg.Neo4j)
		if err != nil {
			log.Printf("smritid: neo4j unavailable, graph ranker disabled: %v", err)
		} else {
			c.graphClient = client
			graphStore = knowledge.NewGraphStore(client, cfg.Neo4j.Database)
			log.Println("smritid: graph ranker backed by neo4j")
		}
	} else {
		log.Println("smritid: SMRITI_NEO4J_ENABLED not set, graph ranker disabled")
	}
	graph := rankers.NewGraphRanker(graphStore)
	pramana := rankers.NewPramanaLookup(graph)

	c.WeightLearner = reinforcement.NewWeightLearner(time.Now().UnixNano())
	restoreWeightLearner(store, c.WeightLearner)

	kala := kalachakra.NewDefault()
	c.HybridSearch = hybridsearch.New(cfg.HybridSearch, bm25, vector, graph, pramana, hybridsearch.WrapLearner(c.WeightLearner), kala)
	c.UnifiedRecall = unifiedrecall.New(c.HybridSearch, store, store, c.Files)
	c.Temporal = temporal.New(store, c.Embedder)
	c.Vasana = vasana.New(cfg.Vasana, store, store, store)
	if err := c.Vasana.Restore(); err != nil {
		log.Printf("smritid: vasana BOCPD state discarded, rebuilding: %v", err)
	}
	c.Svapna = svapna.New(store, store, store, c.Vasana, c.Tokenizer).WithGraphIndexing(graphStore).WithSchedule(store)

	log.Println("smritid: all components initialized")
	return c, nil
}

// restoreWeightLearner loads a previously persisted Thompson-sampling state.
// A missing or unparsable blob is not an error: the learner keeps its fresh
// uniform priors (spec.md §7's "parse failure on persisted ... blob").
func restoreWeightLearner(store storage.Store, wl *reinforcement.WeightLearner) {
	blob, err := store.GetWeightLearnerState()
	if err != nil || len(blob) == 0 {
		return
	}
	var state reinforcement.State
	if err := json.Unmarshal(blob, &state); err != nil {
		log.Printf("smritid: weight learner state unparsable, using fresh priors: %v", err)
		return
	}
	if err := wl.Restore(state); err != nil {
		log.Printf("smritid: weight learner restore rejected, using fresh priors: %v", err)
	}
}

// persistWeightLearner serializes the current Thompson-sampling state back
// to the store. Failures are logged, not propagated: the next startup
// simply rebuilds from uniform priors.
func persistWeightLearner(store storage.Store, wl *reinforcement.WeightLearner) {
	blob, err := json.Marshal(wl.Serialize())
	if err != nil {
		log.Printf("smritid: failed to serialize weight learner state: %v", err)
		return
	}
	if err := store.PutWeightLearnerState(blob); err != nil {
		log.Printf("smritid: failed to persist weight learner state: %v", err)
	}
}

// Close persists the weight learner state and releases storage resources.
func (c *Components) Close() error {
	if c.Store != nil {
		persistWeightLearner(c.Store, c.WeightLearner)
	}
	if c.graphClient != nil {
		_ = c.graphClient.Close(context.Background())
	}
	if c.Store != nil {
		return c.Store.Close()
	}
	return nil
}
