package knowledge

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
	"smriti/internal/embeddings"
)

// turnCollection is the single chromem-go collection holding every turn's
// embedding; project scoping is applied as a metadata filter at query time
// rather than via one collection per project, so new projects need no setup.
const turnCollection = "turns"

// VectorStore indexes turn content for nearest-neighbor retrieval. A nil
// embedder disables it: every method becomes a no-op.
type VectorStore struct {
	db       *chromem.DB
	embedder embeddings.Embedder
}

// VectorStoreConfig configures a VectorStore.
type VectorStoreConfig struct {
	PersistPath string // empty = in-memory only
	Embedder    embeddings.Embedder
}

// NewVectorStore creates a chromem-go backed vector store. Embedder may be
// nil, in which case the store answers every search with an empty result.
func NewVectorStore(cfg VectorStoreConfig) (*VectorStore, error) {
	var db *chromem.DB
	var err error
	if cfg.PersistPath != "" {
		db, err = chromem.NewPersistentDB(cfg.PersistPath, false)
		if err != nil {
			return nil, fmt.Errorf("knowledge: failed to open persistent vector store: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}
	return &VectorStore{db: db, embedder: cfg.Embedder}, nil
}

func (vs *VectorStore) enabled() bool { return vs != nil && vs.embedder != nil }

// getOrCreateCollection returns the named collection, creating it on first
// use. chromem-go's *DB has no such combined call; this mirrors the
// teacher's own get-then-create wrapper.
func (vs *VectorStore) getOrCreateCollection(name string) (*chromem.Collection, error) {
	if collection := vs.db.GetCollection(name, nil); collection != nil {
		return collection, nil
	}
	return vs.db.CreateCollection(name, nil, nil)
}

// IndexTurn embeds and stores one turn's content, tagged with its session
// and project for later filtering.
func (vs *VectorStore) IndexTurn(ctx context.Context, sessionID string, turnNumber int, content, project string) error {
	if !vs.enabled() || content == "" {
		return nil
	}
	collection, err := vs.getOrCreateCollection(turnCollection)
	if err != nil {
		return fmt.Errorf("knowledge: failed to get turn collection: %w", err)
	}

	embedding, err := vs.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("knowledge: failed to embed turn: %w", err)
	}

	id := fmt.Sprintf("%s#%d", sessionID, turnNumber)
	err = collection.AddDocument(ctx, chromem.Document{
		ID:      id,
		Content: content,
		Metadata: map[string]string{
			"session_id": sessionID,
			"project":    project,
		},
		Embedding: embedding,
	})
	if err != nil {
		return fmt.Errorf("knowledge: failed to index turn: %w", err)
	}
	return nil
}

// TurnMatch is one nearest-neighbor hit against the turn index.
type TurnMatch struct {
	SessionID  string
	TurnNumber int
	Content    string
	Similarity float32
}

// SearchSimilar embeds query and returns its nearest turns, optionally
// scoped to project. Returns an empty, non-error slice when disabled, per
// spec's "rankers never throw" contract.
func (vs *VectorStore) SearchSimilar(ctx context.Context, query, project string, limit int) ([]TurnMatch, error) {
	if !vs.enabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	collection := vs.db.GetCollection(turnCollection, nil)
	if collection == nil {
		return nil, nil
	}

	queryEmbedding, err := vs.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("knowledge: failed to embed query: %w", err)
	}

	var filter map[string]string
	if project != "" {
		filter = map[string]string{"project": project}
	}

	// Over-fetch to compensate for chromem-go applying the metadata filter
	// after similarity ranking, not before. chromem-go rejects nResults
	// greater than the collection size, so cap at Count().
	fetch := limit
	if filter != nil {
		fetch = limit * 3
	}
	if n := collection.Count(); fetch > n {
		fetch = n
	}
	if fetch == 0 {
		return nil, nil
	}

	results, err := collection.QueryEmbedding(ctx, queryEmbedding, fetch, filter, nil)
	if err != nil {
		return nil, fmt.Errorf("knowledge: similarity search failed: %w", err)
	}

	matches := make([]TurnMatch, 0, len(results))
	for _, r := range results {
		sessionID, turnNumber := splitTurnID(r.ID)
		matches = append(matches, TurnMatch{
			SessionID:  sessionID,
			TurnNumber: turnNumber,
			Content:    r.Content,
			Similarity: r.Similarity,
		})
		if len(matches) >= limit {
			break
		}
	}
	return matches, nil
}

func splitTurnID(id string) (string, int) {
	for i := len(id) - 1; i >= 0; i-- {
		if id[i] == '#' {
			var n int
			fmt.Sscanf(id[i+1:], "%d", &n)
			return id[:i], n
		}
	}
	return id, 0
}

// Close is a no-op: chromem-go persists synchronously on write when
// configured with PersistPath.
func (vs *VectorStore) Close() error { return nil }
