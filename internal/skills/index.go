package skills

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	chromem "github.com/philippgille/chromem-go"
)

// Index is the vector half of the skill cache: skill descriptions and their
// embeddings live here, everything durable lives in the relational store.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
}

const collectionName = "skills"

// NewIndex opens (or creates) a persistent vector index under dataDir.
// An empty dataDir yields an in-memory index.
func NewIndex(dataDir string, embedder Embedder) (*Index, error) {
	embeddingFunc := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.Embed(ctx, text)
	}

	var db *chromem.DB
	var err error
	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create skills dir: %w", err)
		}
		db, err = chromem.NewPersistentDB(filepath.Join(dataDir, "index.gob"), false)
		if err != nil {
			return nil, fmt.Errorf("open vector index: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	collection, err := db.GetOrCreateCollection(collectionName, nil, embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("open collection: %w", err)
	}

	return &Index{db: db, collection: collection}, nil
}

// Add indexes a skill description under the skill's ID. The user scope
// rides along as metadata so queries can filter on it.
func (i *Index) Add(ctx context.Context, id, description string, embedding []float32, userID string) error {
	err := i.collection.AddDocument(ctx, chromem.Document{
		ID:        id,
		Content:   description,
		Embedding: embedding,
		Metadata:  map[string]string{"user_id": userID},
	})
	if err != nil {
		return fmt.Errorf("index skill %s: %w", id, err)
	}
	return nil
}

// Match pairs a skill ID with its cosine similarity to the query.
type Match struct {
	SkillID    string
	Similarity float32
}

// Query returns the topK nearest skills scoped to userID. The metadata
// filter is an exact match, so shared skills (empty user scope) need a
// separate call.
func (i *Index) Query(ctx context.Context, text string, topK int, userID string) ([]Match, error) {
	// chromem rejects nResults beyond the collection size
	n := i.collection.Count()
	if n == 0 {
		return nil, nil
	}
	if topK < n {
		n = topK
	}

	where := map[string]string{"user_id": userID}
	results, err := i.collection.Query(ctx, text, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("query skills: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{SkillID: r.ID, Similarity: r.Similarity})
	}
	return matches, nil
}

func (i *Index) Delete(ctx context.Context, id string) error {
	if err := i.collection.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("delete skill %s from index: %w", id, err)
	}
	return nil
}

func (i *Index) Count() int {
	return i.collection.Count()
}
