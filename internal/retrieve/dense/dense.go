// Package dense wraps a storage.DenseStore with per-project scoping (no
// category filter) for the retrieval pipeline, grounded on
// internal/persistence/databases/postgres_vector.go's SimilaritySearch
// shape.
package dense

import (
	"context"
	"fmt"

	"knowledgetree/internal/storage"
)

// Candidate is a dense-retrieval hit, source-tagged per spec.md §6.
type Candidate struct {
	ChunkID    int64
	DocumentID int64
	Text       string
	Before     string
	After      string
	Metadata   map[string]any
	Score      float64
	Source     string // always "dense"
}

// Retriever runs nearest-neighbor search against a storage.DenseStore.
type Retriever struct {
	store storage.DenseStore
}

// New wraps store.
func New(store storage.DenseStore) *Retriever {
	return &Retriever{store: store}
}

// Search embeds query externally (the caller supplies the vector, since
// embedding is the coordinator's concern, not the retriever's) and
// returns the top-k dense candidates for projectID.
func (r *Retriever) Search(ctx context.Context, projectID int64, queryVector []float32, k int) ([]Candidate, error) {
	hits, err := r.store.SimilaritySearch(ctx, projectID, queryVector, k)
	if err != nil {
		return nil, fmt.Errorf("dense: similarity search: %w", err)
	}
	out := make([]Candidate, len(hits))
	for i, h := range hits {
		out[i] = Candidate{
			ChunkID:    h.ChunkID,
			DocumentID: h.DocumentID,
			Text:       h.Text,
			Before:     h.Before,
			After:      h.After,
			Metadata:   h.Metadata,
			Score:      h.Similarity,
			Source:     "dense",
		}
	}
	return out, nil
}
