package storage

import (
	"context"
	"fmt"

	qdrant "github.com/qdrant/go-client/qdrant"
)

// Qdrant is the alternate DenseStore backend; no config key selects it
// and cmd/knowledgetree does not construct it. Collection layout mirrors the Postgres
// schema's chunk payload fields (document_id, text, before_text,
// after_text, metadata) so SimilaritySearch returns the same
// DenseCandidate shape regardless of backend.
type Qdrant struct {
	client     qdrant.PointsClient
	collection string
}

// NewQdrant wraps an already-dialed gRPC points client for collection.
func NewQdrant(client qdrant.PointsClient, collection string) *Qdrant {
	return &Qdrant{client: client, collection: collection}
}

func (q *Qdrant) SimilaritySearch(ctx context.Context, projectID int64, query []float32, k int) ([]DenseCandidate, error) {
	if k <= 0 {
		k = 10
	}
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatchInt("project_id", projectID),
		},
	}
	resp, err := q.client.Search(ctx, &qdrant.SearchPoints{
		CollectionName: q.collection,
		Vector:         query,
		Filter:         filter,
		Limit:          uint64(k),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: qdrant search: %w", err)
	}

	out := make([]DenseCandidate, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		payload := pt.GetPayload()
		d := DenseCandidate{
			Similarity: float64(pt.GetScore()),
			Metadata:   map[string]any{},
		}
		if v, ok := payload["chunk_id"]; ok {
			d.ChunkID = v.GetIntegerValue()
		}
		if v, ok := payload["document_id"]; ok {
			d.DocumentID = v.GetIntegerValue()
		}
		if v, ok := payload["text"]; ok {
			d.Text = v.GetStringValue()
		}
		if v, ok := payload["before_text"]; ok {
			d.Before = v.GetStringValue()
		}
		if v, ok := payload["after_text"]; ok {
			d.After = v.GetStringValue()
		}
		out = append(out, d)
	}
	return out, nil
}
