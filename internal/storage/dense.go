package storage

import "context"

// DenseStore abstracts the vector-similarity backend so the dense
// retriever can run against Postgres/pgvector or Qdrant, mirroring the
// teacher's persistence/databases factory's backend-selection idiom. No
// config key selects between them; cmd/knowledgetree wires *Postgres.
type DenseStore interface {
	SimilaritySearch(ctx context.Context, projectID int64, query []float32, k int) ([]DenseCandidate, error)
}

var (
	_ DenseStore = (*Postgres)(nil)
	_ DenseStore = (*Qdrant)(nil)
)
