package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"knowledgetree/internal/embedder"
	"knowledgetree/internal/retrieve/bm25"
	"knowledgetree/internal/retrieve/dense"
	"knowledgetree/internal/storage"
)

type fakeDenseStore struct {
	hits []storage.DenseCandidate
}

func (f *fakeDenseStore) SimilaritySearch(ctx context.Context, projectID int64, query []float32, k int) ([]storage.DenseCandidate, error) {
	return f.hits, nil
}

func TestHybridSearch_FusesDenseAndSparse(t *testing.T) {
	denseStore := &fakeDenseStore{hits: []storage.DenseCandidate{
		{ChunkID: 1, DocumentID: 10, Text: "fox jumps over the lazy dog", Similarity: 0.9},
		{ChunkID: 2, DocumentID: 11, Text: "unrelated database text", Similarity: 0.5},
	}}
	sparse := bm25.New(1.2, 0.75)
	sparse.Rebuild([]bm25.Doc{
		{ID: 1, Text: "fox jumps over the lazy dog"},
		{ID: 3, Text: "a story about a fox and a dog"},
	})
	emb := embedder.NewDeterministic(16, true, 1)

	coord := New(dense.New(denseStore), sparse, emb)
	resp, err := coord.HybridSearch(context.Background(), "fox dog", Options{ProjectID: 1, K: 5})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Items)
	require.Equal(t, int64(1), resp.Items[0].ChunkID)
	require.Equal(t, "hybrid", resp.Items[0].Source)
}

func TestSearch_DenseOnly(t *testing.T) {
	denseStore := &fakeDenseStore{hits: []storage.DenseCandidate{{ChunkID: 1, DocumentID: 10, Text: "hello", Similarity: 0.8}}}
	sparse := bm25.New(1.2, 0.75)
	emb := embedder.NewDeterministic(16, true, 1)
	coord := New(dense.New(denseStore), sparse, emb)

	resp, err := coord.Search(context.Background(), "hello", Options{ProjectID: 1, K: 5})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	require.Equal(t, 0.8, resp.Items[0].FinalScore)
}

func TestSearchWithReranking_SkipsWhenNoRerankerConfigured(t *testing.T) {
	denseStore := &fakeDenseStore{hits: []storage.DenseCandidate{{ChunkID: 1, DocumentID: 10, Text: "hello world", Similarity: 0.95}}}
	sparse := bm25.New(1.2, 0.75)
	emb := embedder.NewDeterministic(16, true, 1)
	coord := New(dense.New(denseStore), sparse, emb)

	resp, err := coord.SearchWithReranking(context.Background(), "hello", Options{ProjectID: 1, K: 5, UseReranking: true})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	require.Nil(t, resp.Items[0].RerankScore)
}
