package fusion

import (
	"testing"

	"github.com/stretchr/testify/require"

	"knowledgetree/internal/retrieve/bm25"
	"knowledgetree/internal/retrieve/dense"
)

// S1-style fusion check: a chunk present in both the dense top-1 and the
// sparse top-1 must outrank a chunk present in only one list.
func TestFuseRRF_BothListsOutranksSingleList(t *testing.T) {
	denseHits := []dense.Candidate{
		{ChunkID: 1, DocumentID: 10, Text: "a"},
		{ChunkID: 2, DocumentID: 11, Text: "b"},
	}
	sparseHits := []bm25.Result{
		{ID: 1, Score: 5},
		{ID: 3, Score: 4},
	}
	items := FuseRRF(denseHits, sparseHits, nil, Options{})
	require.NotEmpty(t, items)
	require.Equal(t, int64(1), items[0].ChunkID)
	require.Equal(t, "hybrid", items[0].Source)
}

func TestFuseRRF_SourceTagging(t *testing.T) {
	denseHits := []dense.Candidate{{ChunkID: 1, DocumentID: 10}}
	sparseHits := []bm25.Result{{ID: 2, Score: 1}}
	items := FuseRRF(denseHits, sparseHits, nil, Options{})

	bySource := map[int64]string{}
	for _, it := range items {
		bySource[it.ChunkID] = it.Source
	}
	require.Equal(t, "dense", bySource[1])
	require.Equal(t, "sparse", bySource[2])
}

func TestFuseRRF_CapsAtK(t *testing.T) {
	var denseHits []dense.Candidate
	for i := int64(1); i <= 20; i++ {
		denseHits = append(denseHits, dense.Candidate{ChunkID: i, DocumentID: i})
	}
	items := FuseRRF(denseHits, nil, nil, Options{K: 5})
	require.Len(t, items, 5)
}

func TestDiversify_SpreadsAcrossDocuments(t *testing.T) {
	items := []Item{
		{ChunkID: 1, DocumentID: 100, Fused: 0.9},
		{ChunkID: 2, DocumentID: 100, Fused: 0.85},
		{ChunkID: 3, DocumentID: 200, Fused: 0.5},
	}
	out := Diversify(items, 2)
	require.Len(t, out, 2)
	// the second doc-100 item should be penalized enough that doc 200's
	// item surfaces ahead of it.
	require.Equal(t, int64(100), out[0].DocumentID)
	require.Equal(t, int64(200), out[1].DocumentID)
}
