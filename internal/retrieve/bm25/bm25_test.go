package bm25

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSearch_RanksExactTermMatchFirst(t *testing.T) {
	idx := New(1.2, 0.75)
	idx.Rebuild([]Doc{
		{ID: 1, Text: "the quick brown fox jumps over the lazy dog"},
		{ID: 2, Text: "database indexing and query optimization"},
		{ID: 3, Text: "fox and dog stories for children"},
	})

	results := idx.Search("fox dog", 3)
	require.NotEmpty(t, results)
	require.Equal(t, int64(3), results[0].ID)
}

func TestSearch_EmptyIndexReturnsNil(t *testing.T) {
	idx := New(1.2, 0.75)
	require.Nil(t, idx.Search("anything", 10))
}

func TestSearch_UnknownTermsReturnNoResults(t *testing.T) {
	idx := New(1.2, 0.75)
	idx.Rebuild([]Doc{{ID: 1, Text: "hello world"}})
	require.Empty(t, idx.Search("zzzznotpresent", 10))
}

func TestRebuild_ReplacesPriorState(t *testing.T) {
	idx := New(1.2, 0.75)
	idx.Rebuild([]Doc{{ID: 1, Text: "alpha beta"}})
	require.NotEmpty(t, idx.Search("alpha", 10))

	idx.Rebuild([]Doc{{ID: 2, Text: "gamma delta"}})
	require.Empty(t, idx.Search("alpha", 10))
	require.NotEmpty(t, idx.Search("gamma", 10))
}
