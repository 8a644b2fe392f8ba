package expand

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeterministicExpander_SameInputSameOutput(t *testing.T) {
	e := NewDeterministic(nil)
	a, err := e.Expand(context.Background(), "config error")
	require.NoError(t, err)
	b, err := e.Expand(context.Background(), "config error")
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Contains(t, a, "exception")
	require.Contains(t, a, "configuration")
}

func TestDeterministicExpander_UnknownWordsYieldNoTerms(t *testing.T) {
	e := NewDeterministic(nil)
	terms, err := e.Expand(context.Background(), "zzqqxx")
	require.NoError(t, err)
	require.Empty(t, terms)
}

func TestSparseQuery_AppendsExpansionTerms(t *testing.T) {
	require.Equal(t, "foo bar baz", SparseQuery("foo", []string{"bar", "baz"}))
	require.Equal(t, "foo", SparseQuery("foo", nil))
}
