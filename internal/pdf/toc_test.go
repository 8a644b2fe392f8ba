package pdf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// S7 TOC hierarchy: flat entries [{lvl 0, Ch1}, {lvl 1, 1.1}, {lvl 1, 1.2},
// {lvl 0, Ch2}] build two root entries, the first with two children, the
// second with none.
func TestBuildHierarchy_S7(t *testing.T) {
	ch1 := &TocEntry{Title: "Ch1", Level: 0}
	s11 := &TocEntry{Title: "1.1", Level: 1}
	s12 := &TocEntry{Title: "1.2", Level: 1}
	ch2 := &TocEntry{Title: "Ch2", Level: 0}

	roots := BuildHierarchy([]*TocEntry{ch1, s11, s12, ch2}, MaxTOCDepth)

	require.Len(t, roots, 2)
	require.Equal(t, "Ch1", roots[0].Title)
	require.Len(t, roots[0].Children, 2)
	require.Equal(t, "1.1", roots[0].Children[0].Title)
	require.Equal(t, "1.2", roots[0].Children[1].Title)
	require.Equal(t, "Ch2", roots[1].Title)
	require.Empty(t, roots[1].Children)
}

func TestBuildHierarchy_DeepNestingClearsStaleAncestors(t *testing.T) {
	a := &TocEntry{Title: "A", Level: 0}
	a1 := &TocEntry{Title: "A.1", Level: 1}
	a1a := &TocEntry{Title: "A.1.a", Level: 2}
	b := &TocEntry{Title: "B", Level: 0}
	b1 := &TocEntry{Title: "B.1", Level: 1}

	roots := BuildHierarchy([]*TocEntry{a, a1, a1a, b, b1}, MaxTOCDepth)

	require.Len(t, roots, 2)
	require.Len(t, roots[0].Children, 1)
	require.Len(t, roots[0].Children[0].Children, 1)
	require.Equal(t, "A.1.a", roots[0].Children[0].Children[0].Title)
	require.Len(t, roots[1].Children, 1)
	require.Equal(t, "B.1", roots[1].Children[0].Title)
}
