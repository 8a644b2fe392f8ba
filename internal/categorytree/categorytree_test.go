package categorytree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"knowledgetree/internal/pdf"
)

func TestGenerateTree_ParentChildTempIDLinkage(t *testing.T) {
	roots := pdf.BuildHierarchy([]*pdf.TocEntry{
		{Title: "1. Introduction", Level: 0, Page: 1},
		{Title: "1.1 Motivation", Level: 1, Page: 2},
		{Title: "1.2 Scope", Level: 1, Page: 4},
		{Title: "2. Methods", Level: 0, Page: 10},
	}, pdf.MaxTOCDepth)

	g := New()
	pending, stats, err := g.GenerateTree(roots, 7, nil)
	require.NoError(t, err)
	require.Equal(t, 4, stats.TotalEntries)
	require.Equal(t, 4, stats.TotalCreated)
	require.Zero(t, stats.SkippedDepth)

	byTitle := map[string]PendingCategory{}
	for _, p := range pending {
		byTitle[p.Category.Name] = p
	}

	intro, ok := byTitle["Introduction"]
	require.True(t, ok)
	require.Nil(t, intro.ParentTempID)
	require.Equal(t, 0, intro.Category.Depth)
	require.Equal(t, "Page 1", intro.Category.Description)

	motivation, ok := byTitle["Motivation"]
	require.True(t, ok)
	require.NotNil(t, motivation.ParentTempID)
	require.Equal(t, intro.TempID, *motivation.ParentTempID)
	require.Equal(t, 1, motivation.Category.Depth)

	methods, ok := byTitle["Methods"]
	require.True(t, ok)
	require.Nil(t, methods.ParentTempID)
}

func TestGenerateTree_SkipsBeyondMaxDepth(t *testing.T) {
	deep := &pdf.TocEntry{Title: "Root", Level: 0}
	cur := deep
	for i := 1; i <= 12; i++ {
		child := &pdf.TocEntry{Title: "Level", Level: i}
		cur.Children = append(cur.Children, child)
		cur = child
	}

	g := New()
	pending, stats, err := g.GenerateTree([]*pdf.TocEntry{deep}, 1, nil)
	require.NoError(t, err)
	require.Greater(t, stats.SkippedDepth, 0)
	for _, p := range pending {
		require.Less(t, p.Category.Depth, 10)
	}
}

func TestGenerateSlug_DisambiguatesDuplicates(t *testing.T) {
	g := New()
	a := g.GenerateSlug("Chapter 1: Introduction")
	b := g.GenerateSlug("Chapter 1: Introduction")
	require.Equal(t, "chapter-1-introduction", a)
	require.Equal(t, "chapter-1-introduction-2", b)
}

func TestCleanTitle_StripsLeadingOrdinal(t *testing.T) {
	require.Equal(t, "Introduction", cleanTitle("1.2.3 Introduction"))
	require.Equal(t, "Already Clean", cleanTitle("Already Clean"))
}
