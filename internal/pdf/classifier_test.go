package pdf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify_ScannedDocument(t *testing.T) {
	f := DocumentFeatures{AvgCharsPerPage: 20, ImageDensity: 2.0}
	c := Classify(f)
	require.Equal(t, TypeScanned, c.Type)
	require.Contains(t, c.RecommendedTools, ExtractorOCR)
}

func TestClassify_AcademicPaper(t *testing.T) {
	f := DocumentFeatures{HasAbstract: true, HasReferences: true, CitationCount: 10, HasBibliography: true}
	c := Classify(f)
	require.Equal(t, TypeAcademic, c.Type)
	require.Contains(t, c.Reasoning, "academic_paper")
}

func TestClassify_LowConfidenceFallsBackToMixedOrUnknown(t *testing.T) {
	withTables := Classify(DocumentFeatures{TablePatternCount: 1})
	require.Equal(t, TypeMixedContent, withTables.Type)

	bare := Classify(DocumentFeatures{})
	require.Equal(t, TypeUnknown, bare.Type)
}

func TestClassify_BookFromChaptersAndTOC(t *testing.T) {
	f := DocumentFeatures{ChapterCount: 5, HasTOC: true, HasISBN: true}
	c := Classify(f)
	require.Equal(t, TypeBook, c.Type)
}
