// Package pdf implements the PDF type classifier and the
// extraction/TOC/table/formula waterfalls, grounded on
// original_source/backend/services/document_classifier.py and
// original_source/backend/services/toc_extractor.py.
package pdf

import (
	"fmt"
	"strings"
)

// Constants carried verbatim in meaning from document_classifier.py.
const (
	ScannedThreshold      = 50 // avg_chars_per_page below this suggests a scanned document
	TableHeavyThreshold   = 3
	FormulaHeavyThreshold = 2
)

// DocumentType is the classifier's output category.
type DocumentType string

const (
	TypeScanned      DocumentType = "scanned"
	TypeAcademic     DocumentType = "academic_paper"
	TypeBusiness     DocumentType = "business_document"
	TypePresentation DocumentType = "presentation"
	TypeBook         DocumentType = "book"
	TypeLegal        DocumentType = "legal_document"
	TypeMixedContent DocumentType = "mixed_content"
	TypeForm         DocumentType = "form"
	TypeUnknown      DocumentType = "unknown"
)

// DocumentFeatures carries the full feature set sampled from a
// document's first ~10 pages, per spec.md plus the supplemented
// fields present in document_classifier.py's DocumentFeatures
// dataclass (see DESIGN.md/SPEC_FULL.md §3).
type DocumentFeatures struct {
	TotalPages                int
	SampledPages              int
	AvgCharsPerPage           float64
	TotalChars                int
	ImageCount                int
	ImageDensity              float64
	TablePatternCount         int
	FormulaPatternCount       int
	HasTOC                    bool
	HasAbstract               bool
	HasReferences             bool
	CitationCount             int
	HasBibliography           bool
	ChapterCount              int
	NumberedSectionCount      int
	HasISBN                   bool
	HasTableOfContentsHeading bool
	AvgFontSizeVariance       float64
	HeadingCount              int
	CodeBlockCount            int
	BulletListDensity         float64
	HasCoverPageMarkers       bool
	SlideMarkerCount          int
	HasSpeakerNotes           bool
}

// IsScanned reports whether the document is likely scanned: low
// character density per page combined with a nontrivial image
// presence.
func (f DocumentFeatures) IsScanned() bool {
	return f.AvgCharsPerPage < ScannedThreshold && f.ImageDensity > 1
}

// Classification is the classifier's result: the chosen type, a
// confidence score, a human-readable reasoning string, and the ordered
// extractor recommendation for this type.
type Classification struct {
	Type             DocumentType
	Confidence       float64
	Reasoning        string
	RecommendedTools []ExtractorName
}

// ExtractorName names a concrete extraction tool, Go-idiomatic names for
// _recommend_tools's mapping (DOCLING->AdvancedLayout,
// PYMUPDF/PDFCPU->FastText, PYTESSERACT->OCR, PDFPLUMBER->PreciseTables).
type ExtractorName string

const (
	ExtractorFastText      ExtractorName = "fast_text"
	ExtractorOCR           ExtractorName = "ocr"
	ExtractorAdvancedLayout ExtractorName = "advanced_layout"
	ExtractorPreciseTables ExtractorName = "precise_tables"
)

var toolsByType = map[DocumentType][]ExtractorName{
	TypeScanned:      {ExtractorOCR, ExtractorAdvancedLayout},
	TypeAcademic:     {ExtractorAdvancedLayout, ExtractorFastText},
	TypeBusiness:     {ExtractorFastText, ExtractorPreciseTables},
	TypePresentation: {ExtractorFastText, ExtractorAdvancedLayout},
	TypeBook:         {ExtractorFastText, ExtractorAdvancedLayout},
	TypeLegal:        {ExtractorFastText, ExtractorPreciseTables},
	TypeForm:         {ExtractorPreciseTables, ExtractorFastText},
	TypeMixedContent: {ExtractorAdvancedLayout, ExtractorFastText, ExtractorOCR},
	TypeUnknown:      {ExtractorFastText},
}

// Classify samples f and returns the argmax type by additive, bounded
// scoring, falling back to mixed_content/unknown below confidence 0.3,
// exactly per document_classifier.py.
func Classify(f DocumentFeatures) Classification {
	scores := map[DocumentType]float64{}
	var indicators = map[DocumentType][]string{}

	score := func(t DocumentType, delta float64, why string) {
		scores[t] += delta
		if delta > 0 {
			indicators[t] = append(indicators[t], why)
		}
	}

	if f.IsScanned() {
		score(TypeScanned, 0.6, "low char density + high image density")
	}
	if f.HasAbstract {
		score(TypeAcademic, 0.25, "has_abstract")
	}
	if f.HasReferences {
		score(TypeAcademic, 0.25, "has_references")
	}
	if f.CitationCount > 5 {
		score(TypeAcademic, 0.2, "high citation_count")
	}
	if f.HasBibliography {
		score(TypeAcademic, 0.15, "has_bibliography")
	}

	if f.TablePatternCount >= TableHeavyThreshold {
		score(TypeBusiness, 0.3, "table-heavy")
	}
	if f.HeadingCount > 5 && f.ChapterCount == 0 {
		score(TypeBusiness, 0.2, "structured headings without chapters")
	}

	if f.SlideMarkerCount > 0 {
		score(TypePresentation, 0.4, "slide markers present")
	}
	if f.HasSpeakerNotes {
		score(TypePresentation, 0.3, "has speaker notes")
	}

	if f.ChapterCount >= 3 {
		score(TypeBook, 0.35, "multiple chapters")
	}
	if f.HasTOC || f.HasTableOfContentsHeading {
		score(TypeBook, 0.2, "has table of contents")
	}
	if f.HasISBN {
		score(TypeBook, 0.2, "has ISBN")
	}

	if f.BulletListDensity > 0.3 && f.AvgCharsPerPage < 800 {
		score(TypeForm, 0.3, "high bullet density, short pages")
	}

	if f.FormulaPatternCount >= FormulaHeavyThreshold {
		score(TypeAcademic, 0.15, "formula-heavy")
	}

	best := TypeUnknown
	bestScore := 0.0
	for t, s := range scores {
		if s > 1.0 {
			s = 1.0
		}
		scores[t] = s
		if s > bestScore {
			bestScore = s
			best = t
		}
	}

	if bestScore < 0.3 {
		if f.TablePatternCount > 0 || f.FormulaPatternCount > 0 {
			best = TypeMixedContent
		} else {
			best = TypeUnknown
		}
	}

	reasoning := generateReasoning(best, indicators[best], bestScore)
	return Classification{
		Type: best, Confidence: bestScore, Reasoning: reasoning,
		RecommendedTools: toolsByType[best],
	}
}

// generateReasoning builds an indicator-based human-readable string,
// e.g. "has_abstract+has_references+high citation_count => academic_paper, score=0.85".
func generateReasoning(t DocumentType, indicators []string, score float64) string {
	if len(indicators) == 0 {
		return "no strong indicators"
	}
	return fmt.Sprintf("%s => %s, score=%.2f", strings.Join(indicators, "+"), t, score)
}
