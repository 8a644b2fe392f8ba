package pdf

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// ExtractedText is one successful extraction attempt's output, paged so
// the chunker's page-aware variant (chunker.ChunkByPages) can consume it
// directly.
type ExtractedText struct {
	Pages  []string // one entry per page, joined by chunker.PageSeparator downstream
	Method string
}

// TextExtractor runs the text-extraction waterfall: fast text
// (ledongthuc/pdf) -> OCR (tesseract, external process) ->
// advanced layout (pdftotext -layout, external process), returning the
// first success per spec.md's waterfall contract.
type TextExtractor struct {
	TesseractBinary string
	PdftotextBinary string
}

// NewTextExtractor builds a TextExtractor with default binary names,
// resolved from PATH.
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{TesseractBinary: "tesseract", PdftotextBinary: "pdftotext"}
}

// Extract runs the waterfall against the PDF at path.
func (e *TextExtractor) Extract(ctx context.Context, path string) (ExtractedText, string, error) {
	attempts := []Attempt[ExtractedText]{
		{Name: string(ExtractorFastText), Run: func() (ExtractedText, error) { return e.fastText(path) }},
		{Name: string(ExtractorOCR), Run: func() (ExtractedText, error) { return e.ocr(ctx, path) }},
		{Name: string(ExtractorAdvancedLayout), Run: func() (ExtractedText, error) { return e.advancedLayout(ctx, path) }},
	}
	return Waterfall(attempts)
}

func (e *TextExtractor) fastText(path string) (ExtractedText, error) {
	f, r, err := pdflib.Open(path)
	if err != nil {
		return ExtractedText{}, fmt.Errorf("ledongthuc/pdf: open: %w", err)
	}
	defer f.Close()

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	if totalChars(pages) < ScannedThreshold*len(pages) {
		return ExtractedText{}, fmt.Errorf("ledongthuc/pdf: suspiciously little text, likely scanned")
	}
	return ExtractedText{Pages: pages, Method: string(ExtractorFastText)}, nil
}

func totalChars(pages []string) int {
	n := 0
	for _, p := range pages {
		n += len(p)
	}
	return n
}

// ocr shells out to tesseract, following the teacher's internal/git
// pattern of wrapping an external binary with structured error
// translation. No Go-native OCR library exists in the corpus.
func (e *TextExtractor) ocr(ctx context.Context, path string) (ExtractedText, error) {
	cmd := exec.CommandContext(ctx, e.TesseractBinary, path, "stdout", "--psm", "3")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return ExtractedText{}, fmt.Errorf("tesseract: %w: %s", err, stderr.String())
	}
	pages := strings.Split(stdout.String(), "\f")
	return ExtractedText{Pages: pages, Method: string(ExtractorOCR)}, nil
}

// advancedLayout shells out to pdftotext -layout for documents whose
// columnar/table layout the fast-text extractor mangles. No Go-native
// advanced-layout library exists in the corpus.
func (e *TextExtractor) advancedLayout(ctx context.Context, path string) (ExtractedText, error) {
	cmd := exec.CommandContext(ctx, e.PdftotextBinary, "-layout", path, "-")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return ExtractedText{}, fmt.Errorf("pdftotext: %w: %s", err, stderr.String())
	}
	pages := strings.Split(stdout.String(), "\f")
	return ExtractedText{Pages: pages, Method: string(ExtractorAdvancedLayout)}, nil
}

// PageCount returns the document's page count via pdfcpu, used ahead of
// the classifier's page-sampling step.
func PageCount(path string) (int, error) {
	info, err := api.PDFInfoFile(path, nil, nil)
	if err != nil {
		return 0, fmt.Errorf("pdfcpu: page count: %w", err)
	}
	return info.PageCount, nil
}

// headingRe is the structural-analyzer's heading-pattern heuristic,
// grounded on toc_extractor.py's regex-based heading detection used
// when no embedded outline exists. Implemented as a real heuristic
// rather than left as a stub, since no Go Docling-equivalent exists in
// the corpus for a full structural parse.
var headingRe = regexp.MustCompile(`(?m)^(?:Chapter\s+\d+|[A-Z][A-Za-z ]{2,60}|\d+(?:\.\d+)*\s+[A-Z].{2,60})$`)

// StructuralTOC derives a flat TOC by scanning page text for
// heading-shaped lines. It works from page text alone: this package has
// no reader for a PDF's embedded outline (bookmarks).
func StructuralTOC(pages []string) []*TocEntry {
	var flat []*TocEntry
	for pageNum, text := range pages {
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || !headingRe.MatchString(line) {
				continue
			}
			level := 0
			if strings.Contains(line, ".") && !strings.HasPrefix(line, "Chapter") {
				level = strings.Count(strings.SplitN(line, " ", 2)[0], ".")
			}
			flat = append(flat, &TocEntry{Title: line, Level: level, Page: pageNum + 1})
		}
	}
	return flat
}
