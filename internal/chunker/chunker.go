// Package chunker splits document text into overlapping, sentence-aware
// chunks and attaches neighbor context, per the contextual-chunking scheme
// used throughout the ingestion pipeline.
package chunker

import (
	"regexp"
	"strings"
)

// Options configures a chunking run. Zero values fall back to defaults
// matching the spec's "~1000 characters / ~200 overlap" guidance.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	// SkipContext disables the second pass that attaches Before/After
	// neighbor text to each chunk. Context is attached by default.
	SkipContext bool
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 1000
	}
	if o.ChunkOverlap <= 0 {
		o.ChunkOverlap = 200
	}
	return o
}

// Chunk is one emitted unit of text.
type Chunk struct {
	Index      int
	Text       string
	Before     string
	After      string
	StartChar  int
	EndChar    int
	PageNumber int // 0 when not page-aware
}

var (
	runsOfCRLF      = regexp.MustCompile(`\r\n?`)
	runsOfNewlines  = regexp.MustCompile(`\n{3,}`)
	runsOfSpaceTabs = regexp.MustCompile(`[ \t]+`)
	nonPrintable    = regexp.MustCompile(`[^\x09\x0A\x20-\x7E\p{L}\p{N}\p{P}\p{S}]`)
)

// cleanText normalizes whitespace and strips non-printable characters.
//
// Ordering matters: line breaks are normalized first, then other
// whitespace is collapsed, so that a prior CRLF doesn't get folded into a
// single space before the newline cap can apply. The original Python
// implementation collapsed all whitespace (including newlines) before its
// newline-specific steps, which made those later steps dead code; this
// ordering restores their intended effect.
func cleanText(s string) string {
	s = runsOfCRLF.ReplaceAllString(s, "\n")
	s = runsOfNewlines.ReplaceAllString(s, "\n\n")
	s = runsOfSpaceTabs.ReplaceAllString(s, " ")
	s = nonPrintable.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// boundarySearchWindow is how far back from a window's end we search for a
// sentence boundary before giving up and truncating at the raw window end.
const boundarySearchWindow = 100

// ChunkText splits text into sentence-aware, overlapping chunks.
//
// Algorithm: slide a window of opt.ChunkSize characters over the cleaned
// text. At each window end short of end-of-text, search backward within
// the last boundarySearchWindow characters for ". " or "\n"; if found,
// truncate there. Advance start to end-overlap and repeat until the
// remaining text is shorter than the overlap. A second pass then attaches
// each chunk's Before/After fields from its neighbors' text.
func ChunkText(text string, opt Options) []Chunk {
	opt = opt.withDefaults()
	clean := cleanText(text)
	if clean == "" {
		return nil
	}

	type span struct {
		start, end int
		text       string
	}
	var spans []span

	n := len(clean)
	start := 0
	for start < n {
		end := start + opt.ChunkSize
		if end >= n {
			end = n
		} else {
			// search backward for a sentence boundary
			searchFrom := end - boundarySearchWindow
			if searchFrom < start {
				searchFrom = start
			}
			window := clean[searchFrom:end]
			if idx := strings.LastIndex(window, ". "); idx != -1 {
				end = searchFrom + idx + 2
			} else if idx := strings.LastIndex(window, "\n"); idx != -1 {
				end = searchFrom + idx + 1
			}
		}

		chunkText := strings.TrimSpace(clean[start:end])
		if chunkText != "" {
			spans = append(spans, span{start: start, end: end, text: chunkText})
		}

		if end >= n {
			break
		}
		next := end - opt.ChunkOverlap
		if next <= start {
			// guard against an infinite loop when overlap >= window progress
			next = end
		}
		start = next
		if n-start < opt.ChunkOverlap && n-start > 0 && end < n {
			// remaining text shorter than overlap: emit it as the final chunk
			final := strings.TrimSpace(clean[start:n])
			if final != "" {
				spans = append(spans, span{start: start, end: n, text: final})
			}
			break
		}
	}

	chunks := make([]Chunk, len(spans))
	for i, s := range spans {
		chunks[i] = Chunk{Index: i, Text: s.text, StartChar: s.start, EndChar: s.end}
	}

	if !opt.SkipContext {
		attachNeighbors(chunks)
	}
	return chunks
}

func attachNeighbors(chunks []Chunk) {
	for i := range chunks {
		if i > 0 {
			chunks[i].Before = chunks[i-1].Text
		}
		if i < len(chunks)-1 {
			chunks[i].After = chunks[i+1].Text
		}
	}
}

// PageSeparator is the marker ChunkByPages splits on before chunking each
// page independently.
const PageSeparator = "\f"

// ChunkByPages splits text on PageSeparator and chunks each page
// independently, re-indexing globally and attaching a 1-based PageNumber
// to every emitted chunk.
func ChunkByPages(text string, opt Options) []Chunk {
	pages := strings.Split(text, PageSeparator)
	var all []Chunk
	for pageIdx, page := range pages {
		pageChunks := ChunkText(page, opt)
		for _, c := range pageChunks {
			c.Index = len(all)
			c.PageNumber = pageIdx + 1
			all = append(all, c)
		}
	}
	if !opt.withDefaults().SkipContext {
		attachNeighbors(all)
	}
	return all
}
