package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// S3 Chunker neighbors: input text of length 2600 chars, size=1000,
// overlap=200. Expect 3 chunks; chunk 1's before = chunk 0's text; chunk
// 1's after = chunk 2's text; chunk 0's before = ""; chunk 2's after = "".
func TestChunkText_S3Neighbors(t *testing.T) {
	text := strings.Repeat("a", 2600)
	chunks := ChunkText(text, Options{ChunkSize: 1000, ChunkOverlap: 200})

	require.Len(t, chunks, 3)
	require.Equal(t, "", chunks[0].Before)
	require.Equal(t, chunks[1].Text, chunks[0].After)
	require.Equal(t, chunks[0].Text, chunks[1].Before)
	require.Equal(t, chunks[2].Text, chunks[1].After)
	require.Equal(t, chunks[1].Text, chunks[2].Before)
	require.Equal(t, "", chunks[2].After)
}

func TestChunkText_SentenceBoundary(t *testing.T) {
	sentence := "This is one sentence. "
	text := strings.Repeat(sentence, 60) // > chunk size, has many ". " boundaries
	chunks := ChunkText(text, Options{ChunkSize: 500, ChunkOverlap: 100})
	require.NotEmpty(t, chunks)
	for _, c := range chunks[:len(chunks)-1] {
		require.True(t, strings.HasSuffix(c.Text, ".") || strings.HasSuffix(c.Text, "sentence"),
			"chunk %q should end near a sentence boundary", c.Text)
	}
}

func TestChunkText_Empty(t *testing.T) {
	require.Nil(t, ChunkText("   \n\t ", Options{}))
}

func TestChunkText_CleanText_CollapsesWhitespaceAndCapsNewlines(t *testing.T) {
	chunks := ChunkText("hello\r\n\r\n\r\n\r\nworld   foo\tbar", Options{})
	require.Len(t, chunks, 1)
	require.NotContains(t, chunks[0].Text, "\n\n\n")
	require.Contains(t, chunks[0].Text, "hello")
	require.Contains(t, chunks[0].Text, "world foo bar")
}

func TestChunkByPages_AssignsPageNumberAndReindexesGlobally(t *testing.T) {
	text := strings.Repeat("x", 50) + PageSeparator + strings.Repeat("y", 50)
	chunks := ChunkByPages(text, Options{ChunkSize: 1000, ChunkOverlap: 200})
	require.Len(t, chunks, 2)
	require.Equal(t, 1, chunks[0].PageNumber)
	require.Equal(t, 2, chunks[1].PageNumber)
	require.Equal(t, 0, chunks[0].Index)
	require.Equal(t, 1, chunks[1].Index)
}

func TestChunkText_RoundTripInvariant(t *testing.T) {
	// Invariant 10: the chunk spans, once overlap is accounted for, cover
	// the source text contiguously with no gaps.
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40)
	opt := Options{ChunkSize: 300, ChunkOverlap: 50}
	chunks := ChunkText(text, opt)
	require.NotEmpty(t, chunks)
	require.Equal(t, 0, chunks[0].StartChar)
	for i := 1; i < len(chunks); i++ {
		require.LessOrEqual(t, chunks[i].StartChar, chunks[i-1].EndChar)
	}
}
