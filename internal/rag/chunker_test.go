package rag_test

import (
	"slices"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanobook/nanobook/internal/rag"
)

func collect(s rag.Splitter, docID, text string) []rag.Chunk {
	return slices.Collect(s.Split(docID, text))
}

func TestSplitterEmptyText(t *testing.T) {
	chunks := collect(rag.DefaultSplitter(), "doc-1", "")
	assert.Empty(t, chunks)
}

func TestSplitterShortText(t *testing.T) {
	text := "a single short paragraph"
	chunks := collect(rag.DefaultSplitter(), "doc-1", text)

	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Text)
	assert.Equal(t, 0, chunks[0].StartOffset)
	assert.Equal(t, len(text), chunks[0].EndOffset)
	assert.Equal(t, rag.ChunkID("doc-1", 0), chunks[0].ID)
}

func TestSplitterUniformText(t *testing.T) {
	// No separators anywhere, so every cut is a hard cut. A 1200-char
	// document with size 500 / overlap 100 must yield 500, 500 and a
	// final 300-char tail chunk.
	text := strings.Repeat("a", 1200)
	chunks := collect(rag.DefaultSplitter(), "doc-1", text)

	require.Len(t, chunks, 3)
	assert.Equal(t, 500, len(chunks[0].Text))
	assert.Equal(t, 500, len(chunks[1].Text))
	assert.Equal(t, 300, len(chunks[2].Text))

	assert.Equal(t, 0, chunks[0].StartOffset)
	assert.Equal(t, 400, chunks[1].StartOffset)
	assert.Equal(t, 900, chunks[2].StartOffset)
	assert.Equal(t, 1200, chunks[2].EndOffset)
}

func TestSplitterOverlapExact(t *testing.T) {
	text := strings.Repeat("a", 1200)
	s := rag.Splitter{Size: 500, Overlap: 100}
	chunks := collect(s, "doc-1", text)
	require.GreaterOrEqual(t, len(chunks), 2)

	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		shared := prev.EndOffset - cur.StartOffset
		if i == len(chunks)-1 && shared == 0 {
			continue // tail chunk may carry no overlap
		}
		assert.Equal(t, s.Overlap, shared, "chunks %d and %d", i-1, i)
		assert.Equal(t,
			text[cur.StartOffset:prev.EndOffset],
			prev.Text[len(prev.Text)-shared:],
			"overlap text mismatch between chunks %d and %d", i-1, i)
	}
}

func TestSplitterRoundTrip(t *testing.T) {
	cases := map[string]string{
		"uniform":    strings.Repeat("b", 2350),
		"paragraphs": strings.Repeat("Lorem ipsum dolor sit amet, consectetur adipiscing elit.\n\n", 40),
		"sentences":  strings.Repeat("The quick brown fox jumps over the lazy dog. ", 60),
		"short":      "tiny",
	}

	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			chunks := collect(rag.DefaultSplitter(), "doc-1", text)
			require.NotEmpty(t, chunks)

			// Offsets must tile the document with no gaps, and each
			// chunk's text must be exactly the span it claims.
			assert.Equal(t, 0, chunks[0].StartOffset)
			assert.Equal(t, len(text), chunks[len(chunks)-1].EndOffset)

			var b strings.Builder
			prevEnd := 0
			for i, c := range chunks {
				require.Equal(t, text[c.StartOffset:c.EndOffset], c.Text, "chunk %d span", i)
				require.LessOrEqual(t, c.StartOffset, prevEnd, "gap before chunk %d", i)
				require.Greater(t, c.EndOffset, prevEnd, "chunk %d does not advance", i)
				b.WriteString(text[prevEnd:c.EndOffset])
				prevEnd = c.EndOffset
			}
			assert.Equal(t, text, b.String())
		})
	}
}

func TestSplitterPrefersParagraphBreak(t *testing.T) {
	text := strings.Repeat("x", 300) + "\n\n" + strings.Repeat("y", 300)
	chunks := collect(rag.DefaultSplitter(), "doc-1", text)

	require.Len(t, chunks, 2)
	assert.True(t, strings.HasSuffix(chunks[0].Text, "\n\n"), "first chunk should end after the paragraph break")
	assert.Equal(t, strings.Repeat("y", 300), chunks[1].Text)
}

func TestSplitterPrefersSentenceEnd(t *testing.T) {
	// No paragraph or line breaks; the splitter should cut after the last
	// ". " inside the window rather than mid-sentence.
	text := strings.Repeat("All work and no play makes Jack a dull boy. ", 30)
	chunks := collect(rag.DefaultSplitter(), "doc-1", text)
	require.Greater(t, len(chunks), 1)

	for i, c := range chunks[:len(chunks)-1] {
		assert.True(t, strings.HasSuffix(c.Text, ". "), "chunk %d should end on a sentence boundary, got %q", i, c.Text[len(c.Text)-10:])
	}
}

func TestSplitterDeterministic(t *testing.T) {
	text := strings.Repeat("Determinism matters for chunk ids. ", 50)
	seq := rag.DefaultSplitter().Split("doc-1", text)

	first := slices.Collect(seq)
	second := slices.Collect(seq) // the sequence is restartable
	assert.Equal(t, first, second)
}

func TestSplitterChunkIDsOrdered(t *testing.T) {
	text := strings.Repeat("z", 3000)
	chunks := collect(rag.DefaultSplitter(), "doc-9", text)
	require.Greater(t, len(chunks), 2)

	for i, c := range chunks {
		assert.Equal(t, i, c.Seq)
		assert.Equal(t, rag.ChunkID("doc-9", i), c.ID)
		if i > 0 {
			assert.Greater(t, c.ID, chunks[i-1].ID, "ids must sort in sequence order")
		}
	}
}

func TestSplitterMultibyteRunes(t *testing.T) {
	// 600 three-byte runes, no ASCII separators: every cut is a hard cut,
	// and byte 500 falls in the middle of a rune. Cuts must back off to
	// rune boundaries so no chunk carries a torn character.
	text := strings.Repeat("文", 600)
	chunks := collect(rag.DefaultSplitter(), "doc-1", text)
	require.Greater(t, len(chunks), 1)

	for i, c := range chunks {
		assert.True(t, utf8.ValidString(c.Text), "chunk %d is not valid UTF-8", i)
		assert.Equal(t, text[c.StartOffset:c.EndOffset], c.Text, "chunk %d offsets disagree with text", i)
	}

	assert.Equal(t, 0, chunks[0].StartOffset)
	assert.Equal(t, len(text), chunks[len(chunks)-1].EndOffset)
	for i := 1; i < len(chunks); i++ {
		assert.LessOrEqual(t, chunks[i].StartOffset, chunks[i-1].EndOffset, "gap before chunk %d", i)
		assert.Greater(t, chunks[i].EndOffset, chunks[i-1].EndOffset, "chunk %d does not advance", i)
	}
}
