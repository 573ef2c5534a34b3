package rag

import (
	"iter"
	"strings"
	"unicode/utf8"
)

// Splitter cuts raw document text into overlapping chunks.
//
// Consecutive chunks from the same document overlap by exactly Overlap
// characters, with one exception: when the remaining tail after a chunk fits
// within a single stride (Size−Overlap), the final chunk starts at the
// previous chunk's end and carries no overlap. Inside a window the splitter
// prefers to cut after a paragraph break, then a line break, then a sentence
// end, then a word boundary, before falling back to a hard character cut.
// Every cut lands on a UTF-8 rune boundary; a hard cut or overlap start
// backs off a few bytes when needed, so chunks are always valid UTF-8.
type Splitter struct {
	Size    int // maximum chunk length in characters (default 500)
	Overlap int // characters shared with the previous chunk (default 100)
}

// DefaultSplitter returns the production chunking configuration.
func DefaultSplitter() Splitter {
	return Splitter{Size: 500, Overlap: 100}
}

// separators, tried in order. Each cut lands after the separator so that no
// characters are lost between chunks.
var separators = []string{"\n\n", "\n", ". ", " "}

// Split returns a lazy, restartable sequence of chunks covering text with no
// gaps. Identical input always yields an identical sequence. Empty text
// yields no chunks; text shorter than Size yields exactly one.
func (s Splitter) Split(documentID, text string) iter.Seq[Chunk] {
	size := s.Size
	if size <= 0 {
		size = 500
	}
	overlap := s.Overlap
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	return func(yield func(Chunk) bool) {
		if len(text) == 0 {
			return
		}

		stride := size - overlap
		start, seq := 0, 0
		for {
			end := start + size
			if end >= len(text) {
				end = len(text)
			} else {
				end = s.cut(text, start, end)
			}

			ok := yield(Chunk{
				ID:          ChunkID(documentID, seq),
				DocumentID:  documentID,
				Seq:         seq,
				Text:        text[start:end],
				StartOffset: start,
				EndOffset:   end,
			})
			if !ok || end == len(text) {
				return
			}

			if len(text)-end <= stride {
				start = end // final chunk: tail only, no overlap
			} else {
				start = end - overlap
				for start > 0 && !utf8.RuneStart(text[start]) {
					start--
				}
			}
			seq++
		}
	}
}

// cut picks the end of the chunk starting at start, given the hard window
// limit. It takes the last separator occurrence inside the window, provided
// the chunk stays long enough to guarantee forward progress; otherwise it
// hard-cuts at the limit.
func (s Splitter) cut(text string, start, limit int) int {
	window := text[start:limit]

	// A cut must leave the chunk longer than the overlap (or we would never
	// advance) and not degenerate into slivers.
	minLen := len(window) / 2
	if minLen <= s.Overlap {
		minLen = s.Overlap + 1
	}

	for _, sep := range separators {
		if idx := strings.LastIndex(window, sep); idx >= 0 {
			end := idx + len(sep)
			if end >= minLen {
				return start + end
			}
		}
	}

	// Hard cut: back off to a rune boundary so a multi-byte character is
	// never bisected.
	end := limit
	for end > start && !utf8.RuneStart(text[end]) {
		end--
	}
	if end > start {
		return end
	}
	return limit
}
