package rag

import (
	"log/slog"
	"strings"

	"github.com/nanobook/nanobook/internal/vectorstore"
)

// Assembler packs reranked chunks into a bounded context block for the
// generation model. Chunks are included whole, in relevance order, until the
// character budget would be exceeded; a chunk whose span overlaps an already
// included chunk from the same document is skipped as redundant.
type Assembler struct {
	budget int
	logger *slog.Logger
}

// NewAssembler creates an Assembler with a character budget. logger may be nil.
func NewAssembler(budget int, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{budget: budget, logger: logger}
}

// Assemble returns the context block and the ordered sources backing it.
// Sources appear in the same relevance order as the included chunks. An
// empty result slice yields an empty context and nil sources.
func (a *Assembler) Assemble(results []RerankedResult) (contextBlock string, sources []Source) {
	var (
		b        strings.Builder
		used     int
		included []vectorstore.Record
	)

	for _, res := range results {
		rec := res.Record
		if overlapsIncluded(included, rec) {
			continue
		}

		entry := formatEntry(rec)
		if used+len(entry) > a.budget {
			// Whole chunks only. A chunk that does not fit is dropped,
			// never truncated; a smaller chunk later in rank order may
			// still fit.
			a.logger.Debug("chunk dropped, over context budget",
				"chunk_id", rec.ID, "used", used, "budget", a.budget)
			continue
		}

		b.WriteString(entry)
		used += len(entry)
		included = append(included, rec)
		sources = append(sources, Source{
			DocumentName: rec.DocumentName,
			ChunkExcerpt: excerpt(rec.Content, 200),
		})
	}

	return strings.TrimRight(b.String(), "\n"), sources
}

// overlapsIncluded reports whether rec's span overlaps an already included
// chunk from the same document. Consecutive chunks share overlap characters,
// so both can surface in the candidate pool for the same passage; the
// higher-ranked occurrence wins.
func overlapsIncluded(included []vectorstore.Record, rec vectorstore.Record) bool {
	for _, in := range included {
		if in.DocumentID != rec.DocumentID {
			continue
		}
		if rec.StartOffset < in.EndOffset && in.StartOffset < rec.EndOffset {
			return true
		}
	}
	return false
}

func formatEntry(rec vectorstore.Record) string {
	var b strings.Builder
	b.WriteString("[Source: ")
	b.WriteString(rec.DocumentName)
	b.WriteString("]\n")
	b.WriteString(rec.Content)
	b.WriteString("\n\n")
	return b.String()
}

// excerpt truncates content to at most n bytes on a rune boundary.
func excerpt(content string, n int) string {
	if len(content) <= n {
		return content
	}
	cut := n
	for cut > 0 && !isRuneStart(content[cut]) {
		cut--
	}
	return content[:cut]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
