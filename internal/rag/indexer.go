package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nanobook/nanobook/internal/vectorstore"
)

// embedConcurrency bounds parallel embedding calls during ingestion of a
// single document.
const embedConcurrency = 4

// Indexer embeds a document's chunks and upserts them into the vector
// collection. Upserts are idempotent on chunk ID, and a document's previous
// records are deleted first so re-ingesting a document ID replaces rather
// than duplicates its records.
type Indexer struct {
	embedder Embedder
	index    VectorIndex
	logger   *slog.Logger
}

// NewIndexer creates an Indexer. logger may be nil.
func NewIndexer(embedder Embedder, index VectorIndex, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{embedder: embedder, index: index, logger: logger}
}

// Index ingests all chunks of one document.
//
// An embedding failure for one chunk does not abort its siblings: the
// successful subset is committed, and the returned *IngestionError
// enumerates the failed chunk indices. Partial upserts are not rolled back
// on cancellation; idempotent upsert makes retry safe.
func (ix *Indexer) Index(ctx context.Context, doc DocumentMeta, chunks []Chunk) (IngestResult, error) {
	if _, err := ix.index.DeleteByDocument(ctx, doc.ID); err != nil {
		return IngestResult{}, fmt.Errorf("clearing previous records for document %q: %w", doc.ID, err)
	}
	if len(chunks) == 0 {
		return IngestResult{}, nil
	}

	type embedded struct {
		chunk Chunk
		vec   []float32
	}

	var (
		mu      sync.Mutex
		vectors = make([]embedded, 0, len(chunks))
		failed  []int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for _, chunk := range chunks {
		g.Go(func() error {
			vec, err := ix.embedder.Embed(gctx, chunk.Text)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				ix.logger.Warn("embedding chunk failed",
					"document_id", doc.ID, "chunk", chunk.Seq, "error", err)
				failed = append(failed, chunk.Seq)
				return nil // sibling chunks continue
			}
			vectors = append(vectors, embedded{chunk: chunk, vec: vec})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return IngestResult{}, err
	}

	// Upsert in sequence order for reproducible runs.
	sort.Slice(vectors, func(i, j int) bool { return vectors[i].chunk.Seq < vectors[j].chunk.Seq })

	indexed := 0
	for _, e := range vectors {
		rec := vectorstore.Record{
			ID:           e.chunk.ID,
			DocumentID:   doc.ID,
			DocumentName: doc.Name,
			MediaType:    doc.MediaType,
			Seq:          e.chunk.Seq,
			StartOffset:  e.chunk.StartOffset,
			EndOffset:    e.chunk.EndOffset,
			Content:      e.chunk.Text,
			Embedding:    e.vec,
		}
		if err := ix.index.Upsert(ctx, rec); err != nil {
			ix.logger.Warn("upserting chunk failed",
				"document_id", doc.ID, "chunk", e.chunk.Seq, "error", err)
			failed = append(failed, e.chunk.Seq)
			continue
		}
		indexed++
	}

	sort.Ints(failed)
	result := IngestResult{ChunksIndexed: indexed, FailedChunks: failed}
	if len(failed) > 0 {
		return result, &IngestionError{DocumentID: doc.ID, FailedChunks: failed, Indexed: indexed}
	}

	ix.logger.Debug("document indexed", "document_id", doc.ID, "chunks", indexed)
	return result, nil
}
