package rag

import (
	"context"
	"fmt"
	"log/slog"
)

// Retriever embeds a query and fetches the nearest chunks from the vector
// index. It over-fetches a multiple of the requested K so the reranker has a
// wider candidate pool to reorder.
type Retriever struct {
	embedder  Embedder
	index     VectorIndex
	overFetch int
	logger    *slog.Logger
}

// NewRetriever creates a Retriever. overFetch is the over-fetch multiplier;
// values below 1 are treated as 1. logger may be nil.
func NewRetriever(embedder Embedder, index VectorIndex, overFetch int, logger *slog.Logger) *Retriever {
	if overFetch < 1 {
		overFetch = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{embedder: embedder, index: index, overFetch: overFetch, logger: logger}
}

// Retrieve returns up to k*overFetch candidates nearest to query, ordered by
// descending similarity. An empty index yields an empty slice and no error.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]RetrievalCandidate, error) {
	if k < 1 {
		k = 1
	}
	return r.retrieve(ctx, query, k*r.overFetch)
}

// RetrieveExact is Retrieve without the over-fetch multiplier, for callers
// that skip reranking and take the similarity order as final.
func (r *Retriever) RetrieveExact(ctx context.Context, query string, k int) ([]RetrievalCandidate, error) {
	if k < 1 {
		k = 1
	}
	return r.retrieve(ctx, query, k)
}

func (r *Retriever) retrieve(ctx context.Context, query string, limit int) ([]RetrievalCandidate, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := r.index.Search(ctx, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	candidates := make([]RetrievalCandidate, 0, len(hits))
	for _, h := range hits {
		candidates = append(candidates, RetrievalCandidate{
			Record:     h.Record,
			Similarity: h.Similarity,
		})
	}

	r.logger.Debug("retrieved candidates", "requested", limit, "returned", len(candidates))
	return candidates, nil
}
