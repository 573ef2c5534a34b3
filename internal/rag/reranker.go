package rag

import (
	"context"
	"log/slog"
	"sort"
)

// Reranker reorders retrieval candidates by cross-encoder relevance. Scoring
// failures are a non-fatal degradation: the vector-similarity order is kept
// and the pool is truncated to k.
type Reranker struct {
	scorer Scorer
	logger *slog.Logger
}

// NewReranker creates a Reranker. logger may be nil.
func NewReranker(scorer Scorer, logger *slog.Logger) *Reranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{scorer: scorer, logger: logger}
}

// Rerank scores candidates against query and returns the top k by descending
// relevance, plus whether scoring degraded to similarity order. Ties preserve
// the incoming similarity order. The returned results are always a subset of
// candidates; reranking never introduces new chunks.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []RetrievalCandidate, k int) (results []RerankedResult, degraded bool) {
	if len(candidates) == 0 {
		return nil, false
	}
	if k < 1 {
		k = 1
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Record.Content
	}

	scores, err := r.scorer.Score(ctx, query, texts)
	if err != nil || len(scores) != len(candidates) {
		if err != nil {
			r.logger.Warn("reranker unavailable, keeping similarity order", "error", err)
		} else {
			r.logger.Warn("reranker returned wrong score count, keeping similarity order",
				"want", len(candidates), "got", len(scores))
		}
		return truncateBySimilarity(candidates, k), true
	}

	results = make([]RerankedResult, len(candidates))
	for i, c := range candidates {
		results[i] = RerankedResult{Record: c.Record, Relevance: scores[i]}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Relevance > results[j].Relevance
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, false
}

// truncateBySimilarity is the degraded path: candidates are already in
// descending similarity order, so the similarity doubles as the relevance
// score of the truncated head.
func truncateBySimilarity(candidates []RetrievalCandidate, k int) []RerankedResult {
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	results := make([]RerankedResult, len(candidates))
	for i, c := range candidates {
		results[i] = RerankedResult{Record: c.Record, Relevance: c.Similarity}
	}
	return results
}
