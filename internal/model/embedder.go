package model

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/nanobook/nanobook/internal/vectorstore"
)

// Embedder wraps a Gemini embedding model behind the rag.Embedder interface.
// Output is truncated to the collection dimension via OutputDimensionality
// (Matryoshka Representation Learning), so one embedder serves both the
// ingestion and query paths with identical geometry.
//
// A shared rate limiter smooths bulk ingestion bursts against the API quota.
type Embedder struct {
	embedder ai.Embedder
	limiter  *rate.Limiter
	timeout  time.Duration
	logger   *slog.Logger
}

// NewEmbedder creates an Embedder for the named Gemini embedding model.
// embedRPS <= 0 disables rate limiting. logger may be nil.
func NewEmbedder(g *genkit.Genkit, modelName string, embedRPS float64, timeoutSec int, logger *slog.Logger) *Embedder {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if embedRPS > 0 {
		limit = rate.Limit(embedRPS)
	}
	return &Embedder{
		embedder: googlegenai.GoogleAIEmbedder(g, modelName),
		limiter:  rate.NewLimiter(limit, 1),
		timeout:  timeoutOrDefault(timeoutSec),
		logger:   logger,
	}
}

// Embed returns the embedding vector for text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for embed rate limit: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	dim := int32(vectorstore.Dimension)
	resp, err := e.embedder.Embed(callCtx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}

	vec := resp.Embeddings[0].Embedding
	if len(vec) != vectorstore.Dimension {
		return nil, fmt.Errorf("embedding dimension %d, want %d: %w",
			len(vec), vectorstore.Dimension, vectorstore.ErrDimensionMismatch)
	}
	return vec, nil
}
