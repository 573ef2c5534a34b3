// Package rerank provides an HTTP client for an external cross-encoder
// scoring service. The service evaluates (query, passage) pairs jointly
// and returns one relevance score per passage.
package rerank

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client talks to the reranker sidecar. It implements rag.Scorer.
type Client struct {
	http   *resty.Client
	model  string
	logger *slog.Logger
}

// scoreRequest is the rerank endpoint's request body.
type scoreRequest struct {
	Model string   `json:"model"`
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

// scoreResponse is the rerank endpoint's response body.
type scoreResponse struct {
	Scores []float32 `json:"scores"`
}

// errorResponse carries the service's error detail, when it sends one.
type errorResponse struct {
	Error string `json:"error"`
}

// New creates a Client for the reranker at baseURL. model names the
// cross-encoder checkpoint the service should apply. logger may be nil.
func New(baseURL, model string, timeoutSec int, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := 10 * time.Second
	if timeoutSec > 0 {
		timeout = time.Duration(timeoutSec) * time.Second
	}

	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(1 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			if r == nil {
				return false
			}
			code := r.StatusCode()
			return code >= 500 || code == 429 || code == 408
		})

	return &Client{http: http, model: model, logger: logger}
}

// Score returns one relevance score per text, in input order.
func (c *Client) Score(ctx context.Context, query string, texts []string) ([]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var (
		body   scoreResponse
		apiErr errorResponse
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(scoreRequest{Model: c.model, Query: query, Texts: texts}).
		SetResult(&body).
		SetError(&apiErr).
		Post("/rerank")
	if err != nil {
		return nil, fmt.Errorf("calling reranker: %w", err)
	}
	if resp.IsError() {
		if apiErr.Error != "" {
			return nil, fmt.Errorf("reranker returned %d: %s", resp.StatusCode(), apiErr.Error)
		}
		return nil, fmt.Errorf("reranker returned %d", resp.StatusCode())
	}
	if len(body.Scores) != len(texts) {
		return nil, fmt.Errorf("reranker returned %d scores for %d texts", len(body.Scores), len(texts))
	}

	c.logger.Debug("candidates scored", "count", len(texts))
	return body.Scores, nil
}
