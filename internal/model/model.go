// Package model provides Gemini-backed implementations of the rag model
// interfaces: embedding, query rewriting, and grounded answer generation.
// All clients share one initialized Genkit instance and bound every
// external call with a timeout.
package model

import "time"

// provider is the Genkit plugin prefix for Gemini models.
const provider = "googleai/"

// defaultTimeout bounds a model call when no timeout is configured.
const defaultTimeout = 30 * time.Second

func qualified(model string) string {
	return provider + model
}

func timeoutOrDefault(sec int) time.Duration {
	if sec <= 0 {
		return defaultTimeout
	}
	return time.Duration(sec) * time.Second
}
