package model

import (
	"context"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// Completer runs single-prompt completions against a light Gemini model.
// The pipeline uses it for query rewriting, where latency matters more
// than generation quality.
type Completer struct {
	g       *genkit.Genkit
	model   string
	timeout time.Duration
}

// NewCompleter creates a Completer for the named Gemini model.
func NewCompleter(g *genkit.Genkit, modelName string, timeoutSec int) *Completer {
	return &Completer{
		g:       g,
		model:   qualified(modelName),
		timeout: timeoutOrDefault(timeoutSec),
	}
}

// Complete returns the model's text response to prompt.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := genkit.Generate(callCtx, c.g,
		ai.WithModelName(c.model),
		ai.WithPrompt(prompt),
	)
	if err != nil {
		return "", fmt.Errorf("completing with %s: %w", c.model, err)
	}
	return resp.Text(), nil
}
