package model

import (
	"context"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"google.golang.org/genai"

	"github.com/nanobook/nanobook/internal/rag"
)

// ChatOptions fixes the sampling parameters for answer generation.
// Low temperature keeps answers close to the provided context.
type ChatOptions struct {
	Temperature     float32
	TopP            float32
	TopK            int
	MaxOutputTokens int
	TimeoutSec      int
}

// Chat generates grounded answers with a Gemini chat model, carrying
// conversation history as alternating user/model messages.
type Chat struct {
	g       *genkit.Genkit
	model   string
	config  *genai.GenerateContentConfig
	timeout time.Duration
}

// NewChat creates a Chat client for the named Gemini model.
func NewChat(g *genkit.Genkit, modelName string, opts ChatOptions) *Chat {
	topK := float32(opts.TopK)
	return &Chat{
		g:     g,
		model: qualified(modelName),
		config: &genai.GenerateContentConfig{
			Temperature:     genai.Ptr(opts.Temperature),
			TopP:            genai.Ptr(opts.TopP),
			TopK:            genai.Ptr(topK),
			MaxOutputTokens: int32(opts.MaxOutputTokens),
		},
		timeout: timeoutOrDefault(opts.TimeoutSec),
	}
}

// Generate produces the answer for prompt given the system instruction and
// prior turns. Failures are wrapped in *rag.GenerationError.
func (c *Chat) Generate(ctx context.Context, system string, history []rag.Turn, prompt string) (string, error) {
	messages := make([]*ai.Message, 0, len(history)+1)
	for _, turn := range history {
		switch turn.Role {
		case rag.RoleModel:
			messages = append(messages, ai.NewModelMessage(ai.NewTextPart(turn.Text)))
		default:
			messages = append(messages, ai.NewUserMessage(ai.NewTextPart(turn.Text)))
		}
	}
	messages = append(messages, ai.NewUserMessage(ai.NewTextPart(prompt)))

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := genkit.Generate(callCtx, c.g,
		ai.WithModelName(c.model),
		ai.WithSystem(system),
		ai.WithMessages(messages...),
		ai.WithConfig(c.config),
	)
	if err != nil {
		return "", &rag.GenerationError{Model: c.model, Err: err}
	}
	return resp.Text(), nil
}
