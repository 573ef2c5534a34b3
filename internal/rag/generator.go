package rag

import (
	"context"
	"fmt"
	"log/slog"
)

// systemPrompt fixes the assistant's persona and the grounding constraint.
// The context block is appended per request; the persona never changes.
const systemPrompt = `You are NanoBook, a scholarly research assistant. You answer questions strictly from the reference material provided below.

Rules:
- Base every claim on the provided context. Do not use outside knowledge.
- If the context does not contain enough information to answer, say so plainly instead of guessing.
- Cite the source document by name when it supports a claim, e.g. (Source: handbook.pdf).
- Maintain a precise, scholarly tone. Be concise; do not pad the answer.

Reference material:
%s`

// noContextNotice replaces the reference material when retrieval produced
// nothing, so the model states insufficiency rather than hallucinating.
const noContextNotice = "(no reference material was retrieved for this question)"

// Generator produces the grounded answer from assembled context, history,
// and the user's question.
type Generator struct {
	model  ChatModel
	logger *slog.Logger
}

// NewGenerator creates a Generator. logger may be nil.
func NewGenerator(model ChatModel, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{model: model, logger: logger}
}

// Generate returns the model's answer to question given the assembled
// contextBlock and prior turns. A model failure surfaces as a
// *GenerationError; no fallback answer is synthesized here.
func (g *Generator) Generate(ctx context.Context, contextBlock, question string, history []Turn) (string, error) {
	if contextBlock == "" {
		contextBlock = noContextNotice
	}
	system := fmt.Sprintf(systemPrompt, contextBlock)

	answer, err := g.model.Generate(ctx, system, history, question)
	if err != nil {
		return "", err
	}

	g.logger.Debug("answer generated", "chars", len(answer))
	return answer, nil
}
