package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// rewritePrompt instructs the completion model to turn a conversational
// question into a retrieval-friendly search query. The history block lets
// the model resolve pronouns and implicit references; the rules forbid
// inventing facts the conversation does not imply.
const rewritePrompt = `System Role: You are the Search Query Optimizer for a document question-answering assistant. Your goal is to convert natural language questions into precise, database-friendly search queries.

Rules for Rewriting:
- Remove conversational politeness ("Hello", "I was wondering", "Can you find", "Please").
- Resolve pronouns and implicit references using the conversation history (e.g. "what about the second one?" becomes an explicit restatement of what "the second one" refers to). Do not invent context the conversation does not contain.
- Prioritize nouns, entities, and technical terms.
- Do NOT answer the question. Output only the rewritten query string.

Examples:
- Input: "Can you please tell me what the revenue was for Q3?"
  Output: Q3 revenue figures
- Input: "I'm looking for info on how to reset the password."
  Output: Password reset instructions procedure

Conversation history:
%s

Raw User Input: %s`

// Rewriter rewrites the latest user question into a retrieval-optimized
// query. A model failure is a non-fatal degradation: retrieval proceeds
// with the original question unchanged.
type Rewriter struct {
	model  Completer
	logger *slog.Logger
}

// NewRewriter creates a Rewriter. logger may be nil.
func NewRewriter(model Completer, logger *slog.Logger) *Rewriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rewriter{model: model, logger: logger}
}

// Rewrite returns the retrieval query to use for question, plus whether the
// rewrite degraded to the original text.
func (r *Rewriter) Rewrite(ctx context.Context, question string, history []Turn) (query string, degraded bool) {
	rewritten, err := r.model.Complete(ctx, fmt.Sprintf(rewritePrompt, formatHistory(history), question))
	if err != nil {
		r.logger.Warn("query rewrite unavailable, using raw query", "error", err)
		return question, true
	}

	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		r.logger.Warn("query rewrite returned empty output, using raw query")
		return question, true
	}

	r.logger.Debug("query rewritten", "original", question, "rewritten", rewritten)
	return rewritten, false
}

// formatHistory renders turns as "role: text" lines for the rewrite prompt.
// An empty history renders as an explicit marker so the model does not treat
// the blank as missing input.
func formatHistory(history []Turn) string {
	if len(history) == 0 {
		return "(no prior turns)"
	}
	var b strings.Builder
	for _, t := range history {
		b.WriteString(string(t.Role))
		b.WriteString(": ")
		b.WriteString(t.Text)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
