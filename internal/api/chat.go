package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nanobook/nanobook/internal/rag"
)

// maxChatBodyBytes bounds the chat request body.
const maxChatBodyBytes = 1 << 20 // 1 MiB

// maxHistoryTurns bounds how much conversation history one request may carry.
const maxHistoryTurns = 50

// chatHandler serves POST /chat.
type chatHandler struct {
	pipeline Pipeline
	logger   *slog.Logger
}

type chatTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type chatOptions struct {
	TopK         *int  `json:"top_k,omitempty"`
	UseReranking *bool `json:"use_reranking,omitempty"`
}

type chatRequest struct {
	UserQuery string      `json:"user_query"`
	History   []chatTurn  `json:"history,omitempty"`
	Options   chatOptions `json:"options"`
}

type chatResponse struct {
	Answer       string       `json:"answer"`
	Sources      []rag.Source `json:"sources"`
	Degradations []string     `json:"degradations,omitempty"`
}

func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	if strings.TrimSpace(req.UserQuery) == "" {
		writeError(w, http.StatusBadRequest, "missing_query", "user_query is required")
		return
	}
	if len(req.History) > maxHistoryTurns {
		writeError(w, http.StatusBadRequest, "history_too_long", "history exceeds the allowed number of turns")
		return
	}

	history := make([]rag.Turn, 0, len(req.History))
	for _, turn := range req.History {
		switch turn.Role {
		case string(rag.RoleUser):
			history = append(history, rag.UserTurn(turn.Text))
		case string(rag.RoleModel):
			history = append(history, rag.ModelTurn(turn.Text))
		default:
			writeError(w, http.StatusBadRequest, "invalid_role", "history roles must be \"user\" or \"model\"")
			return
		}
	}

	opts := rag.DefaultQueryOptions()
	if req.Options.TopK != nil {
		if *req.Options.TopK < 1 || *req.Options.TopK > 100 {
			writeError(w, http.StatusBadRequest, "invalid_top_k", "top_k must be between 1 and 100")
			return
		}
		opts.TopK = *req.Options.TopK
	}
	if req.Options.UseReranking != nil {
		opts.UseReranking = *req.Options.UseReranking
	}

	result, err := h.pipeline.Query(r.Context(), req.UserQuery, history, opts)
	if err != nil {
		var genErr *rag.GenerationError
		if errors.As(err, &genErr) {
			h.logger.Error("answer generation failed", "model", genErr.Model, "error", genErr.Err)
			writeError(w, http.StatusBadGateway, "generation_failed", "the language model did not produce an answer")
			return
		}
		h.logger.Error("chat request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query_failed", "failed to answer the question")
		return
	}

	degradations := make([]string, 0, len(result.Degradations))
	for _, d := range result.Degradations {
		degradations = append(degradations, string(d))
	}
	sources := result.Sources
	if sources == nil {
		sources = []rag.Source{}
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Answer:       result.Answer,
		Sources:      sources,
		Degradations: degradations,
	})
}
