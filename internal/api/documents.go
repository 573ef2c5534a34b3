package api

import (
	"log/slog"
	"net/http"
	"time"
)

// documentsHandler serves GET /documents.
type documentsHandler struct {
	uploads UploadStore
	logger  *slog.Logger
}

type documentInfo struct {
	DocumentID string    `json:"document_id"`
	Name       string    `json:"name"`
	SizeBytes  int64     `json:"size_bytes"`
	StoredAt   time.Time `json:"stored_at"`
}

type documentsResponse struct {
	Documents []documentInfo `json:"documents"`
}

// list reports the stored uploads, newest first.
func (h *documentsHandler) list(w http.ResponseWriter, r *http.Request) {
	files, err := h.uploads.List()
	if err != nil {
		h.logger.Error("listing stored uploads", "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list documents")
		return
	}

	docs := make([]documentInfo, 0, len(files))
	for _, f := range files {
		docs = append(docs, documentInfo{
			DocumentID: f.DocumentID,
			Name:       f.Name,
			SizeBytes:  f.Size,
			StoredAt:   f.StoredAt,
		})
	}
	writeJSON(w, http.StatusOK, documentsResponse{Documents: docs})
}
