package api

import (
	"log/slog"
	"net/http"
)

// resetHandler serves DELETE /reset.
type resetHandler struct {
	pipeline Pipeline
	uploads  UploadStore
	logger   *slog.Logger
}

type resetResponse struct {
	RecordsCleared int64 `json:"records_cleared"`
	FilesRemoved   int   `json:"files_removed"`
}

// reset wipes the vector collection, then the persisted uploads. The index
// goes first: if it fails, the originals remain and re-ingestion stays
// possible.
func (h *resetHandler) reset(w http.ResponseWriter, r *http.Request) {
	records, err := h.pipeline.Reset(r.Context())
	if err != nil {
		h.logger.Error("resetting collection", "error", err)
		writeError(w, http.StatusInternalServerError, "reset_failed", "failed to reset the collection")
		return
	}

	files, err := h.uploads.Clear()
	if err != nil {
		h.logger.Error("clearing uploads", "error", err)
		writeError(w, http.StatusInternalServerError, "reset_failed", "collection cleared but uploads could not be removed")
		return
	}

	writeJSON(w, http.StatusOK, resetResponse{RecordsCleared: records, FilesRemoved: files})
}
