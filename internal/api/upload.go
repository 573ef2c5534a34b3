package api

import (
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/nanobook/nanobook/internal/extract"
	"github.com/nanobook/nanobook/internal/rag"
)

const (
	// maxUploadBytes bounds one upload request (all files together).
	maxUploadBytes = 32 << 20 // 32 MiB

	// maxUploadFiles bounds how many files one request may carry.
	maxUploadFiles = 20
)

// uploadHandler serves POST /upload.
type uploadHandler struct {
	pipeline Pipeline
	uploads  UploadStore
	logger   *slog.Logger
}

// uploadFileResult reports ingestion of one file. Exactly one of Error or
// the ingestion fields is meaningful.
type uploadFileResult struct {
	Filename      string `json:"filename"`
	DocumentID    string `json:"document_id,omitempty"`
	ChunksIndexed int    `json:"chunks_indexed"`
	FailedChunks  []int  `json:"failed_chunks,omitempty"`
	Error         string `json:"error,omitempty"`
}

type uploadResponse struct {
	Files []uploadFileResult `json:"files"`
}

func (h *uploadHandler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "upload exceeds the size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_multipart", "request is not valid multipart form data")
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			h.logger.Debug("removing multipart temp files", "error", err)
		}
	}()

	var headers []*multipart.FileHeader
	for _, hs := range r.MultipartForm.File {
		headers = append(headers, hs...)
	}
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "no_files", "no files in upload")
		return
	}
	if len(headers) > maxUploadFiles {
		writeError(w, http.StatusBadRequest, "too_many_files", "too many files in one upload")
		return
	}

	// One bad file reports its own error; the rest of the batch proceeds.
	results := make([]uploadFileResult, 0, len(headers))
	for _, fh := range headers {
		results = append(results, h.ingestFile(r, fh))
	}

	writeJSON(w, http.StatusOK, uploadResponse{Files: results})
}

func (h *uploadHandler) ingestFile(r *http.Request, fh *multipart.FileHeader) uploadFileResult {
	result := uploadFileResult{Filename: fh.Filename}

	if !extract.Supported(fh.Filename) {
		result.Error = "unsupported document type"
		return result
	}

	f, err := fh.Open()
	if err != nil {
		h.logger.Warn("opening uploaded file", "filename", fh.Filename, "error", err)
		result.Error = "could not read file"
		return result
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		h.logger.Warn("reading uploaded file", "filename", fh.Filename, "error", err)
		result.Error = "could not read file"
		return result
	}

	doc, err := extract.Text(fh.Filename, data)
	if err != nil {
		h.logger.Warn("extracting uploaded file", "filename", fh.Filename, "error", err)
		result.Error = "could not extract text"
		return result
	}

	docID, err := h.uploads.Save(fh.Filename, data)
	if err != nil {
		h.logger.Error("persisting uploaded file", "filename", fh.Filename, "error", err)
		result.Error = "could not store file"
		return result
	}
	result.DocumentID = docID

	meta := rag.DocumentMeta{
		ID:        docID,
		Name:      fh.Filename,
		MediaType: doc.MediaType,
		ByteSize:  int64(len(data)),
	}
	ingest, err := h.pipeline.Ingest(r.Context(), meta, doc.Text)
	result.ChunksIndexed = ingest.ChunksIndexed
	result.FailedChunks = ingest.FailedChunks
	if err != nil {
		var ingErr *rag.IngestionError
		switch {
		case errors.As(err, &ingErr):
			// Partial: the indexed subset is live, report the failures.
			// The stored file stays as re-ingest fodder.
			h.logger.Warn("document partially indexed",
				"document_id", docID, "failed_chunks", len(ingErr.FailedChunks))
		case errors.Is(err, rag.ErrNoContent):
			result.Error = "no content extracted"
			result.DocumentID = h.discardUpload(docID, fh.Filename)
		default:
			h.logger.Error("indexing uploaded file", "filename", fh.Filename, "error", err)
			result.Error = "could not index file"
			result.DocumentID = h.discardUpload(docID, fh.Filename)
		}
	}
	return result
}

// discardUpload removes a stored file whose indexing produced zero records,
// so /documents never lists an upload with nothing behind it. Returns the
// replacement document id for the result: empty on success, the original id
// when removal fails and the orphan file remains.
func (h *uploadHandler) discardUpload(docID, filename string) string {
	if err := h.uploads.Remove(docID); err != nil {
		h.logger.Warn("removing unindexed upload",
			"document_id", docID, "filename", filename, "error", err)
		return docID
	}
	return ""
}
