package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nanobook/nanobook/internal/api"
	"github.com/nanobook/nanobook/internal/rag"
	"github.com/nanobook/nanobook/internal/testutil"
	"github.com/nanobook/nanobook/internal/uploads"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubPipeline records calls and returns canned results.
type stubPipeline struct {
	queryResult rag.QueryResult
	queryErr    error
	lastQuery   string
	lastHistory []rag.Turn
	lastOpts    rag.QueryOptions

	ingestResult rag.IngestResult
	ingestErr    error
	ingested     []rag.DocumentMeta

	resetCount int64
	resetErr   error
}

func (s *stubPipeline) Query(_ context.Context, question string, history []rag.Turn, opts rag.QueryOptions) (rag.QueryResult, error) {
	s.lastQuery = question
	s.lastHistory = history
	s.lastOpts = opts
	return s.queryResult, s.queryErr
}

func (s *stubPipeline) Ingest(_ context.Context, meta rag.DocumentMeta, _ string) (rag.IngestResult, error) {
	s.ingested = append(s.ingested, meta)
	return s.ingestResult, s.ingestErr
}

func (s *stubPipeline) Reset(context.Context) (int64, error) {
	return s.resetCount, s.resetErr
}

// stubUploads is an in-memory api.UploadStore.
type stubUploads struct {
	saved   []string
	saveErr error
	files   []uploads.FileInfo
	removed []string
	cleared int
}

func (s *stubUploads) Save(filename string, _ []byte) (string, error) {
	if s.saveErr != nil {
		return "", s.saveErr
	}
	s.saved = append(s.saved, filename)
	return "doc-" + filename, nil
}

func (s *stubUploads) List() ([]uploads.FileInfo, error) {
	return s.files, nil
}

func (s *stubUploads) Remove(documentID string) error {
	s.removed = append(s.removed, documentID)
	return nil
}

func (s *stubUploads) Clear() (int, error) {
	return s.cleared, nil
}

func newTestServer(t *testing.T, p *stubPipeline, u *stubUploads) http.Handler {
	t.Helper()
	srv, err := api.NewServer(api.ServerConfig{
		Pipeline: p,
		Uploads:  u,
		Logger:   testutil.DiscardLogger(),
	})
	require.NoError(t, err)
	return srv.Handler()
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestChatHappyPath(t *testing.T) {
	p := &stubPipeline{queryResult: rag.QueryResult{
		Answer:  "Grounded answer.",
		Sources: []rag.Source{{DocumentName: "doc.txt", ChunkExcerpt: "excerpt"}},
	}}
	h := newTestServer(t, p, &stubUploads{})

	rec := postJSON(t, h, "/chat", map[string]any{
		"user_query": "what is ATP?",
		"history": []map[string]string{
			{"role": "user", "text": "hi"},
			{"role": "model", "text": "hello"},
		},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Answer  string       `json:"answer"`
		Sources []rag.Source `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Grounded answer.", resp.Answer)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "doc.txt", resp.Sources[0].DocumentName)

	assert.Equal(t, "what is ATP?", p.lastQuery)
	require.Len(t, p.lastHistory, 2)
	assert.Equal(t, rag.RoleUser, p.lastHistory[0].Role)
	assert.Equal(t, rag.RoleModel, p.lastHistory[1].Role)
	assert.Equal(t, rag.DefaultQueryOptions(), p.lastOpts)
}

func TestChatSourcesNeverNull(t *testing.T) {
	p := &stubPipeline{queryResult: rag.QueryResult{Answer: rag.NoSourcesAnswer}}
	h := newTestServer(t, p, &stubUploads{})

	rec := postJSON(t, h, "/chat", map[string]any{"user_query": "q"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sources":[]`)
}

func TestChatOptionsOverride(t *testing.T) {
	p := &stubPipeline{}
	h := newTestServer(t, p, &stubUploads{})

	rec := postJSON(t, h, "/chat", map[string]any{
		"user_query": "q",
		"options":    map[string]any{"top_k": 5, "use_reranking": false},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, p.lastOpts.TopK)
	assert.False(t, p.lastOpts.UseReranking)
}

func TestChatValidation(t *testing.T) {
	h := newTestServer(t, &stubPipeline{}, &stubUploads{})

	cases := map[string]map[string]any{
		"missing query": {"user_query": "   "},
		"bad role":      {"user_query": "q", "history": []map[string]string{{"role": "system", "text": "x"}}},
		"bad top_k":     {"user_query": "q", "options": map[string]any{"top_k": 0}},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := postJSON(t, h, "/chat", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestChatInvalidJSON(t *testing.T) {
	h := newTestServer(t, &stubPipeline{}, &stubUploads{})

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatGenerationFailure(t *testing.T) {
	p := &stubPipeline{queryErr: &rag.GenerationError{Model: "m", Err: errors.New("timeout")}}
	h := newTestServer(t, p, &stubUploads{})

	rec := postJSON(t, h, "/chat", map[string]any{"user_query": "q"})

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "generation_failed")
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	buf := new(bytes.Buffer)
	mw := multipart.NewWriter(buf)
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return buf, mw.FormDataContentType()
}

func TestUploadSingleFile(t *testing.T) {
	p := &stubPipeline{ingestResult: rag.IngestResult{ChunksIndexed: 3}}
	u := &stubUploads{}
	h := newTestServer(t, p, u)

	body, contentType := multipartBody(t, map[string]string{"notes.txt": "some document text"})
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Files []struct {
			Filename      string `json:"filename"`
			DocumentID    string `json:"document_id"`
			ChunksIndexed int    `json:"chunks_indexed"`
		} `json:"files"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Files, 1)
	assert.Equal(t, "notes.txt", resp.Files[0].Filename)
	assert.Equal(t, "doc-notes.txt", resp.Files[0].DocumentID)
	assert.Equal(t, 3, resp.Files[0].ChunksIndexed)

	require.Len(t, p.ingested, 1)
	assert.Equal(t, "text/plain", p.ingested[0].MediaType)
}

func TestUploadBatchContinuesPastBadFile(t *testing.T) {
	p := &stubPipeline{ingestResult: rag.IngestResult{ChunksIndexed: 1}}
	h := newTestServer(t, p, &stubUploads{})

	body, contentType := multipartBody(t, map[string]string{
		"good.txt":    "fine content",
		"archive.zip": "binary stuff",
	})
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Files []struct {
			Filename string `json:"filename"`
			Error    string `json:"error"`
		} `json:"files"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Files, 2)

	byName := map[string]string{}
	for _, f := range resp.Files {
		byName[f.Filename] = f.Error
	}
	assert.Empty(t, byName["good.txt"])
	assert.Equal(t, "unsupported document type", byName["archive.zip"])
	assert.Len(t, p.ingested, 1, "only the good file reaches the indexer")
}

func TestUploadNoFiles(t *testing.T) {
	h := newTestServer(t, &stubPipeline{}, &stubUploads{})

	body, contentType := multipartBody(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "no_files")
}

func TestUploadNotMultipart(t *testing.T) {
	h := newTestServer(t, &stubPipeline{}, &stubUploads{})

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("plain body"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReset(t *testing.T) {
	p := &stubPipeline{resetCount: 42}
	u := &stubUploads{cleared: 3}
	h := newTestServer(t, p, u)

	req := httptest.NewRequest(http.MethodDelete, "/reset", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"records_cleared":42`)
	assert.Contains(t, rec.Body.String(), `"files_removed":3`)
}

func TestResetFailure(t *testing.T) {
	p := &stubPipeline{resetErr: errors.New("db down")}
	h := newTestServer(t, p, &stubUploads{})

	req := httptest.NewRequest(http.MethodDelete, "/reset", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "reset_failed")
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, &stubPipeline{}, &stubUploads{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestReadyWithoutPool(t *testing.T) {
	h := newTestServer(t, &stubPipeline{}, &stubUploads{})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitKicksIn(t *testing.T) {
	srv, err := api.NewServer(api.ServerConfig{
		Pipeline:  &stubPipeline{},
		Uploads:   &stubUploads{},
		Logger:    testutil.DiscardLogger(),
		RateBurst: 1,
	})
	require.NoError(t, err)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "203.0.113.7:1234"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestNewServerRequiresDependencies(t *testing.T) {
	_, err := api.NewServer(api.ServerConfig{Uploads: &stubUploads{}})
	assert.Error(t, err)

	_, err = api.NewServer(api.ServerConfig{Pipeline: &stubPipeline{}})
	assert.Error(t, err)
}

func TestUploadRemovesFileWhenIndexingFails(t *testing.T) {
	p := &stubPipeline{ingestErr: errors.New("collection unavailable")}
	u := &stubUploads{}
	h := newTestServer(t, p, u)

	body, contentType := multipartBody(t, map[string]string{"notes.txt": "some document text"})
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Files []struct {
			DocumentID string `json:"document_id"`
			Error      string `json:"error"`
		} `json:"files"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Files, 1)
	assert.Equal(t, "could not index file", resp.Files[0].Error)
	assert.Empty(t, resp.Files[0].DocumentID, "a discarded upload must not report a document id")

	// The stored original is discarded: zero records means zero files.
	assert.Equal(t, []string{"doc-notes.txt"}, u.removed)
}

func TestUploadKeepsFileOnPartialIndexing(t *testing.T) {
	p := &stubPipeline{
		ingestResult: rag.IngestResult{ChunksIndexed: 2, FailedChunks: []int{1}},
		ingestErr:    &rag.IngestionError{DocumentID: "doc-notes.txt", FailedChunks: []int{1}, Indexed: 2},
	}
	u := &stubUploads{}
	h := newTestServer(t, p, u)

	body, contentType := multipartBody(t, map[string]string{"notes.txt": "some document text"})
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, u.removed, "a partially indexed document keeps its stored file")
}

func TestListDocuments(t *testing.T) {
	storedAt := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	u := &stubUploads{files: []uploads.FileInfo{
		{DocumentID: "doc-1", Name: "cells.txt", Size: 1234, StoredAt: storedAt},
	}}
	h := newTestServer(t, &stubPipeline{}, u)

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Documents []struct {
			DocumentID string `json:"document_id"`
			Name       string `json:"name"`
			SizeBytes  int64  `json:"size_bytes"`
		} `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Documents, 1)
	assert.Equal(t, "doc-1", resp.Documents[0].DocumentID)
	assert.Equal(t, "cells.txt", resp.Documents[0].Name)
	assert.EqualValues(t, 1234, resp.Documents[0].SizeBytes)
}

func TestListDocumentsEmpty(t *testing.T) {
	h := newTestServer(t, &stubPipeline{}, &stubUploads{})

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"documents":[]`)
}
