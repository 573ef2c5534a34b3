package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nanobook/nanobook/internal/rag"
	"github.com/nanobook/nanobook/internal/uploads"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:8080"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout bounds request header reads (Slowloris).
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	// Uploads share this budget, so it is generous.
	ReadTimeout = 60 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	// Generation can take a while on long contexts.
	WriteTimeout = 120 * time.Second

	// IdleTimeout bounds keep-alive connections between requests.
	IdleTimeout = 120 * time.Second
)

// Pipeline is the retrieval core the API depends on.
// *rag.Pipeline satisfies it; tests use a stub.
type Pipeline interface {
	Query(ctx context.Context, question string, history []rag.Turn, opts rag.QueryOptions) (rag.QueryResult, error)
	Ingest(ctx context.Context, meta rag.DocumentMeta, text string) (rag.IngestResult, error)
	Reset(ctx context.Context) (int64, error)
}

// UploadStore persists original uploads alongside the index.
// *uploads.Store satisfies it.
type UploadStore interface {
	Save(filename string, data []byte) (string, error)
	List() ([]uploads.FileInfo, error)
	Remove(documentID string) error
	Clear() (int, error)
}

// ServerConfig carries the dependencies for NewServer.
type ServerConfig struct {
	Pipeline  Pipeline      // Required
	Uploads   UploadStore   // Required
	Pool      *pgxpool.Pool // Optional: nil disables DB check in /ready
	Logger    *slog.Logger  // Optional
	RateBurst int           // Rate limiter burst per IP (0 = default 30)
}

// Server is the NanoBook HTTP server.
type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger
	burst  int
}

// NewServer creates a server with all routes registered.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if cfg.Uploads == nil {
		return nil, errors.New("upload store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 30
	}

	mux := http.NewServeMux()

	ch := &chatHandler{pipeline: cfg.Pipeline, logger: logger}
	uh := &uploadHandler{pipeline: cfg.Pipeline, uploads: cfg.Uploads, logger: logger}
	rh := &resetHandler{pipeline: cfg.Pipeline, uploads: cfg.Uploads, logger: logger}
	dh := &documentsHandler{uploads: cfg.Uploads, logger: logger}

	mux.HandleFunc("POST /chat", ch.send)
	mux.HandleFunc("POST /upload", uh.upload)
	mux.HandleFunc("GET /documents", dh.list)
	mux.HandleFunc("DELETE /reset", rh.reset)
	mux.HandleFunc("GET /health", health)
	mux.Handle("GET /ready", readiness(cfg.Pool))

	return &Server{mux: mux, logger: logger, burst: burst}, nil
}

// Handler returns the server's handler with middleware applied.
// Order: recovery → logging → rate limit → routes.
func (s *Server) Handler() http.Handler {
	rl := newRateLimiter(1.0, s.burst)
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger),
		rateLimitMiddleware(rl, s.logger),
	)
}

// Run starts the HTTP server and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
