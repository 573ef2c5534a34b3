// Package vectorstore persists document chunks and their embeddings in
// PostgreSQL + pgvector and serves cosine-similarity search over them.
//
// The collection's embedding dimension (384) and distance metric (cosine)
// are fixed when the chunks table is created (db/migrations) and verified
// on first use; changing embedding models requires a full reset and
// re-ingestion, never an in-place mix of dimensions or metrics.
//
// Store is safe for concurrent use. Reads run concurrently; Reset is
// exclusive, so a completed reset is never followed by a query observing
// pre-reset records.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/singleflight"
)

// Dimension is the embedding dimension of the collection. It must match the
// vector(384) column in db/migrations and the embedder's output.
const Dimension = 384

// searchTimeout bounds a single similarity query.
const searchTimeout = 10 * time.Second

// ErrDimensionMismatch indicates the collection schema does not match the
// expected embedding dimension. Recovery requires a reset and re-ingestion.
var ErrDimensionMismatch = errors.New("collection embedding dimension mismatch")

// Record is the persisted unit of the collection: one chunk, its embedding,
// and the document metadata needed for citation.
type Record struct {
	ID           string
	DocumentID   string
	DocumentName string
	MediaType    string
	Seq          int
	StartOffset  int
	EndOffset    int
	Content      string
	Embedding    []float32
	CreatedAt    time.Time
}

// Hit is a search result: a record plus its cosine similarity to the query.
type Hit struct {
	Record     Record
	Similarity float32
}

// DB is the subset of pgxpool.Pool the store depends on.
// Defined here, by the consumer, so tests can substitute a fake.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store manages the chunks collection.
type Store struct {
	db     DB
	logger *slog.Logger

	// mu lets ingestion and queries proceed concurrently (RLock) while
	// Reset takes the write lock, guaranteeing no torn reads across a
	// reset boundary.
	mu sync.RWMutex

	// ready memoizes the one-time schema verification; initGroup collapses
	// concurrent first uses into a single check.
	ready     atomic.Bool
	initGroup singleflight.Group
}

// New creates a Store. logger may be nil (defaults to slog.Default()).
func New(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// ensureReady verifies once that the chunks table exists with the expected
// embedding dimension. Concurrent first use performs the check exactly once;
// a failed check is retried on the next call rather than memoized.
func (s *Store) ensureReady(ctx context.Context) error {
	if s.ready.Load() {
		return nil
	}

	_, err, _ := s.initGroup.Do("init", func() (any, error) {
		var colType string
		row := s.db.QueryRow(ctx,
			`SELECT format_type(atttypid, atttypmod)
			   FROM pg_attribute
			  WHERE attrelid = 'chunks'::regclass AND attname = 'embedding'`)
		if err := row.Scan(&colType); err != nil {
			return nil, fmt.Errorf("verifying collection schema: %w", err)
		}

		want := fmt.Sprintf("vector(%d)", Dimension)
		if colType != want {
			return nil, fmt.Errorf("%w: have %s, want %s", ErrDimensionMismatch, colType, want)
		}

		s.ready.Store(true)
		s.logger.Debug("vector collection ready", "dimension", Dimension, "metric", "cosine")
		return nil, nil
	})
	return err
}

// Upsert inserts or replaces a record by chunk ID.
func (s *Store) Upsert(ctx context.Context, rec Record) error {
	if len(rec.Embedding) != Dimension {
		return fmt.Errorf("%w: record %q has %d dimensions, want %d",
			ErrDimensionMismatch, rec.ID, len(rec.Embedding), Dimension)
	}
	if err := s.ensureReady(ctx); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO chunks
		   (id, document_id, document_name, media_type, seq, start_offset, end_offset, content, embedding, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
		   document_id = EXCLUDED.document_id,
		   document_name = EXCLUDED.document_name,
		   media_type = EXCLUDED.media_type,
		   seq = EXCLUDED.seq,
		   start_offset = EXCLUDED.start_offset,
		   end_offset = EXCLUDED.end_offset,
		   content = EXCLUDED.content,
		   embedding = EXCLUDED.embedding,
		   created_at = EXCLUDED.created_at`,
		rec.ID, rec.DocumentID, rec.DocumentName, rec.MediaType, rec.Seq,
		rec.StartOffset, rec.EndOffset, rec.Content,
		pgvector.NewVector(rec.Embedding), createdAt)
	if err != nil {
		return fmt.Errorf("upserting chunk %q: %w", rec.ID, err)
	}
	return nil
}

// DeleteByDocument removes all records belonging to a document.
// Used by the indexer for UPSERT-by-document emulation: re-ingesting a
// document ID replaces rather than duplicates its records.
func (s *Store) DeleteByDocument(ctx context.Context, documentID string) (int64, error) {
	if err := s.ensureReady(ctx); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	tag, err := s.db.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks for document %q: %w", documentID, err)
	}
	return tag.RowsAffected(), nil
}

// Search returns up to limit records ranked by cosine similarity to vec,
// highest first. Ties in distance are broken by chunk ID for determinism.
func (s *Store) Search(ctx context.Context, vec []float32, limit int) ([]Hit, error) {
	if len(vec) != Dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, want %d",
			ErrDimensionMismatch, len(vec), Dimension)
	}
	if limit <= 0 {
		return nil, nil
	}
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(queryCtx,
		`SELECT id, document_id, document_name, media_type, seq, start_offset, end_offset,
		        content, created_at, 1 - (embedding <=> $1) AS similarity
		   FROM chunks
		  ORDER BY embedding <=> $1, id
		  LIMIT $2`,
		pgvector.NewVector(vec), limit)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.Record.ID, &h.Record.DocumentID, &h.Record.DocumentName,
			&h.Record.MediaType, &h.Record.Seq, &h.Record.StartOffset, &h.Record.EndOffset,
			&h.Record.Content, &h.Record.CreatedAt, &h.Similarity); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search rows: %w", err)
	}
	return hits, nil
}

// Count returns the number of records in the collection.
func (s *Store) Count(ctx context.Context) (int64, error) {
	if err := s.ensureReady(ctx); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

// Reset clears the entire collection and returns the number of records
// removed. It holds the write lock for the duration, so in-flight reads
// complete first and later reads never observe pre-reset records. Count
// and truncate run in one transaction; TRUNCATE takes an ACCESS EXCLUSIVE
// lock, so the returned count cannot drift under a cross-process writer.
func (s *Store) Reset(ctx context.Context) (int64, error) {
	if err := s.ensureReady(ctx); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning reset transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `LOCK TABLE chunks IN ACCESS EXCLUSIVE MODE`); err != nil {
		return 0, fmt.Errorf("locking chunks for reset: %w", err)
	}

	var n int64
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks before reset: %w", err)
	}

	if _, err := tx.Exec(ctx, `TRUNCATE chunks`); err != nil {
		return 0, fmt.Errorf("truncating chunks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing reset: %w", err)
	}

	s.logger.Info("vector collection reset", "records_cleared", n)
	return n, nil
}
