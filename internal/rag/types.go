package rag

import (
	"context"
	"fmt"

	"github.com/nanobook/nanobook/internal/vectorstore"
)

// DocumentMeta describes an uploaded document for indexing and citation.
type DocumentMeta struct {
	ID        string
	Name      string
	MediaType string
	ByteSize  int64
}

// Chunk is a contiguous slice of a document's extracted text.
// Chunks are immutable once created; StartOffset/EndOffset locate the text
// within the source document so consumers can detect overlapping spans.
type Chunk struct {
	ID          string
	DocumentID  string
	Seq         int
	Text        string
	StartOffset int
	EndOffset   int
}

// Role identifies the author of a conversation turn.
// The set is closed: only RoleUser and RoleModel exist.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one exchange in an ordered conversation history.
type Turn struct {
	Role Role
	Text string
}

// UserTurn constructs a user turn.
func UserTurn(text string) Turn { return Turn{Role: RoleUser, Text: text} }

// ModelTurn constructs a model turn.
func ModelTurn(text string) Turn { return Turn{Role: RoleModel, Text: text} }

// RetrievalCandidate pairs a retrieved record with its vector-similarity
// score. Produced fresh per query, never persisted.
type RetrievalCandidate struct {
	Record     vectorstore.Record
	Similarity float32
}

// RerankedResult pairs a candidate with its cross-encoder relevance score.
type RerankedResult struct {
	Record    vectorstore.Record
	Relevance float32
}

// Source attributes one included context chunk to its document.
type Source struct {
	DocumentName string `json:"document_name"`
	ChunkExcerpt string `json:"chunk_excerpt"`
}

// QueryOptions controls a single query-path request.
type QueryOptions struct {
	// TopK is the number of results to keep after reranking. Default 10.
	TopK int

	// UseReranking enables cross-encoder reranking with over-fetch.
	// When disabled the retriever's top K by similarity are used directly.
	UseReranking bool
}

// DefaultQueryOptions returns the per-request defaults.
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{TopK: 10, UseReranking: true}
}

// QueryResult is the outcome of one query-path request.
type QueryResult struct {
	Answer  string
	Sources []Source

	// Degradations lists non-fatal stage fallbacks that occurred
	// (e.g. DegradedRewrite). Informational; never a request failure.
	Degradations []Degradation
}

// Degradation names a non-fatal stage fallback.
type Degradation string

const (
	// DegradedRewrite: the query rewriter was unavailable and the raw
	// query was used for retrieval.
	DegradedRewrite Degradation = "rewrite"

	// DegradedRerank: the cross-encoder scorer was unavailable and
	// similarity order was used.
	DegradedRerank Degradation = "rerank"

	// DegradedRetrieval: the vector collection was unreachable and the
	// request degraded to a no-sources answer.
	DegradedRetrieval Degradation = "retrieval"
)

// IngestResult reports the outcome of indexing one document.
type IngestResult struct {
	ChunksIndexed int
	FailedChunks  []int
}

// Embedder converts text into a fixed-dimension dense vector.
// The same implementation must serve both ingestion and query embedding.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Completer is a single-prompt text completion, used for query rewriting.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ChatModel generates an answer from a system instruction, conversation
// history, and the current context-bearing prompt.
type ChatModel interface {
	Generate(ctx context.Context, system string, history []Turn, prompt string) (string, error)
}

// Scorer evaluates (query, text) pairs jointly with a cross-encoder and
// returns one relevance score per text, in input order.
type Scorer interface {
	Score(ctx context.Context, query string, texts []string) ([]float32, error)
}

// VectorIndex is the collection capability the pipeline depends on.
// *vectorstore.Store satisfies it; tests use an in-memory fake.
type VectorIndex interface {
	Upsert(ctx context.Context, rec vectorstore.Record) error
	DeleteByDocument(ctx context.Context, documentID string) (int64, error)
	Search(ctx context.Context, vec []float32, limit int) ([]vectorstore.Hit, error)
	Reset(ctx context.Context) (int64, error)
}

// ChunkID derives the stable chunk identifier from its parent document and
// sequence index. Zero-padding keeps lexicographic and numeric order in
// agreement, which matters for deterministic tie-breaks.
func ChunkID(documentID string, seq int) string {
	return fmt.Sprintf("%s:%05d", documentID, seq)
}
