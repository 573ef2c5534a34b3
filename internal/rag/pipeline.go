package rag

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// NoSourcesAnswer is returned verbatim when retrieval yields no candidates.
// The generation model is not invoked in that case.
const NoSourcesAnswer = "I could not find any relevant sources in the document collection for this question. Try uploading documents that cover the topic, or rephrase the question."

// Pipeline wires the retrieval stages into the two top-level operations:
// document ingestion and question answering. One Pipeline is shared across
// concurrent requests; all stage dependencies are long-lived.
type Pipeline struct {
	splitter  Splitter
	indexer   *Indexer
	rewriter  *Rewriter
	retriever *Retriever
	reranker  *Reranker
	assembler *Assembler
	generator *Generator
	index     VectorIndex
	logger    *slog.Logger
}

// PipelineConfig carries the stage dependencies for NewPipeline.
type PipelineConfig struct {
	Splitter      Splitter
	Embedder      Embedder
	RewriteModel  Completer
	ChatModel     ChatModel
	Scorer        Scorer
	Index         VectorIndex
	OverFetch     int
	ContextBudget int
	Logger        *slog.Logger
}

// NewPipeline assembles the full retrieval pipeline from its dependencies.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		splitter:  cfg.Splitter,
		indexer:   NewIndexer(cfg.Embedder, cfg.Index, logger),
		rewriter:  NewRewriter(cfg.RewriteModel, logger),
		retriever: NewRetriever(cfg.Embedder, cfg.Index, cfg.OverFetch, logger),
		reranker:  NewReranker(cfg.Scorer, logger),
		assembler: NewAssembler(cfg.ContextBudget, logger),
		generator: NewGenerator(cfg.ChatModel, logger),
		index:     cfg.Index,
		logger:    logger,
	}
}

// Ingest chunks raw document text and indexes it under meta. Re-ingesting
// the same document id replaces its previous chunks. A partial embedding
// failure returns both a usable IngestResult and an *IngestionError.
func (p *Pipeline) Ingest(ctx context.Context, meta DocumentMeta, text string) (IngestResult, error) {
	if strings.TrimSpace(text) == "" {
		return IngestResult{}, fmt.Errorf("document %q: %w", meta.Name, ErrNoContent)
	}
	chunks := slices.Collect(p.splitter.Split(meta.ID, text))
	return p.indexer.Index(ctx, meta, chunks)
}

// Query answers question using retrieved document context and prior turns.
// Stage failures degrade per stage policy; only a generation failure fails
// the request.
func (p *Pipeline) Query(ctx context.Context, question string, history []Turn, opts QueryOptions) (QueryResult, error) {
	if opts.TopK < 1 {
		opts.TopK = DefaultQueryOptions().TopK
	}
	var result QueryResult

	query, rewriteDegraded := p.rewriter.Rewrite(ctx, question, history)
	if rewriteDegraded {
		result.Degradations = append(result.Degradations, DegradedRewrite)
	}

	candidates, err := p.retrieve(ctx, query, opts.TopK, opts.UseReranking)
	if err != nil {
		p.logger.Warn("retrieval unavailable, answering without sources", "error", err)
		result.Degradations = append(result.Degradations, DegradedRetrieval)
		candidates = nil
	}

	if len(candidates) == 0 {
		result.Answer = NoSourcesAnswer
		return result, nil
	}

	ranked, rerankDegraded := p.rank(ctx, query, candidates, opts)
	if rerankDegraded {
		result.Degradations = append(result.Degradations, DegradedRerank)
	}

	contextBlock, sources := p.assembler.Assemble(ranked)
	answer, err := p.generator.Generate(ctx, contextBlock, question, history)
	if err != nil {
		return QueryResult{}, err
	}

	result.Answer = answer
	result.Sources = sources
	return result, nil
}

// retrieve fetches the candidate pool. With reranking enabled the retriever
// over-fetches; without it the pool is exactly k.
func (p *Pipeline) retrieve(ctx context.Context, query string, k int, overFetch bool) ([]RetrievalCandidate, error) {
	if overFetch {
		return p.retriever.Retrieve(ctx, query, k)
	}
	return p.retriever.RetrieveExact(ctx, query, k)
}

// rank applies the reranker, or truncates the similarity order when the
// caller disabled reranking.
func (p *Pipeline) rank(ctx context.Context, query string, candidates []RetrievalCandidate, opts QueryOptions) ([]RerankedResult, bool) {
	if !opts.UseReranking {
		return truncateBySimilarity(candidates, opts.TopK), false
	}
	return p.reranker.Rerank(ctx, query, candidates, opts.TopK)
}

// Reset deletes every record in the collection and returns the count removed.
func (p *Pipeline) Reset(ctx context.Context) (int64, error) {
	n, err := p.index.Reset(ctx)
	if err != nil {
		return 0, fmt.Errorf("resetting collection: %w", err)
	}
	p.logger.Info("collection reset", "records_deleted", n)
	return n, nil
}
