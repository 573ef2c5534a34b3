// Package rag implements the retrieval-augmented generation core of
// nanobook: document chunking, embedding and indexing into the vector
// collection, query rewriting, over-fetch retrieval, cross-encoder
// reranking, context assembly, and history-aware grounded answer
// generation.
//
// # Architecture
//
//	Ingestion path (upload-triggered):
//
//	  Splitter → Indexer → vector collection
//
//	Query path (per request):
//
//	  Rewriter → Retriever → Reranker → Assembler → Generator
//
// Each stage depends on the prior stage's output; independent requests run
// concurrently against the shared collection and model clients.
//
// # Degradation policy
//
// Optional-enhancement stages never fail a request: a rewriter failure falls
// back to the raw query, a reranker failure falls back to similarity order,
// and an unreachable or empty collection produces a "no relevant sources
// found" answer with zero sources. Mandatory-stage failures (answer
// generation) surface as *GenerationError; the core never fabricates a
// substitute answer or citation.
//
// # Capability handles
//
// Model access is abstracted behind small consumer-defined interfaces
// (Embedder, Completer, ChatModel, Scorer, VectorIndex) injected into each
// stage, so tests substitute deterministic stubs and production wires the
// shared long-lived clients from internal/model and internal/vectorstore.
package rag
