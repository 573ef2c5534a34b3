package rag

import (
	"errors"
	"fmt"
)

// ErrNoContent signals that a document produced no extractable text.
// Non-fatal: the upload caller reports it per file without aborting a batch.
var ErrNoContent = errors.New("no content extracted")

// IngestionError reports partial ingestion failure: some chunks could not be
// embedded or stored. The successful subset is already committed.
type IngestionError struct {
	DocumentID   string
	FailedChunks []int // sequence indices of chunks that failed
	Indexed      int
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingestion of document %q partially failed: %d chunks indexed, %d failed (indices %v)",
		e.DocumentID, e.Indexed, len(e.FailedChunks), e.FailedChunks)
}

// GenerationError reports that the answer-generation model call failed or
// timed out. Surfaced to the caller as a request failure; the core never
// synthesizes a fallback answer.
type GenerationError struct {
	Model string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("answer generation with %s failed: %v", e.Model, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
