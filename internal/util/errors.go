package util

import "errors"

var (
	// ErrConfig marks invalid chunking/embedding configuration. Fatal at
	// startup, never retried.
	ErrConfig = errors.New("invalid configuration")

	// ErrEmbeddingUnavailable means the embedding capability failed after
	// all local retries were exhausted.
	ErrEmbeddingUnavailable = errors.New("embedding capability unavailable")

	// ErrGenerationUnavailable means the answer-generation capability failed.
	ErrGenerationUnavailable = errors.New("generation capability unavailable")

	// ErrDimensionMismatch means an embedding's length disagrees with the
	// dimension the vector index was created with.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrNotFound means an operation referenced an unknown document id.
	ErrNotFound = errors.New("document not found")

	// ErrStorage wraps persistence-layer failures during ingest or delete.
	ErrStorage = errors.New("storage failure")
)
