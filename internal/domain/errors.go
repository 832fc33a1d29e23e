package domain

import "errors"

var (
	// ErrInvalidQuery signals an empty or malformed search query.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrNotFound signals a missing photo record.
	ErrNotFound = errors.New("not found")
	// ErrModeNotConfigured signals that no vector index is bound for the requested mode.
	ErrModeNotConfigured = errors.New("search mode not configured")
	// ErrEmbeddingProvider signals an embedding provider failure or timeout.
	ErrEmbeddingProvider = errors.New("embedding generation failed")
	// ErrVectorIndex signals a vector index query failure.
	ErrVectorIndex = errors.New("vector index failure")
	// ErrMetadataStore signals that the metadata store is unreachable.
	ErrMetadataStore = errors.New("metadata store failure")
	// ErrSpaceMismatch signals a vector submitted to an index of another embedding space.
	ErrSpaceMismatch = errors.New("embedding space mismatch")
)
