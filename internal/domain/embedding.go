package domain

import "context"

// Embedder is the shared text vectorization contract between layers.
// Implementations return unit-normalized vectors; input longer than the
// model limit is truncated, never rejected.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
	Space() Space
}

// ImageEmbedder vectorizes raw image bytes into the joint visual space.
// Used only by the offline ingestion pass.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, image []byte) (EmbeddingResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the embedding vector and token usage through the
// decorator chain.
type EmbeddingResult struct {
	Vector       Vector
	PromptTokens int
	TotalTokens  int
}
