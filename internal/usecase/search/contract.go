package search

import (
	"context"

	"github.com/mtlarchive/fonds/internal/domain"
	"github.com/mtlarchive/fonds/internal/vecindex"
)

// MetadataStore defines the photo metadata contract for search operations.
type MetadataStore interface {
	GetByIDs(ctx context.Context, ids []string) ([]domain.PhotoRecord, error)
	SearchSubstring(ctx context.Context, query string, limit int) ([]domain.PhotoRecord, error)
}

// Embedder vectorizes query text into one embedding space.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Index answers top-K similarity queries for one embedding space.
type Index interface {
	Query(ctx context.Context, vector domain.Vector, topK int) ([]vecindex.Match, error)
}
