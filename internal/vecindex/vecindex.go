// Package vecindex defines the vector index contract shared by the remote
// ANN backends and the in-memory brute-force scan.
package vecindex

import (
	"context"

	"github.com/mtlarchive/fonds/internal/domain"
)

// MaxTopK bounds result size and cost for every backend.
const MaxTopK = 100

// Match is a single ANN hit: the photo id with its cosine similarity.
type Match struct {
	ID    string
	Score float64
}

// Item is an (id, vector, metadata) triple for upsert and export.
type Item struct {
	ID       string
	Vector   domain.Vector
	Metadata map[string]string
}

// Index answers top-K cosine similarity queries for one embedding space.
// Upsert and GetByIDs serve the offline ingestion and export paths only;
// the live query path never mutates an index.
type Index interface {
	Query(ctx context.Context, vector domain.Vector, topK int) ([]Match, error)
	Upsert(ctx context.Context, items []Item) error
	GetByIDs(ctx context.Context, ids []string) ([]Item, error)
	Space() domain.Space
}

// ClampTopK bounds topK to [1, MaxTopK].
func ClampTopK(topK int) int {
	if topK <= 0 {
		return 1
	}
	if topK > MaxTopK {
		return MaxTopK
	}
	return topK
}
