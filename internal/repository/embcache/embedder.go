// Package embcache decorates an embedder with a bounded in-process LRU
// cache. Queries repeat heavily against a fixed collection, so caching by
// normalized query text saves most provider round trips.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/mtlarchive/fonds/internal/domain"
	"github.com/mtlarchive/fonds/internal/metrics"
)

// CachedEmbedder caches embedding vectors keyed by a digest of the input text.
type CachedEmbedder struct {
	inner  domain.Embedder
	cache  *lru.Cache[string, domain.Vector]
	logger *zap.Logger
}

var _ domain.Embedder = (*CachedEmbedder)(nil)

// New creates a caching decorator holding at most size entries.
func New(inner domain.Embedder, size int, logger *zap.Logger) (*CachedEmbedder, error) {
	cache, err := lru.New[string, domain.Vector](size)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &CachedEmbedder{inner: inner, cache: cache, logger: logger}, nil
}

// Space implements domain.Embedder.
func (c *CachedEmbedder) Space() domain.Space { return c.inner.Space() }

// Embed returns a cached vector or calls the inner embedder.
// Cache hit: TotalTokens = 0 (no real tokens consumed).
// Cache miss: full EmbeddingResult from inner.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := cacheKey(text)
	space := string(c.inner.Space())

	if vec, ok := c.cache.Get(key); ok {
		metrics.EmbeddingCacheTotal.WithLabelValues(space, "hit").Inc()
		return domain.EmbeddingResult{Vector: vec}, nil
	}
	metrics.EmbeddingCacheTotal.WithLabelValues(space, "miss").Inc()

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}

	c.cache.Add(key, result.Vector)
	return result, nil
}

// cacheKey digests trimmed, case-folded text so trivially different spellings
// of the same query share an entry.
func cacheKey(text string) string {
	norm := strings.ToLower(strings.TrimSpace(text))
	h := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(h[:])
}
