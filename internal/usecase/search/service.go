// Package search routes queries across lexical, semantic, visual, and hybrid
// strategies and hydrates vector hits into full photo records.
package search

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mtlarchive/fonds/internal/domain"
	"github.com/mtlarchive/fonds/internal/domain/search/mode"
	"github.com/mtlarchive/fonds/internal/domain/search/request"
	"github.com/mtlarchive/fonds/internal/domain/search/result"
	"github.com/mtlarchive/fonds/internal/logger"
	"github.com/mtlarchive/fonds/internal/metrics"
)

// Channel bundles the embedder and index for one embedding space. A nil
// channel means the mode is not configured for this deployment.
type Channel struct {
	Embedder Embedder
	Index    Index
}

// Options tune search behavior.
type Options struct {
	// TopK is how many candidates each vector index is asked for before
	// fusion and truncation.
	TopK int
	// LexicalFallback degrades semantic, visual, and hybrid searches to a
	// lexical scan when the embedding provider fails, instead of erroring.
	LexicalFallback bool
}

// Response carries hydrated items plus the mode that actually served them.
type Response struct {
	Items []result.Item
	// Degraded is set when an embedding failure forced a lexical fallback.
	Degraded bool
}

// Service handles photo search across all modes.
type Service struct {
	store    MetadataStore
	semantic *Channel
	visual   *Channel
	opts     Options
}

// New creates a search service. Either channel may be nil when the
// corresponding index is not configured.
func New(store MetadataStore, semantic, visual *Channel, opts Options) *Service {
	if opts.TopK <= 0 {
		opts.TopK = 50
	}
	return &Service{store: store, semantic: semantic, visual: visual, opts: opts}
}

// Search executes a search in the requested mode.
func (s *Service) Search(ctx context.Context, req *request.Request) (Response, error) {
	resp, err := s.dispatch(ctx, req)

	status := "ok"
	switch {
	case err != nil:
		status = "error"
	case resp.Degraded:
		status = "degraded"
	}
	metrics.SearchRequestsTotal.WithLabelValues(string(req.Mode()), status).Inc()

	return resp, err
}

func (s *Service) dispatch(ctx context.Context, req *request.Request) (Response, error) {
	switch req.Mode() {
	case mode.Lexical:
		items, err := s.searchLexical(ctx, req)
		return Response{Items: items}, err
	case mode.Semantic:
		return s.searchVector(ctx, req, s.semantic)
	case mode.Visual:
		return s.searchVector(ctx, req, s.visual)
	case mode.Hybrid:
		return s.searchHybrid(ctx, req)
	default:
		return Response{}, fmt.Errorf("%w: unsupported search mode %q", domain.ErrInvalidQuery, req.Mode())
	}
}

func (s *Service) searchLexical(ctx context.Context, req *request.Request) ([]result.Item, error) {
	records, err := s.store.SearchSubstring(ctx, req.Query(), req.Limit())
	if err != nil {
		return nil, fmt.Errorf("substring search: %w", err)
	}
	items := make([]result.Item, 0, len(records))
	for _, rec := range records {
		items = append(items, result.NewLexicalItem(rec))
	}
	return items, nil
}

// searchVector runs a single-space search: embed, query, hydrate.
func (s *Service) searchVector(ctx context.Context, req *request.Request, ch *Channel) (Response, error) {
	if ch == nil {
		return Response{}, fmt.Errorf("%s search: %w", req.Mode(), domain.ErrModeNotConfigured)
	}

	hits, err := s.queryChannel(ctx, ch, req.Query(), req.Mode())
	if err != nil {
		if resp, ok := s.fallback(ctx, req, err); ok {
			return resp, nil
		}
		return Response{}, err
	}

	if len(hits) > req.Limit() {
		hits = hits[:req.Limit()]
	}
	items, err := s.hydrate(ctx, hits)
	if err != nil {
		return Response{}, err
	}
	return Response{Items: items}, nil
}

// searchHybrid queries both spaces concurrently and fuses the rankings.
// Hybrid requires both channels; a deployment with only one space should
// use that mode directly.
func (s *Service) searchHybrid(ctx context.Context, req *request.Request) (Response, error) {
	if s.semantic == nil || s.visual == nil {
		return Response{}, fmt.Errorf("hybrid search: %w", domain.ErrModeNotConfigured)
	}

	var semanticHits, visualHits []result.Hit
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := s.queryChannel(gctx, s.semantic, req.Query(), mode.Semantic)
		semanticHits = hits
		return err
	})
	g.Go(func() error {
		hits, err := s.queryChannel(gctx, s.visual, req.Query(), mode.Visual)
		visualHits = hits
		return err
	})
	if err := g.Wait(); err != nil {
		if resp, ok := s.fallback(ctx, req, err); ok {
			return resp, nil
		}
		return Response{}, err
	}

	fused := fuseWeighted(semanticHits, visualHits, req.TokenCount(), req.Limit())
	items, err := s.hydrate(ctx, fused)
	if err != nil {
		return Response{}, err
	}
	return Response{Items: items}, nil
}

// queryChannel embeds the query text and runs the KNN lookup for one space.
func (s *Service) queryChannel(ctx context.Context, ch *Channel, query string, m mode.Mode) ([]result.Hit, error) {
	embResult, err := ch.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := ch.Index.Query(ctx, embResult.Vector, s.opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	hits := make([]result.Hit, 0, len(matches))
	for _, match := range matches {
		hits = append(hits, result.NewHit(match.ID, match.Score, m))
	}
	return hits, nil
}

// fallback degrades to a lexical scan when enabled and the failure came from
// the embedding provider. Index and store failures still surface as errors.
func (s *Service) fallback(ctx context.Context, req *request.Request, cause error) (Response, bool) {
	if !s.opts.LexicalFallback || !errors.Is(cause, domain.ErrEmbeddingProvider) {
		return Response{}, false
	}

	logger.FromContext(ctx).Warn("Embedding failed, falling back to lexical search",
		zap.String("mode", string(req.Mode())),
		zap.Error(cause),
	)

	items, err := s.searchLexical(ctx, req)
	if err != nil {
		return Response{}, false
	}
	return Response{Items: items, Degraded: true}, true
}
