package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mtlarchive/fonds/internal/domain/search/result"
	"github.com/mtlarchive/fonds/internal/logger"
	"github.com/mtlarchive/fonds/internal/metrics"
)

// hydrate resolves vector hits into full photo records, preserving the input
// score order. Hits whose id has no metadata record (the index and the store
// were ingested at different times) are dropped with a warning, never an
// error: a stale index entry must not take down the whole response.
func (s *Service) hydrate(ctx context.Context, hits []result.Hit) ([]result.Item, error) {
	if len(hits) == 0 {
		return []result.Item{}, nil
	}

	ids := make([]string, len(hits))
	for i := range hits {
		ids[i] = hits[i].ID()
	}

	records, err := s.store.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrate hits: %w", err)
	}

	byID := make(map[string]int, len(records))
	for i := range records {
		byID[records[i].ID] = i
	}

	items := make([]result.Item, 0, len(hits))
	for i := range hits {
		pos, ok := byID[hits[i].ID()]
		if !ok {
			metrics.DanglingHitsTotal.Inc()
			logger.FromContext(ctx).Warn("Dropping index hit without metadata record",
				zap.String("id", hits[i].ID()))
			continue
		}
		items = append(items, result.NewItem(records[pos], hits[i]))
	}
	return items, nil
}
