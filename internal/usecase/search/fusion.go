package search

import (
	"sort"

	"github.com/mtlarchive/fonds/internal/domain/search/mode"
	"github.com/mtlarchive/fonds/internal/domain/search/result"
)

// Hybrid fusion weights by query length. Short queries ("church", "old
// tram") name concrete visual subjects, so the joint image space dominates;
// long descriptive queries carry more signal for the text space.
const (
	shortQueryVisualWeight = 0.8 // 1-2 tokens
	midQueryVisualWeight   = 0.6 // 3-4 tokens
	longQueryVisualWeight  = 0.4 // 5+ tokens
)

// visualWeight picks the visual-space weight for a query of n tokens. The
// semantic weight is its complement.
func visualWeight(tokenCount int) float64 {
	switch {
	case tokenCount <= 2:
		return shortQueryVisualWeight
	case tokenCount <= 4:
		return midQueryVisualWeight
	default:
		return longQueryVisualWeight
	}
}

// fuseWeighted merges semantic and visual rankings into one list scored by
// the weighted sum of per-space similarities. A photo absent from one space
// contributes zero for that space rather than being dropped, so a strong
// single-space match still ranks. Ties order by id for stable output.
func fuseWeighted(semantic, visual []result.Hit, tokenCount, limit int) []result.Hit {
	vw := visualWeight(tokenCount)
	sw := 1 - vw

	combined := make(map[string]float64, len(semantic)+len(visual))
	for i := range semantic {
		combined[semantic[i].ID()] += sw * semantic[i].Score()
	}
	for i := range visual {
		combined[visual[i].ID()] += vw * visual[i].Score()
	}

	fused := make([]result.Hit, 0, len(combined))
	for id, score := range combined {
		fused = append(fused, result.NewHit(id, score, mode.Hybrid))
	}

	sort.Slice(fused, func(a, b int) bool {
		if fused[a].Score() != fused[b].Score() {
			return fused[a].Score() > fused[b].Score()
		}
		return fused[a].ID() < fused[b].ID()
	})

	if len(fused) > limit {
		fused = fused[:limit]
	}
	return fused
}
