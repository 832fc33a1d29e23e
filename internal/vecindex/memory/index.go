// Package memory implements vecindex.Index as a brute-force cosine scan over
// an in-memory snapshot. It serves the same contract as the remote ANN
// backends, sized for a fixed collection of a few tens of thousands of
// vectors where exact scan latency is acceptable.
package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mtlarchive/fonds/internal/domain"
	"github.com/mtlarchive/fonds/internal/vecindex"
)

// Index is an in-memory exact-scan vector index. The snapshot file is loaded
// lazily on first use; concurrent first callers share one load via
// single-flight.
type Index struct {
	space    domain.Space
	path     string
	logger   *zap.Logger
	loadOnce singleflight.Group

	mu      sync.RWMutex
	loaded  bool
	vectors []vecindex.Item
	byID    map[string]int
}

var _ vecindex.Index = (*Index)(nil)

// New creates a memory index over an NDJSON snapshot file. An empty path
// starts the index empty, which the ingestion path can populate via Upsert.
func New(space domain.Space, snapshotPath string, logger *zap.Logger) *Index {
	return &Index{
		space:  space,
		path:   snapshotPath,
		logger: logger,
		byID:   make(map[string]int),
	}
}

// Space returns the embedding space this index serves.
func (i *Index) Space() domain.Space { return i.space }

// Query scans all vectors and returns the topK most similar, descending by
// score with id as the tie-break so repeated queries rank equal scores
// identically.
func (i *Index) Query(ctx context.Context, vector domain.Vector, topK int) ([]vecindex.Match, error) {
	if err := vector.CheckSpace(i.space); err != nil {
		return nil, err
	}
	if err := i.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	topK = vecindex.ClampTopK(topK)

	i.mu.RLock()
	matches := make([]vecindex.Match, 0, len(i.vectors))
	for _, item := range i.vectors {
		matches = append(matches, vecindex.Match{ID: item.ID, Score: vector.Dot(item.Vector)})
	}
	i.mu.RUnlock()

	sort.Slice(matches, func(a, b int) bool {
		if matches[a].Score != matches[b].Score {
			return matches[a].Score > matches[b].Score
		}
		return matches[a].ID < matches[b].ID
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Upsert inserts or replaces vectors by id.
func (i *Index) Upsert(ctx context.Context, items []vecindex.Item) error {
	if err := i.ensureLoaded(ctx); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, item := range items {
		if err := item.Vector.CheckSpace(i.space); err != nil {
			return err
		}
		if pos, ok := i.byID[item.ID]; ok {
			i.vectors[pos] = item
			continue
		}
		i.byID[item.ID] = len(i.vectors)
		i.vectors = append(i.vectors, item)
	}
	return nil
}

// GetByIDs returns the stored vectors for the given ids; unknown ids are skipped.
func (i *Index) GetByIDs(ctx context.Context, ids []string) ([]vecindex.Item, error) {
	if err := i.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]vecindex.Item, 0, len(ids))
	for _, id := range ids {
		if pos, ok := i.byID[id]; ok {
			out = append(out, i.vectors[pos])
		}
	}
	return out, nil
}

// snapshotLine is one NDJSON record in the exported vector snapshot.
type snapshotLine struct {
	ID     string        `json:"id"`
	Values domain.Vector `json:"values"`
}

func (i *Index) ensureLoaded(_ context.Context) error {
	i.mu.RLock()
	loaded := i.loaded
	i.mu.RUnlock()
	if loaded {
		return nil
	}

	_, err, _ := i.loadOnce.Do("load", func() (any, error) {
		return nil, i.load()
	})
	return err
}

func (i *Index) load() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.loaded {
		return nil
	}
	if i.path == "" {
		i.loaded = true
		return nil
	}

	f, err := os.Open(i.path)
	if err != nil {
		return fmt.Errorf("%w: open snapshot: %w", domain.ErrVectorIndex, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec snapshotLine
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("%w: snapshot line %d: %w", domain.ErrVectorIndex, line, err)
		}
		if err := rec.Values.CheckSpace(i.space); err != nil {
			return fmt.Errorf("snapshot line %d: %w", line, err)
		}
		i.byID[rec.ID] = len(i.vectors)
		i.vectors = append(i.vectors, vecindex.Item{ID: rec.ID, Vector: rec.Values})
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: read snapshot: %w", domain.ErrVectorIndex, err)
	}

	i.loaded = true
	i.logger.Info("Loaded vector snapshot",
		zap.String("path", i.path),
		zap.String("space", string(i.space)),
		zap.Int("vectors", len(i.vectors)),
	)
	return nil
}
