package memory

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/mtlarchive/fonds/internal/domain"
	"github.com/mtlarchive/fonds/internal/vecindex"
)

func testVector(t *testing.T, dims int, lead ...float32) domain.Vector {
	t.Helper()
	v := make(domain.Vector, dims)
	copy(v, lead)
	v.Normalize()
	return v
}

func TestQueryRanksByCosineSimilarity(t *testing.T) {
	idx := New(domain.SpaceVisual, "", zap.NewNop())

	err := idx.Upsert(context.Background(), []vecindex.Item{
		{ID: "far", Vector: testVector(t, domain.VisualDimensions, 0, 1)},
		{ID: "near", Vector: testVector(t, domain.VisualDimensions, 1, 0.1)},
		{ID: "exact", Vector: testVector(t, domain.VisualDimensions, 1, 0)},
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	query := testVector(t, domain.VisualDimensions, 1, 0)
	matches, err := idx.Query(context.Background(), query, 2)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	if len(matches) != 2 {
		t.Fatalf("Query() returned %d matches, want 2", len(matches))
	}
	if matches[0].ID != "exact" || matches[1].ID != "near" {
		t.Errorf("Query() order = [%s, %s], want [exact, near]", matches[0].ID, matches[1].ID)
	}
	if matches[0].Score < matches[1].Score {
		t.Errorf("scores not descending: %v then %v", matches[0].Score, matches[1].Score)
	}
}

func TestQueryTieBreaksByID(t *testing.T) {
	idx := New(domain.SpaceVisual, "", zap.NewNop())

	same := testVector(t, domain.VisualDimensions, 1, 0)
	err := idx.Upsert(context.Background(), []vecindex.Item{
		{ID: "zebra", Vector: same},
		{ID: "alpha", Vector: same},
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	matches, err := idx.Query(context.Background(), same, 10)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if matches[0].ID != "alpha" || matches[1].ID != "zebra" {
		t.Errorf("equal scores should order by id, got [%s, %s]", matches[0].ID, matches[1].ID)
	}
}

func TestQueryRejectsWrongDimensions(t *testing.T) {
	idx := New(domain.SpaceVisual, "", zap.NewNop())

	wrong := make(domain.Vector, domain.TextDimensions)
	_, err := idx.Query(context.Background(), wrong, 5)
	if !errorsIsSpaceMismatch(err) {
		t.Fatalf("Query() error = %v, want space mismatch", err)
	}
}

func TestUpsertReplacesExisting(t *testing.T) {
	idx := New(domain.SpaceVisual, "", zap.NewNop())
	ctx := context.Background()

	v1 := testVector(t, domain.VisualDimensions, 1, 0)
	v2 := testVector(t, domain.VisualDimensions, 0, 1)
	if err := idx.Upsert(ctx, []vecindex.Item{{ID: "p1", Vector: v1}}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := idx.Upsert(ctx, []vecindex.Item{{ID: "p1", Vector: v2}}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	items, err := idx.GetByIDs(ctx, []string{"p1"})
	if err != nil {
		t.Fatalf("GetByIDs() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("GetByIDs() returned %d items, want 1", len(items))
	}
	if items[0].Vector[1] != v2[1] {
		t.Errorf("second upsert did not replace the stored vector")
	}
}

func TestSnapshotLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.ndjson")
	writeSnapshot(t, path, map[string]domain.Vector{
		"photo-1": testVector(t, domain.VisualDimensions, 1, 0),
		"photo-2": testVector(t, domain.VisualDimensions, 0, 1),
	})

	idx := New(domain.SpaceVisual, path, zap.NewNop())
	matches, err := idx.Query(context.Background(), testVector(t, domain.VisualDimensions, 1, 0), 10)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("Query() returned %d matches, want 2", len(matches))
	}
	if matches[0].ID != "photo-1" {
		t.Errorf("top match = %s, want photo-1", matches[0].ID)
	}
}

func TestSnapshotLoadRejectsWrongDimensions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.ndjson")
	writeSnapshot(t, path, map[string]domain.Vector{
		"bad": make(domain.Vector, domain.TextDimensions),
	})

	idx := New(domain.SpaceVisual, path, zap.NewNop())
	_, err := idx.Query(context.Background(), testVector(t, domain.VisualDimensions, 1, 0), 10)
	if !errorsIsSpaceMismatch(err) {
		t.Fatalf("Query() error = %v, want space mismatch", err)
	}
}

func writeSnapshot(t *testing.T, path string, vectors map[string]domain.Vector) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create snapshot: %v", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	// Deterministic order is not needed; the loader indexes by id.
	for id, vec := range vectors {
		if err := enc.Encode(snapshotLine{ID: id, Values: vec}); err != nil {
			t.Fatalf("encode snapshot line: %v", err)
		}
	}
}

func errorsIsSpaceMismatch(err error) bool {
	return errors.Is(err, domain.ErrSpaceMismatch)
}
