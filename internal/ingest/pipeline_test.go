package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/mtlarchive/fonds/internal/domain"
	"github.com/mtlarchive/fonds/internal/vecindex"
)

type memStore struct {
	mu      sync.Mutex
	records []domain.PhotoRecord
	err     error
}

func (s *memStore) Upsert(_ context.Context, records []domain.PhotoRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, records...)
	return nil
}

type stubTextEmbedder struct{}

func (stubTextEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	v := make(domain.Vector, domain.SpaceText.Dimensions())
	v[0] = 1
	return domain.EmbeddingResult{Vector: v}, nil
}

func (stubTextEmbedder) Space() domain.Space { return domain.SpaceText }

type stubImageEmbedder struct {
	err error
}

func (e *stubImageEmbedder) EmbedImage(_ context.Context, _ []byte) (domain.EmbeddingResult, error) {
	if e.err != nil {
		return domain.EmbeddingResult{}, e.err
	}
	v := make(domain.Vector, domain.SpaceVisual.Dimensions())
	v[0] = 1
	return domain.EmbeddingResult{Vector: v}, nil
}

type recordingIndex struct {
	space domain.Space
	mu    sync.Mutex
	items map[string]vecindex.Item
}

func newRecordingIndex(space domain.Space) *recordingIndex {
	return &recordingIndex{space: space, items: make(map[string]vecindex.Item)}
}

func (r *recordingIndex) Query(context.Context, domain.Vector, int) ([]vecindex.Match, error) {
	return nil, nil
}

func (r *recordingIndex) Upsert(_ context.Context, items []vecindex.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range items {
		r.items[it.ID] = it
	}
	return nil
}

func (r *recordingIndex) GetByIDs(context.Context, []string) ([]vecindex.Item, error) {
	return nil, nil
}

func (r *recordingIndex) Space() domain.Space { return r.space }

func (r *recordingIndex) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

func manifestFixture(n int, imageURL string) []ManifestRecord {
	records := make([]ManifestRecord, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, ManifestRecord{
			MetadataFilename: fmt.Sprintf("p%d.json", i),
			Name:             fmt.Sprintf("Photo %d", i),
			CaptionText:      "street view",
			ExternalURL:      imageURL,
			Attributes:       map[string]string{"Date": "1950"},
		})
	}
	return records
}

func TestPipelineRunIngestsBothSpaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte{0xFF, 0xD8, 0xFF})
	}))
	defer srv.Close()

	store := &memStore{}
	textIdx := newRecordingIndex(domain.SpaceText)
	visualIdx := newRecordingIndex(domain.SpaceVisual)

	p := &Pipeline{
		Store:         store,
		Downloader:    NewDownloader(""),
		TextEmbedder:  stubTextEmbedder{},
		ImageEmbedder: &stubImageEmbedder{},
		TextIndex:     textIdx,
		VisualIndex:   visualIdx,
		Workers:       3,
		BatchSize:     4,
		Logger:        zap.NewNop(),
	}

	result, err := p.Run(context.Background(), manifestFixture(10, srv.URL))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Processed != 10 || result.Skipped != 0 {
		t.Fatalf("processed=%d skipped=%d, want 10/0", result.Processed, result.Skipped)
	}
	if len(store.records) != 10 {
		t.Errorf("metadata records = %d, want 10", len(store.records))
	}
	if textIdx.len() != 10 {
		t.Errorf("text index items = %d, want 10", textIdx.len())
	}
	if visualIdx.len() != 10 {
		t.Errorf("visual index items = %d, want 10", visualIdx.len())
	}

	item, ok := visualIdx.items["p0.json"]
	if !ok {
		t.Fatal("missing visual item for p0.json")
	}
	if item.Metadata["name"] != "Photo 0" || item.Metadata["date"] != "1950" {
		t.Errorf("unexpected item metadata: %v", item.Metadata)
	}
}

func TestPipelineSkipsFailedImages(t *testing.T) {
	store := &memStore{}
	visualIdx := newRecordingIndex(domain.SpaceVisual)

	p := &Pipeline{
		Store:         store,
		Downloader:    NewDownloader(""),
		ImageEmbedder: &stubImageEmbedder{err: errors.New("model offline")},
		VisualIndex:   visualIdx,
		Logger:        zap.NewNop(),
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte{0x01})
	}))
	defer srv.Close()

	result, err := p.Run(context.Background(), manifestFixture(5, srv.URL))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Skipped != 5 || result.Processed != 0 {
		t.Fatalf("processed=%d skipped=%d, want 0/5", result.Processed, result.Skipped)
	}
	if visualIdx.len() != 0 {
		t.Errorf("visual index should be empty, has %d items", visualIdx.len())
	}
	// Metadata still lands even when embedding fails.
	if len(store.records) != 5 {
		t.Errorf("metadata records = %d, want 5", len(store.records))
	}
}

func TestPipelineMetadataFailureIsFatal(t *testing.T) {
	store := &memStore{err: errors.New("disk full")}
	p := &Pipeline{
		Store:      store,
		Downloader: NewDownloader(""),
		Logger:     zap.NewNop(),
	}
	if _, err := p.Run(context.Background(), manifestFixture(2, "")); err == nil {
		t.Fatal("expected metadata upsert error")
	}
}

func TestPipelineTextOnly(t *testing.T) {
	store := &memStore{}
	textIdx := newRecordingIndex(domain.SpaceText)

	p := &Pipeline{
		Store:        store,
		Downloader:   NewDownloader(""),
		TextEmbedder: stubTextEmbedder{},
		TextIndex:    textIdx,
		Logger:       zap.NewNop(),
	}

	result, err := p.Run(context.Background(), manifestFixture(3, ""))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Processed != 3 {
		t.Fatalf("processed = %d, want 3", result.Processed)
	}
	if textIdx.len() != 3 {
		t.Errorf("text index items = %d, want 3", textIdx.len())
	}
}
