package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mtlarchive/fonds/internal/domain"
	"github.com/mtlarchive/fonds/internal/vecindex"
)

// MetadataWriter persists photo records.
type MetadataWriter interface {
	Upsert(ctx context.Context, records []domain.PhotoRecord) error
}

// Pipeline pushes manifest records through download, embedding, and upsert.
// Records stream through a worker pool in batches; a failed record is
// counted and skipped, never fatal.
type Pipeline struct {
	Store         MetadataWriter
	Downloader    *Downloader
	TextEmbedder  domain.Embedder      // nil skips the text index
	ImageEmbedder domain.ImageEmbedder // nil skips the visual index
	TextIndex     vecindex.Index
	VisualIndex   vecindex.Index
	Workers       int
	BatchSize     int
	Logger        *zap.Logger
}

// Result is the ingestion outcome.
type Result struct {
	Processed int64
	Skipped   int64
	Duration  time.Duration
}

// Run ingests all records: metadata first, then both vector spaces.
func (p *Pipeline) Run(ctx context.Context, records []ManifestRecord) (Result, error) {
	workers := p.Workers
	if workers <= 0 {
		workers = 4
	}
	batchSize := p.BatchSize
	if batchSize <= 0 {
		batchSize = 8
	}

	start := time.Now()

	// Metadata goes in first so index hits always hydrate.
	photos := make([]domain.PhotoRecord, 0, len(records))
	for i := range records {
		photos = append(photos, records[i].Photo())
	}
	if err := p.Store.Upsert(ctx, photos); err != nil {
		return Result{}, fmt.Errorf("upsert metadata: %w", err)
	}
	p.Logger.Info("Metadata upserted", zap.Int("records", len(photos)))

	batches := make(chan []ManifestRecord, workers*2)
	var wg sync.WaitGroup
	var processed, skipped atomic.Int64

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, batches, &processed, &skipped)
		}()
	}

	go func() {
		defer close(batches)
		for s := 0; s < len(records); s += batchSize {
			e := s + batchSize
			if e > len(records) {
				e = len(records)
			}
			select {
			case batches <- records[s:e]:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()

	result := Result{
		Processed: processed.Load(),
		Skipped:   skipped.Load(),
		Duration:  time.Since(start),
	}
	return result, ctx.Err()
}

func (p *Pipeline) worker(ctx context.Context, batches <-chan []ManifestRecord, processed, skipped *atomic.Int64) {
	for batch := range batches {
		if ctx.Err() != nil {
			return
		}

		textItems := make([]vecindex.Item, 0, len(batch))
		visualItems := make([]vecindex.Item, 0, len(batch))

		for i := range batch {
			rec := &batch[i]

			if item, ok := p.embedText(ctx, rec); ok {
				textItems = append(textItems, item)
			}
			if item, ok := p.embedImage(ctx, rec); ok {
				visualItems = append(visualItems, item)
			} else if p.ImageEmbedder != nil {
				skipped.Add(1)
				continue
			}
			processed.Add(1)
		}

		p.upsert(ctx, p.TextIndex, textItems, skipped)
		p.upsert(ctx, p.VisualIndex, visualItems, skipped)
	}
}

func (p *Pipeline) embedText(ctx context.Context, rec *ManifestRecord) (vecindex.Item, bool) {
	if p.TextEmbedder == nil || p.TextIndex == nil {
		return vecindex.Item{}, false
	}
	photo := rec.Photo()
	text := photo.EmbeddingText()
	if text == "" {
		return vecindex.Item{}, false
	}

	result, err := p.TextEmbedder.Embed(ctx, text)
	if err != nil {
		p.Logger.Warn("Text embedding failed", zap.String("id", rec.ID()), zap.Error(err))
		return vecindex.Item{}, false
	}
	return vecindex.Item{ID: rec.ID(), Vector: result.Vector, Metadata: itemMetadata(rec)}, true
}

func (p *Pipeline) embedImage(ctx context.Context, rec *ManifestRecord) (vecindex.Item, bool) {
	if p.ImageEmbedder == nil || p.VisualIndex == nil {
		return vecindex.Item{}, false
	}

	image, err := p.Downloader.Fetch(ctx, rec)
	if err != nil {
		p.Logger.Warn("Image download failed", zap.String("id", rec.ID()), zap.Error(err))
		return vecindex.Item{}, false
	}

	result, err := p.ImageEmbedder.EmbedImage(ctx, image)
	if err != nil {
		p.Logger.Warn("Image embedding failed", zap.String("id", rec.ID()), zap.Error(err))
		return vecindex.Item{}, false
	}
	return vecindex.Item{ID: rec.ID(), Vector: result.Vector, Metadata: itemMetadata(rec)}, true
}

func (p *Pipeline) upsert(ctx context.Context, idx vecindex.Index, items []vecindex.Item, skipped *atomic.Int64) {
	if idx == nil || len(items) == 0 {
		return
	}
	if err := idx.Upsert(ctx, items); err != nil {
		skipped.Add(int64(len(items)))
		p.Logger.Error("Index upsert failed",
			zap.String("space", string(idx.Space())),
			zap.Int("items", len(items)),
			zap.Error(err),
		)
	}
}

func itemMetadata(rec *ManifestRecord) map[string]string {
	md := make(map[string]string, 3)
	if rec.Name != "" {
		md["name"] = rec.Name
	}
	if date := rec.Attributes["Date"]; date != "" {
		md["date"] = date
	}
	if key := rec.ImageKey(); key != "" {
		md["image"] = key
	}
	if len(md) == 0 {
		return nil
	}
	return md
}
