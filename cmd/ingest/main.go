// Command ingest builds the metadata store and vector indexes from an
// archival export manifest. It is an offline, re-runnable pass; upserts
// make repeated runs converge on the same state.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mtlarchive/fonds/internal/config"
	"github.com/mtlarchive/fonds/internal/domain"
	"github.com/mtlarchive/fonds/internal/ingest"
	logpkg "github.com/mtlarchive/fonds/internal/logger"
	"github.com/mtlarchive/fonds/internal/metrics"
	photorepo "github.com/mtlarchive/fonds/internal/repository/photo"
	clipEmb "github.com/mtlarchive/fonds/internal/transport/clip"
	openaiEmb "github.com/mtlarchive/fonds/internal/transport/openai"
	"github.com/mtlarchive/fonds/internal/vecindex"
	memoryIdx "github.com/mtlarchive/fonds/internal/vecindex/memory"
	redisIdx "github.com/mtlarchive/fonds/internal/vecindex/redis"
	vectorizeIdx "github.com/mtlarchive/fonds/internal/vecindex/vectorize"
)

func main() {
	var (
		manifestPath = flag.String("manifest", "manifest.ndjson", "path to the export manifest (NDJSON)")
		offset       = flag.Int("offset", envInt("INGEST_OFFSET", 0), "skip this many manifest records")
		limit        = flag.Int("limit", envInt("INGEST_LIMIT", 0), "ingest at most this many records (0 = all)")
		batchSize    = flag.Int("batch", envInt("INGEST_BATCH_SIZE", 8), "records per worker batch")
		workers      = flag.Int("workers", 4, "concurrent ingestion workers")
		spaces       = flag.String("spaces", "text,visual", "comma list of spaces to index: text, visual")
	)
	flag.Parse()

	// .env keeps API tokens out of the config files during local runs.
	_ = godotenv.Load()

	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	metrics.Register()

	records, err := ingest.ReadManifest(*manifestPath, *offset, *limit)
	if err != nil {
		logger.Fatal("Failed to read manifest", zap.Error(err))
	}
	logger.Info("Manifest loaded",
		zap.String("path", *manifestPath),
		zap.Int("records", len(records)),
		zap.Int("offset", *offset),
		zap.Int("limit", *limit),
	)

	store, err := photorepo.New(cfg.Metadata.Path)
	if err != nil {
		logger.Fatal("Failed to open metadata store", zap.Error(err))
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	wantText, wantVisual := parseSpaces(*spaces)

	p := &ingest.Pipeline{
		Store:      store,
		Downloader: ingest.NewDownloader(os.Getenv("R2_PUBLIC_DOMAIN")),
		Workers:    *workers,
		BatchSize:  *batchSize,
		Logger:     logger,
	}

	if wantText {
		if cfg.Indexes.Text.Driver == "" {
			logger.Fatal("Text space requested but indexes.text is not configured")
		}
		p.TextEmbedder = openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:   cfg.Embedding.Text.APIKey,
			BaseURL:  cfg.Embedding.Text.BaseURL,
			Model:    cfg.Embedding.Text.Model,
			MaxChars: cfg.Embedding.Text.MaxChars,
			Logger:   logger,
		})
		p.TextIndex = mustIndex(ctx, domain.SpaceText, cfg.Indexes.Text, logger)
	}
	if wantVisual {
		if cfg.Indexes.Visual.Driver == "" {
			logger.Fatal("Visual space requested but indexes.visual is not configured")
		}
		p.ImageEmbedder = clipEmb.NewEmbedder(&clipEmb.Config{
			BaseURL: cfg.Embedding.Visual.BaseURL,
			Model:   cfg.Embedding.Visual.Model,
			Timeout: time.Duration(cfg.Embedding.Visual.TimeoutSec) * time.Second,
			Logger:  logger,
		})
		p.VisualIndex = mustIndex(ctx, domain.SpaceVisual, cfg.Indexes.Visual, logger)
	}

	result, err := p.Run(ctx, records)
	if err != nil {
		logger.Fatal("Ingestion aborted", zap.Error(err))
	}

	logger.Info("Ingestion complete",
		zap.Int64("processed", result.Processed),
		zap.Int64("skipped", result.Skipped),
		zap.Duration("duration", result.Duration),
	)
}

func mustIndex(ctx context.Context, space domain.Space, idxCfg config.IndexConfig, logger *zap.Logger) vecindex.Index {
	if idxCfg.Dimensions != space.Dimensions() {
		logger.Fatal("Configured index dimensions do not match the embedding space",
			zap.String("space", string(space)),
			zap.Int("want", space.Dimensions()),
			zap.Int("configured", idxCfg.Dimensions),
		)
	}
	idx, err := buildIndex(ctx, space, idxCfg, logger)
	if err != nil {
		logger.Fatal("Failed to create vector index",
			zap.String("space", string(space)),
			zap.String("driver", idxCfg.Driver),
			zap.Error(err),
		)
	}
	return idx
}

func buildIndex(ctx context.Context, space domain.Space, cfg config.IndexConfig, logger *zap.Logger) (vecindex.Index, error) {
	switch cfg.Driver {
	case "vectorize":
		return vectorizeIdx.New(space, vectorizeIdx.Config{
			AccountID: cfg.AccountID,
			APIToken:  cfg.APIToken,
			IndexName: cfg.IndexName,
			Timeout:   time.Duration(cfg.TimeoutSec) * time.Second,
		}, logger)
	case "redis":
		return redisIdx.New(ctx, space, redisIdx.Config{
			Addrs:     cfg.Addrs,
			Username:  cfg.Username,
			Password:  cfg.Password,
			DB:        cfg.DB,
			IndexName: cfg.IndexName,
		})
	case "memory":
		return memoryIdx.New(space, cfg.SnapshotPath, logger), nil
	default:
		return nil, fmt.Errorf("unknown index driver %q", cfg.Driver)
	}
}

func parseSpaces(list string) (text, visual bool) {
	for _, s := range strings.Split(list, ",") {
		switch strings.TrimSpace(s) {
		case "text":
			text = true
		case "visual":
			visual = true
		}
	}
	return text, visual
}

func envInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
