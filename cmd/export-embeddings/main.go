// Command export-embeddings dumps a vector index to an NDJSON snapshot.
// The snapshot feeds the in-memory index driver, so a deployment can serve
// ANN queries without a remote backend.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mtlarchive/fonds/internal/config"
	"github.com/mtlarchive/fonds/internal/domain"
	logpkg "github.com/mtlarchive/fonds/internal/logger"
	photorepo "github.com/mtlarchive/fonds/internal/repository/photo"
	"github.com/mtlarchive/fonds/internal/vecindex"
	redisIdx "github.com/mtlarchive/fonds/internal/vecindex/redis"
	vectorizeIdx "github.com/mtlarchive/fonds/internal/vecindex/vectorize"
)

const exportBatchSize = 20

type snapshotLine struct {
	ID     string        `json:"id"`
	Values domain.Vector `json:"values"`
}

func main() {
	var (
		spaceName = flag.String("space", "visual", "embedding space to export: text or visual")
		outPath   = flag.String("out", "embeddings.ndjson", "snapshot output path")
	)
	flag.Parse()

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

	var (
		space  domain.Space
		idxCfg config.IndexConfig
	)
	switch *spaceName {
	case "text":
		space, idxCfg = domain.SpaceText, cfg.Indexes.Text
	case "visual":
		space, idxCfg = domain.SpaceVisual, cfg.Indexes.Visual
	default:
		logger.Fatal("Unknown space", zap.String("space", *spaceName))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	idx := mustSourceIndex(ctx, space, idxCfg, logger)

	store, err := photorepo.New(cfg.Metadata.Path)
	if err != nil {
		logger.Fatal("Failed to open metadata store", zap.Error(err))
	}
	defer store.Close()

	ids, err := store.IDs(ctx)
	if err != nil {
		logger.Fatal("Failed to list photo ids", zap.Error(err))
	}
	logger.Info("Export starting",
		zap.String("space", string(space)),
		zap.Int("ids", len(ids)),
		zap.String("out", *outPath),
	)

	f, err := os.Create(*outPath)
	if err != nil {
		logger.Fatal("Failed to create snapshot file", zap.Error(err))
	}
	defer f.Close()

	start := time.Now()
	written, missing := 0, 0
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)

	for s := 0; s < len(ids); s += exportBatchSize {
		e := s + exportBatchSize
		if e > len(ids) {
			e = len(ids)
		}

		items, err := idx.GetByIDs(ctx, ids[s:e])
		if err != nil {
			logger.Fatal("Failed to fetch vectors", zap.Error(err))
		}
		missing += (e - s) - len(items)

		for _, item := range items {
			if err := enc.Encode(snapshotLine{ID: item.ID, Values: item.Vector}); err != nil {
				logger.Fatal("Failed to write snapshot line", zap.Error(err))
			}
			written++
		}
	}

	if err := w.Flush(); err != nil {
		logger.Fatal("Failed to flush snapshot", zap.Error(err))
	}

	logger.Info("Export complete",
		zap.Int("written", written),
		zap.Int("missing", missing),
		zap.Duration("duration", time.Since(start)),
	)
}

// mustSourceIndex builds the remote index to export from. The memory driver
// is the snapshot consumer, not a source.
func mustSourceIndex(ctx context.Context, space domain.Space, cfg config.IndexConfig, logger *zap.Logger) vecindex.Index {
	var (
		idx vecindex.Index
		err error
	)
	switch cfg.Driver {
	case "vectorize":
		idx, err = vectorizeIdx.New(space, vectorizeIdx.Config{
			AccountID: cfg.AccountID,
			APIToken:  cfg.APIToken,
			IndexName: cfg.IndexName,
			Timeout:   time.Duration(cfg.TimeoutSec) * time.Second,
		}, logger)
	case "redis":
		idx, err = redisIdx.New(ctx, space, redisIdx.Config{
			Addrs:     cfg.Addrs,
			Username:  cfg.Username,
			Password:  cfg.Password,
			DB:        cfg.DB,
			IndexName: cfg.IndexName,
		})
	default:
		logger.Fatal("Space has no exportable index driver",
			zap.String("space", string(space)),
			zap.String("driver", cfg.Driver),
		)
	}
	if err != nil {
		logger.Fatal("Failed to create vector index",
			zap.String("space", string(space)),
			zap.String("driver", cfg.Driver),
			zap.Error(err),
		)
	}
	return idx
}
