// Command fonds serves the archival photo search API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mtlarchive/fonds/internal/config"
	"github.com/mtlarchive/fonds/internal/domain"
	logpkg "github.com/mtlarchive/fonds/internal/logger"
	"github.com/mtlarchive/fonds/internal/metrics"
	"github.com/mtlarchive/fonds/internal/repository/embcache"
	photorepo "github.com/mtlarchive/fonds/internal/repository/photo"
	chiTransport "github.com/mtlarchive/fonds/internal/transport/chi"
	clipEmb "github.com/mtlarchive/fonds/internal/transport/clip"
	openaiEmb "github.com/mtlarchive/fonds/internal/transport/openai"
	healthuc "github.com/mtlarchive/fonds/internal/usecase/health"
	searchuc "github.com/mtlarchive/fonds/internal/usecase/search"
	"github.com/mtlarchive/fonds/internal/vecindex"
	memoryIdx "github.com/mtlarchive/fonds/internal/vecindex/memory"
	redisIdx "github.com/mtlarchive/fonds/internal/vecindex/redis"
	vectorizeIdx "github.com/mtlarchive/fonds/internal/vecindex/vectorize"
	"github.com/mtlarchive/fonds/internal/version"
)

func main() {
	// Load configuration based on ENV
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

	logger.Info("Starting fonds API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("metadata_path", cfg.Metadata.Path),
	)

	store, err := photorepo.New(cfg.Metadata.Path)
	if err != nil {
		logger.Fatal("Failed to open metadata store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Ping(ctx); err != nil {
		logger.Fatal("Metadata store not ready", zap.Error(err))
	}
	if n, err := store.Count(ctx); err == nil {
		logger.Info("Metadata store opened", zap.Int("photos", n))
	}

	// Register search and embedding metrics explicitly (no init())
	metrics.Register()

	// Build the per-space channels in the composition root
	semantic := buildChannel(ctx, domain.SpaceText, cfg.Embedding.Text, cfg.Indexes.Text, cfg.Embedding.CacheSize, logger)
	visual := buildChannel(ctx, domain.SpaceVisual, cfg.Embedding.Visual, cfg.Indexes.Visual, cfg.Embedding.CacheSize, logger)
	if semantic == nil && visual == nil {
		logger.Warn("No vector index configured, only lexical search is available")
	}

	searchSvc := searchuc.New(store, channelOrNil(semantic), channelOrNil(visual), searchuc.Options{
		TopK:            cfg.Search.TopK,
		LexicalFallback: cfg.Search.LexicalFallbackEnabled(),
	})

	healthSvc := healthuc.New(store, healthCheckers(semantic, visual))

	server := chiTransport.NewServer(searchSvc, store, healthSvc, chiTransport.Limits{
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxLimit:     cfg.Search.MaxLimit,
	}, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// channel extends the search channel with the embedder's health check.
type channel struct {
	searchuc.Channel
	space    domain.Space
	embedder domain.Embedder
}

// channelOrNil avoids handing the search service a typed nil.
func channelOrNil(ch *channel) *searchuc.Channel {
	if ch == nil {
		return nil
	}
	return &ch.Channel
}

// buildChannel assembles one space's embedder chain and index binding.
// Returns nil when the index is unconfigured: the mode stays unavailable.
func buildChannel(
	ctx context.Context,
	space domain.Space,
	provCfg config.ProviderConfig,
	idxCfg config.IndexConfig,
	cacheSize int,
	logger *zap.Logger,
) *channel {
	if idxCfg.Driver == "" {
		logger.Info("Vector index not configured", zap.String("space", string(space)))
		return nil
	}
	if provCfg.Dimensions != space.Dimensions() || idxCfg.Dimensions != space.Dimensions() {
		logger.Fatal("Configured dimensions do not match the embedding space",
			zap.String("space", string(space)),
			zap.Int("want", space.Dimensions()),
			zap.Int("embedding", provCfg.Dimensions),
			zap.Int("index", idxCfg.Dimensions),
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

	base := buildEmbedder(space, provCfg, logger)
	cached, err := embcache.New(base, cacheSize, logger)
	if err != nil {
		logger.Fatal("Failed to create embedding cache", zap.Error(err))
	}

	logger.Info("Search channel ready",
		zap.String("space", string(space)),
		zap.String("driver", idxCfg.Driver),
		zap.Int("dimensions", space.Dimensions()),
	)

	return &channel{
		Channel:  searchuc.Channel{Embedder: cached, Index: idx},
		space:    space,
		embedder: base,
	}
}

// buildEmbedder picks the provider for a space: the OpenAI-compatible API
// for the text space, the local CLIP server for the joint visual space.
func buildEmbedder(space domain.Space, provCfg config.ProviderConfig, logger *zap.Logger) domain.Embedder {
	if space == domain.SpaceVisual {
		return clipEmb.NewEmbedder(&clipEmb.Config{
			BaseURL: provCfg.BaseURL,
			Model:   provCfg.Model,
			Timeout: time.Duration(provCfg.TimeoutSec) * time.Second,
			Logger:  logger,
		})
	}
	return openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:   provCfg.APIKey,
		BaseURL:  provCfg.BaseURL,
		Model:    provCfg.Model,
		MaxChars: provCfg.MaxChars,
		Logger:   logger,
	})
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

// healthCheckers collects the per-space embedding provider health checks.
func healthCheckers(channels ...*channel) map[string]healthuc.EmbeddingChecker {
	out := make(map[string]healthuc.EmbeddingChecker)
	for _, ch := range channels {
		if ch == nil {
			continue
		}
		if hc, ok := ch.embedder.(domain.HealthChecker); ok {
			out[string(ch.space)] = hc
		}
	}
	return out
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"error":   "internal error",
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
