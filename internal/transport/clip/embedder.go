// Package clip talks to a local CLIP embedding server that projects text and
// images into the shared 512-dim joint space. Query text and archival images
// embedded by the same checkpoint are directly comparable by cosine
// similarity.
package clip

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mtlarchive/fonds/internal/domain"
	"github.com/mtlarchive/fonds/internal/metrics"
)

const defaultTimeout = 30 * time.Second

// Embedder is the visual-space embedding provider.
type Embedder struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

// Config holds the CLIP server settings.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewEmbedder creates a client for a CLIP embedding server.
func NewEmbedder(cfg *Config) *Embedder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	model := cfg.Model
	if model == "" {
		model = "clip-vit-base-patch32"
	}
	return &Embedder{
		baseURL: cfg.BaseURL,
		model:   model,
		client:  &http.Client{Timeout: timeout},
		logger:  cfg.Logger,
	}
}

// Space implements domain.Embedder.
func (e *Embedder) Space() domain.Space { return domain.SpaceVisual }

// Embed projects query text into the joint visual space.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	return e.embed(ctx, map[string]string{"text": text})
}

// EmbedImage projects raw image bytes into the joint visual space. Only the
// ingestion pipeline calls this.
func (e *Embedder) EmbedImage(ctx context.Context, image []byte) (domain.EmbeddingResult, error) {
	return e.embed(ctx, map[string]string{
		"image": base64.StdEncoding.EncodeToString(image),
	})
}

func (e *Embedder) embed(ctx context.Context, payload map[string]string) (domain.EmbeddingResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("%w: encode request: %w", domain.ErrEmbeddingProvider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("%w: build request: %w", domain.ErrEmbeddingProvider, err)
	}
	req.Header.Set("Content-Type", "application/json")

	space := string(domain.SpaceVisual)
	start := time.Now()
	resp, err := e.client.Do(req)
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(space, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(space, e.model, "transport").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("%w: %w", domain.ErrEmbeddingProvider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(space, e.model, "error").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("%w: read response: %w", domain.ErrEmbeddingProvider, err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.EmbeddingRequestsTotal.WithLabelValues(space, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(space, e.model, "api_error").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("%w: clip server status %d", domain.ErrEmbeddingProvider, resp.StatusCode)
	}

	vec, err := decodeVector(raw)
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(space, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(space, e.model, "decode").Inc()
		return domain.EmbeddingResult{}, err
	}
	if err := vec.CheckSpace(domain.SpaceVisual); err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("%w: %w", domain.ErrEmbeddingProvider, err)
	}
	vec.Normalize()

	metrics.EmbeddingRequestsTotal.WithLabelValues(space, e.model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(space, e.model).Observe(duration.Seconds())

	return domain.EmbeddingResult{Vector: vec}, nil
}

// HealthCheck probes the server. The endpoint only accepts POST, so any
// HTTP answer at all means the server is up.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodOptions, e.baseURL+"/embed", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("clip server unreachable: %w", err)
	}
	resp.Body.Close()
	return nil
}

// decodeVector accepts the embedding response shapes seen across server
// versions: {"embedding": [...]}, a bare [[...]] batch of one, and the
// OpenAI-style {"data": [{"embedding": [...]}]} envelope.
func decodeVector(raw []byte) (domain.Vector, error) {
	var withField struct {
		Embedding domain.Vector `json:"embedding"`
	}
	if err := json.Unmarshal(raw, &withField); err == nil && len(withField.Embedding) > 0 {
		return withField.Embedding, nil
	}

	var batch []domain.Vector
	if err := json.Unmarshal(raw, &batch); err == nil && len(batch) > 0 && len(batch[0]) > 0 {
		return batch[0], nil
	}

	var envelope struct {
		Data []struct {
			Embedding domain.Vector `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Data) > 0 && len(envelope.Data[0].Embedding) > 0 {
		return envelope.Data[0].Embedding, nil
	}

	return nil, fmt.Errorf("%w: unrecognized embedding response shape", domain.ErrEmbeddingProvider)
}
