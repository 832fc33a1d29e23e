// Package vectorize implements vecindex.Index against the Cloudflare
// Vectorize v2 REST API.
package vectorize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mtlarchive/fonds/internal/domain"
	"github.com/mtlarchive/fonds/internal/vecindex"
)

const (
	defaultBaseURL = "https://api.cloudflare.com/client/v4"
	defaultTimeout = 15 * time.Second

	// The get_by_ids endpoint rejects requests above this batch size.
	getByIDsBatchSize = 20
)

// Index talks to one named Vectorize index.
type Index struct {
	space     domain.Space
	baseURL   string
	accountID string
	apiToken  string
	indexName string
	client    *http.Client
	logger    *zap.Logger
}

var _ vecindex.Index = (*Index)(nil)

// Config carries the connection settings for one Vectorize index.
type Config struct {
	BaseURL   string
	AccountID string
	APIToken  string
	IndexName string
	Timeout   time.Duration
}

// New creates a Vectorize-backed index for the given embedding space.
func New(space domain.Space, cfg Config, logger *zap.Logger) (*Index, error) {
	if cfg.AccountID == "" || cfg.APIToken == "" || cfg.IndexName == "" {
		return nil, fmt.Errorf("%w: vectorize requires account id, api token and index name", domain.ErrVectorIndex)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Index{
		space:     space,
		baseURL:   baseURL,
		accountID: cfg.AccountID,
		apiToken:  cfg.APIToken,
		indexName: cfg.IndexName,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}, nil
}

// Space returns the embedding space this index serves.
func (i *Index) Space() domain.Space { return i.space }

type queryRequest struct {
	Vector         domain.Vector `json:"vector"`
	TopK           int           `json:"topK"`
	ReturnMetadata string        `json:"returnMetadata"`
}

type queryResponse struct {
	Success bool       `json:"success"`
	Errors  []apiError `json:"errors"`
	Result  struct {
		Matches []struct {
			ID    string  `json:"id"`
			Score float64 `json:"score"`
		} `json:"matches"`
	} `json:"result"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Query runs a KNN query against the remote index. A single retry absorbs
// transient network or 5xx failures.
func (i *Index) Query(ctx context.Context, vector domain.Vector, topK int) ([]vecindex.Match, error) {
	if err := vector.CheckSpace(i.space); err != nil {
		return nil, err
	}
	body := queryRequest{
		Vector:         vector,
		TopK:           vecindex.ClampTopK(topK),
		ReturnMetadata: "none",
	}

	var resp queryResponse
	err := i.post(ctx, "/query", "application/json", mustJSON(body), &resp)
	if err != nil && retryable(err) {
		i.logger.Warn("Retrying vector index query", zap.String("space", string(i.space)), zap.Error(err))
		err = i.post(ctx, "/query", "application/json", mustJSON(body), &resp)
	}
	if err != nil {
		return nil, err
	}

	matches := make([]vecindex.Match, 0, len(resp.Result.Matches))
	for _, m := range resp.Result.Matches {
		matches = append(matches, vecindex.Match{ID: m.ID, Score: m.Score})
	}
	return matches, nil
}

// Upsert writes vectors as NDJSON, one record per line, which is the wire
// format the v2 upsert endpoint expects.
func (i *Index) Upsert(ctx context.Context, items []vecindex.Item) error {
	if len(items) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, item := range items {
		if err := item.Vector.CheckSpace(i.space); err != nil {
			return err
		}
		rec := struct {
			ID       string         `json:"id"`
			Values   domain.Vector  `json:"values"`
			Metadata map[string]string `json:"metadata,omitempty"`
		}{ID: item.ID, Values: item.Vector, Metadata: item.Metadata}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("%w: encode upsert: %w", domain.ErrVectorIndex, err)
		}
	}

	var resp upsertResponse
	return i.post(ctx, "/upsert", "application/x-ndjson", buf.Bytes(), &resp)
}

type upsertResponse struct {
	Success bool       `json:"success"`
	Errors  []apiError `json:"errors"`
}

type getByIDsResponse struct {
	Success bool       `json:"success"`
	Errors  []apiError `json:"errors"`
	Result  []struct {
		ID     string        `json:"id"`
		Values domain.Vector `json:"values"`
	} `json:"result"`
}

// GetByIDs fetches stored vectors in batches of twenty, the endpoint's
// maximum. Ids the index does not hold are absent from the result.
func (i *Index) GetByIDs(ctx context.Context, ids []string) ([]vecindex.Item, error) {
	out := make([]vecindex.Item, 0, len(ids))
	for start := 0; start < len(ids); start += getByIDsBatchSize {
		end := start + getByIDsBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		body := struct {
			IDs []string `json:"ids"`
		}{IDs: ids[start:end]}

		var resp getByIDsResponse
		if err := i.post(ctx, "/get_by_ids", "application/json", mustJSON(body), &resp); err != nil {
			return nil, err
		}
		for _, v := range resp.Result {
			out = append(out, vecindex.Item{ID: v.ID, Vector: v.Values})
		}
	}
	return out, nil
}

// statusError marks HTTP-level failures so Query can decide on a retry.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("vectorize returned status %d: %s", e.status, e.body)
}

func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.status >= 500
	}
	// Treat transport failures, but not context cancellation, as transient.
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (i *Index) post(ctx context.Context, path, contentType string, body []byte, out any) error {
	url := fmt.Sprintf("%s/accounts/%s/vectorize/v2/indexes/%s%s", i.baseURL, i.accountID, i.indexName, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %w", domain.ErrVectorIndex, err)
	}
	req.Header.Set("Authorization", "Bearer "+i.apiToken)
	req.Header.Set("Content-Type", contentType)

	resp, err := i.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrVectorIndex, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %w", domain.ErrVectorIndex, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %w", domain.ErrVectorIndex, &statusError{status: resp.StatusCode, body: truncate(string(raw), 256)})
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode response: %w", domain.ErrVectorIndex, err)
	}
	if envelope, ok := out.(interface{ failure() string }); ok {
		if msg := envelope.failure(); msg != "" {
			return fmt.Errorf("%w: %s", domain.ErrVectorIndex, msg)
		}
	}
	return nil
}

func (r *queryResponse) failure() string    { return failureMessage(r.Success, r.Errors) }
func (r *getByIDsResponse) failure() string { return failureMessage(r.Success, r.Errors) }
func (r *upsertResponse) failure() string   { return failureMessage(r.Success, r.Errors) }

func failureMessage(success bool, errs []apiError) string {
	if success {
		return ""
	}
	if len(errs) > 0 {
		return fmt.Sprintf("api error %d: %s", errs[0].Code, errs[0].Message)
	}
	return "api reported failure"
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
