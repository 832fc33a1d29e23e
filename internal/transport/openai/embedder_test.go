package openai

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/mtlarchive/fonds/internal/domain"
)

// embeddingResponse mirrors the OpenAI-compatible API embedding response.
type embeddingResponse struct {
	Object string `json:"object"`
	Data   []struct {
		Object    string    `json:"object"`
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

func serveEmbedding(t *testing.T, vec []float32, tokens int, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		resp := embeddingResponse{Object: "list", Model: "test-model"}
		resp.Data = append(resp.Data, struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{Object: "embedding", Embedding: vec})
		resp.Usage.PromptTokens = tokens
		resp.Usage.TotalTokens = tokens

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func textVec(lead float32) []float32 {
	v := make([]float32, domain.TextDimensions)
	v[0] = lead
	return v
}

func TestEmbedder_Embed(t *testing.T) {
	server := serveEmbedding(t, textVec(2), 10, func(r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
	})

	emb := NewEmbedder(&Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "test-model",
		Logger:  zap.NewNop(),
	})

	result, err := emb.Embed(context.Background(), "grain elevators at the old port")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	if len(result.Vector) != domain.TextDimensions {
		t.Fatalf("expected %d dimensions, got %d", domain.TextDimensions, len(result.Vector))
	}
	// The provider response is normalized before it leaves the embedder.
	if math.Abs(float64(result.Vector[0])-1.0) > 1e-6 {
		t.Errorf("vec[0] = %f, expected 1.0 after normalization", result.Vector[0])
	}
	if result.TotalTokens != 10 {
		t.Errorf("TotalTokens = %d, expected 10", result.TotalTokens)
	}
}

func TestEmbedder_EmbedTruncatesLongInput(t *testing.T) {
	var gotInput string
	server := serveEmbedding(t, textVec(1), 5, func(r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if len(req.Input) == 1 {
			gotInput = req.Input[0]
		}
	})

	emb := NewEmbedder(&Config{
		APIKey:   "test-key",
		BaseURL:  server.URL,
		Model:    "test-model",
		MaxChars: 8,
		Logger:   zap.NewNop(),
	})

	if _, err := emb.Embed(context.Background(), "0123456789abcdef"); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if gotInput != "01234567" {
		t.Errorf("provider saw input %q, expected first 8 chars", gotInput)
	}
}

func TestEmbedder_TruncationKeepsValidUTF8(t *testing.T) {
	var gotInput string
	server := serveEmbedding(t, textVec(1), 5, func(r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if len(req.Input) == 1 {
			gotInput = req.Input[0]
		}
	})

	emb := NewEmbedder(&Config{
		APIKey:   "test-key",
		BaseURL:  server.URL,
		Model:    "test-model",
		MaxChars: 8,
		Logger:   zap.NewNop(),
	})

	// The two-byte é straddles the 8-byte cutoff; truncation must back up
	// instead of splitting it.
	if _, err := emb.Embed(context.Background(), "1234567été"); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if gotInput != "1234567" {
		t.Errorf("provider saw input %q, want %q", gotInput, "1234567")
	}
	if !utf8.ValidString(gotInput) {
		t.Errorf("provider saw invalid UTF-8: %q", gotInput)
	}
}

func TestEmbedder_EmbedAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"detail":"model overloaded"}`))
	}))
	defer server.Close()

	emb := NewEmbedder(&Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "test-model",
		Logger:  zap.NewNop(),
	})

	_, err := emb.Embed(context.Background(), "query")
	if !errors.Is(err, domain.ErrEmbeddingProvider) {
		t.Fatalf("expected ErrEmbeddingProvider, got %v", err)
	}
}

func TestEmbedder_EmbedEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[],"model":"test-model"}`))
	}))
	defer server.Close()

	emb := NewEmbedder(&Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "test-model",
		Logger:  zap.NewNop(),
	})

	_, err := emb.Embed(context.Background(), "query")
	if !errors.Is(err, domain.ErrEmbeddingProvider) {
		t.Fatalf("expected ErrEmbeddingProvider, got %v", err)
	}
}

func TestEmbedder_EmbedWrongDimensions(t *testing.T) {
	server := serveEmbedding(t, []float32{0.1, 0.2, 0.3}, 5, nil)

	emb := NewEmbedder(&Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "test-model",
		Logger:  zap.NewNop(),
	})

	_, err := emb.Embed(context.Background(), "query")
	if !errors.Is(err, domain.ErrSpaceMismatch) {
		t.Fatalf("expected ErrSpaceMismatch, got %v", err)
	}
}
