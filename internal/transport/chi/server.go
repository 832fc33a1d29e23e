// Package chi exposes the photo search API over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mtlarchive/fonds/internal/domain"
	"github.com/mtlarchive/fonds/internal/domain/search/mode"
	"github.com/mtlarchive/fonds/internal/domain/search/request"
	"github.com/mtlarchive/fonds/internal/domain/search/result"
	healthuc "github.com/mtlarchive/fonds/internal/usecase/health"
	searchuc "github.com/mtlarchive/fonds/internal/usecase/search"
)

// Error response codes.
const (
	codeBadRequest        = "bad_request"
	codeInvalidQuery      = "invalid_query"
	codeNotFound          = "not_found"
	codeModeNotConfigured = "mode_not_configured"
	codeEmbeddingProvider = "embedding_provider_error"
	codeInternalError     = "internal_error"
)

// ErrorResponse is the JSON error body. Error carries the human-readable
// description; Code is the stable machine-readable taxonomy.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// photoReader reads single photo records for the detail endpoint.
type photoReader interface {
	Get(ctx context.Context, id string) (domain.PhotoRecord, error)
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Limits carries the deployment's result-count bounds. The request layer
// still enforces its own hard caps on top of these.
type Limits struct {
	DefaultLimit int
	MaxLimit     int
}

// Server wires the search, photo, and health services to HTTP handlers.
type Server struct {
	search        *searchuc.Service
	photos        photoReader
	health        *healthuc.Service
	limits        Limits
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. Unset limits fall back to the
// request-layer defaults.
func NewServer(search *searchuc.Service, photos photoReader, health *healthuc.Service, limits Limits, logger *zap.Logger) *Server {
	if limits.DefaultLimit <= 0 {
		limits.DefaultLimit = request.DefaultLimit
	}
	if limits.MaxLimit <= 0 {
		limits.MaxLimit = request.MaxLimit
	}
	s := &Server{
		search: search,
		photos: photos,
		health: health,
		limits: limits,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, codeInvalidQuery),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrModeNotConfigured, http.StatusNotImplemented, codeModeNotConfigured),
		sentinelHandler(domain.ErrEmbeddingProvider, http.StatusBadGateway, codeEmbeddingProvider),
	}
	return s
}

// Routes mounts the API handlers onto a chi router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/api/search", s.handleSearch)
	r.Get("/api/photos/{id}", s.handleGetPhoto)
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
}

// searchResponse is the body of GET /api/search. Mode reports the strategy
// that actually served the results, so a degraded response says lexical.
type searchResponse struct {
	Items    []result.Item `json:"items"`
	Mode     mode.Mode     `json:"mode"`
	Count    int           `json:"count"`
	Degraded bool          `json:"degraded,omitempty"`
}

// handleSearch handles GET /api/search?q=...&mode=...&limit=...
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	m := mode.Mode(r.URL.Query().Get("mode"))

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "limit must be an integer")
			return
		}
		limit = parsed
	}
	if limit <= 0 {
		limit = s.limits.DefaultLimit
	}
	if limit > s.limits.MaxLimit {
		limit = s.limits.MaxLimit
	}

	req, err := request.New(q, m, limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp, err := s.search.Search(r.Context(), &req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	served := req.Mode()
	if resp.Degraded {
		served = mode.Lexical
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Items:    resp.Items,
		Mode:     served,
		Count:    len(resp.Items),
		Degraded: resp.Degraded,
	})
}

// handleGetPhoto handles GET /api/photos/{id}.
func (s *Server) handleGetPhoto(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "photo id is required")
		return
	}

	rec, err := s.photos.Get(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// handleMetrics handles GET /metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidQuery,
		domain.ErrNotFound,
		domain.ErrModeNotConfigured,
		domain.ErrEmbeddingProvider,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
