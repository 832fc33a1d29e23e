package request

import (
	"fmt"
	"strings"

	"github.com/mtlarchive/fonds/internal/domain"
	"github.com/mtlarchive/fonds/internal/domain/search/mode"
)

// Search parameter limits.
const (
	MaxQueryLength = 1024
	DefaultLimit   = 25
	MaxLimit       = 100
)

// Request is a validated search query.
type Request struct {
	query      string
	searchMode mode.Mode
	limit      int
}

// New validates and normalizes search parameters.
// Defaults: mode=lexical, limit=25. Limit is clamped to [1, 100].
func New(query string, m mode.Mode, limit int) (Request, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Request{}, fmt.Errorf("%w: query is required", domain.ErrInvalidQuery)
	}
	if len(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("%w: query too long (max %d chars)", domain.ErrInvalidQuery, MaxQueryLength)
	}
	if m == "" {
		m = mode.Lexical
	}
	if !m.IsValid() {
		return Request{}, fmt.Errorf("%w: invalid search mode %q", domain.ErrInvalidQuery, m)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	return Request{query: query, searchMode: m, limit: limit}, nil
}

// Query returns the trimmed search query text.
func (r *Request) Query() string { return r.query }

// Mode returns the search strategy.
func (r *Request) Mode() mode.Mode { return r.searchMode }

// Limit returns the maximum results to return.
func (r *Request) Limit() int { return r.limit }

// TokenCount returns the whitespace token count of the query, used to weight
// hybrid fusion.
func (r *Request) TokenCount() int { return len(strings.Fields(r.query)) }
