package result

import (
	"github.com/mtlarchive/fonds/internal/domain"
	"github.com/mtlarchive/fonds/internal/domain/search/mode"
)

// Hit is a single scored vector-index match before hydration.
// The similarity score lies in [-1, 1]; for unit-normalized embeddings of
// natural content it is practically [0, 1].
type Hit struct {
	id     string
	score  float64
	source mode.Mode
}

// NewHit creates a scored hit.
func NewHit(id string, score float64, source mode.Mode) Hit {
	return Hit{id: id, score: score, source: source}
}

// ID returns the photo identifier.
func (h *Hit) ID() string { return h.id }

// Score returns the similarity or fused score.
func (h *Hit) Score() float64 { return h.score }

// Source returns the mode that produced this hit.
func (h *Hit) Source() mode.Mode { return h.source }

// Item is a hydrated search result: the full photo record with its score
// attached. Lexical results carry no score.
type Item struct {
	domain.PhotoRecord
	Score  *float64  `json:"score,omitempty"`
	Source mode.Mode `json:"-"`
}

// NewItem attaches a hit's score to its photo record.
func NewItem(record domain.PhotoRecord, h Hit) Item {
	score := h.score
	return Item{PhotoRecord: record, Score: &score, Source: h.source}
}

// NewLexicalItem wraps a record matched by substring scan.
func NewLexicalItem(record domain.PhotoRecord) Item {
	return Item{PhotoRecord: record, Source: mode.Lexical}
}
