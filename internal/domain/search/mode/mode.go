package mode

// Mode is the search strategy.
type Mode string

// Search mode constants.
const (
	// Lexical is a case-insensitive substring scan over metadata text fields.
	Lexical Mode = "lexical"
	// Semantic searches the 1024-dim description-text embedding space.
	Semantic Mode = "semantic"
	// Visual searches the 512-dim joint image/text embedding space.
	Visual Mode = "visual"
	// Hybrid fuses semantic and visual results with query-length weights.
	Hybrid Mode = "hybrid"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Lexical || m == Semantic || m == Visual || m == Hybrid
}

// NeedsEmbedding reports whether the mode requires an embedding call.
func (m Mode) NeedsEmbedding() bool {
	return m == Semantic || m == Visual || m == Hybrid
}
