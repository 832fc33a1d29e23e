package domain

import (
	"fmt"
	"math"
)

// Space identifies one of the two disjoint embedding spaces. Vectors from
// different spaces must never be compared or submitted to each other's index.
type Space string

// Embedding spaces and their fixed dimensions.
const (
	SpaceText   Space = "text"   // 1024-dim description-text model
	SpaceVisual Space = "visual" // 512-dim joint image/text model

	TextDimensions   = 1024
	VisualDimensions = 512
)

// Dimensions returns the fixed vector length for the space.
func (s Space) Dimensions() int {
	if s == SpaceVisual {
		return VisualDimensions
	}
	return TextDimensions
}

// Vector is a fixed-length embedding. Vectors are kept unit-normalized so
// similarity reduces to a plain dot product.
type Vector []float32

// Dot returns the dot product. Under unit norm this is cosine similarity.
func (v Vector) Dot(other Vector) float64 {
	var sum float64
	for i := range v {
		sum += float64(v[i]) * float64(other[i])
	}
	return sum
}

// Normalize scales v to unit length in place and returns it.
// A zero vector is returned unchanged.
func (v Vector) Normalize() Vector {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

// CheckSpace verifies the vector belongs to the given space.
func (v Vector) CheckSpace(s Space) error {
	if len(v) != s.Dimensions() {
		return fmt.Errorf("%w: got %d dims, %s space requires %d",
			ErrSpaceMismatch, len(v), s, s.Dimensions())
	}
	return nil
}
