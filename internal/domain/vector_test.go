package domain

import (
	"errors"
	"math"
	"testing"
)

func TestSpaceDimensions(t *testing.T) {
	if got := SpaceText.Dimensions(); got != 1024 {
		t.Errorf("text dimensions = %d, want 1024", got)
	}
	if got := SpaceVisual.Dimensions(); got != 512 {
		t.Errorf("visual dimensions = %d, want 512", got)
	}
}

func TestNormalize(t *testing.T) {
	v := Vector{3, 4}.Normalize()
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("Normalize() = %v, want [0.6 0.8]", v)
	}

	zero := Vector{0, 0, 0}.Normalize()
	for _, f := range zero {
		if f != 0 {
			t.Fatalf("zero vector changed: %v", zero)
		}
	}
}

func TestDotEqualsCosineUnderUnitNorm(t *testing.T) {
	a := Vector{1, 0}.Normalize()
	b := Vector{1, 1}.Normalize()

	got := a.Dot(b)
	want := math.Cos(math.Pi / 4)
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("Dot() = %v, want %v", got, want)
	}
}

func TestCheckSpace(t *testing.T) {
	v := make(Vector, VisualDimensions)
	if err := v.CheckSpace(SpaceVisual); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := v.CheckSpace(SpaceText); !errors.Is(err, ErrSpaceMismatch) {
		t.Fatalf("CheckSpace() error = %v, want ErrSpaceMismatch", err)
	}
}
