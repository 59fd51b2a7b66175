// Package features defines the fixed-length feature vector exchanged with the
// external frame extractor.
package features

import (
	"errors"
	"fmt"
	"math"
)

// DefaultLength is the vector length agreed with the face feature extractor.
const DefaultLength = 70

var (
	// ErrLength is returned when a vector does not have the session's length.
	ErrLength = errors.New("feature vector length mismatch")
	// ErrNonFinite is returned when a vector holds NaN or Inf.
	ErrNonFinite = errors.New("feature vector has non-finite values")
)

// Vector is one frame's feature vector. A nil Vector means no subject was
// detected in the frame.
type Vector []float64

// Validate checks v against the expected length. A nil vector is valid.
func (v Vector) Validate(length int) error {
	if v == nil {
		return nil
	}
	if len(v) != length {
		return fmt.Errorf("%w: got %d, want %d", ErrLength, len(v), length)
	}
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: index %d", ErrNonFinite, i)
		}
	}
	return nil
}

// Clone returns a copy of v that does not share storage.
func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	out := make(Vector, len(v))
	copy(out, v)
	return out
}
