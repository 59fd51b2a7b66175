// Package model holds the classifier and scaler capabilities consumed by the
// face scorer, and the loaders that turn stored artifacts into them.
package model

import (
	"errors"
	"fmt"
	"math"
)

//go:generate go tool mockgen -source=model.go -destination=mock_model.go -package=model

var (
	// ErrLoad wraps every failure to obtain a classifier or scaler.
	ErrLoad = errors.New("model load failed")
	// ErrInvalidArtifact is returned for artifacts that fail schema or
	// structural checks.
	ErrInvalidArtifact = errors.New("invalid model artifact")
	// ErrDimension is returned when an input does not match the model width.
	ErrDimension = errors.New("input dimension mismatch")
)

// Classifier maps a scaled feature vector to P(deceptive) in [0, 1].
// Implementations must be safe for concurrent use.
type Classifier interface {
	PredictProba(x []float64) (float64, error)
}

// Scaler standardizes raw feature vectors before classification.
// Implementations must be safe for concurrent use.
type Scaler interface {
	Transform(x []float64) ([]float64, error)
}

// Identity is a Scaler that returns a copy of its input.
type Identity struct{}

func (Identity) Transform(x []float64) ([]float64, error) {
	return append([]float64(nil), x...), nil
}

func checkWidth(got, want int) error {
	if got != want {
		return fmt.Errorf("%w: got %d, want %d", ErrDimension, got, want)
	}
	return nil
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

func logit(p float64) float64 {
	p = math.Min(math.Max(p, 1e-12), 1-1e-12)
	return math.Log(p / (1 - p))
}
