package model

import "fmt"

// Logistic is a linear classifier: P(deceptive) = sigmoid(w·x + b).
type Logistic struct {
	weights   []float64
	intercept float64
}

// NewLogistic returns a logistic classifier over len(weights) features.
func NewLogistic(weights []float64, intercept float64) (*Logistic, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("%w: logistic model has no weights", ErrInvalidArtifact)
	}
	return &Logistic{weights: append([]float64(nil), weights...), intercept: intercept}, nil
}

func (l *Logistic) PredictProba(x []float64) (float64, error) {
	if err := checkWidth(len(x), len(l.weights)); err != nil {
		return 0, err
	}
	z := l.intercept
	for i, w := range l.weights {
		z += w * x[i]
	}
	return sigmoid(z), nil
}

// Width returns the number of input features.
func (l *Logistic) Width() int { return len(l.weights) }
