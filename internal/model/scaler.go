package model

import "fmt"

// StandardScaler applies (x - mean) / scale per feature. A zero scale is
// treated as 1 so constant training features pass through centered.
type StandardScaler struct {
	mean  []float64
	scale []float64
}

// NewStandardScaler returns a scaler; mean and scale must have equal length.
func NewStandardScaler(mean, scale []float64) (*StandardScaler, error) {
	if len(mean) == 0 || len(mean) != len(scale) {
		return nil, fmt.Errorf("%w: scaler mean has %d entries, scale has %d", ErrInvalidArtifact, len(mean), len(scale))
	}
	s := &StandardScaler{
		mean:  append([]float64(nil), mean...),
		scale: append([]float64(nil), scale...),
	}
	for i, v := range s.scale {
		if v == 0 {
			s.scale[i] = 1
		}
	}
	return s, nil
}

func (s *StandardScaler) Transform(x []float64) ([]float64, error) {
	if err := checkWidth(len(x), len(s.mean)); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (v - s.mean[i]) / s.scale[i]
	}
	return out, nil
}

// Width returns the number of input features.
func (s *StandardScaler) Width() int { return len(s.mean) }
