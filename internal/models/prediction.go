package models

import "strings"

// Prediction is a verdict label produced by a modality, a frame, a session or fusion.
type Prediction string

const (
	PredictionTruthful  Prediction = "Truthful"
	PredictionDeceptive Prediction = "Deceptive"
	// PredictionUnknown marks a modality that failed or was not supplied.
	PredictionUnknown Prediction = "Unknown"
	// PredictionError is only ever produced by fusion when required inputs are missing.
	PredictionError Prediction = "Error"
)

// Normalize maps legacy synonyms onto the canonical vocabulary.
// Lie/Deceptive become Deceptive and Truth/Truthful become Truthful; matching
// ignores case and surrounding space. Anything else is returned unchanged so
// that callers can still tell an Unknown apart from a real verdict.
func (p Prediction) Normalize() Prediction {
	switch strings.ToLower(strings.TrimSpace(string(p))) {
	case "lie", "deceptive", "deception detected":
		return PredictionDeceptive
	case "truth", "truthful":
		return PredictionTruthful
	case "unknown", "":
		return PredictionUnknown
	}
	return p
}

// Canonical is like Normalize but collapses every non-Deceptive value to
// Truthful. Session verdicts use it so that downstream fusion only ever sees
// the two canonical labels.
func (p Prediction) Canonical() Prediction {
	if p.Normalize() == PredictionDeceptive {
		return PredictionDeceptive
	}
	return PredictionTruthful
}

// IsVerdict reports whether p is one of the two canonical verdict labels.
func (p Prediction) IsVerdict() bool {
	n := p.Normalize()
	return n == PredictionTruthful || n == PredictionDeceptive
}
