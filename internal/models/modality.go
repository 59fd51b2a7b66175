package models

import "strings"

// Modality identifies one independent channel of evidence.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityVoice Modality = "voice"
	ModalityFace  Modality = "face"
)

// Modalities lists every modality in the fixed order used for breakdowns
// and tie-breaking.
var Modalities = []Modality{ModalityText, ModalityVoice, ModalityFace}

// Title returns the modality name with its first letter upper-cased.
func (m Modality) Title() string {
	s := string(m)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ModalityResult is the verdict of one modality service.
type ModalityResult struct {
	Prediction Prediction `json:"prediction"`
	Confidence float64    `json:"confidence"`
}

// UnknownResult is the sentinel used for a missing or failed modality.
func UnknownResult() ModalityResult {
	return ModalityResult{Prediction: PredictionUnknown, Confidence: 0.0}
}

// Available reports whether r carries a usable verdict.
func (r ModalityResult) Available() bool {
	return r.Prediction.Normalize() != PredictionUnknown
}

// NormalizedConfidence returns the confidence in [0, 1]. Values above 1 are
// treated as percentages.
func (r ModalityResult) NormalizedConfidence() float64 {
	if r.Confidence > 1 {
		return r.Confidence / 100.0
	}
	return r.Confidence
}
