package scorer

import (
	"fmt"

	"github.com/vericloud/vericloud/internal/models"
)

// Label is the frame-level outcome.
type Label string

const (
	LabelNoFace       Label = "No Face"
	LabelEstablishing Label = "Establishing Baseline"
	LabelTruthful     Label = "Truthful"
	LabelDeceptive    Label = "Deceptive"
)

// FrameVerdict is the result of scoring one frame. Confidence is the
// smoothed P(deceptive); RawConfidence is the unsmoothed classifier output.
type FrameVerdict struct {
	Label         Label   `json:"label"`
	Confidence    float64 `json:"confidence"`
	Deviation     float64 `json:"deviation"`
	Phase         Phase   `json:"phase"`
	Progress      int     `json:"progress"`
	RawConfidence float64 `json:"raw_confidence"`
	CombinedScore float64 `json:"combined_score"`
	FrameIndex    int     `json:"frame_index"`
}

// Valid reports whether the verdict is a Truthful or Deceptive decision.
func (v FrameVerdict) Valid() bool {
	return v.Label == LabelTruthful || v.Label == LabelDeceptive
}

// Prediction maps the label onto the shared vocabulary. Non-decision labels
// map to Unknown.
func (v FrameVerdict) Prediction() models.Prediction {
	switch v.Label {
	case LabelDeceptive:
		return models.PredictionDeceptive
	case LabelTruthful:
		return models.PredictionTruthful
	default:
		return models.PredictionUnknown
	}
}

// String renders the label the way the operator overlay shows it.
func (v FrameVerdict) String() string {
	switch v.Label {
	case LabelEstablishing:
		return fmt.Sprintf("%s (%d%%)", v.Label, v.Progress)
	case LabelTruthful, LabelDeceptive:
		return fmt.Sprintf("%s (%.2f)", v.Label, v.Confidence)
	default:
		return string(v.Label)
	}
}
