package models

import "time"

// Summary is the per-session frame summary reported by the face scorer.
type Summary struct {
	TotalFrames         int     `json:"total_frames"`
	DeceptionFrames     int     `json:"deception_frames"`
	DeceptionPercentage float64 `json:"deception_percentage"`
	AverageConfidence   float64 `json:"average_confidence"`
}

// StopReason records why a session stopped consuming frames.
type StopReason string

const (
	StopExhausted  StopReason = "exhausted"
	StopFrameLimit StopReason = "frame_limit"
	StopTimeBudget StopReason = "time_budget"
	StopCanceled   StopReason = "canceled"
)

// SessionStats describes how a video was consumed.
type SessionStats struct {
	ProcessedFrames int           `json:"processed_frames"`
	RawFrames       int           `json:"raw_frames"`
	BaselineFrames  int           `json:"baseline_frames"`
	NoFaceFrames    int           `json:"no_face_frames"`
	ErrorFrames     int           `json:"error_frames"`
	ValidVerdicts   int           `json:"valid_verdicts"`
	SkipFactor      int           `json:"skip_factor"`
	ForcedBaseline  bool          `json:"forced_baseline"`
	Elapsed         time.Duration `json:"elapsed_ns"`
	StopReason      StopReason    `json:"stop_reason"`
}

// SessionVerdict is the reduced result for a whole video. Confidence is a
// percentage in [0, 100].
type SessionVerdict struct {
	SessionID    string       `json:"session_id"`
	Prediction   Prediction   `json:"prediction"`
	Confidence   float64      `json:"confidence"`
	ConfidenceLo float64      `json:"confidence_ci_low"`
	ConfidenceHi float64      `json:"confidence_ci_high"`
	Fallback     bool         `json:"fallback,omitempty"`
	Stats        SessionStats `json:"stats"`
	Summary      Summary      `json:"summary"`
}

// ModalityResult converts the session verdict into the shape fusion consumes.
// The percentage is converted back to a fraction here so that a session
// confidence below 1% is not mistaken for a fraction later on.
func (v SessionVerdict) ModalityResult() ModalityResult {
	return ModalityResult{Prediction: v.Prediction, Confidence: v.Confidence / 100.0}
}
