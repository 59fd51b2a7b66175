package session

import "time"

// EventType identifies the kind of session event.
type EventType string

const (
	EventSessionStart     EventType = "session_start"
	EventSessionEnd       EventType = "session_complete"
	EventFrame            EventType = "frame"
	EventBaselineForced   EventType = "baseline_forced"
	EventSkipAdjusted     EventType = "skip_adjusted"
	EventFrameError       EventType = "frame_error"
	EventInsufficientData EventType = "insufficient_data"
)

// Event is a single timestamped entry in a session log.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewEvent creates an event with the current timestamp.
func NewEvent(t EventType, sessionID string, data map[string]any) Event {
	return Event{
		Timestamp: time.Now().UTC(),
		Type:      t,
		SessionID: sessionID,
		Data:      data,
	}
}

// SessionStartData returns event data for a session start.
func SessionStartData(b Budget) map[string]any {
	return map[string]any{
		"max_frames":  b.MaxFrames,
		"max_ms":      b.MaxDuration.Milliseconds(),
		"skip_factor": b.SkipFactor,
		"max_skip":    b.MaxSkip,
	}
}

// FrameData returns event data for one scored frame.
func FrameData(index int, label string, confidence, deviation float64, durationMs int64) map[string]any {
	return map[string]any{
		"frame":       index,
		"label":       label,
		"confidence":  confidence,
		"deviation":   deviation,
		"duration_ms": durationMs,
	}
}

// BaselineForcedData returns event data for a forced baseline completion.
func BaselineForcedData(baselineFrames, minSamples int) map[string]any {
	return map[string]any{
		"baseline_frames": baselineFrames,
		"min_samples":     minSamples,
	}
}

// SkipAdjustedData returns event data for a skip factor change.
func SkipAdjustedData(skip int, durationMs int64) map[string]any {
	return map[string]any{
		"skip_factor": skip,
		"duration_ms": durationMs,
	}
}

// FrameErrorData returns event data for a skipped frame.
func FrameErrorData(index int, msg string) map[string]any {
	return map[string]any{
		"frame":   index,
		"message": msg,
	}
}

// SessionCompleteData returns event data for a session end.
func SessionCompleteData(prediction string, confidence float64, stats map[string]any) map[string]any {
	data := map[string]any{
		"prediction": prediction,
		"confidence": confidence,
	}
	for k, v := range stats {
		data[k] = v
	}
	return data
}
