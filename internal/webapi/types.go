package webapi

import (
	"time"

	"github.com/vericloud/vericloud/internal/models"
	"github.com/vericloud/vericloud/internal/scorer"
	"github.com/vericloud/vericloud/internal/session"
)

// HealthResponse is the health check response.
type HealthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version"`
	Services map[string]string `json:"services"`
}

// ErrorResponse is returned for errors.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Code    int      `json:"code"`
	Details []string `json:"details,omitempty"`
}

// FuseRequest is the body of POST /api/fuse. A missing text or voice
// result yields an Error prediction rather than a rejected request.
type FuseRequest struct {
	Text  *models.ModalityResult `json:"text,omitempty"`
	Voice *models.ModalityResult `json:"voice,omitempty"`
	Face  *models.ModalityResult `json:"face,omitempty"`
}

// AnalyzeResponse is the result of POST /api/face/analyze. The embedded
// confidence is a percentage; Face carries the same verdict as a fraction,
// ready to post as the face entry of a fuse request.
type AnalyzeResponse struct {
	models.SessionVerdict
	Face   models.ModalityResult `json:"face"`
	Events []session.Event       `json:"events,omitempty"`
}

// SessionSummary describes one stored session log.
type SessionSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	NumEvents int       `json:"numEvents"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionDetail is a stored session log with its events.
type SessionDetail struct {
	SessionSummary
	Events []session.Event `json:"events"`
}

// Live websocket messages.
const (
	liveTypeFrame   = "frame"
	liveTypeReset   = "reset"
	liveTypeSummary = "summary"
	liveTypeError   = "error"
)

// LiveRequest is a client message on /api/face/live. A missing or "frame"
// type carries one feature vector; null features mean no face.
type LiveRequest struct {
	Type     string     `json:"type,omitempty"`
	Features *[]float64 `json:"features"`
}

// LiveFrame is the reply to one frame.
type LiveFrame struct {
	Type string `json:"type"`
	scorer.FrameVerdict
	Display string `json:"display"`
}

// LiveSummary is the reply to a summary request.
type LiveSummary struct {
	Type string `json:"type"`
	models.Summary
	Phase scorer.Phase `json:"phase"`
}

// LiveError reports a rejected message. The connection stays open.
type LiveError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// LiveAck acknowledges a control message.
type LiveAck struct {
	Type string `json:"type"`
}
