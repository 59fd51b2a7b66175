package webapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vericloud/vericloud/internal/features"
)

const liveMaxMessageBytes = 64 << 10

// HandleFaceLive scores frames pushed over a websocket. Each connection owns
// one scorer and messages are handled in order on the read loop.
func (h *Handlers) HandleFaceLive(w http.ResponseWriter, r *http.Request) {
	if !h.originAllowed(r) {
		writeError(w, http.StatusForbidden, "origin is not allowed")
		return
	}
	if h.deps.Models == nil {
		writeError(w, http.StatusServiceUnavailable, "face model is not configured")
		return
	}

	sessionID := uuid.NewString()
	sc, err := h.newScorer(r, sessionID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetReadLimit(liveMaxMessageBytes)

	logger := h.logger.With("session", sessionID)
	logger.Info("Live session opened", "remote", r.RemoteAddr)
	defer logger.Info("Live session closed", "frames", sc.Summary().TotalFrames)

	ctx := r.Context()
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("Live read failed", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			if conn.WriteJSON(LiveError{Type: liveTypeError, Message: "messages must be JSON text frames"}) != nil {
				return
			}
			continue
		}

		var req LiveRequest
		if err := json.Unmarshal(data, &req); err != nil {
			if conn.WriteJSON(LiveError{Type: liveTypeError, Message: "invalid JSON: " + err.Error()}) != nil {
				return
			}
			continue
		}

		var reply any
		switch req.Type {
		case "", liveTypeFrame:
			var v features.Vector
			if req.Features != nil {
				v = features.Vector(*req.Features)
			}
			verdict, err := sc.ProcessFrame(ctx, v)
			if err != nil {
				reply = LiveError{Type: liveTypeError, Message: err.Error()}
				break
			}
			reply = LiveFrame{Type: liveTypeFrame, FrameVerdict: verdict, Display: verdict.String()}
		case liveTypeReset:
			sc.Reset()
			reply = LiveAck{Type: liveTypeReset}
		case liveTypeSummary:
			reply = LiveSummary{Type: liveTypeSummary, Summary: sc.Summary(), Phase: sc.Phase()}
		default:
			reply = LiveError{Type: liveTypeError, Message: "unknown message type " + req.Type}
		}

		if err := conn.WriteJSON(reply); err != nil {
			logger.Warn("Live write failed", "error", err)
			return
		}
	}
}

// originAllowed accepts requests without an Origin, same-origin requests and
// origins on the allowlist.
func (h *Handlers) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, o := range h.deps.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}
