package webapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/vericloud/vericloud/internal/frames"
	"github.com/vericloud/vericloud/internal/fusion"
	"github.com/vericloud/vericloud/internal/model"
	"github.com/vericloud/vericloud/internal/models"
	"github.com/vericloud/vericloud/internal/orchestration"
	"github.com/vericloud/vericloud/internal/scorer"
	"github.com/vericloud/vericloud/internal/session"
	"github.com/vericloud/vericloud/internal/validation"
)

// Version is set at build time or defaults to dev.
var Version = "0.1.0-dev"

// Request size limits.
const (
	maxFuseBody     = 1 << 20
	maxAnalyzeBody  = 64 << 20
	maxUploadMemory = 32 << 20
)

// Deps are the collaborators the handlers need. Nil collaborators disable
// the routes that depend on them with 503.
type Deps struct {
	Store    SessionStore
	Pipeline *orchestration.Pipeline
	Fuser    *fusion.Fuser
	Models   *model.Handle
	Scoring  scorer.Config
	Budget   session.Budget
	// Services is reported by the health check.
	Services map[string]string
	// SessionLogDir receives one NDJSON log per analyzed session when set.
	SessionLogDir  string
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Handlers holds the HTTP handler methods for the web API.
type Handlers struct {
	deps   Deps
	logger *slog.Logger
}

// NewHandlers creates a new Handlers with the given dependencies.
func NewHandlers(deps Deps) *Handlers {
	if deps.Fuser == nil {
		deps.Fuser, _ = fusion.New(fusion.DefaultConfig())
	}
	if deps.Budget == (session.Budget{}) {
		deps.Budget = session.DefaultBudget()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{deps: deps, logger: logger}
}

// HandleHealth returns a simple health check response.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	services := h.deps.Services
	if services == nil {
		services = map[string]string{}
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Version:  Version,
		Services: services,
	})
}

// HandleFuse fuses caller-supplied modality results.
func (h *Handlers) HandleFuse(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFuseBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	if errs := validation.ValidateFuseRequestBytes(body); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid fuse request", Code: http.StatusBadRequest, Details: errs})
		return
	}
	var req FuseRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results := make(map[models.Modality]models.ModalityResult, 3)
	for m, r := range map[models.Modality]*models.ModalityResult{
		models.ModalityText:  req.Text,
		models.ModalityVoice: req.Voice,
		models.ModalityFace:  req.Face,
	} {
		if r != nil {
			results[m] = *r
		}
	}
	writeJSON(w, http.StatusOK, h.deps.Fuser.FuseAvailable(results))
}

// HandlePredictFusion accepts a transcript plus optional audio and video
// uploads and runs them through the modality services.
func (h *Handlers) HandlePredictFusion(w http.ResponseWriter, r *http.Request) {
	if h.deps.Pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, "modality services are not configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxAnalyzeBody)
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("parsing form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	text := strings.TrimSpace(r.FormValue("text"))
	if text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	in := orchestration.Inputs{Text: text}

	var files formFiles
	defer files.Close()

	var err error
	if in.Voice, err = files.open(r, "audio_file"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.Face, err = files.open(r, "video_file"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, h.deps.Pipeline.Run(r.Context(), in))
}

// formFiles tracks the uploads a request opened so that every one is closed
// when the handler returns.
type formFiles []multipart.File

// open returns nil when the field is absent.
func (fs *formFiles) open(r *http.Request, field string) (*orchestration.Upload, error) {
	f, hdr, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	*fs = append(*fs, f)
	return &orchestration.Upload{Filename: hdr.Filename, Body: f}, nil
}

func (fs formFiles) Close() {
	for _, f := range fs {
		f.Close() //nolint:errcheck
	}
}

// HandleFaceAnalyze scores a posted sequence of feature vectors as one
// session with a fresh scorer.
func (h *Handlers) HandleFaceAnalyze(w http.ResponseWriter, r *http.Request) {
	if h.deps.Models == nil {
		writeError(w, http.StatusServiceUnavailable, "face model is not configured")
		return
	}
	vectors, err := frames.ReadVectors(http.MaxBytesReader(w, r.Body, maxAnalyzeBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessionID := uuid.NewString()
	sc, err := h.newScorer(r, sessionID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	mem := &session.MemoryLogger{}
	events := session.MultiLogger{mem}
	if h.deps.SessionLogDir != "" {
		jl, err := session.NewJSONLogger(session.DefaultLogPath(h.deps.SessionLogDir, sessionID))
		if err != nil {
			h.logger.Warn("Session log disabled", "error", err)
		} else {
			events = append(events, jl)
		}
	}
	defer events.Close() //nolint:errcheck

	agg := session.New(sc, session.Options{Logger: h.logger, Events: events, SessionID: sessionID})
	verdict, err := agg.ProcessVideo(r.Context(), frames.VectorSource(vectors), h.deps.Budget)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := AnalyzeResponse{SessionVerdict: verdict, Face: verdict.ModalityResult()}
	if r.URL.Query().Get("events") == "true" {
		resp.Events = mem.Events()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) newScorer(r *http.Request, sessionID string) (*scorer.Scorer, error) {
	c, s, err := h.deps.Models.Get(r.Context())
	if err != nil {
		return nil, fmt.Errorf("face model unavailable: %w", err)
	}
	return scorer.New(scorer.Options{
		Config:     h.deps.Scoring,
		Classifier: c,
		Scaler:     s,
		Logger:     h.logger,
		SessionID:  sessionID,
	})
}

// HandleSessions returns the recorded sessions, with optional sort/order query params.
func (h *Handlers) HandleSessions(w http.ResponseWriter, r *http.Request) {
	if h.deps.Store == nil {
		writeJSON(w, http.StatusOK, []SessionSummary{})
		return
	}
	sessions, err := h.deps.Store.ListSessions(r.URL.Query().Get("sort"), r.URL.Query().Get("order"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// HandleSessionDetail returns one recorded session with its events.
func (h *Handlers) HandleSessionDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "session id is required")
		return
	}
	if h.deps.Store == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	detail, err := h.deps.Store.GetSession(id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// RegisterRoutes registers all web API routes on the given mux.
func RegisterRoutes(mux *http.ServeMux, deps Deps) {
	h := NewHandlers(deps)
	mux.HandleFunc("GET /api/health", h.HandleHealth)
	mux.HandleFunc("POST /api/fuse", h.HandleFuse)
	mux.HandleFunc("POST /api/predict_fusion", h.HandlePredictFusion)
	mux.HandleFunc("POST /api/face/analyze", h.HandleFaceAnalyze)
	mux.HandleFunc("GET /api/face/live", h.HandleFaceLive)
	mux.HandleFunc("GET /api/sessions", h.HandleSessions)
	mux.HandleFunc("GET /api/sessions/{id}", h.HandleSessionDetail)
}

// CORSMiddleware wraps a handler with CORS headers.
// If allowedOrigins is empty, no CORS header is set (same-origin only).
// Otherwise, the request Origin is checked against the allowed list.
func CORSMiddleware(next http.Handler, allowedOrigins ...string) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if len(allowedOrigins) > 0 && origin != "" && allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg, Code: code})
}
