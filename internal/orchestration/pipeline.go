// Package orchestration collects modality verdicts concurrently and fuses them.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/vericloud/vericloud/internal/clients"
	"github.com/vericloud/vericloud/internal/fusion"
	"github.com/vericloud/vericloud/internal/models"
	"golang.org/x/sync/errgroup"
)

// ErrNoEndpoint is recorded when a modality has input but no service URL.
var ErrNoEndpoint = errors.New("no service endpoint configured")

// DefaultTimeout bounds each modality call.
const DefaultTimeout = 30 * time.Second

// Messages recorded for inputs that were never supplied.
const (
	MsgNoText  = "No text provided"
	MsgNoAudio = "No audio file provided"
	MsgNoVideo = "No video file provided"
)

// Services holds the modality endpoints.
type Services struct {
	Text  string
	Voice string
	Face  string
}

func (s Services) url(m models.Modality) string {
	switch m {
	case models.ModalityText:
		return s.Text
	case models.ModalityVoice:
		return s.Voice
	case models.ModalityFace:
		return s.Face
	}
	return ""
}

// Upload is a file handed to a modality service.
type Upload struct {
	Filename string
	Body     io.Reader
}

// Inputs are the raw materials for one fusion request.
type Inputs struct {
	Text  string
	Voice *Upload
	Face  *Upload
	// FaceResult, when set, is used instead of calling the face service.
	// It lets a locally computed session verdict join the fusion.
	FaceResult *models.ModalityResult
}

// EventType identifies a progress event.
type EventType string

const (
	EventModalityStart    EventType = "modality_start"
	EventModalityComplete EventType = "modality_complete"
	EventModalityFailed   EventType = "modality_failed"
)

// ProgressEvent reports one modality call.
type ProgressEvent struct {
	EventType  EventType
	Modality   models.Modality
	Result     models.ModalityResult
	Error      string
	DurationMs int64
}

// ProgressListener receives progress updates. It may be called from
// several goroutines at once.
type ProgressListener func(event ProgressEvent)

// Options configures a Pipeline.
type Options struct {
	Client   clients.Analyzer
	Services Services
	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration
	// Fuser defaults to the production weights.
	Fuser  *fusion.Fuser
	Logger *slog.Logger
}

// Pipeline fans out to the modality services and fuses their answers.
// It is safe for concurrent use.
type Pipeline struct {
	client   clients.Analyzer
	services Services
	timeout  time.Duration
	fuser    *fusion.Fuser
	logger   *slog.Logger

	mu        sync.Mutex
	listeners []ProgressListener
}

// New returns a pipeline. A nil client uses clients.NewHTTP(nil).
func New(opts Options) *Pipeline {
	p := &Pipeline{
		client:   opts.Client,
		services: opts.Services,
		timeout:  opts.Timeout,
		fuser:    opts.Fuser,
		logger:   opts.Logger,
	}
	if p.client == nil {
		p.client = clients.NewHTTP(nil)
	}
	if p.timeout <= 0 {
		p.timeout = DefaultTimeout
	}
	if p.fuser == nil {
		p.fuser, _ = fusion.New(fusion.DefaultConfig())
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// OnProgress registers a listener.
func (p *Pipeline) OnProgress(l ProgressListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, l)
}

func (p *Pipeline) notify(ev ProgressEvent) {
	p.mu.Lock()
	listeners := append([]ProgressListener(nil), p.listeners...)
	p.mu.Unlock()
	for _, l := range listeners {
		l(ev)
	}
}

// Run calls every supplied modality concurrently, each under the pipeline
// timeout. A failed or missing modality becomes Unknown with its message in
// Result.Errors; failures never abort the other calls and are not retried.
func (p *Pipeline) Run(ctx context.Context, in Inputs) fusion.Result {
	var (
		mu      sync.Mutex
		results = map[models.Modality]models.ModalityResult{}
		errs    = map[models.Modality]string{}
	)
	record := func(m models.Modality, r models.ModalityResult, msg string) {
		mu.Lock()
		defer mu.Unlock()
		results[m] = r
		if msg != "" {
			errs[m] = msg
		}
	}

	var g errgroup.Group
	call := func(m models.Modality, filename string, body io.Reader) {
		g.Go(func() error {
			r, err := p.analyze(ctx, m, filename, body)
			if err != nil {
				record(m, models.UnknownResult(), err.Error())
				return nil
			}
			record(m, r, "")
			return nil
		})
	}

	if in.Text != "" {
		call(models.ModalityText, "", strings.NewReader(in.Text))
	} else {
		record(models.ModalityText, models.UnknownResult(), MsgNoText)
	}

	if in.Voice != nil {
		call(models.ModalityVoice, in.Voice.Filename, in.Voice.Body)
	} else {
		record(models.ModalityVoice, models.UnknownResult(), MsgNoAudio)
	}

	switch {
	case in.FaceResult != nil:
		record(models.ModalityFace, *in.FaceResult, "")
	case in.Face != nil:
		call(models.ModalityFace, in.Face.Filename, in.Face.Body)
	default:
		record(models.ModalityFace, models.UnknownResult(), MsgNoVideo)
	}

	_ = g.Wait()

	out := p.fuser.FuseAvailable(results)
	if len(errs) > 0 {
		out.Errors = errs
	}
	p.logger.Info("Fusion complete", "prediction", out.Prediction, "score", out.Score, "errors", len(errs))
	return out
}

func (p *Pipeline) analyze(ctx context.Context, m models.Modality, filename string, body io.Reader) (models.ModalityResult, error) {
	url := p.services.url(m)
	if url == "" {
		return models.ModalityResult{}, fmt.Errorf("%s: %w", m, ErrNoEndpoint)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.notify(ProgressEvent{EventType: EventModalityStart, Modality: m})
	start := time.Now()
	r, err := p.client.Analyze(ctx, m, url, filename, body)
	took := time.Since(start).Milliseconds()
	if err != nil {
		p.logger.Warn("Modality failed", "modality", m, "error", err)
		p.notify(ProgressEvent{EventType: EventModalityFailed, Modality: m, Error: err.Error(), DurationMs: took})
		return models.ModalityResult{}, err
	}
	p.logger.Debug("Modality complete", "modality", m, "prediction", r.Prediction, "confidence", r.Confidence)
	p.notify(ProgressEvent{EventType: EventModalityComplete, Modality: m, Result: r, DurationMs: took})
	return r, nil
}
