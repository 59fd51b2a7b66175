// Package session reduces a budgeted stream of frames to one verdict per
// video and records what happened along the way.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vericloud/vericloud/internal/frames"
	"github.com/vericloud/vericloud/internal/metrics"
	"github.com/vericloud/vericloud/internal/models"
	"github.com/vericloud/vericloud/internal/scorer"
)

// FallbackConfidence is reported, as a percentage, when no frame produced a
// usable verdict.
const FallbackConfidence = 50.0

// Budget bounds the work spent on one video.
type Budget struct {
	// MaxFrames caps processed frames. Zero means unlimited.
	MaxFrames int
	// MaxDuration caps wall-clock time. Zero means unlimited.
	MaxDuration time.Duration
	// SkipFactor is the initial stride: after each processed frame,
	// SkipFactor-1 raw frames are skipped.
	SkipFactor int
	MaxSkip    int
	SkipStep   int
	// SlowFrame is the per-frame latency above which the stride grows.
	SlowFrame time.Duration
	// SoftBaselineFrames attempts CompleteBaseline(SoftBaselineFrames) once
	// that many baseline frames were seen. Zero or negative disables it.
	SoftBaselineFrames int
	// HardBaselineFrames forces completion once more baseline frames than
	// this were seen, whatever the sample count. Zero or negative disables it.
	HardBaselineFrames int
}

// DefaultBudget returns the production limits.
func DefaultBudget() Budget {
	return Budget{
		MaxFrames:          45,
		MaxDuration:        25 * time.Second,
		SkipFactor:         6,
		MaxSkip:            10,
		SkipStep:           2,
		SlowFrame:          2 * time.Second,
		SoftBaselineFrames: 5,
		HardBaselineFrames: 15,
	}
}

func (b Budget) normalized() Budget {
	if b.SkipFactor < 1 {
		b.SkipFactor = 1
	}
	if b.MaxSkip < b.SkipFactor {
		b.MaxSkip = b.SkipFactor
	}
	if b.SkipStep < 0 {
		b.SkipStep = 0
	}
	return b
}

// Options configures an Aggregator.
type Options struct {
	// Extractor defaults to frames.Precomputed.
	Extractor frames.Extractor
	Logger    *slog.Logger
	// Events receives the session log. Defaults to NopLogger.
	Events Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
	// SessionID defaults to a random UUID.
	SessionID string
}

// Aggregator drives one scorer over one video. Frames are processed
// strictly sequentially; it is not safe for concurrent use.
type Aggregator struct {
	scorer    *scorer.Scorer
	extractor frames.Extractor
	logger    *slog.Logger
	events    Logger
	now       func() time.Time
	sessionID string
}

// New returns an aggregator that owns s for the lifetime of the session.
func New(s *scorer.Scorer, opts Options) *Aggregator {
	a := &Aggregator{
		scorer:    s,
		extractor: opts.Extractor,
		logger:    opts.Logger,
		events:    opts.Events,
		now:       opts.Clock,
		sessionID: opts.SessionID,
	}
	if a.extractor == nil {
		a.extractor = frames.Precomputed{}
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.events == nil {
		a.events = NopLogger{}
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.sessionID == "" {
		a.sessionID = uuid.NewString()
	}
	a.logger = a.logger.With("session", a.sessionID)
	return a
}

// SessionID returns the identifier stamped on the verdict and events.
func (a *Aggregator) SessionID() string { return a.sessionID }

type vote struct {
	label      models.Prediction
	confidence float64
}

// ProcessVideo consumes src under budget and reduces the valid frame
// verdicts to one session verdict. Per-frame extractor and scorer failures
// are logged and skipped. Only an unreadable source is returned as an
// error; cancellation of ctx ends the session early with whatever was
// collected.
func (a *Aggregator) ProcessVideo(ctx context.Context, src frames.Source, budget Budget) (models.SessionVerdict, error) {
	budget = budget.normalized()
	start := a.now()
	stats := models.SessionStats{SkipFactor: budget.SkipFactor}
	skip := budget.SkipFactor
	var votes []vote

	a.emit(EventSessionStart, SessionStartData(budget))
	a.logger.Info("Session started", "max_frames", budget.MaxFrames, "max_duration", budget.MaxDuration, "skip", skip)

loop:
	for {
		switch {
		case ctx.Err() != nil:
			stats.StopReason = models.StopCanceled
			break loop
		case budget.MaxFrames > 0 && stats.ProcessedFrames >= budget.MaxFrames:
			stats.StopReason = models.StopFrameLimit
			break loop
		case budget.MaxDuration > 0 && a.now().Sub(start) >= budget.MaxDuration:
			stats.StopReason = models.StopTimeBudget
			break loop
		}

		f, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			stats.StopReason = models.StopExhausted
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				stats.StopReason = models.StopCanceled
				break
			}
			if frames.IsFrameError(err) {
				stats.RawFrames++
				stats.ErrorFrames++
				a.frameError(stats.RawFrames, err)
				continue
			}
			return models.SessionVerdict{}, fmt.Errorf("reading frames: %w", err)
		}
		stats.RawFrames++
		stats.ProcessedFrames++

		frameStart := a.now()
		verdict, err := a.score(ctx, f)
		took := a.now().Sub(frameStart)

		if err != nil {
			stats.ErrorFrames++
			a.frameError(f.Index, err)
		} else {
			a.emit(EventFrame, FrameData(f.Index, string(verdict.Label), verdict.Confidence, verdict.Deviation, took.Milliseconds()))
			switch {
			case verdict.Label == scorer.LabelNoFace:
				stats.NoFaceFrames++
			case verdict.Label == scorer.LabelEstablishing:
				stats.BaselineFrames++
				a.maybeForceBaseline(&stats, budget)
			case verdict.Valid():
				votes = append(votes, vote{label: verdict.Prediction(), confidence: verdict.Confidence})
			}
		}

		if budget.SlowFrame > 0 && took > budget.SlowFrame && skip < budget.MaxSkip {
			skip = min(skip+budget.SkipStep, budget.MaxSkip)
			stats.SkipFactor = skip
			a.logger.Info("Slow frame, increasing skip", "frame", f.Index, "duration", took, "skip", skip)
			a.emit(EventSkipAdjusted, SkipAdjustedData(skip, took.Milliseconds()))
		}

		for i := 0; i < skip-1; i++ {
			if _, err := src.Next(ctx); err != nil {
				if errors.Is(err, io.EOF) {
					stats.StopReason = models.StopExhausted
					break loop
				}
				if ctx.Err() != nil {
					stats.StopReason = models.StopCanceled
					break loop
				}
				if !frames.IsFrameError(err) {
					return models.SessionVerdict{}, fmt.Errorf("reading frames: %w", err)
				}
			}
			stats.RawFrames++
		}
	}

	stats.ValidVerdicts = len(votes)
	stats.Elapsed = a.now().Sub(start)
	result := a.reduce(votes)
	result.Stats = stats
	result.Summary = a.scorer.Summary()

	a.emit(EventSessionEnd, SessionCompleteData(string(result.Prediction), result.Confidence, map[string]any{
		"processed_frames": stats.ProcessedFrames,
		"valid_verdicts":   stats.ValidVerdicts,
		"stop_reason":      string(stats.StopReason),
		"duration_ms":      stats.Elapsed.Milliseconds(),
	}))
	a.logger.Info("Session complete",
		"prediction", result.Prediction,
		"confidence", result.Confidence,
		"processed", stats.ProcessedFrames,
		"valid", stats.ValidVerdicts,
		"stop_reason", stats.StopReason)
	return result, nil
}

func (a *Aggregator) score(ctx context.Context, f frames.Frame) (scorer.FrameVerdict, error) {
	v, err := a.extractor.Extract(ctx, f)
	if err != nil {
		return scorer.FrameVerdict{}, fmt.Errorf("extracting features: %w", err)
	}
	return a.scorer.ProcessFrame(ctx, v)
}

// maybeForceBaseline bounds warm-up latency: a soft attempt once enough
// baseline frames were seen, then a hard completion past the ceiling.
func (a *Aggregator) maybeForceBaseline(stats *models.SessionStats, budget Budget) {
	if a.scorer.Phase() != scorer.PhaseBaseline {
		return
	}
	minSamples := -1
	switch {
	case budget.HardBaselineFrames > 0 && stats.BaselineFrames > budget.HardBaselineFrames:
		minSamples = 0
	case budget.SoftBaselineFrames > 0 && stats.BaselineFrames >= budget.SoftBaselineFrames:
		minSamples = budget.SoftBaselineFrames
	}
	if minSamples < 0 || !a.scorer.CompleteBaseline(minSamples) {
		return
	}
	stats.ForcedBaseline = true
	a.logger.Info("Baseline forced", "baseline_frames", stats.BaselineFrames, "min_samples", minSamples)
	a.emit(EventBaselineForced, BaselineForcedData(stats.BaselineFrames, minSamples))
}

// reduce applies majority vote with first-seen tie-breaking and averages
// every collected confidence into a percentage.
func (a *Aggregator) reduce(votes []vote) models.SessionVerdict {
	if len(votes) == 0 {
		a.logger.Warn("Insufficient data for a face verdict, using fallback")
		a.emit(EventInsufficientData, nil)
		return models.SessionVerdict{
			SessionID:    a.sessionID,
			Prediction:   models.PredictionTruthful,
			Confidence:   FallbackConfidence,
			ConfidenceLo: FallbackConfidence,
			ConfidenceHi: FallbackConfidence,
			Fallback:     true,
		}
	}

	counts := map[models.Prediction]int{}
	var order []models.Prediction
	confidences := make([]float64, 0, len(votes))
	for _, v := range votes {
		label := v.label.Canonical()
		if counts[label] == 0 {
			order = append(order, label)
		}
		counts[label]++
		confidences = append(confidences, v.confidence)
	}

	winner := order[0]
	for _, label := range order[1:] {
		if counts[label] > counts[winner] {
			winner = label
		}
	}

	lo, hi := metrics.ConfidenceInterval95(confidences)
	return models.SessionVerdict{
		SessionID:    a.sessionID,
		Prediction:   winner,
		Confidence:   metrics.Mean(confidences) * 100,
		ConfidenceLo: metrics.Clamp(lo, 0, 1) * 100,
		ConfidenceHi: metrics.Clamp(hi, 0, 1) * 100,
	}
}

func (a *Aggregator) frameError(index int, err error) {
	a.logger.Warn("Skipping frame", "frame", index, "error", err)
	a.emit(EventFrameError, FrameErrorData(index, err.Error()))
}

func (a *Aggregator) emit(t EventType, data map[string]any) {
	if err := a.events.Log(NewEvent(t, a.sessionID, data)); err != nil {
		a.logger.Debug("Failed to write session event", "type", t, "error", err)
	}
}
