// Package scorer turns a stream of per-frame feature vectors into smoothed
// frame verdicts, comparing each subject against their own warm-up baseline.
package scorer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vericloud/vericloud/internal/baseline"
	"github.com/vericloud/vericloud/internal/features"
	"github.com/vericloud/vericloud/internal/metrics"
	"github.com/vericloud/vericloud/internal/model"
	"github.com/vericloud/vericloud/internal/models"
	"github.com/vericloud/vericloud/internal/ring"
)

// ErrNoClassifier is returned by New when no classifier is supplied.
var ErrNoClassifier = errors.New("scorer requires a classifier")

// Phase is the scorer state.
type Phase string

const (
	PhaseBaseline Phase = "baseline"
	PhaseScoring  Phase = "scoring"
)

// Config holds the scoring thresholds.
type Config struct {
	Warmup             time.Duration
	FPS                int
	FeatureLength      int
	HistorySize        int
	SmoothingWindow    int
	DeceptionThreshold float64
	PredictionWeight   float64
	DeviationWeight    float64
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		Warmup:             30 * time.Second,
		FPS:                30,
		FeatureLength:      features.DefaultLength,
		HistorySize:        60,
		SmoothingWindow:    5,
		DeceptionThreshold: 0.30,
		PredictionWeight:   0.5,
		DeviationWeight:    0.5,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Warmup <= 0 {
		c.Warmup = d.Warmup
	}
	if c.FPS <= 0 {
		c.FPS = d.FPS
	}
	if c.FeatureLength <= 0 {
		c.FeatureLength = d.FeatureLength
	}
	if c.HistorySize <= 0 {
		c.HistorySize = d.HistorySize
	}
	if c.SmoothingWindow <= 0 {
		c.SmoothingWindow = d.SmoothingWindow
	}
	if c.DeceptionThreshold <= 0 {
		c.DeceptionThreshold = d.DeceptionThreshold
	}
	if c.PredictionWeight == 0 && c.DeviationWeight == 0 {
		c.PredictionWeight, c.DeviationWeight = d.PredictionWeight, d.DeviationWeight
	}
	return c
}

// Options configures a Scorer.
type Options struct {
	Config     Config
	Classifier model.Classifier
	// Scaler defaults to model.Identity.
	Scaler model.Scaler
	// Clock defaults to time.Now.
	Clock     func() time.Time
	Logger    *slog.Logger
	SessionID string
}

// Scorer is the per-session frame state machine. It is not safe for
// concurrent use.
type Scorer struct {
	cfg        Config
	classifier model.Classifier
	scaler     model.Scaler
	now        func() time.Time
	logger     *slog.Logger

	profile       *baseline.Profile
	phase         Phase
	baselineStart time.Time

	confidences *ring.Buffer[float64]
	deviations  *ring.Buffer[float64]
	predictions *ring.Buffer[models.Prediction]

	frameCount      int
	deceptionFrames int
}

// New returns a scorer in the baseline phase.
func New(opts Options) (*Scorer, error) {
	if opts.Classifier == nil {
		return nil, ErrNoClassifier
	}
	s := &Scorer{
		cfg:        opts.Config.withDefaults(),
		classifier: opts.Classifier,
		scaler:     opts.Scaler,
		now:        opts.Clock,
		logger:     opts.Logger,
	}
	if s.scaler == nil {
		s.scaler = model.Identity{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if opts.SessionID != "" {
		s.logger = s.logger.With("session", opts.SessionID)
	}
	s.Reset()
	return s, nil
}

// Reset discards the baseline, history and counters and returns to the
// baseline phase.
func (s *Scorer) Reset() {
	capacity := int(s.cfg.Warmup.Seconds() * float64(s.cfg.FPS))
	s.profile = baseline.NewWithCapacity(capacity, s.cfg.FeatureLength)
	s.phase = PhaseBaseline
	s.baselineStart = time.Time{}
	s.confidences = ring.New[float64](s.cfg.HistorySize)
	s.deviations = ring.New[float64](s.cfg.HistorySize)
	s.predictions = ring.New[models.Prediction](s.cfg.HistorySize)
	s.frameCount = 0
	s.deceptionFrames = 0
}

// Phase returns the current state.
func (s *Scorer) Phase() Phase { return s.phase }

// Config returns the effective thresholds.
func (s *Scorer) Config() Config { return s.cfg }

// BaselineStats returns the frozen baseline, or zero stats before it exists.
func (s *Scorer) BaselineStats() baseline.Stats { return s.profile.Stats() }

// ProcessFrame scores one frame. A nil vector means no face was detected.
// Classifier, scaler and length errors are returned with the history left
// untouched; the caller is expected to skip the frame.
func (s *Scorer) ProcessFrame(ctx context.Context, v features.Vector) (FrameVerdict, error) {
	if err := ctx.Err(); err != nil {
		return FrameVerdict{}, err
	}
	s.frameCount++
	index := s.frameCount

	if v == nil {
		return FrameVerdict{Label: LabelNoFace, Phase: s.phase, FrameIndex: index}, nil
	}
	if err := v.Validate(s.cfg.FeatureLength); err != nil {
		return FrameVerdict{}, fmt.Errorf("frame %d: %w", index, err)
	}

	if s.phase == PhaseBaseline {
		return s.baselineFrame(v, index)
	}
	return s.scoreFrame(v, index)
}

func (s *Scorer) baselineFrame(v features.Vector, index int) (FrameVerdict, error) {
	if err := s.profile.Add(v); err != nil {
		return FrameVerdict{}, fmt.Errorf("frame %d: %w", index, err)
	}

	now := s.now()
	if s.baselineStart.IsZero() {
		s.baselineStart = now
	}
	elapsed := now.Sub(s.baselineStart)
	progress := min(100, int(float64(elapsed)/float64(s.cfg.Warmup)*100))

	if elapsed > s.cfg.Warmup && s.profile.Establish() {
		s.phase = PhaseScoring
		s.logger.Info("Baseline established", "frame", index, "samples", s.profile.Len())
	}

	return FrameVerdict{
		Label:      LabelEstablishing,
		Phase:      PhaseBaseline,
		Progress:   progress,
		FrameIndex: index,
	}, nil
}

func (s *Scorer) scoreFrame(v features.Vector, index int) (FrameVerdict, error) {
	scaled, err := s.scaler.Transform(v)
	if err != nil {
		return FrameVerdict{}, fmt.Errorf("frame %d: scaling: %w", index, err)
	}
	p, err := s.classifier.PredictProba(scaled)
	if err != nil {
		return FrameVerdict{}, fmt.Errorf("frame %d: classifying: %w", index, err)
	}
	p = metrics.Clamp(p, 0, 1)
	deviation := s.profile.Deviation(v)

	s.confidences.Push(p)
	s.deviations.Push(deviation)
	raw := models.PredictionTruthful
	if p > 0.5 {
		raw = models.PredictionDeceptive
	}
	s.predictions.Push(raw)

	smoothed := p
	if s.confidences.Len() >= s.cfg.SmoothingWindow {
		smoothed = metrics.Mean(s.confidences.Last(s.cfg.SmoothingWindow))
	}

	label := LabelTruthful
	if smoothed > s.cfg.DeceptionThreshold {
		label = LabelDeceptive
		s.deceptionFrames++
	}

	s.logger.Debug("Frame scored", "frame", index, "phase", s.phase, "p", p, "smoothed", smoothed, "deviation", deviation)

	return FrameVerdict{
		Label:         label,
		Confidence:    smoothed,
		Deviation:     deviation,
		Phase:         PhaseScoring,
		Progress:      100,
		RawConfidence: p,
		CombinedScore: s.cfg.PredictionWeight*p + s.cfg.DeviationWeight*deviation,
		FrameIndex:    index,
	}, nil
}

// CompleteBaseline forces establishment once at least minSamples baseline
// samples exist, bypassing the warm-up timer and the sufficiency ratio.
// On success the scorer switches to the scoring phase immediately.
func (s *Scorer) CompleteBaseline(minSamples int) bool {
	if s.phase == PhaseScoring {
		return true
	}
	if !s.profile.EstablishWith(minSamples) {
		return false
	}
	s.phase = PhaseScoring
	s.logger.Info("Baseline completed early", "samples", s.profile.Len(), "min_samples", minSamples)
	return true
}

// Summary reports frame counts and the average scored confidence.
func (s *Scorer) Summary() models.Summary {
	if s.frameCount == 0 {
		return models.Summary{}
	}
	return models.Summary{
		TotalFrames:         s.frameCount,
		DeceptionFrames:     s.deceptionFrames,
		DeceptionPercentage: float64(s.deceptionFrames) / float64(s.frameCount) * 100,
		AverageConfidence:   metrics.Mean(s.confidences.Slice()),
	}
}

// History returns copies of the rolling confidence, deviation and raw
// prediction buffers, oldest first.
func (s *Scorer) History() History {
	return History{
		Confidences: s.confidences.Slice(),
		Deviations:  s.deviations.Slice(),
		Predictions: s.predictions.Slice(),
	}
}

// History is a snapshot of the scorer's rolling buffers.
type History struct {
	Confidences []float64           `json:"confidences"`
	Deviations  []float64           `json:"deviations"`
	Predictions []models.Prediction `json:"predictions"`
}
