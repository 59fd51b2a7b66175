package session

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vericloud/vericloud/internal/features"
	"github.com/vericloud/vericloud/internal/frames"
	"github.com/vericloud/vericloud/internal/model"
	"github.com/vericloud/vericloud/internal/models"
	"github.com/vericloud/vericloud/internal/scorer"
	"go.uber.org/mock/gomock"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func vec(x float64) features.Vector { return features.Vector{x, x, x} }

// faces returns n precomputed face vectors alternating between 0 and 2.
func faces(n int) []features.Vector {
	out := make([]features.Vector, n)
	for i := range out {
		out[i] = vec(float64(2 * (i % 2)))
	}
	return out
}

func noFaces(n int) []features.Vector { return make([]features.Vector, n) }

type harness struct {
	clock  *fakeClock
	scorer *scorer.Scorer
	events *MemoryLogger
	agg    *Aggregator
}

// newHarness wires a scorer and aggregator to a frozen clock, so the
// warm-up timer never elapses and the baseline completes only when forced.
func newHarness(t *testing.T, c model.Classifier, ex frames.Extractor) *harness {
	t.Helper()
	h := &harness{
		clock:  &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		events: &MemoryLogger{},
	}
	s, err := scorer.New(scorer.Options{
		Config:     scorer.Config{Warmup: time.Second, FPS: 4, FeatureLength: 3},
		Classifier: c,
		Clock:      h.clock.Now,
	})
	require.NoError(t, err)
	h.scorer = s
	h.agg = New(s, Options{Extractor: ex, Events: h.events, Clock: h.clock.Now, SessionID: "test"})
	return h
}

// stride1 processes every frame with the forced-baseline paths disabled.
func stride1() Budget {
	return Budget{SkipFactor: 1}
}

func (h *harness) eventsOf(t EventType) []Event {
	var out []Event
	for _, ev := range h.events.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (h *harness) frameIndexes() []int {
	var out []int
	for _, ev := range h.eventsOf(EventFrame) {
		out = append(out, ev.Data["frame"].(int))
	}
	return out
}

// slowExtractor advances the clock on every call.
type slowExtractor struct {
	clock *fakeClock
	took  time.Duration
}

func (e slowExtractor) Extract(ctx context.Context, f frames.Frame) (features.Vector, error) {
	e.clock.Advance(e.took)
	return frames.Precomputed{}.Extract(ctx, f)
}

type failingExtractor struct{ fail map[int]bool }

func (e failingExtractor) Extract(ctx context.Context, f frames.Frame) (features.Vector, error) {
	if e.fail[f.Index] {
		return nil, errors.New("extractor unavailable")
	}
	return frames.Precomputed{}.Extract(ctx, f)
}

// scriptedSource replays frames and errors in order.
type scriptedSource struct {
	items []any
	pos   int
}

func (s *scriptedSource) Next(context.Context) (frames.Frame, error) {
	if s.pos >= len(s.items) {
		return frames.Frame{}, io.EOF
	}
	item := s.items[s.pos]
	s.pos++
	if err, ok := item.(error); ok {
		return frames.Frame{}, err
	}
	return item.(frames.Frame), nil
}

func sequence(ctrl *gomock.Controller, probs ...float64) *model.MockClassifier {
	c := model.NewMockClassifier(ctrl)
	for _, p := range probs {
		c.EXPECT().PredictProba(gomock.Any()).Return(p, nil)
	}
	return c
}

func TestDefaultBudget(t *testing.T) {
	b := DefaultBudget()
	require.Equal(t, 45, b.MaxFrames)
	require.Equal(t, 25*time.Second, b.MaxDuration)
	require.Equal(t, 6, b.SkipFactor)
	require.Equal(t, 10, b.MaxSkip)
	require.Equal(t, 2, b.SkipStep)
	require.Equal(t, 2*time.Second, b.SlowFrame)
	require.Equal(t, 5, b.SoftBaselineFrames)
	require.Equal(t, 15, b.HardBaselineFrames)
}

func TestBudgetNormalized(t *testing.T) {
	b := Budget{SkipFactor: 0, MaxSkip: 0, SkipStep: -1}.normalized()
	assert.Equal(t, 1, b.SkipFactor)
	assert.Equal(t, 1, b.MaxSkip)
	assert.Equal(t, 0, b.SkipStep)
}

func TestProcessVideo_NoFacesFallsBack(t *testing.T) {
	h := newHarness(t, model.NewMockClassifier(gomock.NewController(t)), nil)

	got, err := h.agg.ProcessVideo(context.Background(), frames.VectorSource(noFaces(10)), stride1())
	require.NoError(t, err)

	require.Equal(t, models.PredictionTruthful, got.Prediction)
	require.Equal(t, FallbackConfidence, got.Confidence)
	require.True(t, got.Fallback)
	require.Equal(t, "test", got.SessionID)
	require.Equal(t, 10, got.Stats.ProcessedFrames)
	require.Equal(t, 10, got.Stats.NoFaceFrames)
	require.Zero(t, got.Stats.ValidVerdicts)
	require.Equal(t, models.StopExhausted, got.Stats.StopReason)
	require.Equal(t, 10, got.Summary.TotalFrames)
	require.Len(t, h.eventsOf(EventInsufficientData), 1)
	require.Len(t, h.eventsOf(EventSessionEnd), 1)
}

func TestProcessVideo_EmptySource(t *testing.T) {
	h := newHarness(t, model.NewMockClassifier(gomock.NewController(t)), nil)

	got, err := h.agg.ProcessVideo(context.Background(), frames.VectorSource(nil), DefaultBudget())
	require.NoError(t, err)
	require.True(t, got.Fallback)
	require.Zero(t, got.Stats.ProcessedFrames)
}

func TestProcessVideo_SoftForcedBaseline(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newHarness(t, sequence(ctrl, 0.9, 0.9, 0.1), nil)

	budget := stride1()
	budget.SoftBaselineFrames = 3
	budget.HardBaselineFrames = 15

	got, err := h.agg.ProcessVideo(context.Background(), frames.VectorSource(faces(6)), budget)
	require.NoError(t, err)

	require.Equal(t, scorer.PhaseScoring, h.scorer.Phase())
	require.True(t, got.Stats.ForcedBaseline)
	require.Equal(t, 3, got.Stats.BaselineFrames)
	require.Equal(t, 3, got.Stats.ValidVerdicts)
	require.Equal(t, models.PredictionDeceptive, got.Prediction)
	require.InDelta(t, (0.9+0.9+0.1)/3*100, got.Confidence, 1e-9)
	require.False(t, got.Fallback)
	require.LessOrEqual(t, got.ConfidenceLo, got.Confidence)
	require.GreaterOrEqual(t, got.ConfidenceHi, got.Confidence)
	require.GreaterOrEqual(t, got.ConfidenceLo, 0.0)
	require.LessOrEqual(t, got.ConfidenceHi, 100.0)

	forced := h.eventsOf(EventBaselineForced)
	require.Len(t, forced, 1)
	require.Equal(t, 3, forced[0].Data["min_samples"])
}

func TestProcessVideo_HardForcedBaseline(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newHarness(t, sequence(ctrl, 0.2), nil)

	budget := stride1()
	budget.HardBaselineFrames = 15

	got, err := h.agg.ProcessVideo(context.Background(), frames.VectorSource(faces(17)), budget)
	require.NoError(t, err)

	require.Equal(t, scorer.PhaseScoring, h.scorer.Phase())
	require.True(t, got.Stats.ForcedBaseline)
	require.Equal(t, 16, got.Stats.BaselineFrames)
	require.Equal(t, 1, got.Stats.ValidVerdicts)
	require.Equal(t, models.PredictionTruthful, got.Prediction)
	require.InDelta(t, 20.0, got.Confidence, 1e-9)

	forced := h.eventsOf(EventBaselineForced)
	require.Len(t, forced, 1)
	require.Equal(t, 16, forced[0].Data["baseline_frames"])
	require.Equal(t, 0, forced[0].Data["min_samples"])
}

func TestProcessVideo_BaselineNotForcedWhenDisabled(t *testing.T) {
	h := newHarness(t, model.NewMockClassifier(gomock.NewController(t)), nil)

	got, err := h.agg.ProcessVideo(context.Background(), frames.VectorSource(faces(20)), stride1())
	require.NoError(t, err)
	require.Equal(t, scorer.PhaseBaseline, h.scorer.Phase())
	require.False(t, got.Stats.ForcedBaseline)
	require.True(t, got.Fallback)
}

func TestProcessVideo_NegativeBaselineFramesDisable(t *testing.T) {
	h := newHarness(t, model.NewMockClassifier(gomock.NewController(t)), nil)

	budget := stride1()
	budget.SoftBaselineFrames = -1
	budget.HardBaselineFrames = 15

	got, err := h.agg.ProcessVideo(context.Background(), frames.VectorSource(faces(10)), budget)
	require.NoError(t, err)
	require.Equal(t, scorer.PhaseBaseline, h.scorer.Phase())
	require.False(t, got.Stats.ForcedBaseline)
	require.Equal(t, 10, got.Stats.BaselineFrames)
	require.Empty(t, h.eventsOf(EventBaselineForced))
}

func TestProcessVideo_FrameLimit(t *testing.T) {
	h := newHarness(t, model.NewMockClassifier(gomock.NewController(t)), nil)

	budget := stride1()
	budget.MaxFrames = 3

	got, err := h.agg.ProcessVideo(context.Background(), frames.VectorSource(noFaces(10)), budget)
	require.NoError(t, err)
	require.Equal(t, 3, got.Stats.ProcessedFrames)
	require.Equal(t, models.StopFrameLimit, got.Stats.StopReason)
}

func TestProcessVideo_SkipStride(t *testing.T) {
	h := newHarness(t, model.NewMockClassifier(gomock.NewController(t)), nil)

	budget := Budget{SkipFactor: 3}

	got, err := h.agg.ProcessVideo(context.Background(), frames.VectorSource(noFaces(10)), budget)
	require.NoError(t, err)
	require.Equal(t, []int{0, 3, 6, 9}, h.frameIndexes())
	require.Equal(t, 4, got.Stats.ProcessedFrames)
	require.Equal(t, 10, got.Stats.RawFrames)
	require.Equal(t, models.StopExhausted, got.Stats.StopReason)
}

func TestProcessVideo_SlowFramesWidenStride(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s, err := scorer.New(scorer.Options{
		Config:     scorer.Config{Warmup: time.Second, FPS: 4, FeatureLength: 3},
		Classifier: model.NewMockClassifier(gomock.NewController(t)),
		Clock:      clock.Now,
	})
	require.NoError(t, err)
	events := &MemoryLogger{}
	agg := New(s, Options{
		Extractor: slowExtractor{clock: clock, took: 3 * time.Second},
		Events:    events,
		Clock:     clock.Now,
	})

	budget := Budget{SkipFactor: 2, MaxSkip: 4, SkipStep: 2, SlowFrame: 2 * time.Second}

	got, err := agg.ProcessVideo(context.Background(), frames.VectorSource(noFaces(20)), budget)
	require.NoError(t, err)
	require.Equal(t, 5, got.Stats.ProcessedFrames)
	require.Equal(t, 4, got.Stats.SkipFactor)
	require.Equal(t, 15*time.Second, got.Stats.Elapsed)

	var adjusted []Event
	for _, ev := range events.Events() {
		if ev.Type == EventSkipAdjusted {
			adjusted = append(adjusted, ev)
		}
	}
	require.Len(t, adjusted, 1, "stride stops growing at MaxSkip")
	require.Equal(t, 4, adjusted[0].Data["skip_factor"])
}

func TestProcessVideo_TimeBudget(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s, err := scorer.New(scorer.Options{
		Config:     scorer.Config{Warmup: time.Second, FPS: 4, FeatureLength: 3},
		Classifier: model.NewMockClassifier(gomock.NewController(t)),
		Clock:      clock.Now,
	})
	require.NoError(t, err)
	agg := New(s, Options{Extractor: slowExtractor{clock: clock, took: 3 * time.Second}, Clock: clock.Now})

	budget := stride1()
	budget.MaxDuration = 10 * time.Second

	got, err := agg.ProcessVideo(context.Background(), frames.VectorSource(noFaces(20)), budget)
	require.NoError(t, err)
	require.Equal(t, 4, got.Stats.ProcessedFrames)
	require.Equal(t, models.StopTimeBudget, got.Stats.StopReason)
}

func TestProcessVideo_TieBreakFirstSeen(t *testing.T) {
	tests := []struct {
		name  string
		probs []float64
		want  models.Prediction
	}{
		{name: "truthful first", probs: []float64{0.1, 0.9}, want: models.PredictionTruthful},
		{name: "deceptive first", probs: []float64{0.9, 0.1}, want: models.PredictionDeceptive},
		{name: "clear majority", probs: []float64{0.1, 0.9, 0.9}, want: models.PredictionDeceptive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			h := newHarness(t, sequence(ctrl, tt.probs...), nil)

			budget := stride1()
			budget.SoftBaselineFrames = 1

			got, err := h.agg.ProcessVideo(context.Background(), frames.VectorSource(faces(1+len(tt.probs))), budget)
			require.NoError(t, err)
			require.Equal(t, tt.want, got.Prediction)
			require.Equal(t, len(tt.probs), got.Stats.ValidVerdicts)
		})
	}
}

func TestProcessVideo_ExtractorErrorsSkipped(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newHarness(t, sequence(ctrl, 0.8), failingExtractor{fail: map[int]bool{1: true}})

	budget := stride1()
	budget.SoftBaselineFrames = 1

	got, err := h.agg.ProcessVideo(context.Background(), frames.VectorSource(faces(3)), budget)
	require.NoError(t, err)
	require.Equal(t, 3, got.Stats.ProcessedFrames)
	require.Equal(t, 1, got.Stats.ErrorFrames)
	require.Equal(t, 1, got.Stats.ValidVerdicts)
	require.Equal(t, models.PredictionDeceptive, got.Prediction)
	require.InDelta(t, 80.0, got.Confidence, 1e-9)

	errs := h.eventsOf(EventFrameError)
	require.Len(t, errs, 1)
	require.Equal(t, 1, errs[0].Data["frame"])
}

func TestProcessVideo_MalformedFramesCounted(t *testing.T) {
	h := newHarness(t, model.NewMockClassifier(gomock.NewController(t)), nil)
	src := &scriptedSource{items: []any{
		frames.Frame{Index: 0, Precomputed: true},
		frames.ErrMalformed,
		frames.Frame{Index: 2, Precomputed: true},
	}}

	got, err := h.agg.ProcessVideo(context.Background(), src, stride1())
	require.NoError(t, err)
	require.Equal(t, 2, got.Stats.ProcessedFrames)
	require.Equal(t, 3, got.Stats.RawFrames)
	require.Equal(t, 1, got.Stats.ErrorFrames)
}

// blankExtractor finds no face in any frame.
type blankExtractor struct{}

func (blankExtractor) Extract(context.Context, frames.Frame) (features.Vector, error) {
	return nil, nil
}

func TestProcessVideo_UnreadableImageSkipped(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"001.jpg", "002.jpg", "003.jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte{0xff, 0xd8}, 0o644))
	}
	src, err := frames.NewDirSource(dir, 0)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, "002.jpg")))

	h := newHarness(t, model.NewMockClassifier(gomock.NewController(t)), blankExtractor{})
	got, err := h.agg.ProcessVideo(context.Background(), src, stride1())
	require.NoError(t, err)
	require.Equal(t, 3, got.Stats.RawFrames)
	require.Equal(t, 2, got.Stats.ProcessedFrames)
	require.Equal(t, 1, got.Stats.ErrorFrames)
	require.Equal(t, []int{0, 2}, h.frameIndexes())
	require.Len(t, h.eventsOf(EventFrameError), 1)
}

func TestProcessVideo_SourceFailure(t *testing.T) {
	h := newHarness(t, model.NewMockClassifier(gomock.NewController(t)), nil)
	boom := errors.New("disk gone")
	src := &scriptedSource{items: []any{frames.Frame{Index: 0, Precomputed: true}, boom}}

	_, err := h.agg.ProcessVideo(context.Background(), src, stride1())
	require.ErrorIs(t, err, boom)
}

func TestProcessVideo_Canceled(t *testing.T) {
	h := newHarness(t, model.NewMockClassifier(gomock.NewController(t)), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := h.agg.ProcessVideo(ctx, frames.VectorSource(faces(5)), stride1())
	require.NoError(t, err)
	require.Equal(t, models.StopCanceled, got.Stats.StopReason)
	require.True(t, got.Fallback)
	require.Zero(t, got.Stats.ProcessedFrames)
}

func TestProcessVideo_ModalityResult(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newHarness(t, sequence(ctrl, 0.6), nil)

	budget := stride1()
	budget.SoftBaselineFrames = 1

	got, err := h.agg.ProcessVideo(context.Background(), frames.VectorSource(faces(2)), budget)
	require.NoError(t, err)

	r := got.ModalityResult()
	require.Equal(t, models.PredictionDeceptive, r.Prediction)
	require.InDelta(t, 0.6, r.Confidence, 1e-9)
}

func TestNew_GeneratesSessionID(t *testing.T) {
	s, err := scorer.New(scorer.Options{Classifier: model.NewMockClassifier(gomock.NewController(t))})
	require.NoError(t, err)
	a := New(s, Options{})
	require.NotEmpty(t, a.SessionID())
	require.NotEqual(t, a.SessionID(), New(s, Options{}).SessionID())
}
