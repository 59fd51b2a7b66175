// Package fusion combines per-modality verdicts into one weighted decision.
package fusion

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/vericloud/vericloud/internal/models"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ErrWeights is returned when a weight set is negative or does not sum to 1.
var ErrWeights = errors.New("invalid fusion weights")

const weightTolerance = 1e-9

// Reasoning strings that do not depend on the inputs.
const (
	ReasoningMixed    = "Models show mixed signals. Decision based on weighted consensus."
	ReasoningRequired = "Text and Voice models are required for fusion. One or both failed to provide predictions."
)

// dominantThreshold is the confidence a single modality needs before the
// reasoning names it as the strongest signal.
const dominantThreshold = 0.7

var printer = message.NewPrinter(language.English)

// Weights assigns a share of the final score to each modality.
type Weights struct {
	Text  float64 `yaml:"text" json:"text"`
	Voice float64 `yaml:"voice" json:"voice"`
	Face  float64 `yaml:"face" json:"face"`
}

// Of returns the weight of m.
func (w Weights) Of(m models.Modality) float64 {
	switch m {
	case models.ModalityText:
		return w.Text
	case models.ModalityVoice:
		return w.Voice
	case models.ModalityFace:
		return w.Face
	}
	return 0
}

// Sum returns the total weight.
func (w Weights) Sum() float64 { return w.Text + w.Voice + w.Face }

// Validate checks that every weight is non-negative and that they sum to 1.
func (w Weights) Validate() error {
	if w.Text < 0 || w.Voice < 0 || w.Face < 0 {
		return fmt.Errorf("%w: negative weight in %+v", ErrWeights, w)
	}
	if math.Abs(w.Sum()-1) > weightTolerance {
		return fmt.Errorf("%w: weights sum to %g, want 1", ErrWeights, w.Sum())
	}
	return nil
}

func (w Weights) asMap() map[models.Modality]float64 {
	return map[models.Modality]float64{
		models.ModalityText:  w.Text,
		models.ModalityVoice: w.Voice,
		models.ModalityFace:  w.Face,
	}
}

// Config holds the two weight sets.
type Config struct {
	WithFace    Weights `yaml:"with_face" json:"with_face"`
	WithoutFace Weights `yaml:"without_face" json:"without_face"`
}

// DefaultConfig returns the production weights.
func DefaultConfig() Config {
	return Config{
		WithFace:    Weights{Text: 0.35, Voice: 0.35, Face: 0.30},
		WithoutFace: Weights{Text: 0.5, Voice: 0.5},
	}
}

// Validate checks both weight sets. The face-less set must give face no weight.
func (c Config) Validate() error {
	if err := c.WithFace.Validate(); err != nil {
		return fmt.Errorf("with_face: %w", err)
	}
	if err := c.WithoutFace.Validate(); err != nil {
		return fmt.Errorf("without_face: %w", err)
	}
	if c.WithoutFace.Face != 0 {
		return fmt.Errorf("without_face: %w: face weight must be 0", ErrWeights)
	}
	return nil
}

// Contribution is one modality's share of the decision.
type Contribution struct {
	Prediction   models.Prediction `json:"prediction"`
	Confidence   float64           `json:"confidence"`
	Weight       float64           `json:"weight"`
	Contribution float64           `json:"contribution"`
}

// Result is the fused decision.
type Result struct {
	Prediction  models.Prediction                `json:"final_prediction"`
	Confidence  float64                          `json:"final_confidence"`
	Score       float64                          `json:"final_score"`
	Breakdown   map[models.Modality]Contribution `json:"breakdown"`
	Reasoning   string                           `json:"reasoning"`
	WeightsUsed map[models.Modality]float64      `json:"weights_used"`
	Errors      map[models.Modality]string       `json:"errors,omitempty"`
}

// Fuser applies a validated weight configuration. It holds no mutable state
// and is safe for concurrent use.
type Fuser struct {
	cfg Config
}

// New returns a fuser for cfg.
func New(cfg Config) (*Fuser, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Fuser{cfg: cfg}, nil
}

var defaultFuser = &Fuser{cfg: DefaultConfig()}

// Fuse combines results with the default weights.
func Fuse(text, voice models.ModalityResult, face *models.ModalityResult) Result {
	return defaultFuser.Fuse(text, voice, face)
}

// FuseAvailable applies the error policy with the default weights.
func FuseAvailable(results map[models.Modality]models.ModalityResult) Result {
	return defaultFuser.FuseAvailable(results)
}

// Config returns the weights in use.
func (f *Fuser) Config() Config { return f.cfg }

// Fuse combines text and voice, and face when non-nil. Inputs are not
// checked for availability; use FuseAvailable for that.
func (f *Fuser) Fuse(text, voice models.ModalityResult, face *models.ModalityResult) Result {
	inputs := map[models.Modality]models.ModalityResult{
		models.ModalityText:  text,
		models.ModalityVoice: voice,
	}
	weights := f.cfg.WithoutFace
	if face != nil {
		inputs[models.ModalityFace] = *face
		weights = f.cfg.WithFace
	}

	breakdown := make(map[models.Modality]Contribution, len(inputs))
	var score float64
	for _, m := range models.Modalities {
		r, ok := inputs[m]
		if !ok {
			continue
		}
		label := r.Prediction.Normalize()
		conf := r.NormalizedConfidence()
		w := weights.Of(m)
		s := deceptionScore(label, conf)
		score += w * s
		breakdown[m] = Contribution{Prediction: label, Confidence: conf, Weight: w, Contribution: s * w}
	}

	prediction := models.PredictionTruthful
	confidence := 1 - score
	if score > 0.5 {
		prediction = models.PredictionDeceptive
		confidence = score
	}

	return Result{
		Prediction:  prediction,
		Confidence:  confidence,
		Score:       score,
		Breakdown:   breakdown,
		Reasoning:   reasoning(prediction, breakdown),
		WeightsUsed: weights.asMap(),
	}
}

// FuseAvailable fuses whatever usable results are present. Text and voice
// are required; without them the result is labeled Error and carries the
// raw inputs as its breakdown. Face is used only when it has a verdict.
func (f *Fuser) FuseAvailable(results map[models.Modality]models.ModalityResult) Result {
	text, hasText := results[models.ModalityText]
	voice, hasVoice := results[models.ModalityVoice]
	if !hasText || !hasVoice || !text.Available() || !voice.Available() {
		partial := make(map[models.Modality]Contribution, len(results))
		for m, r := range results {
			partial[m] = Contribution{Prediction: r.Prediction, Confidence: r.Confidence}
		}
		return Result{
			Prediction:  models.PredictionError,
			Breakdown:   partial,
			Reasoning:   ReasoningRequired,
			WeightsUsed: map[models.Modality]float64{},
		}
	}

	var face *models.ModalityResult
	if r, ok := results[models.ModalityFace]; ok && r.Available() {
		face = &r
	}
	return f.Fuse(text, voice, face)
}

// deceptionScore maps a verdict onto P(deceptive).
func deceptionScore(label models.Prediction, conf float64) float64 {
	if label == models.PredictionDeceptive {
		return conf
	}
	return 1 - conf
}

func reasoning(prediction models.Prediction, breakdown map[models.Modality]Contribution) string {
	labels := map[models.Prediction]struct{}{}
	for _, c := range breakdown {
		labels[c.Prediction] = struct{}{}
	}
	if len(labels) == 1 {
		return fmt.Sprintf("All models agree on %s prediction with high confidence.", strings.ToLower(string(prediction)))
	}

	var dominant models.Modality
	best := dominantThreshold
	for _, m := range models.Modalities {
		c, ok := breakdown[m]
		if ok && c.Confidence > best {
			dominant, best = m, c.Confidence
		}
	}
	if dominant == "" {
		return ReasoningMixed
	}
	return printer.Sprintf("%s model shows strongest signal (%.1f%% confidence) influencing final decision.", dominant.Title(), best*100)
}
