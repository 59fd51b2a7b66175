// Package baseline learns a subject's own normal feature statistics during a
// warm-up window and scores later frames by how far they drift from it.
package baseline

import (
	"math"

	"github.com/vericloud/vericloud/internal/features"
	"github.com/vericloud/vericloud/internal/metrics"
	"github.com/vericloud/vericloud/internal/ring"
)

const (
	// Epsilon floors the per-feature std before it is used as a divisor.
	Epsilon = 1e-6

	// MaxZ is the clip applied to each absolute z-score.
	MaxZ = 5.0

	// SufficiencyRatio is the share of capacity that must be filled before
	// Establish succeeds.
	SufficiencyRatio = 0.8
)

// Stats is the frozen baseline of one subject.
type Stats = metrics.ColumnStats

// Profile accumulates warm-up samples for one session. It is not safe for
// concurrent use; a session owns its profile exclusively.
type Profile struct {
	length      int
	samples     *ring.Buffer[features.Vector]
	stats       Stats
	established bool
}

// New returns a profile sized for durationSeconds of video at fps, holding
// vectors of the given length.
func New(durationSeconds, fps, length int) *Profile {
	return NewWithCapacity(durationSeconds*fps, length)
}

// NewWithCapacity returns a profile whose warm-up window holds capacity
// samples.
func NewWithCapacity(capacity, length int) *Profile {
	return &Profile{
		length:  length,
		samples: ring.New[features.Vector](capacity),
	}
}

// Add appends v to the warm-up window. Nil vectors and calls after the
// baseline is established are ignored.
func (p *Profile) Add(v features.Vector) error {
	if v == nil || p.established {
		return nil
	}
	if err := v.Validate(p.length); err != nil {
		return err
	}
	p.samples.Push(v.Clone())
	return nil
}

// Establish freezes the statistics once at least 80% of the window is
// filled. A second call after success is a no-op returning true.
func (p *Profile) Establish() bool {
	if p.established {
		return true
	}
	if float64(p.samples.Len()) < float64(p.samples.Cap())*SufficiencyRatio {
		return false
	}
	p.freeze()
	return true
}

// EstablishWith freezes the statistics as soon as minSamples samples exist,
// bypassing the sufficiency ratio. Session drivers use it to bound latency.
// With zero samples the baseline is all zeros.
func (p *Profile) EstablishWith(minSamples int) bool {
	if p.established {
		return true
	}
	if p.samples.Len() < minSamples {
		return false
	}
	p.freeze()
	return true
}

func (p *Profile) freeze() {
	rows := make([][]float64, 0, p.samples.Len())
	for _, s := range p.samples.Slice() {
		rows = append(rows, s)
	}
	p.stats = metrics.Columns(rows, p.length)
	for i, s := range p.stats.Std {
		if s < Epsilon {
			p.stats.Std[i] = Epsilon
		}
	}
	p.established = true
}

// Deviation returns the mean clipped absolute z-score of v against the
// baseline, normalized into [0, 1]. It is 0 before establishment, for nil
// vectors and for vectors of the wrong length.
func (p *Profile) Deviation(v features.Vector) float64 {
	if !p.established || v == nil || len(v) != p.length || p.length == 0 {
		return 0.0
	}
	sum := 0.0
	for i, x := range v {
		z := math.Abs(x-p.stats.Mean[i]) / p.stats.Std[i]
		if math.IsNaN(z) {
			z = MaxZ
		}
		sum += metrics.Clamp(z, 0, MaxZ)
	}
	return sum / float64(p.length) / MaxZ
}

// Established reports whether the statistics are frozen.
func (p *Profile) Established() bool { return p.established }

// Stats returns a copy of the frozen statistics. Before establishment every
// slice is nil.
func (p *Profile) Stats() Stats {
	if !p.established {
		return Stats{}
	}
	return Stats{
		Mean: append([]float64(nil), p.stats.Mean...),
		Std:  append([]float64(nil), p.stats.Std...),
		Min:  append([]float64(nil), p.stats.Min...),
		Max:  append([]float64(nil), p.stats.Max...),
	}
}

// Len returns the number of buffered samples.
func (p *Profile) Len() int { return p.samples.Len() }

// Capacity returns the size of the warm-up window in frames.
func (p *Profile) Capacity() int { return p.samples.Cap() }

// Progress returns the fill ratio of the warm-up window in [0, 1].
func (p *Profile) Progress() float64 {
	return float64(p.samples.Len()) / float64(p.samples.Cap())
}
