// Package frames supplies video frames to the session aggregator and turns
// them into feature vectors.
package frames

import (
	"context"
	"io"
	"time"

	"github.com/vericloud/vericloud/internal/features"
)

// Frame is one raw frame. Sources that carry precomputed features set
// Features and leave Data empty; a precomputed frame with a nil Features
// had no face.
type Frame struct {
	Index       int
	Timestamp   time.Duration
	Data        []byte
	ContentType string
	Features    features.Vector
	Precomputed bool
}

// Source yields frames in order. Next returns io.EOF once exhausted.
type Source interface {
	Next(ctx context.Context) (Frame, error)
}

// Extractor turns a frame into a feature vector. A nil vector with a nil
// error means no face was detected.
type Extractor interface {
	Extract(ctx context.Context, f Frame) (features.Vector, error)
}

// Precomputed is an Extractor for frames whose features were computed
// upstream.
type Precomputed struct{}

func (Precomputed) Extract(_ context.Context, f Frame) (features.Vector, error) {
	if !f.Precomputed {
		return nil, ErrNoFeatures
	}
	return f.Features, nil
}

// SliceSource serves frames from memory.
type SliceSource struct {
	frames []Frame
	pos    int
}

// NewSliceSource returns a source over frames.
func NewSliceSource(frames []Frame) *SliceSource {
	return &SliceSource{frames: frames}
}

// VectorSource returns a source of precomputed frames, one per vector.
func VectorSource(vectors []features.Vector) *SliceSource {
	frames := make([]Frame, len(vectors))
	for i, v := range vectors {
		frames[i] = Frame{Index: i, Features: v, Precomputed: true}
	}
	return NewSliceSource(frames)
}

func (s *SliceSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.pos >= len(s.frames) {
		return Frame{}, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

// Len returns the total number of frames.
func (s *SliceSource) Len() int { return len(s.frames) }
