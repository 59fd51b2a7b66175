package frames

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/vericloud/vericloud/internal/features"
	"github.com/vericloud/vericloud/internal/utils"
)

var (
	// ErrNoFeatures is returned by Precomputed for frames without features.
	ErrNoFeatures = errors.New("frame has no precomputed features")
	// ErrMalformed is returned for feature records that cannot be decoded.
	ErrMalformed = errors.New("malformed feature record")
	// ErrFrameUnreadable is returned when one frame's bytes cannot be read.
	// The source stays positioned past that frame.
	ErrFrameUnreadable = errors.New("frame unreadable")
)

// IsFrameError reports whether err concerns a single frame, so the caller
// can skip it and keep reading.
func IsFrameError(err error) bool {
	return errors.Is(err, ErrMalformed) || errors.Is(err, ErrFrameUnreadable)
}

// maxLineBytes bounds a single JSONL record.
const maxLineBytes = 1 << 20

// record is one line of a feature stream. A bare array or null line is
// accepted as shorthand for {"features": ...}.
type record struct {
	Features    *[]float64 `json:"features"`
	TimestampMS *float64   `json:"timestamp_ms,omitempty"`
}

// JSONLSource reads precomputed feature vectors, one JSON record per line.
// The stream may be gzip or zstd compressed.
type JSONLSource struct {
	rc      io.ReadCloser
	scanner *bufio.Scanner
	line    int
	index   int
}

// NewJSONLSource wraps r; Close releases the decompressor.
func NewJSONLSource(r io.Reader) (*JSONLSource, error) {
	rc, _, err := utils.NewDecompressingReader(r)
	if err != nil {
		return nil, err
	}
	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	return &JSONLSource{rc: rc, scanner: sc}, nil
}

func (s *JSONLSource) Next(ctx context.Context) (Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return Frame{}, fmt.Errorf("reading line %d: %w", s.line+1, err)
			}
			return Frame{}, io.EOF
		}
		s.line++
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		v, ts, err := decodeRecord(line)
		if err != nil {
			return Frame{}, fmt.Errorf("line %d: %w", s.line, err)
		}
		f := Frame{Index: s.index, Features: v, Precomputed: true}
		if ts != nil {
			f.Timestamp = time.Duration(*ts * float64(time.Millisecond))
		}
		s.index++
		return f, nil
	}
}

// Close releases the underlying decompressor.
func (s *JSONLSource) Close() error { return s.rc.Close() }

func decodeRecord(line []byte) (features.Vector, *float64, error) {
	switch line[0] {
	case '[':
		var v []float64
		if err := json.Unmarshal(line, &v); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return features.Vector(v), nil, nil
	case 'n':
		if string(line) == "null" {
			return nil, nil, nil
		}
	case '{':
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if rec.Features == nil {
			return nil, rec.TimestampMS, nil
		}
		return features.Vector(*rec.Features), rec.TimestampMS, nil
	}
	return nil, nil, fmt.Errorf("%w: unexpected %q", ErrMalformed, line[0])
}

// ReadVectors decodes a whole request body of feature vectors. It accepts a
// JSON array of vectors (null entries mean no face), an object of the form
// {"frames": [...]}, or JSONL. The body may be compressed.
func ReadVectors(r io.Reader) ([]features.Vector, error) {
	data, err := utils.ReadAllDecompressed(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformed)
	}

	// A multi-line JSONL stream of bare arrays fails here and falls through.
	if data[0] == '[' {
		var rows []*[]float64
		if err := json.Unmarshal(data, &rows); err == nil {
			return fromRows(rows), nil
		}
	}
	if data[0] == '{' {
		var doc struct {
			Frames *[]*[]float64 `json:"frames"`
		}
		if err := json.Unmarshal(data, &doc); err == nil && doc.Frames != nil {
			return fromRows(*doc.Frames), nil
		}
	}

	src, err := NewJSONLSource(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer src.Close()

	var out []features.Vector
	for {
		f, err := src.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, f.Features)
	}
}

func fromRows(rows []*[]float64) []features.Vector {
	out := make([]features.Vector, len(rows))
	for i, r := range rows {
		if r != nil {
			out[i] = features.Vector(*r)
		}
	}
	return out
}
