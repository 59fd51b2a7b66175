package frames

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vericloud/vericloud/internal/features"
)

// RemoteExtractor posts frame bytes to a feature extraction service and
// expects {"features": [...] | null}.
type RemoteExtractor struct {
	url string
	c   *http.Client
}

// NewRemoteExtractor returns an extractor for the service at url. A nil
// client uses a 30s timeout.
func NewRemoteExtractor(url string, c *http.Client) *RemoteExtractor {
	if c == nil {
		c = &http.Client{Timeout: 30 * time.Second}
	}
	return &RemoteExtractor{url: strings.TrimRight(url, "/"), c: c}
}

func (e *RemoteExtractor) Extract(ctx context.Context, f Frame) (features.Vector, error) {
	if f.Precomputed {
		return f.Features, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url+"/extract", bytes.NewReader(f.Data))
	if err != nil {
		return nil, err
	}
	ct := f.ContentType
	if ct == "" {
		ct = http.DetectContentType(f.Data)
	}
	req.Header.Set("Content-Type", ct)

	resp, err := e.c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("extract %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var out struct {
		Features *[]float64 `json:"features"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("extract decode: %w", err)
	}
	if out.Features == nil {
		return nil, nil
	}
	return features.Vector(*out.Features), nil
}

// DirSource serves image files from a directory in lexical order, as
// written by a frame dumper such as ffmpeg's image2 muxer.
type DirSource struct {
	paths []string
	fps   float64
	pos   int
}

// imageExts lists the file types DirSource picks up.
var imageExts = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// NewDirSource lists dir. fps is used to derive frame timestamps.
func NewDirSource(dir string, fps float64) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing frames: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := imageExts[strings.ToLower(filepath.Ext(e.Name()))]; ok {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	if fps <= 0 {
		fps = 30
	}
	return &DirSource{paths: paths, fps: fps}, nil
}

func (s *DirSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.pos >= len(s.paths) {
		return Frame{}, io.EOF
	}
	index, path := s.pos, s.paths[s.pos]
	s.pos++
	data, err := os.ReadFile(path)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: frame %d: %w", ErrFrameUnreadable, index, err)
	}
	return Frame{
		Index:       index,
		Timestamp:   time.Duration(float64(index) / s.fps * float64(time.Second)),
		Data:        data,
		ContentType: imageExts[strings.ToLower(filepath.Ext(path))],
	}, nil
}

// Len returns the number of frames found.
func (s *DirSource) Len() int { return len(s.paths) }
