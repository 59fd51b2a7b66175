// Package clients calls the text, voice and face modality services.
package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vericloud/vericloud/internal/models"
)

// ErrNoVerdict is returned when a service answers without a prediction.
var ErrNoVerdict = errors.New("response carries no prediction")

// DefaultTimeout bounds a single service call when no client is supplied.
const DefaultTimeout = 60 * time.Second

// HTTP talks to the modality services. It is safe for concurrent use.
type HTTP struct{ c *http.Client }

// Analyzer calls one modality service. HTTP implements it; the
// orchestration pipeline depends on it so tests can stub services.
type Analyzer interface {
	Analyze(ctx context.Context, m models.Modality, url, filename string, r io.Reader) (models.ModalityResult, error)
}

var _ Analyzer = (*HTTP)(nil)

// NewHTTP wraps c. A nil client gets DefaultTimeout.
func NewHTTP(c *http.Client) *HTTP {
	if c == nil {
		c = &http.Client{Timeout: DefaultTimeout}
	}
	return &HTTP{c: c}
}

// verdictResp is the common response shape of every modality service.
// Extra fields are ignored.
type verdictResp struct {
	Prediction string   `json:"prediction"`
	Confidence *float64 `json:"confidence"`
}

func (h *HTTP) do(req *http.Request, name string) (models.ModalityResult, error) {
	resp, err := h.c.Do(req)
	if err != nil {
		return models.ModalityResult{}, fmt.Errorf("%s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return models.ModalityResult{}, fmt.Errorf("%s %s: %s", name, resp.Status, strings.TrimSpace(string(body)))
	}

	var out verdictResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.ModalityResult{}, fmt.Errorf("%s decode: %w", name, err)
	}
	if out.Prediction == "" {
		return models.ModalityResult{}, fmt.Errorf("%s: %w", name, ErrNoVerdict)
	}
	r := models.ModalityResult{Prediction: models.Prediction(out.Prediction).Normalize()}
	if out.Confidence != nil {
		r.Confidence = *out.Confidence
	}
	return r, nil
}

// Analyze dispatches to the client for m. Text reads the whole of r as the
// transcript; voice and face upload r as a file.
func (h *HTTP) Analyze(ctx context.Context, m models.Modality, url, filename string, r io.Reader) (models.ModalityResult, error) {
	switch m {
	case models.ModalityText:
		b, err := io.ReadAll(r)
		if err != nil {
			return models.ModalityResult{}, fmt.Errorf("text: reading input: %w", err)
		}
		return h.Text(ctx, url, string(b))
	case models.ModalityVoice:
		return h.Voice(ctx, url, filename, r)
	case models.ModalityFace:
		return h.Face(ctx, url, filename, r)
	}
	return models.ModalityResult{}, fmt.Errorf("unknown modality %q", m)
}
