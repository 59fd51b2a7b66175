package orchestration

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vericloud/vericloud/internal/clients"
	"github.com/vericloud/vericloud/internal/fusion"
	"github.com/vericloud/vericloud/internal/models"
)

type analyzerFunc func(ctx context.Context, m models.Modality, url, filename string, r io.Reader) (models.ModalityResult, error)

func (f analyzerFunc) Analyze(ctx context.Context, m models.Modality, url, filename string, r io.Reader) (models.ModalityResult, error) {
	return f(ctx, m, url, filename, r)
}

// fixed answers each modality from a table; a missing entry fails.
func fixed(answers map[models.Modality]models.ModalityResult) analyzerFunc {
	return func(_ context.Context, m models.Modality, _, _ string, _ io.Reader) (models.ModalityResult, error) {
		r, ok := answers[m]
		if !ok {
			return models.ModalityResult{}, errors.New(string(m) + " service down")
		}
		return r, nil
	}
}

var allServices = Services{Text: "http://text", Voice: "http://voice", Face: "http://face"}

func upload(name string) *Upload { return &Upload{Filename: name, Body: strings.NewReader("bytes")} }

func TestRun_TextAndVoice(t *testing.T) {
	p := New(Options{
		Client: fixed(map[models.Modality]models.ModalityResult{
			models.ModalityText:  {Prediction: models.PredictionDeceptive, Confidence: 0.8},
			models.ModalityVoice: {Prediction: models.PredictionTruthful, Confidence: 0.6},
		}),
		Services: allServices,
	})

	got := p.Run(context.Background(), Inputs{Text: "hello", Voice: upload("a.wav")})
	require.Equal(t, models.PredictionDeceptive, got.Prediction)
	require.InDelta(t, 0.6, got.Score, 1e-9)
	require.Equal(t, map[models.Modality]string{models.ModalityFace: MsgNoVideo}, got.Errors)
}

func TestRun_AllThree(t *testing.T) {
	p := New(Options{
		Client: fixed(map[models.Modality]models.ModalityResult{
			models.ModalityText:  {Prediction: models.PredictionDeceptive, Confidence: 0.8},
			models.ModalityVoice: {Prediction: models.PredictionTruthful, Confidence: 0.6},
			models.ModalityFace:  {Prediction: models.PredictionTruthful, Confidence: 90},
		}),
		Services: allServices,
	})

	got := p.Run(context.Background(), Inputs{Text: "hello", Voice: upload("a.wav"), Face: upload("v.mp4")})
	require.Equal(t, models.PredictionTruthful, got.Prediction)
	require.InDelta(t, 0.45, got.Score, 1e-9)
	require.Nil(t, got.Errors)
}

func TestRun_LocalFaceResult(t *testing.T) {
	p := New(Options{
		Client: fixed(map[models.Modality]models.ModalityResult{
			models.ModalityText:  {Prediction: models.PredictionDeceptive, Confidence: 0.8},
			models.ModalityVoice: {Prediction: models.PredictionTruthful, Confidence: 0.6},
		}),
		Services: Services{Text: "http://text", Voice: "http://voice"},
	})

	face := models.ModalityResult{Prediction: models.PredictionTruthful, Confidence: 0.9}
	got := p.Run(context.Background(), Inputs{Text: "hello", Voice: upload("a.wav"), FaceResult: &face})
	require.InDelta(t, 0.45, got.Score, 1e-9)
	require.Contains(t, got.Breakdown, models.ModalityFace)
}

func TestRun_FailureBecomesUnknown(t *testing.T) {
	p := New(Options{
		Client: fixed(map[models.Modality]models.ModalityResult{
			models.ModalityText: {Prediction: models.PredictionDeceptive, Confidence: 0.8},
		}),
		Services: allServices,
	})

	got := p.Run(context.Background(), Inputs{Text: "hello", Voice: upload("a.wav"), Face: upload("v.mp4")})
	require.Equal(t, models.PredictionError, got.Prediction)
	require.Equal(t, fusion.ReasoningRequired, got.Reasoning)
	require.Zero(t, got.Score)
	require.Equal(t, "voice service down", got.Errors[models.ModalityVoice])
	require.Equal(t, "face service down", got.Errors[models.ModalityFace])
	require.Equal(t, models.PredictionUnknown, got.Breakdown[models.ModalityVoice].Prediction)
}

func TestRun_MissingInputs(t *testing.T) {
	p := New(Options{Client: fixed(nil), Services: allServices})

	got := p.Run(context.Background(), Inputs{})
	require.Equal(t, models.PredictionError, got.Prediction)
	require.Equal(t, map[models.Modality]string{
		models.ModalityText:  MsgNoText,
		models.ModalityVoice: MsgNoAudio,
		models.ModalityFace:  MsgNoVideo,
	}, got.Errors)
}

func TestRun_MissingEndpoint(t *testing.T) {
	p := New(Options{
		Client: fixed(map[models.Modality]models.ModalityResult{
			models.ModalityText: {Prediction: models.PredictionTruthful, Confidence: 0.8},
		}),
		Services: Services{Text: "http://text"},
	})

	got := p.Run(context.Background(), Inputs{Text: "hello", Voice: upload("a.wav")})
	require.Equal(t, models.PredictionError, got.Prediction)
	require.Contains(t, got.Errors[models.ModalityVoice], ErrNoEndpoint.Error())
}

func TestRun_CallsAreConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(2)
	client := analyzerFunc(func(ctx context.Context, m models.Modality, _, _ string, _ io.Reader) (models.ModalityResult, error) {
		// Each call waits until the other has started.
		wg.Done()
		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		select {
		case <-done:
			return models.ModalityResult{Prediction: models.PredictionTruthful, Confidence: 0.7}, nil
		case <-ctx.Done():
			return models.ModalityResult{}, ctx.Err()
		}
	})
	p := New(Options{Client: client, Services: allServices, Timeout: 5 * time.Second})

	got := p.Run(context.Background(), Inputs{Text: "hello", Voice: upload("a.wav")})
	require.Equal(t, models.PredictionTruthful, got.Prediction)
}

func TestRun_Timeout(t *testing.T) {
	client := analyzerFunc(func(ctx context.Context, m models.Modality, _, _ string, _ io.Reader) (models.ModalityResult, error) {
		if m == models.ModalityVoice {
			<-ctx.Done()
			return models.ModalityResult{}, ctx.Err()
		}
		return models.ModalityResult{Prediction: models.PredictionTruthful, Confidence: 0.7}, nil
	})
	p := New(Options{Client: client, Services: allServices, Timeout: 20 * time.Millisecond})

	got := p.Run(context.Background(), Inputs{Text: "hello", Voice: upload("a.wav")})
	require.Equal(t, models.PredictionError, got.Prediction)
	require.Equal(t, context.DeadlineExceeded.Error(), got.Errors[models.ModalityVoice])
}

func TestRun_Progress(t *testing.T) {
	p := New(Options{
		Client: fixed(map[models.Modality]models.ModalityResult{
			models.ModalityText: {Prediction: models.PredictionTruthful, Confidence: 0.8},
		}),
		Services: allServices,
	})

	var mu sync.Mutex
	counts := map[EventType]int{}
	p.OnProgress(func(ev ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		counts[ev.EventType]++
	})

	p.Run(context.Background(), Inputs{Text: "hello", Voice: upload("a.wav")})
	assert.Equal(t, 2, counts[EventModalityStart])
	assert.Equal(t, 1, counts[EventModalityComplete])
	assert.Equal(t, 1, counts[EventModalityFailed])
}

func TestRun_HTTPClient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/text", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"prediction":"Lie","confidence":0.8}`)
	})
	mux.HandleFunc("/voice", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"prediction":"Truth","confidence":60}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := New(Options{
		Client:   clients.NewHTTP(srv.Client()),
		Services: Services{Text: srv.URL + "/text", Voice: srv.URL + "/voice"},
	})

	got := p.Run(context.Background(), Inputs{Text: "hello", Voice: upload("a.wav")})
	require.Equal(t, models.PredictionDeceptive, got.Prediction)
	require.InDelta(t, 0.6, got.Score, 1e-9)
}
