package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/vericloud/vericloud/internal/clients"
	"github.com/vericloud/vericloud/internal/fusion"
	"github.com/vericloud/vericloud/internal/model"
	"github.com/vericloud/vericloud/internal/orchestration"
	"github.com/vericloud/vericloud/internal/projectconfig"
	"github.com/vericloud/vericloud/internal/scorer"
	"github.com/vericloud/vericloud/internal/session"
)

const configFileName = projectconfig.FileName

// loadConfig reads --config when given, otherwise the nearest project file.
func loadConfig(cmd *cobra.Command) (*projectconfig.ProjectConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		return projectconfig.LoadFile(path)
	}
	return projectconfig.Load(".")
}

func scoringConfig(cfg *projectconfig.ProjectConfig) scorer.Config {
	s := cfg.Scoring
	return scorer.Config{
		Warmup:             time.Duration(s.WarmupSeconds * float64(time.Second)),
		FPS:                s.FPS,
		FeatureLength:      s.FeatureLength,
		HistorySize:        s.HistorySize,
		SmoothingWindow:    s.SmoothingWindow,
		DeceptionThreshold: s.DeceptionThreshold,
	}
}

func sessionBudget(cfg *projectconfig.ProjectConfig) session.Budget {
	s := cfg.Session
	return session.Budget{
		MaxFrames:          s.MaxFrames,
		MaxDuration:        time.Duration(s.MaxSeconds * float64(time.Second)),
		SkipFactor:         s.SkipFactor,
		MaxSkip:            s.MaxSkip,
		SkipStep:           s.SkipStep,
		SlowFrame:          time.Duration(s.SlowFrameMs) * time.Millisecond,
		SoftBaselineFrames: s.SoftBaselineFrames,
		HardBaselineFrames: s.HardBaselineFrames,
	}
}

func newFuser(cfg *projectconfig.ProjectConfig) (*fusion.Fuser, error) {
	fc := fusion.DefaultConfig()
	if w := cfg.Fusion.WithFace; w != nil {
		fc.WithFace = fusion.Weights{Text: w.Text, Voice: w.Voice, Face: w.Face}
	}
	if w := cfg.Fusion.WithoutFace; w != nil {
		fc.WithoutFace = fusion.Weights{Text: w.Text, Voice: w.Voice, Face: w.Face}
	}
	f, err := fusion.New(fc)
	if err != nil {
		return nil, fmt.Errorf("fusion config: %w", err)
	}
	return f, nil
}

func serviceTimeout(cfg *projectconfig.ProjectConfig) time.Duration {
	return time.Duration(cfg.Services.TimeoutSeconds) * time.Second
}

func newPipeline(cfg *projectconfig.ProjectConfig, fuser *fusion.Fuser) *orchestration.Pipeline {
	timeout := serviceTimeout(cfg)
	return orchestration.New(orchestration.Options{
		Client: clients.NewHTTP(&http.Client{Timeout: timeout + 5*time.Second}),
		Services: orchestration.Services{
			Text:  cfg.Services.Text,
			Voice: cfg.Services.Voice,
			Face:  cfg.Services.Face,
		},
		Timeout: timeout,
		Fuser:   fuser,
	})
}

func modelSource(cfg *projectconfig.ProjectConfig) model.Source {
	m := cfg.Model
	return model.Source{
		ClassifierPath: m.Classifier,
		ScalerPath:     m.Scaler,
		Blob: model.BlobConfig{
			AccountURL:       m.AccountURL,
			ConnectionString: m.ConnectionString(),
			Container:        m.Container,
			CacheDir:         m.CacheDir,
		},
		ClassifierBlob: m.ClassifierBlob,
		ScalerBlob:     m.ScalerBlob,
	}
}

// modelConfigured reports whether any classifier location is set.
func modelConfigured(src model.Source) bool {
	return src.ClassifierPath != "" || (src.Blob.Enabled() && src.ClassifierBlob != "")
}

func serviceMap(cfg *projectconfig.ProjectConfig) map[string]string {
	out := map[string]string{}
	for name, url := range map[string]string{
		"text":      cfg.Services.Text,
		"voice":     cfg.Services.Voice,
		"face":      cfg.Services.Face,
		"extractor": cfg.Services.Extractor,
	} {
		if url != "" {
			out[name] = url
		}
	}
	return out
}
