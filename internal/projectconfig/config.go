// Package projectconfig provides the ProjectConfig struct and loader for
// .vericloud.yaml project-level configuration files.
package projectconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vericloud/vericloud/internal/utils"
	"gopkg.in/yaml.v3"
)

// FileName is the project configuration file looked up by Load.
const FileName = ".vericloud.yaml"

// maxWalkUp bounds how many parent directories Load searches.
const maxWalkUp = 10

// Default values for project configuration. New() references them and no
// other code should duplicate them.
const (
	DefaultWarmupSeconds      = 30.0
	DefaultFPS                = 30
	DefaultFeatureLength      = 70
	DefaultHistorySize        = 60
	DefaultSmoothingWindow    = 5
	DefaultDeceptionThreshold = 0.30

	DefaultMaxFrames          = 45
	DefaultMaxSeconds         = 25.0
	DefaultSkipFactor         = 6
	DefaultMaxSkip            = 10
	DefaultSkipStep           = 2
	DefaultSlowFrameMs        = 2000
	DefaultSoftBaselineFrames = 5
	DefaultHardBaselineFrames = 15

	DefaultServiceTimeout = 30

	DefaultServerHost = "127.0.0.1"
	DefaultServerPort = 8080
)

// ScoringConfig holds the frame scorer thresholds.
type ScoringConfig struct {
	WarmupSeconds      float64 `yaml:"warmup_seconds,omitempty"`
	FPS                int     `yaml:"fps,omitempty"`
	FeatureLength      int     `yaml:"feature_length,omitempty"`
	HistorySize        int     `yaml:"history_size,omitempty"`
	SmoothingWindow    int     `yaml:"smoothing_window,omitempty"`
	DeceptionThreshold float64 `yaml:"deception_threshold,omitempty"`
}

// SessionConfig holds the per-video budget.
type SessionConfig struct {
	MaxFrames          int     `yaml:"max_frames,omitempty"`
	MaxSeconds         float64 `yaml:"max_seconds,omitempty"`
	SkipFactor         int     `yaml:"skip_factor,omitempty"`
	MaxSkip            int     `yaml:"max_skip,omitempty"`
	SkipStep           int     `yaml:"skip_step,omitempty"`
	SlowFrameMs        int     `yaml:"slow_frame_ms,omitempty"`
	// SoftBaselineFrames and HardBaselineFrames bound the warm-up. Zero keeps
	// the default and a negative value turns that forced-baseline path off.
	SoftBaselineFrames int `yaml:"soft_baseline_frames,omitempty"`
	HardBaselineFrames int `yaml:"hard_baseline_frames,omitempty"`
	// LogDir receives one NDJSON log per session. Empty disables logging.
	LogDir string `yaml:"log_dir,omitempty"`
}

// WeightsConfig is one fusion weight set. A set given in the file replaces
// the default set as a whole.
type WeightsConfig struct {
	Text  float64 `yaml:"text"`
	Voice float64 `yaml:"voice"`
	Face  float64 `yaml:"face"`
}

// FusionConfig holds the two fusion weight sets.
type FusionConfig struct {
	WithFace    *WeightsConfig `yaml:"with_face,omitempty"`
	WithoutFace *WeightsConfig `yaml:"without_face,omitempty"`
}

// ServicesConfig holds the modality service endpoints.
type ServicesConfig struct {
	Text           string `yaml:"text,omitempty"`
	Voice          string `yaml:"voice,omitempty"`
	Face           string `yaml:"face,omitempty"`
	Extractor      string `yaml:"extractor,omitempty"`
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"`
}

// ModelConfig locates the classifier and scaler artifacts, locally or in
// blob storage.
type ModelConfig struct {
	Classifier string `yaml:"classifier,omitempty"`
	Scaler     string `yaml:"scaler,omitempty"`

	AccountURL          string `yaml:"account_url,omitempty"`
	Container           string `yaml:"container,omitempty"`
	ConnectionStringEnv string `yaml:"connection_string_env,omitempty"`
	ClassifierBlob      string `yaml:"classifier_blob,omitempty"`
	ScalerBlob          string `yaml:"scaler_blob,omitempty"`
	CacheDir            string `yaml:"cache_dir,omitempty"`
}

// ConnectionString resolves the blob connection string from the configured
// environment variable.
func (m ModelConfig) ConnectionString() string {
	if m.ConnectionStringEnv == "" {
		return ""
	}
	return os.Getenv(m.ConnectionStringEnv)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string   `yaml:"host,omitempty"`
	Port           int      `yaml:"port,omitempty"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// ProjectConfig is the top-level configuration loaded from .vericloud.yaml.
type ProjectConfig struct {
	Scoring  ScoringConfig  `yaml:"scoring,omitempty"`
	Session  SessionConfig  `yaml:"session,omitempty"`
	Fusion   FusionConfig   `yaml:"fusion,omitempty"`
	Services ServicesConfig `yaml:"services,omitempty"`
	Model    ModelConfig    `yaml:"model,omitempty"`
	Server   ServerConfig   `yaml:"server,omitempty"`

	// Path is the file the values were read from, empty for pure defaults.
	Path string `yaml:"-"`
}

// New returns a ProjectConfig with all hard-coded defaults populated.
func New() *ProjectConfig {
	return &ProjectConfig{
		Scoring: ScoringConfig{
			WarmupSeconds:      DefaultWarmupSeconds,
			FPS:                DefaultFPS,
			FeatureLength:      DefaultFeatureLength,
			HistorySize:        DefaultHistorySize,
			SmoothingWindow:    DefaultSmoothingWindow,
			DeceptionThreshold: DefaultDeceptionThreshold,
		},
		Session: SessionConfig{
			MaxFrames:          DefaultMaxFrames,
			MaxSeconds:         DefaultMaxSeconds,
			SkipFactor:         DefaultSkipFactor,
			MaxSkip:            DefaultMaxSkip,
			SkipStep:           DefaultSkipStep,
			SlowFrameMs:        DefaultSlowFrameMs,
			SoftBaselineFrames: DefaultSoftBaselineFrames,
			HardBaselineFrames: DefaultHardBaselineFrames,
		},
		Fusion: FusionConfig{
			WithFace:    &WeightsConfig{Text: 0.35, Voice: 0.35, Face: 0.30},
			WithoutFace: &WeightsConfig{Text: 0.5, Voice: 0.5, Face: 0},
		},
		Services: ServicesConfig{
			TimeoutSeconds: DefaultServiceTimeout,
		},
		Server: ServerConfig{
			Host: DefaultServerHost,
			Port: DefaultServerPort,
		},
	}
}

// Load finds .vericloud.yaml by walking up from startDir (max 10 levels),
// unmarshals it, and fills in missing fields with defaults.
// If no config file is found, returns defaults with a nil error.
// Real I/O errors (e.g. permission denied) are returned to the caller.
func Load(startDir string) (*ProjectConfig, error) {
	cfg := New()

	path, data, err := findConfigFile(startDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil // no file found → return defaults
		}
		return nil, fmt.Errorf("loading %s: %w", FileName, err)
	}

	fileCfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	mergeConfig(cfg, fileCfg)
	cfg.setPath(path)
	return cfg, nil
}

// LoadFile reads an explicit config file. Unlike Load, a missing file is an error.
func LoadFile(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	fileCfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg := New()
	mergeConfig(cfg, fileCfg)
	cfg.setPath(path)
	return cfg, nil
}

// setPath records where cfg was read from and roots its relative file
// paths at that directory.
func (c *ProjectConfig) setPath(path string) {
	c.Path = path
	utils.ResolvePaths(filepath.Dir(path),
		&c.Model.Classifier,
		&c.Model.Scaler,
		&c.Model.CacheDir,
		&c.Session.LogDir,
	)
}

func parse(data []byte) (*ProjectConfig, error) {
	var fileCfg ProjectConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, err
	}
	return &fileCfg, nil
}

// findConfigFile walks up from dir looking for .vericloud.yaml (max 10
// levels). Returns os.ErrNotExist if no config file is found. Propagates
// real I/O errors instead of silently swallowing them.
func findConfigFile(dir string) (string, []byte, error) {
	// Convert to absolute path so filepath.Dir(".") walks correctly.
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", nil, fmt.Errorf("resolving path %q: %w", dir, err)
	}
	dir = absDir

	for i := 0; i < maxWalkUp; i++ {
		p := filepath.Join(dir, FileName)
		data, err := os.ReadFile(p)
		if err == nil {
			return p, data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", nil, fmt.Errorf("reading %q: %w", p, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break // reached filesystem root
		}
		dir = parent
	}
	return "", nil, os.ErrNotExist
}

// mergeConfig overlays non-zero values from src onto dst.
func mergeConfig(dst, src *ProjectConfig) {
	// Scoring
	setFloat(&dst.Scoring.WarmupSeconds, src.Scoring.WarmupSeconds)
	setInt(&dst.Scoring.FPS, src.Scoring.FPS)
	setInt(&dst.Scoring.FeatureLength, src.Scoring.FeatureLength)
	setInt(&dst.Scoring.HistorySize, src.Scoring.HistorySize)
	setInt(&dst.Scoring.SmoothingWindow, src.Scoring.SmoothingWindow)
	setFloat(&dst.Scoring.DeceptionThreshold, src.Scoring.DeceptionThreshold)

	// Session
	setInt(&dst.Session.MaxFrames, src.Session.MaxFrames)
	setFloat(&dst.Session.MaxSeconds, src.Session.MaxSeconds)
	setInt(&dst.Session.SkipFactor, src.Session.SkipFactor)
	setInt(&dst.Session.MaxSkip, src.Session.MaxSkip)
	setInt(&dst.Session.SkipStep, src.Session.SkipStep)
	setInt(&dst.Session.SlowFrameMs, src.Session.SlowFrameMs)
	setInt(&dst.Session.SoftBaselineFrames, src.Session.SoftBaselineFrames)
	setInt(&dst.Session.HardBaselineFrames, src.Session.HardBaselineFrames)
	setString(&dst.Session.LogDir, src.Session.LogDir)

	// Fusion
	if src.Fusion.WithFace != nil {
		dst.Fusion.WithFace = src.Fusion.WithFace
	}
	if src.Fusion.WithoutFace != nil {
		dst.Fusion.WithoutFace = src.Fusion.WithoutFace
	}

	// Services
	setString(&dst.Services.Text, src.Services.Text)
	setString(&dst.Services.Voice, src.Services.Voice)
	setString(&dst.Services.Face, src.Services.Face)
	setString(&dst.Services.Extractor, src.Services.Extractor)
	setInt(&dst.Services.TimeoutSeconds, src.Services.TimeoutSeconds)

	// Model
	setString(&dst.Model.Classifier, src.Model.Classifier)
	setString(&dst.Model.Scaler, src.Model.Scaler)
	setString(&dst.Model.AccountURL, src.Model.AccountURL)
	setString(&dst.Model.Container, src.Model.Container)
	setString(&dst.Model.ConnectionStringEnv, src.Model.ConnectionStringEnv)
	setString(&dst.Model.ClassifierBlob, src.Model.ClassifierBlob)
	setString(&dst.Model.ScalerBlob, src.Model.ScalerBlob)
	setString(&dst.Model.CacheDir, src.Model.CacheDir)

	// Server
	setString(&dst.Server.Host, src.Server.Host)
	setInt(&dst.Server.Port, src.Server.Port)
	if len(src.Server.AllowedOrigins) > 0 {
		dst.Server.AllowedOrigins = src.Server.AllowedOrigins
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}
