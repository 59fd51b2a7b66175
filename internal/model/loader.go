package model

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/vericloud/vericloud/internal/utils"
	"github.com/vericloud/vericloud/internal/validation"
)

// Kind is the artifact discriminator stored in the "kind" field.
type Kind string

const (
	KindLogistic       Kind = "logistic"
	KindTreeEnsemble   Kind = "tree_ensemble"
	KindBoosterJSON    Kind = "booster_json"
	KindStandardScaler Kind = "standard_scaler"
)

// Artifact is a decoded model artifact. Exactly one of Classifier and
// Scaler is set.
type Artifact struct {
	Kind       Kind
	Version    string
	Classifier Classifier
	Scaler     Scaler
}

// Decode parses an artifact from data. The bytes may be gzip or zstd
// compressed and encoded as JSON or YAML. The decoded document is checked
// against the artifact schema before it is dispatched on its kind.
func Decode(data []byte) (*Artifact, error) {
	raw, err := utils.ReadAllDecompressed(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}

	doc, err := validation.ParseDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	if errs := validation.ValidateArtifact(doc); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidArtifact, strings.Join(errs, "; "))
	}

	var header struct {
		Kind    Kind   `mapstructure:"kind"`
		Version string `mapstructure:"version"`
	}
	if err := decodeInto(doc, &header); err != nil {
		return nil, err
	}

	a := &Artifact{Kind: header.Kind, Version: header.Version}
	switch header.Kind {
	case KindLogistic:
		var v struct {
			Weights   []float64 `mapstructure:"weights"`
			Intercept float64   `mapstructure:"intercept"`
		}
		if err := decodeInto(doc, &v); err != nil {
			return nil, err
		}
		a.Classifier, err = NewLogistic(v.Weights, v.Intercept)
	case KindTreeEnsemble:
		var v struct {
			Aggregation Aggregation `mapstructure:"aggregation"`
			BaseScore   *float64    `mapstructure:"base_score"`
			Trees       []struct {
				Nodes []Node `mapstructure:"nodes"`
			} `mapstructure:"trees"`
		}
		if err := decodeInto(doc, &v); err != nil {
			return nil, err
		}
		trees := make([][]Node, 0, len(v.Trees))
		for _, t := range v.Trees {
			trees = append(trees, t.Nodes)
		}
		a.Classifier, err = NewTreeEnsemble(trees, v.Aggregation, baseScoreOr(v.BaseScore))
	case KindBoosterJSON:
		var v struct {
			BaseScore *float64      `mapstructure:"base_score"`
			Trees     []boosterNode `mapstructure:"trees"`
		}
		if err := decodeInto(doc, &v); err != nil {
			return nil, err
		}
		a.Classifier, err = newBoosterEnsemble(v.Trees, baseScoreOr(v.BaseScore))
	case KindStandardScaler:
		var v struct {
			Mean  []float64 `mapstructure:"mean"`
			Scale []float64 `mapstructure:"scale"`
		}
		if err := decodeInto(doc, &v); err != nil {
			return nil, err
		}
		a.Scaler, err = NewStandardScaler(v.Mean, v.Scale)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidArtifact, header.Kind)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func baseScoreOr(p *float64) float64 {
	if p == nil {
		return 0.5
	}
	return *p
}

func decodeInto(doc any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	return nil
}

// ReadArtifact reads and decodes an artifact from r.
func ReadArtifact(r io.Reader) (*Artifact, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}
	return Decode(data)
}

// LoadClassifier loads a classifier artifact from path.
func LoadClassifier(path string) (Classifier, error) {
	a, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	if a.Classifier == nil {
		return nil, fmt.Errorf("%w: %s holds a %s artifact, not a classifier", ErrLoad, path, a.Kind)
	}
	return a.Classifier, nil
}

// LoadScaler loads a scaler artifact from path.
func LoadScaler(path string) (Scaler, error) {
	a, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	if a.Scaler == nil {
		return nil, fmt.Errorf("%w: %s holds a %s artifact, not a scaler", ErrLoad, path, a.Kind)
	}
	return a.Scaler, nil
}

func loadFile(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	a, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, path, err)
	}
	return a, nil
}
