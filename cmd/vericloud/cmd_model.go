package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/vericloud/vericloud/internal/model"
)

func newModelCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Inspect classifier and scaler artifacts",
	}
	cmd.AddCommand(newModelCheckCommand())
	return cmd
}

// widther is implemented by artifacts with a fixed feature width.
type widther interface {
	Width() int
}

func newModelCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [artifact...]",
		Short: "Validate model artifacts",
		Long: `Validate model artifacts.

With arguments, each artifact file is decoded and checked against the
artifact schema, and its kind, version and feature width are printed.

Without arguments, the classifier and scaler from the model section of the
config are loaded (from blob storage when configured) and probed with a
zero feature vector of scoring.feature_length.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) > 0 {
				failed := 0
				for _, path := range args {
					if err := checkArtifactFile(out, path); err != nil {
						fmt.Fprintf(out, "✗ %s: %v\n", path, err) //nolint:errcheck
						failed++
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d artifacts invalid", failed, len(args))
				}
				return nil
			}
			return checkConfiguredModel(cmd, out)
		},
	}
	return cmd
}

func checkArtifactFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck

	a, err := model.ReadArtifact(f)
	if err != nil {
		return err
	}
	artifactVersion := a.Version
	if artifactVersion == "" {
		artifactVersion = "-"
	}
	fmt.Fprintf(w, "✓ %s: kind=%s version=%s width=%s\n", path, a.Kind, artifactVersion, artifactWidth(a)) //nolint:errcheck
	return nil
}

func artifactWidth(a *model.Artifact) string {
	var v any = a.Classifier
	if a.Scaler != nil {
		v = a.Scaler
	}
	if wd, ok := v.(widther); ok && wd.Width() > 0 {
		return fmt.Sprintf("%d", wd.Width())
	}
	return "any"
}

func checkConfiguredModel(cmd *cobra.Command, w io.Writer) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	src := modelSource(cfg)
	if !modelConfigured(src) {
		return fmt.Errorf("%w: no classifier configured (set model.classifier in %s)", model.ErrLoad, configFileName)
	}

	c, s, err := model.FromSource(src, slog.Default()).Get(cmd.Context())
	if err != nil {
		return err
	}

	n := cfg.Scoring.FeatureLength
	x, err := s.Transform(make([]float64, n))
	if err != nil {
		return fmt.Errorf("scaler rejects %d features: %w", n, err)
	}
	p, err := c.PredictProba(x)
	if err != nil {
		return fmt.Errorf("classifier rejects %d features: %w", n, err)
	}
	fmt.Fprintf(w, "✓ model loaded, %d features, P(deceptive|0)=%.3f\n", n, p) //nolint:errcheck
	return nil
}
