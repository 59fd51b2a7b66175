package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vericloud/vericloud/internal/models"
	"github.com/vericloud/vericloud/internal/validation"
)

type fuseOptions struct {
	text            string
	voice           string
	face            string
	jsonOutput      bool
	failOnDeceptive bool
}

// fuseRequest mirrors the POST /api/fuse body.
type fuseRequest struct {
	Text  models.ModalityResult  `json:"text"`
	Voice models.ModalityResult  `json:"voice"`
	Face  *models.ModalityResult `json:"face,omitempty"`
}

func newFuseCommand() *cobra.Command {
	var opts fuseOptions

	cmd := &cobra.Command{
		Use:   "fuse [request.json]",
		Short: "Fuse modality verdicts into one decision",
		Long: `Fuse text, voice and optional face verdicts into one decision.

Verdicts come either from a request file in the POST /api/fuse format
("-" reads stdin) or from --text, --voice and --face given as
Label:confidence, for example --text Lie:0.8 --voice Truth:0.6.

Text and voice are required. Without them the result is labeled Error.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFuse(cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.text, "text", "", "Text verdict as Label:confidence")
	cmd.Flags().StringVar(&opts.voice, "voice", "", "Voice verdict as Label:confidence")
	cmd.Flags().StringVar(&opts.face, "face", "", "Face verdict as Label:confidence")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVar(&opts.failOnDeceptive, "fail-on-deceptive", false, "Exit with status 1 when the verdict is Deceptive")

	return cmd
}

func runFuse(cmd *cobra.Command, args []string, opts fuseOptions) error {
	flagsSet := opts.text != "" || opts.voice != "" || opts.face != ""
	if len(args) > 0 && flagsSet {
		return errors.New("use either a request file or --text/--voice/--face, not both")
	}

	var (
		req fuseRequest
		err error
	)
	if len(args) > 0 {
		req, err = readFuseRequest(cmd.InOrStdin(), args[0])
	} else {
		req, err = fuseRequestFromFlags(opts)
	}
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	fuser, err := newFuser(cfg)
	if err != nil {
		return err
	}

	results := map[models.Modality]models.ModalityResult{}
	if req.Text != (models.ModalityResult{}) {
		results[models.ModalityText] = req.Text
	}
	if req.Voice != (models.ModalityResult{}) {
		results[models.ModalityVoice] = req.Voice
	}
	if req.Face != nil {
		results[models.ModalityFace] = *req.Face
	}
	res := fuser.FuseAvailable(results)

	out := cmd.OutOrStdout()
	if opts.jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		printFusionResult(out, res)
	}

	if res.Prediction == models.PredictionError {
		return errors.New(res.Reasoning)
	}
	if opts.failOnDeceptive && res.Prediction == models.PredictionDeceptive {
		return &DeceptiveVerdictError{Message: fmt.Sprintf("verdict: %s", res.Prediction)}
	}
	return nil
}

func readFuseRequest(stdin io.Reader, path string) (fuseRequest, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fuseRequest{}, fmt.Errorf("reading fuse request: %w", err)
	}
	if errs := validation.ValidateFuseRequestBytes(data); len(errs) > 0 {
		return fuseRequest{}, fmt.Errorf("invalid fuse request:\n  %s", strings.Join(errs, "\n  "))
	}
	var req fuseRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fuseRequest{}, fmt.Errorf("parsing fuse request: %w", err)
	}
	return req, nil
}

func fuseRequestFromFlags(opts fuseOptions) (fuseRequest, error) {
	var req fuseRequest
	var err error
	if opts.text != "" {
		if req.Text, err = parseVerdictFlag("text", opts.text); err != nil {
			return req, err
		}
	}
	if opts.voice != "" {
		if req.Voice, err = parseVerdictFlag("voice", opts.voice); err != nil {
			return req, err
		}
	}
	if opts.face != "" {
		face, err := parseVerdictFlag("face", opts.face)
		if err != nil {
			return req, err
		}
		req.Face = &face
	}
	return req, nil
}

// parseVerdictFlag parses "Label:confidence". Confidence may be a fraction or
// a percentage.
func parseVerdictFlag(name, value string) (models.ModalityResult, error) {
	label, conf, ok := strings.Cut(value, ":")
	if !ok || strings.TrimSpace(label) == "" {
		return models.ModalityResult{}, fmt.Errorf("--%s: expected Label:confidence, got %q", name, value)
	}
	c, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(conf, "%")), 64)
	if err != nil {
		return models.ModalityResult{}, fmt.Errorf("--%s: invalid confidence %q", name, conf)
	}
	if c < 0 || c > 100 {
		return models.ModalityResult{}, fmt.Errorf("--%s: confidence %v out of range", name, c)
	}
	return models.ModalityResult{Prediction: models.Prediction(strings.TrimSpace(label)), Confidence: c}, nil
}
