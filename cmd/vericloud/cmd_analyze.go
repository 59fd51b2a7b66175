package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/vericloud/vericloud/internal/frames"
	"github.com/vericloud/vericloud/internal/fusion"
	"github.com/vericloud/vericloud/internal/model"
	"github.com/vericloud/vericloud/internal/models"
	"github.com/vericloud/vericloud/internal/orchestration"
	"github.com/vericloud/vericloud/internal/projectconfig"
	"github.com/vericloud/vericloud/internal/scorer"
	"github.com/vericloud/vericloud/internal/session"
	"github.com/vericloud/vericloud/internal/spinner"
)

type analyzeOptions struct {
	framesDir       string
	extractor       string
	sessionLog      string
	compressLog     bool
	failOnDeceptive bool
	jsonOutput      bool
	verbose         bool
	text            string
	audio           string
	maxFrames       int
	maxSeconds      float64
}

// analyzeReport is the --json output.
type analyzeReport struct {
	Session models.SessionVerdict `json:"session"`
	Fusion  *fusion.Result        `json:"fusion,omitempty"`
	LogPath string                `json:"log_path,omitempty"`
}

func newAnalyzeCommand() *cobra.Command {
	var opts analyzeOptions

	cmd := &cobra.Command{
		Use:   "analyze [features-file]",
		Short: "Score a recorded video and print its verdict",
		Long: `Score a recorded video and print the session verdict.

The input is either a feature file (JSON array, {"frames": [...]} or JSONL,
optionally gzip or zstd compressed; "-" reads stdin) or, with --frames-dir,
a directory of extracted frame images that are sent to the feature
extraction service one by one.

With --text and --audio the face verdict is fused with the text and voice
service verdicts.

Exit status is 1 when --fail-on-deceptive is set and the final verdict is
Deceptive, 2 on configuration or runtime errors.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.framesDir, "frames-dir", "", "Directory of frame images to send to the extractor")
	cmd.Flags().StringVar(&opts.extractor, "extractor", "", "Feature extractor URL (default: services.extractor from config)")
	cmd.Flags().StringVar(&opts.sessionLog, "session-log", "", "Directory to write the NDJSON session log to")
	cmd.Flags().BoolVar(&opts.compressLog, "compress-log", false, "Write the session log zstd-compressed")
	cmd.Flags().BoolVar(&opts.failOnDeceptive, "fail-on-deceptive", false, "Exit with status 1 when the verdict is Deceptive")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Print modality service progress")
	cmd.Flags().StringVar(&opts.text, "text", "", "Transcript to fuse with the face verdict")
	cmd.Flags().StringVar(&opts.audio, "audio", "", "Audio file to fuse with the face verdict")
	cmd.Flags().IntVar(&opts.maxFrames, "max-frames", 0, "Override session.max_frames")
	cmd.Flags().Float64Var(&opts.maxSeconds, "max-seconds", 0, "Override session.max_seconds")

	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string, opts analyzeOptions) error {
	if (len(args) == 0) == (opts.framesDir == "") {
		return errors.New("provide either a features file or --frames-dir")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if opts.maxFrames > 0 {
		cfg.Session.MaxFrames = opts.maxFrames
	}
	if opts.maxSeconds > 0 {
		cfg.Session.MaxSeconds = opts.maxSeconds
	}
	if opts.extractor != "" {
		cfg.Services.Extractor = opts.extractor
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := slog.Default()

	src := modelSource(cfg)
	if !modelConfigured(src) {
		return fmt.Errorf("%w: no classifier configured (set model.classifier in %s)", model.ErrLoad, configFileName)
	}
	c, s, err := model.FromSource(src, logger).Get(ctx)
	if err != nil {
		return err
	}
	sessionID := uuid.NewString()
	sc, err := scorer.New(scorer.Options{
		Config:     scoringConfig(cfg),
		Classifier: c,
		Scaler:     s,
		Logger:     logger,
		SessionID:  sessionID,
	})
	if err != nil {
		return err
	}

	source, extractor, closeSource, err := openSource(cmd.InOrStdin(), cfg.Scoring.FPS, cfg.Services.Extractor, args, opts)
	if err != nil {
		return err
	}
	defer closeSource()

	var (
		events  session.Logger = session.NopLogger{}
		logPath string
	)
	if opts.sessionLog != "" {
		logPath = session.DefaultLogPath(opts.sessionLog, sessionID)
		if opts.compressLog {
			logPath += ".zst"
		}
		jl, err := session.NewJSONLogger(logPath)
		if err != nil {
			return fmt.Errorf("opening session log: %w", err)
		}
		defer jl.Close() //nolint:errcheck
		events = jl
	}
	stopProgress := func() {}
	if opts.verbose && !opts.jsonOutput {
		sp := spinner.Start(cmd.ErrOrStderr(), "Scoring frames...")
		defer sp.Stop()
		stopProgress = sp.Stop
		events = session.MultiLogger{events, frameProgress{sp: sp}}
	}
	agg := session.New(sc, session.Options{
		Extractor: extractor,
		Logger:    logger,
		Events:    events,
		SessionID: sessionID,
	})

	verdict, err := agg.ProcessVideo(ctx, source, sessionBudget(cfg))
	stopProgress()
	if err != nil {
		return err
	}
	report := analyzeReport{Session: verdict, LogPath: logPath}

	if opts.text != "" || opts.audio != "" {
		res, err := fuseWithServices(ctx, cmd, cfg, verdict, opts)
		if err != nil {
			return err
		}
		report.Fusion = &res
	}

	out := cmd.OutOrStdout()
	if opts.jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printSessionVerdict(out, verdict)
		if report.Fusion != nil {
			fmt.Fprintln(out) //nolint:errcheck
			printFusionResult(out, *report.Fusion)
		}
		if logPath != "" {
			fmt.Fprintf(out, "\nSession log: %s\n", logPath) //nolint:errcheck
		}
	}

	final := verdict.Prediction
	if report.Fusion != nil {
		final = report.Fusion.Prediction
	}
	if opts.failOnDeceptive && final == models.PredictionDeceptive {
		return &DeceptiveVerdictError{Message: fmt.Sprintf("verdict: %s", final)}
	}
	return nil
}

// openSource picks the frame source and extractor for the command arguments.
func openSource(stdin io.Reader, fps int, extractorURL string, args []string, opts analyzeOptions) (frames.Source, frames.Extractor, func(), error) {
	if opts.framesDir != "" {
		if extractorURL == "" {
			return nil, nil, nil, errors.New("--frames-dir needs a feature extractor (--extractor or services.extractor)")
		}
		src, err := frames.NewDirSource(opts.framesDir, float64(fps))
		if err != nil {
			return nil, nil, nil, err
		}
		if src.Len() == 0 {
			return nil, nil, nil, fmt.Errorf("no frame images in %s", opts.framesDir)
		}
		return src, frames.NewRemoteExtractor(extractorURL, nil), func() {}, nil
	}

	r := stdin
	closeFn := func() {}
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening features: %w", err)
		}
		r = f
		closeFn = func() { f.Close() } //nolint:errcheck
	}
	vectors, err := frames.ReadVectors(r)
	if err != nil {
		closeFn()
		return nil, nil, nil, fmt.Errorf("reading features: %w", err)
	}
	return frames.VectorSource(vectors), frames.Precomputed{}, closeFn, nil
}

func fuseWithServices(ctx context.Context, cmd *cobra.Command, cfg *projectconfig.ProjectConfig, verdict models.SessionVerdict, opts analyzeOptions) (fusion.Result, error) {
	fuser, err := newFuser(cfg)
	if err != nil {
		return fusion.Result{}, err
	}
	p := newPipeline(cfg, fuser)
	if opts.verbose {
		p.OnProgress(progressPrinter(cmd.ErrOrStderr()))
	}

	face := verdict.ModalityResult()
	in := orchestration.Inputs{Text: opts.text, FaceResult: &face}
	if opts.audio != "" {
		f, err := os.Open(opts.audio)
		if err != nil {
			return fusion.Result{}, fmt.Errorf("opening audio: %w", err)
		}
		defer f.Close() //nolint:errcheck
		in.Voice = &orchestration.Upload{Filename: opts.audio, Body: f}
	}
	return p.Run(ctx, in), nil
}

// frameProgress mirrors scored frames onto a spinner.
type frameProgress struct {
	sp *spinner.Spinner
}

func (p frameProgress) Log(ev session.Event) error {
	switch ev.Type {
	case session.EventFrame:
		p.sp.Set(fmt.Sprintf("Frame %v: %v", ev.Data["frame"], ev.Data["label"]))
	case session.EventSkipAdjusted:
		p.sp.Set(fmt.Sprintf("Slow frame, skip now %v", ev.Data["skip_factor"]))
	}
	return nil
}

func (frameProgress) Close() error { return nil }

func progressPrinter(w io.Writer) orchestration.ProgressListener {
	return func(ev orchestration.ProgressEvent) {
		duration := time.Duration(ev.DurationMs) * time.Millisecond
		switch ev.EventType {
		case orchestration.EventModalityStart:
			fmt.Fprintf(w, "  → %s service...\n", ev.Modality) //nolint:errcheck
		case orchestration.EventModalityComplete:
			fmt.Fprintf(w, "  ✓ %s: %s %.2f (%v)\n", ev.Modality, ev.Result.Prediction, ev.Result.Confidence, duration) //nolint:errcheck
		case orchestration.EventModalityFailed:
			fmt.Fprintf(w, "  ✗ %s: %s (%v)\n", ev.Modality, ev.Error, duration) //nolint:errcheck
		}
	}
}

func printSessionVerdict(w io.Writer, v models.SessionVerdict) {
	fmt.Fprintf(w, "Face session\n%s\n", strings.Repeat("─", 44)) //nolint:errcheck
	label := string(v.Prediction)
	if v.Fallback {
		label += " (fallback)"
	}
	rows := [][2]string{
		{"Session", v.SessionID},
		{"Verdict", label},
		{"Confidence", fmt.Sprintf("%.1f%%  (95%% CI %.1f–%.1f)", v.Confidence, v.ConfidenceLo, v.ConfidenceHi)},
		{"Frames", fmt.Sprintf("%d processed / %d read", v.Stats.ProcessedFrames, v.Stats.RawFrames)},
		{"Valid verdicts", fmt.Sprintf("%d", v.Stats.ValidVerdicts)},
		{"Baseline frames", fmt.Sprintf("%d", v.Stats.BaselineFrames)},
		{"No face", fmt.Sprintf("%d", v.Stats.NoFaceFrames)},
		{"Errors", fmt.Sprintf("%d", v.Stats.ErrorFrames)},
		{"Skip factor", fmt.Sprintf("%d", v.Stats.SkipFactor)},
		{"Stop reason", string(v.Stats.StopReason)},
		{"Elapsed", v.Stats.Elapsed.Round(time.Millisecond).String()},
	}
	if v.Stats.ForcedBaseline {
		rows = append(rows, [2]string{"Baseline", "forced"})
	}
	for _, r := range rows {
		fmt.Fprintf(w, "%s %s\n", padRight(r[0], 16), r[1]) //nolint:errcheck
	}
}
