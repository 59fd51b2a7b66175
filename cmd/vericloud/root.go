package main

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/vericloud/vericloud/internal/webapi"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vericloud",
		Short: "VeriCloud - multimodal deception analysis",
		Long: `VeriCloud turns facial, voice and text deception signals into one
explainable verdict.

Facial feature streams are scored against each subject's own warm-up
baseline, reduced to a session verdict under a time budget, and fused with
the text and voice service verdicts.`,
		Version:      version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentFlags().String("config", "", "Path to a config file (default: nearest "+configFileName+")")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if *debugLogging {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	}

	// Add subcommands
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newAnalyzeCommand())
	cmd.AddCommand(newFuseCommand())
	cmd.AddCommand(newModelCommand())
	cmd.AddCommand(newSessionCommand())

	return cmd
}

func execute() error {
	webapi.Version = version
	rootCmd := newRootCommand()
	return rootCmd.Execute()
}
