package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vericloud/vericloud/internal/session"
	"github.com/vericloud/vericloud/internal/webapi"
)

func newSessionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "View recorded session logs",
		Long: `View recorded session event logs.

Session logs are NDJSON files written by "analyze --session-log" and by the
API server when session.log_dir is set. They record the session start, each
scored frame, skip adjustments, forced baselines, errors and the final verdict.`,
	}

	cmd.AddCommand(newSessionListCommand())
	cmd.AddCommand(newSessionViewCommand())

	return cmd
}

// sessionDir resolves --dir, falling back to session.log_dir and then ".".
func sessionDir(cmd *cobra.Command, dir string) (string, error) {
	if !cmd.Flags().Changed("dir") {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return "", err
		}
		if cfg.Session.LogDir != "" {
			dir = cfg.Session.LogDir
		}
	}
	return filepath.Abs(dir)
}

func newSessionListCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded session logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			absDir, err := sessionDir(cmd, dir)
			if err != nil {
				return err
			}

			files, err := session.ListSessions(absDir)
			if err != nil {
				return fmt.Errorf("listing sessions: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(files) == 0 {
				fmt.Fprintln(out, "No session logs found.") //nolint:errcheck
				return nil
			}

			fmt.Fprintf(out, "%s %s %s %s\n%s\n", //nolint:errcheck
				padRight("File", 64), padRight("Events", 8), padRight("Verdict", 18), "Modified", strings.Repeat("─", 112))
			for _, f := range files {
				fmt.Fprintf(out, "%s %s %s %s\n", //nolint:errcheck
					padRight(f.Name, 64),
					padRight(fmt.Sprintf("%d", f.NumEvents), 8),
					padRight(sessionOutcome(f.Path), 18),
					f.ModTime.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "Directory to search for session logs (default: session.log_dir from config)")

	return cmd
}

// sessionOutcome formats the verdict of one log for the list table.
func sessionOutcome(path string) string {
	events, err := session.ReadEvents(path)
	if err != nil {
		return "unreadable"
	}
	prediction, confidence, ok := session.Outcome(events)
	if !ok {
		return "in progress"
	}
	return fmt.Sprintf("%s %.1f%%", prediction, confidence)
}

func newSessionViewCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "view <session-file|session-id>",
		Short: "View a session timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := readSession(cmd, dir, args[0])
			if err != nil {
				return err
			}
			session.RenderTimeline(cmd.OutOrStdout(), events)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "Directory to resolve session IDs in (default: session.log_dir from config)")

	return cmd
}

// readSession reads a log by path, or by session ID from the log directory.
func readSession(cmd *cobra.Command, dir, ref string) ([]session.Event, error) {
	if _, err := os.Stat(ref); err == nil {
		events, err := session.ReadEvents(ref)
		if err != nil {
			return nil, fmt.Errorf("reading session: %w", err)
		}
		return events, nil
	}

	absDir, err := sessionDir(cmd, dir)
	if err != nil {
		return nil, err
	}
	detail, err := webapi.NewFileStore(absDir).GetSession(ref)
	if err != nil {
		if errors.Is(err, webapi.ErrSessionNotFound) {
			return nil, fmt.Errorf("no session file or ID %q in %s", ref, absDir)
		}
		return nil, fmt.Errorf("reading session: %w", err)
	}
	return detail.Events, nil
}
