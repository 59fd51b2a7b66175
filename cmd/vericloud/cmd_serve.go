package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vericloud/vericloud/internal/model"
	"github.com/vericloud/vericloud/internal/webapi"
	"github.com/vericloud/vericloud/internal/webserver"
)

func newServeCommand() *cobra.Command {
	var (
		host    string
		port    int
		logDir  string
		origins []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server.

Routes:
  GET  /api/health            Service health and configured endpoints
  POST /api/fuse              Fuse caller-supplied modality verdicts
  POST /api/predict_fusion    Call the text, voice and face services, then fuse
  POST /api/face/analyze      Score a posted feature stream as one session
  GET  /api/face/live         Websocket: score frames one at a time
  GET  /api/sessions          List recorded session logs
  GET  /api/sessions/{id}     One session log with its events

The server binds to loopback by default. The face routes need a classifier
in the model section of the config; the model is loaded before the server
starts listening and a load failure is fatal.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("session-dir") {
				cfg.Session.LogDir = logDir
			}
			if len(origins) > 0 {
				cfg.Server.AllowedOrigins = origins
			}

			logger := slog.Default()
			fuser, err := newFuser(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var models *model.Handle
			if src := modelSource(cfg); modelConfigured(src) {
				models = model.FromSource(src, logger)
				if _, _, err := models.Get(ctx); err != nil {
					return err
				}
			} else {
				logger.Warn("No classifier configured, face routes disabled")
			}

			srv, err := webserver.New(webserver.Config{
				Host: cfg.Server.Host,
				Port: cfg.Server.Port,
				API: webapi.Deps{
					Store:          webapi.NewFileStore(cfg.Session.LogDir),
					Pipeline:       newPipeline(cfg, fuser),
					Fuser:          fuser,
					Models:         models,
					Scoring:        scoringConfig(cfg),
					Budget:         sessionBudget(cfg),
					Services:       serviceMap(cfg),
					SessionLogDir:  cfg.Session.LogDir,
					AllowedOrigins: cfg.Server.AllowedOrigins,
				},
				Logger: logger,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "vericloud API: http://%s\n", srv.Addr()) //nolint:errcheck
			return serve(ctx, srv)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Interface to bind (default: server.host from config, 127.0.0.1)")
	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on (default: server.port from config, 8080)")
	cmd.Flags().StringVar(&logDir, "session-dir", "", "Directory for session logs (default: session.log_dir from config)")
	cmd.Flags().StringArrayVar(&origins, "origin", nil, "Allowed CORS/websocket origin (can be repeated)")

	return cmd
}

// serve is swapped in tests.
var serve = func(ctx context.Context, srv *webserver.Server) error {
	return srv.ListenAndServe(ctx)
}
