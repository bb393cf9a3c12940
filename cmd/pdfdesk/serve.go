package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/local/pdfdesk/internal/app"
	"github.com/local/pdfdesk/internal/metrics"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API.

Routes:
  /health          liveness
  /status          dependency readiness
  /metrics         prometheus metrics
  /api/merge       POST multipart "files" or JSON sources
  /api/split       POST multipart "file" (+ "ranges") or JSON source
  /api/summarize   POST multipart "file"
  /api/compare     POST multipart "file1" and "file2"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if servePort != "" {
			cfg.Server.Port = servePort
		}
		metrics.Init()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "port to listen on (default: $PORT or 8080)")
}
