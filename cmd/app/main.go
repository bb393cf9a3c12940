package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfdesk/internal/app"
	cfgpkg "github.com/local/pdfdesk/internal/config"
	logpkg "github.com/local/pdfdesk/internal/logger"
	"github.com/local/pdfdesk/internal/metrics"
)

func main() {
	cfg, err := cfgpkg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load .env")
	}

	// Init logging
	_ = logpkg.Init(logpkg.OptionsFromConfig(cfg))
	defer logpkg.Close()

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start")
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		log.Error().Err(err).Msg("http server error")
		logpkg.Close()
		os.Exit(1)
	}
}
