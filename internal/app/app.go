// Package app wires configuration into a running HTTP service.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfdesk/internal/ai"
	"github.com/local/pdfdesk/internal/archive"
	"github.com/local/pdfdesk/internal/config"
	"github.com/local/pdfdesk/internal/filetype"
	"github.com/local/pdfdesk/internal/limiter"
	"github.com/local/pdfdesk/internal/mupdf"
	"github.com/local/pdfdesk/internal/pdfdoc"
	"github.com/local/pdfdesk/internal/recompose"
	"github.com/local/pdfdesk/internal/statuscheck"
	"github.com/local/pdfdesk/internal/storage"
	"github.com/local/pdfdesk/internal/web"
)

// App owns the long-lived collaborators of the service.
type App struct {
	cfg     config.Config
	handler http.Handler
	clients *limiter.ClientLimiter
	breaker *limiter.Breaker
}

// NewEngine builds the merge/split engine from configuration.
func NewEngine(cfg config.RecomposeConfig) *recompose.Engine {
	return recompose.New(pdfdoc.Codec{}, archive.NewPacker, recompose.Options{
		MinMergeSources:  cfg.MinMergeFiles,
		SplitConcurrency: cfg.SplitConcurrency,
		Types:            filetype.New(),
	})
}

// New wires every component. Optional collaborators that fail to start are
// logged and left out.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{cfg: cfg}

	var breaker ai.Breaker
	var redisPinger statuscheck.RedisPinger
	if cfg.Breaker.RedisURL != "" {
		b, err := limiter.NewBreaker(ctx, limiter.BreakerOptions{
			RedisURL:    cfg.Breaker.RedisURL,
			BaseBackoff: cfg.Breaker.BaseBackoff,
			MaxBackoff:  cfg.Breaker.MaxBackoff,
		})
		if err != nil {
			log.Warn().Err(err).Msg("circuit breaker disabled: redis unavailable")
		} else {
			a.breaker = b
			breaker = b
			redisPinger = b
		}
	}

	extractor := mupdf.NewExtractor()
	httpClient := &http.Client{}
	var providers []ai.Client
	if cfg.Providers.OpenAIAPIKey != "" {
		providers = append(providers, ai.NewOpenAIClient(cfg.Providers.OpenAIAPIKey, cfg.Providers.OpenAIBaseURL, httpClient))
	}
	if cfg.Providers.AnthropicAPIKey != "" {
		providers = append(providers, ai.NewAnthropicClient(cfg.Providers.AnthropicAPIKey, cfg.Providers.AnthropicBaseURL, httpClient))
	}
	assistant := ai.NewService(cfg.Providers, cfg.AI, providers, extractor, breaker)
	if !assistant.Available() {
		log.Info().Msg("no AI provider key configured; summarize and compare are disabled")
	}

	s3Opts := storage.S3Options{
		Region:       cfg.Storage.S3Region,
		Endpoint:     cfg.Storage.S3Endpoint,
		AccessKey:    cfg.Storage.S3AccessKey,
		SecretKey:    cfg.Storage.S3SecretKey,
		UsePathStyle: cfg.Storage.S3UsePathStyle,
	}
	fetcher := storage.NewFetcher(storage.Options{
		MaxBytes:  cfg.Server.MaxFileBytes,
		AllowHTTP: cfg.Storage.AllowHTTP,
		Timeout:   cfg.Storage.FetchTimeout,
		S3:        s3Opts,
	})

	checker := statuscheck.New(statuscheck.Options{
		Redis:            redisPinger,
		S3Region:         cfg.Storage.S3Region,
		S3AccessKey:      cfg.Storage.S3AccessKey,
		S3SecretKey:      cfg.Storage.S3SecretKey,
		OpenAIKey:        cfg.Providers.OpenAIAPIKey,
		OpenAIBaseURL:    cfg.Providers.OpenAIBaseURL,
		AnthropicKey:     cfg.Providers.AnthropicAPIKey,
		AnthropicBaseURL: cfg.Providers.AnthropicBaseURL,
		MuPDFAvailable:   extractor.IsAvailable,
	})

	a.clients = limiter.NewClientLimiter(cfg.Limits.RequestsPerSecond, cfg.Limits.Burst)
	srv := web.New(cfg.Server, web.Dependencies{
		Engine:   NewEngine(cfg.Recompose),
		AI:       assistant,
		Fetcher:  fetcher,
		Status:   checker,
		Types:    filetype.New(),
		Inflight: limiter.NewInflight(cfg.Limits.MaxInflight),
		Clients:  a.clients,
	})
	a.handler = srv.Handler()
	return a, nil
}

func (a *App) Handler() http.Handler { return a.handler }

// Run serves HTTP until ctx is done, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         ":" + a.cfg.Server.Port,
		Handler:      a.handler,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	go a.sweep(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("HTTP server listening on :%s", a.cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Msg("shutdown complete")
	return nil
}

// sweep forgets idle rate-limit buckets.
func (a *App) sweep(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.clients.Sweep(); n > 0 {
				log.Debug().Int("removed", n).Msg("rate limiter sweep")
			}
		}
	}
}

// Close releases external connections.
func (a *App) Close() {
	if a.breaker != nil {
		_ = a.breaker.CloseClient()
	}
}
