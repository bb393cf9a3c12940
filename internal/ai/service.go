package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/local/pdfdesk/internal/config"
	"github.com/local/pdfdesk/internal/logger"
	mpkg "github.com/local/pdfdesk/internal/metrics"
	"github.com/local/pdfdesk/internal/mupdf"
)

// Breaker tracks per provider:model cooldowns.
type Breaker interface {
	IsOpen(ctx context.Context, provider, model string) bool
	Open(ctx context.Context, provider, model string)
	Close(ctx context.Context, provider, model string)
}

// TextSource extracts prompt text from PDF bytes.
type TextSource interface {
	ExtractText(data []byte, maxChars int) (mupdf.Text, error)
	HasExtractableText(data []byte, threshold int) (bool, *mupdf.Diagnostics, error)
}

// Service answers summarize and compare requests with provider failover.
type Service struct {
	providers config.ProvidersConfig
	conf      config.AIConfig
	clients   map[string]Client
	text      TextSource
	breaker   Breaker
}

// NewService wires the service. Clients are keyed by Client.Name(); a nil
// breaker never opens.
func NewService(providers config.ProvidersConfig, conf config.AIConfig, clients []Client, text TextSource, breaker Breaker) *Service {
	byName := make(map[string]Client, len(clients))
	for _, c := range clients {
		if c != nil {
			byName[c.Name()] = c
		}
	}
	if breaker == nil {
		breaker = noopBreaker{}
	}
	if conf.MaxAttempts < 1 {
		conf.MaxAttempts = 1
	}
	return &Service{providers: providers, conf: conf, clients: byName, text: text, breaker: breaker}
}

// Available reports whether at least one provider is configured.
func (s *Service) Available() bool { return len(s.plan()) > 0 }

// Summarize extracts the key points of doc.
func (s *Service) Summarize(ctx context.Context, doc Document) (Summary, error) {
	text, err := s.documentText(doc)
	if err != nil {
		return Summary{}, err
	}
	out, err := s.complete(ctx, "summarize", summarizeSystemPrompt, summarizePrompt(doc.Name, text.Content, text.Truncated))
	if err != nil {
		return Summary{}, err
	}
	return Summary{Summary: out.text, Provider: out.provider, Model: out.model, Truncated: text.Truncated}, nil
}

// Compare describes the differences between a and b.
func (s *Service) Compare(ctx context.Context, a, b Document) (Comparison, error) {
	textA, err := s.documentText(a)
	if err != nil {
		return Comparison{}, err
	}
	textB, err := s.documentText(b)
	if err != nil {
		return Comparison{}, err
	}
	prompt := comparePrompt(a.Name, textA.Content, textA.Truncated, b.Name, textB.Content, textB.Truncated)
	out, err := s.complete(ctx, "compare", compareSystemPrompt, prompt)
	if err != nil {
		return Comparison{}, err
	}
	return Comparison{
		Comparison: out.text,
		Provider:   out.provider,
		Model:      out.model,
		Truncated:  textA.Truncated || textB.Truncated,
	}, nil
}

func (s *Service) documentText(doc Document) (mupdf.Text, error) {
	if s.text == nil {
		return mupdf.Text{}, &DocumentError{Name: doc.Name, Err: mupdf.ErrNoOpener}
	}
	ok, _, err := s.text.HasExtractableText(doc.Data, s.conf.MinTextChars)
	if err != nil {
		return mupdf.Text{}, &DocumentError{Name: doc.Name, Err: err}
	}
	if !ok {
		return mupdf.Text{}, &DocumentError{Name: doc.Name, Err: ErrNoText}
	}
	text, err := s.text.ExtractText(doc.Data, s.conf.MaxDocumentChars)
	if err != nil {
		return mupdf.Text{}, &DocumentError{Name: doc.Name, Err: err}
	}
	if strings.TrimSpace(text.Content) == "" {
		return mupdf.Text{}, &DocumentError{Name: doc.Name, Err: ErrNoText}
	}
	return text, nil
}

type target struct {
	provider string
	model    string
}

// plan lists provider:model pairs in failover order: primary provider's
// primary and secondary models, then the secondary provider's.
func (s *Service) plan() []target {
	var out []target
	seen := map[target]bool{}
	add := func(provider, model string) {
		t := target{provider: provider, model: model}
		if model == "" || seen[t] {
			return
		}
		if _, ok := s.clients[provider]; !ok {
			return
		}
		seen[t] = true
		out = append(out, t)
	}
	for _, provider := range []string{s.providers.PrimaryEngine, s.providers.SecondaryEngine} {
		models := s.models(provider)
		add(provider, models.Primary)
		add(provider, models.Secondary)
	}
	return out
}

func (s *Service) models(provider string) config.ProviderModels {
	switch provider {
	case "openai":
		return s.providers.OpenAI
	case "anthropic":
		return s.providers.Anthropic
	}
	return config.ProviderModels{}
}

type completion struct {
	text     string
	provider string
	model    string
}

func (s *Service) complete(ctx context.Context, task, system, prompt string) (completion, error) {
	log := logger.From(ctx)
	plan := s.plan()
	if len(plan) == 0 {
		return completion{}, fmt.Errorf("%w: no AI provider is configured", ErrUnavailable)
	}

	var lastErr error
	for i, t := range plan {
		if s.breaker.IsOpen(ctx, t.provider, t.model) {
			log.Debug().Str("provider", t.provider).Str("model", t.model).Msg("circuit breaker OPEN - skipping")
			continue
		}
		log.Info().Str("task", task).Str("provider", t.provider).Str("model", t.model).
			Msgf("attempting AI request [%d/%d]", i+1, len(plan))

		resp, err := s.call(ctx, t, Request{Model: t.model, SystemPrompt: system, Prompt: prompt, MaxTokens: s.conf.MaxTokens})
		if err == nil {
			s.breaker.Close(ctx, t.provider, t.model)
			if strings.TrimSpace(resp.Text) == "" {
				return completion{}, fmt.Errorf("%s/%s: %w", t.provider, t.model, ErrEmptyOutput)
			}
			return completion{text: strings.TrimSpace(resp.Text), provider: t.provider, model: t.model}, nil
		}
		if ctx.Err() != nil {
			return completion{}, ctx.Err()
		}
		lastErr = err
		if isFatalError(err) {
			log.Error().Err(err).Str("provider", t.provider).Str("model", t.model).Msg("fatal error - no retry")
			return completion{}, err
		}
		// A refusal is about this document, not the model's health.
		if isTransientError(err) && !IsContentRefused(err) {
			s.breaker.Open(ctx, t.provider, t.model)
		}
		log.Warn().Err(err).Str("provider", t.provider).Str("model", t.model).Msg("AI request failed - trying fallback")
	}

	log.Error().Err(lastErr).Str("task", task).Msg("all AI providers/models exhausted")
	mpkg.ObserveProvider("all", "all", "exhausted", 0)
	if lastErr == nil {
		return completion{}, fmt.Errorf("%w: every provider is cooling down", ErrUnavailable)
	}
	return completion{}, fmt.Errorf("%w: %w", ErrUnavailable, lastErr)
}

// call runs one provider:model with bounded retries on transient errors.
func (s *Service) call(ctx context.Context, t target, req Request) (Response, error) {
	client := s.clients[t.provider]
	var resp Response
	err := retry.Do(
		func() error {
			cctx, cancel := s.attemptContext(ctx)
			defer cancel()

			start := time.Now()
			r, err := client.Do(cctx, req)
			dur := time.Since(start)
			if err != nil && errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				err = fmt.Errorf("%s/%s timed out after %s: %w", t.provider, t.model, dur.Round(time.Millisecond), context.DeadlineExceeded)
			}
			mpkg.ObserveProvider(t.provider, t.model, resultLabel(err), dur)
			if IsContentRefused(err) {
				mpkg.IncRefusal(t.provider, t.model)
			}
			if err != nil {
				return err
			}
			resp = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(s.conf.MaxAttempts)),
		retry.Delay(s.conf.RetryDelay),
		retry.RetryIf(isRetryable),
		retry.LastErrorOnly(true),
	)
	return resp, err
}

func (s *Service) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.conf.Timeout > 0 {
		return context.WithTimeout(ctx, s.conf.Timeout)
	}
	return context.WithCancel(ctx)
}

type noopBreaker struct{}

func (noopBreaker) IsOpen(context.Context, string, string) bool { return false }
func (noopBreaker) Open(context.Context, string, string)        {}
func (noopBreaker) Close(context.Context, string, string)       {}
