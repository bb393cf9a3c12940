package limiter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfdesk/internal/metrics"
)

// Breaker keeps provider:model cooldowns in Redis so every replica sees them.
type Breaker struct {
	rdb         *redis.Client
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

type BreakerOptions struct {
	RedisURL    string
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func NewBreaker(ctx context.Context, opts BreakerOptions) (*Breaker, error) {
	ro, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(ro)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return NewBreakerWithClient(c, opts.BaseBackoff, opts.MaxBackoff), nil
}

func NewBreakerWithClient(c *redis.Client, baseBackoff, maxBackoff time.Duration) *Breaker {
	if baseBackoff <= 0 {
		baseBackoff = 30 * time.Second
	}
	if maxBackoff <= 0 {
		maxBackoff = 5 * time.Minute
	}
	return &Breaker{rdb: c, baseBackoff: baseBackoff, maxBackoff: maxBackoff}
}

func breakerKey(provider, model string) string {
	return fmt.Sprintf("cb:%s:%s", strings.ToLower(provider), strings.ToLower(model))
}

// Backoff doubles base per consecutive failure, capped at max.
// Exponential backoff: 30s, 60s, 120s, 240s, max 5m
func Backoff(base, max time.Duration, failures int) time.Duration {
	d := base
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// Open opens the breaker for provider:model, extending the cooldown on each failure.
func (b *Breaker) Open(ctx context.Context, provider, model string) {
	key := breakerKey(provider, model)

	failuresStr, _ := b.rdb.HGet(ctx, key, "failures").Result()
	failures, _ := strconv.Atoi(failuresStr)
	failures++

	backoff := Backoff(b.baseBackoff, b.maxBackoff, failures)
	retryAt := time.Now().Add(backoff).Unix()

	b.rdb.HSet(ctx, key, map[string]interface{}{
		"state":     "open",
		"retry_at":  retryAt,
		"failures":  failures,
		"opened_at": time.Now().Unix(),
	})
	b.rdb.Expire(ctx, key, 2*b.maxBackoff)
	metrics.BreakerOpened(provider, model)

	log.Warn().
		Str("provider", provider).
		Str("model", model).
		Dur("cooldown", backoff).
		Int("failures", failures).
		Time("retry_at", time.Unix(retryAt, 0)).
		Msg("circuit breaker OPENED")
}

// IsOpen reports whether provider:model is still cooling down. An expired
// cooldown moves to half-open and lets one probe through.
func (b *Breaker) IsOpen(ctx context.Context, provider, model string) bool {
	key := breakerKey(provider, model)

	state, err := b.rdb.HGet(ctx, key, "state").Result()
	if err != nil || state != "open" {
		return false
	}

	retryAtStr, _ := b.rdb.HGet(ctx, key, "retry_at").Result()
	retryAt, _ := strconv.ParseInt(retryAtStr, 10, 64)
	if time.Now().Unix() >= retryAt {
		b.rdb.HSet(ctx, key, "state", "half_open")
		log.Info().Str("provider", provider).Str("model", model).Msg("circuit breaker moved to HALF-OPEN")
		return false
	}
	return true
}

// Close resets the breaker after a success.
func (b *Breaker) Close(ctx context.Context, provider, model string) {
	key := breakerKey(provider, model)

	state, _ := b.rdb.HGet(ctx, key, "state").Result()
	if state == "" || state == "closed" {
		return
	}
	b.rdb.Del(ctx, key)
	metrics.BreakerClosed(provider, model)
	log.Info().Str("provider", provider).Str("model", model).Msg("circuit breaker CLOSED (reset)")
}

// Ping reports Redis reachability for readiness checks.
func (b *Breaker) Ping(ctx context.Context) error { return b.rdb.Ping(ctx).Err() }

func (b *Breaker) CloseClient() error { return b.rdb.Close() }
