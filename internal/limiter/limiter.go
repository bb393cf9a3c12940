package limiter

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Inflight caps concurrent work per key within this process.
type Inflight struct {
	max int
	mu  sync.Mutex
	sem map[string]chan struct{}
}

func NewInflight(max int) *Inflight {
	if max <= 0 {
		max = 2
	}
	return &Inflight{max: max, sem: map[string]chan struct{}{}}
}

// Allow tries to reserve a slot for key.
// Returns a release function and true if allowed; otherwise a no-op and false.
func (a *Inflight) Allow(key string) (func(), bool) {
	key = strings.ToLower(key)
	a.mu.Lock()
	ch, ok := a.sem[key]
	if !ok {
		ch = make(chan struct{}, a.max)
		a.sem[key] = ch
	}
	a.mu.Unlock()
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, true
	default:
		return func() {}, false
	}
}

// ClientLimiter is a token bucket per client key (usually the remote IP).
type ClientLimiter struct {
	rps   rate.Limit
	burst int
	idle  time.Duration

	mu      sync.Mutex
	clients map[string]*clientEntry
	now     func() time.Time
}

type clientEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewClientLimiter returns nil when rps <= 0, which allows everything.
func NewClientLimiter(rps float64, burst int) *ClientLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &ClientLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		idle:    10 * time.Minute,
		clients: map[string]*clientEntry{},
		now:     time.Now,
	}
}

// Allow consumes one token for key.
func (l *ClientLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	e, ok := l.clients[key]
	if !ok {
		e = &clientEntry{lim: rate.NewLimiter(l.rps, l.burst)}
		l.clients[key] = e
	}
	e.seen = now
	return e.lim.AllowN(now, 1)
}

// Sweep drops clients idle for longer than the idle window.
func (l *ClientLimiter) Sweep() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.idle)
	removed := 0
	for k, e := range l.clients {
		if e.seen.Before(cutoff) {
			delete(l.clients, k)
			removed++
		}
	}
	return removed
}
