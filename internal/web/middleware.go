package web

import (
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/local/pdfdesk/internal/logger"
	"github.com/local/pdfdesk/internal/metrics"
)

const requestIDHeader = "X-Request-ID"

// requestID tags the request context logger with an id, reusing the caller's.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequest(r.Context(), id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(p)
	s.bytes += n
	return n, err
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		ev := logger.From(r.Context()).Info()
		if rec.status >= 500 {
			ev = logger.From(r.Context()).Error()
		} else if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			ev = logger.From(r.Context()).Debug()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Int("bytes", rec.bytes).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// rateLimit applies the per-client token bucket.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodOptions && !s.deps.Clients.Allow(clientIP(r)) {
			metrics.IncRejected("rate_limit")
			w.Header().Set("Retry-After", "1")
			writeFailure(w, http.StatusTooManyRequests, "rate_limited", "Too many requests, slow down.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// admit reserves an inflight slot for op or writes 503.
func (s *Server) admit(w http.ResponseWriter, op string) (func(), bool) {
	if s.deps.Inflight == nil {
		return func() {}, true
	}
	release, ok := s.deps.Inflight.Allow(op)
	if !ok {
		metrics.IncRejected("busy")
		w.Header().Set("Retry-After", "2")
		writeFailure(w, http.StatusServiceUnavailable, "busy", "Server busy, retry shortly.")
		return nil, false
	}
	return release, true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
