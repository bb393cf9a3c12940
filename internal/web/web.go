// Package web exposes merge, split, summarize and compare over HTTP.
package web

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/local/pdfdesk/internal/ai"
	"github.com/local/pdfdesk/internal/config"
	"github.com/local/pdfdesk/internal/limiter"
	"github.com/local/pdfdesk/internal/metrics"
	"github.com/local/pdfdesk/internal/recompose"
	"github.com/local/pdfdesk/internal/statuscheck"
)

// Recomposer is the merge/split engine.
type Recomposer interface {
	Merge(ctx context.Context, sources []recompose.Source) (recompose.Result, error)
	Split(ctx context.Context, src recompose.Source) (recompose.Result, error)
	SplitRanges(ctx context.Context, src recompose.Source, ranges []recompose.PageRange) (recompose.Result, error)
}

// Assistant answers summarize and compare requests.
type Assistant interface {
	Available() bool
	Summarize(ctx context.Context, doc ai.Document) (ai.Summary, error)
	Compare(ctx context.Context, a, b ai.Document) (ai.Comparison, error)
}

// Fetcher resolves source references sent as JSON.
type Fetcher interface {
	Fetch(ctx context.Context, name, ref string) (recompose.Source, error)
}

// StatusChecker reports dependency readiness.
type StatusChecker interface {
	Summary(ctx context.Context) statuscheck.Summary
}

// Dependencies wires the server. Only Engine is required.
type Dependencies struct {
	Engine   Recomposer
	AI       Assistant
	Fetcher  Fetcher
	Status   StatusChecker
	Types    recompose.TypeChecker
	Inflight *limiter.Inflight
	Clients  *limiter.ClientLimiter
}

type Server struct {
	deps   Dependencies
	limits Limits
	cfg    config.ServerConfig
}

func New(cfg config.ServerConfig, deps Dependencies) *Server {
	return &Server{
		deps: deps,
		cfg:  cfg,
		limits: Limits{
			MaxUploadBytes: cfg.MaxUploadBytes,
			MaxFileBytes:   cfg.MaxFileBytes,
			MaxFiles:       cfg.MaxFiles,
		},
	}
}

// Handler returns the routed handler wrapped in CORS.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(requestID, accessLog)

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	// API routes sit on the root router: a mux subrouter with several
	// method-restricted routes answers 404 instead of 405 on a method mismatch.
	for path, h := range map[string]http.HandlerFunc{
		"/api/merge":     s.handleMerge,
		"/api/split":     s.handleSplit,
		"/api/summarize": s.handleSummarize,
		"/api/compare":   s.handleCompare,
	} {
		router.Handle(path, s.rateLimit(h)).Methods(http.MethodPost)
	}

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			"X-Request-ID",
		},
		ExposedHeaders: []string{
			"Content-Disposition",
			"X-Request-ID",
			"X-Page-Count",
		},
		MaxAge: 300,
	})
	return c.Handler(router)
}
