// Package server exposes the wisdom pipeline, the home snapshot
// stream, and the debug surface over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/prodyapp/bodhi/internal/activity"
	"github.com/prodyapp/bodhi/internal/aggregator"
	"github.com/prodyapp/bodhi/internal/metrics"
	"github.com/prodyapp/bodhi/internal/pipeline"
)

const defaultRequestTimeout = 30 * time.Second

// Config carries the server's dependencies and settings.
type Config struct {
	Addr       string
	Pipeline   *pipeline.Pipeline
	Aggregator *aggregator.Aggregator
	Activity   *activity.Store
	Logger     *slog.Logger
	Metrics    *metrics.Metrics

	// RequestTimeout bounds every route except the snapshot stream.
	RequestTimeout time.Duration

	// RefreshCooldown is advertised in response headers on the wisdom
	// routes; the throttle itself lives behind the aggregator.
	RefreshCooldown time.Duration
}

type Server struct {
	Router *chi.Mux

	addr     string
	logger   *slog.Logger
	metrics  *metrics.Metrics
	pipeline *pipeline.Pipeline
	agg      *aggregator.Aggregator
	activity *activity.Store
	validate *validator.Validate
	cooldown time.Duration
	started  time.Time

	httpServer *http.Server
}

// New builds the router. The pipeline, aggregator, and activity store
// are required.
func New(cfg Config) (*Server, error) {
	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if cfg.Aggregator == nil {
		return nil, fmt.Errorf("aggregator is required")
	}
	if cfg.Activity == nil {
		return nil, fmt.Errorf("activity store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	s := &Server{
		addr:     cfg.Addr,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		pipeline: cfg.Pipeline,
		agg:      cfg.Aggregator,
		activity: cfg.Activity,
		validate: validator.New(),
		cooldown: cfg.RefreshCooldown,
		started:  time.Now(),
	}

	r := chi.NewRouter()

	// Apply middleware in order
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(s.logger))
	r.Use(MetricsMiddleware(s.metrics))
	r.Use(middleware.Recoverer)

	// Wrap with OpenTelemetry HTTP instrumentation
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "bodhi")
	})

	r.Group(func(r chi.Router) {
		r.Use(TimeoutMiddleware(cfg.RequestTimeout))

		r.Group(func(r chi.Router) {
			r.Use(CooldownHeaderMiddleware)
			r.Get("/v1/wisdom", s.handleGetWisdom)
			r.Post("/v1/wisdom/refresh", s.handleRefreshWisdom)
		})

		r.Get("/v1/home", s.handleHome)
		r.Post("/v1/activity/journal", s.handleJournal)
		r.Get("/healthz", s.handleHealthz)

		r.Get("/debug/ai/stats", s.handleDebugStats)
		r.Post("/debug/ai/stats/reset", s.handleDebugResetStats)
		r.Delete("/debug/ai/cache", s.handleDebugClearCache)
		r.Get("/debug/runtime", s.handleDebugRuntime)
		r.Handle("/metrics", promhttp.Handler())
	})

	// The snapshot stream stays open as long as the client does.
	r.Get("/v1/home/stream", s.handleHomeStream)

	s.Router = r
	return s, nil
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.Router,
	}
	s.logger.Info("starting server", slog.String("addr", s.addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down server")
	return s.httpServer.Shutdown(ctx)
}
