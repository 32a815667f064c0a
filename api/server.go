// Package api exposes collection and queries over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"monitor/collector"
	"monitor/query"
	"monitor/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Collector runs one collection and persists its result.
type Collector interface {
	RunOnce(ctx context.Context) (*storage.Snapshot, error)
}

// Feed delivers newly stored snapshots to live subscribers.
type Feed interface {
	Subscribe() (<-chan storage.Snapshot, func())
}

// InfoSource describes the host.
type InfoSource interface {
	SystemInfo(ctx context.Context) (*collector.SystemInfo, error)
}

// Options configures a Server.
type Options struct {
	Addr            string
	RateLimit       float64 // requests per second on /api routes
	RateBurst       int
	ShutdownTimeout time.Duration
}

// Server represents the HTTP server.
type Server struct {
	opts        Options
	queries     *query.Service
	collector   Collector
	feed        Feed
	info        InfoSource
	log         *zap.Logger
	rateLimiter *rate.Limiter
	httpServer  *http.Server
	ready       atomic.Bool
}

// NewServer wires the handlers. feed and info may be nil, in which case
// the stream and system info routes answer 503.
func NewServer(opts Options, queries *query.Service, c Collector, feed Feed, info InfoSource, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 20
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 40
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 15 * time.Second
	}

	s := &Server{
		opts:        opts,
		queries:     queries,
		collector:   c,
		feed:        feed,
		info:        info,
		log:         log,
		rateLimiter: rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst),
	}
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the routed handler. Trailing slashes are optional.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// System endpoints (no rate limiting)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	api := func(pattern string, h http.HandlerFunc) {
		wrapped := s.withMiddleware(h)
		mux.HandleFunc(pattern, wrapped)
		mux.HandleFunc(pattern+"/{$}", wrapped)
	}
	api("GET /api/metrics", s.handleList)
	api("POST /api/metrics/collect", s.handleCollect)
	// Keeps GET on collect from being read as a snapshot id.
	api("GET /api/metrics/collect", methodNotAllowed(http.MethodPost))
	api("GET /api/metrics/{id}", s.handleGet)
	api("GET /api/metrics/latest", s.handleLatest)
	api("GET /api/metrics/stats", s.handleStats)
	api("GET /api/system/info", s.handleSystemInfo)

	// Long-lived; only request IDs and panic recovery apply.
	mux.HandleFunc("GET /api/metrics/stream", s.requestIDMiddleware(s.panicRecoveryMiddleware(s.handleStream)))

	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.ready.Store(true)
	s.log.Info("starting server", zap.String("addr", s.opts.Addr))

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return fmt.Errorf("listen on %s: %w", s.opts.Addr, err)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.ready.Store(false)
	shutdownCtx, cancel := context.WithTimeout(ctx, s.opts.ShutdownTimeout)
	defer cancel()

	s.log.Info("shutting down server")
	return s.httpServer.Shutdown(shutdownCtx)
}
