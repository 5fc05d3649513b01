// Package server exposes recorded sessions over HTTP: session listings,
// playback manifests, transcripts, artifact downloads, health probes and
// Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/hushcut/hushcut/internal/config"
	"github.com/hushcut/hushcut/internal/observe"
	"github.com/hushcut/hushcut/internal/session"
)

// shutdownTimeout bounds how long in-flight requests may run once the server
// has been asked to stop.
const shutdownTimeout = 10 * time.Second

// Server serves the query surface for recorded sessions. All endpoints are
// read-only; recording and compaction happen elsewhere and the server only
// reports their results.
type Server struct {
	addr     string
	roots    []string
	store    *session.Store
	log      *slog.Logger
	metrics  *observe.Metrics
	checkers []Checker
	handler  http.Handler
}

// Option configures a [Server].
type Option func(*Server)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New builds a server for the given config and session store. The roots in
// cfg are resolved to absolute paths once so that /files containment checks
// are stable regardless of the working directory at request time.
func New(cfg config.ServerConfig, store *session.Store, opts ...Option) (*Server, error) {
	if store == nil {
		return nil, errors.New("server: nil store")
	}

	s := &Server{
		addr:  cfg.Addr,
		store: store,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	for _, root := range cfg.Roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("server: resolve root %q: %w", root, err)
		}
		s.roots = append(s.roots, abs)
	}

	s.checkers = []Checker{
		{Name: "store", Check: store.Ping},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/sessions", s.listSessions)
	mux.HandleFunc("GET /api/sessions/{id}/manifest", s.sessionManifest)
	mux.HandleFunc("GET /api/sessions/{id}/transcript", s.sessionTranscript)
	mux.HandleFunc("GET /api/sessions/{id}/transcript.txt", s.sessionTranscriptRaw)
	mux.HandleFunc("GET /api/search", s.searchTranscriptions)
	mux.HandleFunc("GET /files", s.serveFile)
	mux.HandleFunc("GET /healthz", s.healthz)
	mux.HandleFunc("GET /readyz", s.readyz)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.handler = observe.Middleware(s.metrics)(mux)
	return s, nil
}

// Handler returns the fully wired HTTP handler, including middleware. Exposed
// so tests can drive the server through httptest without binding a socket.
func (s *Server) Handler() http.Handler { return s.handler }

// Run listens on the configured address and serves until ctx is cancelled,
// then shuts down gracefully. In-flight requests get [shutdownTimeout] to
// complete before the listener is torn down.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("http server listening", "addr", s.addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listen on %s: %w", s.addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.log.Info("http server shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}
