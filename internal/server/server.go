// Package server exposes the tagger pipeline over HTTP.
//
// Routes:
//
//	GET  /                 upload page
//	POST /process_audio    multipart voice note (field "audio")
//	POST /extract          {"text": "..."} → addressee
//	POST /entities         {"text": "..."} → named entities
//	GET  /status           server and model state
//	GET  /healthz, /readyz liveness and readiness
//	GET  /metrics          Prometheus scrape endpoint (when configured)
//	     /mcp              MCP streamable HTTP endpoint (when configured)
//
// Every response body is JSON except the upload page and /metrics. Unknown
// routes get 404 {"error":"Resource not found"}.
package server

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/MrWong99/voicetagger/internal/config"
	"github.com/MrWong99/voicetagger/internal/health"
	"github.com/MrWong99/voicetagger/internal/observe"
	"github.com/MrWong99/voicetagger/internal/tagger"
)

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second

	// multipartMemory is how much of a multipart body is held in memory
	// before spilling to temporary files.
	multipartMemory = 8 << 20
)

//go:embed index.html
var indexPage []byte

// Option is a functional option for configuring a [Server].
type Option func(*Server)

// WithHealth mounts /healthz and /readyz from h.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) {
		s.health = h
	}
}

// WithMetricsHandler mounts h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metricsHandler = h
	}
}

// WithMCPHandler mounts h at /mcp for every method.
func WithMCPHandler(h http.Handler) Option {
	return func(s *Server) {
		s.mcpHandler = h
	}
}

// WithProviderStates reports the circuit breaker state of every STT provider
// in /status. states is called once per request.
func WithProviderStates(states func() map[string]string) Option {
	return func(s *Server) {
		s.providerStates = states
	}
}

// WithMetrics sets the metrics used by the request middleware. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// Server is the HTTP front end. Build it with [New], then call [Server.Run].
type Server struct {
	svc            *tagger.Service
	cfg            config.ServerConfig
	health         *health.Handler
	metricsHandler http.Handler
	mcpHandler     http.Handler
	providerStates func() map[string]string
	metrics        *observe.Metrics

	handler http.Handler
	httpSrv *http.Server
}

// New builds a Server over svc. The handler chain is assembled once here;
// cfg is not consulted again after New returns.
func New(svc *tagger.Service, cfg config.ServerConfig, opts ...Option) *Server {
	s := &Server{svc: svc, cfg: cfg}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	mux := http.NewServeMux()
	s.routes(mux)

	var h http.Handler = mux
	h = requestID(h)
	h = cors(cfg.CORSOrigins)(h)
	h = observe.Middleware(s.metrics)(h)
	s.handler = h

	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /process_audio", s.handleProcessAudio)
	mux.HandleFunc("POST /extract", s.handleExtract)
	mux.HandleFunc("POST /entities", s.handleEntities)
	mux.HandleFunc("GET /status", s.handleStatus)

	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
	if s.mcpHandler != nil {
		mux.Handle("/mcp", s.mcpHandler)
	}
	mux.HandleFunc("/", handleNotFound)
}

// Handler returns the fully wrapped handler. Tests drive it with httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on the configured address and serves until ctx is cancelled,
// then shuts down gracefully within shutdownTimeout.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.httpSrv.Addr, err)
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}

// Serve is [Server.Run] over an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", ln.Addr().String(), "tls", s.cfg.TLS != nil)
		if s.cfg.TLS != nil {
			errCh <- s.httpSrv.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
			return
		}
		errCh <- s.httpSrv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	slog.Info("http server stopped")
	return nil
}
