// Package http serves the sepsis risk API.
package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"sepsiswatch/monitoring"
)

// ServerConfig configures the listener and the middleware chain.
type ServerConfig struct {
	Port           int
	Timeout        time.Duration
	MaxBodyBytes   int64
	AllowedOrigins []string
}

// DefaultServerConfig listens on 5000 with a 64 KiB body cap and open CORS.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           5000,
		Timeout:        30 * time.Second,
		MaxBodyBytes:   64 << 10,
		AllowedOrigins: []string{"*"},
	}
}

// Server owns the HTTP listener and the websocket hub.
type Server struct {
	server  *http.Server
	hub     *monitoring.Hub
	config  ServerConfig
	logger  *zap.Logger
	handler http.Handler
	hubOnce sync.Once
}

// NewServer registers the routes on a fresh mux. Nothing runs until Start.
func NewServer(config ServerConfig, h *Handler) *Server {
	defaults := DefaultServerConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = defaults.AllowedOrigins
	}

	hub := monitoring.NewHub(h.liveMessage, h.metrics, config.AllowedOrigins, h.logger.Named("ws"))

	s := &Server{hub: hub, config: config, logger: h.logger}
	mux := http.NewServeMux()
	s.route(mux, h, "GET /{$}", h.handleRoot)
	s.route(mux, h, "POST /predict", h.handlePredict)
	s.route(mux, h, "GET /api/health", h.handleHealth)
	s.route(mux, h, "GET /features", h.handleFeatures)
	s.route(mux, h, "GET /api/runs", h.handleRuns)
	mux.Handle("GET /metrics", h.metrics.Handler())
	mux.Handle("GET /ws/predict", hub)

	chain := Chain(
		RecoveryMiddleware(h.logger),
		LoggerMiddleware(h.logger),
		SecurityHeadersMiddleware,
		CORSMiddleware(config.AllowedOrigins),
		RequestSizeMiddleware(config.MaxBodyBytes),
	)
	s.handler = chain(mux)
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       config.Timeout,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// route registers fn and counts its responses under the pattern label.
func (s *Server) route(mux *http.ServeMux, h *Handler, pattern string, fn http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		fn(wrapped, r)
		h.metrics.ObserveRequest(r.Method, pattern, strconv.Itoa(wrapped.statusCode))
	})
}

// Handler exposes the full middleware chain, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Notify pushes an event to every live websocket session.
func (s *Server) Notify(event monitoring.Event) {
	s.hub.Broadcast(event)
}

// Start runs the websocket hub and blocks serving HTTP until Stop.
func (s *Server) Start() error {
	s.startHub()
	s.logger.Info("starting HTTP server",
		zap.String("addr", s.server.Addr),
		zap.String("websocket", fmt.Sprintf("ws://localhost%s/ws/predict", s.server.Addr)),
	)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func (s *Server) startHub() {
	s.hubOnce.Do(func() { go s.hub.Run() })
}

// Stop closes websocket sessions and drains in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	s.hub.Stop()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}
