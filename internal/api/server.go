package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/radio-control/rtsbridge/internal/auth"
	"github.com/radio-control/rtsbridge/internal/config"
)

// Version is reported by /health.
const Version = "1.0.0"

// Server represents the HTTP API server.
type Server struct {
	mu         sync.Mutex
	httpServer *http.Server

	dispatcher     CommandPort
	channels       ChannelReadPort
	telemetryHub   TelemetryPort
	authMiddleware *auth.Middleware
	auditor        ControlAuditor

	awaitTimeout time.Duration
	startTime    time.Time
	timeouts     config.ServerConfig
}

// NewServer creates a new API server. Authentication is disabled until
// SetAuthMiddleware installs a verifying middleware.
func NewServer(dispatcher CommandPort, channels ChannelReadPort, telemetryHub TelemetryPort, cfg config.ServerConfig) *Server {
	return &Server{
		dispatcher:     dispatcher,
		channels:       channels,
		telemetryHub:   telemetryHub,
		authMiddleware: auth.NewMiddleware(nil),
		awaitTimeout:   30 * time.Second,
		startTime:      time.Now(),
		timeouts:       cfg,
	}
}

// SetAuthMiddleware replaces the authentication middleware.
func (s *Server) SetAuthMiddleware(m *auth.Middleware) {
	if m != nil {
		s.authMiddleware = m
	}
}

// SetAuditLogger sets the recorder for control actions such as clear.
func (s *Server) SetAuditLogger(a ControlAuditor) { s.auditor = a }

// SetAwaitTimeout sets the default wait for POST /commands with wait=true.
func (s *Server) SetAwaitTimeout(d time.Duration) {
	if d > 0 {
		s.awaitTimeout = d
	}
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// Start listens on addr and serves until Stop.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener until Stop.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.timeouts.ReadTimeout,
		WriteTimeout: s.timeouts.WriteTimeout,
		IdleTimeout:  s.timeouts.IdleTimeout,
	}

	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}
