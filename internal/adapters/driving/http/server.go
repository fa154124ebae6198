package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	_ "github.com/custodia-labs/investigraph/docs" // registers the swagger document
	"github.com/custodia-labs/investigraph/internal/core/ports/driving"
)

// HealthChecker reports whether the backend is reachable
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Server is the local presentation server. It exposes the dashboard and
// chat containers as REST snapshots and a WebSocket event stream.
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	handler    http.Handler
	version    string
	logger     *slog.Logger
	upgrader   websocket.Upgrader

	// Services
	authService driving.AuthService
	docService  driving.DocumentService
	views       driving.ViewRegistry

	// Infrastructure
	backend HealthChecker // can be nil

	mu      sync.Mutex
	baseCtx context.Context
}

// Config holds server configuration
type Config struct {
	Host         string
	Port         int
	Version      string
	CORSOrigins  []string
	WriteTimeout time.Duration // Must outlast an SEC import (default: 2m)
	Logger       *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:         "127.0.0.1",
		Port:         8080,
		Version:      "dev",
		WriteTimeout: 2 * time.Minute,
	}
}

// NewServer creates a new HTTP server
func NewServer(
	cfg Config,
	authService driving.AuthService,
	docService driving.DocumentService,
	views driving.ViewRegistry,
	backend HealthChecker, // can be nil
) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 2 * time.Minute
	}

	s := &Server{
		router:      http.NewServeMux(),
		version:     cfg.Version,
		logger:      logger,
		authService: authService,
		docService:  docService,
		views:       views,
		backend:     backend,
		baseCtx:     context.Background(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.CORSOrigins),
		},
	}

	s.setupRoutes()

	s.handler = Chain(s.router,
		NewRecoveryMiddleware(logger).Handler,
		NewRequestIDMiddleware().Handler,
		NewLoggingMiddleware(logger).Handler,
		NewCORSMiddleware(cfg.CORSOrigins).Handler,
	)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)),
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	session := NewSessionMiddleware(s.authService)

	// Health endpoints (no auth)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)
	s.router.HandleFunc("GET /swagger/doc.json", s.handleSwagger)

	// Auth endpoints (public)
	s.router.HandleFunc("POST /api/v1/auth/login", s.handleLogin)
	s.router.HandleFunc("POST /api/v1/auth/signup", s.handleSignUp)

	// Auth endpoints (session required)
	s.router.Handle("POST /api/v1/auth/logout",
		session.RequireSession(http.HandlerFunc(s.handleLogout)))
	s.router.Handle("GET /api/v1/me",
		session.RequireSession(http.HandlerFunc(s.handleGetMe)))

	// Dashboard endpoints
	s.router.Handle("GET /api/v1/dashboard",
		session.RequireSession(http.HandlerFunc(s.handleGetDashboard)))
	s.router.Handle("POST /api/v1/dashboard/refresh",
		session.RequireSession(http.HandlerFunc(s.handleRefreshDashboard)))

	// Document endpoints
	s.router.Handle("POST /api/v1/documents",
		session.RequireSession(http.HandlerFunc(s.handleUploadDocument)))
	s.router.Handle("DELETE /api/v1/documents/{id}",
		session.RequireSession(http.HandlerFunc(s.handleDeleteDocument)))
	s.router.Handle("GET /api/v1/documents/{id}/chunks",
		session.RequireSession(http.HandlerFunc(s.handleGetDocumentChunks)))
	s.router.Handle("GET /api/v1/documents/{id}/graph",
		session.RequireSession(http.HandlerFunc(s.handleGetDocumentGraph)))

	// SEC import
	s.router.Handle("POST /api/v1/imports",
		session.RequireSession(http.HandlerFunc(s.handleImport)))

	// Chat endpoints
	s.router.Handle("GET /api/v1/chats/{scope}",
		session.RequireSession(http.HandlerFunc(s.handleGetChat)))
	s.router.Handle("POST /api/v1/chats/{scope}/messages",
		session.RequireSession(http.HandlerFunc(s.handlePostMessage)))
	s.router.Handle("DELETE /api/v1/chats/{scope}",
		session.RequireSession(http.HandlerFunc(s.handleCloseChat)))

	// Event stream
	s.router.Handle("GET /api/v1/events",
		session.RequireSession(http.HandlerFunc(s.handleEvents)))
}

// Handler returns the root handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// SetBaseContext sets the context background work started by handlers
// (the dashboard refresh loop) is bound to.
func (s *Server) SetBaseContext(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseCtx = ctx
}

func (s *Server) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseCtx
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	s.SetBaseContext(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
