package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/custodia-labs/descgen-core/internal/core/domain"
	"github.com/custodia-labs/descgen-core/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// ContextLister lists connected extension contexts
type ContextLister interface {
	Contexts() []domain.ContextInfo
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string
	logger     *slog.Logger

	// Services
	authService     driving.AuthService // nil disables authentication
	settingsService driving.SettingsService
	messageRouter   driving.MessageRouter

	// Infrastructure
	contexts ContextLister
	ws       http.Handler
	store    Pinger
}

// Config holds server configuration
type Config struct {
	Host        string
	Port        int
	Version     string
	CORSOrigins []string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:    "0.0.0.0",
		Port:    8080,
		Version: "dev",
	}
}

// Deps groups the services the server exposes
type Deps struct {
	AuthService     driving.AuthService
	SettingsService driving.SettingsService
	MessageRouter   driving.MessageRouter
	Contexts        ContextLister
	WebSocket       http.Handler
	Store           Pinger
	Logger          *slog.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router:          http.NewServeMux(),
		version:         cfg.Version,
		logger:          logger.With("component", "http"),
		authService:     deps.AuthService,
		settingsService: deps.SettingsService,
		messageRouter:   deps.MessageRouter,
		contexts:        deps.Contexts,
		ws:              deps.WebSocket,
		store:           deps.Store,
	}

	s.setupRoutes()

	// Outermost first: recover, log, then CORS
	var handler http.Handler = s.router
	handler = NewCORSMiddleware(cfg.CORSOrigins).Handler(handler)
	handler = NewLoggingMiddleware(s.logger).Handler(handler)
	handler = NewRecoveryMiddleware(s.logger).Handler(handler)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Create middleware
	authMiddleware := NewAuthMiddleware(s.authService)

	// Health endpoints (no auth)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)

	// Message bus endpoint
	s.router.Handle("POST /api/v1/messages",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleMessage)))

	// Settings endpoints
	s.router.Handle("GET /api/v1/settings",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleGetSettings)))
	s.router.Handle("PATCH /api/v1/settings",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleUpdateSettings)))
	s.router.Handle("PUT /api/v1/settings/{key}",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleSetSetting)))
	s.router.Handle("POST /api/v1/settings/rotate",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleRotateAPIKey)))
	s.router.Handle("POST /api/v1/settings/reset",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleResetSettings)))
	s.router.Handle("GET /api/v1/settings/api-key",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleGetAPIKey)))

	// Context endpoints (extension pages only)
	s.router.Handle("GET /api/v1/contexts",
		authMiddleware.Authenticate(
			authMiddleware.RequireKind(domain.ContextKindOptions, domain.ContextKindBackground)(
				http.HandlerFunc(s.handleListContexts))))

	if s.ws != nil {
		s.router.Handle("GET /ws", authMiddleware.Authenticate(s.ws))
	}
}

// Handler returns the root handler including middleware
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// RegisterOnShutdown registers fn to run when the server shuts down.
// Hijacked websocket connections are not closed by Shutdown itself.
func (s *Server) RegisterOnShutdown(fn func()) {
	s.httpServer.RegisterOnShutdown(fn)
}

// Start starts the HTTP server with graceful shutdown
func (s *Server) Start() error {
	// Channel to listen for OS signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	select {
	case <-stop:
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
	s.logger.Info("shutting down server")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Attempt graceful shutdown
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
