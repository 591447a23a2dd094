// Package server wires the HTTP surface of the telemetry store: the
// notification ingest endpoint, the history query endpoint, health and
// metrics.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fedih/telemetry-store/internal/database"
	"github.com/fedih/telemetry-store/internal/server/handlers"
	"github.com/fedih/telemetry-store/internal/server/response"
	"github.com/fedih/telemetry-store/pkg/logger"
	"github.com/fedih/telemetry-store/pkg/metrics"
)

// healthCheckTimeout bounds the store round-trip behind GET /health.
const healthCheckTimeout = 2 * time.Second

// Server represents the HTTP server
type Server struct {
	config     *Config
	db         *database.Database
	httpServer *http.Server
	router     *Router
	log        *logger.Logger
}

// New creates a new HTTP server
func New(config *Config, db *database.Database) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}

	server := &Server{
		config: config,
		db:     db,
		log:    logger.Default().WithField("component", "server"),
	}

	server.router = NewRouter(config, db)

	server.httpServer = &http.Server{
		Addr:         config.GetAddress(),
		Handler:      server.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return server, nil
}

// Start starts the HTTP server and blocks until shutdown
func (s *Server) Start(ctx context.Context) error {
	go func() {
		s.log.WithField("address", s.config.GetAddress()).Info("Starting server")

		var err error
		if s.config.TLSEnabled {
			err = s.httpServer.ListenAndServeTLS(s.config.TLSCertFile, s.config.TLSKeyFile)
		} else {
			err = s.httpServer.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			s.log.WithField("error", err.Error()).Error("Server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		s.log.Info("Shutting down server...")
	case <-ctx.Done():
		s.log.Info("Context cancelled, shutting down server...")
	}

	return s.Shutdown()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.WithField("error", err.Error()).Error("Server shutdown error")
		return err
	}

	s.log.Info("Server shutdown complete")
	return nil
}

// Router represents the HTTP router
type Router struct {
	*http.ServeMux
	config     *Config
	db         *database.Database
	middleware *MiddlewareStack
}

// NewRouter creates a new HTTP router
func NewRouter(config *Config, db *database.Database) *Router {
	router := &Router{
		ServeMux:   http.NewServeMux(),
		config:     config,
		db:         db,
		middleware: NewMiddlewareStack(),
	}

	router.setupMiddleware()
	router.setupRoutes()

	return router
}

// ServeHTTP implements the http.Handler interface
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	handler := r.middleware.Apply(r.ServeMux)
	handler.ServeHTTP(w, req)
}

// setupMiddleware configures the middleware stack
func (r *Router) setupMiddleware() {
	// Add middleware in order of execution
	r.middleware.Use(RecoveryMiddleware())
	r.middleware.Use(SecurityHeadersMiddleware())
	r.middleware.Use(RequestIDMiddleware(r.config.RequestIDHeader))
	r.middleware.Use(LoggingMiddleware(r.config))
	r.middleware.Use(CORSMiddleware(r.config))
	r.middleware.Use(RateLimitMiddleware(r.config))
	r.middleware.Use(MaxRequestSizeMiddleware(r.config.MaxRequestSize))
}

// setupRoutes configures all API routes
func (r *Router) setupRoutes() {
	r.HandleFunc(r.config.HealthCheckPath, r.healthCheckHandler)

	if r.config.MetricsEnabled {
		r.Handle(r.config.MetricsPath, metrics.GetRegistry().Handler())
	}

	telemetry := r.db.NewTelemetryService()

	notifyHandler := handlers.NewNotifyHandler(telemetry)
	entityHandler := handlers.NewEntityHandler(telemetry, r.config.DefaultLastN, r.config.MaxLastN)

	r.HandleFunc("/v2/notify", notifyHandler.HandleNotify)
	r.HandleFunc("/v2/entities/", entityHandler.HandleEntity)
}

// healthCheckHandler handles GET /health
func (r *Router) healthCheckHandler(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
	defer cancel()

	if err := r.db.HealthCheck(ctx); err != nil {
		response.WriteHealthCheck(w, false, err.Error())
		return
	}

	response.WriteHealthCheck(w, true, "")
}

// RunServer is a convenience function to run the server
func RunServer(config *Config, db *database.Database) error {
	server, err := New(config, db)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return server.Start(context.Background())
}
