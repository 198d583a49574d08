// Package api serves the utility HTTP surface: liveness, indexing
// progress, re-index triggers, and the MCP endpoint for HTTP clients.
// It also implements the single-instance peer coordination used when
// the configured port is already bound.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/codecompass/codecompass/infrastructure/api/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// ServiceName identifies this service in ping responses and peer
// detection.
const ServiceName = "CodeCompass"

// Server is the utility HTTP server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	listener   net.Listener
	logger     *slog.Logger
	addr       string
}

// NewServer creates a Server bound to addr once Listen is called. The
// standard middleware stack is applied; routes are mounted by the
// caller before serving.
func NewServer(addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.Logging(logger))
	router.Use(chimiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Mcp-Session-Id"},
		ExposedHeaders: []string{"Mcp-Session-Id"},
		MaxAge:         300,
	}))

	return &Server{
		router: router,
		addr:   addr,
		logger: logger,
	}
}

// Router returns the chi router for registering routes.
func (s *Server) Router() chi.Router {
	return s.router
}

// Listen binds the address. Port conflicts surface here, before any
// request is served, so the caller can run peer detection on failure.
// Requesting port 0 binds a dynamic port; BoundAddr reports it.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listener = listener
	return nil
}

// Serve accepts requests until Shutdown. It listens first when Listen
// was not called.
func (s *Server) Serve() error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	s.httpServer = &http.Server{
		Handler: s.router,
		// No WriteTimeout: the MCP endpoint streams responses.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("utility HTTP server listening", slog.String("addr", s.BoundAddr()))
	if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests
// up to the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		if s.listener != nil {
			return s.listener.Close()
		}
		return nil
	}

	s.logger.Info("shutting down utility HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the requested address.
func (s *Server) Addr() string {
	return s.addr
}

// BoundAddr returns the address actually bound, which differs from
// Addr when port 0 requested a dynamic port. Empty before Listen.
func (s *Server) BoundAddr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// IsAddrInUse reports whether err is a listen failure caused by the
// port already being bound.
func IsAddrInUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}
