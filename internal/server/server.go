// Package server provides the HTTP surface over the memory pipeline: message
// ingestion, context retrieval, ticket management, and the websocket event
// feed.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/meridian-labs/tether/internal/config"
)

// Server is the HTTP front end. Construct with New, run with Start, stop
// with Shutdown.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	hub    *EventHub
	http   *http.Server
}

// New builds the server and its routes. The hub is optional; without one the
// events route is not registered.
func New(cfg *config.Config, pipeline Pipeline, hub *EventHub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{pipeline: pipeline, logger: logger}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", h.handleHealthz).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/messages", h.handleStoreMessage).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/context", h.handleRetrieveContext).Methods(http.MethodGet)
	api.HandleFunc("/tickets", h.handleListTickets).Methods(http.MethodGet)
	api.HandleFunc("/tickets/{id}", h.handleGetTicket).Methods(http.MethodGet)
	api.HandleFunc("/tickets/{id}", h.handleUpdateTicket).Methods(http.MethodPatch)
	if hub != nil {
		api.Handle("/events", hub).Methods(http.MethodGet)
	}

	limiter := rate.NewLimiter(rate.Limit(50), 100)
	var handler http.Handler = router
	handler = requireAuth(handler, cfg)
	handler = rateLimit(handler, limiter)
	handler = requestLogging(handler, logger)
	handler = securityHeaders(handler)

	return &Server{
		cfg:    cfg,
		logger: logger,
		hub:    hub,
		http: &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, fmt.Sprintf("%d", cfg.Server.Port)),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler exposes the composed handler chain for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start runs the event hub and blocks serving HTTP until Shutdown is called
// or the listener fails.
func (s *Server) Start() error {
	if s.hub != nil {
		go s.hub.Run()
	}
	s.logger.Info("http server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen on %s: %w", s.http.Addr, err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the event hub.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Stop()
	}
	return s.http.Shutdown(ctx)
}

// securityHeaders adds standard hardening headers to every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}
