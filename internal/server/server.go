// Package server assembles the relay HTTP server: the chat route plus
// health and metrics endpoints on a single mux.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mindbridge-dev/mindbridge/internal/relay"
	"github.com/mindbridge-dev/mindbridge/pkg/observability"
)

// Server hosts the relay and observability endpoints
type Server struct {
	httpServer *http.Server
	port       int
	handler    *relay.Handler
}

// New creates a new relay server
func New(port int, handler *relay.Handler) *Server {
	return &Server{
		port:    port,
		handler: handler,
	}
}

// Start starts the server and blocks until it stops
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.Handle("/chat", s.handler)

	// Health endpoints
	mux.HandleFunc("/health", observability.HealthHandler())
	mux.HandleFunc("/health/live", observability.LivenessHandler())
	mux.HandleFunc("/health/ready", observability.ReadinessHandler())

	// Metrics endpoint
	mux.Handle("/metrics", observability.MetricsHandler())

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 150 * time.Second, // must outlast a slow backend call
		IdleTimeout:  120 * time.Second,
	}

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
