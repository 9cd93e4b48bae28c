package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// StatusReporter exposes pipeline liveness data for the health endpoint.
type StatusReporter interface {
	Status() (pending int, flushes uint64)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	PendingUpdates int       `json:"pending_updates"`
	Flushes        uint64    `json:"flushes"`
}

// Server serves the health check and Prometheus metrics endpoints.
type Server struct {
	server *http.Server
}

// NewServer creates the health/metrics HTTP server.
func NewServer(addr string, status StatusReporter) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC(),
		}
		if status != nil {
			resp.PendingUpdates, resp.Flushes = status.Status()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
	})

	mux.Handle("/metrics", promhttp.Handler())

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start starts the server and blocks until it is shut down.
func (s *Server) Start() {
	log.Info().Str("addr", s.server.Addr).Msg("Starting health/metrics server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Health/metrics server failed")
	}
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("Stopping health/metrics server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
