package handlers

import (
	"encoding/json"
	"net/http"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the operational HTTP surface: health and metrics.
type Server struct {
	logger      *slog.Logger
	gatewayBase string
	registry    *prometheus.Registry
}

// New creates the handler set.
func New(gatewayBase string, registry *prometheus.Registry, logger *slog.Logger) *Server {
	return &Server{
		logger:      logger.With("component", "http"),
		gatewayBase: gatewayBase,
		registry:    registry,
	}
}

// Routes returns the HTTP mux for the operational endpoints.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"ok":      true,
		"gateway": s.gatewayBase,
	}); err != nil {
		s.logger.Warn("write health response failed", "error", err)
	}
}
