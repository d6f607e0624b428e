// Package http serves machine status and metrics over HTTP.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/aretw0/settle/pkg/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Machines is the source of machine states, typically an *observability.Aggregator.
type Machines interface {
	Snapshot() []observability.MachineState
}

// Server serves the status endpoints.
type Server struct {
	Machines Machines
	Logger   *slog.Logger
}

// NewHandler creates the status router. gatherer backs /metrics; nil disables it.
func NewHandler(machines Machines, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	server := &Server{Machines: machines, Logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", server.Health)
	r.Get("/machines", server.ListMachines)
	r.Get("/machines/{name}", server.GetMachine)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Health handles GET /healthz.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListMachines handles GET /machines.
func (s *Server) ListMachines(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Machines.Snapshot())
}

// GetMachine handles GET /machines/{name}.
func (s *Server) GetMachine(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	for _, m := range s.Machines.Snapshot() {
		if m.Name == name {
			s.writeJSON(w, http.StatusOK, m)
			return
		}
	}
	http.Error(w, "machine not found", http.StatusNotFound)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Error("failed to encode response", "err", err)
	}
}
