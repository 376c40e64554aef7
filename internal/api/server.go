// Package api implements the HTTP API over the trip planner.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alexlifshitz/teslanav/internal/buildinfo"
	"github.com/alexlifshitz/teslanav/internal/events"
	"github.com/alexlifshitz/teslanav/internal/planner"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response,
// which is not actionable but worth tracking for debugging.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	address string
	port    int
	planner *planner.Planner
	bus     *events.Bus
	logger  *slog.Logger
	server  *http.Server
}

// NewServer creates a new API server.
func NewServer(address string, port int, p *planner.Planner, bus *events.Bus, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address: address,
		port:    port,
		planner: p,
		bus:     bus,
		logger:  logger,
	}
}

// Handler builds the route table. Exposed separately from Start so
// tests can drive it through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Trip lifecycle
	mux.HandleFunc("POST /v1/trip/plan", s.handlePlan)
	mux.HandleFunc("POST /v1/trip/optimize", s.handleOptimize)
	mux.HandleFunc("POST /v1/trip/select", s.handleSelect)
	mux.HandleFunc("POST /v1/trip/dispatch", s.handleDispatch)
	mux.HandleFunc("POST /v1/trip/climate", s.handleClimate)
	mux.HandleFunc("GET /v1/trip", s.handleTrip)

	// Fleet
	mux.HandleFunc("GET /v1/vehicles", s.handleVehicles)
	mux.HandleFunc("GET /v1/vehicles/{id}/status", s.handleVehicleStatus)

	// Event stream
	mux.HandleFunc("GET /v1/events/ws", s.handleEventsWS)

	// Health endpoints
	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /", s.handleRoot)

	return s.withLogging(mux)
}

// Start runs the server until it fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket connections stay open indefinitely
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "TeslaNav",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

func (s *Server) handleTrip(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.planner.Snapshot(), s.logger)
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		s.errorResponse(w, http.StatusBadRequest, "prompt is required")
		return
	}

	// Plan failures are part of the session state: the snapshot's
	// notice field says what went wrong, and partial results (parsed
	// but unresolved stops) remain usable.
	if err := s.planner.PlanFromPrompt(r.Context(), req.Prompt); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		writeJSON(w, s.planner.Snapshot(), s.logger)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.planner.Snapshot(), s.logger)
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	if err := s.planner.OptimizeOrder(r.Context()); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		writeJSON(w, s.planner.Snapshot(), s.logger)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.planner.Snapshot(), s.logger)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VehicleIDs []string `json:"vehicleIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.planner.SelectVehicles(req.VehicleIDs)
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.planner.Snapshot(), s.logger)
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	outcomes, err := s.planner.Dispatch(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusConflict, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"outcomes": outcomes}, s.logger)
}

func (s *Server) handleClimate(w http.ResponseWriter, r *http.Request) {
	res, err := s.planner.ActivateClimate(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusConflict, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"success": res.Success, "outcomes": res.Outcomes}, s.logger)
}

func (s *Server) handleVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles, err := s.planner.RefreshVehicles(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusBadGateway, fmt.Sprintf("listing vehicles: %v", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, vehicles, s.logger)
}

func (s *Server) handleVehicleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	status, err := s.planner.RefreshStatus(r.Context(), id)
	if err != nil {
		s.errorResponse(w, http.StatusBadGateway, fmt.Sprintf("reading vehicle %s: %v", id, err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, status, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]string{"error": message}, s.logger)
}
