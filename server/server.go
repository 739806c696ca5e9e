// Package server exposes the engine's diagnostics and trigger endpoints.
// This is the surface the operator screen talks to: state inspection, the
// outcome log, the enable switch, and the manual and delayed test triggers.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"campus-notifier/pkg/notifier"
	"campus-notifier/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Engine interface for the poll engine operations the HTTP surface needs.
type Engine interface {
	Run(ctx context.Context) notifier.Result
	ManualTest(ctx context.Context)
	DelayedTest(ctx context.Context, delay time.Duration, onProgress func(remaining time.Duration))
	Diagnostics(ctx context.Context) notifier.Diagnostics
	Outcomes(ctx context.Context, limit int) ([]notifier.PollOutcome, error)
	ClearOutcomes(ctx context.Context) error
	SetEnabled(ctx context.Context, enabled bool) error
}

// Server handles HTTP requests.
type Server struct {
	engine Engine
	logger *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Engine Engine
	Logger *slog.Logger
}

// New creates a new HTTP server handler.
func New(cfg *Config) *Server {
	return &Server{
		engine: cfg.Engine,
		logger: cfg.Logger,
	}
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Get("/diagz", s.handleDiagnostics)
	r.Get("/outcomes", s.handleOutcomes)
	r.Delete("/outcomes", s.handleClearOutcomes)
	r.Post("/pollz", s.handlePoll)
	r.Post("/testz", s.handleManualTest)
	r.Post("/testz/delayed", s.handleDelayedTest)
	r.Put("/enabled", s.handleSetEnabled)
	return r
}

// ListenAndServe starts the server on the given port.
func (s *Server) ListenAndServe(port string) error {
	// Timeouts prevent resource exhaustion from slow clients.
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Router(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "port", port)
	return server.ListenAndServe()
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Diagnostics(r.Context()))
}

func (s *Server) handleOutcomes(w http.ResponseWriter, r *http.Request) {
	limit := store.MaxOutcomes
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	outcomes, err := s.engine.Outcomes(r.Context(), limit)
	if err != nil {
		s.logger.Error("Outcome read failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if outcomes == nil {
		outcomes = []notifier.PollOutcome{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"outcomes": outcomes})
}

func (s *Server) handleClearOutcomes(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ClearOutcomes(r.Context()); err != nil {
		s.logger.Error("Outcome clear failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("Poll endpoint triggered")
	result := s.engine.Run(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]string{"result": result.String()})
}

func (s *Server) handleManualTest(w http.ResponseWriter, r *http.Request) {
	s.engine.ManualTest(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (s *Server) handleDelayedTest(w http.ResponseWriter, r *http.Request) {
	// delay_ms is optional; the engine applies its default when omitted.
	var body struct {
		DelayMs int64 `json:"delay_ms"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.DelayMs < 0 {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}
	delay := time.Duration(body.DelayMs) * time.Millisecond

	// The delayed test outlives the request; it runs on its own context
	// and reports through the outcome log.
	go s.engine.DelayedTest(context.Background(), delay, func(remaining time.Duration) {
		s.logger.Info("Delayed test pending", "remaining", remaining.Round(time.Second).String())
	})
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

func (s *Server) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.engine.SetEnabled(r.Context(), *body.Enabled); err != nil {
		s.logger.Error("Enable switch failed", "enabled", *body.Enabled, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"enabled": *body.Enabled})
}
