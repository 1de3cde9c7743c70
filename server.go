package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"i4.energy/across/drivetest/session"
)

// Server serves the status of the running drive test
type Server struct {
	Logger   *slog.Logger
	Mode     string
	Tracker  *Tracker
	Gatherer prometheus.Gatherer

	router http.Handler
}

// NewServer builds the status router
func NewServer(logger *slog.Logger, mode string, tracker *Tracker, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		Logger:   logger,
		Mode:     mode,
		Tracker:  tracker,
		Gatherer: gatherer,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.router = r
	return s
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	resp := ErrorResponse{Message: message}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

// handleHealth reports 503 once the modem session has failed
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sess, _ := s.Tracker.Snapshot()
	if sess != nil && sess.State == session.StateFailed.String() {
		s.sendError(w, "modem session failed: "+sess.Error, http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok\n"))
}

// handleStatus returns the session and GNSS stream views
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	type StatusResponse struct {
		Mode    string          `json:"mode"`
		Session *session.Status `json:"session,omitempty"`
		GNSS    *GNSSStatus     `json:"gnss,omitempty"`
	}

	sess, g := s.Tracker.Snapshot()
	resp := StatusResponse{Mode: s.Mode, Session: sess, GNSS: g}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.Logger.Error("Failed to encode status", "error", err)
	}
}
