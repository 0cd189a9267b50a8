// Package httpapi exposes the session directory over HTTP. The API is a
// thin JSON layer: handlers translate between HTTP and directory calls and
// map the directory's sentinel errors onto status codes.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codebridge/wabridge/internal/health"
	"github.com/codebridge/wabridge/internal/session"
)

// Directory is the slice of the session directory the API exposes.
type Directory interface {
	CreateSession(id string) (string, error)
	InitializeSession(ctx context.Context, id string) error
	DestroySession(ctx context.Context, id string) error
	RestartSession(ctx context.Context, id string) error
	ListSessions(ctx context.Context) []session.Entry
	GetSessionState(id string) (session.AuthState, error)
	GetSessionInfo(id string) (*session.Info, error)
	Stats() session.Stats
}

// HealthReporter is the slice of the health service the API exposes.
type HealthReporter interface {
	Report() health.Report
}

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	directory Directory
	health    HealthReporter
	registry  *prometheus.Registry
	metrics   *requestMetrics
	logger    *slog.Logger
}

// New creates the API server. The registry serves /metrics and receives the
// request instrumentation.
func New(directory Directory, healthSvc HealthReporter, registry *prometheus.Registry, logger *slog.Logger) *Server {
	return &Server{
		directory: directory,
		health:    healthSvc,
		registry:  registry,
		metrics:   newRequestMetrics(registry),
		logger:    logger,
	}
}

// Router builds the full route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestID, s.instrument)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

	r.HandleFunc("/sessions", s.handleListSessions).Methods(http.MethodGet)
	r.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}", s.handleDestroySession).Methods(http.MethodDelete)
	r.HandleFunc("/sessions/{id}/connect", s.handleConnectSession).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/restart", s.handleRestartSession).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/qr", s.handleSessionQR).Methods(http.MethodGet)

	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps directory errors onto status codes: unknown session is
// 404, duplicate creation is 409, everything else (chiefly chat client
// initialization failures) surfaces as 502 since the upstream chat service
// is the failing party.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrSessionExists):
		status = http.StatusConflict
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Report()

	status := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, report)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.directory.Stats())
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	entries := s.directory.ListSessions(r.Context())
	if entries == nil {
		entries = []session.Entry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

type createSessionRequest struct {
	SessionID string `json:"sessionId"`
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
	}

	id, err := s.directory.CreateSession(req.SessionID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, createSessionResponse{SessionID: id})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	state, err := s.directory.GetSessionState(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	info, err := s.directory.GetSessionInfo(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, session.Entry{State: state, Info: info})
}

func (s *Server) handleDestroySession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.directory.DestroySession(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleConnectSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.directory.InitializeSession(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"sessionId": id, "status": "connecting"})
}

func (s *Server) handleRestartSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.directory.RestartSession(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"sessionId": id, "status": "restarting"})
}

type qrResponse struct {
	SessionID string `json:"sessionId"`
	QRCode    string `json:"qrCode"`
}

// handleSessionQR returns the pending QR payload. A session without one
// (already authenticated, or not connecting) yields 404 so pollers can
// distinguish "scan this" from "nothing to scan".
func (s *Server) handleSessionQR(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	state, err := s.directory.GetSessionState(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if state.QRCode == "" {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "no QR code pending"})
		return
	}
	s.writeJSON(w, http.StatusOK, qrResponse{SessionID: id, QRCode: state.QRCode})
}
