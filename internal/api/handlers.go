package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/andyleap/ndirp/internal/flow"
	"github.com/andyleap/ndirp/internal/models"
)

type Server struct {
	flow *flow.Flow
}

func NewServer(f *flow.Flow) *Server {
	return &Server{
		flow: f,
	}
}

// StatusHandler reports the two status lines and the stored auth state
// GET /api/v1/status
func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     s.flow.Status(),
		"auth_state": s.flow.AuthState(),
	})
}

// ClearStateHandler removes the persisted auth state
// DELETE /api/v1/state
func (s *Server) ClearStateHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.flow.ClearState(r.Context()); err != nil {
		slog.Error("Failed to clear auth state", "error", err)
		http.Error(w, "failed to clear auth state", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": s.flow.Status(),
	})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the login error classes onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, flow.ErrUnknownProvider):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, models.ErrMissingSessionData):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrNetwork),
		errors.Is(err, models.ErrParse),
		errors.Is(err, models.ErrUserAgent):
		status = http.StatusBadGateway
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}
