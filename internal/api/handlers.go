package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rccstake/rccstake/internal/position"
)

// HealthResponse is the JSON response for the /health endpoint
type HealthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime,omitempty"`
	Version string `json:"version"`
	Account string `json:"account,omitempty"`
	Clients int    `json:"feed_clients"`
	Reason  string `json:"reason,omitempty"`
}

// PendingResponse lists the in-flight and failed transactions
type PendingResponse struct {
	Account string            `json:"account,omitempty"`
	Pending []position.TxView `json:"pending"`
}

// handleHealth handles GET /health. A read error on the last refresh is
// reported as degraded, not unhealthy: the last good Position is still served.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	s.mu.RLock()
	running := s.running
	startedAt := s.startedAt
	s.mu.RUnlock()

	if !running {
		s.writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:  "unhealthy",
			Version: s.version,
			Reason:  "server not running",
		})
		return
	}

	view := s.source.View()
	resp := HealthResponse{
		Status:  "healthy",
		Uptime:  time.Since(startedAt).Round(time.Second).String(),
		Version: s.version,
		Account: view.Account,
		Clients: s.wsHub.ClientCount(),
	}
	if view.Error != "" {
		resp.Status = "degraded"
		resp.Reason = view.Error
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handlePosition handles GET /position
func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.source.View())
}

// handlePending handles GET /pending
func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	view := s.source.View()
	s.writeJSON(w, http.StatusOK, PendingResponse{
		Account: view.Account,
		Pending: view.Pending,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
