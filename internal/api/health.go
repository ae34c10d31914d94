package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const readyTimeout = 2 * time.Second

type healthResponse struct {
	Status  string `json:"status"`
	Store   string `json:"store,omitempty"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(healthResponse{Status: "ok"}); err != nil {
		s.logger.Error("encode healthz response", "error", err)
	}
}

// handleReadyz reports whether the record store answers a ping.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", "store", s.store.Name(), "error", err)
		s.writeJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status:  statusError,
			Store:   s.store.Name(),
			Message: "store unreachable: " + err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Store: s.store.Name()})
}
