package api

import (
	"net/http"

	"github.com/seantiz/qcflow/internal/backend"
)

type listBackendsResponse struct {
	Backends []backend.BackendInfo `json:"backends"`
}

func (s *Server) handleListBackends(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, listBackendsResponse{Backends: s.registry.List()})
}
