package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/qcflow/internal/model"
	"github.com/seantiz/qcflow/internal/orchestrator"
	"github.com/seantiz/qcflow/internal/store"
)

const maxBodySize = 1 << 20 // 1 MB

// SubmittedMessage is returned with the id of an accepted task.
const SubmittedMessage = "Task submitted successfully."

// statusError is the public status of failed tasks and of error bodies.
const statusError = "error"

// submitTaskRequest is the JSON body for POST /v1/tasks.
type submitTaskRequest struct {
	QC *string `json:"qc"`
}

type submitTaskResponse struct {
	TaskID  string `json:"task_id"`
	Message string `json:"message"`
}

// taskResponse is the polling view of a task: a result when completed, a
// message otherwise.
type taskResponse struct {
	Status  string         `json:"status"`
	Result  map[string]int `json:"result,omitempty"`
	Message string         `json:"message,omitempty"`
}

type listTasksResponse struct {
	Tasks []model.TaskSummary `json:"tasks"`
	Total int                 `json:"total"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	var req submitTaskRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.QC == nil {
		s.writeError(w, http.StatusBadRequest, "qc is required")
		return
	}

	id, err := s.orch.Submit(r.Context(), *req.QC)
	if errors.Is(err, orchestrator.ErrShuttingDown) {
		s.writeError(w, http.StatusServiceUnavailable, "service is shutting down")
		return
	}
	if err != nil {
		s.logger.Error("submit task", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to submit task")
		return
	}

	s.writeJSON(w, http.StatusAccepted, submitTaskResponse{TaskID: id, Message: SubmittedMessage})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, ok := s.lookupTask(w, r)
	if !ok {
		return
	}

	resp := taskResponse{Status: publicStatus(t.Status)}
	if t.Status == model.StatusCompleted {
		resp.Result = t.Result
	} else {
		resp.Message = t.Message
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetTaskRecord(w http.ResponseWriter, r *http.Request) {
	t, ok := s.lookupTask(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.orch.List(r.Context())
	if err != nil {
		s.logger.Error("list tasks", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}

	if tasks == nil {
		tasks = []model.TaskSummary{}
	}
	for i := range tasks {
		tasks[i].Status = publicStatus(tasks[i].Status)
	}

	s.writeJSON(w, http.StatusOK, listTasksResponse{Tasks: tasks, Total: len(tasks)})
}

// lookupTask loads the task named in the URL, writing the error response
// itself when it cannot.
func (s *Server) lookupTask(w http.ResponseWriter, r *http.Request) (*model.Task, bool) {
	id := chi.URLParam(r, "id")

	t, err := s.orch.Query(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("Task %s not found.", id))
		return nil, false
	}
	if err != nil {
		s.logger.Error("get task", "task_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get task")
		return nil, false
	}
	return t, true
}

// publicStatus maps stored statuses to the values clients poll for.
func publicStatus(status string) string {
	if status == model.StatusFailed {
		return statusError
	}
	return status
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Status: statusError, Message: message})
}
