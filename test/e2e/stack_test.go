package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/seantiz/qcflow/internal/api"
	"github.com/seantiz/qcflow/internal/backend"
	"github.com/seantiz/qcflow/internal/backend/remote"
	"github.com/seantiz/qcflow/internal/backend/stub"
	"github.com/seantiz/qcflow/internal/orchestrator"
	"github.com/seantiz/qcflow/internal/store"
)

const bellNewer = `OPENQASM 3.0;
include "stdgates.inc";
qubit[2] q;
bit[2] c;
h q[0];
cx q[0], q[1];
c = measure q;
`

// stack is a full in-process deployment: API server, orchestrator, store
// and an engine reached through a registered adapter.
type stack struct {
	ts   *httptest.Server
	orch *orchestrator.Orchestrator
}

// newStack wires the API to s with b registered under name.
func newStack(t *testing.T, s store.Store, name string, b backend.Backend, opts ...orchestrator.Option) *stack {
	t.Helper()

	reg := backend.NewRegistry()
	reg.Register(name, b)

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	orch := orchestrator.New(s, reg, orchestrator.Config{Backend: name, Timeout: 5 * time.Second}, logger, opts...)
	srv := api.NewServer(":0", s, reg, orch, logger)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		orch.Shutdown(ctx)
	})
	return &stack{ts: ts, orch: orch}
}

// newRemoteStack runs sim behind the HTTP engine handler and points the
// remote adapter at it, with tasks kept in SQLite.
func newRemoteStack(t *testing.T, sim *stub.Simulator) *stack {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	engine := httptest.NewServer(remote.NewHandler(sim, logger))
	t.Cleanup(engine.Close)

	return newStack(t, s, remote.Name, remote.New(engine.URL, engine.Client()))
}

func (s *stack) submit(t *testing.T, circuit string) string {
	t.Helper()
	id, err := s.trySubmit(circuit)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

// trySubmit posts a circuit and returns the accepted task ID. It is safe to
// call from goroutines other than the test's.
func (s *stack) trySubmit(circuit string) (string, error) {
	body, _ := json.Marshal(map[string]string{"qc": circuit})
	resp, err := http.Post(s.ts.URL+"/v1/tasks", "application/json", strings.NewReader(string(body)))
	if err != nil {
		return "", fmt.Errorf("POST /v1/tasks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("status = %d, want 202\nbody: %s", resp.StatusCode, b)
	}

	var out struct {
		TaskID  string `json:"task_id"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	if out.Message != "Task submitted successfully." {
		return "", fmt.Errorf("message = %q", out.Message)
	}
	return out.TaskID, nil
}

type taskView struct {
	Status  string         `json:"status"`
	Result  map[string]int `json:"result"`
	Message string         `json:"message"`
}

func (s *stack) get(t *testing.T, id string) (int, taskView) {
	t.Helper()
	resp, err := http.Get(s.ts.URL + "/v1/tasks/" + id)
	if err != nil {
		t.Fatalf("GET task: %v", err)
	}
	defer resp.Body.Close()

	var v taskView
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.StatusCode, v
}

// poll waits until the task leaves pending.
func (s *stack) poll(t *testing.T, id string) taskView {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		_, v := s.get(t, id)
		if v.Status != "pending" {
			return v
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("task %s still pending", id)
	return taskView{}
}
