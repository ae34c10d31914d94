// Package remote implements backend.Backend over HTTP. The client posts a
// JSON backend.CircuitSpec to <base>/run and expects a backend.Response.
// NewHandler serves the same protocol in front of any backend.Backend.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/qcflow/internal/backend"
)

// Name is the registry name of the HTTP engine adapter.
const Name = "remote"

// RunPath is the engine endpoint that executes a circuit.
const RunPath = "/run"

// MaxResponseSize bounds the engine reply body (16 MiB).
const MaxResponseSize = 16 << 20

const transport = "http"

// Backend is an HTTP client for a remote execution engine.
type Backend struct {
	baseURL string
	client  *http.Client
}

var _ backend.Backend = (*Backend)(nil)

// New creates an adapter for the engine at baseURL. A nil client selects
// http.DefaultClient; deadlines come from the Run context.
func New(baseURL string, client *http.Client) *Backend {
	if client == nil {
		client = http.DefaultClient
	}
	return &Backend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// Run posts the circuit to the engine and decodes its histogram.
func (b *Backend) Run(ctx context.Context, spec backend.CircuitSpec) (res backend.Result, err error) {
	start := time.Now()
	defer func() { backend.ObserveRun(transport, start, err) }()

	body, err := json.Marshal(spec)
	if err != nil {
		return backend.Result{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+RunPath, bytes.NewReader(body))
	if err != nil {
		return backend.Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return backend.Result{}, fmt.Errorf("post circuit: %w", err)
	}
	defer resp.Body.Close()

	var out backend.Response
	if err := json.NewDecoder(io.LimitReader(resp.Body, MaxResponseSize)).Decode(&out); err != nil {
		return backend.Result{}, fmt.Errorf("decode engine response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK || out.Error != "" {
		msg := out.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return backend.Result{}, fmt.Errorf("engine returned %d: %s", resp.StatusCode, msg)
	}
	if out.Counts == nil {
		return backend.Result{}, errors.New("engine response has no counts")
	}

	return backend.Result{Counts: out.Counts, DurationMS: out.DurationMS}, nil
}

// Capabilities reports the adapter.
func (b *Backend) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		Name:      Name,
		Transport: transport,
		Dialect:   "2.0",
	}
}

// NewHandler returns an HTTP handler serving RunPath in front of b.
func NewHandler(b backend.Backend, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Post(RunPath, func(w http.ResponseWriter, r *http.Request) {
		var spec backend.CircuitSpec
		if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
			writeResponse(w, http.StatusBadRequest, backend.Response{Error: "invalid JSON body"})
			return
		}

		res, err := b.Run(r.Context(), spec)
		if err != nil {
			logger.Warn("engine: run failed", "task_id", spec.TaskID, "error", err)
			writeResponse(w, http.StatusUnprocessableEntity, backend.Response{Error: err.Error()})
			return
		}
		writeResponse(w, http.StatusOK, backend.Response{Counts: res.Counts, DurationMS: res.DurationMS})
	})
	return r
}

func writeResponse(w http.ResponseWriter, status int, resp backend.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
