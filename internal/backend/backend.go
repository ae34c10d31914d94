package backend

import "context"

// Backend is the interface that all execution engines must implement.
// Engines receive circuits already normalized to OpenQASM 2.0.
type Backend interface {
	// Run executes the circuit for the requested number of shots and returns
	// the raw outcome histogram. The context carries the execution deadline;
	// engines should abandon work once it is done.
	Run(ctx context.Context, spec CircuitSpec) (Result, error)

	// Capabilities reports what this engine supports.
	Capabilities() Capabilities
}

// CircuitSpec describes one execution request. It is also the request body
// of the HTTP and NATS adapters.
type CircuitSpec struct {
	TaskID  string `json:"task_id"`
	Circuit string `json:"circuit"`
	Shots   int    `json:"shots"`
}

// Result holds the histogram produced by an engine. Keys are the raw
// bitstring outcome labels.
type Result struct {
	Counts     map[string]int `json:"counts"`
	DurationMS int64          `json:"duration_ms"`
}

// Response is the reply body of the HTTP and NATS adapters. Exactly one of
// Counts and Error is set.
type Response struct {
	Counts     map[string]int `json:"counts,omitempty"`
	DurationMS int64          `json:"duration_ms,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Capabilities describes an engine.
type Capabilities struct {
	Name           string `json:"name"`
	Transport      string `json:"transport"`
	Dialect        string `json:"dialect"`
	MaxShots       int    `json:"max_shots,omitempty"`
	MaxConcurrency int    `json:"max_concurrency,omitempty"`
}
