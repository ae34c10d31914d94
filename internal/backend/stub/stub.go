// Package stub provides a deterministic in-process execution engine used by
// the test server and adapter tests. It does not simulate quantum state: a
// circuit that applies a Hadamard gate splits its shots evenly between the
// all-zeros and all-ones outcomes, any other circuit measures all zeros.
package stub

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/seantiz/qcflow/internal/backend"
)

// Name is the registry name of the stub engine.
const Name = "stub"

// ErrDialect is returned for circuits not written in OpenQASM 2.0.
var ErrDialect = errors.New("engine accepts OpenQASM 2.0 only")

var (
	cregRe     = regexp.MustCompile(`(?m)^\s*creg\s+[A-Za-z_][A-Za-z0-9_]*\s*\[\s*(\d+)\s*\]`)
	hadamardRe = regexp.MustCompile(`(?m)^\s*h\s`)
)

// Simulator implements backend.Backend.
type Simulator struct {
	// Delay is slept before answering; the context deadline still applies.
	Delay time.Duration
	// IgnoreCancel makes Run ignore its context, to model an engine that does
	// not cooperate with deadlines.
	IgnoreCancel bool
}

var _ backend.Backend = (*Simulator)(nil)

// Run returns a Bell-style histogram over the width of the classical registers.
func (s *Simulator) Run(ctx context.Context, spec backend.CircuitSpec) (backend.Result, error) {
	start := time.Now()
	if s.Delay > 0 {
		if s.IgnoreCancel {
			time.Sleep(s.Delay)
		} else {
			select {
			case <-time.After(s.Delay):
			case <-ctx.Done():
				return backend.Result{}, ctx.Err()
			}
		}
	}

	if !strings.Contains(spec.Circuit, "OPENQASM 2.0") {
		return backend.Result{}, ErrDialect
	}
	if spec.Shots <= 0 {
		return backend.Result{}, fmt.Errorf("invalid shot count %d", spec.Shots)
	}

	width := 0
	for _, m := range cregRe.FindAllStringSubmatch(spec.Circuit, -1) {
		n, _ := strconv.Atoi(m[1])
		width += n
	}
	if width == 0 {
		return backend.Result{}, errors.New("circuit declares no classical register")
	}

	zeros := strings.Repeat("0", width)
	counts := map[string]int{zeros: spec.Shots}
	if hadamardRe.MatchString(spec.Circuit) && spec.Shots > 1 {
		ones := strings.Repeat("1", width)
		counts[zeros] = spec.Shots - spec.Shots/2
		counts[ones] = spec.Shots / 2
	}

	return backend.Result{
		Counts:     counts,
		DurationMS: time.Since(start).Milliseconds(),
	}, nil
}

// Capabilities reports the stub engine.
func (s *Simulator) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		Name:      Name,
		Transport: "inproc",
		Dialect:   "2.0",
	}
}
