package orchestrator

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrShuttingDown is returned by Submit after Shutdown has begun.
	ErrShuttingDown = errors.New("orchestrator is shutting down")

	// ErrCancelled is the failure recorded for tasks interrupted by Shutdown.
	ErrCancelled = errors.New("cancelled: service shutting down")

	// ErrCountMismatch is returned when a histogram does not account for
	// every configured shot.
	ErrCountMismatch = errors.New("histogram does not match shot count")
)

// TimeoutError reports that a task exceeded its execution deadline.
type TimeoutError struct {
	TaskID  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("execution of task %s timed out after %s", e.TaskID, e.Timeout)
}

// EngineError reports a failure inside the execution engine.
type EngineError struct {
	Backend string
	Err     error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine %s: %v", e.Backend, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}
