package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/seantiz/qcflow/internal/model"
)

var (
	// ErrNotFound is returned when no record exists for a task id.
	ErrNotFound = errors.New("task not found")

	// ErrInvalidTransition is returned when a task status transition is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrExists is returned when creating a task whose id is already stored.
	ErrExists = errors.New("task already exists")
)

// TaskStats holds aggregate task statistics.
type TaskStats struct {
	Total         int            `json:"total"`
	CountByStatus map[string]int `json:"count_by_status"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

// Store defines the persistence operations for task records. Writes replace
// whole records; readers never observe a partially finalized task.
type Store interface {
	// CreateTask stores a new pending task.
	CreateTask(ctx context.Context, t *model.Task) error
	GetTask(ctx context.Context, id string) (*model.Task, error)
	ListTasks(ctx context.Context) ([]model.TaskSummary, error)
	// FinalizeTask moves a pending task to its terminal state, replacing
	// status, message, result and finalization time in one write.
	FinalizeTask(ctx context.Context, t *model.Task) error
	GetTaskStats(ctx context.Context) (*TaskStats, error)
	Ping(ctx context.Context) error
	Name() string
	Close() error
}

// ConnectivityError reports that the backing store could not be reached.
type ConnectivityError struct {
	Backend string
	Addr    string
	Err     error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("connect to %s store at %s: %v", e.Backend, e.Addr, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// checkCreate validates a record about to be created.
func checkCreate(t *model.Task) error {
	if t.Status != model.StatusPending {
		return fmt.Errorf("%w: new task must be %s, got %s", ErrInvalidTransition, model.StatusPending, t.Status)
	}
	return t.Validate()
}

// checkFinalize validates a terminal record against the currently stored status.
func checkFinalize(current string, t *model.Task) error {
	if !model.ValidTransition(current, t.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, t.Status)
	}
	return t.Validate()
}

// durationMS is the time between creation and finalization in milliseconds.
func durationMS(created time.Time, finalized *time.Time) int64 {
	if finalized == nil {
		return 0
	}
	return finalized.Sub(created).Milliseconds()
}
