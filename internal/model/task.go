package model

import (
	"errors"
	"time"
)

// Task status constants.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// PendingMessage is the message carried by a task until it reaches a terminal state.
const PendingMessage = "Task is still in progress."

// validTransitions maps each status to the set of statuses it may transition to.
// Terminal statuses have no entry.
var validTransitions = map[string]map[string]bool{
	StatusPending: {
		StatusCompleted: true,
		StatusFailed:    true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal reports whether status is a final state.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// Task is the persisted state of one submitted circuit.
type Task struct {
	ID          string         `json:"id"`
	Status      string         `json:"status"`
	Payload     string         `json:"payload"`
	Result      map[string]int `json:"result,omitempty"`
	Message     string         `json:"message,omitempty"`
	Shots       int            `json:"shots"`
	Backend     string         `json:"backend,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	FinalizedAt *time.Time     `json:"finalized_at,omitempty"`
}

// TaskSummary is the projection returned when listing tasks.
type TaskSummary struct {
	ID      string `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Summary projects t onto its list representation.
func (t *Task) Summary() TaskSummary {
	return TaskSummary{ID: t.ID, Status: t.Status, Message: t.Message}
}

// Validate checks the field invariants that must hold for every stored record.
func (t *Task) Validate() error {
	switch {
	case t.ID == "":
		return errors.New("task id is empty")
	case t.Status != StatusPending && !IsTerminal(t.Status):
		return errors.New("unknown task status " + t.Status)
	case t.Status == StatusCompleted && t.Result == nil:
		return errors.New("completed task has no result")
	case t.Status != StatusCompleted && t.Result != nil:
		return errors.New("result set on " + t.Status + " task")
	case t.Status != StatusCompleted && t.Message == "":
		return errors.New(t.Status + " task has no message")
	case t.Status == StatusCompleted && t.Message != "":
		return errors.New("message set on completed task")
	case IsTerminal(t.Status) != (t.FinalizedAt != nil):
		return errors.New("finalized_at must be set exactly for terminal tasks")
	}
	return nil
}

// ResultTotal returns the sum of all outcome counts.
func (t *Task) ResultTotal() int {
	total := 0
	for _, n := range t.Result {
		total += n
	}
	return total
}
