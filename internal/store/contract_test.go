package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/seantiz/qcflow/internal/model"
)

func makeTestTask() *model.Task {
	return &model.Task{
		ID:        model.NewID(),
		Status:    model.StatusPending,
		Payload:   "OPENQASM 3.0;\nqubit[2] q;",
		Message:   model.PendingMessage,
		Shots:     1024,
		Backend:   "remote",
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func completedFrom(t *model.Task, result map[string]int) *model.Task {
	now := time.Now().UTC()
	c := *t
	c.Status = model.StatusCompleted
	c.Message = ""
	c.Result = result
	c.FinalizedAt = &now
	return &c
}

func failedFrom(t *model.Task, msg string) *model.Task {
	now := time.Now().UTC()
	f := *t
	f.Status = model.StatusFailed
	f.Message = msg
	f.FinalizedAt = &now
	return &f
}

// testStoreContract exercises the behavior every Store implementation shares.
func testStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateAndGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		w := makeTestTask()

		if err := s.CreateTask(ctx, w); err != nil {
			t.Fatalf("CreateTask: %v", err)
		}

		got, err := s.GetTask(ctx, w.ID)
		if err != nil {
			t.Fatalf("GetTask: %v", err)
		}
		if got.ID != w.ID {
			t.Errorf("ID = %q, want %q", got.ID, w.ID)
		}
		if got.Status != model.StatusPending {
			t.Errorf("Status = %q, want %q", got.Status, model.StatusPending)
		}
		if got.Payload != w.Payload {
			t.Errorf("Payload = %q, want %q", got.Payload, w.Payload)
		}
		if got.Message != model.PendingMessage {
			t.Errorf("Message = %q, want %q", got.Message, model.PendingMessage)
		}
		if got.Shots != 1024 {
			t.Errorf("Shots = %d, want 1024", got.Shots)
		}
		if got.Result != nil {
			t.Errorf("Result = %v, want nil", got.Result)
		}
		if got.FinalizedAt != nil {
			t.Errorf("FinalizedAt = %v, want nil", got.FinalizedAt)
		}
		if got.CreatedAt.IsZero() {
			t.Error("CreatedAt is zero")
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetTask(context.Background(), "nonexistent")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("GetTask error = %v, want ErrNotFound", err)
		}
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		w := makeTestTask()
		if err := s.CreateTask(ctx, w); err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
		if err := s.CreateTask(ctx, w); !errors.Is(err, ErrExists) {
			t.Errorf("second CreateTask error = %v, want ErrExists", err)
		}
	})

	t.Run("CreateRejectsTerminal", func(t *testing.T) {
		s := newStore(t)
		w := failedFrom(makeTestTask(), "boom")
		if err := s.CreateTask(context.Background(), w); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("CreateTask error = %v, want ErrInvalidTransition", err)
		}
	})

	t.Run("FinalizeCompleted", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		w := makeTestTask()
		if err := s.CreateTask(ctx, w); err != nil {
			t.Fatalf("CreateTask: %v", err)
		}

		if err := s.FinalizeTask(ctx, completedFrom(w, map[string]int{"0": 510, "3": 514})); err != nil {
			t.Fatalf("FinalizeTask: %v", err)
		}

		got, err := s.GetTask(ctx, w.ID)
		if err != nil {
			t.Fatalf("GetTask: %v", err)
		}
		if got.Status != model.StatusCompleted {
			t.Errorf("Status = %q, want %q", got.Status, model.StatusCompleted)
		}
		if got.Result["0"] != 510 || got.Result["3"] != 514 || len(got.Result) != 2 {
			t.Errorf("Result = %v", got.Result)
		}
		if got.Message != "" {
			t.Errorf("Message = %q, want empty", got.Message)
		}
		if got.FinalizedAt == nil {
			t.Error("FinalizedAt is nil")
		}
		if got.Payload != w.Payload {
			t.Errorf("Payload = %q, want %q", got.Payload, w.Payload)
		}
		if err := got.Validate(); err != nil {
			t.Errorf("stored record invalid: %v", err)
		}
	})

	t.Run("FinalizeFailed", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		w := makeTestTask()
		if err := s.CreateTask(ctx, w); err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
		if err := s.FinalizeTask(ctx, failedFrom(w, "engine crashed")); err != nil {
			t.Fatalf("FinalizeTask: %v", err)
		}

		got, err := s.GetTask(ctx, w.ID)
		if err != nil {
			t.Fatalf("GetTask: %v", err)
		}
		if got.Status != model.StatusFailed || got.Message != "engine crashed" {
			t.Errorf("got %q/%q, want failed/engine crashed", got.Status, got.Message)
		}
		if got.Result != nil {
			t.Errorf("Result = %v, want nil", got.Result)
		}
	})

	t.Run("TerminalIsNeverRewritten", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		w := makeTestTask()
		if err := s.CreateTask(ctx, w); err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
		if err := s.FinalizeTask(ctx, failedFrom(w, "first")); err != nil {
			t.Fatalf("FinalizeTask: %v", err)
		}

		err := s.FinalizeTask(ctx, completedFrom(w, map[string]int{"0": 1}))
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("second FinalizeTask error = %v, want ErrInvalidTransition", err)
		}

		got, _ := s.GetTask(ctx, w.ID)
		if got.Status != model.StatusFailed || got.Message != "first" {
			t.Errorf("terminal record changed: %q/%q", got.Status, got.Message)
		}
	})

	t.Run("FinalizeNotFound", func(t *testing.T) {
		s := newStore(t)
		w := makeTestTask()
		if err := s.FinalizeTask(context.Background(), failedFrom(w, "x")); !errors.Is(err, ErrNotFound) {
			t.Errorf("FinalizeTask error = %v, want ErrNotFound", err)
		}
	})

	t.Run("FinalizeRejectsInvalidRecord", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		w := makeTestTask()
		if err := s.CreateTask(ctx, w); err != nil {
			t.Fatalf("CreateTask: %v", err)
		}

		bad := completedFrom(w, nil)
		if err := s.FinalizeTask(ctx, bad); err == nil {
			t.Fatal("FinalizeTask accepted a completed task without result")
		}
		got, _ := s.GetTask(ctx, w.ID)
		if got.Status != model.StatusPending {
			t.Errorf("Status = %q, want pending", got.Status)
		}
	})

	t.Run("ListTasks", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		list, err := s.ListTasks(ctx)
		if err != nil {
			t.Fatalf("ListTasks (empty): %v", err)
		}
		if len(list) != 0 {
			t.Errorf("len(list) = %d, want 0", len(list))
		}

		var ids []string
		for i := 0; i < 3; i++ {
			w := makeTestTask()
			if err := s.CreateTask(ctx, w); err != nil {
				t.Fatalf("CreateTask[%d]: %v", i, err)
			}
			ids = append(ids, w.ID)
			if i == 0 {
				if err := s.FinalizeTask(ctx, failedFrom(w, "bad circuit")); err != nil {
					t.Fatalf("FinalizeTask: %v", err)
				}
			}
		}

		list, err = s.ListTasks(ctx)
		if err != nil {
			t.Fatalf("ListTasks: %v", err)
		}
		if len(list) != 3 {
			t.Fatalf("len(list) = %d, want 3", len(list))
		}
		byID := make(map[string]model.TaskSummary)
		for _, ts := range list {
			byID[ts.ID] = ts
		}
		if got := byID[ids[0]]; got.Status != model.StatusFailed || got.Message != "bad circuit" {
			t.Errorf("summary[0] = %+v", got)
		}
		if got := byID[ids[1]]; got.Status != model.StatusPending || got.Message != model.PendingMessage {
			t.Errorf("summary[1] = %+v", got)
		}
	})

	t.Run("Stats", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		stats, err := s.GetTaskStats(ctx)
		if err != nil {
			t.Fatalf("GetTaskStats (empty): %v", err)
		}
		if stats.Total != 0 || stats.AvgDurationMS != 0 {
			t.Errorf("empty stats = %+v", stats)
		}

		for i := 0; i < 3; i++ {
			w := makeTestTask()
			if err := s.CreateTask(ctx, w); err != nil {
				t.Fatalf("CreateTask: %v", err)
			}
			if i < 2 {
				if err := s.FinalizeTask(ctx, completedFrom(w, map[string]int{"0": 1024})); err != nil {
					t.Fatalf("FinalizeTask: %v", err)
				}
			}
		}

		stats, err = s.GetTaskStats(ctx)
		if err != nil {
			t.Fatalf("GetTaskStats: %v", err)
		}
		if stats.Total != 3 {
			t.Errorf("Total = %d, want 3", stats.Total)
		}
		if stats.CountByStatus[model.StatusCompleted] != 2 {
			t.Errorf("completed = %d, want 2", stats.CountByStatus[model.StatusCompleted])
		}
		if stats.CountByStatus[model.StatusPending] != 1 {
			t.Errorf("pending = %d, want 1", stats.CountByStatus[model.StatusPending])
		}
		if stats.AvgDurationMS < 0 {
			t.Errorf("AvgDurationMS = %f, want >= 0", stats.AvgDurationMS)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		s := newStore(t)
		if err := s.Ping(context.Background()); err != nil {
			t.Errorf("Ping: %v", err)
		}
	})
}
