package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/seantiz/qcflow/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	testStoreContract(t, func(t *testing.T) Store { return newTestStore(t) })
}

func TestSQLiteName(t *testing.T) {
	if got := newTestStore(t).Name(); got != "sqlite" {
		t.Errorf("Name() = %q, want sqlite", got)
	}
}

func TestMigrationIdempotency(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.db")

	s1, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	w := makeTestTask()
	if err := s1.CreateTask(context.Background(), w); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	s1.Close()

	s2, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer s2.Close()

	got, err := s2.GetTask(context.Background(), w.ID)
	if err != nil {
		t.Fatalf("GetTask after reopen: %v", err)
	}
	if got.ID != w.ID {
		t.Errorf("ID = %q, want %q", got.ID, w.ID)
	}
}

func TestNewSQLiteStoreUnreachable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "dir", "tasks.db")

	_, err := NewSQLiteStore(path)
	if err == nil {
		t.Fatal("expected error opening database in a missing directory")
	}
	var ce *ConnectivityError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %T, want *ConnectivityError", err)
	}
	if ce.Backend != "sqlite" || ce.Addr != path {
		t.Errorf("ConnectivityError = %+v", ce)
	}
}

func newFileStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFileStoreConcurrentFinalize(t *testing.T) {
	s := newFileStore(t)
	ctx := context.Background()

	const n = 64
	tasks := make([]*model.Task, n)
	for i := range tasks {
		tasks[i] = makeTestTask()
		if err := s.CreateTask(ctx, tasks[i]); err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
	}

	errs := make([]error, n)
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Go(func() {
			errs[i] = s.FinalizeTask(ctx, completedFrom(task, map[string]int{"0": 512, "3": 512}))
		})
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("FinalizeTask(%s): %v", tasks[i].ID, err)
		}
	}
	for _, task := range tasks {
		got, err := s.GetTask(ctx, task.ID)
		if err != nil {
			t.Fatalf("GetTask: %v", err)
		}
		if got.Status != model.StatusCompleted {
			t.Errorf("task %s status = %q, want completed", task.ID, got.Status)
		}
	}
}

func TestFileStoreConcurrentFinalizeSameTask(t *testing.T) {
	s := newFileStore(t)
	ctx := context.Background()

	task := makeTestTask()
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	const writers = 16
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := range writers {
		wg.Go(func() {
			if i%2 == 0 {
				errs[i] = s.FinalizeTask(ctx, completedFrom(task, map[string]int{"0": 1024}))
			} else {
				errs[i] = s.FinalizeTask(ctx, failedFrom(task, "boom"))
			}
		})
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case !errors.Is(err, ErrInvalidTransition):
			t.Errorf("FinalizeTask: %v, want nil or ErrInvalidTransition", err)
		}
	}
	if wins != 1 {
		t.Errorf("%d successful finalizes, want exactly 1", wins)
	}
}
