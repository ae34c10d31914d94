package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/seantiz/qcflow/internal/backend"
	"github.com/seantiz/qcflow/internal/model"
	"github.com/seantiz/qcflow/internal/qasm"
	"github.com/seantiz/qcflow/internal/store"
)

// Defaults applied by New to zero Config fields.
const (
	DefaultShots         = 1024
	DefaultTimeout       = 30 * time.Second
	DefaultMaxConcurrent = 8
)

// Config controls task execution.
type Config struct {
	Shots         int
	Timeout       time.Duration
	StartDelay    time.Duration
	MaxConcurrent int
	// Backend is the registry name of the execution engine.
	Backend string
}

// Notifier receives every terminal task record.
type Notifier interface {
	Notify(ctx context.Context, t *model.Task) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithNotifier registers n to receive terminal records.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) {
		o.notifier = n
	}
}

// Orchestrator owns task execution. Jobs run on goroutines gated by a
// weighted semaphore and share nothing but the store.
type Orchestrator struct {
	store    store.Store
	registry *backend.Registry
	cfg      Config
	logger   *slog.Logger
	events   *EventBroker
	notifier Notifier
	sem      *semaphore.Weighted

	// ctx is cancelled by Shutdown; every job context derives from it.
	ctx    context.Context
	cancel context.CancelFunc

	// mu guards closing against concurrent Submit so wg.Add never races Wait.
	mu      sync.RWMutex
	closing bool
	wg      sync.WaitGroup
}

// New creates an orchestrator.
func New(s store.Store, reg *backend.Registry, cfg Config, logger *slog.Logger, opts ...Option) *Orchestrator {
	if cfg.Shots <= 0 {
		cfg.Shots = DefaultShots
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		store:    s,
		registry: reg,
		cfg:      cfg,
		logger:   logger,
		events:   NewEventBroker(),
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Events returns the broker carrying per-task lifecycle events.
func (o *Orchestrator) Events() *EventBroker {
	return o.events
}

// Submit stores a pending task for circuit and schedules its execution.
// It returns the new task id without waiting for the job to start.
func (o *Orchestrator) Submit(ctx context.Context, circuit string) (string, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closing {
		return "", ErrShuttingDown
	}

	t := &model.Task{
		ID:        model.NewID(),
		Status:    model.StatusPending,
		Payload:   circuit,
		Message:   model.PendingMessage,
		Shots:     o.cfg.Shots,
		Backend:   o.cfg.Backend,
		CreatedAt: time.Now().UTC(),
	}
	if err := o.store.CreateTask(ctx, t); err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	tasksSubmitted.Inc()

	// The job works on its own copy of the record.
	job := *t
	o.wg.Go(func() {
		o.execute(&job)
	})

	o.logger.Info("task submitted", "task_id", t.ID, "backend", t.Backend, "shots", t.Shots)
	return t.ID, nil
}

// Query returns the current record for id, or store.ErrNotFound.
func (o *Orchestrator) Query(ctx context.Context, id string) (*model.Task, error) {
	t, err := o.store.GetTask(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

// List returns a summary of every known task.
func (o *Orchestrator) List(ctx context.Context) ([]model.TaskSummary, error) {
	tasks, err := o.store.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// Wait blocks until all in-flight jobs complete.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Shutdown stops accepting tasks, cancels running jobs and waits for them to
// record their terminal state or for ctx to expire.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closing = true
	o.mu.Unlock()

	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// execute runs one task from slot acquisition to its terminal write.
func (o *Orchestrator) execute(t *model.Task) {
	defer o.events.Close(t.ID)

	if err := o.sem.Acquire(o.ctx, 1); err != nil {
		o.finishFailed(t, ErrCancelled)
		return
	}
	defer o.sem.Release(1)

	tasksRunning.Inc()
	defer tasksRunning.Dec()

	if o.cfg.StartDelay > 0 {
		select {
		case <-time.After(o.cfg.StartDelay):
		case <-o.ctx.Done():
			o.finishFailed(t, ErrCancelled)
			return
		}
	}

	norm, err := qasm.Normalize(t.Payload)
	if err != nil {
		o.finishFailed(t, err)
		return
	}
	for _, d := range norm.Diagnostics {
		o.logger.Warn("construct passed through untranslated",
			"task_id", t.ID, "line", d.Line, "construct", d.Construct)
		o.publish(t.ID, EventDiagnostic, fmt.Sprintf("line %d: %s", d.Line, d.Message))
	}

	b, err := o.registry.Resolve(o.cfg.Backend)
	if err != nil {
		o.finishFailed(t, &EngineError{Backend: o.cfg.Backend, Err: err})
		return
	}

	ctx, cancel := context.WithTimeout(o.ctx, o.cfg.Timeout)
	defer cancel()

	o.publish(t.ID, EventRunning, "")
	start := time.Now()
	res, err := run(ctx, b, backend.CircuitSpec{
		TaskID:  t.ID,
		Circuit: norm.Text,
		Shots:   t.Shots,
	})
	if err != nil {
		switch {
		case o.ctx.Err() != nil:
			err = ErrCancelled
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			err = &TimeoutError{TaskID: t.ID, Timeout: o.cfg.Timeout}
		default:
			err = &EngineError{Backend: o.cfg.Backend, Err: err}
		}
		o.finishFailed(t, err)
		return
	}

	counts, verbatim := FormatCounts(res.Counts)
	if len(verbatim) > 0 {
		o.logger.Warn("non-binary outcome labels kept verbatim", "task_id", t.ID, "labels", verbatim)
	}

	final := *t
	final.Status = model.StatusCompleted
	final.Message = ""
	final.Result = counts
	if got := final.ResultTotal(); got != t.Shots {
		o.finishFailed(t, &EngineError{
			Backend: o.cfg.Backend,
			Err:     fmt.Errorf("%w: got %d outcomes for %d shots", ErrCountMismatch, got, t.Shots),
		})
		return
	}

	o.logger.Info("task executed", "task_id", t.ID, "duration_ms", time.Since(start).Milliseconds())
	o.finish(&final)
}

// run calls b.Run and stops waiting once ctx is done, even if the engine
// keeps going.
func run(ctx context.Context, b backend.Backend, spec backend.CircuitSpec) (backend.Result, error) {
	type outcome struct {
		res backend.Result
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := b.Run(ctx, spec)
		ch <- outcome{res, err}
	}()

	select {
	case out := <-ch:
		return out.res, out.err
	case <-ctx.Done():
		return backend.Result{}, ctx.Err()
	}
}

// finishFailed records cause as the failure message of t.
func (o *Orchestrator) finishFailed(t *model.Task, cause error) {
	o.logger.Warn("task failed", "task_id", t.ID, "error", cause)

	final := *t
	final.Status = model.StatusFailed
	final.Message = cause.Error()
	final.Result = nil
	o.finish(&final)
}

// finish writes the terminal record. Write failures are logged and leave
// the task pending; they never affect other tasks.
func (o *Orchestrator) finish(t *model.Task) {
	now := time.Now().UTC()
	t.FinalizedAt = &now

	if err := o.store.FinalizeTask(context.Background(), t); err != nil {
		o.logger.Error("failed to record terminal state", "task_id", t.ID, "status", t.Status, "error", err)
		return
	}

	tasksFinalized.WithLabelValues(t.Status).Inc()
	taskDuration.Observe(now.Sub(t.CreatedAt).Seconds())

	evType := EventCompleted
	if t.Status == model.StatusFailed {
		evType = EventFailed
	}
	o.publish(t.ID, evType, t.Message)

	if o.notifier != nil {
		if err := o.notifier.Notify(context.Background(), t); err != nil {
			o.logger.Warn("status notification failed", "task_id", t.ID, "error", err)
		}
	}
}

func (o *Orchestrator) publish(taskID, typ, msg string) {
	o.events.Publish(Event{Type: typ, TaskID: taskID, Message: msg, Time: time.Now().UTC()})
}
