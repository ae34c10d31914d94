package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/seantiz/qcflow/internal/model"

	_ "modernc.org/sqlite"
)

const createTasksTable = `
CREATE TABLE IF NOT EXISTS tasks (
    id           TEXT PRIMARY KEY,
    status       TEXT NOT NULL,
    payload      TEXT NOT NULL,
    message      TEXT,
    result       TEXT,
    shots        INTEGER NOT NULL,
    backend      TEXT NOT NULL DEFAULT '',
    duration_ms  INTEGER,
    created_at   DATETIME NOT NULL,
    finalized_at DATETIME
)`

const selectTaskColumns = `id, status, payload, message, result, shots, backend, created_at, finalized_at`

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
// Failures are reported as *ConnectivityError.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	fail := func(err error) (*SQLiteStore, error) {
		return nil, &ConnectivityError{Backend: "sqlite", Addr: dbPath, Err: err}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fail(fmt.Errorf("open database: %w", err))
	}

	// SQLite allows one writer, and PRAGMAs below apply per connection. An
	// in-memory database also exists per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return fail(fmt.Errorf("set WAL mode: %w", err))
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return fail(fmt.Errorf("set busy timeout: %w", err))
	}

	if _, err := db.Exec(createTasksTable); err != nil {
		db.Close()
		return fail(fmt.Errorf("create tasks table: %w", err))
	}

	return &SQLiteStore{db: db}, nil
}

// Name identifies the store backend.
func (s *SQLiteStore) Name() string {
	return "sqlite"
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateTask inserts a new pending task record.
func (s *SQLiteStore) CreateTask(ctx context.Context, t *model.Task) error {
	if err := checkCreate(t); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, status, payload, message, shots, backend, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Status, t.Payload, nullString(t.Message), t.Shots, t.Backend, t.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrExists
		}
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*model.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx,
		`SELECT `+selectTaskColumns+` FROM tasks WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListTasks returns a summary of every task, newest first.
func (s *SQLiteStore) ListTasks(ctx context.Context) ([]model.TaskSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, message FROM tasks ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.TaskSummary
	for rows.Next() {
		var ts model.TaskSummary
		var msg sql.NullString
		if err := rows.Scan(&ts.ID, &ts.Status, &msg); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		ts.Message = msg.String
		tasks = append(tasks, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// FinalizeTask writes the terminal state of a pending task. The write is a
// single UPDATE guarded on the pending status, so of two concurrent
// finalizes exactly one succeeds and the other gets ErrInvalidTransition.
func (s *SQLiteStore) FinalizeTask(ctx context.Context, t *model.Task) error {
	var result sql.NullString
	if t.Result != nil {
		b, err := json.Marshal(t.Result)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		result = sql.NullString{String: string(b), Valid: true}
	}

	var current string
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx, "SELECT status, created_at FROM tasks WHERE id = ?", t.ID).Scan(&current, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read task status: %w", err)
	}

	if err := checkFinalize(current, t); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, message = ?, result = ?, backend = COALESCE(NULLIF(?, ''), backend),
			duration_ms = ?, finalized_at = ?
		WHERE id = ? AND status = ?`,
		t.Status, nullString(t.Message), result, t.Backend, durationMS(createdAt, t.FinalizedAt), t.FinalizedAt,
		t.ID, model.StatusPending,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if n == 0 {
		// Another writer finalized the task after the status read.
		return fmt.Errorf("%w: task %s already finalized", ErrInvalidTransition, t.ID)
	}
	return nil
}

// GetTaskStats returns counts by status and the average time to finalize.
func (s *SQLiteStore) GetTaskStats(ctx context.Context) (*TaskStats, error) {
	stats := &TaskStats{CountByStatus: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM tasks GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		stats.CountByStatus[status] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	rows.Close()

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		"SELECT AVG(duration_ms) FROM tasks WHERE duration_ms IS NOT NULL",
	).Scan(&avg); err != nil {
		return nil, fmt.Errorf("average duration: %w", err)
	}
	stats.AvgDurationMS = avg.Float64

	return stats, nil
}

func scanTask(row *sql.Row) (*model.Task, error) {
	t := &model.Task{}
	var msg, result sql.NullString
	if err := row.Scan(
		&t.ID, &t.Status, &t.Payload, &msg, &result, &t.Shots, &t.Backend, &t.CreatedAt, &t.FinalizedAt,
	); err != nil {
		return nil, err
	}
	t.Message = msg.String
	if result.Valid {
		if err := json.Unmarshal([]byte(result.String), &t.Result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
