package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/seantiz/qcflow/internal/model"
)

// KeyPrefix namespaces task hashes in Redis.
const KeyPrefix = "task:"

const scanBatch = 100

// Hash field names of a task record.
const (
	fieldStatus      = "status"
	fieldMessage     = "message"
	fieldResult      = "result"
	fieldPayload     = "payload"
	fieldShots       = "shots"
	fieldBackend     = "backend"
	fieldDurationMS  = "duration_ms"
	fieldCreatedAt   = "created_at"
	fieldFinalizedAt = "finalized_at"
)

// Compile-time interface satisfaction check.
var _ Store = (*RedisStore)(nil)

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore implements Store with one Redis hash per task, keyed "task:<id>".
type RedisStore struct {
	client *redis.Client
	addr   string
}

// NewRedisStore connects to Redis and verifies the connection with PING.
// Failures are reported as *ConnectivityError.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, &ConnectivityError{Backend: "redis", Addr: opts.Addr, Err: err}
	}
	return &RedisStore{client: client, addr: opts.Addr}, nil
}

// Name identifies the store backend.
func (s *RedisStore) Name() string {
	return "redis"
}

// Ping verifies the server is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func taskKey(id string) string {
	return KeyPrefix + id
}

// CreateTask stores a new pending task. The existence check and write run
// under WATCH so a concurrent create of the same key fails.
func (s *RedisStore) CreateTask(ctx context.Context, t *model.Task) error {
	if err := checkCreate(t); err != nil {
		return err
	}
	fields, err := encodeTask(t, 0)
	if err != nil {
		return err
	}

	key := taskKey(t.ID)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("check task: %w", err)
		}
		if n > 0 {
			return ErrExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fields)
			return nil
		})
		return err
	}, key)
	if err != nil && !errors.Is(err, ErrExists) {
		return fmt.Errorf("create task: %w", err)
	}
	return err
}

// GetTask retrieves a task by ID.
func (s *RedisStore) GetTask(ctx context.Context, id string) (*model.Task, error) {
	fields, err := s.client.HGetAll(ctx, taskKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeTask(id, fields)
}

// FinalizeTask replaces the stored hash with the terminal record inside a
// MULTI/EXEC block, so readers see either the pending or the final record.
// Immutable fields are taken from the stored record.
func (s *RedisStore) FinalizeTask(ctx context.Context, t *model.Task) error {
	key := taskKey(t.ID)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("read task: %w", err)
		}
		if len(stored) == 0 {
			return ErrNotFound
		}
		current, err := decodeTask(t.ID, stored)
		if err != nil {
			return err
		}
		if err := checkFinalize(current.Status, t); err != nil {
			return err
		}

		final := *current
		final.Status = t.Status
		final.Message = t.Message
		final.Result = t.Result
		final.FinalizedAt = t.FinalizedAt
		if t.Backend != "" {
			final.Backend = t.Backend
		}
		fields, err := encodeTask(&final, durationMS(final.CreatedAt, final.FinalizedAt))
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.HSet(ctx, key, fields)
			return nil
		})
		return err
	}, key)
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrInvalidTransition) {
		return fmt.Errorf("finalize task: %w", err)
	}
	return err
}

// ListTasks returns a summary of every task hash, newest first.
func (s *RedisStore) ListTasks(ctx context.Context) ([]model.TaskSummary, error) {
	keys, err := s.keys(ctx)
	if err != nil {
		return nil, err
	}

	cmds := make([]*redis.SliceCmd, len(keys))
	if _, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.HMGet(ctx, key, fieldStatus, fieldMessage)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	tasks := make([]model.TaskSummary, 0, len(keys))
	for i, cmd := range cmds {
		vals := cmd.Val()
		status := stringAt(vals, 0)
		if status == "" {
			// Deleted between SCAN and HMGET.
			continue
		}
		tasks = append(tasks, model.TaskSummary{
			ID:      keys[i][len(KeyPrefix):],
			Status:  status,
			Message: stringAt(vals, 1),
		})
	}

	// ULIDs sort by creation time.
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].ID > tasks[j].ID
	})
	return tasks, nil
}

// GetTaskStats aggregates counts and durations across all task hashes.
func (s *RedisStore) GetTaskStats(ctx context.Context) (*TaskStats, error) {
	keys, err := s.keys(ctx)
	if err != nil {
		return nil, err
	}

	cmds := make([]*redis.SliceCmd, len(keys))
	if _, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.HMGet(ctx, key, fieldStatus, fieldDurationMS)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("task stats: %w", err)
	}

	stats := &TaskStats{CountByStatus: make(map[string]int)}
	var sum float64
	var finished int
	for _, cmd := range cmds {
		vals := cmd.Val()
		status := stringAt(vals, 0)
		if status == "" {
			continue
		}
		stats.Total++
		stats.CountByStatus[status]++
		if d := stringAt(vals, 1); d != "" {
			ms, err := strconv.ParseInt(d, 10, 64)
			if err == nil {
				sum += float64(ms)
				finished++
			}
		}
	}
	if finished > 0 {
		stats.AvgDurationMS = sum / float64(finished)
	}
	return stats, nil
}

func (s *RedisStore) keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, KeyPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan task keys: %w", err)
	}
	return keys, nil
}

// encodeTask flattens a task into hash fields. Optional fields are omitted
// when empty.
func encodeTask(t *model.Task, durMS int64) (map[string]any, error) {
	fields := map[string]any{
		fieldStatus:    t.Status,
		fieldPayload:   t.Payload,
		fieldShots:     t.Shots,
		fieldBackend:   t.Backend,
		fieldCreatedAt: t.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if t.Message != "" {
		fields[fieldMessage] = t.Message
	}
	if t.Result != nil {
		b, err := json.Marshal(t.Result)
		if err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
		fields[fieldResult] = string(b)
	}
	if t.FinalizedAt != nil {
		fields[fieldFinalizedAt] = t.FinalizedAt.UTC().Format(time.RFC3339Nano)
		fields[fieldDurationMS] = durMS
	}
	return fields, nil
}

func decodeTask(id string, fields map[string]string) (*model.Task, error) {
	t := &model.Task{
		ID:      id,
		Status:  fields[fieldStatus],
		Payload: fields[fieldPayload],
		Message: fields[fieldMessage],
		Backend: fields[fieldBackend],
	}

	if v := fields[fieldShots]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("decode shots: %w", err)
		}
		t.Shots = n
	}
	if v := fields[fieldResult]; v != "" {
		if err := json.Unmarshal([]byte(v), &t.Result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
	}
	if v := fields[fieldCreatedAt]; v != "" {
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("decode created_at: %w", err)
		}
		t.CreatedAt = ts
	}
	if v := fields[fieldFinalizedAt]; v != "" {
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("decode finalized_at: %w", err)
		}
		t.FinalizedAt = &ts
	}
	return t, nil
}

func stringAt(vals []any, i int) string {
	if i >= len(vals) {
		return ""
	}
	s, _ := vals[i].(string)
	return s
}
