// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/progressd/internal/store"
)

// TaskStoreConfig controls the Postgres connection pool used for task history.
type TaskStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// TaskStore implements store.TaskRepository using Postgres. Durations are
// stored as BIGINT nanoseconds so nothing is lost on the round trip.
// It assumes a table schema like:
//
//	CREATE TABLE task_runs (
//		id UUID PRIMARY KEY,
//		name TEXT NOT NULL,
//		started_at TIMESTAMPTZ NOT NULL,
//		finished_at TIMESTAMPTZ NOT NULL,
//		elapsed_ns BIGINT NOT NULL
//	);
//	CREATE TABLE step_durations (
//		task_id UUID NOT NULL REFERENCES task_runs(id),
//		position INT NOT NULL,
//		path TEXT NOT NULL,
//		total_ns BIGINT NOT NULL,
//		self_ns BIGINT NOT NULL,
//		PRIMARY KEY (task_id, position)
//	);
type TaskStore struct {
	pool pgxPool
}

// NewTaskStore creates a TaskStore with its own connection pool.
func NewTaskStore(ctx context.Context, cfg TaskStoreConfig) (*TaskStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &TaskStore{pool: pool}, nil
}

// NewTaskStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewTaskStoreWithPool(pool pgxPool) (*TaskStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &TaskStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *TaskStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// InsertTaskRun stores the header row for a finished task. Conflicting IDs
// are ignored so a re-delivered record stays idempotent.
func (s *TaskStore) InsertTaskRun(ctx context.Context, run store.TaskRun) error {
	if run.ID == uuid.Nil {
		return fmt.Errorf("task id is required")
	}
	query := `
INSERT INTO task_runs (id, name, started_at, finished_at, elapsed_ns)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO NOTHING;`
	_, err := s.pool.Exec(ctx, query, run.ID, run.Name, run.StartedAt, run.FinishedAt, int64(run.Elapsed))
	if err != nil {
		return fmt.Errorf("insert task run: %w", err)
	}
	return nil
}

// InsertStepDurations stores the ordered duration rows for one task,
// replacing anything left behind by an earlier partial delivery.
func (s *TaskStore) InsertStepDurations(ctx context.Context, taskID uuid.UUID, steps []store.StepDuration) error {
	if taskID == uuid.Nil {
		return fmt.Errorf("task id is required")
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM step_durations WHERE task_id = $1;`, taskID); err != nil {
		return fmt.Errorf("clear step durations: %w", err)
	}
	query := `
INSERT INTO step_durations (task_id, position, path, total_ns, self_ns)
VALUES ($1, $2, $3, $4, $5);`
	for _, step := range steps {
		_, err := s.pool.Exec(ctx, query, taskID, step.Position, step.Path, int64(step.Total), int64(step.Self))
		if err != nil {
			return fmt.Errorf("insert step duration: %w", err)
		}
	}
	return nil
}

// GetTaskRun retrieves a single finished task by its ID.
func (s *TaskStore) GetTaskRun(ctx context.Context, id uuid.UUID) (store.TaskRun, error) {
	query := `
SELECT id, name, started_at, finished_at, elapsed_ns
FROM task_runs
WHERE id = $1;`
	var run store.TaskRun
	var elapsed int64
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&run.ID,
		&run.Name,
		&run.StartedAt,
		&run.FinishedAt,
		&elapsed,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return store.TaskRun{}, store.ErrNotFound
		}
		return store.TaskRun{}, fmt.Errorf("get task run: %w", err)
	}
	run.Elapsed = time.Duration(elapsed)
	return run, nil
}

// ListTaskRuns retrieves finished tasks newest-first.
func (s *TaskStore) ListTaskRuns(ctx context.Context, limit, offset int) ([]store.TaskRun, error) {
	query := `
SELECT id, name, started_at, finished_at, elapsed_ns
FROM task_runs
ORDER BY finished_at DESC
LIMIT $1 OFFSET $2;`
	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list task runs: %w", err)
	}
	defer rows.Close()

	var runs []store.TaskRun
	for rows.Next() {
		var run store.TaskRun
		var elapsed int64
		if err := rows.Scan(&run.ID, &run.Name, &run.StartedAt, &run.FinishedAt, &elapsed); err != nil {
			return nil, fmt.Errorf("scan task run row: %w", err)
		}
		run.Elapsed = time.Duration(elapsed)
		runs = append(runs, run)
	}
	return runs, nil
}

// ListStepDurations retrieves a task's duration rows ordered by position.
func (s *TaskStore) ListStepDurations(ctx context.Context, taskID uuid.UUID) ([]store.StepDuration, error) {
	query := `
SELECT task_id, position, path, total_ns, self_ns
FROM step_durations
WHERE task_id = $1
ORDER BY position ASC;`
	rows, err := s.pool.Query(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("list step durations: %w", err)
	}
	defer rows.Close()

	var steps []store.StepDuration
	for rows.Next() {
		var step store.StepDuration
		var total, self int64
		if err := rows.Scan(&step.TaskID, &step.Position, &step.Path, &total, &self); err != nil {
			return nil, fmt.Errorf("scan step duration row: %w", err)
		}
		step.Total = time.Duration(total)
		step.Self = time.Duration(self)
		steps = append(steps, step)
	}
	return steps, nil
}
