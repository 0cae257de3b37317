// Package store declares interfaces for persisting finished task records.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("task record not found")

// TaskRun models the task_runs table for API responses. Rows are written only
// when a task finishes, so FinishedAt is always set.
type TaskRun struct {
	// ID is the task identifier assigned at creation.
	ID uuid.UUID
	// Name is the caller-supplied task label.
	Name string
	// StartedAt is the tracker's construction time.
	StartedAt time.Time
	// FinishedAt is the moment the tracker was sealed.
	FinishedAt time.Time
	// Elapsed denormalizes FinishedAt-StartedAt for cheap list queries.
	Elapsed time.Duration
}

// StepDuration models one step_durations row: a retired step's hierarchical
// path with its total and self time, ordered by Position within the task.
type StepDuration struct {
	TaskID   uuid.UUID
	Position int
	Path     string
	Total    time.Duration
	Self     time.Duration
}

// TaskRepository persists finished task records.
type TaskRepository interface {
	// InsertTaskRun stores the task header row.
	InsertTaskRun(ctx context.Context, run TaskRun) error
	// InsertStepDurations stores the ordered duration rows for one task.
	InsertStepDurations(ctx context.Context, taskID uuid.UUID, steps []StepDuration) error

	// GetTaskRun loads a single finished task or returns ErrNotFound.
	GetTaskRun(ctx context.Context, id uuid.UUID) (TaskRun, error)
	// ListTaskRuns returns finished tasks newest-first with limit/offset.
	ListTaskRuns(ctx context.Context, limit, offset int) ([]TaskRun, error)
	// ListStepDurations returns a task's duration rows ordered by position.
	// A task with no rows yields an empty slice; existence checks belong to
	// GetTaskRun.
	ListStepDurations(ctx context.Context, taskID uuid.UUID) ([]StepDuration, error)
}

// ReportArchive stores rendered duration reports as immutable blobs and
// returns a provider-specific URI for later retrieval.
type ReportArchive interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}
