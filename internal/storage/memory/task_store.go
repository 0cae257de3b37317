// Package memory provides in-memory persistence for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/JakeFAU/progressd/internal/store"
)

// TaskStore is an in-memory store.TaskRepository.
type TaskStore struct {
	mu    sync.RWMutex
	runs  map[uuid.UUID]store.TaskRun
	steps map[uuid.UUID][]store.StepDuration
	order []uuid.UUID
}

// NewTaskStore constructs a TaskStore.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		runs:  make(map[uuid.UUID]store.TaskRun),
		steps: make(map[uuid.UUID][]store.StepDuration),
	}
}

// InsertTaskRun stores the header row. Duplicate IDs are ignored, mirroring
// the Postgres ON CONFLICT DO NOTHING behavior for re-deliveries.
func (s *TaskStore) InsertTaskRun(_ context.Context, run store.TaskRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return nil
	}
	s.runs[run.ID] = run
	s.order = append(s.order, run.ID)
	return nil
}

// InsertStepDurations replaces the task's duration rows.
func (s *TaskStore) InsertStepDurations(_ context.Context, taskID uuid.UUID, steps []store.StepDuration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.StepDuration, len(steps))
	copy(out, steps)
	s.steps[taskID] = out
	return nil
}

// GetTaskRun fetches a run by ID.
func (s *TaskStore) GetTaskRun(_ context.Context, id uuid.UUID) (store.TaskRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return store.TaskRun{}, store.ErrNotFound
	}
	return run, nil
}

// ListTaskRuns returns runs newest-first with limit/offset windowing.
func (s *TaskStore) ListTaskRuns(_ context.Context, limit, offset int) ([]store.TaskRun, error) {
	s.mu.RLock()
	runs := make([]store.TaskRun, 0, len(s.order))
	for _, id := range s.order {
		runs = append(runs, s.runs[id])
	}
	s.mu.RUnlock()

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].FinishedAt.After(runs[j].FinishedAt)
	})
	if offset >= len(runs) {
		return []store.TaskRun{}, nil
	}
	runs = runs[offset:]
	if limit > 0 && limit < len(runs) {
		runs = runs[:limit]
	}
	return runs, nil
}

// ListStepDurations returns the task's duration rows in stored order.
func (s *TaskStore) ListStepDurations(_ context.Context, taskID uuid.UUID) ([]store.StepDuration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	steps := s.steps[taskID]
	out := make([]store.StepDuration, len(steps))
	copy(out, steps)
	return out, nil
}
