package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/progressd/internal/store"
)

func TestTaskStoreLifecycle(t *testing.T) {
	t.Parallel()

	s := NewTaskStore()
	ctx := context.Background()
	base := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

	first := store.TaskRun{
		ID: uuid.New(), Name: "first export",
		StartedAt: base, FinishedAt: base.Add(time.Minute), Elapsed: time.Minute,
	}
	second := store.TaskRun{
		ID: uuid.New(), Name: "second export",
		StartedAt: base, FinishedAt: base.Add(2 * time.Minute), Elapsed: 2 * time.Minute,
	}

	if err := s.InsertTaskRun(ctx, first); err != nil {
		t.Fatalf("InsertTaskRun() error = %v", err)
	}
	if err := s.InsertTaskRun(ctx, second); err != nil {
		t.Fatalf("InsertTaskRun() error = %v", err)
	}
	// Re-delivered records must stay idempotent.
	if err := s.InsertTaskRun(ctx, first); err != nil {
		t.Fatalf("duplicate InsertTaskRun() error = %v", err)
	}

	got, err := s.GetTaskRun(ctx, first.ID)
	if err != nil || got.Name != "first export" {
		t.Fatalf("GetTaskRun() = %+v, %v", got, err)
	}
	if _, err := s.GetTaskRun(ctx, uuid.New()); err != store.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	runs, err := s.ListTaskRuns(ctx, 10, 0)
	if err != nil || len(runs) != 2 {
		t.Fatalf("ListTaskRuns() unexpected result: runs=%v err=%v", runs, err)
	}
	if runs[0].Name != "second export" {
		t.Fatalf("expected newest-first ordering, got %q first", runs[0].Name)
	}
	runs, err = s.ListTaskRuns(ctx, 1, 1)
	if err != nil || len(runs) != 1 || runs[0].Name != "first export" {
		t.Fatalf("ListTaskRuns() windowing failed: runs=%v err=%v", runs, err)
	}

	steps := []store.StepDuration{
		{TaskID: first.ID, Position: 0, Path: "indexing", Total: 30 * time.Second, Self: 10 * time.Second},
		{TaskID: first.ID, Position: 1, Path: "indexing > merging", Total: 20 * time.Second, Self: 20 * time.Second},
	}
	if err := s.InsertStepDurations(ctx, first.ID, steps); err != nil {
		t.Fatalf("InsertStepDurations() error = %v", err)
	}
	listed, err := s.ListStepDurations(ctx, first.ID)
	if err != nil || len(listed) != 2 {
		t.Fatalf("ListStepDurations() unexpected result: steps=%v err=%v", listed, err)
	}
	listed[0].Path = "modified"
	if s.steps[first.ID][0].Path != "indexing" {
		t.Fatal("expected ListStepDurations to return a copy")
	}
}
