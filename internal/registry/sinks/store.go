package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/progressd/internal/registry"
	"github.com/JakeFAU/progressd/internal/store"
)

// StoreSink persists finished-task records via a store.TaskRepository: one
// task-run row plus one row per ledger entry.
type StoreSink struct {
	repo   store.TaskRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.TaskRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume writes the task run and its ordered step durations. It respects
// ctx deadlines and returns repository errors to the caller so the delivery
// layer can retry.
func (s *StoreSink) Consume(ctx context.Context, rec registry.Record) error {
	if s == nil || s.repo == nil {
		return nil
	}
	run := store.TaskRun{
		ID:         rec.TaskID,
		Name:       rec.Name,
		StartedAt:  rec.StartedAt,
		FinishedAt: rec.FinishedAt,
		Elapsed:    rec.Elapsed(),
	}
	if err := s.repo.InsertTaskRun(ctx, run); err != nil {
		return fmt.Errorf("insert task run: %w", err)
	}

	steps := make([]store.StepDuration, 0, len(rec.Durations))
	for i, entry := range rec.Durations {
		steps = append(steps, store.StepDuration{
			TaskID:   rec.TaskID,
			Position: i,
			Path:     entry.Path,
			Total:    entry.Total,
			Self:     entry.Self,
		})
	}
	if err := s.repo.InsertStepDurations(ctx, rec.TaskID, steps); err != nil {
		return fmt.Errorf("insert step durations: %w", err)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
