package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/progressd/internal/registry"
)

// LogSink emits structured logs for finished-task records. It is useful
// during development or audits where a durable store is unavailable.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs the record using structured fields.
func (s *LogSink) Consume(_ context.Context, rec registry.Record) error {
	s.logger.Info("task finished",
		zap.String("task_id", rec.TaskID.String()),
		zap.String("name", rec.Name),
		zap.Time("started_at", rec.StartedAt),
		zap.Time("finished_at", rec.FinishedAt),
		zap.Duration("elapsed", rec.Elapsed()),
		zap.Int("steps", len(rec.Durations)),
	)
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
