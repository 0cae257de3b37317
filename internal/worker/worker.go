// Package worker implements the record delivery loop.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/progressd/internal/registry"
	"github.com/JakeFAU/progressd/internal/telemetry"
)

// Config controls Worker behavior.
//   - SinkTimeout bounds each delivery attempt (default 10s).
//   - MaxRetries is how many times a failed attempt is retried; zero means
//     a single attempt.
//   - RetryBackoffBase is the first retry delay, doubled per retry
//     (default 250ms).
type Config struct {
	SinkTimeout      time.Duration
	MaxRetries       int
	RetryBackoffBase time.Duration
}

const (
	defaultSinkTimeout      = 10 * time.Second
	defaultRetryBackoffBase = 250 * time.Millisecond
)

// Worker consumes finished-task records and delivers each one to every sink.
// Sinks fail independently: one sink erroring does not keep the record from
// the others.
type Worker struct {
	queue  registry.Queue
	sinks  []registry.Sink
	cfg    Config
	logger *zap.Logger
}

// New constructs a Worker.
func New(id int, queue registry.Queue, sinks []registry.Sink, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoffBase <= 0 {
		cfg.RetryBackoffBase = defaultRetryBackoffBase
	}
	return &Worker{
		queue:  queue,
		sinks:  sinks,
		cfg:    cfg,
		logger: logger.With(zap.Int("worker_id", id)),
	}
}

// Run blocks, consuming records until the context ends or the queue closes.
// A closed queue is drained before Run returns, so records accepted before
// shutdown still reach the sinks.
func (w *Worker) Run(ctx context.Context) {
	for {
		rec, err := w.queue.Dequeue(ctx)
		if err != nil {
			w.logger.Debug("delivery loop stopping", zap.Error(err))
			return
		}
		w.deliver(ctx, rec)
	}
}

func (w *Worker) deliver(ctx context.Context, rec registry.Record) {
	telemetry.IncActiveDeliveries()
	defer telemetry.DecActiveDeliveries()

	for _, sink := range w.sinks {
		if sink == nil {
			continue
		}
		if err := w.consumeWithRetry(ctx, sink, rec); err != nil {
			name := sinkLabel(sink)
			telemetry.ObserveSinkError(name)
			w.logger.Error("record delivery failed",
				zap.String("task_id", rec.TaskID.String()),
				zap.String("sink", name),
				zap.Error(err))
		}
	}
}

// consumeWithRetry tries a sink up to 1+MaxRetries times with exponential
// backoff between attempts. Each attempt gets its own timeout.
func (w *Worker) consumeWithRetry(ctx context.Context, sink registry.Sink, rec registry.Record) error {
	backoff := w.cfg.RetryBackoffBase
	attempts := w.cfg.MaxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, w.cfg.SinkTimeout)
		lastErr = sink.Consume(attemptCtx, rec)
		cancel()
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("delivery canceled: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

func sinkLabel(sink registry.Sink) string {
	return fmt.Sprintf("%T", sink)
}
