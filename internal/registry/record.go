// Package registry tracks live and recently finished tasks, and emits one
// immutable Record per finished task into the delivery pipeline.
package registry

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/progressd/internal/progress"
)

// Record is the summary emitted when a task finishes; it is what flows
// through the delivery queue to the sinks.
type Record struct {
	// TaskID uniquely identifies the finished task.
	TaskID uuid.UUID
	// Name is the caller-supplied task label.
	Name string
	// StartedAt is the tracker's construction time.
	StartedAt time.Time
	// FinishedAt is the moment the tracker was sealed.
	FinishedAt time.Time
	// Durations is the sealed ledger, oldest-retired first.
	Durations progress.DurationExport
}

// Elapsed is the task's wall-clock runtime.
func (r Record) Elapsed() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Validate performs coarse validation before delivery.
func (r Record) Validate() error {
	if r.TaskID == uuid.Nil {
		return errors.New("task id is required")
	}
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return errors.New("timestamps are required")
	}
	if r.FinishedAt.Before(r.StartedAt) {
		return errors.New("finish precedes start")
	}
	return nil
}

// Sink consumes finished-task records. Implementations must be safe for
// repeated calls, honor ctx deadlines, and may be invoked concurrently.
type Sink interface {
	Consume(ctx context.Context, rec Record) error
	Close(ctx context.Context) error
}

// Queue buffers records between the registry and the delivery workers.
// Dequeue keeps returning buffered records after Close until the queue is
// empty, so shutdown can drain.
type Queue interface {
	Enqueue(ctx context.Context, rec Record) error
	Dequeue(ctx context.Context) (Record, error)
	Close()
}

// Publisher pushes finished-task messages to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for archive keys and integrity checks.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// IDGenerator produces task IDs.
type IDGenerator interface {
	NewID() (uuid.UUID, error)
}
