// Package memory provides the in-process record queue used by the standalone
// server and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/progressd/internal/registry"
)

// Queue is a bounded in-memory record queue with context-aware operations.
// After Close, Dequeue drains the remaining buffered records before reporting
// the queue closed.
type Queue struct {
	ch      chan registry.Record
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan registry.Record, capacity),
	}
}

// Enqueue pushes a record into the queue or returns when the context ends.
func (q *Queue) Enqueue(ctx context.Context, rec registry.Record) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return errors.New("queue closed")
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- rec:
		return nil
	}
}

// Dequeue pops the next record, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (registry.Record, error) {
	select {
	case <-ctx.Done():
		return registry.Record{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case rec, ok := <-q.ch:
		if !ok {
			return registry.Record{}, errors.New("queue closed")
		}
		return rec, nil
	}
}

// Close stops accepting records. Close waits for in-flight Enqueues so the
// channel is never closed under a sender.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
