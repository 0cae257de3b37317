// Package dispatcher manages worker fan-out over the record queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/progressd/internal/registry"
	"github.com/JakeFAU/progressd/internal/worker"
)

const defaultSinkCloseTimeout = 10 * time.Second

// Dispatcher fans out queue records to a pool of delivery workers and owns
// the sink lifecycle: once every worker has stopped, the sinks are closed.
type Dispatcher struct {
	workers []*worker.Worker
	sinks   []registry.Sink
	logger  *zap.Logger
	done    chan struct{}
}

// New creates a Dispatcher.
func New(workers []*worker.Worker, sinks []registry.Sink, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		workers: workers,
		sinks:   sinks,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Run starts all workers and blocks until they stop, which happens when the
// context finishes or the queue is closed and fully drained. The sinks are
// closed before Run returns.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)

	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	wg.Wait()
	d.closeSinks()
}

// Wait blocks until Run has finished or ctx expires, bounding how long a
// shutdown waits for the drain.
func (d *Dispatcher) Wait(ctx context.Context) error {
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatcher drain: %w", ctx.Err())
	}
}

func (d *Dispatcher) closeSinks() {
	ctx, cancel := context.WithTimeout(context.Background(), defaultSinkCloseTimeout)
	defer cancel()
	for _, sink := range d.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			d.logger.Warn("sink close failed", zap.Error(err))
		}
	}
}
