package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/progressd/internal/clock/system"
	taskid "github.com/JakeFAU/progressd/internal/id/uuid"
	"github.com/JakeFAU/progressd/internal/progress"
	"github.com/JakeFAU/progressd/internal/telemetry"
)

var (
	// ErrNotFound is returned when no task exists for the given ID.
	ErrNotFound = errors.New("task not found")
	// ErrTaskFinished is returned when a report targets a sealed task.
	ErrTaskFinished = errors.New("task already finished")
	// ErrClosed is returned once the registry stopped accepting tasks.
	ErrClosed = errors.New("registry closed")
)

const (
	defaultEnqueueTimeout = 50 * time.Millisecond
	defaultRetainFinished = 256

	// dropLogInterval rate-limits the backpressure warning so a saturated
	// queue cannot flood the logs.
	dropLogInterval = 5 * time.Second
)

// Config controls registry behavior.
//   - EnqueueTimeout: how long Finish may wait for queue space before the
//     record is dropped (default 50ms).
//   - RetainFinished: how many finished tasks stay readable before the
//     oldest are evicted (default 256).
//   - Clock: timestamp source shared with the trackers (defaults to the
//     system clock).
//   - Logger: optional; a no-op logger is used when nil.
type Config struct {
	EnqueueTimeout time.Duration
	RetainFinished int
	Clock          progress.Clock
	Logger         *zap.Logger
}

// Task pairs a tracker with its registry bookkeeping. Tasks are always
// handled by pointer; the finish latch must not be copied.
type Task struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time

	tracker    *progress.Tracker
	finishOnce sync.Once
}

// Tracker exposes the task's tracker for in-process producers.
func (t *Task) Tracker() *progress.Tracker {
	return t.tracker
}

// Summary is the list-view projection of one task.
type Summary struct {
	ID         uuid.UUID         `json:"id"`
	Name       string            `json:"name"`
	CreatedAt  time.Time         `json:"createdAt"`
	Finished   bool              `json:"finished"`
	Percentage float64           `json:"percentage"`
	Duration   progress.Duration `json:"duration"`
}

// Registry owns every live and recently finished task and emits a Record to
// the delivery queue exactly once per finish. Finishing never blocks beyond
// the enqueue timeout: when the queue is saturated the record is dropped and
// a rate-limited warning logged.
type Registry struct {
	cfg    Config
	queue  Queue
	ids    IDGenerator
	clock  progress.Clock
	logger *zap.Logger

	mu    sync.RWMutex
	tasks map[uuid.UUID]*Task
	// order holds task IDs in creation order for stable listings and
	// oldest-first eviction.
	order []uuid.UUID

	closed      atomic.Bool
	dropped     atomic.Int64
	dropLimiter rateLimiter
}

// New builds a registry emitting finished-task records to queue. A nil queue
// disables emission, which is what the embedded and demo modes want.
func New(cfg Config, queue Queue, ids IDGenerator) *Registry {
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = defaultEnqueueTimeout
	}
	if cfg.RetainFinished <= 0 {
		cfg.RetainFinished = defaultRetainFinished
	}
	if cfg.Clock == nil {
		cfg.Clock = system.New()
	}
	if ids == nil {
		ids = taskid.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		cfg:         cfg,
		queue:       queue,
		ids:         ids,
		clock:       cfg.Clock,
		logger:      logger,
		tasks:       make(map[uuid.UUID]*Task),
		dropLimiter: rateLimiter{interval: dropLogInterval},
	}
}

// Create registers a new task and starts its tracker clock.
func (r *Registry) Create(name string) (*Task, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	if name == "" {
		return nil, errors.New("task name is required")
	}
	id, err := r.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("assign task id: %w", err)
	}
	task := &Task{
		ID:        id,
		Name:      name,
		CreatedAt: r.clock.Now(),
		tracker:   progress.NewTracker(progress.WithClock(r.clock)),
	}
	r.mu.Lock()
	r.tasks[id] = task
	r.order = append(r.order, id)
	r.mu.Unlock()
	telemetry.ObserveTask("started")
	r.logger.Debug("task created", zap.String("task_id", id.String()), zap.String("name", name))
	return task, nil
}

// Get returns the task for id, or ErrNotFound.
func (r *Registry) Get(id uuid.UUID) (*Task, error) {
	r.mu.RLock()
	task, ok := r.tasks[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return task, nil
}

// List returns one summary per known task, in creation order.
func (r *Registry) List() []Summary {
	r.mu.RLock()
	tasks := make([]*Task, 0, len(r.order))
	for _, id := range r.order {
		if task, ok := r.tasks[id]; ok {
			tasks = append(tasks, task)
		}
	}
	r.mu.RUnlock()

	summaries := make([]Summary, 0, len(tasks))
	for _, task := range tasks {
		summaries = append(summaries, summarize(task))
	}
	return summaries
}

// Summarize projects a single task the way List does.
func (r *Registry) Summarize(id uuid.UUID) (Summary, error) {
	task, err := r.Get(id)
	if err != nil {
		return Summary{}, err
	}
	return summarize(task), nil
}

func summarize(task *Task) Summary {
	view := task.tracker.View()
	return Summary{
		ID:         task.ID,
		Name:       task.Name,
		CreatedAt:  task.CreatedAt,
		Finished:   task.tracker.Finished(),
		Percentage: view.Percentage,
		Duration:   view.Duration,
	}
}

// Report applies a step report to the identified task. Reports against a
// sealed task return ErrTaskFinished.
func (r *Registry) Report(id uuid.UUID, step progress.Step) error {
	task, err := r.Get(id)
	if err != nil {
		return err
	}
	if task.tracker.Finished() {
		return ErrTaskFinished
	}
	task.tracker.Report(step)
	return nil
}

// View returns the task's current nested progress view.
func (r *Registry) View(id uuid.UUID) (progress.View, error) {
	task, err := r.Get(id)
	if err != nil {
		return progress.View{}, err
	}
	return task.tracker.View(), nil
}

// Durations returns the task's duration ledger, including still-open steps.
func (r *Registry) Durations(id uuid.UUID) (progress.DurationExport, error) {
	task, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return task.tracker.Durations(), nil
}

// Finish seals the task, emits its record, and trims old finished tasks.
// Safe to call repeatedly; only the first call emits.
func (r *Registry) Finish(ctx context.Context, id uuid.UUID) error {
	task, err := r.Get(id)
	if err != nil {
		return err
	}
	task.finishOnce.Do(func() {
		task.tracker.Finish()
		telemetry.ObserveTask("finished")
		r.emit(ctx, r.buildRecord(task))
		r.evictFinished()
	})
	return nil
}

// Close stops the registry from accepting new tasks. Draining the delivery
// queue is the dispatcher's job, so records emitted before Close still reach
// the sinks.
func (r *Registry) Close() {
	r.closed.Store(true)
}

// Closed reports whether the registry stopped accepting tasks.
func (r *Registry) Closed() bool {
	return r.closed.Load()
}

func (r *Registry) buildRecord(task *Task) Record {
	finishedAt, _ := task.tracker.FinishedAt()
	return Record{
		TaskID:     task.ID,
		Name:       task.Name,
		StartedAt:  task.tracker.StartedAt(),
		FinishedAt: finishedAt,
		Durations:  task.tracker.Durations(),
	}
}

// emit hands the record to the queue without blocking the finisher. Invalid
// records are discarded; enqueue failures are counted and surfaced through a
// rate-limited warning.
func (r *Registry) emit(ctx context.Context, rec Record) {
	if r.queue == nil {
		return
	}
	if err := rec.Validate(); err != nil {
		r.logger.Debug("discarding invalid task record", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.EnqueueTimeout)
	defer cancel()
	if err := r.queue.Enqueue(ctx, rec); err != nil {
		r.dropped.Add(1)
		telemetry.ObserveRecordDropped()
		if r.dropLimiter.Allow(time.Now()) {
			r.logger.Warn("task records dropped due to backpressure",
				zap.Int64("dropped", r.dropped.Swap(0)),
				zap.Error(err))
		}
	}
}

// evictFinished trims the oldest finished tasks beyond the retention cap so
// the registry cannot grow without bound.
func (r *Registry) evictFinished() {
	r.mu.Lock()
	defer r.mu.Unlock()

	finished := 0
	for _, id := range r.order {
		if task, ok := r.tasks[id]; ok && task.tracker.Finished() {
			finished++
		}
	}
	trim := finished - r.cfg.RetainFinished
	if trim <= 0 {
		return
	}
	keep := r.order[:0]
	for _, id := range r.order {
		task, ok := r.tasks[id]
		if trim > 0 && ok && task.tracker.Finished() {
			delete(r.tasks, id)
			trim--
			continue
		}
		keep = append(keep, id)
	}
	r.order = keep
}

// rateLimiter is a tiny lock-free limiter for log spam control: Allow
// reports whether at least interval has elapsed since the last allowance.
type rateLimiter struct {
	interval time.Duration
	last     atomic.Int64
}

func (l *rateLimiter) Allow(now time.Time) bool {
	n := now.UnixNano()
	last := l.last.Load()
	if last != 0 && time.Duration(n-last) < l.interval {
		return false
	}
	return l.last.CompareAndSwap(last, n)
}
