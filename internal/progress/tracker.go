package progress

import (
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/progressd/internal/clock/system"
)

// pathSeparator joins ancestor step names into hierarchical ledger keys.
const pathSeparator = " > "

// Clock abstracts wall-clock reads so tests can drive time deterministically.
type Clock interface {
	Now() time.Time
}

// stackEntry is one level of the active path from root task to innermost
// step. inChildren accumulates the total durations already charged to
// children retired while this entry was their parent.
type stackEntry struct {
	kind       identity
	step       Step
	startedAt  time.Time
	inChildren time.Duration
}

// Tracker is the root aggregate for one tracked task. Exactly one instance
// exists per task; the pointer is the cheap shareable handle. A single
// RWMutex guards the stack and ledger: Report and Finish write, View and
// Durations read. It is safe for concurrent use by any number of goroutines.
type Tracker struct {
	mu         sync.RWMutex
	stack      []stackEntry
	ledger     []DurationEntry
	startedAt  time.Time
	finishedAt time.Time
	clock      Clock
}

// Option customizes a Tracker at construction.
type Option func(*Tracker)

// WithClock substitutes the clock used for all timestamps.
func WithClock(clock Clock) Option {
	return func(t *Tracker) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// NewTracker returns an empty Tracker whose start time is now.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{clock: system.New()}
	for _, opt := range opts {
		opt(t)
	}
	t.startedAt = t.clock.Now()
	return t
}

// Report implements Reporter. If a stack entry with the reported step's kind
// already exists, every entry from that point outward is retired to the
// ledger (innermost first) and the stack is truncated there; the new step is
// then pushed. Reporting a never-seen kind descends one level. After Finish
// the tracker is sealed and reports are dropped.
func (t *Tracker) Report(step Step) {
	if t == nil || step == nil {
		return
	}
	kind := kindOf(step)

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.finishedAt.IsZero() {
		return
	}
	now := t.clock.Now()
	for i := range t.stack {
		if t.stack[i].kind == kind {
			t.retire(now, i)
			break
		}
	}
	t.stack = append(t.stack, stackEntry{kind: kind, step: step, startedAt: now})
}

// Finish seals the tracker: the whole stack is retired to the ledger and the
// finish timestamp recorded. Idempotent; only the first call has any effect.
func (t *Tracker) Finish() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.finishedAt.IsZero() {
		return
	}
	now := t.clock.Now()
	t.finishedAt = now
	t.retire(now, 0)
}

// Finished reports whether Finish has sealed the tracker.
func (t *Tracker) Finished() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return !t.finishedAt.IsZero()
}

// StartedAt returns the tracker's construction time.
func (t *Tracker) StartedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.startedAt
}

// FinishedAt returns the finish timestamp and whether it has been set.
func (t *Tracker) FinishedAt() (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.finishedAt, !t.finishedAt.IsZero()
}

// retire flushes entries idx..len to the ledger innermost-first, charges the
// flushed subtree's total to the surviving parent, and truncates the stack.
// Caller holds the write lock.
func (t *Tracker) retire(now time.Time, idx int) {
	if idx >= len(t.stack) {
		return
	}
	var childTotal time.Duration
	for i := len(t.stack) - 1; i >= idx; i-- {
		entry := t.stack[i]
		total := now.Sub(entry.startedAt)
		t.ledger = append(t.ledger, DurationEntry{
			Path:  t.path(i),
			Total: total,
			Self:  total - entry.inChildren - childTotal,
		})
		childTotal = total
	}
	if idx > 0 {
		t.stack[idx-1].inChildren += childTotal
	}
	t.stack = t.stack[:idx]
}

// path joins the display names of stack entries 0..=i, as they read at this
// moment. Ledger keys are therefore snapshots of the hierarchy at retirement.
func (t *Tracker) path(i int) string {
	names := make([]string, 0, i+1)
	for j := 0; j <= i; j++ {
		names = append(names, t.stack[j].step.Name())
	}
	return strings.Join(names, pathSeparator)
}
