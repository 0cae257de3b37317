package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/progressd/internal/progress"
)

// TestRegistryCreateAssignsUniqueIDs verifies every created task gets its own
// ID and is retrievable afterwards.
func TestRegistryCreateAssignsUniqueIDs(t *testing.T) {
	t.Parallel()

	reg := New(Config{}, nil, nil)

	first, err := reg.Create("nightly reindex")
	require.NoError(t, err)
	second, err := reg.Create("nightly compaction")
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	got, err := reg.Get(first.ID)
	require.NoError(t, err)
	require.Equal(t, "nightly reindex", got.Name)
}

// TestRegistryCreateRejectsEmptyName verifies unnamed tasks are refused.
func TestRegistryCreateRejectsEmptyName(t *testing.T) {
	t.Parallel()

	reg := New(Config{}, nil, nil)

	_, err := reg.Create("")
	require.Error(t, err)
}

// TestRegistryGetUnknownTask verifies lookups of unknown IDs return
// ErrNotFound.
func TestRegistryGetUnknownTask(t *testing.T) {
	t.Parallel()

	reg := New(Config{}, nil, nil)

	_, err := reg.Get(mustID(t))
	require.ErrorIs(t, err, ErrNotFound)
}

// TestRegistryFinishEmitsRecordOnce verifies exactly one record reaches the
// queue no matter how many times Finish is called.
func TestRegistryFinishEmitsRecordOnce(t *testing.T) {
	t.Parallel()

	queue := newCaptureQueue()
	reg := New(Config{}, queue, nil)

	task, err := reg.Create("backfill")
	require.NoError(t, err)
	require.NoError(t, reg.Report(task.ID, progress.NewSlotStep("load", "loading", 1, 2)))

	require.NoError(t, reg.Finish(context.Background(), task.ID))
	require.NoError(t, reg.Finish(context.Background(), task.ID))

	recs := queue.records()
	require.Len(t, recs, 1)
	require.Equal(t, task.ID, recs[0].TaskID)
	require.Equal(t, "backfill", recs[0].Name)
	require.False(t, recs[0].FinishedAt.Before(recs[0].StartedAt))
	require.Len(t, recs[0].Durations, 1)
	require.Equal(t, "loading", recs[0].Durations[0].Path)
}

// TestRegistryReportAfterFinish verifies reports against a sealed task are
// rejected with ErrTaskFinished.
func TestRegistryReportAfterFinish(t *testing.T) {
	t.Parallel()

	reg := New(Config{}, nil, nil)

	task, err := reg.Create("export")
	require.NoError(t, err)
	require.NoError(t, reg.Finish(context.Background(), task.ID))

	err = reg.Report(task.ID, progress.NewSlotStep("write", "", 0, 1))
	require.ErrorIs(t, err, ErrTaskFinished)
}

// TestRegistryFinishSurvivesSaturatedQueue verifies a failing queue drops the
// record without failing the finish itself.
func TestRegistryFinishSurvivesSaturatedQueue(t *testing.T) {
	t.Parallel()

	queue := newCaptureQueue()
	queue.fail(errors.New("queue full"))
	reg := New(Config{EnqueueTimeout: 10 * time.Millisecond}, queue, nil)

	task, err := reg.Create("doomed delivery")
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, reg.Finish(context.Background(), task.ID))
	require.Less(t, time.Since(start), time.Second)
	require.Empty(t, queue.records())

	got, err := reg.Get(task.ID)
	require.NoError(t, err)
	require.True(t, got.Tracker().Finished())
}

// TestRegistryEvictsOldestFinished verifies retention keeps only the newest
// finished tasks while live tasks are never evicted.
func TestRegistryEvictsOldestFinished(t *testing.T) {
	t.Parallel()

	reg := New(Config{RetainFinished: 1}, nil, nil)

	oldest, err := reg.Create("first")
	require.NoError(t, err)
	live, err := reg.Create("still running")
	require.NoError(t, err)
	newest, err := reg.Create("second")
	require.NoError(t, err)

	require.NoError(t, reg.Finish(context.Background(), oldest.ID))
	require.NoError(t, reg.Finish(context.Background(), newest.ID))

	_, err = reg.Get(oldest.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = reg.Get(newest.ID)
	require.NoError(t, err)
	_, err = reg.Get(live.ID)
	require.NoError(t, err)
}

// TestRegistryCloseRejectsNewTasks verifies Create fails with ErrClosed after
// shutdown begins while existing tasks stay readable.
func TestRegistryCloseRejectsNewTasks(t *testing.T) {
	t.Parallel()

	reg := New(Config{}, nil, nil)
	task, err := reg.Create("survivor")
	require.NoError(t, err)

	reg.Close()

	_, err = reg.Create("late arrival")
	require.ErrorIs(t, err, ErrClosed)
	_, err = reg.Get(task.ID)
	require.NoError(t, err)
}

// TestRegistryListTracksProgress verifies list summaries carry the live
// percentage and finished flag.
func TestRegistryListTracksProgress(t *testing.T) {
	t.Parallel()

	reg := New(Config{}, nil, nil)

	task, err := reg.Create("ingest")
	require.NoError(t, err)
	require.NoError(t, reg.Report(task.ID, progress.NewSlotStep("ingest", "", 1, 4)))

	summaries := reg.List()
	require.Len(t, summaries, 1)
	require.Equal(t, task.ID, summaries[0].ID)
	require.False(t, summaries[0].Finished)
	require.InDelta(t, 25.0, summaries[0].Percentage, 0.001)

	require.NoError(t, reg.Finish(context.Background(), task.ID))
	summaries = reg.List()
	require.Len(t, summaries, 1)
	require.True(t, summaries[0].Finished)
}

// TestRateLimiterAllowsAfterInterval verifies the drop-warning limiter lets
// one allowance through per interval.
func TestRateLimiterAllowsAfterInterval(t *testing.T) {
	t.Parallel()

	limiter := rateLimiter{interval: time.Minute}
	now := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

	require.True(t, limiter.Allow(now))
	require.False(t, limiter.Allow(now.Add(30*time.Second)))
	require.True(t, limiter.Allow(now.Add(61*time.Second)))
}

func mustID(t *testing.T) uuid.UUID {
	t.Helper()
	id, err := uuid.NewV7()
	require.NoError(t, err)
	return id
}

// captureQueue records enqueued records and can be switched into a failing
// mode to exercise the drop path.
type captureQueue struct {
	mu   sync.Mutex
	recs []Record
	err  error
}

func newCaptureQueue() *captureQueue {
	return &captureQueue{}
}

func (q *captureQueue) fail(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.err = err
}

func (q *captureQueue) Enqueue(_ context.Context, rec Record) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.recs = append(q.recs, rec)
	return nil
}

func (q *captureQueue) Dequeue(ctx context.Context) (Record, error) {
	<-ctx.Done()
	return Record{}, ctx.Err()
}

func (q *captureQueue) Close() {}

func (q *captureQueue) records() []Record {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Record, len(q.recs))
	copy(out, q.recs)
	return out
}
