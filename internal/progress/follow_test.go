package progress

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestFollowerRendersFinalTable runs the follower against an already-finished
// tracker and expects the closing line plus the duration table.
func TestFollowerRendersFinalTable(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	tracker := NewTracker(WithClock(clk))
	phases := NewPhases[indexingPhases]("ExtractingDocuments")
	tracker.Report(phases.Phase(0))
	clk.Advance(1430 * time.Millisecond)
	tracker.Finish()

	var out bytes.Buffer
	follower := NewFollower(tracker, &out, time.Millisecond)
	require.NoError(t, follower.Run(context.Background()))

	rendered := out.String()
	require.Contains(t, rendered, "done in 1.43s")
	require.Contains(t, rendered, "STEP")
	require.Contains(t, rendered, "extracting documents")
}

// TestFollowerStopsOnContextCancel ensures cancellation unblocks Run while
// the tracker is still live.
func TestFollowerStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	tracker.Report(NewNamed[mergeSlot]("running", 0, 2))

	ctx, cancel := context.WithCancel(context.Background())
	var out bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- NewFollower(tracker, &out, time.Millisecond).Run(ctx)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("follower did not stop after cancellation")
	}
}

// TestRenderDurationTableCollapsesDuplicates keeps one row per path with the
// latest values.
func TestRenderDurationTableCollapsesDuplicates(t *testing.T) {
	t.Parallel()

	rendered := RenderDurationTable(DurationExport{
		{Path: "load", Total: time.Second, Self: time.Second},
		{Path: "load", Total: 3 * time.Second, Self: 2 * time.Second},
	})
	require.Contains(t, rendered, "3.00s")
	require.NotContains(t, rendered, "1.00s")
}
