package progress

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

// defaultFollowInterval is a redraw cadence a terminal absorbs without
// flicker.
const defaultFollowInterval = 100 * time.Millisecond

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Follower renders a tracker to a terminal-style writer: one status line
// redrawn on a fixed interval while the task runs, then the final duration
// breakdown once it finishes. It reads the tracker with shared locks only
// and never blocks producers.
type Follower struct {
	tracker  *Tracker
	out      io.Writer
	interval time.Duration
}

// NewFollower builds a follower for the tracker writing to out. A
// non-positive interval selects the 100ms default.
func NewFollower(tracker *Tracker, out io.Writer, interval time.Duration) *Follower {
	if interval <= 0 {
		interval = defaultFollowInterval
	}
	return &Follower{tracker: tracker, out: out, interval: interval}
}

// Run redraws until the tracker finishes or ctx ends. On finish it replaces
// the status line with the total elapsed time and the duration table; on
// cancellation it terminates the line and returns the context error.
func (f *Follower) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	frame := 0
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(f.out)
			return ctx.Err()
		case <-ticker.C:
			if f.tracker.Finished() {
				f.renderFinal()
				return nil
			}
			f.renderStatus(frame)
			frame++
		}
	}
}

func (f *Follower) renderStatus(frame int) {
	view := f.tracker.View()
	leaf := "waiting for first step"
	if n := len(view.Steps); n > 0 {
		last := view.Steps[n-1]
		leaf = fmt.Sprintf("%s %d/%d", last.Name, last.Finished, last.Total)
	}
	spinner := spinnerFrames[frame%len(spinnerFrames)]
	fmt.Fprintf(f.out, "\r\x1b[2K%s %6.2f%% %s [%s]", spinner, view.Percentage, leaf, view.Duration)
}

func (f *Follower) renderFinal() {
	view := f.tracker.View()
	fmt.Fprintf(f.out, "\r\x1b[2Kdone in %s\n", view.Duration)
	fmt.Fprintln(f.out, RenderDurationTable(f.tracker.Durations()))
}

// RenderDurationTable renders the export as an aligned text table, one row
// per unique path in export order.
func RenderDurationTable(export DurationExport) string {
	order, byPath := export.collapse()
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"STEP", "TOTAL", "SELF"})
	for _, path := range order {
		entry := byPath[path]
		tw.AppendRow(table.Row{path, formatDuration(entry.Total), formatDuration(entry.Self)})
	}
	return tw.Render()
}
