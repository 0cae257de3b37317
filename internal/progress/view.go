package progress

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Duration marshals as the compact human-readable strings used across the
// JSON surfaces ("0s", "850ms", "1.43s").
type Duration time.Duration

// String renders the duration at a precision matched to its magnitude.
func (d Duration) String() string { return formatDuration(time.Duration(d)) }

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

// StepView is the read-only projection of one active stack entry. Finished
// carries the raw counter even when it overruns Total; only Percentage is
// clamped.
type StepView struct {
	Name       string   `json:"currentStep"`
	Finished   uint64   `json:"finished"`
	Total      uint64   `json:"total"`
	Percentage float64  `json:"percentage"`
	Duration   Duration `json:"duration"`
}

// View is the full projection of a tracker: per-step views root-to-leaf, the
// nested-fraction global percentage, and overall elapsed time.
type View struct {
	Steps      []StepView `json:"steps"`
	Percentage float64    `json:"percentage"`
	Duration   Duration   `json:"duration"`
}

// View projects the current stack. The global percentage models the task as
// a number line subdivided at each depth by that entry's total, so deep steps
// move it only fractionally. Entries with a zero total contribute nothing and
// leave the subdivision factor untouched; dividing by them would poison the
// output with NaN. Takes only the read lock and performs no I/O.
func (t *Tracker) View() View {
	t.mu.RLock()
	defer t.mu.RUnlock()
	now := t.clock.Now()
	if !t.finishedAt.IsZero() {
		now = t.finishedAt
	}

	steps := make([]StepView, 0, len(t.stack))
	var pct float64
	factor := 1.0
	for _, entry := range t.stack {
		current, total := entry.step.Current(), entry.step.Total()
		clamped := min(current, total)
		var stepPct float64
		if total > 0 {
			factor *= float64(total)
			pct += float64(clamped) / factor
			stepPct = float64(clamped) / float64(total) * 100
		}
		steps = append(steps, StepView{
			Name:       entry.step.Name(),
			Finished:   current,
			Total:      total,
			Percentage: stepPct,
			Duration:   Duration(now.Sub(entry.startedAt)),
		})
	}
	return View{
		Steps:      steps,
		Percentage: pct * 100,
		Duration:   Duration(now.Sub(t.startedAt)),
	}
}

// DurationEntry is one retired (or projected still-open) step's accounting
// row: the hierarchical path, wall-clock total, and self time net of
// children.
type DurationEntry struct {
	Path  string
	Total time.Duration
	Self  time.Duration
}

// Durations returns the ledger plus an as-of-now projection of the open
// stack, oldest-retired first, open entries innermost-first at the tail. It
// never mutates: reading durations mid-run and then continuing to report is
// free of observable side effects, and repeated reads return a growing
// picture.
func (t *Tracker) Durations() DurationExport {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(DurationExport, len(t.ledger), len(t.ledger)+len(t.stack))
	copy(out, t.ledger)

	now := t.clock.Now()
	var childTotal time.Duration
	for i := len(t.stack) - 1; i >= 0; i-- {
		entry := t.stack[i]
		total := now.Sub(entry.startedAt)
		out = append(out, DurationEntry{
			Path:  t.path(i),
			Total: total,
			Self:  total - entry.inChildren - childTotal,
		})
		childTotal = total
	}
	return out
}

// DurationExport is an ordered sequence of duration entries. Its JSON form is
// an object keyed by path in first-insertion order; a path retired more than
// once keeps its original position with the latest values.
type DurationExport []DurationEntry

// stepDurations is the JSON value shape for one exported path.
type stepDurations struct {
	Total Duration `json:"totalDuration"`
	Self  Duration `json:"selfDuration"`
}

// MarshalJSON implements json.Marshaler, preserving entry order, which the
// standard map type would destroy.
func (e DurationExport) MarshalJSON() ([]byte, error) {
	order, byPath := e.collapse()
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, path := range order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(path)
		if err != nil {
			return nil, fmt.Errorf("marshal duration path: %w", err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		entry := byPath[path]
		value, err := json.Marshal(stepDurations{
			Total: Duration(entry.Total),
			Self:  Duration(entry.Self),
		})
		if err != nil {
			return nil, fmt.Errorf("marshal durations for %q: %w", path, err)
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// collapse reduces the entry sequence to unique paths: first-insertion order,
// latest values win.
func (e DurationExport) collapse() ([]string, map[string]DurationEntry) {
	order := make([]string, 0, len(e))
	byPath := make(map[string]DurationEntry, len(e))
	for _, entry := range e {
		if _, seen := byPath[entry.Path]; !seen {
			order = append(order, entry.Path)
		}
		byPath[entry.Path] = entry
	}
	return order, byPath
}

// formatDuration renders a duration at a precision matched to its size so
// sub-millisecond noise does not swamp the output.
func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "0s"
	case d < time.Millisecond:
		return d.String()
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", float64(d)/float64(time.Second))
	default:
		return d.Round(time.Second).String()
	}
}
