package progress

import (
	"fmt"
	"strings"
	"sync/atomic"
	"unicode"
)

// Phases is a closed, ordered set of named task phases that share one stack
// slot. The discriminator D fixes the slot identity at compile time, so two
// phase sets declared with different discriminators occupy independent slots
// even when their phase names coincide.
type Phases[D any] struct {
	names []string
}

// NewPhases builds a phase set from identifiers written in CamelCase; display
// names are derived mechanically ("MergingWordDocids" becomes "merging word
// docids").
func NewPhases[D any](identifiers ...string) Phases[D] {
	names := make([]string, len(identifiers))
	for i, ident := range identifiers {
		names[i] = displayName(ident)
	}
	return Phases[D]{names: names}
}

// Len returns the number of declared phases.
func (p Phases[D]) Len() int { return len(p.names) }

// Phase returns the step for the zero-based ordinal. It panics when the
// ordinal is outside the declared set; that is a programmer error, not a
// runtime condition.
func (p Phases[D]) Phase(ordinal int) PhaseStep[D] {
	if ordinal < 0 || ordinal >= len(p.names) {
		panic(fmt.Sprintf("progress: phase ordinal %d out of range [0,%d)", ordinal, len(p.names)))
	}
	return PhaseStep[D]{
		name:    p.names[ordinal],
		ordinal: uint64(ordinal),
		total:   uint64(len(p.names)),
	}
}

// PhaseStep is one phase of a Phases set: current is the phase ordinal and
// total the set cardinality.
type PhaseStep[D any] struct {
	name    string
	ordinal uint64
	total   uint64
}

// Name implements Step.
func (s PhaseStep[D]) Name() string { return s.name }

// Current implements Step.
func (s PhaseStep[D]) Current() uint64 { return s.ordinal }

// Total implements Step.
func (s PhaseStep[D]) Total() uint64 { return s.total }

// Unit names the thing an atomic counter counts. Implementations are
// zero-sized marker types with value receivers; the type itself becomes the
// counter's slot identity.
type Unit interface {
	UnitName() string
}

// AtomicStep observes a shared counter without ever touching the tracker
// lock. Producers increment the counter returned by NewAtomicStep directly;
// the step value living inside the tracker reads it on demand, so views
// reflect increments that happened after the step was reported.
type AtomicStep[U Unit] struct {
	counter *atomic.Uint64
	name    string
	total   uint64
}

// NewAtomicStep returns the shared counter and the step observing it. The
// counter starts at zero; total is fixed for the step's lifetime.
func NewAtomicStep[U Unit](total uint64) (*atomic.Uint64, AtomicStep[U]) {
	var unit U
	counter := new(atomic.Uint64)
	return counter, AtomicStep[U]{
		counter: counter,
		name:    unit.UnitName(),
		total:   total,
	}
}

// Name implements Step.
func (s AtomicStep[U]) Name() string { return s.name }

// Current implements Step by loading the shared counter.
func (s AtomicStep[U]) Current() uint64 { return s.counter.Load() }

// Total implements Step.
func (s AtomicStep[U]) Total() uint64 { return s.total }

// Named is a value-snapshot step whose display name arrives at run time. The
// discriminator D pins the slot identity, so distinct call sites can keep
// independent slots while sharing this one shape; counters are fixed at
// construction, not live.
type Named[D any] struct {
	name    string
	current uint64
	total   uint64
}

// NewNamed builds a Named step for discriminator D.
func NewNamed[D any](name string, current, total uint64) Named[D] {
	return Named[D]{name: name, current: current, total: total}
}

// Name implements Step.
func (s Named[D]) Name() string { return s.name }

// Current implements Step.
func (s Named[D]) Current() uint64 { return s.current }

// Total implements Step.
func (s Named[D]) Total() uint64 { return s.total }

// SlotStep addresses a stack slot by name rather than by Go type, for
// producers on the far side of a wire that cannot share compile-time
// discriminators. Reports with equal slot strings replace each other; the
// display name defaults to the slot when omitted.
type SlotStep struct {
	slot    string
	name    string
	current uint64
	total   uint64
}

// NewSlotStep builds a SlotStep for the given slot.
func NewSlotStep(slot, name string, current, total uint64) SlotStep {
	if name == "" {
		name = slot
	}
	return SlotStep{slot: slot, name: name, current: current, total: total}
}

// Slot returns the slot string that carries this step's identity.
func (s SlotStep) Slot() string { return s.slot }

// Name implements Step.
func (s SlotStep) Name() string { return s.name }

// Current implements Step.
func (s SlotStep) Current() uint64 { return s.current }

// Total implements Step.
func (s SlotStep) Total() uint64 { return s.total }

// displayName converts a CamelCase identifier to lower-case words: every
// upper-case rune is lowered and, except at the start, preceded by a space.
func displayName(identifier string) string {
	var b strings.Builder
	b.Grow(len(identifier) + 4)
	for i, r := range identifier {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
