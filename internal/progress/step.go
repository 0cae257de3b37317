package progress

import "reflect"

// Step describes one unit of work: a display name plus a current/total
// progress ratio. Current should never exceed Total; the tracker does not
// trust this and clamps inside every ratio computation, while still reporting
// raw counters untouched.
type Step interface {
	Name() string
	Current() uint64
	Total() uint64
}

// Reporter accepts step reports. Tracker implements it; producers should
// depend on this interface so they can be handed a NopReporter when nobody
// is watching.
type Reporter interface {
	Report(step Step)
}

// NopReporter discards every report.
type NopReporter struct{}

// Report implements Reporter by doing nothing.
func (NopReporter) Report(Step) {}

// identity is the logical slot key for a stack entry: the concrete step
// type, plus the slot string for SlotStep values whose identity is chosen at
// run time. Two reports address the same slot iff their identities are equal.
type identity struct {
	typ reflect.Type
	tag string
}

var slotStepType = reflect.TypeOf(SlotStep{})

// kindOf derives the stack-slot identity of a reported step. Distinct
// instantiations of the generic step shapes produce distinct types, so each
// declared kind owns exactly one slot.
func kindOf(step Step) identity {
	if s, ok := step.(SlotStep); ok {
		return identity{typ: slotStepType, tag: s.slot}
	}
	return identity{typ: reflect.TypeOf(step)}
}
