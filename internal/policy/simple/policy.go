// Package simple contains the permissive policy implementation.
package simple

import "github.com/google/uuid"

// Policy admits every report. It stands in for the token bucket limiter
// when throttling is disabled.
type Policy struct{}

// New creates a new Policy.
func New() *Policy {
	return &Policy{}
}

// Allow always admits the report.
func (Policy) Allow(_ uuid.UUID) bool {
	return true
}

// Forget is a no-op; the permissive policy keeps no per-task state.
func (Policy) Forget(_ uuid.UUID) {}
