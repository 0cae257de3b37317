// Package progress implements hierarchical progress tracking for long-running
// tasks. A Tracker holds the stack of currently active steps keyed by logical
// step kind, retires finished steps into a duration ledger that splits total
// from self time, and serves read-only projections: per-step counters, a
// nested-fraction global percentage, and an ordered duration breakdown.
// Producers report through the Reporter interface; observers read concurrently
// without ever blocking producers.
package progress
