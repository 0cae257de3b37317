// Package store defines interfaces for persistence dependencies (task-run
// repositories and report archives). Implementations live in other packages;
// this package must not import database drivers or concrete clients.
package store
