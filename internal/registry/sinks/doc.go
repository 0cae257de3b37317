// Package sinks implements concrete record consumers such as Prometheus,
// repository-backed storage, report archiving, Pub/Sub publishing, and
// structured logging. Each sink satisfies the registry.Sink interface and is
// safe for repeated Consume/Close cycles.
package sinks
