// Package progress carries run and task lifecycle events from the worker pool
// to observers. Emitting never blocks a worker: events are buffered, batched
// on a background goroutine, and fanned out to sinks such as structured logs,
// Prometheus collectors, or the live run tracker.
package progress
