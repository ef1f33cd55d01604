// Package sinks implements progress consumers: structured logging, Prometheus
// collectors, and an in-memory tracker of the current run. Each sink satisfies
// progress.Sink and tolerates repeated Consume/Close calls.
package sinks
