// Package sinks implements concrete progress consumers: a console progress
// line, Prometheus collectors, structured logging and a run repository sink.
// Each sink satisfies the progress.Sink interface and is safe for repeated
// Consume/Close cycles.
package sinks
