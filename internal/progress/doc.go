// Package progress provides the event primitives, non-blocking hub, and emitter
// interfaces the harvest driver uses to report sweep progress. It batches events
// on a background goroutine and fans them out to pluggable sinks such as the
// console progress line, Prometheus metrics, or structured logs.
package progress
