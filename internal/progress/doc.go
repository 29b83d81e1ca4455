// Package progress provides the event primitives, non-blocking hub, and emitter
// interfaces that workers use to report crawl progress. Events are batched on a
// background goroutine and fanned out to sinks such as structured logs or
// Prometheus metrics.
package progress
