// Package sinks implements progress consumers backed by structured logging
// and Prometheus. Each sink satisfies progress.Sink.
package sinks
