// Package progress provides the event primitives, buffered hub, and emitter
// interfaces that pipeline stages use to report a run. Events are batched on a
// background goroutine and fanned out to sinks such as the console logger or
// Prometheus collectors.
package progress
