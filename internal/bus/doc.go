// Package bus implements the in-process event bus: a bounded,
// priority-ordered pending queue drained by a single consumer goroutine on a
// fixed tick, with per-handler error isolation and exponential-backoff retry
// of failed event processing.
package bus
