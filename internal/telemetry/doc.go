// Package telemetry fans command events out to SSE subscribers.
//
// Events are buffered per channel (plus a "global" stream for batch-level
// events) so a reconnecting client can resume with Last-Event-ID. Event IDs are
// monotonic per stream.
package telemetry
