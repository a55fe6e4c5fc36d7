// Package command paces and dispatches motion commands to the RTS bridge.
//
// A Dispatcher validates batches and hands them to a PacingQueue. The queue owns
// a single worker goroutine that encodes and sends one request at a time and keeps
// successive transmissions at least MinInterval apart, measured start to start.
// Every request ends in exactly one Outcome on its batch's Handle; the Dispatcher
// mirrors each outcome to the audit log and the telemetry hub.
package command
