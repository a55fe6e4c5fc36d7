// Package api implements the HTTP gateway of the RTS bridge daemon.
//
// Endpoints (all under /api/v1):
//
//	GET  /health           liveness, worker state and queue depth (public)
//	GET  /channels         configured channels and aliases (read)
//	GET  /channels/{name}  one channel by number or alias (read)
//	POST /commands         submit a batch, optionally waiting for outcomes (control)
//	POST /commands/clear   drop every queued command that has not started (control)
//	GET  /telemetry        SSE stream of command events (telemetry)
//
// Every JSON response uses the {result, data, code, message, details,
// correlationId} envelope.
package api
