// Package auth verifies bearer JWTs and enforces per-route scopes.
//
// Roles: viewer (read, telemetry) and controller (viewer plus control).
// /api/v1/health is always public.
package auth
