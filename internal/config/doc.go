// Package config loads bridge, timing, server and logging settings.
//
// Precedence: Defaults() < YAML file < RTS_* environment variables. The
// merged result is validated before it is returned.
package config
