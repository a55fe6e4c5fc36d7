// Package adapter defines the southbound contracts for the RTS bridge.
//
// A Transport owns the physical serial connection and exposes a single blocking
// send. An Encoder turns a (channel, action) pair into the exact bytes the bridge
// expects. Both are consumed by the command dispatcher; neither knows about pacing.
//
// Error codes:
//   - INVALID_CHANNEL: channel identifier is not in the encoder's syntax
//   - UNKNOWN_CHANNEL: well formed channel the bridge does not address
//   - UNSUPPORTED_ACTION: action the encoder cannot express
//   - TRANSPORT_ERROR: the physical send failed
//   - PORT_UNAVAILABLE: the transport could not be opened
package adapter
