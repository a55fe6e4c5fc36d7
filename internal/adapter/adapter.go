package adapter

import (
	"context"
	"fmt"
	"strings"
)

// Action is a motion command understood by RTS motors.
type Action byte

// Wire letters are shared by every URTSI controller version.
const (
	ActionUp   Action = 'U'
	ActionDown Action = 'D'
	ActionStop Action = 'S'
)

// Valid reports whether a is one of Up, Down or Stop.
func (a Action) Valid() bool {
	switch a {
	case ActionUp, ActionDown, ActionStop:
		return true
	}
	return false
}

func (a Action) String() string {
	switch a {
	case ActionUp:
		return "up"
	case ActionDown:
		return "down"
	case ActionStop:
		return "stop"
	default:
		return fmt.Sprintf("Action(%q)", byte(a))
	}
}

// MarshalText encodes the action as its lower-case name.
func (a Action) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAction, a)
	}
	return []byte(a.String()), nil
}

// UnmarshalText accepts anything ParseAction accepts.
func (a *Action) UnmarshalText(text []byte) error {
	parsed, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAction parses "up", "down", "stop" or their wire letters, case-insensitively.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up", "u":
		return ActionUp, nil
	case "down", "d":
		return ActionDown, nil
	case "stop", "s":
		return ActionStop, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedAction, s)
}

// Transport is the exclusive owner of the physical link to the bridge.
type Transport interface {
	// Send writes data to the bridge and blocks until the write completes.
	// Implementations must bound their own blocking; callers add no timeout.
	Send(ctx context.Context, data []byte) error

	// Close releases the underlying port. Send after Close fails.
	Close() error
}

// Encoder maps a channel/action pair to the bridge's wire bytes.
// Implementations are pure and safe for concurrent use.
type Encoder interface {
	// ValidateChannel reports ErrInvalidChannel when the identifier is not in
	// the encoder's syntax. Range checks belong to Encode.
	ValidateChannel(channel string) error

	// Encode returns the bytes for one command or ErrUnknownChannel /
	// ErrUnsupportedAction.
	Encode(channel string, action Action) ([]byte, error)
}
