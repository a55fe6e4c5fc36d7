// Package somfy encodes motion commands for the Somfy Universal RTS Interface.
//
// Controller version 1 addresses channels 1..5 with frames like "U3\r".
// Controller version 2 addresses channels 1..16 with frames like "0103U"
// (two-digit address, two-digit channel, action letter, no terminator).
package somfy

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/radio-control/rtsbridge/internal/adapter"
)

// Supported controller versions.
const (
	V1 = 1
	V2 = 2
)

// Encoder implements adapter.Encoder for one URTSI controller version.
type Encoder struct {
	version    int
	maxChannel int
	address    int
}

var _ adapter.Encoder = (*Encoder)(nil)

// NewEncoder returns an encoder for the given controller version.
func NewEncoder(version int) (*Encoder, error) {
	switch version {
	case V1:
		return &Encoder{version: V1, maxChannel: 5}, nil
	case V2:
		return &Encoder{version: V2, maxChannel: 16, address: 1}, nil
	default:
		return nil, fmt.Errorf("unsupported controller version %d", version)
	}
}

// Version returns the controller version this encoder targets.
func (e *Encoder) Version() int { return e.version }

// MaxChannel returns the highest addressable channel.
func (e *Encoder) MaxChannel() int { return e.maxChannel }

// ValidateChannel only checks syntax; range is checked by Encode.
func (e *Encoder) ValidateChannel(channel string) error {
	_, err := parseChannel(channel)
	return err
}

// Encode returns the wire frame for action on channel.
func (e *Encoder) Encode(channel string, action adapter.Action) ([]byte, error) {
	n, err := parseChannel(channel)
	if err != nil {
		return nil, err
	}
	if n < 1 || n > e.maxChannel {
		return nil, fmt.Errorf("%w: %d (controller v%d supports 1-%d)",
			adapter.ErrUnknownChannel, n, e.version, e.maxChannel)
	}
	if !action.Valid() {
		return nil, fmt.Errorf("%w: %s", adapter.ErrUnsupportedAction, action)
	}

	if e.version == V1 {
		return []byte(fmt.Sprintf("%c%d\r", byte(action), n)), nil
	}
	return []byte(fmt.Sprintf("%02d%02d%c", e.address, n, byte(action))), nil
}

func parseChannel(channel string) (int, error) {
	s := strings.TrimSpace(channel)
	if s == "" {
		return 0, fmt.Errorf("%w: empty channel", adapter.ErrInvalidChannel)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a channel number", adapter.ErrInvalidChannel, channel)
	}
	return n, nil
}
