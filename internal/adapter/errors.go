package adapter

import (
	"context"
	"errors"
	"fmt"
)

// Normalized adapter errors.
var (
	ErrInvalidChannel    = errors.New("INVALID_CHANNEL")
	ErrUnknownChannel    = errors.New("UNKNOWN_CHANNEL")
	ErrUnsupportedAction = errors.New("UNSUPPORTED_ACTION")
	ErrTransport         = errors.New("TRANSPORT_ERROR")
	ErrPortUnavailable   = errors.New("PORT_UNAVAILABLE")
)

// TransportError wraps a failed send with the port and payload that failed.
type TransportError struct {
	Code     error  // Normalized code, always ErrTransport today
	Original error  // Cause reported by the port
	Port     string // Port name, if known
	Payload  []byte // Bytes that were being written
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%v on %s (cause: %v)", e.Code, e.Port, e.Original)
	}
	return fmt.Sprintf("%v (cause: %v)", e.Code, e.Original)
}

// Unwrap exposes both the normalized code and the original cause to errors.Is.
func (e *TransportError) Unwrap() []error {
	return []error{e.Code, e.Original}
}

// NormalizeTransportError wraps err as a TransportError unless it already is one.
// Context errors are kept as the cause so callers can still match them.
func NormalizeTransportError(err error, port string, payload []byte) error {
	if err == nil {
		return nil
	}

	var te *TransportError
	if errors.As(err, &te) {
		return err
	}

	buf := make([]byte, len(payload))
	copy(buf, payload)

	return &TransportError{
		Code:     ErrTransport,
		Original: err,
		Port:     port,
		Payload:  buf,
	}
}

// IsCancellation reports whether err came from a cancelled or expired context.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Code returns the normalized code string for err, or "INTERNAL" when err
// carries none of the adapter codes.
func Code(err error) string {
	switch {
	case err == nil:
		return "SUCCESS"
	case errors.Is(err, ErrInvalidChannel):
		return ErrInvalidChannel.Error()
	case errors.Is(err, ErrUnknownChannel):
		return ErrUnknownChannel.Error()
	case errors.Is(err, ErrUnsupportedAction):
		return ErrUnsupportedAction.Error()
	case errors.Is(err, ErrTransport):
		return ErrTransport.Error()
	case errors.Is(err, ErrPortUnavailable):
		return ErrPortUnavailable.Error()
	default:
		return "INTERNAL"
	}
}
