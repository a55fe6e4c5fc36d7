package adapter

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestNormalizeTransportError(t *testing.T) {
	cause := errors.New("write /dev/ttyUSB0: input/output error")

	err := NormalizeTransportError(cause, "/dev/ttyUSB0", []byte("U3\r"))
	if err == nil {
		t.Fatal("NormalizeTransportError() = nil, want error")
	}

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Expected *TransportError, got %T", err)
	}
	if !errors.Is(err, ErrTransport) {
		t.Errorf("errors.Is(err, ErrTransport) = false, want true")
	}
	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(err, cause) = false, want true")
	}
	if string(te.Payload) != "U3\r" {
		t.Errorf("Payload = %q, want %q", te.Payload, "U3\r")
	}
	if !strings.Contains(err.Error(), "/dev/ttyUSB0") {
		t.Errorf("Error() = %q, want port name", err.Error())
	}
}

func TestNormalizeTransportErrorPassThrough(t *testing.T) {
	if err := NormalizeTransportError(nil, "p", nil); err != nil {
		t.Errorf("NormalizeTransportError(nil) = %v, want nil", err)
	}

	original := &TransportError{Code: ErrTransport, Original: errors.New("x")}
	if got := NormalizeTransportError(original, "other", nil); got != error(original) {
		t.Errorf("already-normalized error was re-wrapped: %v", got)
	}
}

func TestNormalizeTransportErrorCopiesPayload(t *testing.T) {
	payload := []byte("D1\r")
	err := NormalizeTransportError(errors.New("boom"), "", payload)
	payload[0] = 'U'

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Expected *TransportError, got %T", err)
	}
	if te.Payload[0] != 'D' {
		t.Errorf("Payload aliased caller buffer: %q", te.Payload)
	}
	if strings.Contains(err.Error(), " on ") {
		t.Errorf("Error() = %q, want no port segment", err.Error())
	}
}

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "SUCCESS"},
		{"invalid channel", ErrInvalidChannel, "INVALID_CHANNEL"},
		{"unknown channel wrapped", errors.Join(errors.New("ctx"), ErrUnknownChannel), "UNKNOWN_CHANNEL"},
		{"unsupported action", ErrUnsupportedAction, "UNSUPPORTED_ACTION"},
		{"transport", NormalizeTransportError(errors.New("eio"), "", nil), "TRANSPORT_ERROR"},
		{"port unavailable", ErrPortUnavailable, "PORT_UNAVAILABLE"},
		{"unrelated", errors.New("other"), "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Code(tt.err); got != tt.want {
				t.Errorf("Code() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsCancellation(t *testing.T) {
	if !IsCancellation(context.Canceled) {
		t.Error("IsCancellation(context.Canceled) = false")
	}
	if !IsCancellation(NormalizeTransportError(context.DeadlineExceeded, "", nil)) {
		t.Error("IsCancellation(wrapped DeadlineExceeded) = false")
	}
	if IsCancellation(ErrTransport) {
		t.Error("IsCancellation(ErrTransport) = true")
	}
}
