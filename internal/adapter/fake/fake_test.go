package fake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/radio-control/rtsbridge/internal/adapter"
)

var _ adapter.Transport = (*Transport)(nil)

func TestTransportRecordsWrites(t *testing.T) {
	tr := NewTransport()
	ctx := context.Background()

	for _, frame := range []string{"U1\r", "D2\r"} {
		if err := tr.Send(ctx, []byte(frame)); err != nil {
			t.Fatalf("Send(%q) failed: %v", frame, err)
		}
	}

	got := tr.Frames()
	if len(got) != 2 || got[0] != "U1\r" || got[1] != "D2\r" {
		t.Errorf("Frames() = %q, want [U1\\r D2\\r]", got)
	}
	if tr.SendCount() != 2 {
		t.Errorf("SendCount() = %d, want 2", tr.SendCount())
	}
}

func TestTransportCopiesPayload(t *testing.T) {
	tr := NewTransport()
	buf := []byte("U1\r")
	_ = tr.Send(context.Background(), buf)
	buf[0] = 'D'

	if got := tr.Frames()[0]; got != "U1\r" {
		t.Errorf("recorded frame aliased caller buffer: %q", got)
	}
}

func TestTransportFailOn(t *testing.T) {
	tr := NewTransport()
	boom := errors.New("boom")
	tr.FailOn(2, boom)
	ctx := context.Background()

	if err := tr.Send(ctx, []byte("a")); err != nil {
		t.Fatalf("Send #1 failed: %v", err)
	}
	if err := tr.Send(ctx, []byte("b")); !errors.Is(err, boom) {
		t.Fatalf("Send #2 error = %v, want boom", err)
	}
	if err := tr.Send(ctx, []byte("c")); err != nil {
		t.Fatalf("Send #3 failed: %v", err)
	}
	if got := tr.Frames(); len(got) != 2 {
		t.Errorf("Frames() = %q, want 2 entries", got)
	}
}

func TestTransportErrorSimulation(t *testing.T) {
	tr := NewTransport()
	sim := errors.New("port gone")
	tr.SetErrorSimulation(sim)

	if err := tr.Send(context.Background(), []byte("x")); !errors.Is(err, sim) {
		t.Fatalf("Send error = %v, want simulated", err)
	}

	tr.DisableErrorSimulation()
	if err := tr.Send(context.Background(), []byte("x")); err != nil {
		t.Fatalf("Send after DisableErrorSimulation failed: %v", err)
	}
}

func TestTransportClose(t *testing.T) {
	tr := NewTransport()
	if err := tr.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if !tr.Closed() {
		t.Error("Closed() = false after Close")
	}
	if err := tr.Send(context.Background(), []byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close error = %v, want ErrClosed", err)
	}
}

func TestTransportCancelledContext(t *testing.T) {
	tr := NewTransport()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := tr.Send(ctx, []byte("x")); !errors.Is(err, context.Canceled) {
		t.Errorf("Send error = %v, want context.Canceled", err)
	}
	if tr.SendCount() != 0 {
		t.Errorf("SendCount() = %d, want 0", tr.SendCount())
	}
}

func TestTransportHoldRelease(t *testing.T) {
	tr := NewTransport()
	tr.Hold()

	done := make(chan error, 1)
	go func() { done <- tr.Send(context.Background(), []byte("U1\r")) }()

	select {
	case n := <-tr.Started():
		if n != 1 {
			t.Fatalf("Started() = %d, want 1", n)
		}
	case <-time.After(time.Second):
		t.Fatal("Send did not start")
	}

	select {
	case err := <-done:
		t.Fatalf("Send returned while held: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	tr.Release()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Send did not return after Release")
	}
}

func TestTransportSetNow(t *testing.T) {
	tr := NewTransport()
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.SetNow(func() time.Time { return fixed })

	_ = tr.Send(context.Background(), []byte("x"))
	if at := tr.Writes()[0].At; !at.Equal(fixed) {
		t.Errorf("Write.At = %v, want %v", at, fixed)
	}
}
