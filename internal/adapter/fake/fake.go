// Package fake provides an in-memory transport for tests and the TEST port.
package fake

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("fake transport closed when Send was called")

// Write is one successful Send.
type Write struct {
	Data []byte
	At   time.Time
}

// Transport implements adapter.Transport by recording every write.
type Transport struct {
	mu sync.Mutex

	writes    []Write
	sendCount int
	closed    bool

	// Error simulation
	failOn    map[int]error
	simulated error

	// Gating
	gate    chan struct{}
	started chan int
	onSend  func(n int, data []byte)

	inFlight    int
	maxInFlight int

	now func() time.Time
}

// NewTransport creates an open fake transport.
func NewTransport() *Transport {
	return &Transport{
		failOn:  make(map[int]error),
		started: make(chan int, 256),
		now:     time.Now,
	}
}

// SetNow overrides the timestamp source used for recorded writes.
func (f *Transport) SetNow(now func() time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}

// Send records data, or fails as configured.
func (f *Transport) Send(ctx context.Context, data []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	f.sendCount++
	n := f.sendCount
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	at := f.now()
	gate := f.gate
	onSend := f.onSend
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	select {
	case f.started <- n:
	default:
	}
	if onSend != nil {
		onSend(n, data)
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.failOn[n]; ok {
		return err
	}
	if f.simulated != nil {
		return f.simulated
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	f.writes = append(f.writes, Write{Data: buf, At: at})
	return nil
}

// Close marks the transport closed. Calling it twice is harmless.
func (f *Transport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (f *Transport) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// FailOn makes the n-th Send (1-based) return err.
func (f *Transport) FailOn(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn[n] = err
}

// SetErrorSimulation makes every Send return err.
func (f *Transport) SetErrorSimulation(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.simulated = err
}

// DisableErrorSimulation clears SetErrorSimulation.
func (f *Transport) DisableErrorSimulation() {
	f.SetErrorSimulation(nil)
}

// Hold blocks subsequent Sends until Release.
func (f *Transport) Hold() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate == nil {
		f.gate = make(chan struct{})
	}
}

// Release unblocks every Send waiting on Hold.
func (f *Transport) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
}

// OnSend registers fn to run at the start of every Send, before any gate.
func (f *Transport) OnSend(fn func(n int, data []byte)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onSend = fn
}

// Started delivers the 1-based index of each Send as it begins.
func (f *Transport) Started() <-chan int {
	return f.started
}

// Writes returns a copy of the successful writes in order.
func (f *Transport) Writes() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Write, len(f.writes))
	copy(out, f.writes)
	return out
}

// Frames returns the written payloads as strings.
func (f *Transport) Frames() []string {
	writes := f.Writes()
	out := make([]string, len(writes))
	for i, w := range writes {
		out[i] = string(w.Data)
	}
	return out
}

// SendCount returns how many Sends were attempted, including failures.
func (f *Transport) SendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sendCount
}

// MaxConcurrentSends returns the highest number of overlapping Sends observed.
func (f *Transport) MaxConcurrentSends() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}
