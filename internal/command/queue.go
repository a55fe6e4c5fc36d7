package command

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/radio-control/rtsbridge/internal/adapter"
)

// DefaultMinInterval is the URTSI's documented minimum spacing between commands.
const DefaultMinInterval = 1500 * time.Millisecond

// WorkerState is the lifecycle state of the queue's worker.
type WorkerState int

const (
	StateIdle WorkerState = iota
	StateRunning
	StateShuttingDown
	StateStopped
)

func (s WorkerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shuttingDown"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("WorkerState(%d)", int(s))
	}
}

// OutcomeHook observes every terminal outcome. batchDone is true for the
// outcome that finished h. Hooks run on the worker goroutine (or the caller
// of Clear/Shutdown) and must not block.
type OutcomeHook func(h *Handle, o Outcome, batchDone bool)

// QueueOption configures a PacingQueue.
type QueueOption func(*PacingQueue)

// WithMinInterval sets the start-to-start spacing. Zero disables pacing.
func WithMinInterval(d time.Duration) QueueOption {
	return func(q *PacingQueue) {
		if d >= 0 {
			q.minInterval = d
		}
	}
}

// WithClock replaces the system clock.
func WithClock(c Clock) QueueOption {
	return func(q *PacingQueue) {
		if c != nil {
			q.clock = c
		}
	}
}

// WithOutcomeHook registers fn for every terminal outcome.
func WithOutcomeHook(fn OutcomeHook) QueueOption {
	return func(q *PacingQueue) {
		if fn != nil {
			q.hooks = append(q.hooks, fn)
		}
	}
}

// WithLogger enables worker chatter (sends and pacing sleeps) on l.
func WithLogger(l *log.Logger) QueueOption {
	return func(q *PacingQueue) {
		q.logger = l
	}
}

type entry struct {
	handle *Handle
	index  int
}

// PacingQueue is a FIFO of requests drained by a single worker goroutine.
type PacingQueue struct {
	encoder     adapter.Encoder
	transport   adapter.Transport
	clock       Clock
	minInterval time.Duration
	logger      *log.Logger

	mu        sync.Mutex
	hooks     []OutcomeHook
	entries   []entry
	state     WorkerState
	lastStart time.Time
	hasSent   bool
	stop      chan struct{}
	wake      chan struct{}
	idle      chan struct{}
	wg        sync.WaitGroup
}

// NewPacingQueue creates an idle queue that sends through transport.
func NewPacingQueue(encoder adapter.Encoder, transport adapter.Transport, opts ...QueueOption) *PacingQueue {
	idle := make(chan struct{})
	close(idle)

	q := &PacingQueue{
		encoder:     encoder,
		transport:   transport,
		clock:       SystemClock(),
		minInterval: DefaultMinInterval,
		state:       StateIdle,
		stop:        make(chan struct{}),
		wake:        make(chan struct{}, 1),
		idle:        idle,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// MinInterval returns the configured spacing.
func (q *PacingQueue) MinInterval() time.Duration { return q.minInterval }

// Enqueue appends batch and starts the worker if it is idle. It never waits
// for transmission.
func (q *PacingQueue) Enqueue(batch []Request) (*Handle, error) {
	if len(batch) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrInvalidRequest)
	}
	h := newHandle(batch)
	if err := q.enqueue(h); err != nil {
		return nil, err
	}
	return h, nil
}

func (q *PacingQueue) enqueue(h *Handle) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.state == StateShuttingDown || q.state == StateStopped {
		return ErrShutdown
	}

	for i := range h.requests {
		q.entries = append(q.entries, entry{handle: h, index: i})
	}

	if q.state == StateIdle {
		q.state = StateRunning
		q.idle = make(chan struct{})
		q.wg.Add(1)
		go q.drain()
	}
	return nil
}

func (q *PacingQueue) addHook(fn OutcomeHook) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.hooks = append(q.hooks, fn)
}

// drain is the worker loop. The lock is never held across a send or a pacing wait.
func (q *PacingQueue) drain() {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		if q.state != StateRunning {
			close(q.idle)
			q.mu.Unlock()
			return
		}
		if len(q.entries) == 0 {
			q.state = StateIdle
			close(q.idle)
			q.mu.Unlock()
			return
		}

		if q.hasSent && q.minInterval > 0 {
			if wait := q.minInterval - q.clock.Now().Sub(q.lastStart); wait > 0 {
				q.mu.Unlock()
				q.logf("sleeping %v between commands", wait)
				select {
				case <-q.clock.After(wait):
				case <-q.stop:
				case <-q.wake:
				}
				continue
			}
		}

		e := q.entries[0]
		q.entries[0] = entry{}
		q.entries = q.entries[1:]
		started := q.clock.Now()
		q.lastStart = started
		q.hasSent = true
		q.mu.Unlock()

		q.transmit(e, started)
	}
}

func (q *PacingQueue) transmit(e entry, started time.Time) {
	req := e.handle.requests[e.index]

	frame, err := q.encoder.Encode(req.Channel, req.Action)
	if err == nil {
		q.logf("sending command %q", frame)
		// No deadline: the transport bounds its own blocking.
		if sendErr := q.transport.Send(context.Background(), frame); sendErr != nil {
			err = adapter.NormalizeTransportError(sendErr, "", frame)
		}
	}

	o := Outcome{
		Request:   req,
		Status:    StatusSuccess,
		StartedAt: started,
		Duration:  q.clock.Now().Sub(started),
	}
	if err != nil {
		o.Status = StatusFailed
		o.Err = err
		q.logf("command %s failed: %v", req, err)
	}
	q.report(e.handle, e.index, o)
}

func (q *PacingQueue) report(h *Handle, i int, o Outcome) {
	done := h.record(i, o)

	q.mu.Lock()
	hooks := q.hooks
	q.mu.Unlock()

	for _, hook := range hooks {
		hook(h, o, done)
	}
}

func (q *PacingQueue) cancel(dropped []entry) {
	for _, e := range dropped {
		q.report(e.handle, e.index, Outcome{
			Request: e.handle.requests[e.index],
			Status:  StatusCancelled,
			Err:     ErrCancelled,
		})
	}
}

// Clear cancels every request that has not started and returns how many were
// dropped. An in-flight send is left alone.
func (q *PacingQueue) Clear() int {
	q.mu.Lock()
	dropped := q.entries
	q.entries = nil
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	q.cancel(dropped)
	return len(dropped)
}

// Flush blocks until the worker is idle or ctx ends.
func (q *PacingQueue) Flush(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting work, cancels unstarted requests, interrupts any
// pacing wait, and waits for an in-flight send to finish. It is safe to call
// more than once; a call that returns ctx's error can be retried.
func (q *PacingQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	var dropped []entry
	if q.state == StateIdle || q.state == StateRunning {
		q.state = StateShuttingDown
		dropped = q.entries
		q.entries = nil
		close(q.stop)
	}
	q.mu.Unlock()

	q.cancel(dropped)

	exited := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(exited)
	}()

	select {
	case <-exited:
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}

	q.mu.Lock()
	q.state = StateStopped
	q.mu.Unlock()
	return nil
}

// State returns the worker state.
func (q *PacingQueue) State() WorkerState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Pending returns the number of requests not yet started.
func (q *PacingQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *PacingQueue) logf(format string, args ...interface{}) {
	if q.logger != nil {
		q.logger.Printf(format, args...)
	}
}
