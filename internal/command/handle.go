package command

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/radio-control/rtsbridge/internal/adapter"
)

// Request is one motion command for one channel.
type Request struct {
	Channel string         `json:"channel"`
	Action  adapter.Action `json:"action"`
}

func (r Request) String() string {
	return fmt.Sprintf("%s %s", r.Action, r.Channel)
}

// Status is the lifecycle state of a single request.
type Status int

const (
	StatusPending Status = iota
	StatusSuccess
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MarshalText encodes the status name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether s is final.
func (s Status) Terminal() bool { return s != StatusPending }

// Outcome is the result of one request.
type Outcome struct {
	Request   Request
	Status    Status
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// Handle tracks a submitted batch until every request has a terminal outcome.
type Handle struct {
	id        string
	requests  []Request
	submitted time.Time

	// reporting context, detached from the submitter's cancellation
	ctx       context.Context
	submitter string

	mu        sync.Mutex
	outcomes  []Outcome
	remaining int
	done      chan struct{}
}

func newHandle(requests []Request) *Handle {
	reqs := make([]Request, len(requests))
	copy(reqs, requests)

	outcomes := make([]Outcome, len(reqs))
	for i, r := range reqs {
		outcomes[i] = Outcome{Request: r, Status: StatusPending}
	}

	return &Handle{
		id:        uuid.NewString(),
		requests:  reqs,
		submitted: time.Now(),
		ctx:       context.Background(),
		outcomes:  outcomes,
		remaining: len(reqs),
		done:      make(chan struct{}),
	}
}

// ID returns the batch identifier.
func (h *Handle) ID() string { return h.id }

// Len returns the number of requests in the batch.
func (h *Handle) Len() int { return len(h.requests) }

// Requests returns a copy of the batch in submission order.
func (h *Handle) Requests() []Request {
	out := make([]Request, len(h.requests))
	copy(out, h.requests)
	return out
}

// Submitter returns who submitted the batch, if known.
func (h *Handle) Submitter() string { return h.submitter }

// SubmittedAt returns when the batch was accepted.
func (h *Handle) SubmittedAt() time.Time { return h.submitted }

// Done is closed once every request is terminal.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Finished reports whether every request is terminal.
func (h *Handle) Finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Outcomes returns a snapshot of per-request outcomes in submission order.
func (h *Handle) Outcomes() []Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Outcome, len(h.outcomes))
	copy(out, h.outcomes)
	return out
}

// Wait blocks until the batch finishes or ctx ends.
func (h *Handle) Wait(ctx context.Context) ([]Outcome, error) {
	select {
	case <-h.done:
		return h.Outcomes(), nil
	case <-ctx.Done():
		return h.Outcomes(), ctx.Err()
	}
}

// Err combines the errors of every failed or cancelled request, or nil.
func (h *Handle) Err() error {
	var err error
	for i, o := range h.Outcomes() {
		if o.Err != nil {
			err = multierr.Append(err, fmt.Errorf("request %d (%s): %w", i, o.Request, o.Err))
		}
	}
	return err
}

// Counts returns how many outcomes are in each status.
func (h *Handle) Counts() map[Status]int {
	counts := make(map[Status]int, 4)
	for _, o := range h.Outcomes() {
		counts[o.Status]++
	}
	return counts
}

// record stores the outcome for request i. It returns true when this call
// finished the batch. Recording twice for the same index is ignored.
func (h *Handle) record(i int, o Outcome) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.outcomes[i].Status.Terminal() || !o.Status.Terminal() {
		return false
	}
	h.outcomes[i] = o
	h.remaining--
	if h.remaining == 0 {
		close(h.done)
		return true
	}
	return false
}
