package command

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/radio-control/rtsbridge/internal/adapter"
	"github.com/radio-control/rtsbridge/internal/adapter/fake"
	"github.com/radio-control/rtsbridge/internal/adapter/somfy"
	"github.com/radio-control/rtsbridge/internal/audit"
	"github.com/radio-control/rtsbridge/internal/telemetry"
)

type fixture struct {
	clock      *ManualClock
	transport  *fake.Transport
	encoder    *somfy.Encoder
	queue      *PacingQueue
	dispatcher *Dispatcher
}

// newFixture wires a dispatcher over a fake transport. With a nil clock the
// system clock is used.
func newFixture(t *testing.T, clock *ManualClock, opts ...QueueOption) *fixture {
	t.Helper()

	enc, err := somfy.NewEncoder(somfy.V2)
	require.NoError(t, err)

	tr := fake.NewTransport()
	if clock != nil {
		tr.SetNow(clock.Now)
		opts = append([]QueueOption{WithClock(clock)}, opts...)
	}

	q := NewPacingQueue(enc, tr, opts...)
	f := &fixture{
		clock:      clock,
		transport:  tr,
		encoder:    enc,
		queue:      q,
		dispatcher: NewDispatcher(q, enc),
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = f.dispatcher.Shutdown(ctx)
	})
	return f
}

func ups(channels ...int) []Request {
	reqs := make([]Request, len(channels))
	for i, ch := range channels {
		reqs[i] = Request{Channel: strconv.Itoa(ch), Action: adapter.ActionUp}
	}
	return reqs
}

func frame(ch int, a adapter.Action) string {
	return fmt.Sprintf("01%02d%c", ch, byte(a))
}

func waitStarted(t *testing.T, tr *fake.Transport, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-tr.Started():
		case <-time.After(2 * time.Second):
			t.Fatalf("send %d did not start", i+1)
		}
	}
}

type auditRecord struct {
	action, channel, result string
	user                    string
}

type recordingAudit struct {
	mu      sync.Mutex
	records []auditRecord
}

func (r *recordingAudit) LogAction(ctx context.Context, action, channel, result string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, auditRecord{action: action, channel: channel, result: result, user: audit.UserFromContext(ctx)})
}

func (r *recordingAudit) snapshot() []auditRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]auditRecord, len(r.records))
	copy(out, r.records)
	return out
}

type recordingHub struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (h *recordingHub) Publish(e telemetry.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
	return nil
}

func (h *recordingHub) PublishChannel(channel string, e telemetry.Event) error {
	e.Channel = channel
	return h.Publish(e)
}

func (h *recordingHub) types() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.events))
	for i, e := range h.events {
		out[i] = e.Type
	}
	return out
}

type mapResolver map[string]string

func (m mapResolver) Resolve(name string) (string, bool) {
	ch, ok := m[name]
	return ch, ok
}
