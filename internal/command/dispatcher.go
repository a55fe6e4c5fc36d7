package command

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/radio-control/rtsbridge/internal/adapter"
	"github.com/radio-control/rtsbridge/internal/audit"
	"github.com/radio-control/rtsbridge/internal/telemetry"
)

// Dispatcher is the caller-facing entry point: it validates batches, feeds the
// pacing queue and reports outcomes.
type Dispatcher struct {
	queue   *PacingQueue
	encoder adapter.Encoder

	mu           sync.RWMutex
	auditLogger  AuditLogger
	telemetryHub TelemetryPublisher
	resolver     ChannelResolver

	closeOnce sync.Once
	closeErr  error
}

// NewDispatcher wraps queue. encoder validates channel syntax at submit time
// and should be the one the queue encodes with.
func NewDispatcher(queue *PacingQueue, encoder adapter.Encoder) *Dispatcher {
	d := &Dispatcher{
		queue:   queue,
		encoder: encoder,
	}
	queue.addHook(d.onOutcome)
	return d
}

// SetAuditLogger sets the audit logger.
func (d *Dispatcher) SetAuditLogger(logger AuditLogger) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.auditLogger = logger
}

// SetTelemetryHub sets the event publisher.
func (d *Dispatcher) SetTelemetryHub(hub TelemetryPublisher) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.telemetryHub = hub
}

// SetChannelResolver enables channel aliases in Submit.
func (d *Dispatcher) SetChannelResolver(r ChannelResolver) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resolver = r
}

// Submit validates and enqueues requests as one batch. It returns as soon as
// the batch is queued. On error nothing is queued.
func (d *Dispatcher) Submit(ctx context.Context, requests ...Request) (*Handle, error) {
	if len(requests) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrInvalidRequest)
	}

	d.mu.RLock()
	resolver := d.resolver
	d.mu.RUnlock()

	batch := make([]Request, len(requests))
	for i, r := range requests {
		if resolver != nil {
			if ch, ok := resolver.Resolve(r.Channel); ok {
				r.Channel = ch
			}
		}
		if err := d.encoder.ValidateChannel(r.Channel); err != nil {
			return nil, fmt.Errorf("%w: request %d: %w", ErrInvalidRequest, i, err)
		}
		if !r.Action.Valid() {
			return nil, fmt.Errorf("%w: request %d: %w: %s", ErrInvalidRequest, i, adapter.ErrUnsupportedAction, r.Action)
		}
		batch[i] = r
	}

	h := newHandle(batch)
	h.ctx = context.WithoutCancel(ctx)
	h.submitter = Submitter(ctx)

	if err := d.queue.enqueue(h); err != nil {
		return nil, err
	}
	return h, nil
}

// AwaitCompletion blocks until h finishes or timeout elapses. A timeout <= 0
// waits indefinitely. On ErrTimeout the partial outcomes are still returned.
func (d *Dispatcher) AwaitCompletion(h *Handle, timeout time.Duration) ([]Outcome, error) {
	if h == nil {
		return nil, fmt.Errorf("%w: nil handle", ErrInvalidRequest)
	}
	if timeout <= 0 {
		<-h.Done()
		return h.Outcomes(), nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.Done():
		return h.Outcomes(), nil
	case <-timer.C:
		return h.Outcomes(), ErrTimeout
	}
}

// Clear cancels every queued request that has not started.
func (d *Dispatcher) Clear() int { return d.queue.Clear() }

// Flush waits until the queue is idle or ctx ends.
func (d *Dispatcher) Flush(ctx context.Context) error { return d.queue.Flush(ctx) }

// State returns the worker state.
func (d *Dispatcher) State() WorkerState { return d.queue.State() }

// Pending returns the number of queued requests not yet started.
func (d *Dispatcher) Pending() int { return d.queue.Pending() }

// Shutdown stops the queue and then closes the transport. The transport is
// closed only once the worker has exited.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	if err := d.queue.Shutdown(ctx); err != nil {
		return err
	}
	d.closeOnce.Do(func() {
		if err := d.queue.transport.Close(); err != nil {
			d.closeErr = fmt.Errorf("close transport: %w", err)
		}
	})
	return d.closeErr
}

func (d *Dispatcher) onOutcome(h *Handle, o Outcome, batchDone bool) {
	d.logAudit(h, o)
	d.publishOutcome(h, o)
	if batchDone {
		d.publishBatchCompleted(h)
	}
}

// outcomeCode maps an outcome to the code recorded in audit and telemetry.
func outcomeCode(o Outcome) string {
	switch o.Status {
	case StatusSuccess:
		return "SUCCESS"
	case StatusCancelled:
		return ErrCancelled.Error()
	default:
		return adapter.Code(o.Err)
	}
}

func (d *Dispatcher) logAudit(h *Handle, o Outcome) {
	d.mu.RLock()
	logger := d.auditLogger
	d.mu.RUnlock()
	if logger == nil {
		return
	}

	ctx := audit.WithUser(h.ctx, h.submitter)
	ctx = audit.WithParams(ctx, map[string]interface{}{
		"batchId": h.ID(),
		"status":  o.Status.String(),
	})
	logger.LogAction(ctx, o.Request.Action.String(), o.Request.Channel, outcomeCode(o), o.Duration)
}

func (d *Dispatcher) publishOutcome(h *Handle, o Outcome) {
	d.mu.RLock()
	hub := d.telemetryHub
	d.mu.RUnlock()
	if hub == nil {
		return
	}

	data := map[string]interface{}{
		"batchId": h.ID(),
		"channel": o.Request.Channel,
		"action":  o.Request.Action.String(),
		"ts":      time.Now().UTC().Format(time.RFC3339),
	}

	eventType := "commandSent"
	switch o.Status {
	case StatusSuccess:
		data["startedAt"] = o.StartedAt.UTC().Format(time.RFC3339Nano)
		data["durationMs"] = o.Duration.Milliseconds()
	case StatusFailed:
		eventType = "commandFailed"
		data["code"] = outcomeCode(o)
		data["error"] = o.Err.Error()
	case StatusCancelled:
		eventType = "commandCancelled"
	}

	// Telemetry is best effort; a full buffer must not stall the worker.
	_ = hub.PublishChannel(o.Request.Channel, telemetry.Event{Type: eventType, Data: data})
}

func (d *Dispatcher) publishBatchCompleted(h *Handle) {
	d.mu.RLock()
	hub := d.telemetryHub
	d.mu.RUnlock()
	if hub == nil {
		return
	}

	counts := h.Counts()
	_ = hub.Publish(telemetry.Event{
		Type: "batchCompleted",
		Data: map[string]interface{}{
			"batchId":   h.ID(),
			"total":     h.Len(),
			"succeeded": counts[StatusSuccess],
			"failed":    counts[StatusFailed],
			"cancelled": counts[StatusCancelled],
			"ts":        time.Now().UTC().Format(time.RFC3339),
		},
	})
}
