package command

import (
	"context"
	"errors"
	"time"

	"github.com/radio-control/rtsbridge/internal/telemetry"
)

// DispatcherPort defines the minimal interface the API needs from the dispatcher.
type DispatcherPort interface {
	Submit(ctx context.Context, requests ...Request) (*Handle, error)
	AwaitCompletion(h *Handle, timeout time.Duration) ([]Outcome, error)
	Clear() int
	Flush(ctx context.Context) error
	State() WorkerState
	Pending() int
}

// AuditLogger interface for writing audit records.
type AuditLogger interface {
	LogAction(ctx context.Context, action string, channel string, result string, latency time.Duration)
}

// TelemetryPublisher is the subset of telemetry.Hub the dispatcher uses.
type TelemetryPublisher interface {
	Publish(event telemetry.Event) error
	PublishChannel(channel string, event telemetry.Event) error
}

// ChannelResolver maps a caller-facing alias to the encoder's channel identifier.
type ChannelResolver interface {
	Resolve(name string) (string, bool)
}

var (
	_ DispatcherPort     = (*Dispatcher)(nil)
	_ TelemetryPublisher = (*telemetry.Hub)(nil)
)

// ErrInvalidRequest indicates an empty batch or a malformed request. Nothing is queued.
var ErrInvalidRequest = errors.New("INVALID_REQUEST")

// ErrTimeout indicates AwaitCompletion gave up before the batch finished.
var ErrTimeout = errors.New("TIMEOUT")

// ErrCancelled is recorded for requests dropped by Clear or Shutdown before they started.
var ErrCancelled = errors.New("CANCELLED")

// ErrShutdown indicates the queue no longer accepts work.
var ErrShutdown = errors.New("SHUTDOWN")

type submitterKey struct{}

// WithSubmitter tags ctx with the identity recorded against submitted batches.
func WithSubmitter(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, submitterKey{}, name)
}

// Submitter returns the identity set by WithSubmitter, or "".
func Submitter(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	name, _ := ctx.Value(submitterKey{}).(string)
	return name
}
