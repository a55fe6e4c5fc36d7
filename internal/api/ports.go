package api

import (
	"context"
	"net/http"

	"github.com/radio-control/rtsbridge/internal/audit"
	"github.com/radio-control/rtsbridge/internal/channel"
	"github.com/radio-control/rtsbridge/internal/command"
	"github.com/radio-control/rtsbridge/internal/telemetry"
)

// CommandPort is the part of the dispatcher the API drives.
type CommandPort = command.DispatcherPort

// TelemetryPort defines the minimal interface the API needs from the telemetry hub.
type TelemetryPort interface {
	Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error
}

// ChannelReadPort exposes the channel registry read side.
type ChannelReadPort interface {
	List() channel.ChannelList
	Lookup(name string) (channel.Channel, error)
}

// ControlAuditor records operator actions that are not transmissions.
type ControlAuditor interface {
	LogControlAction(ctx context.Context, action string, params map[string]interface{}, err error)
}

var (
	_ CommandPort     = (*command.Dispatcher)(nil)
	_ TelemetryPort   = (*telemetry.Hub)(nil)
	_ ChannelReadPort = (*channel.Registry)(nil)
	_ ControlAuditor  = (*audit.Logger)(nil)
)
