package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/radio-control/rtsbridge/internal/adapter"
	"github.com/radio-control/rtsbridge/internal/audit"
	"github.com/radio-control/rtsbridge/internal/auth"
	"github.com/radio-control/rtsbridge/internal/command"
)

const apiV1 = "/api/v1"

// maxBodyBytes bounds POST bodies.
const maxBodyBytes = 64 << 10

// RegisterRoutes registers all v1 endpoints.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	m := s.authMiddleware
	guard := func(scope string, h http.HandlerFunc) http.HandlerFunc {
		return m.RequireAuth(m.RequireScope(scope)(h))
	}

	mux.HandleFunc(apiV1+"/health", s.handleHealth)
	mux.HandleFunc(apiV1+"/channels", guard(auth.ScopeRead, s.handleChannels))
	mux.HandleFunc(apiV1+"/channels/", guard(auth.ScopeRead, s.handleChannelByName))
	mux.HandleFunc(apiV1+"/commands", guard(auth.ScopeControl, s.handleCommands))
	mux.HandleFunc(apiV1+"/commands/clear", guard(auth.ScopeControl, s.handleClear))
	mux.HandleFunc(apiV1+"/telemetry", guard(auth.ScopeTelemetry, s.handleTelemetry))
}

// CommandBody is one entry of a POST /commands body.
type CommandBody struct {
	Channel string `json:"channel"`
	Action  string `json:"action"`
}

// SubmitBody is the POST /commands body.
type SubmitBody struct {
	Commands  []CommandBody `json:"commands"`
	Wait      bool          `json:"wait"`
	TimeoutMs int64         `json:"timeoutMs"`
}

// OutcomeView is the JSON form of a command.Outcome.
type OutcomeView struct {
	Channel    string         `json:"channel"`
	Action     adapter.Action `json:"action"`
	Status     command.Status `json:"status"`
	Code       string         `json:"code,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  *time.Time     `json:"startedAt,omitempty"`
	DurationMs int64          `json:"durationMs"`
}

func outcomeViews(outcomes []command.Outcome) []OutcomeView {
	views := make([]OutcomeView, len(outcomes))
	for i, o := range outcomes {
		v := OutcomeView{
			Channel:    o.Request.Channel,
			Action:     o.Request.Action,
			Status:     o.Status,
			DurationMs: o.Duration.Milliseconds(),
		}
		if !o.StartedAt.IsZero() {
			started := o.StartedAt.UTC()
			v.StartedAt = &started
		}
		switch o.Status {
		case command.StatusFailed:
			v.Code = adapter.Code(o.Err)
			v.Error = o.Err.Error()
		case command.StatusCancelled:
			v.Code = command.ErrCancelled.Error()
		}
		views[i] = v
	}
	return views
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}

	if s.dispatcher == nil {
		WriteError(w, http.StatusServiceUnavailable, "SERVICE_DEGRADED",
			"Dispatcher is not available", nil)
		return
	}

	state := s.dispatcher.State()
	health := map[string]interface{}{
		"status":    "ok",
		"uptimeSec": time.Since(s.startTime).Seconds(),
		"version":   Version,
		"worker":    state.String(),
		"pending":   s.dispatcher.Pending(),
		"auth":      s.authMiddleware.Enabled(),
	}

	if state == command.StateShuttingDown || state == command.StateStopped {
		health["status"] = "stopping"
		WriteError(w, http.StatusServiceUnavailable, "SERVICE_DEGRADED",
			"Dispatcher is shutting down", health)
		return
	}
	WriteSuccess(w, health)
}

// handleChannels handles GET /channels
func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	if s.channels == nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Channel registry not available", nil)
		return
	}
	WriteSuccess(w, s.channels.List())
}

// handleChannelByName handles GET /channels/{name}
func (s *Server) handleChannelByName(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	if s.channels == nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Channel registry not available", nil)
		return
	}

	name := strings.Trim(strings.TrimPrefix(r.URL.Path, apiV1+"/channels/"), "/")
	if name == "" || strings.Contains(name, "/") {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
		return
	}

	ch, err := s.channels.Lookup(name)
	if err != nil {
		WriteAPIError(w, err)
		return
	}
	WriteSuccess(w, ch)
}

// handleCommands handles POST /commands
func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}

	var body SubmitBody
	if err := decodeStrict(w, r, &body); err != nil {
		WriteAPIError(w, err)
		return
	}
	if body.TimeoutMs < 0 {
		WriteAPIError(w, fmt.Errorf("%w: timeoutMs must not be negative", command.ErrInvalidRequest))
		return
	}

	requests := make([]command.Request, len(body.Commands))
	for i, c := range body.Commands {
		action, err := adapter.ParseAction(c.Action)
		if err != nil {
			WriteAPIError(w, fmt.Errorf("%w: command %d: %w", command.ErrInvalidRequest, i, err))
			return
		}
		requests[i] = command.Request{Channel: strings.TrimSpace(c.Channel), Action: action}
	}

	if s.dispatcher == nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Dispatcher is not available", nil)
		return
	}

	ctx := command.WithSubmitter(r.Context(), subject(r))
	h, err := s.dispatcher.Submit(ctx, requests...)
	if err != nil {
		WriteAPIError(w, err)
		return
	}

	if !body.Wait {
		WriteSuccessStatus(w, http.StatusAccepted, map[string]interface{}{
			"batchId": h.ID(),
			"queued":  h.Len(),
		})
		return
	}

	timeout := s.awaitTimeout
	if body.TimeoutMs > 0 {
		timeout = time.Duration(body.TimeoutMs) * time.Millisecond
	}

	outcomes, err := s.dispatcher.AwaitCompletion(h, timeout)
	result := map[string]interface{}{
		"batchId":  h.ID(),
		"outcomes": outcomeViews(outcomes),
	}
	if errors.Is(err, command.ErrTimeout) {
		WriteError(w, http.StatusGatewayTimeout, "TIMEOUT", "Timed out waiting for the batch to finish", result)
		return
	}
	if err != nil {
		WriteAPIError(w, err)
		return
	}
	WriteSuccess(w, result)
}

// handleClear handles POST /commands/clear
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}
	if s.dispatcher == nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Dispatcher is not available", nil)
		return
	}

	cleared := s.dispatcher.Clear()
	if s.auditor != nil {
		ctx := audit.WithUser(r.Context(), subject(r))
		s.auditor.LogControlAction(ctx, "clear", map[string]interface{}{"cleared": cleared}, nil)
	}
	WriteSuccess(w, map[string]interface{}{"cleared": cleared})
}

// handleTelemetry handles GET /telemetry
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	if s.telemetryHub == nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE",
			"Telemetry service not available", nil)
		return
	}

	if err := s.telemetryHub.Subscribe(r.Context(), w, r); err != nil {
		// Headers may already be out; only a refused subscription can still be reported.
		WriteAPIError(w, err)
	}
}

// decodeStrict decodes exactly one JSON object with no unknown fields.
func decodeStrict(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("%w: trailing data after JSON object", ErrBadRequest)
	}
	return nil
}

func subject(r *http.Request) string {
	if c := auth.GetClaimsFromRequest(r); c != nil {
		return c.Subject
	}
	return ""
}
