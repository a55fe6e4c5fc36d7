package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radio-control/rtsbridge/internal/adapter"
	"github.com/radio-control/rtsbridge/internal/adapter/fake"
	"github.com/radio-control/rtsbridge/internal/adapter/somfy"
	"github.com/radio-control/rtsbridge/internal/audit"
	"github.com/radio-control/rtsbridge/internal/channel"
	"github.com/radio-control/rtsbridge/internal/command"
	"github.com/radio-control/rtsbridge/internal/config"
	"github.com/radio-control/rtsbridge/internal/telemetry"
)

type controlRecord struct {
	user   string
	action string
	params map[string]interface{}
}

type recordingAuditor struct {
	mu      sync.Mutex
	records []controlRecord
}

func (a *recordingAuditor) LogControlAction(ctx context.Context, action string, params map[string]interface{}, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, controlRecord{user: audit.UserFromContext(ctx), action: action, params: params})
}

func (a *recordingAuditor) snapshot() []controlRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]controlRecord(nil), a.records...)
}

type stack struct {
	transport  *fake.Transport
	dispatcher *command.Dispatcher
	registry   *channel.Registry
	hub        *telemetry.Hub
	auditor    *recordingAuditor
	server     *Server
	http       *httptest.Server
}

func newStack(t *testing.T, configure ...func(*Server)) *stack {
	t.Helper()

	enc, err := somfy.NewEncoder(2)
	require.NoError(t, err)

	s := &stack{
		transport: fake.NewTransport(),
		registry:  channel.NewRegistry(enc.MaxChannel()),
		hub:       telemetry.NewHub(telemetry.DefaultConfig()),
		auditor:   &recordingAuditor{},
	}
	require.NoError(t, s.registry.Register("kitchen", 3))

	q := command.NewPacingQueue(enc, s.transport,
		command.WithMinInterval(0),
		command.WithOutcomeHook(func(h *command.Handle, o command.Outcome, _ bool) {
			s.registry.Record(o.Request.Channel, o.Request.Action.String(), o.Status.String(), o.StartedAt)
		}),
	)
	s.dispatcher = command.NewDispatcher(q, enc)
	s.dispatcher.SetChannelResolver(s.registry)
	s.dispatcher.SetTelemetryHub(s.hub)

	s.server = NewServer(s.dispatcher, s.registry, s.hub, config.Defaults().Server)
	s.server.SetAuditLogger(s.auditor)
	s.server.SetAwaitTimeout(5 * time.Second)
	for _, fn := range configure {
		fn(s.server)
	}
	s.http = httptest.NewServer(s.server.Handler())

	t.Cleanup(func() {
		s.http.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.dispatcher.Shutdown(ctx)
		s.hub.Stop()
	})
	return s
}

func (s *stack) do(t *testing.T, method, path, body string, header http.Header) (int, Response) {
	t.Helper()
	req, err := http.NewRequest(method, s.http.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.NotEmpty(t, env.CorrelationID)
	return resp.StatusCode, env
}

func dataMap(t *testing.T, v interface{}) map[string]interface{} {
	t.Helper()
	m, ok := v.(map[string]interface{})
	require.True(t, ok, "expected object, got %T", v)
	return m
}

func TestHealth(t *testing.T) {
	s := newStack(t)

	status, env := s.do(t, http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", env.Result)

	data := dataMap(t, env.Data)
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, "idle", data["worker"])
	assert.EqualValues(t, 0, data["pending"])
	assert.Equal(t, Version, data["version"])
}

func TestHealthAfterShutdown(t *testing.T) {
	s := newStack(t)
	require.NoError(t, s.dispatcher.Shutdown(context.Background()))

	status, env := s.do(t, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "SERVICE_DEGRADED", env.Code)
	assert.Equal(t, "stopped", dataMap(t, env.Details)["worker"])
}

func TestSubmitAndWait(t *testing.T) {
	s := newStack(t)

	body := `{"commands":[{"channel":"3","action":"up"},{"channel":"1","action":"DOWN"}],"wait":true}`
	status, env := s.do(t, http.MethodPost, "/api/v1/commands", body, nil)
	require.Equal(t, http.StatusOK, status)

	data := dataMap(t, env.Data)
	assert.NotEmpty(t, data["batchId"])
	outcomes, ok := data["outcomes"].([]interface{})
	require.True(t, ok)
	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.Equal(t, "success", dataMap(t, o)["status"])
	}
	assert.Equal(t, "up", dataMap(t, outcomes[0])["action"])
	assert.Equal(t, []string{"0103U", "0101D"}, s.transport.Frames())

	ch, err := s.registry.Lookup("1")
	require.NoError(t, err)
	assert.Equal(t, "down", ch.LastAction)
	assert.Equal(t, "success", ch.LastStatus)
}

func TestSubmitByAlias(t *testing.T) {
	s := newStack(t)

	status, _ := s.do(t, http.MethodPost, "/api/v1/commands",
		`{"commands":[{"channel":"Kitchen","action":"s"}],"wait":true}`, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"0103S"}, s.transport.Frames())
}

func TestSubmitWithoutWait(t *testing.T) {
	s := newStack(t)

	status, env := s.do(t, http.MethodPost, "/api/v1/commands",
		`{"commands":[{"channel":"2","action":"up"},{"channel":"2","action":"stop"}]}`, nil)
	require.Equal(t, http.StatusAccepted, status)

	data := dataMap(t, env.Data)
	assert.NotEmpty(t, data["batchId"])
	assert.EqualValues(t, 2, data["queued"])

	require.NoError(t, s.dispatcher.Flush(context.Background()))
	assert.Equal(t, []string{"0102U", "0102S"}, s.transport.Frames())
}

func TestSubmitUnknownChannelRecordsFailure(t *testing.T) {
	s := newStack(t)

	status, env := s.do(t, http.MethodPost, "/api/v1/commands",
		`{"commands":[{"channel":"17","action":"up"},{"channel":"4","action":"up"}],"wait":true}`, nil)
	require.Equal(t, http.StatusOK, status)

	outcomes := dataMap(t, env.Data)["outcomes"].([]interface{})
	first := dataMap(t, outcomes[0])
	assert.Equal(t, "failed", first["status"])
	assert.Equal(t, adapter.ErrUnknownChannel.Error(), first["code"])
	assert.Equal(t, "success", dataMap(t, outcomes[1])["status"])
	assert.Equal(t, []string{"0104U"}, s.transport.Frames())
}

func TestSubmitInvalid(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"empty batch", `{"commands":[]}`, "INVALID_REQUEST"},
		{"missing commands", `{}`, "INVALID_REQUEST"},
		{"bad action", `{"commands":[{"channel":"1","action":"open"}]}`, "INVALID_REQUEST"},
		{"malformed channel", `{"commands":[{"channel":"abc","action":"up"}]}`, "INVALID_REQUEST"},
		{"negative timeout", `{"commands":[{"channel":"1","action":"up"}],"timeoutMs":-1}`, "INVALID_REQUEST"},
		{"unknown field", `{"commands":[],"priority":1}`, "BAD_REQUEST"},
		{"trailing data", `{"commands":[]} {}`, "BAD_REQUEST"},
		{"not json", `up 3`, "BAD_REQUEST"},
	}

	s := newStack(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := s.do(t, http.MethodPost, "/api/v1/commands", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, "error", env.Result)
			assert.Equal(t, tt.wantCode, env.Code)
		})
	}
	assert.Zero(t, s.transport.SendCount())
	assert.Zero(t, s.dispatcher.Pending())
}

func TestSubmitWaitTimeout(t *testing.T) {
	s := newStack(t)
	s.transport.Hold()
	t.Cleanup(s.transport.Release)

	status, env := s.do(t, http.MethodPost, "/api/v1/commands",
		`{"commands":[{"channel":"1","action":"up"}],"wait":true,"timeoutMs":50}`, nil)
	require.Equal(t, http.StatusGatewayTimeout, status)
	assert.Equal(t, "TIMEOUT", env.Code)

	details := dataMap(t, env.Details)
	outcomes := details["outcomes"].([]interface{})
	require.Len(t, outcomes, 1)
	assert.Equal(t, "pending", dataMap(t, outcomes[0])["status"])
}

func TestSubmitAfterShutdown(t *testing.T) {
	s := newStack(t)
	require.NoError(t, s.dispatcher.Shutdown(context.Background()))

	status, env := s.do(t, http.MethodPost, "/api/v1/commands",
		`{"commands":[{"channel":"1","action":"up"}]}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "UNAVAILABLE", env.Code)
}

func TestClear(t *testing.T) {
	s := newStack(t)
	s.transport.Hold()
	t.Cleanup(s.transport.Release)

	status, _ := s.do(t, http.MethodPost, "/api/v1/commands",
		`{"commands":[{"channel":"1","action":"up"},{"channel":"2","action":"up"},{"channel":"3","action":"up"}]}`, nil)
	require.Equal(t, http.StatusAccepted, status)

	select {
	case <-s.transport.Started():
	case <-time.After(5 * time.Second):
		t.Fatal("first send never started")
	}

	status, env := s.do(t, http.MethodPost, "/api/v1/commands/clear", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, dataMap(t, env.Data)["cleared"])

	records := s.auditor.snapshot()
	require.Len(t, records, 1)
	assert.Equal(t, "clear", records[0].action)
	assert.Equal(t, "anonymous", records[0].user)
	assert.Equal(t, 2, records[0].params["cleared"])
}

func TestChannels(t *testing.T) {
	s := newStack(t)

	status, env := s.do(t, http.MethodGet, "/api/v1/channels", "", nil)
	require.Equal(t, http.StatusOK, status)
	data := dataMap(t, env.Data)
	assert.EqualValues(t, 16, data["maxChannel"])
	items := data["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "3", dataMap(t, items[0])["number"])

	status, env = s.do(t, http.MethodGet, "/api/v1/channels/kitchen", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "3", dataMap(t, env.Data)["number"])

	status, env = s.do(t, http.MethodGet, "/api/v1/channels/garage", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	s := newStack(t)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/health"},
		{http.MethodDelete, "/api/v1/channels"},
		{http.MethodGet, "/api/v1/commands"},
		{http.MethodGet, "/api/v1/commands/clear"},
		{http.MethodPost, "/api/v1/telemetry"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			status, env := s.do(t, tt.method, tt.path, "", nil)
			assert.Equal(t, http.StatusMethodNotAllowed, status)
			assert.Equal(t, "METHOD_NOT_ALLOWED", env.Code)
		})
	}
}

func TestTelemetryStream(t *testing.T) {
	s := newStack(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.http.URL+"/api/v1/telemetry", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	events := make(chan string, 16)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := scanner.Text(); strings.HasPrefix(line, "event: ") {
				events <- strings.TrimPrefix(line, "event: ")
			}
		}
	}()

	waitEvent := func(want string) {
		t.Helper()
		timeout := time.After(5 * time.Second)
		for {
			select {
			case got, ok := <-events:
				require.True(t, ok, "stream closed before %s", want)
				if got == want {
					return
				}
			case <-timeout:
				t.Fatalf("no %s event", want)
			}
		}
	}

	waitEvent("ready")
	status, _ := s.do(t, http.MethodPost, "/api/v1/commands",
		`{"commands":[{"channel":"5","action":"up"}]}`, nil)
	require.Equal(t, http.StatusAccepted, status)
	waitEvent("commandSent")
	waitEvent("batchCompleted")
}

func TestOutcomeViews(t *testing.T) {
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	views := outcomeViews([]command.Outcome{
		{Request: command.Request{Channel: "1", Action: adapter.ActionUp}, Status: command.StatusSuccess, StartedAt: started, Duration: 20 * time.Millisecond},
		{Request: command.Request{Channel: "2", Action: adapter.ActionDown}, Status: command.StatusFailed, Err: adapter.ErrTransport},
		{Request: command.Request{Channel: "3", Action: adapter.ActionStop}, Status: command.StatusCancelled, Err: command.ErrCancelled},
	})

	require.Len(t, views, 3)
	assert.Equal(t, started, *views[0].StartedAt)
	assert.EqualValues(t, 20, views[0].DurationMs)
	assert.Equal(t, "TRANSPORT_ERROR", views[1].Code)
	assert.Nil(t, views[1].StartedAt)
	assert.Equal(t, "CANCELLED", views[2].Code)

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(views[2]))
	assert.Contains(t, buf.String(), `"action":"stop"`)
	assert.Contains(t, buf.String(), `"status":"cancelled"`)
}
