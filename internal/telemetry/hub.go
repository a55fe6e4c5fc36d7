package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// GlobalStream is the buffer key for events not tied to a channel.
const GlobalStream = "global"

// ErrHubStopped is returned by Publish after Stop.
var ErrHubStopped = errors.New("UNAVAILABLE")

// Config sizes the hub's buffers and heartbeat.
type Config struct {
	EventBufferSize   int
	HeartbeatInterval time.Duration
	HeartbeatJitter   time.Duration
}

// DefaultConfig buffers 50 events per stream with a 15s heartbeat.
func DefaultConfig() Config {
	return Config{
		EventBufferSize:   50,
		HeartbeatInterval: 15 * time.Second,
		HeartbeatJitter:   2 * time.Second,
	}
}

// Event represents a telemetry event with SSE formatting.
type Event struct {
	ID      int64                  `json:"id,omitempty"`
	Type    string                 `json:"type"`
	Data    map[string]interface{} `json:"data"`
	Channel string                 `json:"channel,omitempty"`
}

func (e Event) stream() string {
	if e.Channel == "" {
		return GlobalStream
	}
	return e.Channel
}

// Client represents an SSE client connection.
type Client struct {
	ID      string
	Writer  http.ResponseWriter
	Context context.Context
	Cancel  context.CancelFunc
	LastID  int64
	Channel string // empty subscribes to every channel
	Events  chan Event

	dropped atomic.Int64
	mu      sync.Mutex // Protect Writer access
}

func (c *Client) wants(e Event) bool {
	return c.Channel == "" || e.Channel == "" || e.Channel == c.Channel
}

// Hub manages SSE telemetry distribution with per-channel buffering.
//
// Lock ordering: h.mu before EventBuffer.mu. Buffers are never removed from
// h.buffers, so a buffer reference stays valid after h.mu is released.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]*Client
	streamIDs map[string]*int64
	buffers   map[string]*EventBuffer
	snapshot  func() map[string]interface{}

	config Config

	heartbeatTicker *time.Ticker
	stopHeartbeat   chan struct{}

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// EventBuffer is a bounded FIFO of recent events for one stream.
type EventBuffer struct {
	mu       sync.RWMutex
	events   []Event
	capacity int
}

// NewHub creates a new telemetry hub.
func NewHub(cfg Config) *Hub {
	if cfg.EventBufferSize <= 0 {
		cfg.EventBufferSize = DefaultConfig().EventBufferSize
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultConfig().HeartbeatInterval
	}

	return &Hub{
		clients:   make(map[string]*Client),
		streamIDs: make(map[string]*int64),
		buffers:   make(map[string]*EventBuffer),
		config:    cfg,
		done:      make(chan struct{}),
	}
}

// SetSnapshotSource sets the function whose result is sent in the ready event.
func (h *Hub) SetSnapshotSource(fn func() map[string]interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshot = fn
}

// Subscribe streams events to w until ctx ends or the hub stops. The
// "channel" query parameter narrows the stream to one channel; global events
// are always delivered. Last-Event-ID replays that stream's buffer.
func (h *Hub) Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientCtx, cancel := context.WithCancel(ctx)

	lastEventID := int64(0)
	if lastIDStr := r.Header.Get("Last-Event-ID"); lastIDStr != "" {
		if id, err := strconv.ParseInt(lastIDStr, 10, 64); err == nil {
			lastEventID = id
		}
	}

	client := &Client{
		ID:      uuid.NewString(),
		Writer:  w,
		Context: clientCtx,
		Cancel:  cancel,
		LastID:  lastEventID,
		Channel: r.URL.Query().Get("channel"),
		Events:  make(chan Event, 100),
	}

	h.mu.Lock()
	h.clients[client.ID] = client
	if h.heartbeatTicker == nil {
		h.startHeartbeat()
	}
	h.mu.Unlock()
	defer h.unregisterClient(client.ID)

	if err := h.sendReadyEvent(client); err != nil {
		return fmt.Errorf("failed to send ready event: %w", err)
	}

	if lastEventID > 0 {
		if err := h.replayEvents(client, lastEventID); err != nil {
			return fmt.Errorf("failed to replay events: %w", err)
		}
	}

	h.handleClient(client)
	return nil
}

// Publish assigns an ID, buffers the event and delivers it to interested clients.
// Slow clients drop events instead of blocking the publisher.
func (h *Hub) Publish(event Event) error {
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}

	if event.ID == 0 {
		event.ID = h.nextEventID(event.stream())
	}
	if event.Type != "heartbeat" {
		h.bufferEvent(event)
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		if client.wants(event) {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range clients {
		select {
		case <-client.Context.Done():
		case client.Events <- event:
		default:
			if n := client.dropped.Add(1); n == 1 || n%100 == 0 {
				log.Printf("telemetry: client %s is slow, dropped %d events", client.ID, n)
			}
		}
	}
	return nil
}

// PublishChannel publishes an event for a specific channel.
func (h *Hub) PublishChannel(channel string, event Event) error {
	event.Channel = channel
	return h.Publish(event)
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Buffer returns the buffer for stream, or nil if nothing was published on it.
func (h *Hub) Buffer(stream string) *EventBuffer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.buffers[stream]
}

func (h *Hub) sendReadyEvent(client *Client) error {
	h.mu.RLock()
	snapshotFn := h.snapshot
	h.mu.RUnlock()

	snapshot := map[string]interface{}{}
	if snapshotFn != nil {
		snapshot = snapshotFn()
	}

	return h.sendEventToClient(client, Event{
		Type: "ready",
		Data: map[string]interface{}{
			"channel":  client.Channel,
			"snapshot": snapshot,
		},
	})
}

// replayEvents sends buffered events newer than lastEventID for the client's stream.
func (h *Hub) replayEvents(client *Client, lastEventID int64) error {
	stream := client.Channel
	if stream == "" {
		stream = GlobalStream
	}

	buffer := h.Buffer(stream)
	if buffer == nil {
		return nil
	}

	for _, event := range buffer.GetEventsAfter(lastEventID) {
		if err := h.sendEventToClient(client, event); err != nil {
			return err
		}
	}
	return nil
}

// sendEventToClient writes one event in SSE framing and flushes.
func (h *Hub) sendEventToClient(client *Client, event Event) error {
	client.mu.Lock()
	defer client.mu.Unlock()

	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	if event.ID > 0 {
		if _, err := fmt.Fprintf(client.Writer, "id: %d\n", event.ID); err != nil {
			return fmt.Errorf("failed to write event ID: %w", err)
		}
	}
	if _, err := fmt.Fprintf(client.Writer, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	if flusher, ok := client.Writer.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

// handleClient delivers queued events until the client or hub goes away.
func (h *Hub) handleClient(client *Client) {
	for {
		select {
		case <-client.Context.Done():
			return
		case <-h.done:
			return
		case event := <-client.Events:
			if err := h.sendEventToClient(client, event); err != nil {
				return
			}
		}
	}
}

func (h *Hub) unregisterClient(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, exists := h.clients[clientID]
	if !exists {
		return
	}
	client.Cancel()
	delete(h.clients, clientID)

	if len(h.clients) == 0 && h.heartbeatTicker != nil {
		h.heartbeatTicker.Stop()
		h.heartbeatTicker = nil
		close(h.stopHeartbeat)
		h.stopHeartbeat = nil
	}
}

// nextEventID returns the next monotonic event ID for stream.
func (h *Hub) nextEventID(stream string) int64 {
	h.mu.RLock()
	counter, exists := h.streamIDs[stream]
	h.mu.RUnlock()

	if exists {
		return atomic.AddInt64(counter, 1)
	}

	h.mu.Lock()
	counter, exists = h.streamIDs[stream]
	if !exists {
		counter = new(int64)
		h.streamIDs[stream] = counter
	}
	h.mu.Unlock()

	return atomic.AddInt64(counter, 1)
}

func (h *Hub) bufferEvent(event Event) {
	stream := event.stream()

	h.mu.Lock()
	buffer, exists := h.buffers[stream]
	if !exists {
		buffer = NewEventBuffer(h.config.EventBufferSize)
		h.buffers[stream] = buffer
	}
	h.mu.Unlock()

	buffer.AddEvent(event)
}

// startHeartbeat must be called with h.mu held and no ticker running.
func (h *Hub) startHeartbeat() {
	interval := h.config.HeartbeatInterval + h.config.HeartbeatJitter/2

	h.heartbeatTicker = time.NewTicker(interval)
	h.stopHeartbeat = make(chan struct{})

	ticker := h.heartbeatTicker
	stop := h.stopHeartbeat

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for {
			select {
			case <-ticker.C:
				h.sendHeartbeat()
			case <-stop:
				return
			case <-h.done:
				return
			}
		}
	}()
}

func (h *Hub) sendHeartbeat() {
	_ = h.Publish(Event{
		Type: "heartbeat",
		Data: map[string]interface{}{
			"ts": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// Stop disconnects every client and stops the heartbeat. Safe to call twice.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		for _, client := range h.clients {
			client.Cancel()
		}
		if h.heartbeatTicker != nil {
			h.heartbeatTicker.Stop()
			h.heartbeatTicker = nil
			close(h.stopHeartbeat)
			h.stopHeartbeat = nil
		}
		h.mu.Unlock()

		h.wg.Wait()
	})
}

// NewEventBuffer creates a new event buffer with the specified capacity.
func NewEventBuffer(capacity int) *EventBuffer {
	return &EventBuffer{
		events:   make([]Event, 0, capacity),
		capacity: capacity,
	}
}

// AddEvent appends event, evicting the oldest when full.
func (b *EventBuffer) AddEvent(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, event)
	if len(b.events) > b.capacity {
		b.events = b.events[1:]
	}
}

// GetEventsAfter returns buffered events with ID greater than lastID.
func (b *EventBuffer) GetEventsAfter(lastID int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []Event
	for _, event := range b.events {
		if event.ID > lastID {
			result = append(result, event)
		}
	}
	return result
}

// GetCapacity returns the buffer capacity.
func (b *EventBuffer) GetCapacity() int {
	return b.capacity
}

// GetSize returns the current buffer size.
func (b *EventBuffer) GetSize() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}
