package server

import (
	"context"
	"sync"
	"time"

	"github.com/cadre-oss/agentmem/internal/event"
	"github.com/cadre-oss/agentmem/internal/telemetry"
)

// SSEEvent is sent to connected clients.
type SSEEvent struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Scope     string                 `json:"scope,omitempty"`
	Agent     string                 `json:"agent,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Client is a connected SSE client.
type Client struct {
	ID     string
	Agent  string // empty = subscribe to all
	Events chan SSEEvent
	cancel context.CancelFunc
}

// Broker manages SSE client connections and broadcasts memory events.
// It implements event.Hook so it plugs into the store's event bus.
type Broker struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *telemetry.Logger
}

// NewBroker creates a new SSE broker.
func NewBroker(logger *telemetry.Logger) *Broker {
	return &Broker{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// Subscribe adds a new SSE client. The returned Client's Events channel
// receives events until the context is cancelled or CloseAll is called.
func (b *Broker) Subscribe(ctx context.Context, clientID, agent string) *Client {
	ctx, cancel := context.WithCancel(ctx)
	client := &Client{
		ID:     clientID,
		Agent:  agent,
		Events: make(chan SSEEvent, 64),
		cancel: cancel,
	}

	b.mu.Lock()
	b.clients[clientID] = client
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.clients, clientID)
		close(client.Events)
		b.mu.Unlock()
	}()

	return client
}

// Broadcast sends an event to all matching clients.
func (b *Broker) Broadcast(ev SSEEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, client := range b.clients {
		// Project-scope events concern every agent.
		if client.Agent != "" && ev.Agent != "" && client.Agent != ev.Agent {
			continue
		}
		select {
		case client.Events <- ev:
		default:
			// Drop if client buffer is full
			b.logger.Warn("Dropping SSE event for slow client", "client", client.ID)
		}
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// CloseAll disconnects every client.
func (b *Broker) CloseAll() {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, c := range b.clients {
		c.cancel()
	}
}

// --- event.Hook interface ---

func (b *Broker) Name() string { return "sse-broker" }

func (b *Broker) Matches(_ event.EventType) bool { return true }

func (b *Broker) IsBlocking() bool { return false }

func (b *Broker) Handle(ev event.Event) error {
	data := make(map[string]interface{}, len(ev.Data))
	for k, v := range ev.Data {
		if k == "entries" {
			continue
		}
		data[k] = v
	}
	b.Broadcast(SSEEvent{
		Type:      string(ev.Type),
		Timestamp: ev.Timestamp,
		Scope:     ev.String("scope"),
		Agent:     ev.String("agent"),
		Data:      data,
	})
	return nil
}
