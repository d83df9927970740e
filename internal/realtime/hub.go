package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max connections per user
	maxConnsPerUser = 12
	// Max total connections
	maxTotalConns = 10000
)

// Hub owns all websocket connections on this instance and the topic registry
// that routes events to them.
type Hub struct {
	mu         sync.RWMutex
	conns      map[uint]map[*Client]struct{}
	totalConns int
	registry   *Registry
	shutdown   chan struct{}
	done       chan struct{}
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		conns:    make(map[uint]map[*Client]struct{}),
		registry: NewRegistry(),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "engagement hub" }

// Register a connection for a given userID. The client is automatically
// joined to its own user topic so personal events reach every device.
// Returns an error if connection limits are exceeded.
func (h *Hub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()

	if h.totalConns >= maxTotalConns {
		h.mu.Unlock()
		return nil, errors.New("server connection limit reached")
	}

	m, ok := h.conns[userID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[userID] = m
	}

	if len(m) >= maxConnsPerUser {
		h.mu.Unlock()
		return nil, errors.New("user connection limit reached")
	}

	client := NewClient(h, conn, userID)
	m[client] = struct{}{}
	h.totalConns++
	h.mu.Unlock()

	h.registry.Join(client, UserTopic(userID))

	return client, nil
}

// UnregisterClient removes the connection and drops all its subscriptions.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	if m, ok := h.conns[client.UserID]; ok {
		if _, exists := m[client]; exists {
			delete(m, client)
			h.totalConns--
		}
		if len(m) == 0 {
			delete(h.conns, client.UserID)
		}
	}
	h.mu.Unlock()

	h.registry.DropAll(client)
}

// Join subscribes the client to a topic.
func (h *Hub) Join(client *Client, t Topic) {
	h.registry.Join(client, t)
}

// Leave unsubscribes the client from a topic.
func (h *Hub) Leave(client *Client, t Topic) {
	h.registry.Leave(client, t)
}

// Subscribed reports whether the client is joined to the topic.
func (h *Hub) Subscribed(client *Client, t Topic) bool {
	return h.registry.Subscribed(client, t)
}

// Broadcast sends the message to every subscriber of the topic on this
// instance. Slow clients are skipped rather than blocking the fan-out.
func (h *Hub) Broadcast(t Topic, message []byte) {
	for _, c := range h.registry.Members(t) {
		c.TrySend(message)
	}
}

// SubscriberCount returns how many local clients follow the topic.
func (h *Hub) SubscriberCount(t Topic) int {
	return h.registry.Count(t)
}

// IsOnline reports whether a user has at least one active connection here.
func (h *Hub) IsOnline(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients, ok := h.conns[userID]
	return ok && len(clients) > 0
}

// Shutdown gracefully closes all websocket connections. The connection itself
// is only ever written by its write pump, so shutdown signals each client by
// closing its Send channel; the pump then writes the close frame and closes
// the socket, which in turn unblocks the read pump.
func (h *Hub) Shutdown(_ context.Context) error {
	close(h.shutdown)

	h.mu.Lock()
	for _, userConns := range h.conns {
		for client := range userConns {
			close(client.Send)
		}
	}
	h.conns = make(map[uint]map[*Client]struct{})
	h.totalConns = 0
	h.registry = NewRegistry()
	h.mu.Unlock()

	close(h.done)

	return nil
}
