package transport

import (
	"sync"

	"github.com/statuspulse/statuspulse/pkg/log"
)

// Hub tracks the connected clients and routes outbound frames to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  log.Logger
}

// NewHub creates an empty hub.
func NewHub(logger log.Logger) *Hub {
	if logger == nil {
		logger = log.Nop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger.With(log.String("component", "hub")),
	}
}

// add registers a client, closing any previous connection under the same id.
func (h *Hub) add(c *Client) {
	h.mu.Lock()
	prev := h.clients[c.id]
	h.clients[c.id] = c
	total := len(h.clients)
	h.mu.Unlock()

	if prev != nil {
		prev.closeSend()
	}
	h.logger.Info("Client joined",
		log.String("client_id", c.id),
		log.Int("total", total))
}

// remove drops a client if it is still the registered connection for its id.
func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	current, ok := h.clients[c.id]
	if ok && current == c {
		delete(h.clients, c.id)
	}
	total := len(h.clients)
	h.mu.Unlock()

	if ok && current == c {
		h.logger.Info("Client left",
			log.String("client_id", c.id),
			log.Int("total", total))
	}
}

// get returns the client for an id, if connected.
func (h *Hub) get(clientID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[clientID]
	return c, ok
}

// Broadcast queues a frame to every connected client. Clients whose send
// buffer is full are skipped rather than blocked on.
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.enqueue(data) {
			h.logger.Warn("Dropped broadcast frame for slow client",
				log.String("client_id", c.id))
		}
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll closes every client's send channel, unblocking their write pumps.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		c.closeSend()
	}
}
