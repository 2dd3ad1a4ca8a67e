package realtime

import (
	"log/slog"
	"sync"

	realtimeTypes "github.com/ricochet1k/ptymux/pkg/realtime"
)

// Hub tracks connected clients and their broadcast groups. A client that
// cannot keep up with its queue is dropped.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{clients: make(map[string]*Client), logger: logger}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID()] = client
}

func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	client, ok := h.clients[clientID]
	if ok {
		delete(h.clients, clientID)
	}
	h.mu.Unlock()

	if ok {
		client.Close()
	}
}

func (h *Hub) client(clientID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[clientID]
	return client, ok
}

// Emit sends msg to a single client.
func (h *Hub) Emit(clientID string, msg realtimeTypes.ServerEnvelope) bool {
	client, ok := h.client(clientID)
	if !ok {
		return false
	}
	if client.Queue(msg) {
		return true
	}
	h.logger.Warn("dropping slow client", "conn", clientID)
	h.Unregister(clientID)
	return false
}

// Broadcast sends msg to every client in group.
func (h *Hub) Broadcast(group string, msg realtimeTypes.ServerEnvelope) {
	for _, client := range h.members(group) {
		if client.Queue(msg) {
			continue
		}
		h.logger.Warn("dropping slow client", "conn", client.ID(), "group", group)
		h.Unregister(client.ID())
	}
}

func (h *Hub) members(group string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0)
	for _, client := range h.clients {
		if client.InGroup(group) {
			out = append(out, client)
		}
	}
	return out
}

// Members returns the number of clients in group.
func (h *Hub) Members(group string) int {
	return len(h.members(group))
}

func (h *Hub) Join(clientID, group string) bool {
	client, ok := h.client(clientID)
	if !ok {
		return false
	}
	client.Join(group)
	return true
}

func (h *Hub) Leave(clientID, group string) bool {
	client, ok := h.client(clientID)
	if !ok {
		return false
	}
	client.Leave(group)
	return true
}

func (h *Hub) Groups(clientID string) []string {
	client, ok := h.client(clientID)
	if !ok {
		return nil
	}
	return client.Groups()
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
}

// LeaveAll removes every client from group.
func (h *Hub) LeaveAll(group string) {
	for _, client := range h.members(group) {
		client.Leave(group)
	}
}
