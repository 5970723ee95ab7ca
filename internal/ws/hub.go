package ws

import (
	"encoding/json"
	"sync"
)

// Client is one websocket connection of an authenticated user.
type Client struct {
	UserID uint
	Role   string
	Send   chan []byte
	Hub    *Hub // set so Close() can unregister
	mu     sync.Mutex
	closed bool
}

func NewClient(userID uint, role string, buffer int) *Client {
	return &Client{UserID: userID, Role: role, Send: make(chan []byte, buffer)}
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.Hub != nil {
		c.Hub.unregister(c)
	}
	close(c.Send)
}

// trySend queues data without blocking; slow or closed clients miss messages.
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// Hub tracks live connections per user.
type Hub struct {
	mu sync.RWMutex
	// userID -> clients (one user can have multiple connections)
	byUser map[uint]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{byUser: make(map[uint]map[*Client]struct{})}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.Hub = h
	if h.byUser[c.UserID] == nil {
		h.byUser[c.UserID] = make(map[*Client]struct{})
	}
	h.byUser[c.UserID][c] = struct{}{}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m := h.byUser[c.UserID]; m != nil {
		delete(m, c)
		if len(m) == 0 {
			delete(h.byUser, c.UserID)
		}
	}
}

// BroadcastToUser sends payload as JSON to every connection of userID and
// returns how many accepted it.
func (h *Hub) BroadcastToUser(userID uint, payload interface{}) int {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0
	}
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.byUser[userID]))
	for c := range h.byUser[userID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	sent := 0
	for _, c := range clients {
		if c.trySend(data) {
			sent++
		}
	}
	return sent
}

func (h *Hub) ConnectionCount(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID])
}
