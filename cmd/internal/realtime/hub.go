package realtime

import (
	"log/slog"
	"sync"
)

// Hub indexes live clients by session id so a session can be ended on every
// socket it holds.
type Hub struct {
	log *slog.Logger

	mu        sync.RWMutex
	bySession map[string]map[*Client]struct{}
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:       log,
		bySession: make(map[string]map[*Client]struct{}),
	}
}

// Register tracks c. Anonymous clients (empty SessionID) are not tracked.
func (h *Hub) Register(c *Client) {
	if c == nil || c.SessionID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.bySession[c.SessionID]
	if !ok {
		set = make(map[*Client]struct{})
		h.bySession[c.SessionID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) Unregister(c *Client) {
	if c == nil || c.SessionID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.bySession[c.SessionID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.bySession, c.SessionID)
	}
}

// SessionEnded revokes every socket held by sessionID.
func (h *Hub) SessionEnded(sessionID, reason string) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.bySession[sessionID]))
	for c := range h.bySession[sessionID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Revoke(reason)
	}
	if len(clients) > 0 {
		h.log.Info("ws.session.ended", "session_id", sessionID, "reason", reason, "sockets", len(clients))
	}
}

// Count returns the number of tracked sockets.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, set := range h.bySession {
		n += len(set)
	}
	return n
}
