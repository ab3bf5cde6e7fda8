package ws

import (
	"sync"

	"go.uber.org/zap"
)

// Hub tracks connected clients and conversation rooms. Joining a room
// only subscribes the socket; authorization happens in the engines,
// which compute audiences from persisted participant lists.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client         // connID -> client
	rooms   map[string]map[string]bool // conversationID -> set of connID

	log *zap.SugaredLogger
}

func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]bool),
		log:     log,
	}
}

func (h *Hub) AddClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
}

// RemoveClient drops the connection from the client table and from
// every room it joined.
func (h *Hub) RemoveClient(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, connID)
	for room, members := range h.rooms {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) JoinRoom(conversationID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[conversationID] == nil {
		h.rooms[conversationID] = make(map[string]bool)
	}
	h.rooms[conversationID][connID] = true
}

func (h *Hub) LeaveRoom(conversationID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[conversationID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, conversationID)
		}
	}
}

// Broadcast delivers the event to every connection joined to the
// conversation's room.
func (h *Hub) Broadcast(conversationID, event string, payload any) {
	frame := Encode(event, payload)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for connID := range h.rooms[conversationID] {
		if c, ok := h.clients[connID]; ok {
			if !c.Enqueue(frame) {
				h.log.Warnw("dropping frame for slow consumer", "conn", connID, "event", event)
			}
		}
	}
}

// BroadcastExcept is Broadcast minus one connection, used for relays
// that must not echo back to the sender (typing indicators).
func (h *Hub) BroadcastExcept(conversationID, exceptConnID, event string, payload any) {
	frame := Encode(event, payload)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for connID := range h.rooms[conversationID] {
		if connID == exceptConnID {
			continue
		}
		if c, ok := h.clients[connID]; ok {
			c.Enqueue(frame)
		}
	}
}

// Send delivers the event to one connection. A no-op when the
// connection is gone, which makes mid-operation disconnects harmless.
func (h *Hub) Send(connID, event string, payload any) {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	c.Enqueue(Encode(event, payload))
}

// SendAll delivers the event to every connected session.
func (h *Hub) SendAll(event string, payload any) {
	frame := Encode(event, payload)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.Enqueue(frame)
	}
}

// SendAllExcept is SendAll minus one connection, used for announcements
// the announcing socket should not hear itself.
func (h *Hub) SendAllExcept(exceptConnID, event string, payload any) {
	frame := Encode(event, payload)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for connID, c := range h.clients {
		if connID == exceptConnID {
			continue
		}
		c.Enqueue(frame)
	}
}
