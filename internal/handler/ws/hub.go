package ws

import (
	"sync"

	"go.uber.org/zap"
)

// Room name builders. Every connection is auto-joined to its user, school
// and role rooms so fan-out targets are addressable without bookkeeping on
// the sending side.
func UserRoom(userID string) string { return "user:" + userID }

func SchoolRoom(schoolID string) string { return "school:" + schoolID }

func RoleRoom(schoolID, role string) string { return "role:" + schoolID + ":" + role }

// Hub tracks connected clients and their room membership. One connection per
// user: a new connection for a user supersedes and closes the previous one.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[*Client]struct{}
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.clients[client.UserID]; ok {
		h.removeLocked(existing)
		if existing.Conn != nil {
			existing.Conn.Close()
		}
	}

	h.clients[client.UserID] = client
	h.joinLocked(client, UserRoom(client.UserID))
	h.joinLocked(client, SchoolRoom(client.SchoolID))
	h.joinLocked(client, RoleRoom(client.SchoolID, client.Role))
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Only drop the entry if it still points at this client; a superseding
	// connection may already own the slot.
	if current, ok := h.clients[client.UserID]; ok && current == client {
		h.removeLocked(client)
		close(client.Send)
		h.logger.Info("Client disconnected",
			zap.String("client_id", client.ID),
			zap.String("user_id", client.UserID))
	}
}

func (h *Hub) removeLocked(client *Client) {
	delete(h.clients, client.UserID)
	for room := range client.rooms {
		h.leaveRoomLocked(client, room)
	}
}

func (h *Hub) joinLocked(client *Client, room string) {
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][client] = struct{}{}
	client.rooms[room] = struct{}{}
}

func (h *Hub) leaveRoomLocked(client *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(client.rooms, room)
}

// Join adds the client to an extra room beyond the defaults
func (h *Hub) Join(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joinLocked(client, room)
}

// SendToUser pushes one event to the user's connection, if any. The result
// reports reachability only; delivery state is tracked elsewhere.
func (h *Hub) SendToUser(userID string, event string, payload interface{}) bool {
	h.mu.RLock()
	client, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	client.SendEvent(event, payload)
	return true
}

// BroadcastToRoom pushes one event to every member of a room. The exclude
// client, if non-nil, is skipped; relays use it to avoid echoing back to the
// sender.
func (h *Hub) BroadcastToRoom(room string, event string, payload interface{}, exclude *Client) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for client := range h.rooms[room] {
		if client == exclude {
			continue
		}
		client.SendEvent(event, payload)
		sent++
	}
	return sent
}

// BroadcastToSchool pushes one event to every connection in the school room
func (h *Hub) BroadcastToSchool(schoolID string, event string, payload interface{}) int {
	return h.BroadcastToRoom(SchoolRoom(schoolID), event, payload, nil)
}

// InRoom reports whether the client is a member of the room
func (h *Hub) InRoom(client *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := client.rooms[room]
	return ok
}

// Connected reports whether the user has a live connection
func (h *Hub) Connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
