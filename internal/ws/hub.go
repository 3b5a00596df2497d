package ws

import (
	"log"
	"sync"
)

// Hub tracks which clients sit in which chat room. Rooms are identified by
// the external room id; a room exists exactly while it has clients.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]bool
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Client]bool)}
}

func (h *Hub) Join(roomID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.rooms[roomID]
	if !ok {
		clients = make(map[*Client]bool)
		h.rooms[roomID] = clients
	}
	clients[c] = true
	log.Printf("Hub.Join: user=%d room=%s clients=%d", c.UserID, roomID, len(clients))
}

func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.rooms[c.RoomID]
	if !ok {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.rooms, c.RoomID)
	}
	log.Printf("Hub.Leave: user=%d room=%s clients=%d", c.UserID, c.RoomID, len(clients))
}

// SendToRoom queues data for every client in the room. Slow clients are
// skipped rather than blocking the sender.
func (h *Hub) SendToRoom(roomID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[roomID] {
		select {
		case c.Send <- data:
		default:
			log.Printf("Hub.SendToRoom: dropping message for slow user=%d room=%s", c.UserID, roomID)
		}
	}
}

// SendToUser queues data for one user's connections in the room.
func (h *Hub) SendToUser(roomID string, userID int64, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[roomID] {
		if c.UserID != userID {
			continue
		}
		select {
		case c.Send <- data:
		default:
			log.Printf("Hub.SendToUser: dropping message for slow user=%d room=%s", userID, roomID)
		}
	}
}

// Broadcast queues data for every connected client.
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, clients := range h.rooms {
		for c := range clients {
			select {
			case c.Send <- data:
			default:
			}
		}
	}
}

// RoomCount reports how many rooms currently have clients.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}
