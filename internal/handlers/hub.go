// internal/handlers/hub.go
package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/coup/internal/game"
	"github.com/sirupsen/logrus"
)

// messageWriter is the write half of a websocket connection.
type messageWriter interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

const (
	sendBuffer   = 64
	writeTimeout = 3 * time.Second
)

// client is one registered socket. Writes drain from send in order on the client's own goroutine.
type client struct {
	id       string
	seq      uint64
	roomCode string
	playerID uuid.UUID
	w        messageWriter
	send     chan []byte
	done     chan struct{}
	kick     sync.Once
}

// Hub tracks live sockets by connection id and by room code, and implements game.Transport.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	rooms   map[string]map[string]struct{}
	seq     uint64
	logger  *logrus.Logger
}

var _ game.Transport = (*Hub)(nil)

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*client),
		rooms:   make(map[string]map[string]struct{}),
		logger:  logger,
	}
}

// Register adds a socket for a player in a room and returns its connection id.
func (h *Hub) Register(roomCode string, playerID uuid.UUID, w messageWriter) string {
	c := &client{
		id:       uuid.NewString(),
		roomCode: roomCode,
		playerID: playerID,
		w:        w,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
	}
	h.mu.Lock()
	h.seq++
	c.seq = h.seq
	h.clients[c.id] = c
	if _, ok := h.rooms[roomCode]; !ok {
		h.rooms[roomCode] = make(map[string]struct{})
	}
	h.rooms[roomCode][c.id] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)
	return c.id
}

// Unregister removes a socket. Queued messages are discarded.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	c, ok := h.clients[connID]
	if ok {
		delete(h.clients, connID)
		if members := h.rooms[c.roomCode]; members != nil {
			delete(members, connID)
			if len(members) == 0 {
				delete(h.rooms, c.roomCode)
			}
		}
	}
	h.mu.Unlock()
	if ok {
		close(c.done)
	}
}

// ConnsForRoom maps each connected player of a room to their most recently registered connection id.
func (h *Hub) ConnsForRoom(roomCode string) map[uuid.UUID]string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	newest := make(map[uuid.UUID]*client, len(h.rooms[roomCode]))
	for id := range h.rooms[roomCode] {
		c := h.clients[id]
		if cur, ok := newest[c.playerID]; !ok || c.seq > cur.seq {
			newest[c.playerID] = c
		}
	}
	out := make(map[uuid.UUID]string, len(newest))
	for playerID, c := range newest {
		out[playerID] = c.id
	}
	return out
}

// SendTo queues an event for one connection. Unknown ids are ignored.
func (h *Hub) SendTo(connID string, ev game.Event) {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	h.enqueue(c, ev.Bytes())
}

// BroadcastToRoom queues an event for every connection joined to the room.
func (h *Hub) BroadcastToRoom(roomCode string, ev game.Event) {
	data := ev.Bytes()
	h.mu.RLock()
	targets := make([]*client, 0, len(h.rooms[roomCode]))
	for id := range h.rooms[roomCode] {
		targets = append(targets, h.clients[id])
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.enqueue(c, data)
	}
}

// enqueue never blocks the caller. A client too slow to drain its buffer is closed, so its read
// loop ends and the engine treats the player as disconnected instead of waiting on a prompt it
// never received.
func (h *Hub) enqueue(c *client, data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.kick.Do(func() {
			h.logger.WithFields(logrus.Fields{"room": c.roomCode, "conn": c.id}).Warn("send buffer full, closing slow connection")
			go c.w.Close(SlowConsumerError, "Too many unsent messages.")
		})
	}
}

func (h *Hub) writeLoop(c *client) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := c.w.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				h.logger.WithError(err).WithFields(logrus.Fields{"room": c.roomCode, "conn": c.id}).Warn("failed to write message")
			}
		}
	}
}
