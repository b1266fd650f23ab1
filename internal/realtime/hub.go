package realtime

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event is the wire envelope pushed to connected clients.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans events out to websocket clients. Connections register either
// under a user ID (personal notifications) or a topic such as a course
// feed. Slow clients get dropped messages, never a blocked publisher.
type Hub struct {
	mu     sync.RWMutex
	users  map[string]map[*websocket.Conn]*client
	topics map[string]map[*websocket.Conn]*client
	logger *zap.Logger
}

// NewHub constructs an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		users:  make(map[string]map[*websocket.Conn]*client),
		topics: make(map[string]map[*websocket.Conn]*client),
		logger: logger,
	}
}

// RegisterUser attaches a connection to a user's personal stream and
// starts its pumps. The connection is owned by the hub from here on.
func (h *Hub) RegisterUser(userID string, conn *websocket.Conn) {
	c := &client{conn: conn, send: make(chan []byte, 256)}
	h.mu.Lock()
	if _, ok := h.users[userID]; !ok {
		h.users[userID] = make(map[*websocket.Conn]*client)
	}
	h.users[userID][conn] = c
	h.mu.Unlock()

	go h.readPump(conn, func() { h.UnregisterUser(userID, conn) })
	go h.writePump(c)
}

// RegisterTopic attaches a connection to a shared topic stream.
func (h *Hub) RegisterTopic(topic string, conn *websocket.Conn) {
	c := &client{conn: conn, send: make(chan []byte, 256)}
	h.mu.Lock()
	if _, ok := h.topics[topic]; !ok {
		h.topics[topic] = make(map[*websocket.Conn]*client)
	}
	h.topics[topic][conn] = c
	h.mu.Unlock()

	go h.readPump(conn, func() { h.UnregisterTopic(topic, conn) })
	go h.writePump(c)
}

// UnregisterUser detaches a connection from a user's stream.
func (h *Hub) UnregisterUser(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.users[userID]; ok {
		if c, ok := clients[conn]; ok {
			close(c.send)
			delete(clients, conn)
		}
		if len(clients) == 0 {
			delete(h.users, userID)
		}
	}
}

// UnregisterTopic detaches a connection from a topic stream.
func (h *Hub) UnregisterTopic(topic string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.topics[topic]; ok {
		if c, ok := clients[conn]; ok {
			close(c.send)
			delete(clients, conn)
		}
		if len(clients) == 0 {
			delete(h.topics, topic)
		}
	}
}

// NotifyUser pushes an event to every connection a user has open.
func (h *Hub) NotifyUser(userID string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("marshal realtime event", zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.users[userID] {
		select {
		case c.send <- data:
		default:
		}
	}
}

// BroadcastTopic pushes an event to every subscriber of a topic.
func (h *Hub) BroadcastTopic(topic string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("marshal realtime event", zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.topics[topic] {
		select {
		case c.send <- data:
		default:
		}
	}
}

// UserConnections reports how many connections a user currently holds.
func (h *Hub) UserConnections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

func (h *Hub) readPump(conn *websocket.Conn, unregister func()) {
	defer unregister()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	defer func() {
		c.conn.WriteMessage(websocket.CloseMessage, []byte{})
		c.conn.Close()
	}()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}
