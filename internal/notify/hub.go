package notify

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// Alert is the frame pushed to connected admin dashboards.
type Alert struct {
	Type    string    `json:"type"`
	Subject string    `json:"subject"`
	Body    string    `json:"body,omitempty"`
	At      time.Time `json:"at"`
}

type feedConn struct {
	userID int64
	conn   *websocket.Conn
	mu     sync.Mutex
}

// Hub tracks admin websocket connections. One admin may have several tabs
// open, so connections are keyed by the socket rather than the user.
type Hub struct {
	connections map[*websocket.Conn]*feedConn
	mutex       sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		connections: make(map[*websocket.Conn]*feedConn),
	}
}

func (h *Hub) Register(userID int64, conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.connections[conn] = &feedConn{userID: userID, conn: conn}
}

func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, exists := h.connections[conn]; exists {
		_ = conn.Close()
		delete(h.connections, conn)
	}
}

// Broadcast writes the alert to every connection and returns how many
// received it. Connections that fail the write are dropped.
func (h *Hub) Broadcast(alert Alert) int {
	h.mutex.RLock()
	targets := make([]*feedConn, 0, len(h.connections))
	for _, fc := range h.connections {
		targets = append(targets, fc)
	}
	h.mutex.RUnlock()

	delivered := 0
	for _, fc := range targets {
		fc.mu.Lock()
		_ = fc.conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := fc.conn.WriteJSON(alert)
		fc.mu.Unlock()
		if err != nil {
			h.Unregister(fc.conn)
			continue
		}
		delivered++
	}
	return delivered
}

func (h *Hub) Count() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return len(h.connections)
}

func (h *Hub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for conn := range h.connections {
		_ = conn.Close()
		delete(h.connections, conn)
	}
}
