package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/buildloop/buildloop/internal/domain"
	"github.com/buildloop/buildloop/internal/logging"
	"github.com/buildloop/buildloop/internal/ports"
)

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	sendBuffer    = 256
	writeDeadline = 10 * time.Second
)

// Hub fans project events out to websocket subscribers.
// Delivery is at-most-once: a subscriber whose buffer is full is dropped.
type Hub struct {
	clients  map[string]map[*client]struct{}
	closed   bool
	mu       sync.RWMutex
	upgrader websocket.Upgrader
}

type client struct {
	conn      *websocket.Conn
	hub       *Hub
	once      sync.Once
	projectID string
	send      chan []byte
}

// Verify interface compliance at compile time
var _ ports.Broadcaster = (*Hub)(nil)

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Broadcast implements ports.Broadcaster
func (h *Hub) Broadcast(_ context.Context, projectID string, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.Type, err)
	}

	// Sends happen under the read lock so remove cannot close a channel mid-send
	var slow []*client
	h.mu.RLock()
	for c := range h.clients[projectID] {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		logging.Logger.Warn("Dropping slow websocket subscriber", "project_id", projectID)
		h.remove(c)
	}
	return nil
}

// Subscribers returns the number of connections watching a project
func (h *Hub) Subscribers(projectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[projectID])
}

// ServeHTTP upgrades GET /ws?project_id=<id> to a subscription
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")
	if projectID == "" {
		http.Error(w, "project_id is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Logger.Warn("Websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		conn:      conn,
		hub:       h,
		projectID: projectID,
		send:      make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	if h.clients[projectID] == nil {
		h.clients[projectID] = make(map[*client]struct{})
	}
	h.clients[projectID][c] = struct{}{}
	h.mu.Unlock()

	logging.Logger.Debug("Websocket subscriber connected", "project_id", projectID)

	go c.writePump()
	go c.readPump()
}

// Close disconnects every subscriber
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*client
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.Unlock()

	for _, c := range all {
		h.remove(c)
	}
}

func (h *Hub) remove(c *client) {
	c.once.Do(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set := h.clients[c.projectID]; set != nil {
			delete(set, c)
			if len(set) == 0 {
				delete(h.clients, c.projectID)
			}
		}
		close(c.send)
	})
}

// readPump discards client frames and detects disconnects
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Logger.Debug("Websocket read error", "project_id", c.projectID, "error", err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
