package live

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Broadcaster delivers presence events to every subscribed client.
type Broadcaster interface {
	Broadcast(event string, data interface{})
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub fans presence events out to all connected websocket clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

type event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

func (h *Hub) Broadcast(eventName string, data interface{}) {
	payload, err := json.Marshal(event{Event: eventName, Data: data})
	if err != nil {
		logrus.WithError(err).Error("live: event marshal failed")
		return
	}

	h.mu.RLock()
	subscribers := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		subscribers = append(subscribers, c)
	}
	h.mu.RUnlock()

	for _, c := range subscribers {
		if err := c.write(payload); err != nil {
			h.remove(c)
		}
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.conn.Close()
	}
}

// HandleWebSocket upgrades the connection and keeps it subscribed until
// the client disconnects. Clients only listen; inbound messages are
// discarded.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Error("live: websocket upgrade failed")
		return
	}

	c := &client{conn: conn}
	h.add(c)

	go func() {
		defer h.remove(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logrus.WithError(err).Debug("live: websocket closed")
				}
				return
			}
		}
	}()
}
