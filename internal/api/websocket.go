package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The endpoint sits behind JWT admin auth; origin is not the gate.
		return true
	},
}

// ActivityEvent is one audit event pushed to connected admin dashboards
type ActivityEvent struct {
	Action   string    `json:"action"`
	Key      string    `json:"key"`
	DeviceID string    `json:"device_id,omitempty"`
	At       time.Time `json:"at"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// ActivityHub fans audit events out to connected websocket clients
type ActivityHub struct {
	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}
}

// NewActivityHub creates a new hub
func NewActivityHub() *ActivityHub {
	return &ActivityHub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
	}
}

// Run processes hub events until the context is cancelled
func (h *ActivityHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
				client.conn.Close()
			}
			return

		case client := <-h.register:
			h.clients[client] = true

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow client; drop it rather than block the hub.
					delete(h.clients, client)
					close(client.send)
				}
			}
		}
	}
}

// Publish broadcasts an event to all connected clients. It never blocks the
// caller; events are dropped when the hub buffer is full.
func (h *ActivityHub) Publish(event ActivityEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
	}
}

// add registers a client; it reports false when the hub has already stopped.
func (h *ActivityHub) add(client *wsClient) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// drop unregisters a client without blocking on a stopped hub.
func (h *ActivityHub) drop(client *wsClient) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// handleActivityWS upgrades the connection and streams audit events
// GET /ws/activity
func (s *Server) handleActivityWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, 64)}
	if !s.hub.add(client) {
		conn.Close()
		return
	}

	go func() {
		defer func() {
			s.hub.drop(client)
			conn.Close()
		}()
		for message := range client.send {
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		}
	}()

	// Drain reads so pings and close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.hub.drop(client)
				return
			}
		}
	}()
}
