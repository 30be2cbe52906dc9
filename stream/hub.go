// Package stream broadcasts localization session updates to websocket viewers.
package stream

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write a message to a viewer
	writeWait = 10 * time.Second
	// pongWait is the time allowed to read the next pong message from a viewer
	pongWait = 60 * time.Second
	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// viewers are served from anywhere
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is a single localization step sent to viewers
type Message struct {
	Step       int     `json:"step"`
	Time       float64 `json:"time"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Theta      float64 `json:"theta"`
	TruthX     float64 `json:"truth_x"`
	TruthY     float64 `json:"truth_y"`
	TruthTheta float64 `json:"truth_theta"`
	Error      float64 `json:"error"`
	Best       int     `json:"best"`
	Landmarks  string  `json:"landmarks"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans out broadcast messages to all connected viewers.
// Slow viewers whose buffers are full are disconnected.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	buffer     int
	count      atomic.Int64
	log        *slog.Logger
}

// NewHub creates new Hub with per viewer message buffer of the given size and returns it.
// If logger is nil hub logs are discarded.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 1
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, buffer),
		register:   make(chan *client),
		unregister: make(chan *client),
		buffer:     buffer,
		log:        logger,
	}
}

// Run dispatches hub messages until ctx is cancelled.
// It closes all viewer connections before returning.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for c := range h.clients {
			h.remove(c)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.clients[c] = true
			h.count.Add(1)
			h.log.Debug("viewer connected", "remote", c.conn.RemoteAddr().String())
		case c := <-h.unregister:
			if h.clients[c] {
				h.remove(c)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.log.Warn("dropping slow viewer", "remote", c.conn.RemoteAddr().String())
					h.remove(c)
				}
			}
		}
	}
}

func (h *Hub) remove(c *client) {
	delete(h.clients, c)
	close(c.send)
	h.count.Add(-1)
}

// Len returns the number of connected viewers
func (h *Hub) Len() int {
	return int(h.count.Load())
}

// Broadcast queues msg for delivery to all viewers.
// The message is dropped if the hub queue is full.
func (h *Hub) Broadcast(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn("hub queue full: dropping message")
	}
}

// Publish encodes v to JSON and broadcasts it to all viewers.
func (h *Hub) Publish(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(b)

	return nil
}

// ServeWS upgrades the HTTP connection to websocket and registers it as a new viewer.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "err", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, h.buffer)}

	select {
	case h.register <- c:
	case <-r.Context().Done():
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

// readPump discards viewer messages and unregisters the viewer once its connection fails.
func (h *Hub) readPump(c *client) {
	defer func() {
		// the hub may have stopped running
		select {
		case h.unregister <- c:
		case <-time.After(writeWait):
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump writes queued messages to the viewer and keeps the connection alive with pings.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
