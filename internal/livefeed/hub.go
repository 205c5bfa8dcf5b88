package livefeed

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pingInterval  = 20 * time.Second
	pongWait      = 60 * time.Second
	writeDeadline = 3 * time.Second
)

// Hub fans JSON events out to every connected WebSocket client. Register,
// unregister and broadcast all go through channels served by Run.
type Hub struct {
	clients    map[*websocket.Conn]struct{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan []byte
	upgrader   websocket.Upgrader
	count      atomic.Int32
	dropped    atomic.Uint64
	logger     *log.Logger
}

// NewHub allocates a hub. Call Run in a goroutine to start the event loop.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		panic("LiveFeedHub: logger cannot be nil")
	}
	return &Hub{
		clients:    make(map[*websocket.Conn]struct{}),
		register:   make(chan *websocket.Conn, 16),
		unregister: make(chan *websocket.Conn, 16),
		broadcast:  make(chan []byte, 256),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
	}
}

// Run serves the hub until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Store(int32(len(h.clients)))
			h.logger.Printf("LiveFeedHub: client %s connected", c.RemoteAddr())

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.logger.Printf("LiveFeedHub: client %s disconnected", c.RemoteAddr())
			}

		case msg := <-h.broadcast:
			h.writeAll(websocket.TextMessage, msg, writeDeadline)

		case <-ping.C:
			h.writeAll(websocket.PingMessage, nil, 2*time.Second)
		}
	}
}

func (h *Hub) writeAll(kind int, msg []byte, deadline time.Duration) {
	for c := range h.clients {
		_ = c.SetWriteDeadline(time.Now().Add(deadline))
		if err := c.WriteMessage(kind, msg); err != nil {
			h.drop(c)
		}
	}
}

func (h *Hub) drop(c *websocket.Conn) {
	delete(h.clients, c)
	h.count.Store(int32(len(h.clients)))
	_ = c.Close()
}

// Handler upgrades requests to WebSocket connections and registers them.
// Anything a client sends is read and discarded.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the error response.
			h.logger.Printf("LiveFeedHub: websocket upgrade failed: %v", err)
			return
		}
		h.register <- conn

		go func() {
			defer func() { h.unregister <- conn }()
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			conn.SetPongHandler(func(string) error {
				_ = conn.SetReadDeadline(time.Now().Add(pongWait))
				return nil
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	})
}

// BroadcastJSON queues v for every client. When the queue is full the
// message is dropped rather than blocking the caller.
func (h *Hub) BroadcastJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		h.logger.Printf("LiveFeedHub: failed to encode %T: %v", v, err)
		return
	}
	select {
	case h.broadcast <- b:
	default:
		h.dropped.Add(1)
	}
}

// Clients is the number of connected clients.
func (h *Hub) Clients() int { return int(h.count.Load()) }

// Dropped counts broadcasts lost to a full queue.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }
