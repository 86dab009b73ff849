package report

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nicktill/damwatch/pkg/config"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// No Origin header means a non-browser client.
		return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
	},
	ReadBufferSize:  config.WSReadBufferSize,
	WriteBufferSize: config.WSWriteBufferSize,
}

// client serialises writes to one connection; gorilla allows a single
// concurrent writer.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
	return c.conn.WriteMessage(messageType, data)
}

// Hub pushes finished reports to connected websocket clients. A client
// that connects after a run receives the latest report straight away.
type Hub struct {
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}

	latest []byte
	logger *slog.Logger
	mu     sync.RWMutex
}

// NewHub creates a hub. Call Run to start it.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client, config.WSChannelBuffer),
		unregister: make(chan *client, config.WSChannelBuffer),
		broadcast:  make(chan []byte, config.WSBroadcastBuffer),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run is the hub's main loop; it returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				c.conn.Close()
			}
			h.clients = make(map[*client]bool)
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			count := len(h.clients)
			latest := h.latest
			h.mu.Unlock()
			h.logger.Debug("websocket client connected", "clients", count)
			if latest != nil {
				h.send(c, latest)
			}
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.conn.Close()
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("websocket client disconnected", "clients", count)
		case message := <-h.broadcast:
			// Writes happen outside the lock; Emit must never wait on a client.
			h.mu.RLock()
			targets := make([]*client, 0, len(h.clients))
			for c := range h.clients {
				targets = append(targets, c)
			}
			h.mu.RUnlock()

			var failed []*client
			for _, c := range targets {
				if !h.send(c, message) {
					failed = append(failed, c)
				}
			}

			// Drop failed clients here; sending on unregister from the
			// loop itself could block.
			if len(failed) > 0 {
				h.mu.Lock()
				for _, c := range failed {
					delete(h.clients, c)
					c.conn.Close()
				}
				h.mu.Unlock()
			}
		}
	}
}

func (h *Hub) send(c *client, message []byte) bool {
	if err := c.write(websocket.TextMessage, message); err != nil {
		h.logger.Warn("websocket write failed", "error", err)
		return false
	}
	return true
}

// Emit implements Sink by broadcasting the report. A full broadcast
// buffer drops the message rather than blocking the run.
func (h *Hub) Emit(_ context.Context, r *Report) error {
	message, err := json.Marshal(r)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.latest = message
	h.mu.Unlock()

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping report", "run_id", r.RunID)
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the request and keeps the connection alive
// until the client goes away.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		ticker := time.NewTicker(config.WSPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.write(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	defer func() {
		cancel()
		select {
		case h.unregister <- c:
		case <-h.done:
		}
	}()

	conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket error", "error", err)
			}
			return
		}
	}
}
