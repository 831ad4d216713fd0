package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/conneroisu/bundlr/internal/logging"
	"github.com/conneroisu/bundlr/internal/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Messages queued per client before it is dropped as too slow.
	clientBuffer = 64
)

// Client is one connected browser.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub fans build messages out to every connected client.
type Hub struct {
	clients    map[string]*Client
	mutex      sync.RWMutex
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	origins    []string
	recorder   metrics.Recorder
	logger     logging.Logger
}

// NewHub creates a hub. origins are the accepted Origin host patterns in
// addition to the request's own host.
func NewHub(origins []string, recorder metrics.Recorder, logger logging.Logger) *Hub {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 16),
		done:       make(chan struct{}),
		origins:    origins,
		recorder:   recorder,
		logger:     logger.WithComponent("websocket"),
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every connection.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		h.mutex.Lock()
		for id, client := range h.clients {
			delete(h.clients, id)
			close(client.send)
		}
		h.mutex.Unlock()
		h.recorder.SetClients(0)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client.id] = client
			count := len(h.clients)
			h.mutex.Unlock()
			h.recorder.SetClients(count)
			h.logger.Debug(ctx, "Client connected", "client_id", client.id, "total", count)

		case client := <-h.unregister:
			h.remove(ctx, client)

		case message := <-h.broadcast:
			var slow []*Client
			h.mutex.RLock()
			for _, client := range h.clients {
				select {
				case client.send <- message:
				default:
					slow = append(slow, client)
				}
			}
			h.mutex.RUnlock()
			for _, client := range slow {
				h.remove(ctx, client)
			}
		}
	}
}

func (h *Hub) remove(ctx context.Context, client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client.id]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client.id)
	close(client.send)
	count := len(h.clients)
	h.mutex.Unlock()
	h.recorder.SetClients(count)
	h.logger.Debug(ctx, "Client disconnected", "client_id", client.id, "total", count)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Broadcast sends msg to every client. It returns without sending once the
// hub has stopped.
func (h *Hub) Broadcast(kind string, msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- data:
		h.recorder.IncBroadcast(kind)
	case <-h.done:
	}
	return nil
}

// ServeHTTP upgrades the request and attaches a new client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "WebSocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client := &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, clientBuffer),
		hub:  h,
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	go client.writePump(ctx)
	client.readPump(ctx)
	cancel()
}

// readPump discards client messages and unregisters the client when the
// connection ends.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
	}()
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				c.hub.logger.Debug(ctx, "WebSocket read ended", "client_id", c.id, "error", err.Error())
			}
			return
		}
	}
}

// writePump writes queued messages and pings until the hub closes send.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
