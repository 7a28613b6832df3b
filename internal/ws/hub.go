package ws

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

const sendBuffer = 256

// Client represents a connected WebSocket client.
type Client struct {
	conn    *websocket.Conn
	userID  string
	analyte string // empty receives every analyte
	send    chan Message
	logger  *zap.Logger
}

// view returns msg as this client should see it, or false when the
// client's analyte filter excludes it.
func (c *Client) view(msg Message) (Message, bool) {
	if c.analyte == "" || len(msg.analytes) == 0 {
		return msg, true
	}
	if !slices.Contains(msg.analytes, c.analyte) {
		return msg, false
	}
	if msg.narrow != nil {
		msg.Data = msg.narrow(c.analyte)
	}
	return msg, true
}

// Hub manages active WebSocket connections and broadcasts messages.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *zap.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	liveClients.Inc()
	h.logger.Debug("websocket client connected",
		zap.String("user_id", c.userID), zap.String("analyte", c.analyte))
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	if ok {
		liveClients.Dec()
	}
	h.logger.Debug("websocket client disconnected", zap.String("user_id", c.userID))
}

// Broadcast sends a message to every connected client whose filter matches.
// A client with a full buffer misses the message rather than blocking the
// publisher.
func (h *Hub) Broadcast(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		out, ok := c.view(msg)
		if !ok {
			continue
		}
		select {
		case c.send <- out:
		default:
			messagesDropped.Inc()
			h.logger.Warn("client send buffer full, dropping message",
				zap.String("user_id", c.userID), zap.String("type", string(msg.Type)))
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// writePump sends messages from the client's send channel to the WebSocket.
func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				// Closed by Unregister.
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, c.conn, msg)
			cancel()
			if err != nil {
				c.logger.Debug("websocket write error", zap.Error(err))
				return
			}
		}
	}
}

// readPump drains the connection until the client goes away. Clients never
// send anything meaningful.
func (c *Client) readPump(ctx context.Context) {
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}
