package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/randalmurphal/storyforge/internal/events"
	"github.com/randalmurphal/storyforge/internal/repository"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
)

// WSMessage is a client request: subscribe, unsubscribe or ping.
type WSMessage struct {
	Type  string `json:"type"`
	Topic string `json:"topic,omitempty"`
}

// WSValue is one observed value pushed to a subscriber. Kind names the
// stream within the topic, e.g. stories or connections.
type WSValue struct {
	Type  string    `json:"type"`
	Topic string    `json:"topic"`
	Kind  string    `json:"kind"`
	Data  any       `json:"data"`
	Time  time.Time `json:"time"`
}

// WSHandler manages WebSocket connections.
type WSHandler struct {
	upgrader    websocket.Upgrader
	repos       *repository.Bundle
	connections map[*websocket.Conn]*wsConnection
	mu          sync.RWMutex
	logger      *slog.Logger
}

// wsConnection tracks a single WebSocket connection.
type wsConnection struct {
	conn   *websocket.Conn
	mu     sync.Mutex // protects topic and cancel
	topic  string
	cancel context.CancelFunc
	send   chan []byte
	done   chan struct{}
}

// NewWSHandler creates a new WebSocket handler.
func NewWSHandler(repos *repository.Bundle, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		repos:       repos,
		connections: make(map[*websocket.Conn]*wsConnection),
		logger:      logger,
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &wsConnection{
		conn: conn,
		send: make(chan []byte, 256),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.connections[conn] = c
	h.mu.Unlock()

	go h.readPump(c)
	go h.writePump(c)
}

// readPump reads messages from the WebSocket connection.
func (h *WSHandler) readPump(c *wsConnection) {
	defer h.closeConnection(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("websocket read error", "error", err)
			}
			return
		}
		h.handleMessage(c, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (h *WSHandler) writePump(c *wsConnection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes incoming WebSocket messages.
func (h *WSHandler) handleMessage(c *wsConnection, data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.sendError(c, "invalid message format")
		return
	}

	switch msg.Type {
	case "subscribe":
		h.handleSubscribe(c, msg.Topic)
	case "unsubscribe":
		h.handleUnsubscribe(c)
		h.sendJSON(c, map[string]any{"type": "unsubscribed"})
	case "ping":
		h.sendJSON(c, map[string]any{"type": "pong"})
	default:
		h.sendError(c, "unknown message type: "+msg.Type)
	}
}

// handleSubscribe replaces the connection's subscription with topic. The
// current value of every stream in the topic is sent first, then one value
// per change.
func (h *WSHandler) handleSubscribe(c *wsConnection, topic string) {
	if topic == "" {
		h.sendError(c, "topic required for subscribe (use \"*\" for all projects)")
		return
	}
	h.handleUnsubscribe(c)

	ctx, cancel := context.WithCancel(context.Background())
	if !h.startStreams(ctx, c, topic) {
		cancel()
		h.sendError(c, "unknown topic: "+topic)
		return
	}

	c.mu.Lock()
	c.topic = topic
	c.cancel = cancel
	c.mu.Unlock()

	h.logger.Debug("websocket subscribed", "topic", topic)
	h.sendJSON(c, map[string]any{"type": "subscribed", "topic": topic})
}

// startStreams starts one forwarder per observe stream of topic.
func (h *WSHandler) startStreams(ctx context.Context, c *wsConnection, topic string) bool {
	if topic == events.GlobalTopic || topic == events.AllProjectsTopic {
		go forward(ctx, h, c, topic, "projects", h.repos.Projects.ObserveAll(ctx))
		return true
	}
	prefix, id, ok := strings.Cut(topic, ":")
	if !ok || id == "" {
		return false
	}
	switch prefix + ":" {
	case events.ProjectTopic(""):
		go forward(ctx, h, c, topic, "project", h.repos.Projects.Observe(ctx, id))
	case events.ContentTopic(""):
		go forward(ctx, h, c, topic, "stories", h.repos.Content.ObserveStories(ctx, id))
		go forward(ctx, h, c, topic, "scripts", h.repos.Content.ObserveScripts(ctx, id))
		go forward(ctx, h, c, topic, "storyboards", h.repos.Content.ObserveStoryboards(ctx, id))
	case events.CharactersTopic(""):
		go forward(ctx, h, c, topic, "characters", h.repos.Characters.Observe(ctx, id))
	case events.DistributionTopic(""):
		go forward(ctx, h, c, topic, "analytics", h.repos.Distribution.ObserveAnalytics(ctx, id))
		go forward(ctx, h, c, topic, "connections", h.repos.Distribution.ObserveConnectedPlatforms(ctx, id))
	default:
		return false
	}
	return true
}

// forward relays one observe stream until it ends or the connection closes.
func forward[T any](ctx context.Context, h *WSHandler, c *wsConnection, topic, kind string, values <-chan T) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case v, ok := <-values:
			if !ok {
				return
			}
			h.sendJSON(c, WSValue{Type: "value", Topic: topic, Kind: kind, Data: v, Time: time.Now()})
		}
	}
}

// handleUnsubscribe ends the connection's current subscription, if any.
func (h *WSHandler) handleUnsubscribe(c *wsConnection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
		c.topic = ""
	}
}

// closeConnection cleans up a WebSocket connection.
func (h *WSHandler) closeConnection(c *wsConnection) {
	h.mu.Lock()
	if _, exists := h.connections[c.conn]; !exists {
		h.mu.Unlock()
		return
	}
	delete(h.connections, c.conn)
	h.mu.Unlock()

	h.handleUnsubscribe(c)
	close(c.done)
	_ = c.conn.Close()
}

// sendJSON queues a JSON message, dropping it when the buffer is full.
func (h *WSHandler) sendJSON(c *wsConnection, data any) {
	msg, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("failed to marshal JSON", "error", err)
		return
	}
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		h.logger.Warn("websocket send buffer full, dropping message")
	}
}

// sendError sends an error message to a connection.
func (h *WSHandler) sendError(c *wsConnection, message string) {
	h.sendJSON(c, map[string]any{"type": "error", "error": message})
}

// ConnectionCount returns the number of active connections.
func (h *WSHandler) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Close closes all connections.
func (h *WSHandler) Close() {
	h.mu.RLock()
	conns := make([]*wsConnection, 0, len(h.connections))
	for _, c := range h.connections {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		h.closeConnection(c)
	}
}
