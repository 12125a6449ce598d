// Package realtime forwards event bus traffic to external observers: browser
// dashboards over WebSocket and other processes over Redis pub/sub.
package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"botfleet-api/internal/events"
	"botfleet-api/internal/logging"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

// Config holds WebSocket hub settings.
type Config struct {
	HeartbeatInterval time.Duration
	ClientBuffer      int
	BusBuffer         int
}

// control is a hub-originated message that is not a bus event.
type control struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type clientMessage struct {
	Type string `json:"type"`
}

type client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

// Hub broadcasts every bus event to all connected WebSocket clients. Slow
// clients are disconnected instead of stalling the others.
type Hub struct {
	sub      *events.Subscription
	upgrader websocket.Upgrader
	config   Config
	logger   *log.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewHub subscribes to bus and starts broadcasting.
func NewHub(bus *events.Bus, config Config, logger *log.Logger) *Hub {
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = 30 * time.Second
	}
	if config.ClientBuffer <= 0 {
		config.ClientBuffer = 256
	}
	if config.BusBuffer <= 0 {
		config.BusBuffer = 1024
	}
	h := &Hub{
		sub: bus.Subscribe("websocket", config.BusBuffer),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		config:  config,
		logger:  logging.Component(logger, "WebSocket"),
		clients: make(map[*client]struct{}),
		done:    make(chan struct{}),
	}
	h.wg.Add(1)
	go h.run()
	return h
}

func (h *Hub) run() {
	defer h.wg.Done()
	for {
		select {
		case ev, ok := <-h.sub.C():
			if !ok {
				return
			}
			msg, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("failed to encode event", "type", ev.Type, "err", err)
				continue
			}
			h.broadcast(msg)
		case <-h.done:
			return
		}
	}
}

func (h *Hub) broadcast(msg []byte) {
	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow client", "remote", c.conn.RemoteAddr())
		h.unregister(c)
	}
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", "err", err)
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, h.config.ClientBuffer)}

	h.mu.Lock()
	select {
	case <-h.done:
		h.mu.Unlock()
		conn.Close()
		return
	default:
	}
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("client connected", "remote", conn.RemoteAddr(), "clients", total)
	c.enqueue(control{Type: "connected", Data: map[string]int{"clients": total}, Timestamp: time.Now().UTC()})

	go c.writePump()
	go c.readPump()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	total := len(h.clients)
	h.mu.Unlock()

	c.closeOnce.Do(func() { close(c.send) })
	if ok {
		h.logger.Info("client disconnected", "clients", total)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close unsubscribes from the bus and disconnects every client.
func (h *Hub) Close() {
	h.stopOnce.Do(func() {
		h.mu.Lock()
		close(h.done)
		list := make([]*client, 0, len(h.clients))
		for c := range h.clients {
			list = append(list, c)
		}
		h.mu.Unlock()

		h.sub.Close()
		h.wg.Wait()
		for _, c := range list {
			h.unregister(c)
		}
		h.logger.Info("closed", "clients", len(list))
	})
}

// enqueue sends a control message to c unless it was unregistered.
func (c *client) enqueue(v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// readPump answers application pings and keeps the read deadline alive on pong.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	wait := 2 * c.hub.config.HeartbeatInterval
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(wait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("client read error", "err", err)
			}
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.hub.logger.Warn("failed to parse client message", "err", err)
			continue
		}
		switch msg.Type {
		case "ping":
			c.enqueue(control{Type: "pong", Timestamp: time.Now().UTC()})
		default:
			c.hub.logger.Debug("unknown client message", "type", msg.Type)
		}
	}
}

// writePump is the only writer on the connection.
func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.config.HeartbeatInterval)
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
