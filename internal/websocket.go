package internal

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second // under pongWait with margin for transit
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Hub owns every live websocket connection. It assigns each connection its
// unique id, feeds inbound frames to the session handler, and implements
// Sender: direct sends by connection id and room broadcasts resolved
// through the registry.
type Hub struct {
	registry *Registry
	handler  *Handler
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]*Conn // connID -> Conn
}

// Conn is one websocket connection with its buffered outbound queue.
type Conn struct {
	ID   string
	ws   *websocket.Conn
	send chan []byte
	hub  *Hub

	closeOnce sync.Once
}

// NewHub creates a hub. Attach the session handler before serving.
func NewHub(registry *Registry, logger *slog.Logger) *Hub {
	return &Hub{
		registry: registry,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Origin policy belongs to the deployment reverse proxy.
				return true
			},
		},
		conns: make(map[string]*Conn),
	}
}

// Attach binds the session handler. Split from NewHub because handler and
// hub reference each other.
func (hub *Hub) Attach(handler *Handler) {
	hub.handler = handler
}

// ServeWS upgrades an HTTP request, assigns the connection id, and starts
// the read/write pumps. The client learns its id from the first frame.
func (hub *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	conn := &Conn{
		ID:   uuid.NewString(),
		ws:   ws,
		send: make(chan []byte, sendBufferSize),
		hub:  hub,
	}
	hub.register(conn)

	go conn.writePump()
	go conn.readPump()

	hub.Send(conn.ID, NewEnvelope(TypeConnected, ConnectedEvent{ConnID: conn.ID}))
	hub.logger.Info("websocket connected", "conn_id", conn.ID, "remote", r.RemoteAddr)
}

// Send queues an envelope to one connection. A connection whose buffer is
// full drops the message rather than stalling the room.
//
// The read lock is held across the channel send: the send queue is closed
// only under the write lock, so a racing disconnect can never close the
// channel between the lookup and the send. The send itself never blocks.
func (hub *Hub) Send(connID string, env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		hub.logger.Error("marshal outbound event failed", "type", env.Type, "error", err)
		return
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	conn, ok := hub.conns[connID]
	if !ok {
		return
	}

	select {
	case conn.send <- data:
	default:
		hub.logger.Warn("send buffer full, dropping event",
			"conn_id", connID,
			"type", env.Type)
	}
}

// Broadcast delivers an envelope to every occupant of a room.
func (hub *Hub) Broadcast(roomID string, env Envelope) {
	room, ok := hub.registry.Get(roomID)
	if !ok {
		return
	}
	for _, connID := range room.OccupantIDs() {
		hub.Send(connID, env)
	}
}

// Stop closes every connection. Used on server shutdown.
func (hub *Hub) Stop() {
	hub.mu.Lock()
	conns := make([]*Conn, 0, len(hub.conns))
	for _, conn := range hub.conns {
		conn.closeSend()
		conns = append(conns, conn)
	}
	hub.conns = make(map[string]*Conn)
	hub.mu.Unlock()

	for _, conn := range conns {
		conn.ws.Close()
	}
	hub.logger.Info("websocket hub stopped", "connections", len(conns))
}

// ConnectionCount reports live connections, for the stats endpoint.
func (hub *Hub) ConnectionCount() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.conns)
}

func (hub *Hub) register(conn *Conn) {
	hub.mu.Lock()
	hub.conns[conn.ID] = conn
	hub.mu.Unlock()
}

func (hub *Hub) unregister(conn *Conn) {
	hub.mu.Lock()
	if current, ok := hub.conns[conn.ID]; ok && current == conn {
		delete(hub.conns, conn.ID)
	}
	conn.closeSend()
	hub.mu.Unlock()
	conn.ws.Close()
}

// closeSend closes the outbound queue. Callers must hold the hub write
// lock so the close cannot race a Send on the same channel.
func (c *Conn) closeSend() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// readPump reads frames until the connection dies, then raises the
// disconnect notification. The read deadline is refreshed by pongs, so a
// silent peer is cut after pongWait.
func (c *Conn) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.hub.handler.HandleDisconnect(c.ID)
	}()

	c.ws.SetReadLimit(maxMessageSize)
	if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.hub.logger.Error("set read deadline failed", "conn_id", c.ID, "error", err)
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.hub.logger.Error("websocket read error", "conn_id", c.ID, "error", err)
			}
			return
		}
		if messageType == websocket.TextMessage {
			c.hub.handler.HandleMessage(c.ID, message)
		}
	}
}

// writePump drains the send queue and keeps the connection alive with
// periodic pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				// Hub closed the queue; say goodbye properly.
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Drain whatever else queued up while we were writing.
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.ws.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
