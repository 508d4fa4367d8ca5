package control

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/roadcare/vigil/internal/events"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 256
)

// Message is the websocket wire frame. Event broadcasts use the event
// name as the type.
type Message struct {
	Type      string `json:"type"`
	Payload   any    `json:"payload,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan Message
}

// Hub fans monitoring events out to connected websocket clients. A slow
// client loses messages rather than stalling the bus.
type Hub struct {
	logger   *zap.SugaredLogger
	instance string
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*wsClient
	closed  bool
}

func NewHub(instance string, logger *zap.SugaredLogger) *Hub {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Hub{
		logger:   logger,
		instance: instance,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*wsClient),
	}
}

// Attach subscribes the hub to every bus event. The disposer detaches it.
func (h *Hub) Attach(bus *events.Bus) func() {
	return bus.SubscribeAll(func(env events.Envelope) {
		h.Broadcast(Message{
			Type:      string(env.Name),
			Payload:   env.Payload,
			Timestamp: env.At.UnixMilli(),
		})
	})
}

// ServeHTTP upgrades the connection and pumps messages until the client
// leaves or the hub closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}

	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		clientID = "client-" + uuid.NewString()[:8]
	}
	c := &wsClient{id: clientID, conn: conn, send: make(chan Message, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[clientID] = c
	h.mu.Unlock()
	h.logger.Infow("websocket client connected", "client", clientID)

	c.send <- Message{
		Type:      "welcome",
		Timestamp: time.Now().UnixMilli(),
		Payload: map[string]any{
			"message":  "connected to vigil agent",
			"instance": h.instance,
			"clientId": clientID,
		},
	}

	go h.writePump(c)
	h.readPump(c)

	h.mu.Lock()
	delete(h.clients, clientID)
	h.mu.Unlock()
	h.logger.Infow("websocket client disconnected", "client", clientID)
}

func (h *Hub) readPump(c *wsClient) {
	defer c.conn.Close()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				h.logger.Warnw("websocket read failed", "client", c.id, "error", err)
			}
			return
		}
		if msg.Type == "ping" {
			h.trySend(c, Message{Type: "pong", Timestamp: time.Now().UnixMilli()})
		}
	}
}

func (h *Hub) writePump(c *wsClient) {
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
			if err := c.conn.WriteJSON(msg); err != nil {
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

// Broadcast queues msg for every connected client.
func (h *Hub) Broadcast(msg Message) {
	h.mu.Lock()
	targets := make([]*wsClient, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		h.trySend(c, msg)
	}
}

func (h *Hub) trySend(c *wsClient, msg Message) {
	select {
	case c.send <- msg:
	default:
		h.logger.Debugw("websocket send buffer full, message dropped", "client", c.id)
	}
}

// ClientCount reports connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = make(map[string]*wsClient)
	h.mu.Unlock()

	for _, c := range clients {
		close(c.send)
		c.conn.Close()
	}
	if len(clients) > 0 {
		h.logger.Infow("websocket clients disconnected", "count", len(clients))
	}
}
