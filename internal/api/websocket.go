package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-things/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-things/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-things/internal/thing"
)

// Frame types on the /api/v1/ws stream. Clients send watch, unwatch and
// ping; the server answers with ack, pong or error and pushes change.
const (
	FrameWatch   = "watch"
	FrameUnwatch = "unwatch"
	FramePing    = "ping"
	FramePong    = "pong"
	FrameAck     = "ack"
	FrameChange  = "change"
	FrameError   = "error"

	wsSendBufferSize = 256
)

// Frame is one JSON message on the stream, in either direction.
//
// A watch selects registry changes by Thing name and change kind; an empty
// list matches everything, so {"type":"watch"} follows every Thing. ID
// names the watch for a later unwatch and is generated when omitted. An
// unwatch without ID drops every watch of the connection.
type Frame struct {
	Type   string             `json:"type"`
	ID     string             `json:"id,omitempty"`
	Things []string           `json:"things,omitempty"`
	Kinds  []thing.ChangeKind `json:"kinds,omitempty"`
	Change *thing.Change      `json:"change,omitempty"`
	Error  string             `json:"error,omitempty"`
}

var changeKinds = map[thing.ChangeKind]struct{}{
	thing.ChangeProperty:     {},
	thing.ChangeEvent:        {},
	thing.ChangeShape:        {},
	thing.ChangeThingAdded:   {},
	thing.ChangeThingRemoved: {},
}

// watch is one selection of changes. nil sets match everything.
type watch struct {
	things map[string]struct{}
	kinds  map[thing.ChangeKind]struct{}
}

func newWatch(things []string, kinds []thing.ChangeKind) watch {
	var w watch
	if len(things) > 0 {
		w.things = make(map[string]struct{}, len(things))
		for _, name := range things {
			w.things[name] = struct{}{}
		}
	}
	if len(kinds) > 0 {
		w.kinds = make(map[thing.ChangeKind]struct{}, len(kinds))
		for _, k := range kinds {
			w.kinds[k] = struct{}{}
		}
	}
	return w
}

func (w watch) matches(c thing.Change) bool {
	if w.things != nil {
		if _, ok := w.things[c.Thing]; !ok {
			return false
		}
	}
	if w.kinds != nil {
		if _, ok := w.kinds[c.Kind]; !ok {
			return false
		}
	}
	return true
}

// Hub fans registry changes out to WebSocket connections.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	mu      sync.RWMutex
	clients map[*WSClient]struct{}

	// dropped counts change frames lost to full send buffers.
	dropped atomic.Uint64
}

// WSClient is one WebSocket connection and its watches. subject is the
// token subject behind the connection's ticket, empty without auth.
type WSClient struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	subject string

	mu      sync.RWMutex
	watches map[string]watch
	nextID  int
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The CORS middleware has already vetted the origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates a hub with no connections.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is done, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a connection.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "subject", client.subject, "clients", n)
}

// Unregister removes a connection. Only the call that removes it closes
// its send channel, so repeated calls are safe.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if existed {
		close(client.send)
		h.logger.Debug("websocket client disconnected", "clients", n)
	}
}

// BroadcastChange sends c to every connection with a matching watch. It
// never blocks, so it is registered directly as a registry observer.
func (h *Hub) BroadcastChange(c thing.Change) {
	data, err := json.Marshal(Frame{Type: FrameChange, Change: &c})
	if err != nil {
		h.logger.Error("failed to marshal change frame", "thing", c.Thing, "kind", c.Kind, "error", err)
		return
	}

	// Client locks are taken only after the hub lock is released.
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if client.wants(c) && !client.trySend(data) {
			h.dropped.Add(1)
		}
	}
}

// ClientCount returns the number of open connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many change frames were discarded for slow clients.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

// handleWebSocket upgrades to a WebSocket. With a JWT secret configured the
// caller must present a ticket from POST /api/v1/auth/ws-ticket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var sub string
	if s.secCfg.JWT.Secret != "" {
		ticket := r.URL.Query().Get("ticket")
		if ticket == "" {
			writeUnauthorized(w, "ticket query parameter is required")
			return
		}
		var ok bool
		if sub, ok = s.tickets.consume(ticket); !ok {
			writeUnauthorized(w, "invalid or expired ticket")
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:     s.hub,
		conn:    conn,
		send:    make(chan []byte, wsSendBufferSize),
		subject: sub,
		watches: make(map[string]watch),
	}
	s.hub.Register(client)

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	idle := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(idle)) }

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	extend() //nolint:errcheck // a failed deadline surfaces as a read error
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		// Browsers may ignore protocol pings; any frame counts as liveness.
		extend() //nolint:errcheck // as above
		c.handleFrame(message)
	}
}

func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	write := func(messageType int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // surfaces on write
		return c.conn.WriteMessage(messageType, data)
	}

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			if err := write(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleFrame(data []byte) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		c.reply(Frame{Type: FrameError, Error: "invalid JSON frame"})
		return
	}

	switch f.Type {
	case FrameWatch:
		c.watch(f)
	case FrameUnwatch:
		c.unwatch(f)
	case FramePing:
		c.reply(Frame{Type: FramePong, ID: f.ID})
	default:
		c.reply(Frame{Type: FrameError, ID: f.ID, Error: "unknown frame type: " + f.Type})
	}
}

func (c *WSClient) watch(f Frame) {
	for _, k := range f.Kinds {
		if _, ok := changeKinds[k]; !ok {
			c.reply(Frame{Type: FrameError, ID: f.ID, Error: "unknown change kind: " + string(k)})
			return
		}
	}

	c.mu.Lock()
	if f.ID == "" {
		c.nextID++
		f.ID = "w" + strconv.Itoa(c.nextID)
	}
	c.watches[f.ID] = newWatch(f.Things, f.Kinds)
	c.mu.Unlock()

	c.hub.logger.Debug("websocket watch added",
		"subject", c.subject,
		"id", f.ID,
		"things", f.Things,
		"kinds", f.Kinds,
	)
	c.reply(Frame{Type: FrameAck, ID: f.ID, Things: f.Things, Kinds: f.Kinds})
}

func (c *WSClient) unwatch(f Frame) {
	c.mu.Lock()
	if f.ID == "" {
		clear(c.watches)
	} else {
		delete(c.watches, f.ID)
	}
	c.mu.Unlock()

	c.reply(Frame{Type: FrameAck, ID: f.ID})
}

func (c *WSClient) wants(change thing.Change) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, w := range c.watches {
		if w.matches(change) {
			return true
		}
	}
	return false
}

// trySend queues data without blocking. It reports false when the buffer
// is full or the connection has already been unregistered.
func (c *WSClient) trySend(data []byte) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *WSClient) reply(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	c.trySend(data)
}
