package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/samplecentring-core/internal/infrastructure/config"
	"github.com/nerrad567/samplecentring-core/internal/infrastructure/logging"
)

// Message types on the events socket.
const (
	msgEvent = "event"
	msgAck   = "ack"
	msgPong  = "pong"
	msgError = "error"
)

// Control operations a client may send.
const (
	opSubscribe   = "subscribe"
	opUnsubscribe = "unsubscribe"
	opPing        = "ping"
)

const (
	// clientQueueSize bounds the outbound queue of one client. A client
	// that falls this far behind loses events, never blocks the hub.
	clientQueueSize = 256

	// wsWildcard matches every channel. "motor.*" style patterns match a
	// channel family.
	wsWildcard = "*"
)

// EventMessage is one event pushed to clients. Seq increases by one per
// broadcast, so a client can detect events it missed.
type EventMessage struct {
	Type    string `json:"type"`
	Seq     uint64 `json:"seq,omitempty"`
	Channel string `json:"channel,omitempty"`
	ID      string `json:"id,omitempty"`
	Time    string `json:"time"`
	Data    any    `json:"data,omitempty"`
}

// controlMessage is a client request to change its channels or to ping.
type controlMessage struct {
	Op       string   `json:"op"`
	ID       string   `json:"id,omitempty"`
	Channels []string `json:"channels,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The UI is served from another origin; CORS middleware governs HTTP.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// Hub fans hardware and registry events out to the connected event
// sockets. A channel is an event type such as "motor.moved".
type Hub struct {
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*eventClient]struct{}

	seq     atomic.Uint64
	dropped atomic.Uint64
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*eventClient]struct{}),
	}
}

// Run blocks until ctx ends, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*eventClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
}

func (h *Hub) add(c *eventClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("event client connected", "clients", n, "channels", c.filter.list())
}

func (h *Hub) remove(c *eventClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		c.close()
		h.logger.Debug("event client disconnected", "clients", n, "dropped", c.dropped.Load())
	}
}

// Broadcast sends payload on channel to every client whose filter matches.
// It never blocks.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(EventMessage{
		Type:    msgEvent,
		Seq:     h.seq.Add(1),
		Channel: channel,
		Time:    time.Now().UTC().Format(time.RFC3339Nano),
		Data:    payload,
	})
	if err != nil {
		h.logger.Error("failed to encode event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.filter.matches(channel) && !c.enqueue(data) {
			h.dropped.Add(1)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns the number of events lost to full client queues.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// handleEventsWebSocket upgrades the connection and relays hardware and
// centring events to it.
//
// The channels query parameter is a comma-separated list of channels or
// patterns ("motor.*"); without it the client receives everything. The
// client can change its channels later with subscribe/unsubscribe ops.
func (s *Server) handleEventsWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := newEventClient(conn, parseChannels(r.URL.Query().Get("channels")))
	s.hub.add(c)

	go c.writeLoop(s.wsCfg)
	go func() {
		defer s.hub.remove(c)
		c.readLoop(s.wsCfg, s.hub.logger)
	}()
}

// channelFilter is the set of channels a client listens on.
type channelFilter struct {
	mu       sync.RWMutex
	channels map[string]struct{}
}

// parseChannels builds a filter from a comma-separated list. An empty list
// matches every channel.
func parseChannels(list string) *channelFilter {
	f := &channelFilter{channels: make(map[string]struct{})}
	f.add(strings.Split(list, ","))
	if len(f.channels) == 0 {
		f.channels[wsWildcard] = struct{}{}
	}
	return f
}

func (f *channelFilter) add(channels []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range channels {
		if ch = strings.TrimSpace(ch); ch != "" {
			f.channels[ch] = struct{}{}
		}
	}
}

func (f *channelFilter) drop(channels []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range channels {
		delete(f.channels, strings.TrimSpace(ch))
	}
}

func (f *channelFilter) matches(channel string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if _, ok := f.channels[channel]; ok {
		return true
	}
	for p := range f.channels {
		if p == wsWildcard {
			return true
		}
		if prefix, ok := strings.CutSuffix(p, ".*"); ok && strings.HasPrefix(channel, prefix+".") {
			return true
		}
	}
	return false
}

func (f *channelFilter) list() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.channels))
	for ch := range f.channels {
		out = append(out, ch)
	}
	return out
}

// eventClient is one connected event socket.
type eventClient struct {
	conn   *websocket.Conn
	filter *channelFilter
	queue  chan []byte

	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Uint64
}

func newEventClient(conn *websocket.Conn, filter *channelFilter) *eventClient {
	return &eventClient{
		conn:   conn,
		filter: filter,
		queue:  make(chan []byte, clientQueueSize),
		done:   make(chan struct{}),
	}
}

// enqueue queues data without blocking. It reports false when the message
// is lost because the queue is full or the client is gone.
func (c *eventClient) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.queue <- data:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// close signals writeLoop, which sends a close frame and releases the
// connection.
func (c *eventClient) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *eventClient) reply(typ, id string, data any) {
	msg, err := json.Marshal(EventMessage{
		Type: typ,
		ID:   id,
		Time: time.Now().UTC().Format(time.RFC3339Nano),
		Data: data,
	})
	if err == nil {
		c.enqueue(msg)
	}
}

// readLoop handles control messages until the connection fails.
func (c *eventClient) readLoop(cfg config.WebSocketConfig, logger *logging.Logger) {
	wait := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(wait)) }

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	//nolint:errcheck // a failed deadline surfaces on the next read
	extend()
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("event socket read error", "error", err)
			}
			return
		}
		// Browsers do not always answer protocol pings; any message counts.
		//nolint:errcheck // a failed deadline surfaces on the next read
		extend()

		var msg controlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(msgError, "", map[string]string{"message": "invalid JSON message"})
			continue
		}
		switch msg.Op {
		case opSubscribe:
			c.filter.add(msg.Channels)
			c.reply(msgAck, msg.ID, map[string]any{"channels": c.filter.list()})
		case opUnsubscribe:
			c.filter.drop(msg.Channels)
			c.reply(msgAck, msg.ID, map[string]any{"channels": c.filter.list()})
		case opPing:
			c.reply(msgPong, msg.ID, nil)
		default:
			c.reply(msgError, msg.ID, map[string]string{"message": "unknown op: " + msg.Op})
		}
	}
}

// writeLoop drains the queue and keeps the connection alive with pings.
func (c *eventClient) writeLoop(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	writeWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case <-c.done:
			//nolint:errcheck // best-effort close frame
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(writeWait))
			return
		case data := <-c.queue:
			//nolint:errcheck // write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
