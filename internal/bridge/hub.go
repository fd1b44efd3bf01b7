package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"forefront/arena/internal/events"
	"forefront/arena/internal/logging"
)

const (
	// DefaultPingInterval is the keepalive cadence when none is configured.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxPayloadBytes bounds one inbound command.
	DefaultMaxPayloadBytes int64 = 64 << 10
	// DefaultCommandRate bounds commands per client per second.
	DefaultCommandRate = 60

	writeWait  = 10 * time.Second
	sendBuffer = 64
)

// ErrTooManyClients rejects connections beyond the configured limit.
var ErrTooManyClients = errors.New("bridge client limit reached")

// Options configures a Hub.
type Options struct {
	Source          Source
	Logger          *logging.Logger
	AllowedOrigins  []string
	PingInterval    time.Duration
	MaxPayloadBytes int64
	MaxClients      int
	// CommandRate caps commands per second per client. Negative disables it.
	CommandRate int
	Clock       func() time.Time
}

// Hub upgrades presentation clients to WebSockets, fans out match events and
// dispatches their commands to the current match.
type Hub struct {
	source       Source
	logger       *logging.Logger
	origins      map[string]struct{}
	anyOrigin    bool
	pingInterval time.Duration
	maxPayload   int64
	maxClients   int
	commandRate  int
	now          func() time.Time
	upgrader     websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool

	nextID     atomic.Uint64
	broadcasts atomic.Uint64
}

type client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	limiter *commandLimiter
	once    sync.Once
}

// NewHub builds a hub from opts, filling in defaults.
func NewHub(opts Options) *Hub {
	h := &Hub{
		source:       opts.Source,
		logger:       opts.Logger,
		origins:      make(map[string]struct{}),
		pingInterval: opts.PingInterval,
		maxPayload:   opts.MaxPayloadBytes,
		maxClients:   opts.MaxClients,
		commandRate:  opts.CommandRate,
		now:          opts.Clock,
		clients:      make(map[*client]struct{}),
	}
	if h.logger == nil {
		h.logger = logging.L()
	}
	h.logger = h.logger.With(logging.String("component", "bridge"))
	if h.pingInterval <= 0 {
		h.pingInterval = DefaultPingInterval
	}
	if h.maxPayload <= 0 {
		h.maxPayload = DefaultMaxPayloadBytes
	}
	if h.commandRate == 0 {
		h.commandRate = DefaultCommandRate
	}
	if h.now == nil {
		h.now = time.Now
	}
	for _, origin := range opts.AllowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "*" {
			h.anyOrigin = true
			continue
		}
		if origin != "" {
			h.origins[strings.ToLower(origin)] = struct{}{}
		}
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

// checkOrigin accepts requests without an Origin header, same-host origins and
// anything on the allow list.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || h.anyOrigin {
		return true
	}
	if _, ok := h.origins[strings.ToLower(strings.TrimRight(origin, "/"))]; ok {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(parsed.Host, r.Host)
}

// ServeHTTP upgrades the request and starts the client pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.full() {
		http.Error(w, ErrTooManyClients.Error(), http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logging.String("remote", r.RemoteAddr), logging.Error(err))
		return
	}
	c := &client{
		id:      fmt.Sprintf("client-%d", h.nextID.Add(1)),
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		limiter: newCommandLimiter(time.Second, h.commandRate, h.now),
	}
	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, ErrTooManyClients.Error()),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	h.logger.Info("presentation client connected", logging.String("client_id", c.id), logging.String("remote", r.RemoteAddr))

	//1.- New clients see the current turn state before any event.
	if h.source != nil {
		if m := h.source.Current(); m != nil {
			snapshot := m.Snapshot()
			h.sendTo(c, Message{Type: MessageSnapshot, Snapshot: &snapshot})
		}
	}
	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) full() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.maxClients > 0 && len(h.clients) >= h.maxClients
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || (h.maxClients > 0 && len(h.clients) >= h.maxClients) {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.once.Do(func() { close(c.send) })
		h.logger.Info("presentation client disconnected", logging.String("client_id", c.id))
	}
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()
	pongWait := 2 * h.pingInterval
	c.conn.SetReadLimit(h.maxPayload)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("presentation client read failed", logging.String("client_id", c.id), logging.Error(err))
			}
			return
		}
		h.handleCommand(c, payload)
	}
}

func (h *Hub) handleCommand(c *client, payload []byte) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		h.sendTo(c, Message{Type: MessageError, Error: fmt.Sprintf("decode command: %v", err)})
		return
	}
	if !c.limiter.Allow() {
		h.sendTo(c, Message{Type: MessageError, Error: "command rate exceeded"})
		return
	}
	var ack Ack
	var err error
	if h.source == nil {
		err = ErrNoMatch
	} else {
		ack, err = Dispatch(h.source.Current(), cmd)
	}
	if err != nil {
		h.sendTo(c, Message{Type: MessageError, Error: err.Error(), Ack: &ack})
		return
	}
	if h.logger.Enabled(logging.DebugLevel) {
		h.logger.Debug("command dispatched",
			logging.String("client_id", c.id),
			logging.String("command", string(cmd.Type)),
			logging.Bool("accepted", ack.Accepted),
		)
	}
	h.sendTo(c, Message{Type: MessageAck, Ack: &ack})
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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

// sendTo queues a message for one client, dropping the client when its buffer is full.
func (h *Hub) sendTo(c *client, msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encode bridge message failed", logging.String("type", msg.Type), logging.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	h.enqueueLocked(c, payload)
}

func (h *Hub) enqueueLocked(c *client, payload []byte) {
	select {
	case c.send <- payload:
	default:
		//1.- A client that cannot keep up is cut loose rather than stalling the fan-out.
		delete(h.clients, c)
		c.once.Do(func() { close(c.send) })
		h.logger.Warn("presentation client too slow, dropping", logging.String("client_id", c.id))
	}
}

// Broadcast sends msg to every connected client.
func (h *Hub) Broadcast(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encode bridge message failed", logging.String("type", msg.Type), logging.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.enqueueLocked(c, payload)
	}
	h.broadcasts.Add(1)
}

// Run forwards every event of sub to the connected clients until ctx ends or
// the subscription closes.
func (h *Hub) Run(ctx context.Context, sub *events.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case event := <-sub.Events():
			h.Broadcast(Message{Type: MessageEvent, Event: event})
			if err := sub.Ack(event.Sequence); err != nil {
				h.logger.Warn("bridge ack failed", logging.Uint64("sequence", event.Sequence), logging.Error(err))
			}
		}
	}
}

// Clients reports how many clients are connected.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcasts reports how many fan-outs have been sent.
func (h *Hub) Broadcasts() uint64 { return h.broadcasts.Load() }

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.once.Do(func() { close(c.send) })
	}
}
