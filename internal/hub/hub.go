package hub

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"market-hunter/internal/logger"
	"market-hunter/internal/protocol"
)

const (
	defaultPingInterval = 30 * time.Second
	writeWait           = 10 * time.Second
	sendBuffer          = 32
	maxInboundBytes     = 4096
)

// Hub holds the live subscriber connections. It never reaches back into the
// monitor engine; it only multiplexes messages over open sockets.
type Hub struct {
	mu     sync.RWMutex
	conns  map[*conn]struct{}
	closed bool

	upgrader     websocket.Upgrader
	pingInterval time.Duration
	log          logger.Logger

	closing   chan struct{}
	closeOnce sync.Once
}

type conn struct {
	ws      *websocket.Conn
	ownerID uint

	send chan []byte
	ping chan struct{}

	alive     atomic.Bool
	closed    chan struct{}
	closeOnce sync.Once
}

func New(pingInterval time.Duration, log logger.Logger) *Hub {
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	return &Hub{
		conns: make(map[*conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingInterval: pingInterval,
		log:          log,
		closing:      make(chan struct{}),
	}
}

// Serve upgrades the request and registers the socket for ownerID. The
// first message on every connection is connection_established.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, ownerID uint) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", logger.Error(err))
		return
	}

	c := &conn{
		ws:      ws,
		ownerID: ownerID,
		send:    make(chan []byte, sendBuffer),
		ping:    make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
	c.alive.Store(true)

	hello, err := protocol.Encode(protocol.ConnectionEstablished())
	if err != nil {
		h.log.Error("failed to encode handshake", logger.Error(err))
		ws.Close()
		return
	}
	c.send <- hello

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		ws.Close()
		return
	}
	h.conns[c] = struct{}{}
	total := len(h.conns)
	h.mu.Unlock()

	h.log.Info("subscriber connected", logger.Uint("owner_id", ownerID), logger.Int("connections", total))

	go h.writeLoop(c)
	go h.readLoop(c)
}

// BroadcastAll sends msg to every open connection.
func (h *Hub) BroadcastAll(msg protocol.Message) {
	h.deliver(msg, func(*conn) bool { return true })
}

// BroadcastScoped sends a monitor update to the connections of the
// monitor's owner. The message carries the monitor id so clients can drop
// updates for monitors they do not display.
func (h *Hub) BroadcastScoped(monitorID string, ownerID uint, msg protocol.Message) {
	msg.MonitorID = monitorID
	h.deliver(msg, func(c *conn) bool { return c.ownerID == ownerID })
}

func (h *Hub) deliver(msg protocol.Message, want func(*conn) bool) {
	data, err := protocol.Encode(msg)
	if err != nil {
		h.log.Error("failed to encode message", logger.String("type", msg.Type), logger.Error(err))
		return
	}

	var slow []*conn
	h.mu.RLock()
	for c := range h.conns {
		if !want(c) {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.remove(c, "send buffer full")
	}
}

// Run drives the liveness sweep until ctx is done or the hub is closed.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.closing:
			return
		case <-ticker.C:
			h.sweep()
		}
	}
}

// sweep drops every connection that did not answer the previous ping and
// pings the rest. It never blocks on a socket.
func (h *Hub) sweep() {
	var dead []*conn

	h.mu.RLock()
	for c := range h.conns {
		if !c.alive.Swap(false) {
			dead = append(dead, c)
			continue
		}
		select {
		case c.ping <- struct{}{}:
		default:
		}
	}
	h.mu.RUnlock()

	for _, c := range dead {
		h.remove(c, "missed ping")
	}
}

func (h *Hub) writeLoop(c *conn) {
	for {
		select {
		case <-c.closed:
			return
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				h.remove(c, "write failed: "+err.Error())
				return
			}
		case <-c.ping:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				h.remove(c, "ping failed: "+err.Error())
				return
			}
		}
	}
}

// readLoop keeps control frames flowing. Inbound application messages are
// ignored.
func (h *Hub) readLoop(c *conn) {
	c.ws.SetReadLimit(maxInboundBytes)
	c.ws.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return nil
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			h.remove(c, "closed by peer")
			return
		}
	}
}

func (h *Hub) remove(c *conn, reason string) {
	h.mu.Lock()
	_, ok := h.conns[c]
	delete(h.conns, c)
	total := len(h.conns)
	h.mu.Unlock()

	c.closeOnce.Do(func() {
		close(c.closed)
		c.ws.Close()
	})

	if ok {
		h.log.Info("subscriber removed",
			logger.Uint("owner_id", c.ownerID),
			logger.String("reason", reason),
			logger.Int("connections", total))
	}
}

// Len counts open connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close stops the sweep and closes every connection.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.closing) })

	h.mu.Lock()
	h.closed = true
	conns := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		h.remove(c, "hub closed")
	}
}
