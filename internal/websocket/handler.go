package websocket

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"whiteboard/pkg/interfaces"
)

// Options tunes the transport. Zero fields fall back to the package defaults.
type Options struct {
	PingInterval   time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	BufferSize     int
	MaxMessageSize int64
}

func (o Options) withDefaults() Options {
	if o.PingInterval <= 0 {
		o.PingInterval = DefaultPingInterval
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = DefaultMaxMessageSize
	}
	return o
}

// WebSocket upgrader with production-ready settings
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// FUNCTIONAL DISCOVERY: Whiteboard clients are served from any origin.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Handler upgrades HTTP requests and pumps frames between sockets and the dispatcher.
// ARCHITECTURAL DISCOVERY: The handler holds no whiteboard state. A connection is
// anonymous until its first join, which the dispatcher handles.
type Handler struct {
	registry   *Registry
	dispatcher interfaces.Dispatcher
	opts       Options
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewHandler creates a websocket handler feeding dispatcher.
func NewHandler(registry *Registry, dispatcher interfaces.Dispatcher, opts Options) *Handler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		opts:       opts.withDefaults(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// HandleWebSocket upgrades the request and starts the connection lifecycle.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.ctx.Err() != nil {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn, h.opts.BufferSize, h.opts.WriteTimeout)

	if err := h.registry.RegisterConnection(wsConn); err != nil {
		log.Printf("Failed to register connection: %v", err)
		_ = wsConn.Close()
		return
	}

	// The dispatcher must know the connection before any of its frames arrive.
	if err := h.dispatcher.Open(h.ctx, wsConn.ID(), wsConn); err != nil {
		log.Printf("Failed to open connection %s: %v", wsConn.ID(), err)
		h.registry.UnregisterConnection(wsConn)
		_ = wsConn.Close()
		return
	}

	log.Printf("WebSocket connected: conn=%s remote=%s", wsConn.ID(), r.RemoteAddr)
	go h.handleConnection(wsConn)
}

// Shutdown stops accepting connections and closes the live ones.
func (h *Handler) Shutdown() int {
	h.cancel()
	return h.registry.CloseAll()
}

// handleConnection runs the read pump and heartbeat for one connection.
// ARCHITECTURAL DISCOVERY: Single goroutine per connection reads frames; the
// heartbeat ticker runs beside it and both stop when the connection closes.
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		if err := h.dispatcher.Close(conn.ID()); err != nil {
			log.Printf("Failed to report close of %s: %v", conn.ID(), err)
		}
		h.registry.UnregisterConnection(conn)
		_ = conn.Close()
		log.Printf("WebSocket disconnected: conn=%s", conn.ID())
	}()

	conn.conn.SetReadLimit(h.opts.MaxMessageSize)
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	go h.heartbeat(conn)

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		if err := h.dispatcher.Deliver(h.ctx, conn.ID(), data); err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Printf("Failed to deliver frame from %s: %v", conn.ID(), err)
			}
			return
		}
	}
}

func (h *Handler) heartbeat(conn *Connection) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				_ = conn.Close()
				return
			}
		case <-conn.Done():
			return
		}
	}
}
