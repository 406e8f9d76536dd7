// Package wshub broadcasts pipeline outputs to WebSocket clients, typically
// the game or feedback UI that renders the control signal.
package wshub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/cwbudde/algo-neurofeedback/feedback/pipeline"
)

// ErrStopped is returned by Publish once the hub has stopped.
var ErrStopped = errors.New("wshub: stopped")

// Message types.
const (
	TypeTick    = "tick"
	TypeTrigger = "trigger"
)

// Message is the JSON envelope sent to clients.
type Message struct {
	Type    string          `json:"type"`
	Payload pipeline.Output `json:"payload"`
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithCheckOrigin overrides the origin check of the upgrader. The default
// accepts same-origin requests only.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(h *Hub) { h.upgrader.CheckOrigin = fn }
}

// WithBufferSize sets the per-client and broadcast queue length.
func WithBufferSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.bufferSize = n
		}
	}
}

// Hub maintains the set of active clients and broadcasts messages.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	upgrader   websocket.Upgrader
	bufferSize int
	logger     *slog.Logger

	dropped atomic.Uint64
	stopped chan struct{}
	once    sync.Once
}

// New returns a hub. Call Run to start it.
func New(opts ...Option) *Hub {
	h := &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		bufferSize: 256,
		logger:     slog.New(slog.DiscardHandler),
		stopped:    make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.broadcast = make(chan []byte, h.bufferSize)
	return h
}

// Run serves registrations and broadcasts until ctx is done, then
// disconnects all clients.
func (h *Hub) Run(ctx context.Context) {
	defer h.stop()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("websocket client registered", "remote", client.conn.RemoteAddr().String())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Info("websocket client unregistered", "remote", client.conn.RemoteAddr().String())
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					h.logger.Warn("websocket client too slow, removing", "remote", client.conn.RemoteAddr().String())
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) stop() {
	h.once.Do(func() {
		close(h.stopped)

		h.mu.Lock()
		for client := range h.clients {
			close(client.send)
			delete(h.clients, client)
		}
		h.mu.Unlock()
	})
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns the number of messages discarded because the broadcast
// queue was full.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Publish queues out for all clients without blocking. Triggers are sent as
// TypeTrigger messages.
func (h *Hub) Publish(_ context.Context, out pipeline.Output) error {
	select {
	case <-h.stopped:
		return ErrStopped
	default:
	}

	msg := Message{Type: TypeTick, Payload: out}
	if out.Triggered {
		msg.Type = TypeTrigger
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- data:
	default:
		h.dropped.Add(1)
	}

	return nil
}

// Close is a no-op; the hub stops when the context passed to Run is done.
func (h *Hub) Close() error { return nil }

// ServeHTTP upgrades the request and attaches the connection as a client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{hub: h, conn: conn, send: make(chan []byte, h.bufferSize)}

	select {
	case h.register <- client:
	case <-h.stopped:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
