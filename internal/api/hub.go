package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alejandrodnm/polyedge/internal/bus"
	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/alejandrodnm/polyedge/internal/metrics"
)

const (
	writeTimeout = 5 * time.Second

	// Buffered so enqueueing from bus handlers never blocks; overflow is
	// dropped, the feed is best-effort.
	broadcastBuffer = 256
)

// Hub fans bus events out to connected websocket clients as typed JSON
// envelopes. Bus handlers only enqueue onto a buffered channel; the actual
// writes happen on the hub's own Run goroutine so a slow or dead client can
// never stall the dispatcher.
type Hub struct {
	upgrader  websocket.Upgrader
	broadcast chan []byte

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		broadcast: make(chan []byte, broadcastBuffer),
		clients:   make(map[*websocket.Conn]struct{}),
	}
}

// Attach subscribes the hub to the events worth streaming.
func (h *Hub) Attach(b *bus.Bus) {
	b.OnPrice(func(p domain.PriceTick) { h.enqueue("market:price", p) })
	b.OnSignal(func(s domain.EdgeSignal) { h.enqueue("edge:signal", s) })
	b.OnTrade(func(t domain.Trade) { h.enqueue("trade:executed", t) })
	b.OnAlert(func(a domain.Alert) { h.enqueue("risk:alert", a) })
	b.OnResolution(func(r domain.Resolution) { h.enqueue("market:resolved", r) })
	b.OnTransfer(func(t domain.Transfer) { h.enqueue("chain:transfer", t) })
}

// Run drains the broadcast channel and writes to every client. Must be
// called in its own goroutine; returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.broadcast:
			h.writeAll(msg)
		}
	}
}

// enqueue marshals the envelope and hands it to the Run loop. Drops the
// message when the buffer is full rather than blocking the caller.
func (h *Hub) enqueue(event string, payload any) {
	msg, err := json.Marshal(map[string]any{
		"type": event,
		"data": payload,
		"ts":   time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		slog.Debug("ws hub: broadcast buffer full, dropping", "event", event)
	}
}

func (h *Hub) writeAll(msg []byte) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.drop(c)
		}
	}
}

// HandleWS upgrades the request and keeps the connection registered until
// the client goes away.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws hub: upgrade failed", "err", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WebSocketClients.Set(float64(n))
	slog.Debug("ws hub: client connected", "clients", n)

	// Drain reads so control frames are processed; client messages are
	// ignored, the feed is one-way.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WebSocketClients.Set(float64(n))
}

// Shutdown closes every client connection.
func (h *Hub) Shutdown(context.Context) {
	h.mu.Lock()
	for c := range h.clients {
		c.Close()
	}
	h.clients = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()
	metrics.WebSocketClients.Set(0)
}
