package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/petalpost/location-service/internal/domain"
	"github.com/petalpost/location-service/internal/observability"
)

// Hub pushes location change events to connected UI subscribers. It
// implements domain.Publisher.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger
	metrics  *observability.Metrics

	// writeTimeout bounds each broadcast write so one stalled subscriber
	// cannot block the hub.
	writeTimeout time.Duration

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewHub creates a hub accepting upgrades from the given origins. Requests
// without an Origin header (same-origin, non-browser clients) are allowed.
func NewHub(allowedOrigins []string, logger *slog.Logger, metrics *observability.Metrics) *Hub {
	h := &Hub{
		logger:       logger,
		metrics:      metrics,
		writeTimeout: 5 * time.Second,
		clients:      make(map[*websocket.Conn]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			logger.Warn("websocket origin rejected", "origin", origin)
			return false
		},
	}
	return h
}

// HandleWS upgrades the request and registers the subscriber until its
// connection drops.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.metrics.Subscribers.Set(float64(len(h.clients)))
	h.mu.Unlock()

	h.logger.Debug("websocket subscriber connected", "remote", r.RemoteAddr)

	// Drain reads so control frames are processed; unregister on close.
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
	conn.Close() //nolint:errcheck // connection already failed
	h.mu.Lock()
	delete(h.clients, conn)
	h.metrics.Subscribers.Set(float64(len(h.clients)))
	h.mu.Unlock()
}

// Publish broadcasts the event to every subscriber. Subscribers whose writes
// fail are dropped.
func (h *Hub) Publish(_ context.Context, ev domain.ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	deadline := time.Now().Add(h.writeTimeout)
	for conn := range h.clients {
		conn.SetWriteDeadline(deadline) //nolint:errcheck
		if err := conn.WriteJSON(ev); err != nil {
			h.logger.Debug("websocket write failed, dropping subscriber", "error", err)
			conn.Close() //nolint:errcheck // already broken
			delete(h.clients, conn)
		}
	}
	h.metrics.Subscribers.Set(float64(len(h.clients)))
}

// Close disconnects all subscribers.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		conn.Close() //nolint:errcheck // shutting down
		delete(h.clients, conn)
	}
	h.metrics.Subscribers.Set(0)
}
