package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"glabassets/internal/config"
	"glabassets/internal/infrastructure"
	"glabassets/pkg/contracts"
	"glabassets/pkg/contracts/events"
)

// broadcastBuffer bounds the queue between producers and the hub loop.
const broadcastBuffer = 256

// Hub maintains the set of active clients and broadcasts messages to them.
// Producers never block: a full queue drops the message and a client whose
// send buffer is full is disconnected.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex

	cfg            config.WebSocketConfig
	allowedOrigins []string
	upgrader       websocket.Upgrader
	metrics        *infrastructure.AppMetrics
	logger         *slog.Logger

	done chan struct{}
}

// Option configures a Hub.
type Option func(*Hub)

// WithMetrics records broadcast counts.
func WithMetrics(m *infrastructure.AppMetrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithAllowedOrigins restricts browser origins allowed to connect. Requests
// without an Origin header are always accepted.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Hub) { h.allowedOrigins = origins }
}

// NewHub creates a new Hub instance
func NewHub(cfg config.WebSocketConfig, logger *slog.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
		cfg.PingPeriod = (cfg.PongWait * 9) / 10
	}

	h := &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		cfg:        cfg,
		logger:     infrastructure.WithComponent(logger, "websocket.hub"),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Run processes registrations and broadcasts until ctx is cancelled, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	h.logger.InfoContext(ctx, "WebSocket hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket hub stopped")
			return nil

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()

			h.logger.InfoContext(ctx, "Client registered",
				slog.String("client_id", client.id),
				slog.Int("total_clients", count))

			if msg, err := encode(events.MessageTypeConnect, map[string]string{
				"client_id":   client.id,
				"version":     contracts.Version,
				"api_version": contracts.APIVersion,
			}); err == nil {
				client.send <- msg
			}

		case client := <-h.unregister:
			h.remove(client)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					delete(h.clients, client)
					close(client.send)
					h.logger.WarnContext(ctx, "Dropped slow client",
						slog.String("client_id", client.id))
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		h.logger.Info("Client unregistered",
			slog.String("client_id", client.id),
			slog.Int("total_clients", len(h.clients)))
	}
}

// Broadcast queues a typed message for every connected client.
func (h *Hub) Broadcast(messageType events.MessageType, data any) {
	msg, err := encode(messageType, data)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast",
			slog.String("type", string(messageType)),
			slog.String("error", err.Error()))
		return
	}

	select {
	case h.broadcast <- msg:
		h.metrics.RecordBroadcast(context.Background(), string(messageType))
	default:
		h.logger.Warn("Broadcast queue full, message dropped",
			slog.String("type", string(messageType)))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and attaches a client to the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response
		h.logger.WarnContext(ctx, "WebSocket upgrade failed",
			slog.String("error", err.Error()),
			slog.String("origin", r.Header.Get("Origin")))
		return
	}

	client := newClient(h, conn, middleware.GetReqID(ctx), h.logger)
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if origin == allowed || allowed == "*" {
			return true
		}
	}
	h.logger.Warn("WebSocket origin not allowed",
		slog.String("origin", origin),
		slog.Any("allowed_origins", h.allowedOrigins))
	return false
}

func encode(messageType events.MessageType, data any) ([]byte, error) {
	return json.Marshal(events.WebSocketMessage{
		Type:      messageType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}
