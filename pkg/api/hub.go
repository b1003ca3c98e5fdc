package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// writeTimeout bounds a single frame write to one subscriber.
	writeTimeout = 5 * time.Second

	// pongWait is how long a subscriber may stay silent before its
	// connection is considered dead. Pings go out at a third of this.
	pongWait     = 90 * time.Second
	pingInterval = 30 * time.Second

	// eventBuffer decouples event producers from slow subscribers.
	// Broadcast never blocks; overflow drops the newest event.
	eventBuffer = 256
)

// Event is the envelope delivered to /api/events subscribers. It is the
// same shape the hosted dashboard accepts on its event relay endpoint.
type Event struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

// NewEvent stamps an event envelope with the current UTC time.
func NewEvent(eventType string, data any) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}
}

// wsClient is one connected subscriber.
type wsClient struct {
	conn        *websocket.Conn
	connectedAt time.Time

	// writeMu serializes data writes; gorilla/websocket supports at
	// most one concurrent writer per connection.
	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
}

// Hub fans events out to the WebSocket subscribers of /api/events.
// Delivery is best effort: subscribers that cannot keep up are
// disconnected rather than allowed to stall the rest.
type Hub struct {
	logger   zerolog.Logger
	metrics  *apiMetrics
	upgrader websocket.Upgrader

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]*wsClient

	events chan []byte
	wg     sync.WaitGroup
}

// NewHub returns a hub ready to accept subscribers. Events queue until
// run drains them, so Broadcast is safe before the hub is started.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger: logger.With().Str("component", "api-hub").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Subscribers authenticate with a bearer token, so the
			// Origin header carries no additional trust.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]*wsClient),
		events:  make(chan []byte, eventBuffer),
	}
}

// Broadcast queues an event for delivery to every subscriber. It never
// blocks; when the buffer is full the event is dropped and counted.
func (h *Hub) Broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn().Err(err).Str("type", event.Type).Msg("Dropping unencodable event")
		return
	}

	select {
	case h.events <- data:
		if h.metrics != nil {
			h.metrics.wsEventsTotal.Inc()
		}
	default:
		if h.metrics != nil {
			h.metrics.wsDroppedTotal.Inc()
		}
		h.logger.Warn().Str("type", event.Type).Msg("Event buffer full, dropping broadcast")
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// run delivers queued events and pings subscribers until ctx is done,
// then closes every connection.
func (h *Hub) run(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case data := <-h.events:
			h.deliver(data)
		case <-ticker.C:
			h.pingClients()
		}
	}
}

// handleEvents upgrades the request and registers the subscriber.
func (h *Hub) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		h.logger.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	client := &wsClient{conn: conn, connectedAt: time.Now()}

	h.clientsMu.Lock()
	h.clients[conn] = client
	count := len(h.clients)
	h.clientsMu.Unlock()

	if h.metrics != nil {
		h.metrics.wsConnectsTotal.Inc()
		h.metrics.wsClients.Set(float64(count))
	}
	h.logger.Debug().Str("remote", r.RemoteAddr).Int("clients", count).Msg("WebSocket client connected")

	h.wg.Add(1)
	go h.readLoop(client)
}

// readLoop drains inbound frames so pongs are processed and disconnects
// are noticed. Subscribers only consume; data frames from them are
// discarded.
func (h *Hub) readLoop(c *wsClient) {
	defer h.wg.Done()
	defer h.removeClient(c)

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// deliver sends one encoded event to every live subscriber and waits
// for the sends to finish, preserving per-subscriber event order.
func (h *Hub) deliver(data []byte) {
	clients := h.snapshot()
	if len(clients) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go h.sendTo(&wg, c, data)
	}
	wg.Wait()
}

func (h *Hub) sendTo(wg *sync.WaitGroup, c *wsClient, data []byte) {
	defer wg.Done()
	if c.closed.Load() {
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.removeClient(c)
	}
}

// pingClients probes every subscriber. WriteControl is safe to call
// concurrently with data writes, so writeMu is not needed here.
func (h *Hub) pingClients() {
	deadline := time.Now().Add(writeTimeout)
	for _, c := range h.snapshot() {
		if c.closed.Load() {
			continue
		}
		if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			h.removeClient(c)
		}
	}
}

// snapshot returns the live subscribers without holding the lock during
// delivery.
func (h *Hub) snapshot() []*wsClient {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	clients := make([]*wsClient, 0, len(h.clients))
	for _, c := range h.clients {
		if !c.closed.Load() {
			clients = append(clients, c)
		}
	}
	return clients
}

// removeClient unregisters and closes a subscriber. Safe to call from
// multiple paths; cleanup runs exactly once.
func (h *Hub) removeClient(c *wsClient) {
	c.closeOnce.Do(func() {
		c.closed.Store(true)

		h.clientsMu.Lock()
		delete(h.clients, c.conn)
		count := len(h.clients)
		h.clientsMu.Unlock()

		if h.metrics != nil {
			h.metrics.wsClients.Set(float64(count))
		}
		_ = c.conn.Close()
		h.logger.Debug().Int("clients", count).Msg("WebSocket client disconnected")
	})
}

// closeAll disconnects every subscriber and waits for their read loops
// to exit.
func (h *Hub) closeAll() {
	deadline := time.Now().Add(time.Second)
	for _, c := range h.snapshot() {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		h.removeClient(c)
	}
	h.wg.Wait()
}
