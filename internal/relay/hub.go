package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ripplesocial/relay/internal/logger"
	"github.com/ripplesocial/relay/internal/metrics"
	"go.uber.org/zap"
)

// Hub is the presence registry: it maps online users to their active
// connections and fans events out to them. A user with several devices
// has several connections; delivery to a user reaches all of them.
type Hub struct {
	// Registered connections by user id for targeted delivery
	clients map[string]map[*Client]struct{}

	// All connections for global fan-out
	allClients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan *Event
	unicast    chan *unicastEvent

	rooms *RoomManager

	mu sync.RWMutex

	stats *Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Event handlers by inbound type
	handlers map[string]EventHandler

	rateLimitConfig RateLimitConfig
}

// Stats tracks hub counters, readable without locking the client maps.
type Stats struct {
	TotalConnections   atomic.Int64
	ActiveConnections  atomic.Int64
	EventsReceived     atomic.Int64
	EventsSent         atomic.Int64
	Errors             atomic.Int64
	ConnectionsDropped atomic.Int64
}

// RateLimitConfig defines per-connection rate limiting parameters.
type RateLimitConfig struct {
	MaxEventsPerSecond int
	BurstSize          int
}

// DefaultRateLimitConfig returns sensible defaults.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxEventsPerSecond: 10,
		BurstSize:          20,
	}
}

type unicastEvent struct {
	UserID string
	Event  *Event
}

// EventHandler processes inbound events of a single type.
type EventHandler func(client *Client, event *Event) error

// NewHub creates a hub tied to the given room manager; disconnecting a
// client clears it out of every room.
func NewHub(rooms *RoomManager) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:         make(map[string]map[*Client]struct{}),
		allClients:      make(map[*Client]struct{}),
		register:        make(chan *Client, 256),
		unregister:      make(chan *Client, 256),
		broadcast:       make(chan *Event, 256),
		unicast:         make(chan *unicastEvent, 256),
		rooms:           rooms,
		stats:           &Stats{},
		ctx:             ctx,
		cancel:          cancel,
		handlers:        make(map[string]EventHandler),
		rateLimitConfig: DefaultRateLimitConfig(),
	}
}

// RegisterHandler registers a handler for an inbound event type.
func (h *Hub) RegisterHandler(eventType string, handler EventHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[eventType] = handler
}

// GetHandler returns the handler for an event type.
func (h *Hub) GetHandler(eventType string) (EventHandler, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	handler, ok := h.handlers[eventType]
	return handler, ok
}

// Run starts the hub's main event loop.
func (h *Hub) Run() {
	logger.Log.Info("relay hub starting")

	for {
		select {
		case <-h.ctx.Done():
			logger.Log.Info("relay hub shutting down")
			h.shutdown()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case event := <-h.broadcast:
			h.broadcastEvent(event)

		case uc := <-h.unicast:
			h.sendToUser(uc.UserID, uc.Event)
		}
	}
}

// registerClient admits a connection into the registry. The connection
// is implicitly a member of its user's mailbox from this point on.
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.UserID()] == nil {
		h.clients[client.UserID()] = make(map[*Client]struct{})
	}
	h.clients[client.UserID()][client] = struct{}{}
	h.allClients[client] = struct{}{}

	h.stats.TotalConnections.Add(1)
	h.stats.ActiveConnections.Add(1)
	metrics.Get().ConnectionsTotal.Inc()
	metrics.Get().ActiveConnections.Inc()

	logger.Log.Info("client connected",
		zap.String("user", client.UserID()),
		zap.Int64("active", h.stats.ActiveConnections.Load()))
}

// unregisterClient removes a connection from the registry and from
// every room. Idempotent: a second unregister of the same client is a
// no-op.
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()

	_, known := h.allClients[client]
	if known {
		delete(h.allClients, client)

		if clients, ok := h.clients[client.UserID()]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.clients, client.UserID())
			}
		}

		h.stats.ActiveConnections.Add(-1)
		metrics.Get().ActiveConnections.Dec()
	}
	h.mu.Unlock()

	if !known {
		return
	}

	// Rooms before the channel: a room broadcast that already
	// snapshotted this member must hit the closed-channel guard in
	// Send, not the closed channel itself.
	h.rooms.LeaveAll(client)
	client.closeSend()

	logger.Log.Info("client disconnected",
		zap.String("user", client.UserID()),
		zap.Int64("active", h.stats.ActiveConnections.Load()))
}

// broadcastEvent sends an event to every connected client.
func (h *Hub) broadcastEvent(event *Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(event)
	if err != nil {
		logger.Log.Error("marshal broadcast event", zap.Error(err))
		return
	}

	for client := range h.allClients {
		h.deliverLocked(client, data)
	}
}

// sendToUser sends an event to all connections of one user.
func (h *Hub) sendToUser(userID string, event *Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.clients[userID]
	if !ok || len(clients) == 0 {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		logger.Log.Error("marshal unicast event", zap.Error(err))
		return
	}

	for client := range clients {
		h.deliverLocked(client, data)
	}
}

// deliverLocked queues raw bytes on a client, dropping the connection
// if its buffer is full. Callers hold at least a read lock.
func (h *Hub) deliverLocked(client *Client, data []byte) {
	select {
	case client.send <- data:
		h.stats.EventsSent.Add(1)
		metrics.Get().EventsSent.Inc()
	default:
		h.stats.ConnectionsDropped.Add(1)
		metrics.Get().DroppedDeliveries.Inc()
		go func(c *Client) {
			h.unregister <- c
		}(client)
	}
}

// Broadcast sends an event to all connected clients.
func (h *Hub) Broadcast(event *Event) {
	select {
	case h.broadcast <- event:
	case <-h.ctx.Done():
	}
}

// SendToUser sends an event to a specific user's mailbox, reaching all
// of their connections.
func (h *Hub) SendToUser(userID string, event *Event) {
	select {
	case h.unicast <- &unicastEvent{UserID: userID, Event: event}:
	case <-h.ctx.Done():
	}
}

// Register admits a connection.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Unregister removes a connection.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// IsUserOnline checks if a user has any active connections.
func (h *Hub) IsUserOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients, ok := h.clients[userID]
	return ok && len(clients) > 0
}

// ConnectionCount returns the number of connections for a user.
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// ActiveConnectionsFor returns a snapshot of a user's connections.
func (h *Hub) ActiveConnectionsFor(userID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	connections := make([]*Client, 0, len(h.clients[userID]))
	for client := range h.clients[userID] {
		connections = append(connections, client)
	}
	return connections
}

// OnlineUsers returns the ids of all users with at least one connection.
func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make([]string, 0, len(h.clients))
	for userID := range h.clients {
		users = append(users, userID)
	}
	return users
}

// StatsSnapshot is a point-in-time view of hub counters.
type StatsSnapshot struct {
	TotalConnections   int64 `json:"total_connections"`
	ActiveConnections  int64 `json:"active_connections"`
	EventsReceived     int64 `json:"events_received"`
	EventsSent         int64 `json:"events_sent"`
	Errors             int64 `json:"errors"`
	ConnectionsDropped int64 `json:"connections_dropped"`
}

// Snapshot returns current hub counters.
func (h *Hub) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		TotalConnections:   h.stats.TotalConnections.Load(),
		ActiveConnections:  h.stats.ActiveConnections.Load(),
		EventsReceived:     h.stats.EventsReceived.Load(),
		EventsSent:         h.stats.EventsSent.Load(),
		Errors:             h.stats.Errors.Load(),
		ConnectionsDropped: h.stats.ConnectionsDropped.Load(),
	}
}

// String implements Stringer for StatsSnapshot
func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"connections=%d/%d events=rx:%d/tx:%d errors=%d dropped=%d",
		s.ActiveConnections, s.TotalConnections,
		s.EventsReceived, s.EventsSent,
		s.Errors, s.ConnectionsDropped,
	)
}

// Shutdown gracefully shuts down the hub.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.cancel()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout: %w", ctx.Err())
	}
}

// shutdown notifies and closes all client connections.
func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	shutdownEvent := NewEvent(EventSystem, SystemPayload{Event: "server_shutdown"})
	data, _ := json.Marshal(shutdownEvent)

	for client := range h.allClients {
		client.sendBestEffort(data)
		client.closeSend()
	}

	h.clients = make(map[string]map[*Client]struct{})
	h.allClients = make(map[*Client]struct{})

	logger.Log.Info("closed all connections during shutdown",
		zap.Int64("count", h.stats.ActiveConnections.Load()))
}

// SetRateLimitConfig updates the rate limiting configuration.
func (h *Hub) SetRateLimitConfig(config RateLimitConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rateLimitConfig = config
}

// GetRateLimitConfig returns the current rate limit configuration.
func (h *Hub) GetRateLimitConfig() RateLimitConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rateLimitConfig
}
