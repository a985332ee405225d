package relay

import (
	"context"
	"sync"
	"time"

	"github.com/ripplesocial/relay/internal/cache"
	"github.com/ripplesocial/relay/internal/logger"
	"github.com/ripplesocial/relay/internal/store"
	"go.uber.org/zap"
)

// Tracker derives user-level presence from connection-level churn. A
// user comes online with their first connection and goes offline with
// their last; intermediate connects and disconnects are invisible to
// other users. Last-active writes and the Redis mirror are
// best-effort: presence must keep working when either dependency is
// down.
type Tracker struct {
	hub   *Hub
	store store.Store
	redis *cache.RedisClient // nil when Redis is not configured

	mu sync.Mutex
	// connections counts live connections per user id.
	connections map[string]int

	storeTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// NewTracker creates a presence tracker. redis may be nil.
func NewTracker(hub *Hub, st store.Store, redis *cache.RedisClient, storeTimeout time.Duration) *Tracker {
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		hub:          hub,
		store:        st,
		redis:        redis,
		connections:  make(map[string]int),
		storeTimeout: storeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start launches the Redis TTL refresh loop.
func (t *Tracker) Start() {
	go t.runRefreshLoop()
}

// Stop shuts the tracker down and marks the remaining users offline.
func (t *Tracker) Stop() {
	t.cancel()

	t.mu.Lock()
	users := make([]string, 0, len(t.connections))
	for userID := range t.connections {
		users = append(users, userID)
	}
	t.connections = make(map[string]int)
	t.mu.Unlock()

	for _, userID := range users {
		t.recordOffline(userID)
	}
}

// OnClientConnect is called once per admitted connection.
func (t *Tracker) OnClientConnect(c *Client) {
	t.mu.Lock()
	t.connections[c.UserID()]++
	first := t.connections[c.UserID()] == 1
	t.mu.Unlock()

	// Every admission refreshes last-active; only the first connection
	// changes visible presence.
	t.recordOnline(c.UserID())

	if !first {
		return
	}

	t.hub.Broadcast(NewEvent(EventUserOnline, PresencePayload{
		UserID:    c.UserID(),
		Username:  c.Username(),
		Status:    "online",
		Timestamp: time.Now().UnixMilli(),
	}))
}

// OnClientDisconnect is called once per closed connection. Safe to
// call for a connection whose connect was never observed.
func (t *Tracker) OnClientDisconnect(c *Client) {
	t.mu.Lock()
	count, ok := t.connections[c.UserID()]
	if !ok {
		t.mu.Unlock()
		return
	}
	count--
	last := count <= 0
	if last {
		delete(t.connections, c.UserID())
	} else {
		t.connections[c.UserID()] = count
	}
	t.mu.Unlock()

	if !last {
		t.recordOnline(c.UserID())
		return
	}

	t.recordOffline(c.UserID())
	t.hub.Broadcast(NewEvent(EventUserOffline, PresencePayload{
		UserID:    c.UserID(),
		Username:  c.Username(),
		Status:    "offline",
		Timestamp: time.Now().UnixMilli(),
	}))
}

// recordOnline updates the durable last-active flag and the Redis
// mirror. Both are fire-and-forget: the explicit decision here is to
// log failures and move on, never to block or fail admission.
func (t *Tracker) recordOnline(userID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.storeTimeout)
		defer cancel()
		if err := t.store.TouchLastActive(ctx, userID, true); err != nil {
			logger.Log.Warn("last-active touch failed", zap.String("user", userID), zap.Error(err))
		}
		if err := t.redis.SetOnline(ctx, userID); err != nil {
			logger.Log.Warn("presence mirror set failed", zap.String("user", userID), zap.Error(err))
		}
	}()
}

func (t *Tracker) recordOffline(userID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.storeTimeout)
		defer cancel()
		if err := t.store.TouchLastActive(ctx, userID, false); err != nil {
			logger.Log.Warn("last-active touch failed", zap.String("user", userID), zap.Error(err))
		}
		if err := t.redis.SetOffline(ctx, userID); err != nil {
			logger.Log.Warn("presence mirror clear failed", zap.String("user", userID), zap.Error(err))
		}
	}()
}

// OnlineCount returns how many users currently have connections.
func (t *Tracker) OnlineCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.connections)
}

// runRefreshLoop keeps the Redis presence keys from expiring while
// users stay connected.
func (t *Tracker) runRefreshLoop() {
	if t.redis == nil {
		return
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.refreshMirror()
		}
	}
}

func (t *Tracker) refreshMirror() {
	t.mu.Lock()
	users := make([]string, 0, len(t.connections))
	for userID := range t.connections {
		users = append(users, userID)
	}
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(t.ctx, 10*time.Second)
	defer cancel()

	for _, userID := range users {
		if err := t.redis.RefreshOnline(ctx, userID); err != nil {
			logger.Log.Warn("presence mirror refresh failed", zap.String("user", userID), zap.Error(err))
			return
		}
	}
}
