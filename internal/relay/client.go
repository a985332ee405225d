package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/ripplesocial/relay/internal/logger"
	"github.com/ripplesocial/relay/internal/metrics"
	"github.com/ripplesocial/relay/internal/models"
	"github.com/ripplesocial/relay/internal/relayerr"
	"go.uber.org/zap"
)

const (
	// Time allowed to write an event to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next message from the peer
	readWait = 60 * time.Second

	// Send pings to peer with this period (must be less than readWait)
	pingPeriod = (readWait * 9) / 10

	// Maximum payload size allowed from peer
	maxEventSize = 64 * 1024 // 64KB

	// Send buffer size
	sendBufferSize = 256
)

// Client is one admitted websocket connection with its cached identity.
// The identity is resolved once at admission and is read-only for the
// connection's lifetime; persisted records are always attributed to it,
// never to a client-supplied id.
type Client struct {
	conn *websocket.Conn

	hub *Hub

	// user is the identity resolved by the connection gate.
	user *models.User

	// Buffered channel of outbound serialized events
	send chan []byte

	ConnectedAt time.Time
	RemoteAddr  string
	UserAgent   string

	rateLimiter *RateLimiter

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
	// sendClosed is set by the hub before it closes the send channel,
	// so concurrent Send calls never hit a closed channel.
	sendClosed bool
}

// RateLimiter implements a simple token bucket rate limiter
type RateLimiter struct {
	tokens    float64
	maxTokens float64
	refill    float64
	lastTime  time.Time
	mu        sync.Mutex
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(maxPerSecond int, burst int) *RateLimiter {
	return &RateLimiter{
		tokens:    float64(burst),
		maxTokens: float64(burst),
		refill:    float64(maxPerSecond),
		lastTime:  time.Now(),
	}
}

// Allow checks if an action is allowed and consumes a token
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(r.lastTime).Seconds()
	r.lastTime = now

	r.tokens += elapsed * r.refill
	if r.tokens > r.maxTokens {
		r.tokens = r.maxTokens
	}

	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// NewClient wraps an admitted connection.
func NewClient(hub *Hub, conn *websocket.Conn, user *models.User) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	config := hub.GetRateLimitConfig()

	return &Client{
		hub:         hub,
		conn:        conn,
		user:        user,
		send:        make(chan []byte, sendBufferSize),
		ConnectedAt: time.Now(),
		rateLimiter: NewRateLimiter(config.MaxEventsPerSecond, config.BurstSize),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// UserID returns the authenticated owner of this connection.
func (c *Client) UserID() string {
	return c.user.ID
}

// Username returns the owner's handle.
func (c *Client) Username() string {
	return c.user.Username
}

// User returns the identity cached at admission.
func (c *Client) User() *models.User {
	return c.user
}

// ReadPump pumps events from the connection into the router. Events on
// one connection are handled in receipt order; a handler finishes
// before the next event is read.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxEventSize)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		readCtx, readCancel := context.WithTimeout(c.ctx, readWait)
		_, data, err := c.conn.Read(readCtx)
		readCancel()

		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway {
				logger.Log.Info("client disconnected normally", zap.String("user", c.UserID()))
			} else if c.ctx.Err() == nil {
				logger.Log.Error("read error for client", zap.String("user", c.UserID()), zap.Error(err))
				c.hub.stats.Errors.Add(1)
			}
			return
		}

		if !c.rateLimiter.Allow() {
			c.SendError(EventError, &relayerr.Error{
				Code:    relayerr.CodeRateLimited,
				Message: "too many events, slow down",
			})
			c.hub.stats.Errors.Add(1)
			continue
		}

		c.hub.stats.EventsReceived.Add(1)

		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			logger.Log.Warn("event parse error",
				zap.String("user", c.UserID()),
				zap.Error(err))
			c.SendError(EventError, relayerr.Validation("failed to parse event"))
			continue
		}

		c.handleEvent(&event)
	}
}

// WritePump pumps events from the hub to the connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.conn.Close(websocket.StatusGoingAway, "server shutdown")
			return

		case data, ok := <-c.send:
			if !ok {
				c.conn.Close(websocket.StatusNormalClosure, "closing")
				return
			}

			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, data)
			cancel()

			if err != nil {
				logger.Log.Error("write error for client", zap.String("user", c.UserID()), zap.Error(err))
				c.hub.stats.Errors.Add(1)
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Ping(ctx)
			cancel()

			if err != nil {
				logger.Log.Warn("ping failed for client", zap.String("user", c.UserID()), zap.Error(err))
				return
			}
		}
	}
}

// handleEvent routes one inbound event. Handler panics and errors are
// contained here: they become an error event on this connection and
// never terminate it or cross to another connection.
func (c *Client) handleEvent(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = FlexibleTime{Time: time.Now().UTC()}
	}

	metrics.Get().EventsReceived.WithLabelValues(event.Type).Inc()

	if event.Type == EventPing || event.Type == "heartbeat" { // "heartbeat" is an alias
		c.handlePing(event)
		return
	}

	handler, ok := c.hub.GetHandler(event.Type)
	if !ok {
		logger.Log.Warn("unknown event type",
			zap.String("user", c.UserID()),
			zap.String("type", event.Type))
		c.SendError(EventError, relayerr.UnknownEvent(event.Type))
		return
	}

	errTag := errorEventFor(event.Type)

	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("handler panic",
				zap.String("type", event.Type),
				zap.Any("panic", r))
			c.hub.stats.Errors.Add(1)
			c.SendError(errTag, relayerr.Internal())
		}
	}()

	if err := handler(c, event); err != nil {
		re := relayerr.From(err)
		logger.Log.Warn("handler error",
			zap.String("type", event.Type),
			zap.String("code", string(re.Code)),
			zap.Error(err))
		c.SendError(errTag, re)
	}
}

// handlePing responds with a pong carrying round-trip timing.
func (c *Client) handlePing(event *Event) {
	var ping PingPayload
	if err := event.ParsePayload(&ping); err != nil {
		ping.ClientTime = 0
	}

	serverTime := time.Now().UnixMilli()
	pong := NewEvent(EventPong, PongPayload{
		ClientTime: ping.ClientTime,
		ServerTime: serverTime,
		Latency:    serverTime - ping.ClientTime,
	})

	if event.ID != "" {
		pong.ReplyTo = event.ID
	}

	// Best-effort: the connection may be closing
	_ = c.Send(pong)
}

// Send queues an event for delivery to this connection. Safe against
// the hub tearing the connection down concurrently: a departed client
// reports an error instead of panicking on its closed channel. The
// read lock is held across the channel send; closeSend takes the write
// lock before closing, so the two can never interleave.
func (c *Client) Send(event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed || c.sendClosed {
		return fmt.Errorf("client connection closed")
	}

	select {
	case c.send <- data:
		c.hub.stats.EventsSent.Add(1)
		metrics.Get().EventsSent.Inc()
		return nil
	case <-c.ctx.Done():
		return fmt.Errorf("client shutting down")
	default:
		return fmt.Errorf("send buffer full")
	}
}

// closeSend closes the outbound channel. Only the hub calls this, after
// the client has left the registry and its rooms. Idempotent.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.send)
}

// sendBestEffort queues raw bytes if the channel is still open and has
// room, dropping them otherwise.
func (c *Client) sendBestEffort(data []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sendClosed {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// SendError reports a classified error to this connection only, under
// the given outbound error tag.
func (c *Client) SendError(errTag string, err *relayerr.Error) {
	metrics.Get().EventErrors.WithLabelValues(string(err.Code)).Inc()
	_ = c.Send(NewErrorEvent(errTag, err))
}

// Close closes the client connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	c.cancel()

	if c.conn != nil {
		c.conn.Close(websocket.StatusNormalClosure, "closing")
	}
}

// IsClosed reports whether the connection has been closed.
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
