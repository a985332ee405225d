package relay

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/ripplesocial/relay/internal/identity"
	"github.com/ripplesocial/relay/internal/logger"
	"github.com/ripplesocial/relay/internal/metrics"
	"github.com/ripplesocial/relay/internal/models"
	"github.com/ripplesocial/relay/internal/relayerr"
	"go.uber.org/zap"
)

// Handler is the connection gate: it owns the websocket upgrade
// endpoint and the admission decision made once per connection attempt,
// before any event is processed.
type Handler struct {
	hub      *Hub
	verifier identity.Verifier
	presence *Tracker

	// Bound on the identity verifier call during admission; expiry
	// rejects the attempt instead of hanging it.
	verifyTimeout time.Duration
}

// NewHandler creates the gate.
func NewHandler(hub *Hub, verifier identity.Verifier, presence *Tracker, verifyTimeout time.Duration) *Handler {
	if verifyTimeout <= 0 {
		verifyTimeout = 5 * time.Second
	}
	return &Handler{
		hub:           hub,
		verifier:      verifier,
		presence:      presence,
		verifyTimeout: verifyTimeout,
	}
}

// HandleWebSocket admits or rejects a connection attempt.
// The credential arrives as ?token=... or an Authorization header;
// there is no way to authenticate after the handshake. A rejected
// attempt is simply refused: the client reconnects with a valid
// credential, the relay never retries.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	user, admissionErr := h.admit(c)
	if admissionErr != nil {
		metrics.Get().AdmissionsRejected.WithLabelValues(string(admissionErr.Code)).Inc()
		logger.Log.Info("connection rejected",
			zap.String("code", string(admissionErr.Code)),
			zap.String("ip", c.ClientIP()))
		c.JSON(admissionErr.Code.StatusCode(), gin.H{
			"error":   admissionErr.Code,
			"message": admissionErr.Message,
		})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // TODO: restrict origins once the web client's domains are final
		CompressionMode:    websocket.CompressionContextTakeover,
	})
	if err != nil {
		logger.Log.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(h.hub, conn, user)
	client.RemoteAddr = c.ClientIP()
	client.UserAgent = c.GetHeader("User-Agent")

	h.hub.Register(client)
	h.presence.OnClientConnect(client)

	client.Send(NewEvent(EventSystem, SystemPayload{
		Event:   "connected",
		Message: "connected to ripple relay",
		Data: map[string]interface{}{
			"user_id":     user.ID,
			"username":    user.Username,
			"server_time": time.Now().UTC().UnixMilli(),
		},
	}))

	go client.WritePump()
	client.ReadPump() // blocks until the client disconnects

	h.presence.OnClientDisconnect(client)
}

// admit extracts the credential and resolves it, bounded by the
// verify timeout.
func (h *Handler) admit(c *gin.Context) (*models.User, *relayerr.Error) {
	credential := extractCredential(c)
	if credential == "" {
		return nil, relayerr.AuthRequired()
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.verifyTimeout)
	defer cancel()

	start := time.Now()
	resolved, err := h.verifier.Verify(ctx, credential)
	metrics.Get().VerifyCallDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		var re *relayerr.Error
		if errors.As(err, &re) {
			return nil, re
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, relayerr.Timeout("authentication")
		}
		return nil, relayerr.InvalidCredential("")
	}
	return resolved, nil
}

// extractCredential pulls the token from the query string or the
// Authorization header ("Bearer <token>" or bare).
func extractCredential(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	if auth := c.GetHeader("Authorization"); auth != "" {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// HandleOnlineStatus checks which of the requested users are online.
func (h *Handler) HandleOnlineStatus(c *gin.Context) {
	var req struct {
		UserIDs []string `json:"user_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	statuses := make(map[string]bool)
	for _, userID := range req.UserIDs {
		statuses[userID] = h.hub.IsUserOnline(userID)
	}

	c.JSON(http.StatusOK, gin.H{
		"statuses":  statuses,
		"timestamp": time.Now().UTC(),
	})
}

// HandleStats returns hub counters for monitoring.
func (h *Handler) HandleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"relay":        h.hub.Snapshot(),
		"online_users": h.hub.OnlineUsers(),
		"timestamp":    time.Now().UTC(),
	})
}

// Shutdown gracefully closes all connections.
func (h *Handler) Shutdown(ctx context.Context) error {
	return h.hub.Shutdown(ctx)
}
