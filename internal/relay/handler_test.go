package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/ripplesocial/relay/internal/identity"
	"github.com/ripplesocial/relay/internal/models"
	"github.com/ripplesocial/relay/internal/relayerr"
	"github.com/ripplesocial/relay/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gateFixture struct {
	hub      *Hub
	verifier *identity.MockVerifier
	router   *gin.Engine
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rooms := NewRoomManager()
	hub := NewHub(rooms)
	verifier := identity.NewMockVerifier()
	mockStore := store.NewMockStore()
	tracker := NewTracker(hub, mockStore, nil, 2*time.Second)

	eventRouter := NewRouter(hub, rooms, verifier, mockStore, 2*time.Second)
	eventRouter.RegisterHandlers()

	gate := NewHandler(hub, verifier, tracker, 2*time.Second)

	router := gin.New()
	router.GET("/ws", gate.HandleWebSocket)
	router.POST("/ws/online", gate.HandleOnlineStatus)
	router.GET("/ws/stats", gate.HandleStats)

	go hub.Run()
	t.Cleanup(func() {
		tracker.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = hub.Shutdown(ctx)
	})

	return &gateFixture{hub: hub, verifier: verifier, router: router}
}

func (f *gateFixture) request(method, path string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func rejectionCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error
}

func TestAdmissionMissingCredential(t *testing.T) {
	f := newGateFixture(t)

	w := f.request(http.MethodGet, "/ws", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, string(relayerr.CodeAuthRequired), rejectionCode(t, w))
}

func TestAdmissionInvalidCredential(t *testing.T) {
	f := newGateFixture(t)

	w := f.request(http.MethodGet, "/ws?token=garbage", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, string(relayerr.CodeInvalidCredential), rejectionCode(t, w))
}

func TestAdmissionBannedUser(t *testing.T) {
	f := newGateFixture(t)
	credential := f.verifier.AddUser(&models.User{ID: "user-banned", Username: "troll", IsBanned: true})

	w := f.request(http.MethodGet, "/ws?token="+credential, nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, string(relayerr.CodeUserUnavailable), rejectionCode(t, w))
}

func TestAdmissionVerifierTimeout(t *testing.T) {
	f := newGateFixture(t)
	f.verifier.VerifyFunc = func(ctx context.Context, credential string) (*models.User, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	w := f.request(http.MethodGet, "/ws?token=whatever", nil)

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Equal(t, string(relayerr.CodeTimeout), rejectionCode(t, w))
}

func TestAdmissionBearerHeader(t *testing.T) {
	f := newGateFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	// Credential was extracted and checked, so the failure is about the
	// token itself, not its absence.
	assert.Equal(t, string(relayerr.CodeInvalidCredential), rejectionCode(t, w))
}

// readUntil reads frames until an event of the wanted type arrives.
// Presence broadcasts can interleave with directed events, so tests
// never assume a global delivery order.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, eventType string) *Event {
	t.Helper()
	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)

		var event Event
		require.NoError(t, json.Unmarshal(data, &event))
		if event.Type == eventType {
			return &event
		}
	}
}

func TestWebSocketConnectAndWelcome(t *testing.T) {
	f := newGateFixture(t)
	credential := f.verifier.AddUser(&models.User{ID: "user-a", Username: "alice"})

	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + credential
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	welcome := readUntil(t, ctx, conn, EventSystem)

	var payload SystemPayload
	require.NoError(t, welcome.ParsePayload(&payload))
	assert.Equal(t, "connected", payload.Event)
	assert.Equal(t, "user-a", payload.Data["user_id"])

	assert.Eventually(t, func() bool {
		return f.hub.IsUserOnline("user-a")
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWebSocketRoundTrip(t *testing.T) {
	f := newGateFixture(t)
	credential := f.verifier.AddUser(&models.User{ID: "user-a", Username: "alice"})

	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + credential
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	readUntil(t, ctx, conn, EventSystem)

	ping, _ := json.Marshal(Event{Type: EventPing, ID: "p1"})
	require.NoError(t, conn.Write(ctx, websocket.MessageText, ping))

	pong := readUntil(t, ctx, conn, EventPong)
	assert.Equal(t, "p1", pong.ReplyTo)
}

func TestHandleOnlineStatus(t *testing.T) {
	f := newGateFixture(t)

	c := testClient(f.hub, "user-a", "alice")
	f.hub.Register(c)
	require.Eventually(t, func() bool {
		return f.hub.IsUserOnline("user-a")
	}, 2*time.Second, 5*time.Millisecond)

	body, _ := json.Marshal(map[string][]string{"user_ids": {"user-a", "user-b"}})
	w := f.request(http.MethodPost, "/ws/online", body)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Statuses map[string]bool `json:"statuses"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Statuses["user-a"])
	assert.False(t, resp.Statuses["user-b"])
}

func TestHandleOnlineStatusBadRequest(t *testing.T) {
	f := newGateFixture(t)

	w := f.request(http.MethodPost, "/ws/online", []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleStats(t *testing.T) {
	f := newGateFixture(t)

	w := f.request(http.MethodGet, "/ws/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Relay       StatsSnapshot `json:"relay"`
		OnlineUsers []string      `json:"online_users"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.OnlineUsers)
}
