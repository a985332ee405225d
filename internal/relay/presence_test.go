package relay

import (
	"context"
	"testing"
	"time"

	"github.com/ripplesocial/relay/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPresenceFixture(t *testing.T) (*Hub, *Tracker, *store.MockStore) {
	t.Helper()

	hub := NewHub(NewRoomManager())
	mockStore := store.NewMockStore()
	tracker := NewTracker(hub, mockStore, nil, 2*time.Second)

	go hub.Run()
	t.Cleanup(func() {
		tracker.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = hub.Shutdown(ctx)
	})

	return hub, tracker, mockStore
}

func TestPresenceFirstConnectionAnnounces(t *testing.T) {
	hub, tracker, mockStore := newPresenceFixture(t)

	watcher := testClient(hub, "user-w", "watcher")
	hub.Register(watcher)
	require.Eventually(t, func() bool {
		return hub.IsUserOnline("user-w")
	}, 2*time.Second, 5*time.Millisecond)

	c1 := testClient(hub, "user-a", "alice")
	tracker.OnClientConnect(c1)

	online := recvEvent(t, watcher)
	assert.Equal(t, EventUserOnline, online.Type)

	var payload PresencePayload
	require.NoError(t, online.ParsePayload(&payload))
	assert.Equal(t, "user-a", payload.UserID)
	assert.Equal(t, "online", payload.Status)

	// Second device for the same user: no announcement, but the
	// last-active touch still happens.
	c2 := testClient(hub, "user-a", "alice")
	tracker.OnClientConnect(c2)
	assertNoEvent(t, watcher)

	assert.Equal(t, 1, tracker.OnlineCount())
	assert.Eventually(t, func() bool {
		_, ok := mockStore.LastActiveAt("user-a")
		return ok
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPresenceLastDisconnectAnnounces(t *testing.T) {
	hub, tracker, _ := newPresenceFixture(t)

	watcher := testClient(hub, "user-w", "watcher")
	hub.Register(watcher)
	require.Eventually(t, func() bool {
		return hub.IsUserOnline("user-w")
	}, 2*time.Second, 5*time.Millisecond)

	c1 := testClient(hub, "user-a", "alice")
	c2 := testClient(hub, "user-a", "alice")
	tracker.OnClientConnect(c1)
	assert.Equal(t, EventUserOnline, recvEvent(t, watcher).Type)
	tracker.OnClientConnect(c2)

	// First disconnect: user still online, silence
	tracker.OnClientDisconnect(c1)
	assertNoEvent(t, watcher)
	assert.Equal(t, 1, tracker.OnlineCount())

	// Last disconnect: user goes offline
	tracker.OnClientDisconnect(c2)

	offline := recvEvent(t, watcher)
	assert.Equal(t, EventUserOffline, offline.Type)

	var payload PresencePayload
	require.NoError(t, offline.ParsePayload(&payload))
	assert.Equal(t, "user-a", payload.UserID)
	assert.Equal(t, "offline", payload.Status)

	assert.Equal(t, 0, tracker.OnlineCount())
}

func TestPresenceUnknownDisconnectIsNoOp(t *testing.T) {
	hub, tracker, _ := newPresenceFixture(t)

	c := testClient(hub, "user-x", "stranger")
	tracker.OnClientDisconnect(c)
	assert.Equal(t, 0, tracker.OnlineCount())
}

func TestPresenceSurvivesStoreFailure(t *testing.T) {
	hub, tracker, mockStore := newPresenceFixture(t)

	watcher := testClient(hub, "user-w", "watcher")
	hub.Register(watcher)
	require.Eventually(t, func() bool {
		return hub.IsUserOnline("user-w")
	}, 2*time.Second, 5*time.Millisecond)

	mockStore.FailNext = context.DeadlineExceeded

	c := testClient(hub, "user-a", "alice")
	tracker.OnClientConnect(c)

	// The announcement goes out even though the touch failed
	assert.Equal(t, EventUserOnline, recvEvent(t, watcher).Type)
	assert.Equal(t, 1, tracker.OnlineCount())
}
