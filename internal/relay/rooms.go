package relay

import (
	"sync"

	"github.com/ripplesocial/relay/internal/metrics"
)

// LiveRoomName returns the room name for a live broadcast.
func LiveRoomName(videoID string) string {
	return "live:" + videoID
}

// RoomManager groups connections into named rooms for scoped fan-out.
// Join and Leave are idempotent; joining a nonexistent room creates it.
// Broadcast snapshots the member set at call time, so a connection
// joining mid-broadcast may or may not see that particular event.
type RoomManager struct {
	mu sync.RWMutex

	// rooms maps room name to member set.
	rooms map[string]map[*Client]struct{}

	// memberships is the reverse index, used to clear a disconnecting
	// client out of every room it joined.
	memberships map[*Client]map[string]struct{}
}

// NewRoomManager creates an empty room manager.
func NewRoomManager() *RoomManager {
	return &RoomManager{
		rooms:       make(map[string]map[*Client]struct{}),
		memberships: make(map[*Client]map[string]struct{}),
	}
}

// Join adds a connection to a room, creating the room if needed.
func (rm *RoomManager) Join(client *Client, room string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.rooms[room] == nil {
		rm.rooms[room] = make(map[*Client]struct{})
		metrics.Get().LiveRooms.Inc()
	}
	rm.rooms[room][client] = struct{}{}

	if rm.memberships[client] == nil {
		rm.memberships[client] = make(map[string]struct{})
	}
	rm.memberships[client][room] = struct{}{}
}

// Leave removes a connection from a room. Safe to call when the
// connection never joined.
func (rm *RoomManager) Leave(client *Client, room string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.leaveLocked(client, room)
}

// LeaveAll removes a connection from every room it belongs to.
// Idempotent; called on disconnect.
func (rm *RoomManager) LeaveAll(client *Client) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	for room := range rm.memberships[client] {
		rm.leaveLocked(client, room)
	}
}

func (rm *RoomManager) leaveLocked(client *Client, room string) {
	if members, ok := rm.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(rm.rooms, room)
			metrics.Get().LiveRooms.Dec()
		}
	}
	if joined, ok := rm.memberships[client]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(rm.memberships, client)
		}
	}
}

// Count returns the current member count of a room.
func (rm *RoomManager) Count(room string) int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.rooms[room])
}

// Contains reports whether a connection is in a room.
func (rm *RoomManager) Contains(client *Client, room string) bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	_, ok := rm.rooms[room][client]
	return ok
}

// Members returns a snapshot of a room's member set.
func (rm *RoomManager) Members(room string) []*Client {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	members := make([]*Client, 0, len(rm.rooms[room]))
	for client := range rm.rooms[room] {
		members = append(members, client)
	}
	return members
}

// Broadcast delivers an event to every connection currently in the
// room, except the optional excluded one. Broadcasting to an empty or
// unknown room is a no-op. Delivery is best-effort: a client whose
// send buffer is full misses the event rather than blocking the room.
func (rm *RoomManager) Broadcast(room string, event *Event, exclude *Client) {
	members := rm.Members(room)
	if len(members) == 0 {
		return
	}

	metrics.Get().RoomBroadcasts.Inc()
	for _, client := range members {
		if client == exclude {
			continue
		}
		_ = client.Send(event)
	}
}
