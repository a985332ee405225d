// Package relay implements the real-time fan-out core: connection
// admission, presence, live rooms, and typed event routing over
// websocket connections. Uses github.com/coder/websocket, the modern
// context-aware WebSocket library for Go.
package relay

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ripplesocial/relay/internal/models"
	"github.com/ripplesocial/relay/internal/relayerr"
)

// FlexibleTime handles both Unix millisecond timestamps and RFC3339 strings
type FlexibleTime struct {
	time.Time
}

// UnmarshalJSON implements custom unmarshaling for timestamps
func (ft *FlexibleTime) UnmarshalJSON(b []byte) error {
	var ms int64
	if err := json.Unmarshal(b, &ms); err == nil {
		ft.Time = time.UnixMilli(ms)
		return nil
	}

	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("timestamp must be Unix milliseconds (integer) or RFC3339 string")
	}

	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return err
	}
	ft.Time = t
	return nil
}

// MarshalJSON always outputs RFC3339
func (ft FlexibleTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(ft.Time)
}

// Inbound event types
const (
	EventSendMessage          = "send_message"
	EventMarkNotificationRead = "mark_notification_read"
	EventLikePost             = "like_post"
	EventCommentPost          = "comment_post"
	EventJoinLive             = "join_live"
	EventLeaveLive            = "leave_live"
	EventLiveChatMessage      = "live_chat_message"
	EventStartCall            = "start_call"
	EventAnswerCall           = "answer_call"
	EventEndCall              = "end_call"
	EventTyping               = "typing"
	EventStopTyping           = "stop_typing"
	EventPing                 = "ping"
)

// Outbound event types
const (
	EventSystem = "system"
	EventPong   = "pong"
	EventError  = "error"

	EventNewMessage   = "new_message"
	EventMessageSent  = "message_sent"
	EventMessageError = "message_error"

	EventNotification        = "notification"
	EventNotificationUpdated = "notification_updated"
	EventNotificationError   = "notification_error"

	EventPostLiked     = "post_liked"
	EventPostCommented = "post_commented"
	EventCommentError  = "comment_error"

	EventLiveJoined     = "live_joined"
	EventUserJoinedLive = "user_joined_live"
	EventUserLeftLive   = "user_left_live"
	EventLiveChatError  = "live_chat_error"

	EventIncomingCall  = "incoming_call"
	EventCallInitiated = "call_initiated"
	EventCallAnswered  = "call_answered"
	EventCallEnded     = "call_ended"
	EventCallError     = "call_error"

	EventUserTyping     = "user_typing"
	EventUserStopTyping = "user_stop_typing"

	EventUserOnline  = "user_online"
	EventUserOffline = "user_offline"
)

// Event is the wire envelope for everything crossing a connection.
type Event struct {
	// Type identifies the event for routing
	Type string `json:"type"`

	// Payload contains the event-specific data
	Payload interface{} `json:"payload,omitempty"`

	// ID is a unique event identifier for acknowledgment
	ID string `json:"id,omitempty"`

	// ReplyTo references the original event ID for responses
	ReplyTo string `json:"reply_to,omitempty"`

	// Timestamp when the event was created (accepts Unix ms or RFC3339)
	Timestamp FlexibleTime `json:"timestamp"`
}

// NewEvent creates an event with the current timestamp.
func NewEvent(eventType string, payload interface{}) *Event {
	return &Event{
		Type:      eventType,
		Payload:   payload,
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

// NewErrorEvent wraps a relay error under the given outbound error tag.
// Validation failures on send_message go out as message_error, bad live
// chat as live_chat_error, and so on; eventType selects the tag.
func NewErrorEvent(eventType string, err *relayerr.Error) *Event {
	return NewEvent(eventType, ErrorPayload{
		Code:    string(err.Code),
		Message: err.Message,
	})
}

// ParsePayload unmarshals the payload into a concrete type by
// round-tripping through JSON.
func (e *Event) ParsePayload(target interface{}) error {
	if e.Payload == nil {
		return nil
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

// ErrorPayload carries a classified error to the originating connection.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SystemPayload carries connection lifecycle announcements.
type SystemPayload struct {
	Event   string                 `json:"event"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// PingPayload and PongPayload implement client latency measurement.
type PingPayload struct {
	ClientTime int64 `json:"client_time"`
}

type PongPayload struct {
	ClientTime int64 `json:"client_time"`
	ServerTime int64 `json:"server_time"`
	Latency    int64 `json:"latency_ms"`
}

// SendMessagePayload is the inbound shape of send_message. The sender
// identity always comes from the connection, never from the payload.
type SendMessagePayload struct {
	ReceiverID  string   `json:"receiver_id"`
	Content     string   `json:"content"`
	MessageType string   `json:"message_type,omitempty"`
	Emojis      []string `json:"emojis,omitempty"`
}

// MessagePayload delivers a persisted message, both as the new_message
// fan-out to the receiver and the message_sent ack to the sender.
type MessagePayload struct {
	Message *models.Message `json:"message"`
}

// MarkNotificationReadPayload is the inbound shape of mark_notification_read.
type MarkNotificationReadPayload struct {
	NotificationID string `json:"notification_id"`
}

// NotificationPayload delivers a notification to its recipient.
type NotificationPayload struct {
	Notification *models.Notification `json:"notification"`
}

// LikePostPayload is the inbound shape of like_post.
type LikePostPayload struct {
	PostID string `json:"post_id"`
}

// PostLikedPayload is the global post_liked fan-out.
type PostLikedPayload struct {
	PostID   string `json:"post_id"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// CommentPostPayload is the inbound shape of comment_post.
type CommentPostPayload struct {
	PostID  string   `json:"post_id"`
	Content string   `json:"content"`
	Emojis  []string `json:"emojis,omitempty"`
}

// PostCommentedPayload is the global post_commented fan-out.
type PostCommentedPayload struct {
	PostID   string   `json:"post_id"`
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Content  string   `json:"content"`
	Emojis   []string `json:"emojis,omitempty"`
}

// LiveRoomPayload is the inbound shape of join_live and leave_live.
type LiveRoomPayload struct {
	VideoID string `json:"video_id"`
}

// LiveViewerPayload announces viewer churn inside a live room and acks
// a join to the caller.
type LiveViewerPayload struct {
	VideoID     string `json:"video_id"`
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	ViewerCount int    `json:"viewer_count"`
}

// LiveChatMessagePayload is the inbound shape of live_chat_message.
type LiveChatMessagePayload struct {
	VideoID string   `json:"video_id"`
	Message string   `json:"message"`
	Emojis  []string `json:"emojis,omitempty"`
}

// LiveChatBroadcastPayload is the room-wide chat fan-out, sender included.
type LiveChatBroadcastPayload struct {
	VideoID  string   `json:"video_id"`
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Message  string   `json:"message"`
	Emojis   []string `json:"emojis,omitempty"`
}

// Call kinds
const (
	CallTypeVideo = "video"
	CallTypeAudio = "audio"
)

// StartCallPayload is the inbound shape of start_call.
type StartCallPayload struct {
	ReceiverID string `json:"receiver_id"`
	CallType   string `json:"call_type,omitempty"`
}

// IncomingCallPayload rings the receiver's mailbox.
type IncomingCallPayload struct {
	CallerID   string `json:"caller_id"`
	CallerName string `json:"caller_name"`
	AvatarURL  string `json:"avatar_url,omitempty"`
	CallType   string `json:"call_type"`
}

// CallInitiatedPayload acks start_call to the caller.
type CallInitiatedPayload struct {
	ReceiverID string `json:"receiver_id"`
	CallType   string `json:"call_type"`
}

// AnswerCallPayload carries an opaque signaling answer back to the
// caller. The relay forwards Answer without inspecting it.
type AnswerCallPayload struct {
	CallerID string          `json:"caller_id"`
	Answer   json.RawMessage `json:"answer,omitempty"`
}

// CallAnsweredPayload is delivered to the caller's mailbox.
type CallAnsweredPayload struct {
	AnswererID string          `json:"answerer_id"`
	Answer     json.RawMessage `json:"answer,omitempty"`
}

// EndCallPayload is the inbound shape of end_call.
type EndCallPayload struct {
	OtherUserID string `json:"other_user_id"`
}

// CallEndedPayload tells the other participant the call is over.
type CallEndedPayload struct {
	UserID string `json:"user_id"`
}

// TypingPayload forwards a typing indicator to a message peer.
type TypingPayload struct {
	ReceiverID string `json:"receiver_id"`
}

// UserTypingPayload is delivered to the peer's mailbox.
type UserTypingPayload struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// PresencePayload announces a user coming online or going offline.
type PresencePayload struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}
