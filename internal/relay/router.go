package relay

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ripplesocial/relay/internal/identity"
	"github.com/ripplesocial/relay/internal/logger"
	"github.com/ripplesocial/relay/internal/metrics"
	"github.com/ripplesocial/relay/internal/models"
	"github.com/ripplesocial/relay/internal/relayerr"
	"github.com/ripplesocial/relay/internal/store"
	"go.uber.org/zap"
)

// errorEventFor maps an inbound event type to the outbound tag its
// failures are reported under.
func errorEventFor(eventType string) string {
	switch eventType {
	case EventSendMessage:
		return EventMessageError
	case EventMarkNotificationRead:
		return EventNotificationError
	case EventCommentPost:
		return EventCommentError
	case EventLiveChatMessage:
		return EventLiveChatError
	case EventStartCall, EventAnswerCall, EventEndCall:
		return EventCallError
	default:
		return EventError
	}
}

// Router wires inbound event types to their handlers. It holds no
// per-connection state: everything a handler needs arrives as the
// client (identity, connection) plus the shared services.
type Router struct {
	hub      *Hub
	rooms    *RoomManager
	verifier identity.Verifier
	store    store.Store

	// Bound on persistence store calls; expiry counts as store failure.
	storeTimeout time.Duration
}

// NewRouter creates the event router.
func NewRouter(hub *Hub, rooms *RoomManager, verifier identity.Verifier, st store.Store, storeTimeout time.Duration) *Router {
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &Router{
		hub:          hub,
		rooms:        rooms,
		verifier:     verifier,
		store:        st,
		storeTimeout: storeTimeout,
	}
}

// RegisterHandlers attaches every event handler to the hub.
func (r *Router) RegisterHandlers() {
	r.hub.RegisterHandler(EventSendMessage, r.handleSendMessage)
	r.hub.RegisterHandler(EventMarkNotificationRead, r.handleMarkNotificationRead)
	r.hub.RegisterHandler(EventLikePost, r.handleLikePost)
	r.hub.RegisterHandler(EventCommentPost, r.handleCommentPost)
	r.hub.RegisterHandler(EventJoinLive, r.handleJoinLive)
	r.hub.RegisterHandler(EventLeaveLive, r.handleLeaveLive)
	r.hub.RegisterHandler(EventLiveChatMessage, r.handleLiveChat)
	r.hub.RegisterHandler(EventStartCall, r.handleStartCall)
	r.hub.RegisterHandler(EventAnswerCall, r.handleAnswerCall)
	r.hub.RegisterHandler(EventEndCall, r.handleEndCall)
	r.hub.RegisterHandler(EventTyping, r.handleTyping)
	r.hub.RegisterHandler(EventStopTyping, r.handleStopTyping)
}

// storeCtx bounds a persistence call. Expiry is treated as a store
// failure and reported to the caller like any other.
func (r *Router) storeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.storeTimeout)
}

func classifyStoreErr(err error, op string) error {
	var re *relayerr.Error
	if errors.As(err, &re) {
		return re
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return relayerr.Timeout(op)
	}
	return relayerr.StoreFailure(op)
}

// observe records a store call's latency.
func observe(op string, start time.Time) {
	metrics.Get().StoreCallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// handleSendMessage persists a direct message and fans it out. The
// receiver is resolved before any write: a failed lookup leaves the
// store untouched. Delivery happens only after the write succeeded.
func (r *Router) handleSendMessage(c *Client, event *Event) error {
	var payload SendMessagePayload
	if err := event.ParsePayload(&payload); err != nil {
		return relayerr.Validation("malformed send_message payload")
	}

	if payload.ReceiverID == "" {
		return relayerr.Validation("receiver_id is required")
	}
	messageType := payload.MessageType
	if messageType == "" {
		messageType = models.MessageTypeText
	}
	if messageType == models.MessageTypeText && strings.TrimSpace(payload.Content) == "" {
		return relayerr.Validation("content is required for text messages")
	}

	ctx, cancel := r.storeCtx()
	defer cancel()

	// Resolve the receiver first so a bad target has no side effects.
	if _, err := r.verifier.Lookup(ctx, payload.ReceiverID); err != nil {
		var re *relayerr.Error
		if errors.As(err, &re) {
			return re
		}
		return classifyStoreErr(err, "receiver lookup")
	}

	message := &models.Message{
		SenderID:    c.UserID(),
		ReceiverID:  payload.ReceiverID,
		Content:     payload.Content,
		MessageType: messageType,
		Emojis:      payload.Emojis,
	}

	start := time.Now()
	err := r.store.SaveMessage(ctx, message)
	observe("save_message", start)
	if err != nil {
		return classifyStoreErr(err, "message save")
	}

	// The message is durable from here on; erroring the send now would
	// push the client into a retry that duplicates it. A failed
	// notification write is logged and the notification skipped.
	notification, err := r.store.CreateNotification(ctx, models.NotificationMessage, payload.ReceiverID, c.UserID(), message.ID)
	if err != nil {
		logger.Log.Warn("notification create failed",
			zap.String("message", message.ID),
			zap.Error(err))
		notification = nil
	}

	// Fan-out strictly after the durable write.
	r.hub.SendToUser(payload.ReceiverID, NewEvent(EventNewMessage, MessagePayload{Message: message}))
	if notification != nil {
		r.hub.SendToUser(payload.ReceiverID, NewEvent(EventNotification, NotificationPayload{Notification: notification}))
	}

	ack := NewEvent(EventMessageSent, MessagePayload{Message: message})
	if event.ID != "" {
		ack.ReplyTo = event.ID
	}
	return c.Send(ack)
}

// handleMarkNotificationRead flips the read flag, but only for the
// notification's own recipient.
func (r *Router) handleMarkNotificationRead(c *Client, event *Event) error {
	var payload MarkNotificationReadPayload
	if err := event.ParsePayload(&payload); err != nil {
		return relayerr.Validation("malformed mark_notification_read payload")
	}
	if payload.NotificationID == "" {
		return relayerr.Validation("notification_id is required")
	}

	ctx, cancel := r.storeCtx()
	defer cancel()

	notification, err := r.store.FindNotification(ctx, payload.NotificationID)
	if err != nil {
		return classifyStoreErr(err, "notification lookup")
	}
	if notification.RecipientID != c.UserID() {
		return relayerr.Forbidden("notification belongs to another user")
	}

	start := time.Now()
	updated, err := r.store.MarkNotificationRead(ctx, payload.NotificationID)
	observe("mark_notification_read", start)
	if err != nil {
		return classifyStoreErr(err, "notification update")
	}

	return c.Send(NewEvent(EventNotificationUpdated, NotificationPayload{Notification: updated}))
}

// handleLikePost broadcasts a like to every connected client. Post
// persistence lives in the main API; the relay only spreads the word.
func (r *Router) handleLikePost(c *Client, event *Event) error {
	var payload LikePostPayload
	if err := event.ParsePayload(&payload); err != nil {
		return relayerr.Validation("malformed like_post payload")
	}
	if payload.PostID == "" {
		return relayerr.Validation("post_id is required")
	}

	r.hub.Broadcast(NewEvent(EventPostLiked, PostLikedPayload{
		PostID:   payload.PostID,
		UserID:   c.UserID(),
		Username: c.Username(),
	}))
	return nil
}

// handleCommentPost broadcasts a comment to every connected client.
func (r *Router) handleCommentPost(c *Client, event *Event) error {
	var payload CommentPostPayload
	if err := event.ParsePayload(&payload); err != nil {
		return relayerr.Validation("malformed comment_post payload")
	}
	if payload.PostID == "" {
		return relayerr.Validation("post_id is required")
	}
	if strings.TrimSpace(payload.Content) == "" {
		return relayerr.Validation("comment content is required")
	}

	r.hub.Broadcast(NewEvent(EventPostCommented, PostCommentedPayload{
		PostID:   payload.PostID,
		UserID:   c.UserID(),
		Username: c.Username(),
		Content:  payload.Content,
		Emojis:   payload.Emojis,
	}))
	return nil
}

// handleJoinLive adds the connection to a live room, acks the caller
// with the viewer count, and tells the room. Best-effort throughout.
func (r *Router) handleJoinLive(c *Client, event *Event) error {
	var payload LiveRoomPayload
	if err := event.ParsePayload(&payload); err != nil {
		return relayerr.Validation("malformed join_live payload")
	}
	if payload.VideoID == "" {
		return relayerr.Validation("video_id is required")
	}

	room := LiveRoomName(payload.VideoID)
	r.rooms.Join(c, room)

	viewer := LiveViewerPayload{
		VideoID:     payload.VideoID,
		UserID:      c.UserID(),
		Username:    c.Username(),
		ViewerCount: r.rooms.Count(room),
	}

	r.rooms.Broadcast(room, NewEvent(EventUserJoinedLive, viewer), c)

	ack := NewEvent(EventLiveJoined, viewer)
	if event.ID != "" {
		ack.ReplyTo = event.ID
	}
	return c.Send(ack)
}

// handleLeaveLive removes the connection from a live room and tells
// the remaining viewers.
func (r *Router) handleLeaveLive(c *Client, event *Event) error {
	var payload LiveRoomPayload
	if err := event.ParsePayload(&payload); err != nil {
		return relayerr.Validation("malformed leave_live payload")
	}
	if payload.VideoID == "" {
		return relayerr.Validation("video_id is required")
	}

	room := LiveRoomName(payload.VideoID)
	r.rooms.Leave(c, room)

	r.rooms.Broadcast(room, NewEvent(EventUserLeftLive, LiveViewerPayload{
		VideoID:     payload.VideoID,
		UserID:      c.UserID(),
		Username:    c.Username(),
		ViewerCount: r.rooms.Count(room),
	}), nil)
	return nil
}

// handleLiveChat broadcasts a chat line to the whole live room,
// sender included.
func (r *Router) handleLiveChat(c *Client, event *Event) error {
	var payload LiveChatMessagePayload
	if err := event.ParsePayload(&payload); err != nil {
		return relayerr.Validation("malformed live_chat_message payload")
	}
	if payload.VideoID == "" {
		return relayerr.Validation("video_id is required")
	}
	if strings.TrimSpace(payload.Message) == "" {
		return relayerr.Validation("message is required")
	}

	r.rooms.Broadcast(LiveRoomName(payload.VideoID), NewEvent(EventLiveChatMessage, LiveChatBroadcastPayload{
		VideoID:  payload.VideoID,
		UserID:   c.UserID(),
		Username: c.Username(),
		Message:  payload.Message,
		Emojis:   payload.Emojis,
	}), nil)
	return nil
}

// handleStartCall rings the receiver's mailbox. The relay keeps no
// call session state; signaling is fully client-driven.
func (r *Router) handleStartCall(c *Client, event *Event) error {
	var payload StartCallPayload
	if err := event.ParsePayload(&payload); err != nil {
		return relayerr.Validation("malformed start_call payload")
	}
	if payload.ReceiverID == "" {
		return relayerr.Validation("receiver_id is required")
	}
	callType := payload.CallType
	if callType == "" {
		callType = CallTypeVideo
	}

	ctx, cancel := r.storeCtx()
	defer cancel()

	if _, err := r.verifier.Lookup(ctx, payload.ReceiverID); err != nil {
		var re *relayerr.Error
		if errors.As(err, &re) {
			return re
		}
		return classifyStoreErr(err, "receiver lookup")
	}

	r.hub.SendToUser(payload.ReceiverID, NewEvent(EventIncomingCall, IncomingCallPayload{
		CallerID:   c.UserID(),
		CallerName: c.Username(),
		AvatarURL:  c.User().AvatarURL,
		CallType:   callType,
	}))

	return c.Send(NewEvent(EventCallInitiated, CallInitiatedPayload{
		ReceiverID: payload.ReceiverID,
		CallType:   callType,
	}))
}

// handleAnswerCall forwards the opaque answer to the caller's mailbox.
func (r *Router) handleAnswerCall(c *Client, event *Event) error {
	var payload AnswerCallPayload
	if err := event.ParsePayload(&payload); err != nil {
		return relayerr.Validation("malformed answer_call payload")
	}
	if payload.CallerID == "" {
		return relayerr.Validation("caller_id is required")
	}

	r.hub.SendToUser(payload.CallerID, NewEvent(EventCallAnswered, CallAnsweredPayload{
		AnswererID: c.UserID(),
		Answer:     payload.Answer,
	}))
	return nil
}

// handleEndCall tells the other participant the call is over.
func (r *Router) handleEndCall(c *Client, event *Event) error {
	var payload EndCallPayload
	if err := event.ParsePayload(&payload); err != nil {
		return relayerr.Validation("malformed end_call payload")
	}
	if payload.OtherUserID == "" {
		return relayerr.Validation("other_user_id is required")
	}

	r.hub.SendToUser(payload.OtherUserID, NewEvent(EventCallEnded, CallEndedPayload{
		UserID: c.UserID(),
	}))
	return nil
}

// handleTyping forwards a typing indicator to the peer's mailbox.
func (r *Router) handleTyping(c *Client, event *Event) error {
	return r.forwardTyping(c, event, EventUserTyping)
}

// handleStopTyping clears a typing indicator.
func (r *Router) handleStopTyping(c *Client, event *Event) error {
	return r.forwardTyping(c, event, EventUserStopTyping)
}

func (r *Router) forwardTyping(c *Client, event *Event, outbound string) error {
	var payload TypingPayload
	if err := event.ParsePayload(&payload); err != nil {
		return relayerr.Validation("malformed typing payload")
	}
	if payload.ReceiverID == "" {
		return relayerr.Validation("receiver_id is required")
	}

	r.hub.SendToUser(payload.ReceiverID, NewEvent(outbound, UserTypingPayload{
		UserID:   c.UserID(),
		Username: c.Username(),
	}))
	return nil
}
