package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents a Ripple account. The relay only ever reads users; it
// caches a copy on each connection for the connection's lifetime and
// never writes profile fields.
type User struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	Username    string `gorm:"uniqueIndex;not null" json:"username"`
	DisplayName string `gorm:"not null" json:"display_name"`
	AvatarURL   string `json:"avatar_url"`

	IsVerified bool `gorm:"default:false" json:"is_verified"`
	IsBanned   bool `gorm:"default:false" json:"is_banned"`

	// Activity tracking
	LastActiveAt *time.Time `json:"last_active_at"`
	IsOnline     bool       `gorm:"default:false" json:"is_online"`

	// GORM fields
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// MessageType distinguishes text messages from media references.
const (
	MessageTypeText  = "text"
	MessageTypeMedia = "media"
)

// Message is a direct message between two users. Immutable once
// persisted, except for the read flag.
type Message struct {
	ID         string `gorm:"primaryKey;type:uuid" json:"id"`
	SenderID   string `gorm:"not null;index" json:"sender_id"`
	Sender     User   `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	ReceiverID string `gorm:"not null;index" json:"receiver_id"`
	Receiver   User   `gorm:"foreignKey:ReceiverID" json:"receiver,omitempty"`

	Content     string   `gorm:"type:text" json:"content"`
	MessageType string   `gorm:"default:text" json:"message_type"`
	Emojis      []string `gorm:"type:jsonb;serializer:json" json:"emojis,omitempty"`

	IsRead bool `gorm:"default:false" json:"is_read"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NotificationKind classifies what triggered a notification.
type NotificationKind string

const (
	NotificationMessage NotificationKind = "message"
	NotificationLike    NotificationKind = "like"
	NotificationComment NotificationKind = "comment"
	NotificationFollow  NotificationKind = "follow"
	NotificationCall    NotificationKind = "call"
)

// Notification is created as a side effect of other events, addressed
// to a single recipient and attributed to the acting user.
type Notification struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	RecipientID string `gorm:"not null;index" json:"recipient_id"`
	Recipient   User   `gorm:"foreignKey:RecipientID" json:"recipient,omitempty"`
	ActorID     string `gorm:"not null;index" json:"actor_id"`
	Actor       User   `gorm:"foreignKey:ActorID" json:"actor,omitempty"`

	Kind NotificationKind `gorm:"not null" json:"kind"`
	// RefID points at the related entity (message id, post id, ...).
	RefID string `gorm:"index" json:"ref_id"`

	IsRead bool `gorm:"default:false" json:"is_read"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate hooks for GORM

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = generateUUID()
	}
	return nil
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = generateUUID()
	}
	if m.MessageType == "" {
		m.MessageType = MessageTypeText
	}
	return nil
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = generateUUID()
	}
	return nil
}

func generateUUID() string {
	return uuid.New().String()
}
