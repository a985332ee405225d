package store

import (
	"context"

	"github.com/ripplesocial/relay/internal/models"
)

// Store is the durable side of the relay: messages and notifications
// outlive connections, everything else is in-memory. The relay issues
// at most one write per inbound event and never batches.
type Store interface {
	// SaveMessage persists a new direct message. The message id and
	// timestamps are filled in on return.
	SaveMessage(ctx context.Context, msg *models.Message) error

	// CreateNotification records a notification for recipientID
	// attributed to actorID, referencing the related entity.
	CreateNotification(ctx context.Context, kind models.NotificationKind, recipientID, actorID, refID string) (*models.Notification, error)

	// FindNotification fetches a notification by id.
	FindNotification(ctx context.Context, id string) (*models.Notification, error)

	// MarkNotificationRead flips the read flag and returns the updated
	// notification.
	MarkNotificationRead(ctx context.Context, id string) (*models.Notification, error)

	// TouchLastActive records user activity. Best-effort: callers may
	// ignore the returned error, but that has to be their decision.
	TouchLastActive(ctx context.Context, userID string, online bool) error
}
