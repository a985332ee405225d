package store

import (
	"context"
	"errors"
	"time"

	"github.com/ripplesocial/relay/internal/models"
	"github.com/ripplesocial/relay/internal/relayerr"
	"gorm.io/gorm"
)

// GormStore persists messages and notifications through GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps a database handle.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) SaveMessage(ctx context.Context, msg *models.Message) error {
	return s.db.WithContext(ctx).Create(msg).Error
}

func (s *GormStore) CreateNotification(ctx context.Context, kind models.NotificationKind, recipientID, actorID, refID string) (*models.Notification, error) {
	notification := &models.Notification{
		RecipientID: recipientID,
		ActorID:     actorID,
		Kind:        kind,
		RefID:       refID,
	}
	if err := s.db.WithContext(ctx).Create(notification).Error; err != nil {
		return nil, err
	}
	return notification, nil
}

func (s *GormStore) FindNotification(ctx context.Context, id string) (*models.Notification, error) {
	var notification models.Notification
	err := s.db.WithContext(ctx).First(&notification, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, relayerr.NotFound("notification")
		}
		return nil, err
	}
	return &notification, nil
}

func (s *GormStore) MarkNotificationRead(ctx context.Context, id string) (*models.Notification, error) {
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ?", id).
		Update("is_read", true).Error
	if err != nil {
		return nil, err
	}
	return s.FindNotification(ctx, id)
}

func (s *GormStore) TouchLastActive(ctx context.Context, userID string, online bool) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"is_online":      online,
			"last_active_at": now,
		}).Error
}

var _ Store = (*GormStore)(nil)
