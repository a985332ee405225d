package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ripplesocial/relay/internal/models"
	"github.com/ripplesocial/relay/internal/relayerr"
)

// MockStore is an in-memory Store for testing. Every write can be
// forced to fail via FailNext, and all persisted state is inspectable.
type MockStore struct {
	mu sync.Mutex

	Messages      []*models.Message
	Notifications map[string]*models.Notification
	LastActive    map[string]time.Time

	// FailNext makes the next state-changing call return this error.
	FailNext error

	// FailNotifications makes every notification write return this
	// error while leaving message writes untouched.
	FailNotifications error
}

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		Notifications: make(map[string]*models.Notification),
		LastActive:    make(map[string]time.Time),
	}
}

func (m *MockStore) takeFailure() error {
	err := m.FailNext
	m.FailNext = nil
	return err
}

func (m *MockStore) SaveMessage(ctx context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.CreatedAt = time.Now().UTC()
	m.Messages = append(m.Messages, msg)
	return nil
}

func (m *MockStore) CreateNotification(ctx context.Context, kind models.NotificationKind, recipientID, actorID, refID string) (*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	if m.FailNotifications != nil {
		return nil, m.FailNotifications
	}
	notification := &models.Notification{
		ID:          uuid.New().String(),
		RecipientID: recipientID,
		ActorID:     actorID,
		Kind:        kind,
		RefID:       refID,
		CreatedAt:   time.Now().UTC(),
	}
	m.Notifications[notification.ID] = notification
	return notification, nil
}

func (m *MockStore) FindNotification(ctx context.Context, id string) (*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	notification, ok := m.Notifications[id]
	if !ok {
		return nil, relayerr.NotFound("notification")
	}
	copied := *notification
	return &copied, nil
}

func (m *MockStore) MarkNotificationRead(ctx context.Context, id string) (*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	notification, ok := m.Notifications[id]
	if !ok {
		return nil, relayerr.NotFound("notification")
	}
	notification.IsRead = true
	copied := *notification
	return &copied, nil
}

func (m *MockStore) TouchLastActive(ctx context.Context, userID string, online bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	m.LastActive[userID] = time.Now().UTC()
	return nil
}

// LastActiveAt returns the recorded last-active time for a user.
func (m *MockStore) LastActiveAt(userID string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.LastActive[userID]
	return at, ok
}

// MessageCount returns how many messages have been persisted.
func (m *MockStore) MessageCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Messages)
}

var _ Store = (*MockStore)(nil)
