package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ripplesocial/relay/internal/models"
	"github.com/ripplesocial/relay/internal/relayerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) (*GormStore, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Message{}, &models.Notification{}))
	return NewGormStore(db), db
}

func seedUsers(t *testing.T, db *gorm.DB) (sender, receiver *models.User) {
	t.Helper()
	sender = &models.User{Username: "alice"}
	receiver = &models.User{Username: "bob"}
	require.NoError(t, db.Create(sender).Error)
	require.NoError(t, db.Create(receiver).Error)
	return sender, receiver
}

func TestSaveMessage(t *testing.T) {
	store, db := newTestStore(t)
	sender, receiver := seedUsers(t, db)

	msg := &models.Message{
		SenderID:    sender.ID,
		ReceiverID:  receiver.ID,
		Content:     "hello",
		MessageType: models.MessageTypeText,
		Emojis:      []string{"wave", "smile"},
	}
	require.NoError(t, store.SaveMessage(context.Background(), msg))
	assert.NotEmpty(t, msg.ID)

	var loaded models.Message
	require.NoError(t, db.First(&loaded, "id = ?", msg.ID).Error)
	assert.Equal(t, "hello", loaded.Content)
	assert.Equal(t, []string{"wave", "smile"}, loaded.Emojis)
	assert.False(t, loaded.IsRead)
}

func TestCreateAndFindNotification(t *testing.T) {
	store, db := newTestStore(t)
	sender, receiver := seedUsers(t, db)

	created, err := store.CreateNotification(context.Background(), models.NotificationMessage, receiver.ID, sender.ID, "msg-1")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.IsRead)

	found, err := store.FindNotification(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, receiver.ID, found.RecipientID)
	assert.Equal(t, sender.ID, found.ActorID)
	assert.Equal(t, models.NotificationMessage, found.Kind)
	assert.Equal(t, "msg-1", found.RefID)
}

func TestFindNotificationNotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.FindNotification(context.Background(), "nonexistent")
	var re *relayerr.Error
	require.True(t, errors.As(err, &re))
	assert.Equal(t, relayerr.CodeNotFound, re.Code)
}

func TestMarkNotificationRead(t *testing.T) {
	store, db := newTestStore(t)
	sender, receiver := seedUsers(t, db)

	created, err := store.CreateNotification(context.Background(), models.NotificationLike, receiver.ID, sender.ID, "post-1")
	require.NoError(t, err)

	updated, err := store.MarkNotificationRead(context.Background(), created.ID)
	require.NoError(t, err)
	assert.True(t, updated.IsRead)

	reloaded, err := store.FindNotification(context.Background(), created.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.IsRead)
}

func TestTouchLastActive(t *testing.T) {
	store, db := newTestStore(t)
	sender, _ := seedUsers(t, db)
	require.False(t, sender.IsOnline)

	before := time.Now().UTC().Add(-time.Second)
	require.NoError(t, store.TouchLastActive(context.Background(), sender.ID, true))

	var loaded models.User
	require.NoError(t, db.First(&loaded, "id = ?", sender.ID).Error)
	assert.True(t, loaded.IsOnline)
	require.NotNil(t, loaded.LastActiveAt)
	assert.True(t, loaded.LastActiveAt.After(before))

	require.NoError(t, store.TouchLastActive(context.Background(), sender.ID, false))
	require.NoError(t, db.First(&loaded, "id = ?", sender.ID).Error)
	assert.False(t, loaded.IsOnline)
}

func TestMockStoreFailNext(t *testing.T) {
	mock := NewMockStore()
	mock.FailNext = errors.New("transient")

	err := mock.SaveMessage(context.Background(), &models.Message{Content: "x"})
	require.Error(t, err)
	assert.Equal(t, 0, mock.MessageCount())

	// The failure is consumed; the next call succeeds
	require.NoError(t, mock.SaveMessage(context.Background(), &models.Message{Content: "x"}))
	assert.Equal(t, 1, mock.MessageCount())
}
