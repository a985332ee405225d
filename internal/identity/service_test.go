package identity

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

var testSecret = []byte("test-secret")

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, user *models.User) *models.User {
	t.Helper()
	require.NoError(t, db.Create(user).Error)
	return user
}

func assertCode(t *testing.T, err error, code relayerr.Code) {
	t.Helper()
	var re *relayerr.Error
	require.True(t, errors.As(err, &re), "expected a relay error, got %v", err)
	assert.Equal(t, code, re.Code)
}

func TestVerifyValidToken(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, &models.User{Username: "alice"})
	service := NewService(testSecret, db)

	token, err := MintToken(testSecret, user.ID, time.Hour)
	require.NoError(t, err)

	resolved, err := service.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, resolved.ID)
	assert.Equal(t, "alice", resolved.Username)
}

func TestVerifyGarbageToken(t *testing.T) {
	service := NewService(testSecret, newTestDB(t))

	_, err := service.Verify(context.Background(), "not-a-jwt")
	assertCode(t, err, relayerr.CodeInvalidCredential)
}

func TestVerifyWrongSecret(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, &models.User{Username: "alice"})
	service := NewService(testSecret, db)

	token, err := MintToken([]byte("other-secret"), user.ID, time.Hour)
	require.NoError(t, err)

	_, err = service.Verify(context.Background(), token)
	assertCode(t, err, relayerr.CodeInvalidCredential)
}

func TestVerifyExpiredToken(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, &models.User{Username: "alice"})
	service := NewService(testSecret, db)

	token, err := MintToken(testSecret, user.ID, -time.Hour)
	require.NoError(t, err)

	_, err = service.Verify(context.Background(), token)
	assertCode(t, err, relayerr.CodeInvalidCredential)
}

func TestVerifyUnknownUser(t *testing.T) {
	service := NewService(testSecret, newTestDB(t))

	token, err := MintToken(testSecret, "no-such-user", time.Hour)
	require.NoError(t, err)

	_, err = service.Verify(context.Background(), token)
	assertCode(t, err, relayerr.CodeUserUnavailable)
}

func TestVerifyBannedUser(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, &models.User{Username: "troll", IsBanned: true})
	service := NewService(testSecret, db)

	token, err := MintToken(testSecret, user.ID, time.Hour)
	require.NoError(t, err)

	_, err = service.Verify(context.Background(), token)
	assertCode(t, err, relayerr.CodeUserUnavailable)
}

func TestLookup(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, &models.User{Username: "alice"})
	service := NewService(testSecret, db)

	resolved, err := service.Lookup(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", resolved.Username)

	_, err = service.Lookup(context.Background(), "missing")
	assertCode(t, err, relayerr.CodeUserUnavailable)
}

func TestMockVerifier(t *testing.T) {
	mock := NewMockVerifier()
	credential := mock.AddUser(&models.User{ID: "user-a", Username: "alice"})

	user, err := mock.Verify(context.Background(), credential)
	require.NoError(t, err)
	assert.Equal(t, "user-a", user.ID)

	_, err = mock.Verify(context.Background(), "bogus")
	assertCode(t, err, relayerr.CodeInvalidCredential)

	mock.Users["user-a"].IsBanned = true
	_, err = mock.Lookup(context.Background(), "user-a")
	assertCode(t, err, relayerr.CodeUserUnavailable)
}
