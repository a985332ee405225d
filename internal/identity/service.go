package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ripplesocial/relay/internal/models"
	"github.com/ripplesocial/relay/internal/relayerr"
	"gorm.io/gorm"
)

// Service verifies HMAC-signed JWTs against the user store.
type Service struct {
	jwtSecret []byte
	db        *gorm.DB
}

// NewService creates a verifier backed by the given database handle.
func NewService(jwtSecret []byte, db *gorm.DB) *Service {
	return &Service{jwtSecret: jwtSecret, db: db}
}

// Verify parses and validates the token, then resolves the embedded
// user id. A decode or signature failure yields InvalidCredential; a
// missing or banned account yields UserUnavailable.
func (s *Service) Verify(ctx context.Context, credential string) (*models.User, error) {
	token, err := jwt.Parse(credential, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, relayerr.InvalidCredential("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, relayerr.InvalidCredential("invalid token claims")
	}

	exp, ok := claims["exp"].(float64)
	if !ok {
		return nil, relayerr.InvalidCredential("token missing expiration")
	}
	if time.Unix(int64(exp), 0).Before(time.Now()) {
		return nil, relayerr.InvalidCredential("token expired")
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return nil, relayerr.InvalidCredential("invalid user_id in token")
	}

	return s.Lookup(ctx, userID)
}

// Lookup fetches an account by id, refusing banned accounts.
func (s *Service) Lookup(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, relayerr.UserUnavailable()
		}
		return nil, err
	}
	if user.IsBanned {
		return nil, relayerr.UserUnavailable()
	}
	return &user, nil
}

// MintToken signs a JWT for the given user id, used by the dev CLI and
// by tests. Production credentials come from the main API, not the relay.
func MintToken(jwtSecret []byte, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
