package identity

import (
	"context"
	"sync"

	"github.com/ripplesocial/relay/internal/models"
	"github.com/ripplesocial/relay/internal/relayerr"
)

// MockVerifier is an in-memory Verifier for testing.
type MockVerifier struct {
	mu sync.Mutex

	// Users keyed by id. Banned users are refused on lookup.
	Users map[string]*models.User

	// Tokens maps credential strings to user ids.
	Tokens map[string]string

	// Optional overrides
	VerifyFunc func(ctx context.Context, credential string) (*models.User, error)
	LookupFunc func(ctx context.Context, userID string) (*models.User, error)
}

// NewMockVerifier creates an empty mock verifier.
func NewMockVerifier() *MockVerifier {
	return &MockVerifier{
		Users:  make(map[string]*models.User),
		Tokens: make(map[string]string),
	}
}

// AddUser registers a user and a credential resolving to it. Returns
// the credential for convenience.
func (m *MockVerifier) AddUser(user *models.User) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Users[user.ID] = user
	credential := "token-" + user.ID
	m.Tokens[credential] = user.ID
	return credential
}

func (m *MockVerifier) Verify(ctx context.Context, credential string) (*models.User, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, credential)
	}
	m.mu.Lock()
	userID, ok := m.Tokens[credential]
	m.mu.Unlock()
	if !ok {
		return nil, relayerr.InvalidCredential("invalid token")
	}
	return m.Lookup(ctx, userID)
}

func (m *MockVerifier) Lookup(ctx context.Context, userID string) (*models.User, error) {
	if m.LookupFunc != nil {
		return m.LookupFunc(ctx, userID)
	}
	m.mu.Lock()
	user, ok := m.Users[userID]
	m.mu.Unlock()
	if !ok || user.IsBanned {
		return nil, relayerr.UserUnavailable()
	}
	return user, nil
}

var _ Verifier = (*MockVerifier)(nil)
