package identity

import (
	"context"

	"github.com/ripplesocial/relay/internal/models"
)

// Verifier resolves credentials and user ids to account identities.
// The relay never issues credentials; it only checks them. Interface
// enables mocking for unit tests without a real database.
type Verifier interface {
	// Verify decodes and validates an opaque credential and returns the
	// account it belongs to.
	Verify(ctx context.Context, credential string) (*models.User, error)

	// Lookup fetches an account by id.
	Lookup(ctx context.Context, userID string) (*models.User, error)
}

// Ensure Service implements Verifier
var _ Verifier = (*Service)(nil)
