package relayerr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCodes(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, CodeAuthRequired.StatusCode())
	assert.Equal(t, http.StatusUnauthorized, CodeInvalidCredential.StatusCode())
	assert.Equal(t, http.StatusForbidden, CodeUserUnavailable.StatusCode())
	assert.Equal(t, http.StatusGatewayTimeout, CodeTimeout.StatusCode())

	// Event-level codes have no dedicated HTTP mapping
	assert.Equal(t, http.StatusInternalServerError, CodeValidation.StatusCode())
	assert.Equal(t, http.StatusInternalServerError, CodeStoreFailure.StatusCode())
}

func TestErrorString(t *testing.T) {
	err := NotFound("notification")
	assert.Equal(t, "NOT_FOUND: notification not found", err.Error())
}

func TestFrom(t *testing.T) {
	original := Forbidden("not yours")
	assert.Same(t, original, From(original))

	wrapped := fmt.Errorf("handler: %w", original)
	assert.Same(t, original, From(wrapped))

	raw := errors.New("pq: connection refused")
	coerced := From(raw)
	assert.Equal(t, CodeInternal, coerced.Code)
	assert.NotContains(t, coerced.Message, "pq:")
}
