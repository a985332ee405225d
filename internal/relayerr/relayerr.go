// Package relayerr defines the error taxonomy shared by the connection
// gate and the event router. Admission errors reject a connection
// attempt outright; event errors are delivered back to the originating
// connection as a typed error event and leave the connection open.
package relayerr

import (
	"errors"
	"fmt"
)

// Error is a classified relay error.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AuthRequired indicates a connection attempt carried no credential.
func AuthRequired() *Error {
	return &Error{Code: CodeAuthRequired, Message: "authentication token required"}
}

// InvalidCredential indicates the credential failed to decode or verify.
func InvalidCredential(reason string) *Error {
	if reason == "" {
		reason = "invalid authentication token"
	}
	return &Error{Code: CodeInvalidCredential, Message: reason}
}

// UserUnavailable indicates the credential resolved to a missing or
// banned account.
func UserUnavailable() *Error {
	return &Error{Code: CodeUserUnavailable, Message: "account does not exist or is unavailable"}
}

// Validation flags a malformed or incomplete event payload.
func Validation(message string) *Error {
	return &Error{Code: CodeValidation, Message: message}
}

// NotFound flags a missing target entity.
func NotFound(resource string) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s not found", resource)}
}

// Forbidden flags an ownership violation.
func Forbidden(message string) *Error {
	return &Error{Code: CodeForbidden, Message: message}
}

// StoreFailure wraps a persistence dependency failure.
func StoreFailure(op string) *Error {
	return &Error{Code: CodeStoreFailure, Message: fmt.Sprintf("%s failed, please retry", op)}
}

// Timeout flags an expired dependency call.
func Timeout(op string) *Error {
	return &Error{Code: CodeTimeout, Message: fmt.Sprintf("%s timed out", op)}
}

// UnknownEvent flags an unrecognized inbound event tag.
func UnknownEvent(eventType string) *Error {
	return &Error{Code: CodeUnknownEvent, Message: fmt.Sprintf("unknown event type: %s", eventType)}
}

// Internal wraps an unexpected handler failure.
func Internal() *Error {
	return &Error{Code: CodeInternal, Message: "internal error"}
}

// From coerces any error into a relay error, defaulting to an internal
// classification so raw dependency errors never leak to clients.
func From(err error) *Error {
	var re *Error
	if errors.As(err, &re) {
		return re
	}
	return Internal()
}
