package relayerr

import "net/http"

// Code classifies a relay error for clients.
type Code string

const (
	// Admission codes: fatal to a connection attempt, never seen mid-session.
	CodeAuthRequired      Code = "AUTH_REQUIRED"
	CodeInvalidCredential Code = "INVALID_CREDENTIAL"
	CodeUserUnavailable   Code = "USER_UNAVAILABLE"

	// Event-level codes: reported to the originating connection only.
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeNotFound     Code = "NOT_FOUND"
	CodeForbidden    Code = "FORBIDDEN"
	CodeStoreFailure Code = "STORE_FAILURE"
	CodeTimeout      Code = "TIMEOUT"
	CodeRateLimited  Code = "RATE_LIMITED"
	CodeUnknownEvent Code = "UNKNOWN_EVENT"
	CodeInternal     Code = "INTERNAL_ERROR"
)

// statusCodeMap maps admission codes to the HTTP status returned before
// the websocket upgrade. Event-level codes never surface over HTTP.
var statusCodeMap = map[Code]int{
	CodeAuthRequired:      http.StatusUnauthorized,
	CodeInvalidCredential: http.StatusUnauthorized,
	CodeUserUnavailable:   http.StatusForbidden,
	CodeTimeout:           http.StatusGatewayTimeout,
}

// StatusCode returns the HTTP status for this code.
func (c Code) StatusCode() int {
	if status, ok := statusCodeMap[c]; ok {
		return status
	}
	return http.StatusInternalServerError
}
