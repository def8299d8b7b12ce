package apiclient

import "fmt"

// APIError represents an error response from the admin API, carrying the
// HTTP status alongside the envelope's error message.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("iscsid admin api: %s (status %d)", e.Message, e.StatusCode)
}

// IsAuthError returns true if this is an authentication failure.
func (e *APIError) IsAuthError() bool {
	return e.StatusCode == 401
}

// IsUnavailable returns true if the target reported itself unavailable,
// e.g. mid-shutdown.
func (e *APIError) IsUnavailable() bool {
	return e.StatusCode == 503
}
