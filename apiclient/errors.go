package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrTransport is returned when the request never produced an HTTP answer:
// dial, TLS, timeout, cancelled context or an open circuit breaker.
var ErrTransport = errors.New("api transport failure")

// ErrDecode is returned when a 2xx answer body is not the expected JSON.
var ErrDecode = errors.New("api response decode failure")

// APIError is a non-2xx answer from the remote API.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api status %d", e.StatusCode)
	}
	return fmt.Sprintf("api status %d: %s", e.StatusCode, e.Detail)
}

// DetailOf returns the server detail text carried by err, or "".
func DetailOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Detail
	}
	return ""
}

// IsUnauthorized reports whether err is a 401 or 403 answer.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
}
