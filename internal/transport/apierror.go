package transport

import (
	"fmt"
	"io"
	"net/http"
)

// APIError is a non-2xx response from the tracking endpoint.
// It satisfies the status-carrying interface used by circuit breaker
// classification.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

// Error returns a formatted error string including endpoint, status, and body.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// HTTPStatus returns the HTTP status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// ParseAPIError reads up to 4KB from the response body and returns an APIError.
func ParseAPIError(endpoint string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(body)}
}
