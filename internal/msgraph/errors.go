package msgraph

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for Microsoft Graph responses. Callers classify failures
// with errors.Is instead of carrying status codes around.
var (
	// ErrUnauthorised indicates the access token was rejected.
	ErrUnauthorised = errors.New("msgraph: unauthorised")

	// ErrForbidden indicates the user lacks permission for the resource.
	ErrForbidden = errors.New("msgraph: forbidden")

	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("msgraph: not found")

	// ErrRateLimited indicates the request was throttled.
	ErrRateLimited = errors.New("msgraph: rate limited")

	// ErrBadRequest indicates Graph rejected the request as malformed.
	ErrBadRequest = errors.New("msgraph: bad request")

	// ErrServerError indicates a 5xx response from Graph.
	ErrServerError = errors.New("msgraph: server error")
)

// statusError maps an unexpected HTTP status to a sentinel, annotated with
// the request that produced it.
func statusError(status int, method, path string) error {
	var sentinel error
	switch status {
	case http.StatusUnauthorized:
		sentinel = ErrUnauthorised
	case http.StatusForbidden:
		sentinel = ErrForbidden
	case http.StatusNotFound:
		sentinel = ErrNotFound
	case http.StatusTooManyRequests:
		sentinel = ErrRateLimited
	case http.StatusBadRequest:
		sentinel = ErrBadRequest
	default:
		if status >= 500 {
			sentinel = ErrServerError
		} else {
			return fmt.Errorf("msgraph: unexpected status %d for %s %s", status, method, path)
		}
	}
	return fmt.Errorf("%w (%s %s: status %d)", sentinel, method, path, status)
}

// IsRetryable reports whether a Graph error is worth retrying later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServerError)
}
