package registry

import (
	"errors"
	"fmt"
)

// Common errors returned by the registry client.
var (
	// ErrNotFound indicates the identifier is unknown or no candidate matched well enough.
	ErrNotFound = errors.New("not found in registry")

	// ErrRateLimited indicates the registry answered 429. Callers treat it as a miss.
	ErrRateLimited = errors.New("registry rate limit exceeded")

	// ErrInsufficientMetadata indicates the record has nothing to search by.
	ErrInsufficientMetadata = errors.New("record has no title to search by")
)

// APIError represents an unexpected HTTP status from the registry.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("registry API error (status %d): %s", e.StatusCode, e.Message)
}

// IsNotFound returns true if the error indicates a miss rather than a failure.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 404
	}
	return false
}

// IsRateLimited returns true if the error indicates rate limiting.
func IsRateLimited(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
