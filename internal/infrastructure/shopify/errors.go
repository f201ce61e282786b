package shopify

import (
	"errors"
	"fmt"
)

// Sentinel errors for the platform API. The reconcilers treat these as
// infrastructure failures: the run fails or goes partial, the watermark
// stays put, and the next cycle retries.
var (
	// ErrRateLimited is returned after retries on HTTP 429 are exhausted
	ErrRateLimited = errors.New("shopify: rate limit exceeded")
	// ErrAuthentication is returned on HTTP 401; retrying cannot help
	ErrAuthentication = errors.New("shopify: authentication failed")
	// ErrUnavailable wraps transport-level failures
	ErrUnavailable = errors.New("shopify: platform unavailable")
)

// APIError is a non-2xx response that is neither a rate limit nor an
// authentication failure
type APIError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("shopify: HTTP %d: %s", e.StatusCode, e.Body)
}
