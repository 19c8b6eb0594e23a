package release

import (
	"errors"
	"fmt"
	"time"
)

// Fetch errors. Unauthorized and Decode are terminal for an update
// session; RateLimited and Network are retryable with backoff.
var (
	// ErrUnauthorized is returned when the API rejects the auth token
	ErrUnauthorized = errors.New("release: unauthorized")
	// ErrRateLimited is matched (via errors.Is) by RateLimitError
	ErrRateLimited = errors.New("release: rate limited")
	// ErrNetwork covers transport failures and stalled transfers
	ErrNetwork = errors.New("release: network error")
	// ErrDecode is returned for malformed API responses
	ErrDecode = errors.New("release: malformed API response")
)

// RateLimitError reports a rate-limited response together with the delay
// the server asked for. RetryAfter is DefaultRetryAfter when the server
// did not supply one.
type RateLimitError struct {
	RetryAfter time.Duration
}

// DefaultRetryAfter is used when a rate-limit response carries no
// Retry-After hint.
const DefaultRetryAfter = 60 * time.Second

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("release: rate limited, retry after %s", e.RetryAfter)
}

// Is lets errors.Is(err, ErrRateLimited) match a RateLimitError.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}
