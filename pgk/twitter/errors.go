package twitter

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	// ErrUnauthorized the credential was rejected; retrying cannot succeed
	ErrUnauthorized = errors.New("twitter: unauthorized")
	// ErrRateLimited the upstream refused the call with 429
	ErrRateLimited = errors.New("twitter: too many requests")
)

// RateLimitError 429 with the time the upstream window resets
type RateLimitError struct {
	Reset time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s, resets at %s", ErrRateLimited, e.Reset.Format(time.RFC3339))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// StatusError unexpected non-200 response, treated as transient
type StatusError struct {
	Path string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s HTTP %d: %s", e.Path, e.Code, e.Body)
}

// parseRateLimitReset parses the x-rate-limit-reset unix timestamp header.
// Falls back to 15 minutes from now if missing or invalid.
func parseRateLimitReset(v string) time.Time {
	if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(ts, 0)
	}
	return time.Now().Add(15 * time.Minute)
}
