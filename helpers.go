package chatflow

import (
	"time"
)

// ToPtr returns a pointer to the given value
func ToPtr[T any](v T) *T {
	return &v
}

// Backoff returns the exponential backoff delay applied after a failed
// attempt: baseDelay * 2^attempt, where attempt is zero-based. With the
// default one-second base this yields 1s, 2s, 4s, ...
func Backoff(baseDelay time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	return baseDelay * time.Duration(1<<attempt)
}
