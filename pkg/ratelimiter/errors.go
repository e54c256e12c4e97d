package ratelimiter

import "errors"

var (
	ErrInvalidConfig    = errors.New("invalid rate limit configuration")
	ErrContextCancelled = errors.New("rate limit wait cancelled")
	// ErrStoreUnavailable wraps backend failures. Callers treat it as
	// transient.
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
)
