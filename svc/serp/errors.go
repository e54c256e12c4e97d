package serp

import "errors"

var (
	// ErrUnavailable covers network failures, 5xx and 429 responses.
	ErrUnavailable = errors.New("rank checking service unavailable")
	// ErrTimeout is returned when the request deadline passes.
	ErrTimeout = errors.New("rank checking service timed out")
	// ErrRejected is returned for 4xx responses other than 429; retrying
	// the same request cannot succeed.
	ErrRejected        = errors.New("rank checking service rejected the request")
	ErrInvalidResponse = errors.New("invalid response from rank checking service")
)
