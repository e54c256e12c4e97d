// Package serp is the HTTP client of the rank checking and keyword data API.
// Failures are classified so that callers can retry ErrUnavailable and
// ErrTimeout and give up on ErrRejected.
package serp
