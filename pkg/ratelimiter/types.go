package ratelimiter

import "time"

// Config describes a token bucket.
type Config struct {
	Capacity       int           // burst size
	RefillRate     int           // tokens regained per interval
	RefillInterval time.Duration // refill period
}

// PerWindow allows n operations per window, all of which may happen at the
// start of the window.
func PerWindow(n int, window time.Duration) Config {
	return Config{Capacity: n, RefillRate: n, RefillInterval: window}
}

// fullAfter is how long an untouched bucket takes to refill completely from
// empty. Past it the bucket is indistinguishable from a new one.
func (c Config) fullAfter() time.Duration {
	return c.RefillInterval * time.Duration(c.Capacity/c.RefillRate+1)
}

// Result is the outcome of taking a token.
type Result struct {
	Limit     int
	Remaining int // negative when the token was refused
	ResetAt   time.Time
}

// Allowed reports whether the token was granted.
func (r *Result) Allowed() bool {
	return r.Remaining >= 0
}

// RetryAfter is the wait until the next refill, zero for granted tokens.
func (r *Result) RetryAfter() time.Duration {
	if r.Allowed() {
		return 0
	}
	return max(time.Until(r.ResetAt), 0)
}
