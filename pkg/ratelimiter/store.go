package ratelimiter

import (
	"context"
	"time"
)

// Store keeps bucket state. Take removes one token from the bucket at key
// after refilling it. A refused take (negative remaining) changes nothing
// but the refill.
type Store interface {
	Take(ctx context.Context, key string, config Config) (remaining int, resetAt time.Time, err error)
	Reset(ctx context.Context, key string) error
}
