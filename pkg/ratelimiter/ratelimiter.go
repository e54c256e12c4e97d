package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Limiter admits operations against one bucket.
type Limiter interface {
	Allow(ctx context.Context) (*Result, error)
	Wait(ctx context.Context) error
}

// minWait keeps Wait from spinning when the store reports a reset time that
// already passed.
const minWait = 50 * time.Millisecond

// Bucket is a token bucket bound to a key of a Store. Buckets built on a
// shared store with the same key share one budget.
type Bucket struct {
	store  Store
	key    string
	config Config
}

// NewBucket binds config to key in store.
func NewBucket(store Store, key string, config Config) (*Bucket, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if key == "" {
		return nil, fmt.Errorf("%w: key is required", ErrInvalidConfig)
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &Bucket{store: store, key: key, config: config}, nil
}

// Key returns the bucket key.
func (b *Bucket) Key() string { return b.key }

// Allow takes one token if available.
func (b *Bucket) Allow(ctx context.Context) (*Result, error) {
	remaining, resetAt, err := b.store.Take(ctx, b.key, b.config)
	if err != nil {
		return nil, err
	}
	return &Result{Limit: b.config.Capacity, Remaining: remaining, ResetAt: resetAt}, nil
}

// Wait blocks until a token is granted or ctx is done.
func (b *Bucket) Wait(ctx context.Context) error {
	for {
		res, err := b.Allow(ctx)
		if err != nil {
			return err
		}
		if res.Allowed() {
			return nil
		}

		timer := time.NewTimer(max(res.RetryAfter(), minWait))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}
	}
}

// Reset refills the bucket.
func (b *Bucket) Reset(ctx context.Context) error {
	return b.store.Reset(ctx, b.key)
}

func (c Config) validate() error {
	switch {
	case c.Capacity <= 0:
		return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidConfig, c.Capacity)
	case c.RefillRate <= 0:
		return fmt.Errorf("%w: refill rate must be positive, got %d", ErrInvalidConfig, c.RefillRate)
	case c.RefillInterval <= 0:
		return fmt.Errorf("%w: refill interval must be positive, got %v", ErrInvalidConfig, c.RefillInterval)
	}
	return nil
}
