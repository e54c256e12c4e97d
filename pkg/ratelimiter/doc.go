// Package ratelimiter throttles queue workers with token buckets. The
// in-memory store serves a single process; the Redis store lets every
// process that uses the same key draw from one bucket.
//
// A bucket holds up to Capacity tokens and regains RefillRate tokens every
// RefillInterval. A refused take consumes nothing; RetryAfter reports when
// the next refill happens. PerWindow builds the common "n per window"
// configuration.
//
//	store, _ := ratelimiter.NewRedisStore(client)
//	limiter, _ := ratelimiter.NewBucket(store, "queue:rank-check",
//		ratelimiter.PerWindow(28, time.Minute))
//
//	if err := limiter.Wait(ctx); err != nil {
//		return err
//	}
package ratelimiter
