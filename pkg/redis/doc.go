// Package redis connects to Redis with go-redis/v9 and exposes a readiness
// probe. The same client backs the queue storage, the shared rate limiter
// buckets and the sweep locks.
package redis
