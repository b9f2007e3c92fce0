// Package redis holds the Redis-backed activity log. Feed impressions are
// recorded as an append-only event stream plus per-post counters so the
// reporting side can read impression counts without replaying events.
package redis
