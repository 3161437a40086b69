package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimitStore implements RateLimitStore backed by Redis, sharing
// rate limit state across API instances. It uses a fixed window counter:
// INCR on the key, with the window TTL set when the key is first created.
//
// The store fails open: if Redis is unavailable the request is allowed,
// so a cache outage degrades rate limiting rather than taking down the API.
type RedisRateLimitStore struct {
	client  *redis.Client
	metrics *Metrics
	prefix  string
}

// NewRedisRateLimitStore creates a Redis-backed rate limit store.
// metrics may be nil; fail-open events are then only logged.
func NewRedisRateLimitStore(client *redis.Client, metrics *Metrics) *RedisRateLimitStore {
	return &RedisRateLimitStore{
		client:  client,
		metrics: metrics,
		prefix:  "ratelimit:",
	}
}

// Allow checks if a request from the given key should be allowed.
// Implements the RateLimitStore interface.
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int) {
	redisKey := s.prefix + key

	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		s.failOpen(ctx, key, err)
		return true, 0
	}

	if count == 1 {
		// First request in the window: start the clock. If this Expire is
		// lost the key would live forever, so double-check below.
		if err := s.client.Expire(ctx, redisKey, config.WindowDuration).Err(); err != nil {
			s.failOpen(ctx, key, err)
			return true, 0
		}
	}

	if count <= int64(config.RequestsPerWindow) {
		return true, 0
	}

	ttl, err := s.client.TTL(ctx, redisKey).Result()
	if err != nil || ttl <= 0 {
		if ttl < 0 {
			// Key has no TTL (a lost Expire); reset it so the window ends.
			s.client.Expire(ctx, redisKey, config.WindowDuration)
		}
		return false, int(config.WindowDuration / time.Second)
	}

	retryAfter := int(ttl / time.Second)
	if retryAfter <= 0 {
		retryAfter = 1
	}
	return false, retryAfter
}

func (s *RedisRateLimitStore) failOpen(ctx context.Context, key string, err error) {
	slog.WarnContext(ctx, "rate limit store unavailable, failing open",
		"key", key,
		"error", err,
	)
	if s.metrics != nil {
		s.metrics.IncRateLimitRedisErrors()
	}
}
