package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// defaultPrefix namespaces limiter keys; the quote endpoint is the only
// rate-limited surface, so the zero-value Limiter targets it directly.
const defaultPrefix = "ratelimit:quote:"

// Limiter is a sliding window rate limiter over a Redis sorted set per key.
// Requests are scored by their arrival time in nanoseconds; everything older
// than one window is pruned before counting.
type Limiter struct {
	Client *redis.Client
	Prefix string
}

// Allow records an event for key and reports whether it stays within max
// events per window. A nil client or non-positive limits fail open.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error) {
	if l.Client == nil || max <= 0 || window <= 0 {
		return true, max, time.Now().Add(window), nil
	}

	prefix := l.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	now := time.Now()
	reset = now.Add(window)
	cutoff := strconv.FormatInt(now.Add(-window).UnixNano(), 10)

	// The member only needs to be unique within its key; the key itself is
	// already the client identity.
	entry := redis.Z{Score: float64(now.UnixNano()), Member: uuid.NewString()}

	pipe := l.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, prefix+key, "-inf", cutoff)
	pipe.ZAdd(ctx, prefix+key, entry)
	countCmd := pipe.ZCard(ctx, prefix+key)
	pipe.Expire(ctx, prefix+key, window)
	if _, err = pipe.Exec(ctx); err != nil {
		return false, 0, reset, err
	}

	current := int(countCmd.Val())
	remaining = max - current
	if remaining < 0 {
		remaining = 0
	}
	return current <= max, remaining, reset, nil
}
