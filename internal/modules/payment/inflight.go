package payment

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const inflightKeyPrefix = "cleanhub:webhook:inflight:"

// RedisGuard holds a short-lived SETNX lock per processor event id so that
// a redelivery arriving while the first one still runs is turned away with
// a retryable status.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisGuard returns nil when client is nil, which disables the guard.
func NewRedisGuard(client *redis.Client, ttl time.Duration) InflightGuard {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisGuard{client: client, ttl: ttl}
}

func (g *RedisGuard) Acquire(ctx context.Context, eventID string) (bool, error) {
	return g.client.SetNX(ctx, inflightKeyPrefix+eventID, time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
}

func (g *RedisGuard) Release(ctx context.Context, eventID string) {
	_ = g.client.Del(ctx, inflightKeyPrefix+eventID).Err()
}
