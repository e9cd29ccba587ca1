package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const pendingReconcilePrefix = "habit:reconcile:pending:"

// Debouncer tracks which challenges already have a reconcile job in flight
type Debouncer interface {
	// Claim returns true when the caller should enqueue, false when a job is already pending
	Claim(ctx context.Context, challengeID uuid.UUID, ttl time.Duration) (bool, error)
	// Release clears the pending marker so the next change enqueues again
	Release(ctx context.Context, challengeID uuid.UUID) error
}

type setNXer interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisDebouncer stores pending markers in Redis so every API replica shares them
type RedisDebouncer struct {
	client setNXer
}

var _ Debouncer = (*RedisDebouncer)(nil)

// NewRedisDebouncer creates a Redis-backed debouncer
func NewRedisDebouncer(client setNXer) *RedisDebouncer {
	return &RedisDebouncer{client: client}
}

// PendingKey is the Redis key marking a queued reconcile for challengeID
func PendingKey(challengeID uuid.UUID) string {
	return pendingReconcilePrefix + challengeID.String()
}

// Claim sets the pending marker if absent. The TTL bounds how long a lost job can suppress new ones.
func (d *RedisDebouncer) Claim(ctx context.Context, challengeID uuid.UUID, ttl time.Duration) (bool, error) {
	ok, err := d.client.SetNX(ctx, PendingKey(challengeID), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim reconcile marker: %w", err)
	}
	return ok, nil
}

// Release deletes the pending marker
func (d *RedisDebouncer) Release(ctx context.Context, challengeID uuid.UUID) error {
	if err := d.client.Del(ctx, PendingKey(challengeID)).Err(); err != nil {
		return fmt.Errorf("failed to release reconcile marker: %w", err)
	}
	return nil
}
