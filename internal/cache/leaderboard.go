package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/habit-tracker/internal/analytics"
	"github.com/benvon/habit-tracker/internal/metrics"
	"github.com/redis/go-redis/v9"
)

const leaderboardKeyPrefix = "habit:leaderboard:"

// kv is the subset of the Redis client the cache uses
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// LeaderboardCache stores scored leaderboards per window as JSON with a TTL
type LeaderboardCache struct {
	client kv
	ttl    time.Duration
}

// NewLeaderboardCache creates a leaderboard cache
func NewLeaderboardCache(client kv, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{client: client, ttl: ttl}
}

// LeaderboardKey returns the Redis key for a window
func LeaderboardKey(window analytics.LeaderboardWindow) string {
	return leaderboardKeyPrefix + string(window)
}

// Get returns the cached leaderboard. The boolean is false on a miss.
func (c *LeaderboardCache) Get(ctx context.Context, window analytics.LeaderboardWindow) (*analytics.LeaderboardResult, bool, error) {
	raw, err := c.client.Get(ctx, LeaderboardKey(window)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.TrackLeaderboardCache("miss")
		return nil, false, nil
	}
	if err != nil {
		metrics.TrackLeaderboardCache("error")
		return nil, false, fmt.Errorf("failed to read leaderboard cache: %w", err)
	}

	var result analytics.LeaderboardResult
	if err := json.Unmarshal(raw, &result); err != nil {
		metrics.TrackLeaderboardCache("error")
		return nil, false, fmt.Errorf("failed to decode cached leaderboard: %w", err)
	}
	metrics.TrackLeaderboardCache("hit")
	return &result, true, nil
}

// Set stores a leaderboard under its window
func (c *LeaderboardCache) Set(ctx context.Context, result *analytics.LeaderboardResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode leaderboard: %w", err)
	}
	if err := c.client.Set(ctx, LeaderboardKey(result.Window), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write leaderboard cache: %w", err)
	}
	return nil
}

// Invalidate drops the cached leaderboards for the given windows, or all windows when none are given
func (c *LeaderboardCache) Invalidate(ctx context.Context, windows ...analytics.LeaderboardWindow) error {
	if len(windows) == 0 {
		windows = analytics.LeaderboardWindows
	}
	keys := make([]string, len(windows))
	for i, w := range windows {
		keys[i] = LeaderboardKey(w)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate leaderboard cache: %w", err)
	}
	return nil
}
