package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "upload_rate:"

// RedisStore persists limiter entries in Redis so horizontally scaled
// gateway replicas share one set of counters. Entries expire via native
// Redis TTL; Expire is a no-op.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps a connected Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("unmarshal rate entry %s: %w", key, err)
	}
	return entry, true, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal rate entry %s: %w", key, err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

// Expire is handled by Redis key TTLs.
func (s *RedisStore) Expire(context.Context, time.Time) (int, error) {
	return 0, nil
}
