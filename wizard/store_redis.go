package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces snapshot keys.
const DefaultRedisPrefix = "stepflow:wizard:"

// RedisClient captures the commands the store needs. Get returns "" and a
// nil error for a missing key.
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// RedisStore persists snapshots as JSON values that expire after ttl.
// Expiry replaces pruning.
type RedisStore struct {
	client RedisClient
	ttl    time.Duration
	prefix string
}

// NewRedisStore builds a store. A ttl of zero keeps snapshots forever.
func NewRedisStore(client RedisClient, ttl time.Duration, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, ttl: ttl, prefix: prefix}
}

// Load reads the snapshot under key.
func (s *RedisStore) Load(ctx context.Context, key string) (*Snapshot, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("redis store not configured")
	}
	rk := s.redisKey(key)
	if rk == "" {
		return nil, nil
	}
	value, err := s.client.Get(ctx, rk)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(value), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Save writes the snapshot under key and refreshes its expiry.
func (s *RedisStore) Save(ctx context.Context, key string, snap Snapshot) error {
	if s == nil || s.client == nil {
		return errors.New("redis store not configured")
	}
	rk := s.redisKey(key)
	if rk == "" {
		return errors.New("snapshot key required")
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, rk, string(payload), s.ttl)
}

// Delete removes the snapshot under key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.client == nil {
		return errors.New("redis store not configured")
	}
	rk := s.redisKey(key)
	if rk == "" {
		return nil
	}
	return s.client.Del(ctx, rk)
}

func (s *RedisStore) redisKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	return s.prefix + key
}

// GoRedis adapts a go-redis client to RedisClient.
type GoRedis struct {
	client redis.UniversalClient
}

// NewGoRedis wraps client.
func NewGoRedis(client redis.UniversalClient) *GoRedis {
	return &GoRedis{client: client}
}

// Get returns the value under key, or "" when it does not exist.
func (g *GoRedis) Get(ctx context.Context, key string) (string, error) {
	value, err := g.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return value, err
}

// Set stores value with an expiry.
func (g *GoRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	return g.client.Set(ctx, key, value, expiration).Err()
}

// Del removes keys.
func (g *GoRedis) Del(ctx context.Context, keys ...string) error {
	return g.client.Del(ctx, keys...).Err()
}
