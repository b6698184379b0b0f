package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/redis/go-redis/v9"
)

// SeenCache remembers feed entries that were already stored
type SeenCache interface {
	Seen(ctx context.Context, key string) (bool, error)
	MarkSeen(ctx context.Context, key string) error
}

// RedisSeenCache keeps seen entry ids in Redis, shared between poller instances
type RedisSeenCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisSeenCache(redisURL string, ttl time.Duration) (*RedisSeenCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisSeenCacheFromClient(client, ttl), nil
}

func NewRedisSeenCacheFromClient(client *redis.Client, ttl time.Duration) *RedisSeenCache {
	return &RedisSeenCache{
		client: client,
		prefix: "foerderbande:seen:",
		ttl:    ttl,
	}
}

func (r *RedisSeenCache) Close() error {
	return r.client.Close()
}

func (r *RedisSeenCache) Seen(ctx context.Context, key string) (bool, error) {
	exists, err := r.client.Exists(ctx, r.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists error: %w", err)
	}
	return exists > 0, nil
}

func (r *RedisSeenCache) MarkSeen(ctx context.Context, key string) error {
	return r.client.Set(ctx, r.prefix+key, "1", r.ttl).Err()
}

// MemorySeenCache is the process local fallback when no Redis is configured
type MemorySeenCache struct {
	cache *ristretto.Cache[string, struct{}]
	ttl   time.Duration
}

func NewMemorySeenCache(ttl time.Duration) (*MemorySeenCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, struct{}]{
		NumCounters: 100_000,
		MaxCost:     10_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create seen cache: %w", err)
	}
	return &MemorySeenCache{cache: cache, ttl: ttl}, nil
}

func (m *MemorySeenCache) Close() error {
	m.cache.Close()
	return nil
}

func (m *MemorySeenCache) Seen(_ context.Context, key string) (bool, error) {
	_, ok := m.cache.Get(key)
	return ok, nil
}

func (m *MemorySeenCache) MarkSeen(_ context.Context, key string) error {
	m.cache.SetWithTTL(key, struct{}{}, 1, m.ttl)
	m.cache.Wait()
	return nil
}
