package idempotency

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"cashtimachann/internal/cache"
)

// RedisStore keeps entries in Redis so replays work across replicas.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

func (s *RedisStore) Reserve(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, value, ttl).Result()
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// MemoryStore is the single-process fallback.
type MemoryStore struct {
	mu      sync.Mutex
	entries *cache.LRUCache[string]
}

func NewMemoryStore(maxEntries int) *MemoryStore {
	return &MemoryStore{entries: cache.NewLRUCache[string](maxEntries, 24*time.Hour)}
}

// Cache exposes the backing cache for periodic cleanup.
func (s *MemoryStore) Cache() *cache.LRUCache[string] {
	return s.entries
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := s.entries.Get(key); ok {
		return v, nil
	}
	return "", ErrNotFound
}

func (s *MemoryStore) Reserve(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries.Get(key); ok {
		return false, nil
	}
	s.entries.SetWithTTL(key, value, ttl)
	return true, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.entries.SetWithTTL(key, value, ttl)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.entries.Delete(key)
	return nil
}

var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
