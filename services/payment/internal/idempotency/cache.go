package idempotency

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache — быстрый слой «ключ → id платежа». Не является источником истины.
type Cache interface {
	// Get возвращает id платежа; found=false, если ключа нет.
	Get(ctx context.Context, key string) (paymentID string, found bool, err error)
	Set(ctx context.Context, key, paymentID string) error
}

// KeyPrefix — префикс ключей идемпотентности в Redis.
const KeyPrefix = "payment:idempotency:"

// =============================================================================
// Redis
// =============================================================================

// RedisCache хранит соответствия в Redis с TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache создаёт кэш поверх go-redis клиента.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, KeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, paymentID string) error {
	return c.client.Set(ctx, KeyPrefix+key, paymentID, c.ttl).Err()
}

// =============================================================================
// In-memory
// =============================================================================

// MemoryCache — кэш в памяти процесса для запуска без Redis.
// Записи живут до перезапуска.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemoryCache создаёт пустой кэш в памяти.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]string)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.entries[key]
	return id, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, key, paymentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = paymentID
	return nil
}
