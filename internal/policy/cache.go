package policy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache holds the effective policy per tenant. A miss sends the store back
// to its backend.
type Cache interface {
	Get(ctx context.Context, tenant string) (Policy, bool)
	Set(ctx context.Context, tenant string, p Policy)
}

type MemoryCache struct {
	mu       sync.RWMutex
	policies map[string]Policy
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{policies: make(map[string]Policy)}
}

func (c *MemoryCache) Get(_ context.Context, tenant string) (Policy, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.policies[tenant]
	if !ok {
		return Policy{}, false
	}
	return p.clone(), true
}

func (c *MemoryCache) Set(_ context.Context, tenant string, p Policy) {
	c.mu.Lock()
	c.policies[tenant] = p.clone()
	c.mu.Unlock()
}

const redisKeyPrefix = "autopay:policy:"

// RedisCache shares effective policies between gateway replicas. Redis
// errors are logged and read as misses so the backend stays authoritative.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisCache(client redis.Cmdable, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger.With("component", "policy_cache")}
}

func (c *RedisCache) Get(ctx context.Context, tenant string) (Policy, bool) {
	data, err := c.client.Get(ctx, redisKeyPrefix+tenant).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("policy cache read failed", "tenant", tenant, "error", err)
		}
		return Policy{}, false
	}
	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		c.logger.Warn("policy cache entry malformed", "tenant", tenant, "error", err)
		return Policy{}, false
	}
	return p, true
}

func (c *RedisCache) Set(ctx context.Context, tenant string, p Policy) {
	data, err := json.Marshal(p)
	if err != nil {
		c.logger.Warn("policy cache encode failed", "tenant", tenant, "error", err)
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+tenant, data, c.ttl).Err(); err != nil {
		c.logger.Warn("policy cache write failed", "tenant", tenant, "error", err)
	}
}
