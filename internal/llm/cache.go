package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache stores generated text by key.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string]cacheEntry
	now  func() time.Time
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{data: make(map[string]cacheEntry), now: time.Now}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.data[key]
	if !ok || (!entry.expiresAt.IsZero() && c.now().After(entry.expiresAt)) {
		return "", false, nil
	}
	return entry.value, true, nil
}

// Set implements Cache. A non-positive ttl never expires.
func (c *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := cacheEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.data[key] = entry
	return nil
}

// RedisCache shares cached responses across processes.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache wraps client; keys are stored under prefix.
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return val, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Hasher digests prompts into cache keys.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// CachedGenerator serves repeated prompts from a Cache. Cache errors are
// logged and treated as misses.
type CachedGenerator struct {
	next   Generator
	cache  Cache
	hasher Hasher
	ttl    time.Duration
	model  string
	logger *zap.Logger
}

// NewCachedGenerator wraps next. model is mixed into the key so switching
// models never serves stale answers.
func NewCachedGenerator(next Generator, cache Cache, hasher Hasher, ttl time.Duration, model string, logger *zap.Logger) *CachedGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedGenerator{next: next, cache: cache, hasher: hasher, ttl: ttl, model: model, logger: logger}
}

// Generate implements Generator.
func (g *CachedGenerator) Generate(ctx context.Context, prompt Prompt) (string, error) {
	key, err := g.hasher.Hash([]byte(g.model + "\x00" + prompt.System + "\x00" + prompt.User))
	if err != nil {
		return g.next.Generate(ctx, prompt)
	}
	if val, ok, cerr := g.cache.Get(ctx, key); cerr != nil {
		g.logger.Warn("llm cache get failed", zap.Error(cerr))
	} else if ok {
		g.logger.Debug("llm cache hit", zap.String("key", shortKey(key)))
		return val, nil
	}

	out, err := g.next.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	if cerr := g.cache.Set(ctx, key, out, g.ttl); cerr != nil {
		g.logger.Warn("llm cache set failed", zap.Error(cerr))
	}
	return out, nil
}

func shortKey(key string) string {
	if len(key) > 16 {
		return key[:16]
	}
	return key
}
