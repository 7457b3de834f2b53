// decision/redis_cache.go
package decision

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	logger "github.com/stronghold-io/bastion/logging"
	"github.com/stronghold-io/bastion/model"
)

// RedisCache is the shared decision cache for multi-instance deployments.
// Redis owns TTL expiry; invalidation scans the decision keyspace. Hit/miss
// counters are per instance.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration

	hits   atomic.Uint64
	misses atomic.Uint64
}

var _ Cache = (*RedisCache)(nil)

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*model.CachedDecision, bool) {
	payload, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		c.misses.Add(1)
		return nil, false
	} else if err != nil {
		logger.Warn("Decision cache read failed, treating as miss", zap.Error(err), zap.String("key", key))
		c.misses.Add(1)
		return nil, false
	}

	var entry model.CachedDecision
	if err := json.Unmarshal([]byte(payload), &entry); err != nil {
		logger.Warn("Corrupt cached decision, evicting", zap.Error(err), zap.String("key", key))
		c.client.Del(ctx, key)
		c.misses.Add(1)
		return nil, false
	}

	// Redis TTL already bounds entry age, but the lazy check keeps semantics
	// identical to the in-memory cache when TTLs are tightened at runtime.
	if entry.Expired(time.Now(), c.ttl) {
		c.client.Del(ctx, key)
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return &entry, true
}

func (c *RedisCache) Set(ctx context.Context, key string, decision model.AccessDecision) {
	entry := model.CachedDecision{Decision: decision, CreatedAt: time.Now()}
	payload, err := json.Marshal(entry)
	if err != nil {
		logger.Error("Failed to marshal cached decision", zap.Error(err), zap.String("key", key))
		return
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		logger.Warn("Decision cache write failed", zap.Error(err), zap.String("key", key))
	}
}

func (c *RedisCache) InvalidateByPrefix(ctx context.Context, prefix string) int {
	return c.invalidate(ctx, prefix+"*")
}

func (c *RedisCache) InvalidateBySuffix(ctx context.Context, suffix string) int {
	return c.invalidate(ctx, keyNamespace+"*"+suffix)
}

func (c *RedisCache) invalidate(ctx context.Context, pattern string) int {
	removed := 0
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warn("Failed to delete cached decision", zap.Error(err), zap.String("key", iter.Val()))
			continue
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		logger.Warn("Decision cache scan failed", zap.Error(err), zap.String("pattern", pattern))
	}
	return removed
}

func (c *RedisCache) Clear(ctx context.Context) {
	c.invalidate(ctx, keyNamespace+"*")
}

func (c *RedisCache) Stats(ctx context.Context) Stats {
	size := 0
	iter := c.client.Scan(ctx, 0, keyNamespace+"*", 100).Iterator()
	for iter.Next(ctx) {
		size++
	}

	hits := c.hits.Load()
	total := hits + c.misses.Load()
	rate := 0.0
	if total > 0 {
		rate = float64(hits) / float64(total)
	}
	// MaxSize 0: capacity is bounded by Redis eviction policy, not by us.
	return Stats{Size: size, MaxSize: 0, HitRate: rate}
}
