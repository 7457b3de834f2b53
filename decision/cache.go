// decision/cache.go
package decision

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/stronghold-io/bastion/model"
)

// Stats is the operational view of a decision cache.
type Stats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	HitRate float64 `json:"hit_rate"`
}

// Cache is the injected decision cache service. The engine never touches a
// concrete store; single-process deployments use MemoryCache, multi-instance
// deployments use RedisCache. Implementations must be safe for concurrent
// use and must treat their own failures as misses rather than surfacing
// errors into the decision path.
type Cache interface {
	Get(ctx context.Context, key string) (*model.CachedDecision, bool)
	Set(ctx context.Context, key string, decision model.AccessDecision)
	InvalidateByPrefix(ctx context.Context, prefix string) int
	InvalidateBySuffix(ctx context.Context, suffix string) int
	Clear(ctx context.Context)
	Stats(ctx context.Context) Stats
}

// Sweeper is implemented by caches that support proactive eviction of
// expired entries. Purely an optimization; Get already checks expiry.
type Sweeper interface {
	EvictExpired(ctx context.Context) int
}

// MemoryCache is a mutex-guarded in-process cache with lazy TTL expiry and
// insertion-order eviction at capacity (oldest entry out first, not LRU).
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]model.CachedDecision
	order   []string
	maxSize int
	ttl     time.Duration

	hits   uint64
	misses uint64
}

var _ Cache = (*MemoryCache)(nil)
var _ Sweeper = (*MemoryCache)(nil)

func NewMemoryCache(maxSize int, ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]model.CachedDecision),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string) (*model.CachedDecision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if entry.Expired(time.Now(), c.ttl) {
		c.removeLocked(key)
		c.misses++
		return nil, false
	}
	c.hits++
	cloned := entry
	return &cloned, true
}

func (c *MemoryCache) Set(ctx context.Context, key string, decision model.AccessDecision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		if len(c.entries) >= c.maxSize && len(c.order) > 0 {
			c.removeLocked(c.order[0])
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = model.CachedDecision{Decision: decision, CreatedAt: time.Now()}
}

func (c *MemoryCache) InvalidateByPrefix(ctx context.Context, prefix string) int {
	return c.invalidate(func(key string) bool { return strings.HasPrefix(key, prefix) })
}

func (c *MemoryCache) InvalidateBySuffix(ctx context.Context, suffix string) int {
	return c.invalidate(func(key string) bool { return strings.HasSuffix(key, suffix) })
}

func (c *MemoryCache) invalidate(match func(string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if match(key) {
			c.removeLocked(key)
			removed++
		}
	}
	return removed
}

func (c *MemoryCache) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]model.CachedDecision)
	c.order = c.order[:0]
}

// EvictExpired removes every expired entry. Scheduled periodically; lookups
// do not depend on it.
func (c *MemoryCache) EvictExpired(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, entry := range c.entries {
		if entry.Expired(now, c.ttl) {
			c.removeLocked(key)
			removed++
		}
	}
	return removed
}

func (c *MemoryCache) Stats(ctx context.Context) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{Size: len(c.entries), MaxSize: c.maxSize, HitRate: rate}
}

// removeLocked deletes key from both the map and the insertion-order slice.
// Caller holds the mutex.
func (c *MemoryCache) removeLocked(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
