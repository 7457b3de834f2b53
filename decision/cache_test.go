// decision/cache_test.go
package decision

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/stronghold-io/bastion/model"
)

func decisionFor(reason string) model.AccessDecision {
	return model.AccessDecision{
		Allowed:     true,
		Reason:      reason,
		EvaluatedAt: time.Now(),
	}
}

func TestMemoryCacheGetSet(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(10, 5*time.Minute)

	_, ok := cache.Get(ctx, "decision:alice:invoice:read:*")
	assert.False(t, ok)

	cache.Set(ctx, "decision:alice:invoice:read:*", decisionFor("granted by role admin"))

	entry, ok := cache.Get(ctx, "decision:alice:invoice:read:*")
	assert.True(t, ok)
	assert.True(t, entry.Decision.Allowed)
	assert.Equal(t, "granted by role admin", entry.Decision.Reason)
}

func TestMemoryCacheTTLExpiry(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(10, 30*time.Millisecond)

	cache.Set(ctx, "decision:alice:invoice:read:*", decisionFor("ok"))

	_, ok := cache.Get(ctx, "decision:alice:invoice:read:*")
	assert.True(t, ok)

	time.Sleep(40 * time.Millisecond)

	_, ok = cache.Get(ctx, "decision:alice:invoice:read:*")
	assert.False(t, ok, "entry past its TTL must not be served")
	assert.Equal(t, 0, cache.Stats(ctx).Size)
}

func TestMemoryCacheInsertionOrderEviction(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(2, 5*time.Minute)

	cache.Set(ctx, "a", decisionFor("a"))
	cache.Set(ctx, "b", decisionFor("b"))

	// Touch "a" so an LRU cache would evict "b" next. Eviction must still
	// follow insertion order and drop "a".
	_, ok := cache.Get(ctx, "a")
	assert.True(t, ok)

	cache.Set(ctx, "c", decisionFor("c"))

	_, ok = cache.Get(ctx, "a")
	assert.False(t, ok, "oldest inserted entry should be evicted")
	_, ok = cache.Get(ctx, "b")
	assert.True(t, ok)
	_, ok = cache.Get(ctx, "c")
	assert.True(t, ok)
	assert.Equal(t, 2, cache.Stats(ctx).Size)
}

func TestMemoryCacheOverwriteDoesNotEvict(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(2, 5*time.Minute)

	cache.Set(ctx, "a", decisionFor("a"))
	cache.Set(ctx, "b", decisionFor("b"))
	cache.Set(ctx, "a", decisionFor("a2"))

	entry, ok := cache.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, "a2", entry.Decision.Reason)
	_, ok = cache.Get(ctx, "b")
	assert.True(t, ok)
}

func TestMemoryCacheInvalidate(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(10, 5*time.Minute)

	cache.Set(ctx, "decision:alice:invoice:read:inv-1", decisionFor("a"))
	cache.Set(ctx, "decision:alice:invoice:write:inv-2", decisionFor("b"))
	cache.Set(ctx, "decision:bob:invoice:read:inv-1", decisionFor("c"))

	removed := cache.InvalidateByPrefix(ctx, "decision:alice:")
	assert.Equal(t, 2, removed)
	_, ok := cache.Get(ctx, "decision:bob:invoice:read:inv-1")
	assert.True(t, ok)

	removed = cache.InvalidateBySuffix(ctx, ":inv-1")
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, cache.Stats(ctx).Size)
}

func TestMemoryCacheClear(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(10, 5*time.Minute)

	for i := 0; i < 5; i++ {
		cache.Set(ctx, fmt.Sprintf("key-%d", i), decisionFor("x"))
	}
	assert.Equal(t, 5, cache.Stats(ctx).Size)

	cache.Clear(ctx)
	assert.Equal(t, 0, cache.Stats(ctx).Size)

	// Capacity is intact after a clear.
	for i := 0; i < 10; i++ {
		cache.Set(ctx, fmt.Sprintf("key-%d", i), decisionFor("x"))
	}
	assert.Equal(t, 10, cache.Stats(ctx).Size)
}

func TestMemoryCacheEvictExpired(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(10, 20*time.Millisecond)

	cache.Set(ctx, "a", decisionFor("a"))
	cache.Set(ctx, "b", decisionFor("b"))
	time.Sleep(30 * time.Millisecond)
	cache.Set(ctx, "c", decisionFor("c"))

	removed := cache.EvictExpired(ctx)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, cache.Stats(ctx).Size)
}

func TestMemoryCacheStatsHitRate(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(10, 5*time.Minute)

	cache.Set(ctx, "a", decisionFor("a"))

	cache.Get(ctx, "a")       // hit
	cache.Get(ctx, "a")       // hit
	cache.Get(ctx, "missing") // miss
	cache.Get(ctx, "missing") // miss

	stats := cache.Stats(ctx)
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, 10, stats.MaxSize)
	assert.InDelta(t, 0.5, stats.HitRate, 0.001)
}
