package resolver

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/steward/pkg/observability"
)

// LRUCache is an in-process capability cache. Entries expire on a TTL as
// a backstop, but correctness comes from explicit invalidation: every
// matrix write for a role drops every cached role set containing it.
type LRUCache struct {
	cache   *expirable.LRU[string, CapabilityMap]
	metrics *observability.Metrics

	mu        sync.Mutex
	roleIndex map[int64]map[string]struct{}
	keyRoles  map[string][]int64
}

// NewLRUCache creates an LRU capability cache. metrics may be nil.
func NewLRUCache(maxEntries int, ttl time.Duration, metrics *observability.Metrics) *LRUCache {
	return &LRUCache{
		cache:     expirable.NewLRU[string, CapabilityMap](maxEntries, nil, ttl),
		metrics:   metrics,
		roleIndex: make(map[int64]map[string]struct{}),
		keyRoles:  make(map[string][]int64),
	}
}

// Get returns the cached capability map for a role set key
func (c *LRUCache) Get(ctx context.Context, key string) (CapabilityMap, bool) {
	capabilities, ok := c.cache.Get(key)
	if c.metrics != nil {
		if ok {
			c.metrics.CacheHitsTotal.WithLabelValues("lru").Inc()
		} else {
			c.metrics.CacheMissesTotal.WithLabelValues("lru").Inc()
		}
	}
	return capabilities, ok
}

// Add caches a resolved capability map and indexes it by every role in
// the set so role-level invalidation can find it.
func (c *LRUCache) Add(ctx context.Context, key string, roleIDs []int64, capabilities CapabilityMap) {
	c.mu.Lock()
	for _, roleID := range roleIDs {
		keys, ok := c.roleIndex[roleID]
		if !ok {
			keys = make(map[string]struct{})
			c.roleIndex[roleID] = keys
		}
		keys[key] = struct{}{}
	}
	c.keyRoles[key] = append([]int64(nil), roleIDs...)
	c.mu.Unlock()

	c.cache.Add(key, capabilities)
}

// InvalidateRole drops every cached role set that includes the role
func (c *LRUCache) InvalidateRole(ctx context.Context, roleID int64) {
	c.mu.Lock()
	keys := c.roleIndex[roleID]
	delete(c.roleIndex, roleID)
	dropped := make([]string, 0, len(keys))
	for key := range keys {
		dropped = append(dropped, key)
		for _, other := range c.keyRoles[key] {
			if other == roleID {
				continue
			}
			if otherKeys, ok := c.roleIndex[other]; ok {
				delete(otherKeys, key)
			}
		}
		delete(c.keyRoles, key)
	}
	c.mu.Unlock()

	for _, key := range dropped {
		c.cache.Remove(key)
	}
}

// Purge drops every cached entry
func (c *LRUCache) Purge() {
	c.mu.Lock()
	c.roleIndex = make(map[int64]map[string]struct{})
	c.keyRoles = make(map[string][]int64)
	c.mu.Unlock()
	c.cache.Purge()
}
