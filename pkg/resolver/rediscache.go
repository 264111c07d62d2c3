package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/steward/pkg/observability"
)

const (
	capabilityKeyPrefix = "steward:capabilities:"
	roleIndexKeyPrefix  = "steward:roleindex:"
)

// RedisCache is a capability cache shared across server instances.
// Alongside each cached capability map it maintains a per-role set of
// cache keys so a matrix write on one instance invalidates the entries
// of every instance.
type RedisCache struct {
	client  *redis.Client
	ttl     time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewRedisCache creates a Redis-backed capability cache. metrics may be nil.
func NewRedisCache(client *redis.Client, ttl time.Duration, logger *observability.Logger, metrics *observability.Metrics) *RedisCache {
	return &RedisCache{
		client:  client,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
	}
}

// Get returns the cached capability map for a role set key. Redis
// failures report a miss so resolution falls through to the database.
func (c *RedisCache) Get(ctx context.Context, key string) (CapabilityMap, bool) {
	data, err := c.client.Get(ctx, capabilityKeyPrefix+key).Bytes()
	if err == redis.Nil {
		c.miss()
		return nil, false
	}
	if err != nil {
		c.logger.WithError(err).Warn("Capability cache read failed")
		c.miss()
		return nil, false
	}

	var capabilities CapabilityMap
	if err := json.Unmarshal(data, &capabilities); err != nil {
		c.logger.WithError(err).Warn("Dropping undecodable capability cache entry")
		c.client.Del(ctx, capabilityKeyPrefix+key)
		c.miss()
		return nil, false
	}

	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues("redis").Inc()
	}
	return capabilities, true
}

// Add caches a resolved capability map and records the key under each
// role's index set.
func (c *RedisCache) Add(ctx context.Context, key string, roleIDs []int64, capabilities CapabilityMap) {
	data, err := json.Marshal(capabilities)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to encode capability map for cache")
		return
	}

	pipe := c.client.Pipeline()
	pipe.Set(ctx, capabilityKeyPrefix+key, data, c.ttl)
	for _, roleID := range roleIDs {
		indexKey := fmt.Sprintf("%s%d", roleIndexKeyPrefix, roleID)
		pipe.SAdd(ctx, indexKey, key)
		pipe.Expire(ctx, indexKey, 2*c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.WithError(err).Warn("Capability cache write failed")
	}
}

// InvalidateRole drops every cached role set that includes the role
func (c *RedisCache) InvalidateRole(ctx context.Context, roleID int64) {
	indexKey := fmt.Sprintf("%s%d", roleIndexKeyPrefix, roleID)
	keys, err := c.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		c.logger.WithError(err).Warn("Capability cache invalidation scan failed")
		return
	}

	toDelete := make([]string, 0, len(keys)+1)
	for _, key := range keys {
		toDelete = append(toDelete, capabilityKeyPrefix+key)
	}
	toDelete = append(toDelete, indexKey)
	if err := c.client.Del(ctx, toDelete...).Err(); err != nil {
		c.logger.WithError(err).Warn("Capability cache invalidation failed")
	}
}

func (c *RedisCache) miss() {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.WithLabelValues("redis").Inc()
	}
}
