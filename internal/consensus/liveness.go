package consensus

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const livenessKeyPrefix = "rpc:liveness:"

// LivenessCache remembers per-URL endpoint health for a short window so
// repeated probes do not hit dead endpoints. Entries are written whole with
// a TTL; readers only ever see a complete entry or a miss.
type LivenessCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLivenessCache creates a liveness cache with the given TTL. A zero TTL
// defaults to 20 minutes.
func NewLivenessCache(client *redis.Client, ttl time.Duration) *LivenessCache {
	if ttl == 0 {
		ttl = 20 * time.Minute
	}
	return &LivenessCache{client: client, ttl: ttl}
}

// Get returns (alive, known). known is false on a cache miss or any cache
// error; liveness lookups are best-effort and never block a query round.
func (c *LivenessCache) Get(ctx context.Context, url string) (alive bool, known bool) {
	value, err := c.client.Get(ctx, livenessKeyPrefix+normalizeURL(url)).Result()
	if err != nil {
		return false, false
	}
	return value == "1", true
}

// Set records endpoint health for the TTL window.
func (c *LivenessCache) Set(ctx context.Context, url string, alive bool) error {
	value := "0"
	if alive {
		value = "1"
	}
	return c.client.Set(ctx, livenessKeyPrefix+normalizeURL(url), value, c.ttl).Err()
}
