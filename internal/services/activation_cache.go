package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"subly-reconciler/pkg/logging"
)

// activationCacheTTL keeps processed markers for longer than a billing period
// so a marker is still present when the same activation reappears in a later
// history walk.
const activationCacheTTL = 45 * 24 * time.Hour

// ActivationCache remembers (user, subscription) pairs whose first billing
// period has already been resolved. It is purely an observational fast path:
// a miss falls through to the on-ledger idempotency guard, so running without
// Redis is safe.
type ActivationCache struct {
	client *redis.Client
}

// NewActivationCache creates a new activation cache. A nil client disables
// the cache.
func NewActivationCache(client *redis.Client) *ActivationCache {
	return &ActivationCache{client: client}
}

// IsProcessed reports whether the activation's first payout is already marked
// as resolved. Cache errors are treated as a miss.
func (c *ActivationCache) IsProcessed(ctx context.Context, user string, subscriptionID uint64) bool {
	if c == nil || c.client == nil {
		return false
	}
	n, err := c.client.Exists(ctx, activationCacheKey(user, subscriptionID)).Result()
	if err != nil {
		logging.Warnf("Activation cache lookup failed: %v", err)
		return false
	}
	return n > 0
}

// MarkProcessed records that the activation's first payout has been resolved
// or found already settled on the ledger.
func (c *ActivationCache) MarkProcessed(ctx context.Context, user string, subscriptionID uint64) {
	if c == nil || c.client == nil {
		return
	}
	key := activationCacheKey(user, subscriptionID)
	if err := c.client.Set(ctx, key, time.Now().Unix(), activationCacheTTL).Err(); err != nil {
		logging.Warnf("Failed to mark activation as processed in cache: %v", err)
	}
}

func activationCacheKey(user string, subscriptionID uint64) string {
	return fmt.Sprintf("activation:%s:%d", user, subscriptionID)
}
