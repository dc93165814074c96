package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ReceiptCache implements ports.ReceiptCache using Redis. It fronts the
// database dedupe gate so replayed webhook deliveries skip the transaction
// entirely. Losing a key is harmless; the unique constraint still catches
// the duplicate.
type ReceiptCache struct {
	client *goredis.Client
	prefix string
}

// NewReceiptCache creates a new Redis-backed webhook receipt cache.
func NewReceiptCache(client *goredis.Client) *ReceiptCache {
	return &ReceiptCache{
		client: client,
		prefix: "receipt:",
	}
}

// Seen reports whether the event id was marked within its TTL window.
func (c *ReceiptCache) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := c.client.Exists(ctx, c.prefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("redis receipt seen: %w", err)
	}
	return n > 0, nil
}

// MarkSeen records the event id with a TTL.
func (c *ReceiptCache) MarkSeen(ctx context.Context, eventID string, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+eventID, 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis receipt mark: %w", err)
	}
	return nil
}
