package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// PaymentCache implements ports.IdempotencyCache. It holds the request id to
// payment id mapping used as the fast path for duplicate submissions. Storage
// remains the authority; a miss here only costs a database read.
type PaymentCache struct {
	client goredis.UniversalClient
	prefix string
}

// NewPaymentCache creates a new Redis-backed payment cache.
func NewPaymentCache(client goredis.UniversalClient) *PaymentCache {
	return &PaymentCache{
		client: client,
		prefix: keyspace,
	}
}

// Get returns the cached entry for key, or nil, nil on a miss.
func (c *PaymentCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis payment cache get: %w", err)
	}
	return val, nil
}

// Set stores value under key with ttl.
func (c *PaymentCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis payment cache set: %w", err)
	}
	return nil
}
