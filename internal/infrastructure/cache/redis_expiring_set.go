package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/erp/shopsync/internal/domain/shared"
)

const defaultDedupPrefix = "shopsync:dedup:"

// RedisExpiringSet implements shared.ExpiringSet on Redis keys with a TTL,
// so every node of a deployment shares one dedup window.
type RedisExpiringSet struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisExpiringSet creates a set on an existing client
func NewRedisExpiringSet(client redis.UniversalClient, keyPrefix string) *RedisExpiringSet {
	if keyPrefix == "" {
		keyPrefix = defaultDedupPrefix
	}
	return &RedisExpiringSet{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Add uses SET NX with expiry, which is atomic across nodes
func (s *RedisExpiringSet) Add(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	added, err := s.client.SetNX(ctx, s.keyPrefix+key, time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to add dedup key: %w", err)
	}
	return added, nil
}

// Contains checks whether key exists
func (s *RedisExpiringSet) Contains(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check dedup key: %w", err)
	}
	return n > 0, nil
}

// Remove deletes key
func (s *RedisExpiringSet) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to remove dedup key: %w", err)
	}
	return nil
}

// Close is a no-op: the client is shared and closed by its owner
func (s *RedisExpiringSet) Close() error {
	return nil
}

var _ shared.ExpiringSet = (*RedisExpiringSet)(nil)
