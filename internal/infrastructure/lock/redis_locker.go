package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"go.uber.org/zap"

	"github.com/erp/shopsync/internal/domain/integration"
)

const defaultLockPrefix = "shopsync:lock:"

// RedisLocker is a distributed KeyedLocker backed by bsm/redislock. Held
// locks are refreshed every ttl/2 until released, so a pass that outlives
// its ttl keeps the key while the holder is alive.
type RedisLocker struct {
	client    *redislock.Client
	keyPrefix string
	poll      time.Duration
	logger    *zap.Logger
}

// NewRedisLocker creates a locker on an existing Redis client
func NewRedisLocker(client redislock.RedisClient, keyPrefix string, logger *zap.Logger) *RedisLocker {
	if keyPrefix == "" {
		keyPrefix = defaultLockPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{
		client:    redislock.New(client),
		keyPrefix: keyPrefix,
		poll:      250 * time.Millisecond,
		logger:    logger,
	}
}

// Lock blocks until key is obtained or ctx is done
func (l *RedisLocker) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	fullKey := l.keyPrefix + key
	opts := &redislock.Options{RetryStrategy: redislock.LinearBackoff(l.poll)}

	var held *redislock.Lock
	for held == nil {
		lk, err := l.client.Obtain(ctx, fullKey, ttl, opts)
		switch {
		case err == nil:
			held = lk
		case errors.Is(err, redislock.ErrNotObtained):
			// Obtain gives up after ttl when ctx has no deadline; keep waiting
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
		default:
			return nil, fmt.Errorf("failed to obtain lock %s: %w", fullKey, err)
		}
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(ttl / 2)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := held.Refresh(context.Background(), ttl, nil); err != nil {
					l.logger.Warn("Failed to refresh sync lock",
						zap.String("key", fullKey),
						zap.Error(err),
					)
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
			if err := held.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				l.logger.Warn("Failed to release sync lock",
					zap.String("key", fullKey),
					zap.Error(err),
				)
			}
		})
	}, nil
}

var _ integration.KeyedLocker = (*RedisLocker)(nil)
