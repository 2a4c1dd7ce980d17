package auth

import (
	"context"
	"time"

	"github.com/erp/shopsync/internal/domain/shared"
)

// TokenBlacklist remembers revoked token ids until the tokens would have
// expired anyway. It is backed by an expiring set, in memory for a single
// process or in Redis when several processes serve the API.
type TokenBlacklist struct {
	set shared.ExpiringSet
}

// NewTokenBlacklist creates a blacklist on top of set
func NewTokenBlacklist(set shared.ExpiringSet) *TokenBlacklist {
	return &TokenBlacklist{set: set}
}

// Revoke blacklists a token id for ttl, normally the token's remaining
// lifetime
func (b *TokenBlacklist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	_, err := b.set.Add(ctx, jti, ttl)
	return err
}

// IsBlacklisted checks if a token id has been revoked
func (b *TokenBlacklist) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	return b.set.Contains(ctx, jti)
}
