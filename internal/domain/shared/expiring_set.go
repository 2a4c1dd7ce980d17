package shared

import (
	"context"
	"time"
)

// ExpiringSet remembers keys for a bounded retention window. It backs the
// webhook dedup table: a key added once is reported as present until its
// TTL elapses.
type ExpiringSet interface {
	// Add inserts key with the given TTL. It returns true if the key was
	// newly added and false if it was already present.
	Add(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Contains checks whether key is present and not expired
	Contains(ctx context.Context, key string) (bool, error)

	// Remove forgets key, e.g. when the work it guarded could not be queued
	Remove(ctx context.Context, key string) error

	// Close releases resources held by the set
	Close() error
}

// ExpiringSetConfig holds configuration for the dedup set
type ExpiringSetConfig struct {
	// Retention is how long a key is remembered.
	// Default: 48 hours, the remote platform retries a delivery for up to 48 hours
	Retention time.Duration
}

// DefaultExpiringSetConfig returns the default dedup configuration
func DefaultExpiringSetConfig() ExpiringSetConfig {
	return ExpiringSetConfig{
		Retention: 48 * time.Hour,
	}
}
