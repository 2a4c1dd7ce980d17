package shopify

import (
	"errors"
	"time"

	"github.com/erp/shopsync/internal/domain/integration"
)

// Config holds the connection and pacing settings of one Shopify client
type Config struct {
	// ShopURL is the normalized store URL, e.g. https://acme.myshopify.com
	ShopURL string
	// AccessToken is the Admin API access token
	AccessToken string
	// APIVersion is the versioned path segment, e.g. 2024-01
	APIVersion string
	// LocationIDs restricts inventory reads to these locations. Empty means
	// every active location.
	LocationIDs []string
	// Timeout bounds every HTTP call
	Timeout time.Duration
	// RequestsPerSecond is the steady token bucket refill rate
	RequestsPerSecond float64
	// Burst is the token bucket size
	Burst int
	// ThrottleThreshold is the bucket usage ratio reported by the
	// X-Shopify-Shop-Api-Call-Limit header above which the client pauses
	ThrottleThreshold float64
	// MaxAttempts bounds retries of 429 and 5xx responses
	MaxAttempts int
	// BaseBackoff is the first retry delay, doubled on each attempt
	BaseBackoff time.Duration
	// MaxBackoff caps the retry delay
	MaxBackoff time.Duration
}

// Errors for Shopify configuration
var (
	ErrConfigMissingShopURL     = errors.New("shopify: shop URL is required")
	ErrConfigMissingAccessToken = errors.New("shopify: access token is required")
)

// DefaultConfig returns pacing defaults matching the REST Admin API leaky
// bucket (40 requests, 2 per second leak rate).
func DefaultConfig() Config {
	return Config{
		APIVersion:        integration.DefaultAPIVersion,
		Timeout:           30 * time.Second,
		RequestsPerSecond: 2,
		Burst:             4,
		ThrottleThreshold: 0.8,
		MaxAttempts:       5,
		BaseBackoff:       500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
	}
}

// Validate validates the configuration and fills zero values with defaults
func (c *Config) Validate() error {
	if c.ShopURL == "" {
		return ErrConfigMissingShopURL
	}
	if c.AccessToken == "" {
		return ErrConfigMissingAccessToken
	}
	def := DefaultConfig()
	if c.APIVersion == "" {
		c.APIVersion = def.APIVersion
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = def.RequestsPerSecond
	}
	if c.Burst <= 0 {
		c.Burst = def.Burst
	}
	if c.ThrottleThreshold <= 0 || c.ThrottleThreshold > 1 {
		c.ThrottleThreshold = def.ThrottleThreshold
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = def.BaseBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = def.MaxBackoff
	}
	return nil
}

// BaseURL returns the versioned Admin API root
func (c *Config) BaseURL() string {
	return c.ShopURL + "/admin/api/" + c.APIVersion
}
