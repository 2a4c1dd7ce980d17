package integration

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultAPIVersion is the Admin API version used when none is configured
const DefaultAPIVersion = "2024-01"

var (
	apiVersionPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)
	locationPattern   = regexp.MustCompile(`^\d+$`)
)

// ConnectionStatus tracks whether an instance's credentials are usable
type ConnectionStatus string

const (
	// ConnectionUnverified means the connectivity probe has not succeeded yet
	ConnectionUnverified ConnectionStatus = "unverified"
	// ConnectionConnected means the last probe or sync was accepted
	ConnectionConnected ConnectionStatus = "connected"
	// ConnectionAuthRejected means the remote rejected the access token
	ConnectionAuthRejected ConnectionStatus = "auth_rejected"
)

// ---------------------------------------------------------------------------
// SyncInstance Entity
// ---------------------------------------------------------------------------

// SyncInstance is one configured connection to a remote commerce store.
// It is long-lived and only mutated on credential rotation, probe results
// and sync watermarks.
type SyncInstance struct {
	ID   uuid.UUID
	Name string
	// ShopURL is normalized to scheme://host without a trailing slash
	ShopURL     string
	AccessToken string
	// WebhookSecret is the key used to verify webhook HMAC signatures
	WebhookSecret string
	APIVersion    string
	// LocationIDs lists the remote inventory locations that are synchronized
	LocationIDs   []string
	AutoSync      bool
	ExportEnabled bool

	Status     ConnectionStatus
	ShopName   string
	Currency   string
	VerifiedAt *time.Time

	// LastSyncAt is the watermark of the last successful import per entity type
	LastSyncAt map[EntityType]time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSyncInstance creates a new unverified instance
func NewSyncInstance(name, shopURL, accessToken, webhookSecret, apiVersion string) (*SyncInstance, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrInstanceNameRequired
	}
	normalized, err := NormalizeShopURL(shopURL)
	if err != nil {
		return nil, err
	}
	if accessToken == "" {
		return nil, ErrInstanceMissingToken
	}
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	if !apiVersionPattern.MatchString(apiVersion) {
		return nil, ErrInstanceInvalidAPIVersion
	}

	now := time.Now()
	return &SyncInstance{
		ID:            uuid.New(),
		Name:          strings.TrimSpace(name),
		ShopURL:       normalized,
		AccessToken:   accessToken,
		WebhookSecret: webhookSecret,
		APIVersion:    apiVersion,
		LocationIDs:   make([]string, 0),
		Status:        ConnectionUnverified,
		LastSyncAt:    make(map[EntityType]time.Time),
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// ValidAPIVersion reports whether v has the YYYY-MM form of an Admin API
// version
func ValidAPIVersion(v string) bool {
	return apiVersionPattern.MatchString(v)
}

// NormalizeShopURL accepts "shop", "shop.myshopify.com" or a full URL and
// returns "https://host".
func NormalizeShopURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInstanceInvalidShopURL
	}
	if !strings.Contains(raw, "://") {
		if !strings.Contains(raw, ".") {
			raw += ".myshopify.com"
		}
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", ErrInstanceInvalidShopURL
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", ErrInstanceInvalidShopURL
	}
	return u.Scheme + "://" + u.Host, nil
}

// Validate validates the instance
func (i *SyncInstance) Validate() error {
	if i.Name == "" {
		return ErrInstanceNameRequired
	}
	if _, err := NormalizeShopURL(i.ShopURL); err != nil {
		return err
	}
	if i.AccessToken == "" {
		return ErrInstanceMissingToken
	}
	if !apiVersionPattern.MatchString(i.APIVersion) {
		return ErrInstanceInvalidAPIVersion
	}
	for _, loc := range i.LocationIDs {
		if !locationPattern.MatchString(loc) {
			return ErrInstanceInvalidLocation
		}
	}
	return nil
}

// RotateCredentials replaces the access token (and optionally the webhook
// secret). The instance must be probed again before the next sync.
func (i *SyncInstance) RotateCredentials(accessToken, webhookSecret string) error {
	if accessToken == "" {
		return ErrInstanceMissingToken
	}
	i.AccessToken = accessToken
	if webhookSecret != "" {
		i.WebhookSecret = webhookSecret
	}
	i.Status = ConnectionUnverified
	i.VerifiedAt = nil
	i.UpdatedAt = time.Now()
	return nil
}

// SetLocations replaces the enabled inventory locations
func (i *SyncInstance) SetLocations(ids []string) error {
	for _, id := range ids {
		if !locationPattern.MatchString(id) {
			return ErrInstanceInvalidLocation
		}
	}
	i.LocationIDs = append(make([]string, 0, len(ids)), ids...)
	i.UpdatedAt = time.Now()
	return nil
}

// MarkVerified records a successful connectivity probe
func (i *SyncInstance) MarkVerified(shopName, currency string) {
	now := time.Now()
	i.Status = ConnectionConnected
	i.ShopName = shopName
	i.Currency = currency
	i.VerifiedAt = &now
	i.UpdatedAt = now
}

// MarkAuthRejected records that the remote refused the credentials
func (i *SyncInstance) MarkAuthRejected() {
	i.Status = ConnectionAuthRejected
	i.UpdatedAt = time.Now()
}

// IsVerified returns true if the connectivity probe succeeded
func (i *SyncInstance) IsVerified() bool {
	return i.Status == ConnectionConnected
}

// CanSync returns an error when the instance must not be synced
func (i *SyncInstance) CanSync() error {
	if i.Status == ConnectionAuthRejected {
		return ErrInstanceAuthRejected
	}
	return nil
}

// AdvanceWatermark moves the last-sync watermark of an entity type forward
func (i *SyncInstance) AdvanceWatermark(entity EntityType, at time.Time) {
	if i.LastSyncAt == nil {
		i.LastSyncAt = make(map[EntityType]time.Time)
	}
	if at.After(i.LastSyncAt[entity]) {
		i.LastSyncAt[entity] = at
		i.UpdatedAt = time.Now()
	}
}

// Watermark returns the last-sync time of an entity type, zero if never synced
func (i *SyncInstance) Watermark(entity EntityType) time.Time {
	return i.LastSyncAt[entity]
}

// ---------------------------------------------------------------------------
// Repository
// ---------------------------------------------------------------------------

// InstanceFilter defines filtering options for listing instances
type InstanceFilter struct {
	AutoSync *bool
	Status   *ConnectionStatus
	Page     int
	PageSize int
}

// InstanceRepository persists sync instances
type InstanceRepository interface {
	Save(ctx context.Context, instance *SyncInstance) error
	FindByID(ctx context.Context, id uuid.UUID) (*SyncInstance, error)
	FindByShopURL(ctx context.Context, shopURL string) (*SyncInstance, error)
	FindAll(ctx context.Context, filter InstanceFilter) ([]SyncInstance, int64, error)
}
