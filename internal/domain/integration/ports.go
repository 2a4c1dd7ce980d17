package integration

import (
	"context"
	"time"
)

// ---------------------------------------------------------------------------
// Remote side ports
// ---------------------------------------------------------------------------

// RemoteStore is the record-level port to the remote commerce platform.
// Implementations handle authentication, rate limiting and retries, and
// return errors from this package's taxonomy.
type RemoteStore interface {
	// List returns one page of the collection starting at cursor ("" for
	// the first page).
	List(ctx context.Context, entity EntityType, cursor string, pageSize int) (RemotePage, error)
	Get(ctx context.Context, entity EntityType, remoteID string) (RemotePayload, error)
	Create(ctx context.Context, entity EntityType, payload RemotePayload) (RemotePayload, error)
	Update(ctx context.Context, entity EntityType, remoteID string, payload RemotePayload) (RemotePayload, error)
	// FindByKey looks records up by natural key on the remote side
	FindByKey(ctx context.Context, entity EntityType, naturalKey string) ([]RemotePayload, error)
}

// ShopInfo is the result of a connectivity probe
type ShopInfo struct {
	Name     string
	Domain   string
	Currency string
}

// Location is a remote inventory location
type Location struct {
	ID     string
	Name   string
	Active bool
}

// RemoteWebhook is a webhook registration on the remote platform
type RemoteWebhook struct {
	ID      string
	Topic   WebhookTopic
	Address string
}

// RemoteAdmin covers the non-record endpoints used to manage an instance
type RemoteAdmin interface {
	Shop(ctx context.Context) (*ShopInfo, error)
	Locations(ctx context.Context) ([]Location, error)
	Webhooks(ctx context.Context) ([]RemoteWebhook, error)
	CreateWebhook(ctx context.Context, topic WebhookTopic, address string) (*RemoteWebhook, error)
	DeleteWebhook(ctx context.Context, id string) error
}

// RemoteClient is a fully featured connection to one remote store
type RemoteClient interface {
	RemoteStore
	RemoteAdmin
}

// RemoteClientFactory builds the client for an instance
type RemoteClientFactory interface {
	ForInstance(instance *SyncInstance) (RemoteClient, error)
}

// ---------------------------------------------------------------------------
// Local side port
// ---------------------------------------------------------------------------

// LocalStore is the port to the host business system's records
type LocalStore interface {
	// List returns records ordered by id, starting at offset
	List(ctx context.Context, entity EntityType, offset, limit int) ([]LocalRecord, error)
	Get(ctx context.Context, entity EntityType, id string) (*LocalRecord, error)
	// FindByKey returns every record whose natural key equals key
	FindByKey(ctx context.Context, entity EntityType, key string) ([]LocalRecord, error)
	Create(ctx context.Context, entity EntityType, fields FieldSet) (*LocalRecord, error)
	// Update writes only the given fields
	Update(ctx context.Context, entity EntityType, id string, changes FieldSet) (*LocalRecord, error)
	Deactivate(ctx context.Context, entity EntityType, id string) error
}

// ---------------------------------------------------------------------------
// Serialization port
// ---------------------------------------------------------------------------

// KeyedLocker serializes work per key, e.g. per (instance, entity type).
// Lock blocks until the key is free or ctx is done and returns the release
// function.
type KeyedLocker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}
