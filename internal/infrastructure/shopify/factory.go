package shopify

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/shopsync/internal/domain/integration"
)

// Factory builds one Client per sync instance. Clients are cached so that
// all jobs of an instance share its token bucket; a credential or location
// change yields a fresh client.
type Factory struct {
	defaults Config
	opts     []Option
	logger   *zap.Logger

	mu      sync.Mutex
	clients map[uuid.UUID]cachedClient
}

type cachedClient struct {
	fingerprint string
	client      *Client
}

// NewFactory creates a factory. defaults supplies the pacing and retry
// settings; connection fields are taken from each instance.
func NewFactory(defaults Config, logger *zap.Logger, opts ...Option) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		defaults: defaults,
		opts:     append([]Option{WithLogger(logger)}, opts...),
		logger:   logger,
		clients:  make(map[uuid.UUID]cachedClient),
	}
}

// ForInstance returns the client for instance
func (f *Factory) ForInstance(instance *integration.SyncInstance) (integration.RemoteClient, error) {
	fp := fingerprint(instance)

	f.mu.Lock()
	defer f.mu.Unlock()

	if cached, ok := f.clients[instance.ID]; ok && cached.fingerprint == fp {
		return cached.client, nil
	}

	cfg := f.defaults
	cfg.ShopURL = instance.ShopURL
	cfg.AccessToken = instance.AccessToken
	cfg.APIVersion = instance.APIVersion
	cfg.LocationIDs = append([]string(nil), instance.LocationIDs...)

	client, err := NewClient(cfg, f.opts...)
	if err != nil {
		return nil, err
	}
	f.clients[instance.ID] = cachedClient{fingerprint: fp, client: client}
	f.logger.Debug("Created Shopify client",
		zap.String("instance_id", instance.ID.String()),
		zap.String("shop_url", instance.ShopURL),
	)
	return client, nil
}

// Evict drops the cached client of an instance
func (f *Factory) Evict(instanceID uuid.UUID) {
	f.mu.Lock()
	delete(f.clients, instanceID)
	f.mu.Unlock()
}

func fingerprint(instance *integration.SyncInstance) string {
	return strings.Join([]string{
		instance.ShopURL,
		instance.APIVersion,
		instance.AccessToken,
		strings.Join(instance.LocationIDs, ","),
	}, "|")
}

// Interface assertions
var (
	_ integration.RemoteClient        = (*Client)(nil)
	_ integration.RemoteClientFactory = (*Factory)(nil)
)
