package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/shopsync/internal/domain/integration"
	"github.com/erp/shopsync/internal/domain/shared"
)

// WebhookPath is the route remote webhooks are delivered to, relative to
// the public base URL
const WebhookPath = "/api/v1/webhooks/shopify/"

// InstanceService manages sync instances: credentials, connectivity,
// inventory locations and remote webhook registrations
type InstanceService struct {
	instances     integration.InstanceRepository
	subscriptions integration.WebhookSubscriptionRepository
	remotes       integration.RemoteClientFactory
	logger        *zap.Logger
}

// NewInstanceService creates a new instance service
func NewInstanceService(
	instances integration.InstanceRepository,
	subscriptions integration.WebhookSubscriptionRepository,
	remotes integration.RemoteClientFactory,
	logger *zap.Logger,
) *InstanceService {
	return &InstanceService{
		instances:     instances,
		subscriptions: subscriptions,
		remotes:       remotes,
		logger:        logger,
	}
}

// CreateInstanceInput contains input for creating an instance
type CreateInstanceInput struct {
	Name          string
	ShopURL       string
	AccessToken   string
	WebhookSecret string
	APIVersion    string
	LocationIDs   []string
	AutoSync      bool
	ExportEnabled bool
}

// UpdateInstanceInput contains input for updating an instance's settings
type UpdateInstanceInput struct {
	Name          *string
	AutoSync      *bool
	ExportEnabled *bool
}

// Create registers a new unverified instance
func (s *InstanceService) Create(ctx context.Context, in CreateInstanceInput) (*integration.SyncInstance, error) {
	instance, err := integration.NewSyncInstance(in.Name, in.ShopURL, in.AccessToken, in.WebhookSecret, in.APIVersion)
	if err != nil {
		return nil, err
	}
	if len(in.LocationIDs) > 0 {
		if err := instance.SetLocations(in.LocationIDs); err != nil {
			return nil, err
		}
	}
	instance.AutoSync = in.AutoSync
	instance.ExportEnabled = in.ExportEnabled

	existing, err := s.instances.FindByShopURL(ctx, instance.ShopURL)
	switch {
	case err == nil:
		return nil, shared.WrapDomainError(shared.ErrAlreadyExists.Code,
			fmt.Sprintf("%s is already configured as instance %s", instance.ShopURL, existing.ID),
			integration.ErrInstanceAlreadyExists)
	case !errors.Is(err, integration.ErrInstanceNotFound):
		return nil, err
	}

	if err := s.instances.Save(ctx, instance); err != nil {
		return nil, fmt.Errorf("failed to save instance: %w", err)
	}
	s.logger.Info("Sync instance created",
		zap.String("instance_id", instance.ID.String()),
		zap.String("shop_url", instance.ShopURL))
	return instance, nil
}

// Get returns an instance
func (s *InstanceService) Get(ctx context.Context, id uuid.UUID) (*integration.SyncInstance, error) {
	return s.instances.FindByID(ctx, id)
}

// List returns instances matching the filter and the total count
func (s *InstanceService) List(ctx context.Context, filter integration.InstanceFilter) ([]integration.SyncInstance, int64, error) {
	return s.instances.FindAll(ctx, filter)
}

// Update changes an instance's name and sync switches
func (s *InstanceService) Update(ctx context.Context, id uuid.UUID, in UpdateInstanceInput) (*integration.SyncInstance, error) {
	instance, err := s.instances.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, integration.ErrInstanceNameRequired
		}
		instance.Name = strings.TrimSpace(*in.Name)
	}
	if in.AutoSync != nil {
		instance.AutoSync = *in.AutoSync
	}
	if in.ExportEnabled != nil {
		instance.ExportEnabled = *in.ExportEnabled
	}
	if err := s.instances.Save(ctx, instance); err != nil {
		return nil, fmt.Errorf("failed to save instance: %w", err)
	}
	return instance, nil
}

// RotateCredentials replaces the access token and optionally the webhook
// secret. The instance goes back to unverified.
func (s *InstanceService) RotateCredentials(ctx context.Context, id uuid.UUID, accessToken, webhookSecret string) (*integration.SyncInstance, error) {
	instance, err := s.instances.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := instance.RotateCredentials(accessToken, webhookSecret); err != nil {
		return nil, err
	}
	if err := s.instances.Save(ctx, instance); err != nil {
		return nil, fmt.Errorf("failed to save instance: %w", err)
	}
	s.logger.Info("Instance credentials rotated",
		zap.String("instance_id", instance.ID.String()),
		zap.Bool("webhook_secret_rotated", webhookSecret != ""))
	return instance, nil
}

// SetLocations replaces the inventory locations that are synchronized
func (s *InstanceService) SetLocations(ctx context.Context, id uuid.UUID, locationIDs []string) (*integration.SyncInstance, error) {
	instance, err := s.instances.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := instance.SetLocations(locationIDs); err != nil {
		return nil, err
	}
	if err := s.instances.Save(ctx, instance); err != nil {
		return nil, fmt.Errorf("failed to save instance: %w", err)
	}
	return instance, nil
}

// TestConnection probes the remote shop and records the result on the
// instance. Rejected credentials mark the instance auth_rejected and are
// returned as ErrAuthRejected.
func (s *InstanceService) TestConnection(ctx context.Context, id uuid.UUID) (*integration.SyncInstance, error) {
	instance, client, err := s.client(ctx, id)
	if err != nil {
		return nil, err
	}

	shop, err := client.Shop(ctx)
	if err != nil {
		if errors.Is(err, integration.ErrAuthRejected) {
			instance.MarkAuthRejected()
			if saveErr := s.instances.Save(ctx, instance); saveErr != nil {
				s.logger.Error("Failed to save instance status", zap.Error(saveErr))
			}
			s.logger.Warn("Instance credentials rejected", zap.String("instance_id", id.String()))
		}
		return instance, err
	}

	instance.MarkVerified(shop.Name, shop.Currency)
	if err := s.instances.Save(ctx, instance); err != nil {
		return nil, fmt.Errorf("failed to save instance: %w", err)
	}
	s.logger.Info("Instance connection verified",
		zap.String("instance_id", id.String()),
		zap.String("shop_name", shop.Name),
		zap.String("currency", shop.Currency))
	return instance, nil
}

// SyncLocations replaces the instance's locations with the active remote
// ones
func (s *InstanceService) SyncLocations(ctx context.Context, id uuid.UUID) (*integration.SyncInstance, error) {
	instance, client, err := s.client(ctx, id)
	if err != nil {
		return nil, err
	}
	locations, err := client.Locations(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(locations))
	for _, loc := range locations {
		if loc.Active {
			ids = append(ids, loc.ID)
		}
	}
	if err := instance.SetLocations(ids); err != nil {
		return nil, err
	}
	if err := s.instances.Save(ctx, instance); err != nil {
		return nil, fmt.Errorf("failed to save instance: %w", err)
	}
	s.logger.Info("Instance locations synchronized",
		zap.String("instance_id", id.String()),
		zap.Strings("location_ids", ids))
	return instance, nil
}

// WebhookAddress returns the delivery address of an instance
func WebhookAddress(baseURL string, instanceID uuid.UUID) string {
	return strings.TrimRight(baseURL, "/") + WebhookPath + instanceID.String()
}

// RegisterWebhooks subscribes the instance to every handled topic that is
// not registered yet and returns all of its subscriptions
func (s *InstanceService) RegisterWebhooks(ctx context.Context, id uuid.UUID, baseURL string) ([]integration.WebhookSubscription, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("%w: callback base URL is required", integration.ErrValidation)
	}
	instance, client, err := s.client(ctx, id)
	if err != nil {
		return nil, err
	}
	address := WebhookAddress(baseURL, instance.ID)

	subs, err := s.subscriptions.FindByInstance(ctx, instance.ID)
	if err != nil {
		return nil, err
	}
	registered := make(map[integration.WebhookTopic]bool, len(subs))
	for _, sub := range subs {
		if sub.Address == address {
			registered[sub.Topic] = true
		}
	}

	// adopt registrations made outside this service
	remote, err := client.Webhooks(ctx)
	if err != nil {
		return nil, err
	}
	existing := make(map[integration.WebhookTopic]integration.RemoteWebhook, len(remote))
	for _, hook := range remote {
		if hook.Address == address {
			existing[hook.Topic] = hook
		}
	}

	for _, topic := range integration.AllTopics() {
		if registered[topic] {
			continue
		}
		hook, ok := existing[topic]
		if !ok {
			created, err := client.CreateWebhook(ctx, topic, address)
			if err != nil {
				return nil, fmt.Errorf("failed to register %s webhook: %w", topic, err)
			}
			hook = *created
		}
		sub := integration.NewWebhookSubscription(instance.ID, topic, hook.ID, address)
		if err := s.subscriptions.Save(ctx, sub); err != nil {
			return nil, fmt.Errorf("failed to save webhook subscription: %w", err)
		}
		subs = append(subs, *sub)
		s.logger.Info("Webhook registered",
			zap.String("instance_id", instance.ID.String()),
			zap.String("webhook_topic", topic.String()),
			zap.String("remote_id", hook.ID))
	}
	return subs, nil
}

// UnregisterWebhooks removes every subscription of the instance, remotely
// and locally
func (s *InstanceService) UnregisterWebhooks(ctx context.Context, id uuid.UUID) error {
	instance, client, err := s.client(ctx, id)
	if err != nil {
		return err
	}
	subs, err := s.subscriptions.FindByInstance(ctx, instance.ID)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if err := client.DeleteWebhook(ctx, sub.RemoteID); err != nil && !errors.Is(err, integration.ErrRemoteNotFound) {
			return fmt.Errorf("failed to delete %s webhook: %w", sub.Topic, err)
		}
		if err := s.subscriptions.Delete(ctx, sub.ID); err != nil {
			return fmt.Errorf("failed to delete webhook subscription: %w", err)
		}
	}
	s.logger.Info("Webhooks unregistered",
		zap.String("instance_id", instance.ID.String()),
		zap.Int("count", len(subs)))
	return nil
}

// Subscriptions returns the instance's webhook subscriptions
func (s *InstanceService) Subscriptions(ctx context.Context, id uuid.UUID) ([]integration.WebhookSubscription, error) {
	return s.subscriptions.FindByInstance(ctx, id)
}

func (s *InstanceService) client(ctx context.Context, id uuid.UUID) (*integration.SyncInstance, integration.RemoteClient, error) {
	instance, err := s.instances.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	client, err := s.remotes.ForInstance(instance)
	if err != nil {
		return nil, nil, err
	}
	return instance, client, nil
}
