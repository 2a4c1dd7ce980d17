package handler

import (
	"time"

	"github.com/erp/shopsync/internal/domain/integration"
)

// CreateInstanceRequest represents a request to connect a new store
// @Description Request body for creating a sync instance
type CreateInstanceRequest struct {
	Name          string   `json:"name" binding:"required,min=1,max=100" example:"Main store"`
	ShopURL       string   `json:"shop_url" binding:"required,max=255,shopdomain" example:"acme.myshopify.com"`
	AccessToken   string   `json:"access_token" binding:"required" example:"shpat_xxx"`
	WebhookSecret string   `json:"webhook_secret" example:"whsec_xxx"`
	APIVersion    string   `json:"api_version" binding:"omitempty,apiversion" example:"2024-01"`
	LocationIDs   []string `json:"location_ids" binding:"omitempty,dive,numeric" example:"65432198765"`
	AutoSync      bool     `json:"auto_sync" example:"true"`
	ExportEnabled bool     `json:"export_enabled" example:"false"`
}

// UpdateInstanceRequest represents a request to change instance settings
// @Description Request body for updating a sync instance
type UpdateInstanceRequest struct {
	Name          *string `json:"name" binding:"omitempty,min=1,max=100" example:"Outlet store"`
	AutoSync      *bool   `json:"auto_sync" example:"true"`
	ExportEnabled *bool   `json:"export_enabled" example:"true"`
}

// RotateCredentialsRequest replaces the access token and webhook secret
// @Description Request body for rotating instance credentials
type RotateCredentialsRequest struct {
	AccessToken   string `json:"access_token" binding:"required" example:"shpat_yyy"`
	WebhookSecret string `json:"webhook_secret" example:"whsec_yyy"`
}

// SetLocationsRequest selects the inventory locations to synchronize
// @Description Request body for setting enabled locations
type SetLocationsRequest struct {
	LocationIDs []string `json:"location_ids" binding:"omitempty,dive,numeric" example:"65432198765"`
}

// RegisterWebhooksRequest optionally overrides the public callback URL
// @Description Request body for registering remote webhooks
type RegisterWebhooksRequest struct {
	CallbackBaseURL string `json:"callback_base_url" binding:"omitempty,url" example:"https://sync.example.com"`
}

// InstanceResponse is a sync instance without its secrets
// @Description Sync instance details returned by the API
type InstanceResponse struct {
	ID               string            `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Name             string            `json:"name" example:"Main store"`
	ShopURL          string            `json:"shop_url" example:"https://acme.myshopify.com"`
	APIVersion       string            `json:"api_version" example:"2024-01"`
	LocationIDs      []string          `json:"location_ids"`
	AutoSync         bool              `json:"auto_sync"`
	ExportEnabled    bool              `json:"export_enabled"`
	Status           string            `json:"status" example:"connected" enums:"unverified,connected,auth_rejected"`
	ShopName         string            `json:"shop_name,omitempty" example:"Acme"`
	Currency         string            `json:"currency,omitempty" example:"USD"`
	HasWebhookSecret bool              `json:"has_webhook_secret"`
	VerifiedAt       *time.Time        `json:"verified_at,omitempty"`
	LastSyncAt       map[string]string `json:"last_sync_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// WebhookSubscriptionResponse is one registered remote webhook
// @Description Remote webhook subscription
type WebhookSubscriptionResponse struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic" example:"orders/create"`
	RemoteID  string    `json:"remote_id" example:"4759306"`
	Address   string    `json:"address" example:"https://sync.example.com/api/v1/webhooks/shopify/550e8400-e29b-41d4-a716-446655440000"`
	CreatedAt time.Time `json:"created_at"`
}

func toInstanceResponse(inst *integration.SyncInstance) InstanceResponse {
	resp := InstanceResponse{
		ID:               inst.ID.String(),
		Name:             inst.Name,
		ShopURL:          inst.ShopURL,
		APIVersion:       inst.APIVersion,
		LocationIDs:      inst.LocationIDs,
		AutoSync:         inst.AutoSync,
		ExportEnabled:    inst.ExportEnabled,
		Status:           string(inst.Status),
		ShopName:         inst.ShopName,
		Currency:         inst.Currency,
		HasWebhookSecret: inst.WebhookSecret != "",
		VerifiedAt:       inst.VerifiedAt,
		CreatedAt:        inst.CreatedAt,
		UpdatedAt:        inst.UpdatedAt,
	}
	if resp.LocationIDs == nil {
		resp.LocationIDs = []string{}
	}
	if len(inst.LastSyncAt) > 0 {
		resp.LastSyncAt = make(map[string]string, len(inst.LastSyncAt))
		for entity, at := range inst.LastSyncAt {
			resp.LastSyncAt[entity.String()] = at.UTC().Format(time.RFC3339)
		}
	}
	return resp
}

func toInstanceResponses(instances []integration.SyncInstance) []InstanceResponse {
	out := make([]InstanceResponse, len(instances))
	for i := range instances {
		out[i] = toInstanceResponse(&instances[i])
	}
	return out
}

func toSubscriptionResponses(subs []integration.WebhookSubscription) []WebhookSubscriptionResponse {
	out := make([]WebhookSubscriptionResponse, len(subs))
	for i, sub := range subs {
		out[i] = WebhookSubscriptionResponse{
			ID:        sub.ID.String(),
			Topic:     sub.Topic.String(),
			RemoteID:  sub.RemoteID,
			Address:   sub.Address,
			CreatedAt: sub.CreatedAt,
		}
	}
	return out
}
