package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appintegration "github.com/erp/shopsync/internal/application/integration"
	"github.com/erp/shopsync/internal/domain/integration"
)

// InstanceManager is the part of the instance service the API exposes
type InstanceManager interface {
	Create(ctx context.Context, in appintegration.CreateInstanceInput) (*integration.SyncInstance, error)
	Get(ctx context.Context, id uuid.UUID) (*integration.SyncInstance, error)
	List(ctx context.Context, filter integration.InstanceFilter) ([]integration.SyncInstance, int64, error)
	Update(ctx context.Context, id uuid.UUID, in appintegration.UpdateInstanceInput) (*integration.SyncInstance, error)
	RotateCredentials(ctx context.Context, id uuid.UUID, accessToken, webhookSecret string) (*integration.SyncInstance, error)
	SetLocations(ctx context.Context, id uuid.UUID, locationIDs []string) (*integration.SyncInstance, error)
	TestConnection(ctx context.Context, id uuid.UUID) (*integration.SyncInstance, error)
	SyncLocations(ctx context.Context, id uuid.UUID) (*integration.SyncInstance, error)
	RegisterWebhooks(ctx context.Context, id uuid.UUID, baseURL string) ([]integration.WebhookSubscription, error)
	UnregisterWebhooks(ctx context.Context, id uuid.UUID) error
	Subscriptions(ctx context.Context, id uuid.UUID) ([]integration.WebhookSubscription, error)
}

// InstanceHandler handles sync instance endpoints
type InstanceHandler struct {
	BaseHandler
	instances       InstanceManager
	callbackBaseURL string
}

// NewInstanceHandler creates a new InstanceHandler. callbackBaseURL is the
// public URL remote webhooks are registered against.
func NewInstanceHandler(instances InstanceManager, callbackBaseURL string) *InstanceHandler {
	return &InstanceHandler{
		instances:       instances,
		callbackBaseURL: callbackBaseURL,
	}
}

// Create godoc
// @ID           createInstance
// @Summary      Connect a store
// @Description  Register a new sync instance. It stays unverified until a connection test succeeds.
// @Tags         instances
// @Accept       json
// @Produce      json
// @Param        request body CreateInstanceRequest true "Instance creation request"
// @Success      201 {object} APIResponse[InstanceResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /instances [post]
func (h *InstanceHandler) Create(c *gin.Context) {
	var req CreateInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	inst, err := h.instances.Create(c.Request.Context(), appintegration.CreateInstanceInput{
		Name:          req.Name,
		ShopURL:       req.ShopURL,
		AccessToken:   req.AccessToken,
		WebhookSecret: req.WebhookSecret,
		APIVersion:    req.APIVersion,
		LocationIDs:   req.LocationIDs,
		AutoSync:      req.AutoSync,
		ExportEnabled: req.ExportEnabled,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toInstanceResponse(inst))
}

// List godoc
// @ID           listInstances
// @Summary      List instances
// @Tags         instances
// @Produce      json
// @Param        status    query string false "Connection status" Enums(unverified, connected, auth_rejected)
// @Param        auto_sync query bool   false "Only instances with scheduled sync on or off"
// @Param        page      query int    false "Page number" default(1)
// @Param        page_size query int    false "Page size" default(20)
// @Success      200 {object} APIResponse[[]InstanceResponse]
// @Security     BearerAuth
// @Router       /instances [get]
func (h *InstanceHandler) List(c *gin.Context) {
	filter := integration.InstanceFilter{}
	filter.Page, filter.PageSize = pageFromQuery(c)
	if s := c.Query("status"); s != "" {
		status := integration.ConnectionStatus(s)
		switch status {
		case integration.ConnectionUnverified, integration.ConnectionConnected, integration.ConnectionAuthRejected:
		default:
			h.BadRequest(c, "Invalid status filter")
			return
		}
		filter.Status = &status
	}
	if s := c.Query("auto_sync"); s != "" {
		auto := strings.EqualFold(s, "true") || s == "1"
		filter.AutoSync = &auto
	}

	instances, total, err := h.instances.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, toInstanceResponses(instances), total, filter.Page, filter.PageSize)
}

// Get godoc
// @ID           getInstance
// @Summary      Get an instance
// @Tags         instances
// @Produce      json
// @Param        id path string true "Instance ID" format(uuid)
// @Success      200 {object} APIResponse[InstanceResponse]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /instances/{id} [get]
func (h *InstanceHandler) Get(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	inst, err := h.instances.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toInstanceResponse(inst))
}

// Update godoc
// @ID           updateInstance
// @Summary      Update instance settings
// @Tags         instances
// @Accept       json
// @Produce      json
// @Param        id      path string                true "Instance ID" format(uuid)
// @Param        request body UpdateInstanceRequest true "Settings to change"
// @Success      200 {object} APIResponse[InstanceResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /instances/{id} [patch]
func (h *InstanceHandler) Update(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req UpdateInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	inst, err := h.instances.Update(c.Request.Context(), id, appintegration.UpdateInstanceInput{
		Name:          req.Name,
		AutoSync:      req.AutoSync,
		ExportEnabled: req.ExportEnabled,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toInstanceResponse(inst))
}

// RotateCredentials godoc
// @ID           rotateInstanceCredentials
// @Summary      Rotate credentials
// @Description  Replace the access token and webhook secret. The instance returns to unverified.
// @Tags         instances
// @Accept       json
// @Produce      json
// @Param        id      path string                   true "Instance ID" format(uuid)
// @Param        request body RotateCredentialsRequest true "New credentials"
// @Success      200 {object} APIResponse[InstanceResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /instances/{id}/credentials [put]
func (h *InstanceHandler) RotateCredentials(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req RotateCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	inst, err := h.instances.RotateCredentials(c.Request.Context(), id, req.AccessToken, req.WebhookSecret)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toInstanceResponse(inst))
}

// SetLocations godoc
// @ID           setInstanceLocations
// @Summary      Select inventory locations
// @Tags         instances
// @Accept       json
// @Produce      json
// @Param        id      path string              true "Instance ID" format(uuid)
// @Param        request body SetLocationsRequest true "Enabled location IDs"
// @Success      200 {object} APIResponse[InstanceResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /instances/{id}/locations [put]
func (h *InstanceHandler) SetLocations(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req SetLocationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	inst, err := h.instances.SetLocations(c.Request.Context(), id, req.LocationIDs)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toInstanceResponse(inst))
}

// TestConnection godoc
// @ID           testInstanceConnection
// @Summary      Probe the remote store
// @Description  Calls the shop endpoint with the stored token and records the outcome
// @Tags         instances
// @Produce      json
// @Param        id path string true "Instance ID" format(uuid)
// @Success      200 {object} APIResponse[InstanceResponse]
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /instances/{id}/test [post]
func (h *InstanceHandler) TestConnection(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	inst, err := h.instances.TestConnection(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toInstanceResponse(inst))
}

// SyncLocations godoc
// @ID           syncInstanceLocations
// @Summary      Refresh locations from the remote store
// @Tags         instances
// @Produce      json
// @Param        id path string true "Instance ID" format(uuid)
// @Success      200 {object} APIResponse[InstanceResponse]
// @Failure      404 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /instances/{id}/locations/sync [post]
func (h *InstanceHandler) SyncLocations(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	inst, err := h.instances.SyncLocations(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toInstanceResponse(inst))
}

// RegisterWebhooks godoc
// @ID           registerInstanceWebhooks
// @Summary      Register remote webhooks
// @Description  Subscribes the store to every handled topic not registered yet
// @Tags         instances
// @Accept       json
// @Produce      json
// @Param        id      path string                  true  "Instance ID" format(uuid)
// @Param        request body RegisterWebhooksRequest false "Callback override"
// @Success      200 {object} APIResponse[[]WebhookSubscriptionResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /instances/{id}/webhooks [post]
func (h *InstanceHandler) RegisterWebhooks(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req RegisterWebhooksRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BindError(c, err)
			return
		}
	}
	baseURL := req.CallbackBaseURL
	if baseURL == "" {
		baseURL = h.callbackBaseURL
	}

	subs, err := h.instances.RegisterWebhooks(c.Request.Context(), id, baseURL)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toSubscriptionResponses(subs))
}

// ListWebhooks godoc
// @ID           listInstanceWebhooks
// @Summary      List registered webhooks
// @Tags         instances
// @Produce      json
// @Param        id path string true "Instance ID" format(uuid)
// @Success      200 {object} APIResponse[[]WebhookSubscriptionResponse]
// @Security     BearerAuth
// @Router       /instances/{id}/webhooks [get]
func (h *InstanceHandler) ListWebhooks(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	subs, err := h.instances.Subscriptions(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toSubscriptionResponses(subs))
}

// UnregisterWebhooks godoc
// @ID           unregisterInstanceWebhooks
// @Summary      Remove remote webhooks
// @Tags         instances
// @Param        id path string true "Instance ID" format(uuid)
// @Success      204
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /instances/{id}/webhooks [delete]
func (h *InstanceHandler) UnregisterWebhooks(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.instances.UnregisterWebhooks(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
