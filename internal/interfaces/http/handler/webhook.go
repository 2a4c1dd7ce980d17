package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appintegration "github.com/erp/shopsync/internal/application/integration"
	"github.com/erp/shopsync/internal/domain/integration"
	"github.com/erp/shopsync/internal/interfaces/http/dto"
)

// Shopify webhook headers
const (
	HeaderShopifyHmac       = "X-Shopify-Hmac-Sha256"
	HeaderShopifyTopic      = "X-Shopify-Topic"
	HeaderShopifyWebhookID  = "X-Shopify-Webhook-Id"
	HeaderShopifyEventID    = "X-Shopify-Event-Id"
	HeaderShopifyShopDomain = "X-Shopify-Shop-Domain"
)

// DefaultWebhookBodyLimit caps a delivery body
const DefaultWebhookBodyLimit int64 = 1 << 20

// WebhookReceiver ingests deliveries and exposes the recorded events
type WebhookReceiver interface {
	Receive(ctx context.Context, in appintegration.ReceiveWebhookInput) (*integration.WebhookEvent, error)
	GetEvent(ctx context.Context, id uuid.UUID) (*integration.WebhookEvent, error)
	ListEvents(ctx context.Context, filter integration.WebhookEventFilter) ([]integration.WebhookEvent, int64, error)
}

// WebhookHandler handles inbound platform webhooks
type WebhookHandler struct {
	BaseHandler
	receiver WebhookReceiver
	maxBody  int64
}

// NewWebhookHandler creates a new WebhookHandler. maxBody <= 0 uses
// DefaultWebhookBodyLimit.
func NewWebhookHandler(receiver WebhookReceiver, maxBody int64) *WebhookHandler {
	if maxBody <= 0 {
		maxBody = DefaultWebhookBodyLimit
	}
	return &WebhookHandler{
		receiver: receiver,
		maxBody:  maxBody,
	}
}

// Receive godoc
// @ID           receiveShopifyWebhook
// @Summary      Receive a Shopify webhook
// @Description  Authenticated by the HMAC signature header, not by bearer token. Duplicates are acknowledged with 200.
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        instance_id           path   string true "Instance ID" format(uuid)
// @Param        X-Shopify-Hmac-Sha256 header string true "Base64 HMAC-SHA256 of the body"
// @Param        X-Shopify-Topic       header string true "Webhook topic"
// @Param        X-Shopify-Webhook-Id  header string true "Delivery id used for deduplication"
// @Success      200 {object} APIResponse[WebhookAckResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      413 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Router       /webhooks/shopify/{instance_id} [post]
func (h *WebhookHandler) Receive(c *gin.Context) {
	instanceID, ok := h.parseUUIDParam(c, "instance_id")
	if !ok {
		return
	}

	signature := c.GetHeader(HeaderShopifyHmac)
	if signature == "" {
		h.Error(c, http.StatusUnauthorized, dto.ErrCodeWebhookSigned, "Missing "+HeaderShopifyHmac+" header")
		return
	}

	if c.Request.ContentLength > h.maxBody {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge, "Webhook body exceeds maximum allowed size")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge, "Webhook body exceeds maximum allowed size")
			return
		}
		h.BadRequest(c, "Failed to read webhook body")
		return
	}

	remoteID := c.GetHeader(HeaderShopifyWebhookID)
	if remoteID == "" {
		remoteID = c.GetHeader(HeaderShopifyEventID)
	}

	event, err := h.receiver.Receive(c.Request.Context(), appintegration.ReceiveWebhookInput{
		InstanceID:    instanceID,
		RemoteEventID: remoteID,
		Topic:         c.GetHeader(HeaderShopifyTopic),
		ShopDomain:    c.GetHeader(HeaderShopifyShopDomain),
		Signature:     signature,
		Body:          body,
	})
	switch {
	case err == nil:
	case errors.Is(err, integration.ErrWebhookAuthenticity):
		h.Error(c, http.StatusUnauthorized, dto.ErrCodeWebhookSigned, "Webhook signature verification failed")
		return
	case errors.Is(err, integration.ErrInstanceNotFound):
		h.NotFound(c, "Unknown instance")
		return
	case errors.Is(err, integration.ErrValidation), errors.Is(err, integration.ErrUnknownWebhookTopic):
		h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation, err.Error())
		return
	default:
		// a non-2xx answer makes the platform redeliver
		_ = c.Error(err)
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeServiceUnavailable, "Webhook could not be queued")
		return
	}

	h.Success(c, WebhookAckResponse{
		EventID: event.ID.String(),
		Status:  string(event.Status),
	})
}

// ListEvents godoc
// @ID           listWebhookEvents
// @Summary      List received webhook events
// @Tags         webhooks
// @Produce      json
// @Param        instance_id query string false "Instance ID" format(uuid)
// @Param        topic       query string false "Topic"
// @Param        status      query string false "Event status"
// @Param        page        query int    false "Page number" default(1)
// @Param        page_size   query int    false "Page size" default(20)
// @Success      200 {object} APIResponse[[]WebhookEventResponse]
// @Security     BearerAuth
// @Router       /webhook-events [get]
func (h *WebhookHandler) ListEvents(c *gin.Context) {
	var filter integration.WebhookEventFilter
	instanceID, ok := optionalUUID(c, "instance_id")
	if !ok {
		h.BadRequest(c, "Invalid instance_id format")
		return
	}
	filter.InstanceID = instanceID
	if raw := c.Query("topic"); raw != "" {
		topic := integration.WebhookTopic(raw)
		filter.Topic = &topic
	}
	if raw := c.Query("status"); raw != "" {
		status := integration.WebhookStatus(raw)
		filter.Status = &status
	}
	filter.Page, filter.PageSize = pageFromQuery(c)

	events, total, err := h.receiver.ListEvents(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, toWebhookEventResponses(events), total, filter.Page, filter.PageSize)
}

// GetEvent godoc
// @ID           getWebhookEvent
// @Summary      Get a webhook event
// @Tags         webhooks
// @Produce      json
// @Param        id path string true "Event ID" format(uuid)
// @Success      200 {object} APIResponse[WebhookEventResponse]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /webhook-events/{id} [get]
func (h *WebhookHandler) GetEvent(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	event, err := h.receiver.GetEvent(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toWebhookEventResponse(event))
}
