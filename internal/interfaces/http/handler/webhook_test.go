package handler

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	appintegration "github.com/erp/shopsync/internal/application/integration"
	"github.com/erp/shopsync/internal/domain/integration"
	"github.com/erp/shopsync/internal/interfaces/http/dto"
)

func setupWebhookRouter(recv *MockWebhookReceiver, maxBody int64) *gin.Engine {
	h := NewWebhookHandler(recv, maxBody)
	r := newTestEngine()
	r.POST("/webhooks/shopify/:instance_id", h.Receive)
	r.GET("/webhook-events", h.ListEvents)
	r.GET("/webhook-events/:id", h.GetEvent)
	return r
}

func webhookHeaders(webhookID string) map[string]string {
	return map[string]string{
		HeaderShopifyHmac:       "c2lnbmF0dXJl",
		HeaderShopifyTopic:      string(integration.TopicOrdersCreate),
		HeaderShopifyWebhookID:  webhookID,
		HeaderShopifyShopDomain: "acme.myshopify.com",
	}
}

func TestWebhookHandler_Receive(t *testing.T) {
	recv := new(MockWebhookReceiver)
	instanceID := uuid.New()
	body := []byte(`{"id":820982911946154508}`)
	event := integration.NewWebhookEvent(instanceID, "b54557e4", integration.TopicOrdersCreate, "acme.myshopify.com", body)
	event.Status = integration.WebhookEnqueued

	recv.On("Receive", mock.Anything, appintegration.ReceiveWebhookInput{
		InstanceID:    instanceID,
		RemoteEventID: "b54557e4",
		Topic:         "orders/create",
		ShopDomain:    "acme.myshopify.com",
		Signature:     "c2lnbmF0dXJl",
		Body:          body,
	}).Return(event, nil)

	w := performRequest(setupWebhookRouter(recv, 0), http.MethodPost, "/webhooks/shopify/"+instanceID.String(), body, webhookHeaders("b54557e4"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"event_id":"`+event.ID.String()+`"`)
	assert.Contains(t, w.Body.String(), `"status":"enqueued"`)
	recv.AssertExpectations(t)
}

func TestWebhookHandler_Receive_EventIDFallback(t *testing.T) {
	recv := new(MockWebhookReceiver)
	instanceID := uuid.New()
	event := integration.NewWebhookEvent(instanceID, "evt-7", integration.TopicOrdersCreate, "", []byte(`{}`))
	recv.On("Receive", mock.Anything, mock.MatchedBy(func(in appintegration.ReceiveWebhookInput) bool {
		return in.RemoteEventID == "evt-7"
	})).Return(event, nil)

	headers := webhookHeaders("")
	headers[HeaderShopifyEventID] = "evt-7"
	w := performRequest(setupWebhookRouter(recv, 0), http.MethodPost, "/webhooks/shopify/"+instanceID.String(), []byte(`{}`), headers)

	assert.Equal(t, http.StatusOK, w.Code)
	recv.AssertExpectations(t)
}

func TestWebhookHandler_Receive_Rejections(t *testing.T) {
	instanceID := uuid.New()
	path := "/webhooks/shopify/" + instanceID.String()

	t.Run("missing signature", func(t *testing.T) {
		recv := new(MockWebhookReceiver)
		headers := webhookHeaders("d1")
		delete(headers, HeaderShopifyHmac)
		w := performRequest(setupWebhookRouter(recv, 0), http.MethodPost, path, []byte(`{}`), headers)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, dto.ErrCodeWebhookSigned, decodeResponse(t, w).Error.Code)
		recv.AssertNotCalled(t, "Receive", mock.Anything, mock.Anything)
	})

	t.Run("body too large", func(t *testing.T) {
		recv := new(MockWebhookReceiver)
		body := []byte(`{"note":"` + strings.Repeat("x", 64) + `"}`)
		w := performRequest(setupWebhookRouter(recv, 16), http.MethodPost, path, body, webhookHeaders("d2"))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		recv.AssertNotCalled(t, "Receive", mock.Anything, mock.Anything)
	})

	t.Run("invalid instance id", func(t *testing.T) {
		w := performRequest(setupWebhookRouter(new(MockWebhookReceiver), 0), http.MethodPost, "/webhooks/shopify/shop", []byte(`{}`), webhookHeaders("d3"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"bad signature", integration.ErrWebhookAuthenticity, http.StatusUnauthorized, dto.ErrCodeWebhookSigned},
		{"unknown instance", integration.ErrInstanceNotFound, http.StatusNotFound, dto.ErrCodeNotFound},
		{"unknown topic", integration.ErrUnknownWebhookTopic, http.StatusBadRequest, dto.ErrCodeValidation},
		{"missing delivery id", fmt.Errorf("%w: webhook id is required", integration.ErrValidation), http.StatusBadRequest, dto.ErrCodeValidation},
		{"dispatch failure", fmt.Errorf("dispatch: %w", integration.ErrRemoteUnavailable), http.StatusServiceUnavailable, dto.ErrCodeServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recv := new(MockWebhookReceiver)
			recv.On("Receive", mock.Anything, mock.Anything).Return(nil, tt.err)
			w := performRequest(setupWebhookRouter(recv, 0), http.MethodPost, path, []byte(`{}`), webhookHeaders("d4"))
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeResponse(t, w).Error.Code)
		})
	}
}

func TestWebhookHandler_Events(t *testing.T) {
	recv := new(MockWebhookReceiver)
	instanceID := uuid.New()
	event := integration.NewWebhookEvent(instanceID, "b54557e4", integration.TopicProductsUpdate, "acme.myshopify.com", []byte(`{}`))
	topic := integration.TopicProductsUpdate
	recv.On("ListEvents", mock.Anything, integration.WebhookEventFilter{
		InstanceID: &instanceID,
		Topic:      &topic,
		Page:       1,
		PageSize:   20,
	}).Return([]integration.WebhookEvent{*event}, int64(1), nil)
	recv.On("GetEvent", mock.Anything, event.ID).Return(event, nil)
	missing := uuid.New()
	recv.On("GetEvent", mock.Anything, missing).Return(nil, integration.ErrWebhookEventNotFound)
	r := setupWebhookRouter(recv, 0)

	w := performRequest(r, http.MethodGet, "/webhook-events?instance_id="+instanceID.String()+"&topic=products/update", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"remote_event_id":"b54557e4"`)

	assert.Equal(t, http.StatusOK, performRequest(r, http.MethodGet, "/webhook-events/"+event.ID.String(), nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, performRequest(r, http.MethodGet, "/webhook-events/"+missing.String(), nil, nil).Code)
	assert.Equal(t, http.StatusBadRequest, performRequest(r, http.MethodGet, "/webhook-events?instance_id=1", nil, nil).Code)
}
