package handler

import (
	"net/http"
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

func setupInstanceRouter(svc *MockInstanceManager) *gin.Engine {
	h := NewInstanceHandler(svc, "https://sync.example.com")
	r := newTestEngine()
	r.POST("/instances", h.Create)
	r.GET("/instances", h.List)
	r.GET("/instances/:id", h.Get)
	r.PATCH("/instances/:id", h.Update)
	r.PUT("/instances/:id/credentials", h.RotateCredentials)
	r.PUT("/instances/:id/locations", h.SetLocations)
	r.POST("/instances/:id/test", h.TestConnection)
	r.POST("/instances/:id/locations/sync", h.SyncLocations)
	r.POST("/instances/:id/webhooks", h.RegisterWebhooks)
	r.GET("/instances/:id/webhooks", h.ListWebhooks)
	r.DELETE("/instances/:id/webhooks", h.UnregisterWebhooks)
	return r
}

func TestInstanceHandler_Create(t *testing.T) {
	svc := new(MockInstanceManager)
	inst := newTestInstance()
	svc.On("Create", mock.Anything, appintegration.CreateInstanceInput{
		Name:          "Main store",
		ShopURL:       "acme",
		AccessToken:   "shpat_token",
		WebhookSecret: "whsec",
		LocationIDs:   []string{"123"},
		AutoSync:      true,
	}).Return(inst, nil)

	w := performRequest(setupInstanceRouter(svc), http.MethodPost, "/instances", map[string]any{
		"name":           "Main store",
		"shop_url":       "acme",
		"access_token":   "shpat_token",
		"webhook_secret": "whsec",
		"location_ids":   []string{"123"},
		"auto_sync":      true,
	}, nil)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"shop_url":"https://acme.myshopify.com"`)
	assert.Contains(t, w.Body.String(), `"has_webhook_secret":true`)
	assert.NotContains(t, w.Body.String(), "shpat_token", "secrets never leave the service")
	assert.NotContains(t, w.Body.String(), "whsec\"")
	svc.AssertExpectations(t)
}

func TestInstanceHandler_Create_Invalid(t *testing.T) {
	svc := new(MockInstanceManager)
	r := setupInstanceRouter(svc)

	t.Run("missing required fields", func(t *testing.T) {
		w := performRequest(r, http.MethodPost, "/instances", map[string]any{"name": "x"}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeValidation, decodeResponse(t, w).Error.Code)
	})

	t.Run("non numeric location", func(t *testing.T) {
		w := performRequest(r, http.MethodPost, "/instances", map[string]any{
			"name": "x", "shop_url": "acme", "access_token": "t", "location_ids": []string{"main"},
		}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("duplicate shop", func(t *testing.T) {
		svc.On("Create", mock.Anything, mock.Anything).Return(nil, integration.ErrInstanceAlreadyExists).Once()
		w := performRequest(r, http.MethodPost, "/instances", map[string]any{
			"name": "x", "shop_url": "acme", "access_token": "t",
		}, nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	svc.AssertNumberOfCalls(t, "Create", 1)
}

func TestInstanceHandler_List(t *testing.T) {
	svc := new(MockInstanceManager)
	inst := newTestInstance()
	connected := integration.ConnectionConnected
	svc.On("List", mock.Anything, integration.InstanceFilter{Status: &connected, Page: 2, PageSize: 10}).
		Return([]integration.SyncInstance{*inst}, int64(11), nil)

	r := setupInstanceRouter(svc)
	w := performRequest(r, http.MethodGet, "/instances?status=connected&page=2&page_size=10", nil, nil)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(11), resp.Meta.Total)
	assert.Equal(t, 2, resp.Meta.TotalPages)

	w = performRequest(r, http.MethodGet, "/instances?status=bogus", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInstanceHandler_Get(t *testing.T) {
	svc := new(MockInstanceManager)
	r := setupInstanceRouter(svc)

	t.Run("invalid id", func(t *testing.T) {
		w := performRequest(r, http.MethodGet, "/instances/not-a-uuid", nil, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("not found", func(t *testing.T) {
		id := uuid.New()
		svc.On("Get", mock.Anything, id).Return(nil, integration.ErrInstanceNotFound)
		w := performRequest(r, http.MethodGet, "/instances/"+id.String(), nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "test-request", decodeResponse(t, w).Error.RequestID)
	})
}

func TestInstanceHandler_Update(t *testing.T) {
	svc := new(MockInstanceManager)
	inst := newTestInstance()
	name := "Outlet"
	auto := false
	svc.On("Update", mock.Anything, inst.ID, appintegration.UpdateInstanceInput{Name: &name, AutoSync: &auto}).Return(inst, nil)

	w := performRequest(setupInstanceRouter(svc), http.MethodPatch, "/instances/"+inst.ID.String(),
		map[string]any{"name": "Outlet", "auto_sync": false}, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestInstanceHandler_RotateCredentials(t *testing.T) {
	svc := new(MockInstanceManager)
	inst := newTestInstance()
	svc.On("RotateCredentials", mock.Anything, inst.ID, "shpat_new", "whsec_new").Return(inst, nil)
	r := setupInstanceRouter(svc)

	w := performRequest(r, http.MethodPut, "/instances/"+inst.ID.String()+"/credentials",
		map[string]any{"access_token": "shpat_new", "webhook_secret": "whsec_new"}, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = performRequest(r, http.MethodPut, "/instances/"+inst.ID.String()+"/credentials",
		map[string]any{"webhook_secret": "only"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNumberOfCalls(t, "RotateCredentials", 1)
}

func TestInstanceHandler_SetLocations(t *testing.T) {
	svc := new(MockInstanceManager)
	inst := newTestInstance()
	inst.LocationIDs = []string{"11", "22"}
	svc.On("SetLocations", mock.Anything, inst.ID, []string{"11", "22"}).Return(inst, nil)

	w := performRequest(setupInstanceRouter(svc), http.MethodPut, "/instances/"+inst.ID.String()+"/locations",
		map[string]any{"location_ids": []string{"11", "22"}}, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"location_ids":["11","22"]`)
}

func TestInstanceHandler_TestConnection(t *testing.T) {
	svc := new(MockInstanceManager)
	ok := newTestInstance()
	rejected := newTestInstance()
	down := newTestInstance()
	svc.On("TestConnection", mock.Anything, ok.ID).Return(ok, nil)
	svc.On("TestConnection", mock.Anything, rejected.ID).Return(nil, integration.ErrAuthRejected)
	svc.On("TestConnection", mock.Anything, down.ID).Return(nil, integration.ErrRemoteUnavailable)
	r := setupInstanceRouter(svc)

	assert.Equal(t, http.StatusOK, performRequest(r, http.MethodPost, "/instances/"+ok.ID.String()+"/test", nil, nil).Code)

	w := performRequest(r, http.MethodPost, "/instances/"+rejected.ID.String()+"/test", nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, dto.ErrCodeAuthRejected, decodeResponse(t, w).Error.Code)

	w = performRequest(r, http.MethodPost, "/instances/"+down.ID.String()+"/test", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestInstanceHandler_SyncLocations(t *testing.T) {
	svc := new(MockInstanceManager)
	inst := newTestInstance()
	svc.On("SyncLocations", mock.Anything, inst.ID).Return(inst, nil)

	w := performRequest(setupInstanceRouter(svc), http.MethodPost, "/instances/"+inst.ID.String()+"/locations/sync", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestInstanceHandler_Webhooks(t *testing.T) {
	svc := new(MockInstanceManager)
	inst := newTestInstance()
	sub := integration.NewWebhookSubscription(inst.ID, integration.TopicOrdersCreate, "4759306",
		appintegration.WebhookAddress("https://sync.example.com", inst.ID))
	r := setupInstanceRouter(svc)

	t.Run("register with configured base URL", func(t *testing.T) {
		svc.On("RegisterWebhooks", mock.Anything, inst.ID, "https://sync.example.com").
			Return([]integration.WebhookSubscription{*sub}, nil).Once()
		w := performRequest(r, http.MethodPost, "/instances/"+inst.ID.String()+"/webhooks", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"topic":"orders/create"`)
		assert.Contains(t, w.Body.String(), "/api/v1/webhooks/shopify/"+inst.ID.String())
	})

	t.Run("register with override", func(t *testing.T) {
		svc.On("RegisterWebhooks", mock.Anything, inst.ID, "https://tunnel.example.net").
			Return([]integration.WebhookSubscription{}, nil).Once()
		w := performRequest(r, http.MethodPost, "/instances/"+inst.ID.String()+"/webhooks",
			map[string]any{"callback_base_url": "https://tunnel.example.net"}, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("list", func(t *testing.T) {
		svc.On("Subscriptions", mock.Anything, inst.ID).Return([]integration.WebhookSubscription{*sub}, nil).Once()
		w := performRequest(r, http.MethodGet, "/instances/"+inst.ID.String()+"/webhooks", nil, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"remote_id":"4759306"`)
	})

	t.Run("unregister", func(t *testing.T) {
		svc.On("UnregisterWebhooks", mock.Anything, inst.ID).Return(nil).Once()
		w := performRequest(r, http.MethodDelete, "/instances/"+inst.ID.String()+"/webhooks", nil, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	svc.AssertExpectations(t)
}
