package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/shopsync/internal/interfaces/http/dto"
)

type createInstanceInput struct {
	Name        string   `json:"name" binding:"required,max=100"`
	ShopURL     string   `json:"shop_url" binding:"required,shopdomain"`
	APIVersion  string   `json:"api_version" binding:"omitempty,apiversion"`
	LocationIDs []string `json:"location_ids" binding:"omitempty,dive,numeric"`
}

func TestFormatValidationErrors(t *testing.T) {
	SetupValidator()

	router := gin.New()
	router.Use(RequestID())
	router.POST("/api/v1/instances", func(c *gin.Context) {
		var req createInstanceInput
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	t.Run("lists every rejected field by its JSON name", func(t *testing.T) {
		body := strings.NewReader(`{"name": "", "location_ids": ["main"]}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/instances", body)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusBadRequest, w.Code)
		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		assert.NotEmpty(t, resp.Error.RequestID)

		fields := map[string]string{}
		for _, d := range resp.Error.Details {
			fields[d.Field] = d.Message
		}
		assert.Equal(t, "This field is required", fields["name"])
		assert.Equal(t, "This field is required", fields["shop_url"])
		assert.Equal(t, "Must be numeric", fields["location_ids[0]"])
	})

	t.Run("rejects malformed shop and api version", func(t *testing.T) {
		body := strings.NewReader(`{"name": "Outlet", "shop_url": "https://", "api_version": "2024-1"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/instances", body)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusBadRequest, w.Code)
		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		fields := map[string]string{}
		for _, d := range resp.Error.Details {
			fields[d.Field] = d.Message
		}
		assert.Contains(t, fields["shop_url"], "myshopify.com")
		assert.Equal(t, "Must be an API version such as 2024-01", fields["api_version"])
	})

	t.Run("accepts valid input", func(t *testing.T) {
		body := strings.NewReader(`{"name": "Outlet", "shop_url": "outlet", "location_ids": ["55"]}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/instances", body)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("malformed JSON has no details", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/instances", strings.NewReader(`{`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NotContains(t, w.Body.String(), `"details"`)
	})
}

func TestGetValidationMessage(t *testing.T) {
	type input struct {
		Required string `validate:"required"`
		Min      string `validate:"min=5"`
		Max      int    `validate:"max=10"`
		UUID     string `validate:"uuid"`
		OneOf    string `validate:"oneof=import export"`
		URL      string `validate:"url"`
		Numeric  string `validate:"numeric"`
	}

	err := validator.New().Struct(input{Min: "ab", Max: 11, UUID: "x", OneOf: "both", URL: "nope", Numeric: "abc"})
	require.Error(t, err)

	messages := map[string]string{}
	for _, e := range err.(validator.ValidationErrors) {
		messages[e.Field()] = getValidationMessage(e)
	}
	assert.Equal(t, "This field is required", messages["Required"])
	assert.Equal(t, "Must be at least 5 characters", messages["Min"])
	assert.Equal(t, "Must be at most 10", messages["Max"])
	assert.Equal(t, "Invalid UUID format", messages["UUID"])
	assert.Equal(t, "Must be one of: import export", messages["OneOf"])
	assert.Equal(t, "Invalid URL format", messages["URL"])
	assert.Equal(t, "Must be numeric", messages["Numeric"])
}
