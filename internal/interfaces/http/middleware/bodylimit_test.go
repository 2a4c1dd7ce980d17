package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/shopsync/internal/interfaces/http/dto"
)

func newBodyLimitRouter(limit int64) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), BodyLimit(limit))
	r.POST("/api/v1/webhooks/shopify/:instance_id", func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.String(http.StatusRequestEntityTooLarge, "read past %d bytes", tooLarge.Limit)
			return
		}
		c.String(http.StatusOK, "%d", len(body))
	})
	r.GET("/api/v1/jobs", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestBodyLimit(t *testing.T) {
	const path = "/api/v1/webhooks/shopify/1f0e4c52-6f0b-4f5e-9f55-0c2c6a8d8b11"

	t.Run("payload within limit", func(t *testing.T) {
		w := httptest.NewRecorder()
		newBodyLimitRouter(64).ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"id":1}`)))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "8", w.Body.String())
	})

	t.Run("announced length over limit is rejected before the handler", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(strings.Repeat("x", 200)))
		w := httptest.NewRecorder()
		newBodyLimitRouter(100).ServeHTTP(w, req)

		require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Contains(t, w.Body.String(), dto.ErrCodeRequestTooLarge)
		assert.Contains(t, w.Body.String(), w.Header().Get(RequestIDHeader))
	})

	t.Run("streamed body fails when read past the limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(strings.Repeat("x", 100)))
		req.ContentLength = -1
		w := httptest.NewRecorder()
		newBodyLimitRouter(50).ServeHTTP(w, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Equal(t, "read past 50 bytes", w.Body.String())
	})

	t.Run("requests without a body pass", func(t *testing.T) {
		w := httptest.NewRecorder()
		newBodyLimitRouter(1).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
