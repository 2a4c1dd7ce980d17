package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(3, time.Minute)
	limiter.now = func() time.Time { return now }

	t.Run("allows a burst up to the limit", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			assert.True(t, limiter.Allow("10.0.0.1"), "request %d", i+1)
		}
		assert.False(t, limiter.Allow("10.0.0.1"))
		assert.Equal(t, 0, limiter.Remaining("10.0.0.1"))
	})

	t.Run("keys are independent", func(t *testing.T) {
		assert.True(t, limiter.Allow("10.0.0.2"))
		assert.Equal(t, 2, limiter.Remaining("10.0.0.2"))
		assert.Equal(t, 3, limiter.Remaining("10.0.0.3"))
	})

	t.Run("tokens refill over the window", func(t *testing.T) {
		now = now.Add(21 * time.Second)
		assert.True(t, limiter.Allow("10.0.0.1"))
		assert.False(t, limiter.Allow("10.0.0.1"))
	})

	t.Run("idle clients are forgotten", func(t *testing.T) {
		now = now.Add(3 * time.Minute)
		limiter.Allow("10.0.0.9")
		limiter.mu.Lock()
		defer limiter.mu.Unlock()
		assert.NotContains(t, limiter.clients, "10.0.0.2")
		assert.Contains(t, limiter.clients, "10.0.0.9")
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewRateLimiter(2, time.Minute)

	router := gin.New()
	router.Use(RateLimit(limiter))
	router.GET("/api/v1/jobs", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
		req.RemoteAddr = "192.0.2.10:1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
		if w.Code == http.StatusOK {
			assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		} else {
			assert.Contains(t, w.Body.String(), "ERR_RATE_LIMITED")
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
