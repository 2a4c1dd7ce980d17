package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries the correlation id in and out
	RequestIDHeader = "X-Request-ID"
	// RequestIDKey is the gin context key the id is stored under
	RequestIDKey = "request_id"

	webhookIDHeader = "X-Shopify-Webhook-Id"
)

// RequestID assigns every request a correlation id. A caller supplied
// X-Request-ID wins; webhook deliveries reuse the platform's delivery id so
// redeliveries of one event share it in the logs.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = c.GetHeader(webhookIDHeader)
		}
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(RequestIDKey, requestID)
		c.Writer.Header().Set(RequestIDHeader, requestID)
		c.Next()
	}
}
