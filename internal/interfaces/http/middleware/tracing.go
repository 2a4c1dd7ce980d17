// Package middleware provides HTTP middleware for the sync API.
package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MaxRequestIDLength is the maximum length for request IDs to prevent DoS via large headers.
const MaxRequestIDLength = 128

// TracingConfig configures TracingWithConfig
type TracingConfig struct {
	ServiceName string
	Enabled     bool
	// SkipPaths are served without a span, typically probes and scrapes
	SkipPaths []string
}

// DefaultTracingConfig traces everything for the shopsync service
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{ServiceName: "shopsync", Enabled: true}
}

// Tracing returns the tracing middleware with the default configuration
func Tracing() gin.HandlerFunc {
	return TracingWithConfig(DefaultTracingConfig())
}

// TracingWithConfig starts a server span per request, named after the
// route pattern (e.g. "POST /api/v1/webhooks/shopify/:instance_id").
// Request, instance, topic and operator attributes are added later by
// TracingAttributeInjector, once authentication has run.
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}
	return otelgin.Middleware(cfg.ServiceName, otelgin.WithFilter(func(r *http.Request) bool {
		_, skipped := skip[r.URL.Path]
		return !skipped
	}))
}

// enrichSpanWithAttributes adds custom attributes to the span from the request context.
func enrichSpanWithAttributes(c *gin.Context, span trace.Span) {
	if requestID := getRequestID(c); requestID != "" {
		span.SetAttributes(attribute.String("request_id", requestID))
	}
	if instanceID := getInstanceID(c); instanceID != "" {
		span.SetAttributes(attribute.String("instance_id", instanceID))
	}
	if topic := c.GetHeader("X-Shopify-Topic"); topic != "" {
		span.SetAttributes(
			attribute.String("webhook.topic", topic),
			attribute.String("webhook.shop_domain", c.GetHeader("X-Shopify-Shop-Domain")),
		)
	}
	if operator := GetJWTOperator(c); operator != "" {
		span.SetAttributes(attribute.String("operator", operator))
	}
}

// getRequestID retrieves the request ID from the gin context or header.
// Header values are truncated to prevent abuse.
func getRequestID(c *gin.Context) string {
	if requestID, exists := c.Get("request_id"); exists {
		if id, ok := requestID.(string); ok && id != "" {
			return id
		}
	}

	headerID := c.GetHeader("X-Request-ID")
	if len(headerID) > MaxRequestIDLength {
		return headerID[:MaxRequestIDLength]
	}
	return headerID
}

// getInstanceID returns the instance id route parameter when it is a UUID
func getInstanceID(c *gin.Context) string {
	id := c.Param("instance_id")
	if id == "" && strings.Contains(c.FullPath(), "/instances/") {
		id = c.Param("id")
	}
	if _, err := uuid.Parse(id); err != nil {
		return ""
	}
	return id
}

// SpanErrorMarker records the response status on the server span. Server
// failures and rejected credentials mark the span as failed; other client
// errors are expected traffic (unknown ids, validation) and only tagged.
// Place it after TracingWithConfig.
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		status := c.Writer.Status()
		if !span.IsRecording() || status < http.StatusBadRequest {
			return
		}
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= http.StatusInternalServerError || status == http.StatusUnauthorized {
			span.SetStatus(codes.Error, http.StatusText(status))
			return
		}
		span.SetAttributes(attribute.String("error.type", strconv.Itoa(status)))
	}
}

// TracingAttributeInjector returns a middleware that injects custom attributes
// into the current span after authentication middleware has run.
// This should be placed AFTER both Tracing and JWT middleware in the chain.
func TracingAttributeInjector() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			enrichSpanWithAttributes(c, span)
		}
		c.Next()
	}
}
