package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
)

const testInstanceID = "0b8e5f5e-3c1d-4c55-9a43-0d8b1f1b2a10"

// setupTestTracer installs a recording tracer provider for the test
func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	t.Cleanup(func() { _ = tp.Shutdown(t.Context()) })
	return sr
}

func spanNamed(t *testing.T, sr *tracetest.SpanRecorder, name string) sdktrace.ReadOnlySpan {
	t.Helper()
	for _, span := range sr.Ended() {
		if span.Name() == name {
			return span
		}
	}
	require.Failf(t, "span not found", "no span named %q", name)
	return nil
}

func spanAttributes(span sdktrace.ReadOnlySpan) map[string]string {
	attrs := map[string]string{}
	for _, attr := range span.Attributes() {
		attrs[string(attr.Key)] = attr.Value.Emit()
	}
	return attrs
}

func serveTracing(router *gin.Engine, method, path string, header map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestDefaultTracingConfig(t *testing.T) {
	cfg := DefaultTracingConfig()
	assert.Equal(t, "shopsync", cfg.ServiceName)
	assert.True(t, cfg.Enabled)
	assert.Empty(t, cfg.SkipPaths)
}

func TestTracingWithConfig_Disabled(t *testing.T) {
	sr := setupTestTracer(t)
	router := gin.New()
	router.Use(TracingWithConfig(TracingConfig{ServiceName: "shopsync"}))
	router.GET("/api/v1/jobs", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serveTracing(router, http.MethodGet, "/api/v1/jobs", nil).Code)
	assert.Empty(t, sr.Ended())
}

func TestTracingWithConfig_SpanPerRoute(t *testing.T) {
	sr := setupTestTracer(t)
	router := gin.New()
	router.Use(Tracing())
	router.GET("/api/v1/jobs/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	serveTracing(router, http.MethodGet, "/api/v1/jobs/42", nil)
	spanNamed(t, sr, "GET /api/v1/jobs/:id")
}

func TestTracingWithConfig_SkipPaths(t *testing.T) {
	sr := setupTestTracer(t)
	router := gin.New()
	router.Use(TracingWithConfig(TracingConfig{
		ServiceName: "shopsync",
		Enabled:     true,
		SkipPaths:   []string{"/api/v1/health", "/metrics"},
	}))
	router.GET("/api/v1/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/api/v1/jobs", func(c *gin.Context) { c.Status(http.StatusOK) })

	serveTracing(router, http.MethodGet, "/api/v1/health", nil)
	serveTracing(router, http.MethodGet, "/metrics", nil)
	serveTracing(router, http.MethodGet, "/api/v1/jobs", nil)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /api/v1/jobs", spans[0].Name())
}

func TestSpanErrorMarker(t *testing.T) {
	tests := []struct {
		status int
		code   codes.Code
		tagged bool
	}{
		{http.StatusOK, codes.Unset, false},
		{http.StatusAccepted, codes.Unset, false},
		{http.StatusNotFound, codes.Unset, true},
		{http.StatusUnprocessableEntity, codes.Unset, true},
		{http.StatusUnauthorized, codes.Error, false},
		{http.StatusServiceUnavailable, codes.Error, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			sr := setupTestTracer(t)
			router := gin.New()
			router.Use(Tracing(), SpanErrorMarker())
			router.POST("/api/v1/sync", func(c *gin.Context) { c.Status(tt.status) })

			serveTracing(router, http.MethodPost, "/api/v1/sync", nil)

			span := spanNamed(t, sr, "POST /api/v1/sync")
			assert.Equal(t, tt.code, span.Status().Code)
			if tt.status == http.StatusUnauthorized {
				// otelgin leaves 4xx unset, so the marker's description survives
				assert.Equal(t, "Unauthorized", span.Status().Description)
			}
			_, tagged := spanAttributes(span)["error.type"]
			assert.Equal(t, tt.tagged, tagged)
		})
	}
}

func TestSpanErrorMarker_WithoutRecordingSpan(t *testing.T) {
	otel.SetTracerProvider(noop.NewTracerProvider())
	router := gin.New()
	router.Use(SpanErrorMarker(), TracingAttributeInjector())
	router.GET("/api/v1/jobs", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	assert.Equal(t, http.StatusInternalServerError, serveTracing(router, http.MethodGet, "/api/v1/jobs", nil).Code)
}

func TestTracingAttributeInjector_Webhook(t *testing.T) {
	sr := setupTestTracer(t)
	router := gin.New()
	router.Use(RequestID(), Tracing(), TracingAttributeInjector())
	router.POST("/api/v1/webhooks/shopify/:instance_id", func(c *gin.Context) { c.Status(http.StatusOK) })

	serveTracing(router, http.MethodPost, "/api/v1/webhooks/shopify/"+testInstanceID, map[string]string{
		"X-Request-ID":          "req-7",
		"X-Shopify-Topic":       "products/update",
		"X-Shopify-Shop-Domain": "acme.myshopify.com",
	})

	attrs := spanAttributes(spanNamed(t, sr, "POST /api/v1/webhooks/shopify/:instance_id"))
	assert.Equal(t, testInstanceID, attrs["instance_id"])
	assert.Equal(t, "products/update", attrs["webhook.topic"])
	assert.Equal(t, "acme.myshopify.com", attrs["webhook.shop_domain"])
	assert.Equal(t, "req-7", attrs["request_id"])
	assert.NotContains(t, attrs, "operator")
}

func TestGetRequestID(t *testing.T) {
	router := gin.New()
	router.GET("/ctx", func(c *gin.Context) {
		c.Set("request_id", "context-request-id")
		c.String(http.StatusOK, getRequestID(c))
	})
	router.GET("/header", func(c *gin.Context) { c.String(http.StatusOK, getRequestID(c)) })

	assert.Equal(t, "context-request-id", serveTracing(router, http.MethodGet, "/ctx", nil).Body.String())

	long := strings.Repeat("b", 200)
	got := serveTracing(router, http.MethodGet, "/header", map[string]string{"X-Request-ID": long}).Body.String()
	assert.Len(t, got, MaxRequestIDLength)
}

func TestGetInstanceID(t *testing.T) {
	router := gin.New()
	router.GET("/api/v1/instances/:id", func(c *gin.Context) { c.String(http.StatusOK, getInstanceID(c)) })
	router.GET("/api/v1/jobs/:id", func(c *gin.Context) { c.String(http.StatusOK, getInstanceID(c)) })

	for path, expected := range map[string]string{
		"/api/v1/instances/" + testInstanceID: testInstanceID,
		"/api/v1/instances/not-a-uuid":        "",
		"/api/v1/jobs/" + testInstanceID:      "",
	} {
		assert.Equal(t, expected, serveTracing(router, http.MethodGet, path, nil).Body.String(), path)
	}
}
