package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/shopsync/internal/infrastructure/config"
	"github.com/erp/shopsync/internal/infrastructure/auth"
	"github.com/erp/shopsync/internal/interfaces/http/handler"
	"github.com/erp/shopsync/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader("{}"))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())
	assert.Equal(t, "/api/v1", r.BasePath())
	assert.Empty(t, r.registrars)

	r = NewRouter(gin.New(), WithAPIVersion("v2"))
	assert.Equal(t, "/api/v2", r.BasePath())
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	var hits []string
	r := NewRouter(engine, WithGroupMiddleware(func(c *gin.Context) {
		hits = append(hits, c.FullPath())
		c.Next()
	}))
	engine.GET("/outside", func(c *gin.Context) { c.Status(http.StatusOK) })

	group := NewDomainGroup("test", "/test")
	group.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	r.Register(group).Setup()

	w := serve(engine, http.MethodGet, "/api/v1/test/ping", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())

	serve(engine, http.MethodGet, "/outside", nil)
	assert.Equal(t, []string{"/api/v1/test/ping"}, hits)
}

func TestDomainGroup(t *testing.T) {
	t.Run("creates group with name and prefix", func(t *testing.T) {
		g := NewDomainGroup("jobs", "/jobs")
		assert.Equal(t, "jobs", g.Name())
		assert.Equal(t, "/jobs", g.Prefix())
	})

	t.Run("registers every method", func(t *testing.T) {
		engine := gin.New()
		ok := func(c *gin.Context) { c.String(http.StatusOK, c.Request.Method) }
		g := NewDomainGroup("test", "/test")
		g.GET("/r", ok).POST("/r", ok).PUT("/r", ok).PATCH("/r", ok).DELETE("/r", ok)
		g.RegisterRoutes(engine.Group("/api/v1"))

		for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
			w := serve(engine, method, "/api/v1/test/r", nil)
			assert.Equal(t, http.StatusOK, w.Code, method)
			assert.Equal(t, method, w.Body.String())
		}
	})

	t.Run("applies group middleware to subgroups", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("parent", "/parent").Use(func(c *gin.Context) {
			c.Header("X-Group", "parent")
			c.Next()
		})
		g.Group("child", "/child").GET("/leaf", func(c *gin.Context) { c.Status(http.StatusNoContent) })
		g.RegisterRoutes(engine.Group("/api"))

		w := serve(engine, http.MethodGet, "/api/parent/child/leaf", nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "parent", w.Header().Get("X-Group"))
	})

	t.Run("lists routes", func(t *testing.T) {
		g := NewDomainGroup("jobs", "/jobs")
		g.GET("", nil).POST("/:id/cancel", nil)
		g.Group("events", "/events").GET("/:id", nil)

		assert.Equal(t, []RouteInfo{
			{Group: "jobs", Method: http.MethodGet, Path: "/api/v1/jobs"},
			{Group: "jobs", Method: http.MethodPost, Path: "/api/v1/jobs/:id/cancel"},
			{Group: "events", Method: http.MethodGet, Path: "/api/v1/jobs/events/:id"},
		}, g.Routes("/api/v1"))
	})
}

func newAPIEngine(t *testing.T) (*gin.Engine, *Router, *auth.JWTService) {
	t.Helper()
	jwtService := auth.NewJWTService(config.JWTConfig{Secret: "router-test-secret-with-enough-bytes", Issuer: "shopsync"})
	engine := gin.New()
	engine.Use(middleware.JWTAuthMiddleware(jwtService))

	h := Handlers{
		Instance: handler.NewInstanceHandler(nil, ""),
		Sync:     handler.NewSyncHandler(nil, nil, nil),
		Job:      handler.NewJobHandler(nil, nil, nil),
		Webhook:  handler.NewWebhookHandler(nil, 0),
		System:   handler.NewSystemHandler("test", nil, nil),
	}
	r := NewRouter(engine)
	RegisterAPI(engine, r, h)
	return engine, r, jwtService
}

func TestRegisterAPI_RouteTable(t *testing.T) {
	_, r, _ := newAPIEngine(t)

	routes := r.Routes()
	index := make(map[string]bool, len(routes))
	for _, route := range routes {
		index[route.Method+" "+route.Path] = true
	}
	for _, want := range []string{
		"POST /api/v1/instances",
		"GET /api/v1/instances/:id",
		"POST /api/v1/instances/:id/sync/:entity/:direction",
		"POST /api/v1/jobs/:id/cancel",
		"POST /api/v1/logs/:id/retry",
		"GET /api/v1/webhook-events/:id",
		"POST /api/v1/webhooks/shopify/:instance_id",
		"GET /api/v1/system/info",
	} {
		assert.True(t, index[want], want)
	}
}

func TestRegisterAPI_Authorization(t *testing.T) {
	engine, _, jwtService := newAPIEngine(t)
	readOnly, err := jwtService.IssueToken("alice", []auth.Scope{auth.ScopeRead}, 0)
	require.NoError(t, err)
	bearer := map[string]string{"Authorization": "Bearer " + readOnly.Token}

	t.Run("operator routes need a token", func(t *testing.T) {
		w := serve(engine, http.MethodGet, "/api/v1/jobs", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("write routes need the write scope", func(t *testing.T) {
		w := serve(engine, http.MethodPost, "/api/v1/instances", bearer)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("webhooks skip bearer authentication", func(t *testing.T) {
		w := serve(engine, http.MethodPost, "/api/v1/webhooks/shopify/1f0e4c52-6f0b-4f5e-9f55-0c2c6a8d8b11", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "X-Shopify-Hmac-Sha256")
	})
}
