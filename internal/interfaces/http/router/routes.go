package router

import (
	"github.com/gin-gonic/gin"

	"github.com/erp/shopsync/internal/infrastructure/auth"
	"github.com/erp/shopsync/internal/interfaces/http/handler"
	"github.com/erp/shopsync/internal/interfaces/http/middleware"
)

// Handlers bundles the HTTP handlers served under the API prefix
type Handlers struct {
	Instance *handler.InstanceHandler
	Sync     *handler.SyncHandler
	Job      *handler.JobHandler
	Webhook  *handler.WebhookHandler
	System   *handler.SystemHandler
}

// APIGroups builds the route groups of the sync API. Operator routes
// require the read or write scope; webhook deliveries are authenticated
// by their signature in the handler.
func APIGroups(h Handlers) []*DomainGroup {
	read := middleware.RequireScope(auth.ScopeRead)
	write := middleware.RequireScope(auth.ScopeWrite)

	instances := NewDomainGroup("instances", "/instances")
	instances.
		POST("", write, h.Instance.Create).
		GET("", read, h.Instance.List).
		GET("/:id", read, h.Instance.Get).
		PATCH("/:id", write, h.Instance.Update).
		PUT("/:id/credentials", write, h.Instance.RotateCredentials).
		PUT("/:id/locations", write, h.Instance.SetLocations).
		POST("/:id/locations/sync", write, h.Instance.SyncLocations).
		POST("/:id/test", write, h.Instance.TestConnection).
		POST("/:id/webhooks", write, h.Instance.RegisterWebhooks).
		GET("/:id/webhooks", read, h.Instance.ListWebhooks).
		DELETE("/:id/webhooks", write, h.Instance.UnregisterWebhooks).
		POST("/:id/sync", write, h.Sync.StartPipeline).
		POST("/:id/sync/:entity/:direction", write, h.Sync.Start)

	tasks := NewDomainGroup("tasks", "/tasks").Use(read)
	tasks.GET("", h.Sync.ListTasks)

	jobs := NewDomainGroup("jobs", "/jobs")
	jobs.
		GET("", read, h.Job.ListJobs).
		GET("/:id", read, h.Job.GetJob).
		POST("/:id/cancel", write, h.Job.CancelJob)

	logs := NewDomainGroup("logs", "/logs")
	logs.
		GET("", read, h.Job.ListLogs).
		POST("/:id/retry", write, h.Job.RetryLogEntry)

	events := NewDomainGroup("webhook-events", "/webhook-events").Use(read)
	events.
		GET("", h.Webhook.ListEvents).
		GET("/:id", h.Webhook.GetEvent)

	webhooks := NewDomainGroup("webhooks", "/webhooks")
	webhooks.POST("/shopify/:instance_id", h.Webhook.Receive)

	system := NewDomainGroup("system", "/system").Use(read)
	system.GET("/info", h.System.GetSystemInfo)

	health := NewDomainGroup("health", "/health")
	health.GET("", h.System.Health)

	return []*DomainGroup{instances, tasks, jobs, logs, events, webhooks, system, health}
}

// RegisterAPI mounts the sync API on r and the unversioned health probe on
// engine.
func RegisterAPI(engine *gin.Engine, r *Router, h Handlers) {
	engine.GET("/health", h.System.Health)
	for _, group := range APIGroups(h) {
		r.Register(group)
	}
	r.Setup()
}
