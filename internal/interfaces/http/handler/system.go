package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/erp/shopsync/internal/infrastructure/logger"
	"github.com/erp/shopsync/internal/interfaces/http/dto"
)

// healthTimeout bounds the database probe so a stuck pool fails the check
const healthTimeout = 2 * time.Second

// Pinger checks a backing store
type Pinger interface {
	Ping(ctx context.Context) error
}

// WorkerStatus reports on the background sync workers
type WorkerStatus interface {
	IsRunning() bool
	QueueDepth() int
}

// SystemHandler serves health and build information
type SystemHandler struct {
	BaseHandler
	version   string
	db        Pinger
	workers   WorkerStatus
	startTime time.Time
}

// NewSystemHandler creates a new SystemHandler. workers may be nil when the
// scheduler is disabled.
func NewSystemHandler(version string, db Pinger, workers WorkerStatus) *SystemHandler {
	return &SystemHandler{
		version:   version,
		db:        db,
		workers:   workers,
		startTime: time.Now(),
	}
}

// HealthResponse is the health probe payload
// @name HandlerHealthResponse
type HealthResponse struct {
	Status     string `json:"status" example:"healthy" enums:"healthy,degraded,unhealthy"`
	Time       string `json:"time" example:"2026-01-23T12:00:00Z"`
	Database   string `json:"database" example:"ok"`
	Scheduler  string `json:"scheduler" example:"running" enums:"running,stopped,disabled"`
	QueueDepth int    `json:"queue_depth"`
}

// Health godoc
// @ID           getHealth
// @Summary      Health probe
// @Description  Fails with 503 when the database is unreachable. A stopped scheduler only degrades the service.
// @Tags         system
// @Produce      json
// @Success      200 {object} HealthResponse
// @Failure      503 {object} HealthResponse
// @Router       /health [get]
func (h *SystemHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Time:      time.Now().UTC().Format(time.RFC3339),
		Database:  "ok",
		Scheduler: "disabled",
	}
	if h.workers != nil {
		resp.QueueDepth = h.workers.QueueDepth()
		if h.workers.IsRunning() {
			resp.Scheduler = "running"
		} else {
			resp.Scheduler = "stopped"
			resp.Status = "degraded"
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		logger.GetGinLogger(c).Warn("Health check failed", zap.Error(err))
		resp.Status = "unhealthy"
		resp.Database = "error"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// SystemInfoResponse represents the system information response
// @name HandlerSystemInfoResponse
type SystemInfoResponse struct {
	Name      string `json:"name" example:"shopsync"`
	Version   string `json:"version" example:"1.0.0"`
	GoVersion string `json:"go_version" example:"go1.25.5"`
	Uptime    string `json:"uptime" example:"1h30m45s"`
}

// GetSystemInfo godoc
// @ID           getSystemInfo
// @Summary      Get system information
// @Tags         system
// @Produce      json
// @Success      200 {object} APIResponse[SystemInfoResponse]
// @Security     BearerAuth
// @Router       /system/info [get]
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(SystemInfoResponse{
		Name:      "shopsync",
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}))
}
