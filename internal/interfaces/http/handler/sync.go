package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/shopsync/internal/domain/integration"
	"github.com/erp/shopsync/internal/infrastructure/logger"
	"github.com/erp/shopsync/internal/infrastructure/scheduler"
)

// TaskQueue accepts sync work for the background workers
type TaskQueue interface {
	Submit(req integration.SyncRequest) (*scheduler.Task, error)
	GetTaskHistory(limit int) []*scheduler.Task
	GetTaskHistoryByInstance(instanceID uuid.UUID, limit int) []*scheduler.Task
}

// PipelineTrigger queues a full pipeline for one instance
type PipelineTrigger interface {
	TriggerInstance(ctx context.Context, instanceID uuid.UUID) (*scheduler.Task, error)
}

// InstanceGetter loads one instance
type InstanceGetter interface {
	Get(ctx context.Context, id uuid.UUID) (*integration.SyncInstance, error)
}

// SyncHandler starts sync passes and reports on queued tasks
type SyncHandler struct {
	BaseHandler
	instances InstanceGetter
	queue     TaskQueue
	pipelines PipelineTrigger
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(instances InstanceGetter, queue TaskQueue, pipelines PipelineTrigger) *SyncHandler {
	return &SyncHandler{
		instances: instances,
		queue:     queue,
		pipelines: pipelines,
	}
}

// Start godoc
// @ID           startSync
// @Summary      Start an import or export pass
// @Description  Queues one batch pass for the entity type. The response carries the scheduler task; job ids appear once it runs.
// @Tags         sync
// @Produce      json
// @Param        id        path string true "Instance ID" format(uuid)
// @Param        entity    path string true "Entity type" Enums(product, collection, customer, order, inventory, price_rule)
// @Param        direction path string true "Direction" Enums(import, export)
// @Success      202 {object} APIResponse[TaskResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /instances/{id}/sync/{entity}/{direction} [post]
func (h *SyncHandler) Start(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	entity, err := integration.ParseEntityType(c.Param("entity"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	direction, err := integration.ParseDirection(c.Param("direction"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	ctx := c.Request.Context()
	inst, err := h.instances.Get(ctx, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if inst.Status == integration.ConnectionAuthRejected {
		h.HandleError(c, integration.ErrInstanceAuthRejected)
		return
	}

	task, err := h.queue.Submit(integration.SyncRequest{
		InstanceID: inst.ID,
		Entity:     entity,
		Direction:  direction,
		Trigger:    integration.TriggerManual,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	logger.L(ctx).Info("Sync pass queued",
		zap.String("instance_id", inst.ID.String()),
		zap.String("entity", entity.String()),
		zap.String("direction", direction.String()),
		zap.String("task_id", task.ID.String()),
		zap.String("operator", getOperator(c)))
	h.Accepted(c, toTaskResponse(task))
}

// StartPipeline godoc
// @ID           startSyncPipeline
// @Summary      Start a full sync pipeline
// @Description  Queues imports for every entity type in dependency order, followed by exports when enabled
// @Tags         sync
// @Produce      json
// @Param        id path string true "Instance ID" format(uuid)
// @Success      202 {object} APIResponse[TaskResponse]
// @Failure      404 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /instances/{id}/sync [post]
func (h *SyncHandler) StartPipeline(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	task, err := h.pipelines.TriggerInstance(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, toTaskResponse(task))
}

// ListTasks godoc
// @ID           listSyncTasks
// @Summary      Recent scheduler tasks
// @Tags         sync
// @Produce      json
// @Param        instance_id query string false "Instance ID" format(uuid)
// @Param        limit       query int    false "Maximum tasks" default(50)
// @Success      200 {object} APIResponse[[]TaskResponse]
// @Security     BearerAuth
// @Router       /tasks [get]
func (h *SyncHandler) ListTasks(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		h.BadRequest(c, "Invalid limit")
		return
	}

	var tasks []*scheduler.Task
	if raw := c.Query("instance_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.BadRequest(c, "Invalid instance_id format")
			return
		}
		tasks = h.queue.GetTaskHistoryByInstance(id, limit)
	} else {
		tasks = h.queue.GetTaskHistory(limit)
	}
	h.Success(c, toTaskResponses(tasks))
}
