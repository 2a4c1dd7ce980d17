package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/shopsync/internal/domain/integration"
	"github.com/erp/shopsync/internal/infrastructure/logger"
)

// JobReader reads sync jobs
type JobReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*integration.SyncJob, error)
	FindAll(ctx context.Context, filter integration.JobFilter) ([]integration.SyncJob, int64, error)
}

// LogReader reads the sync log
type LogReader interface {
	List(ctx context.Context, filter integration.SyncLogFilter) ([]integration.SyncLogEntry, int64, error)
}

// JobController changes running work
type JobController interface {
	Cancel(ctx context.Context, jobID uuid.UUID) (*integration.SyncJob, error)
	RetryEntry(ctx context.Context, entryID uuid.UUID) (*integration.SyncJob, error)
}

// JobHandler handles sync job and sync log endpoints
type JobHandler struct {
	BaseHandler
	jobs   JobReader
	log    LogReader
	engine JobController
}

// NewJobHandler creates a new JobHandler
func NewJobHandler(jobs JobReader, log LogReader, engine JobController) *JobHandler {
	return &JobHandler{
		jobs:   jobs,
		log:    log,
		engine: engine,
	}
}

// optionalUUID parses an optional query parameter
func optionalUUID(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, false
	}
	return &id, true
}

// optionalTime parses an optional RFC 3339 query parameter
func optionalTime(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, false
	}
	return &t, true
}

// entityAndDirection reads the shared entity and direction filters
func (h *JobHandler) entityAndDirection(c *gin.Context) (*integration.EntityType, *integration.Direction, bool) {
	var entity *integration.EntityType
	var direction *integration.Direction
	if raw := c.Query("entity"); raw != "" {
		e, err := integration.ParseEntityType(raw)
		if err != nil {
			h.HandleError(c, err)
			return nil, nil, false
		}
		entity = &e
	}
	if raw := c.Query("direction"); raw != "" {
		d, err := integration.ParseDirection(raw)
		if err != nil {
			h.HandleError(c, err)
			return nil, nil, false
		}
		direction = &d
	}
	return entity, direction, true
}

// ListJobs godoc
// @ID           listJobs
// @Summary      List sync jobs
// @Tags         jobs
// @Produce      json
// @Param        instance_id query string false "Instance ID" format(uuid)
// @Param        entity      query string false "Entity type" Enums(product, collection, customer, order, inventory, price_rule)
// @Param        direction   query string false "Direction" Enums(import, export)
// @Param        status      query string false "Job status"
// @Param        page        query int    false "Page number" default(1)
// @Param        page_size   query int    false "Page size" default(20)
// @Success      200 {object} APIResponse[[]JobResponse]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /jobs [get]
func (h *JobHandler) ListJobs(c *gin.Context) {
	instanceID, ok := optionalUUID(c, "instance_id")
	if !ok {
		h.BadRequest(c, "Invalid instance_id format")
		return
	}
	entity, direction, ok := h.entityAndDirection(c)
	if !ok {
		return
	}

	filter := integration.JobFilter{InstanceID: instanceID, Entity: entity, Direction: direction}
	if raw := c.Query("status"); raw != "" {
		status := integration.JobStatus(raw)
		filter.Status = &status
	}
	filter.Page, filter.PageSize = pageFromQuery(c)

	jobs, total, err := h.jobs.FindAll(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, toJobResponses(jobs), total, filter.Page, filter.PageSize)
}

// GetJob godoc
// @ID           getJob
// @Summary      Get a sync job
// @Tags         jobs
// @Produce      json
// @Param        id path string true "Job ID" format(uuid)
// @Success      200 {object} APIResponse[JobResponse]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /jobs/{id} [get]
func (h *JobHandler) GetJob(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	job, err := h.jobs.FindByID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toJobResponse(job))
}

// CancelJob godoc
// @ID           cancelJob
// @Summary      Cancel a sync job
// @Description  A pending job is cancelled at once. A running job stops before its next record.
// @Tags         jobs
// @Produce      json
// @Param        id path string true "Job ID" format(uuid)
// @Success      200 {object} APIResponse[JobResponse]
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /jobs/{id}/cancel [post]
func (h *JobHandler) CancelJob(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	job, err := h.engine.Cancel(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	logger.L(c.Request.Context()).Info("Sync job cancellation requested",
		zap.String("job_id", job.ID.String()),
		zap.String("status", string(job.Status)),
		zap.String("operator", getOperator(c)))
	h.Success(c, toJobResponse(job))
}

// ListLogs godoc
// @ID           listSyncLog
// @Summary      Query the sync log
// @Description  Per-record outcomes, newest first
// @Tags         logs
// @Produce      json
// @Param        instance_id query string false "Instance ID" format(uuid)
// @Param        job_id      query string false "Job ID" format(uuid)
// @Param        entity      query string false "Entity type" Enums(product, collection, customer, order, inventory, price_rule)
// @Param        direction   query string false "Direction" Enums(import, export)
// @Param        status      query string false "Outcome" Enums(success, skipped, errored)
// @Param        from        query string false "Earliest entry (RFC 3339)"
// @Param        to          query string false "Latest entry (RFC 3339)"
// @Param        page        query int    false "Page number" default(1)
// @Param        page_size   query int    false "Page size" default(20)
// @Success      200 {object} APIResponse[[]LogEntryResponse]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /logs [get]
func (h *JobHandler) ListLogs(c *gin.Context) {
	var filter integration.SyncLogFilter
	var ok bool
	if filter.InstanceID, ok = optionalUUID(c, "instance_id"); !ok {
		h.BadRequest(c, "Invalid instance_id format")
		return
	}
	if filter.JobID, ok = optionalUUID(c, "job_id"); !ok {
		h.BadRequest(c, "Invalid job_id format")
		return
	}
	if filter.Entity, filter.Direction, ok = h.entityAndDirection(c); !ok {
		return
	}
	if raw := c.Query("status"); raw != "" {
		status := integration.LogStatus(raw)
		switch status {
		case integration.LogStatusSuccess, integration.LogStatusSkipped, integration.LogStatusErrored:
		default:
			h.BadRequest(c, "Invalid status filter")
			return
		}
		filter.Status = &status
	}
	if filter.From, ok = optionalTime(c, "from"); !ok {
		h.BadRequest(c, "from must be an RFC 3339 timestamp")
		return
	}
	if filter.To, ok = optionalTime(c, "to"); !ok {
		h.BadRequest(c, "to must be an RFC 3339 timestamp")
		return
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		h.BadRequest(c, "to must not be before from")
		return
	}
	filter.Page, filter.PageSize = pageFromQuery(c)

	entries, total, err := h.log.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, toLogEntryResponses(entries), total, filter.Page, filter.PageSize)
}

// RetryLogEntry godoc
// @ID           retrySyncLogEntry
// @Summary      Retry one record
// @Description  Re-syncs the record of an errored or skipped entry as an incremental job in the same direction
// @Tags         logs
// @Produce      json
// @Param        id path string true "Log entry ID" format(uuid)
// @Success      200 {object} APIResponse[JobResponse]
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /logs/{id}/retry [post]
func (h *JobHandler) RetryLogEntry(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	job, err := h.engine.RetryEntry(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toJobResponse(job))
}
