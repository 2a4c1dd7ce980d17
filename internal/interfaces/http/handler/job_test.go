package handler

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/erp/shopsync/internal/domain/integration"
	"github.com/erp/shopsync/internal/interfaces/http/dto"
)

func setupJobRouter(store *MockJobStore, engine *MockJobController) *gin.Engine {
	h := NewJobHandler(store, store, engine)
	r := newTestEngine()
	r.GET("/jobs", h.ListJobs)
	r.GET("/jobs/:id", h.GetJob)
	r.POST("/jobs/:id/cancel", h.CancelJob)
	r.GET("/logs", h.ListLogs)
	r.POST("/logs/:id/retry", h.RetryLogEntry)
	return r
}

func newTestJob(t *testing.T) *integration.SyncJob {
	t.Helper()
	job, err := integration.NewSyncJob(uuid.New(), integration.EntityOrder, integration.DirectionImport, integration.JobKindBatch, integration.TriggerManual)
	require.NoError(t, err)
	return job
}

func TestJobHandler_ListJobs(t *testing.T) {
	store := new(MockJobStore)
	job := newTestJob(t)
	entity := integration.EntityOrder
	status := integration.JobStatusPartial
	store.On("FindAll", mock.Anything, integration.JobFilter{
		InstanceID: &job.InstanceID,
		Entity:     &entity,
		Status:     &status,
		Page:       1,
		PageSize:   20,
	}).Return([]integration.SyncJob{*job}, int64(1), nil)
	r := setupJobRouter(store, nil)

	w := performRequest(r, http.MethodGet, "/jobs?instance_id="+job.InstanceID.String()+"&entity=order&status=partial", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), job.ID.String())

	assert.Equal(t, http.StatusBadRequest, performRequest(r, http.MethodGet, "/jobs?entity=invoice", nil, nil).Code)
	assert.Equal(t, http.StatusBadRequest, performRequest(r, http.MethodGet, "/jobs?direction=sideways", nil, nil).Code)
	assert.Equal(t, http.StatusBadRequest, performRequest(r, http.MethodGet, "/jobs?instance_id=nope", nil, nil).Code)
	store.AssertNumberOfCalls(t, "FindAll", 1)
}

func TestJobHandler_GetJob(t *testing.T) {
	store := new(MockJobStore)
	job := newTestJob(t)
	job.Created = 3
	job.Errored = 1
	missing := uuid.New()
	store.On("FindByID", mock.Anything, job.ID).Return(job, nil)
	store.On("FindByID", mock.Anything, missing).Return(nil, integration.ErrJobNotFound)
	r := setupJobRouter(store, nil)

	w := performRequest(r, http.MethodGet, "/jobs/"+job.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"created":3`)
	assert.Contains(t, w.Body.String(), `"errored":1`)

	assert.Equal(t, http.StatusNotFound, performRequest(r, http.MethodGet, "/jobs/"+missing.String(), nil, nil).Code)
}

func TestJobHandler_CancelJob(t *testing.T) {
	engine := new(MockJobController)
	running := newTestJob(t)
	require.NoError(t, running.Start())
	require.NoError(t, running.RequestCancel())
	finished := uuid.New()
	engine.On("Cancel", mock.Anything, running.ID).Return(running, nil)
	engine.On("Cancel", mock.Anything, finished).Return(nil, integration.ErrJobNotCancellable)
	r := setupJobRouter(new(MockJobStore), engine)

	w := performRequest(r, http.MethodPost, "/jobs/"+running.ID.String()+"/cancel", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"cancelling"`)

	w = performRequest(r, http.MethodPost, "/jobs/"+finished.String()+"/cancel", nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, dto.ErrCodeInvalidState, decodeResponse(t, w).Error.Code)
}

func TestJobHandler_ListLogs(t *testing.T) {
	store := new(MockJobStore)
	job := newTestJob(t)
	entry := integration.NewSyncLogEntry(job, integration.ActionSkip, "", "820982911946154508", "#1001", nil,
		integration.ErrAmbiguousMatch)

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	skipped := integration.LogStatusSkipped
	store.On("List", mock.Anything, integration.SyncLogFilter{
		JobID:    &job.ID,
		Status:   &skipped,
		From:     &from,
		To:       &to,
		Page:     1,
		PageSize: 20,
	}).Return([]integration.SyncLogEntry{*entry}, int64(1), nil)
	r := setupJobRouter(store, nil)

	w := performRequest(r, http.MethodGet,
		"/logs?job_id="+job.ID.String()+"&status=skipped&from=2026-01-01T00:00:00Z&to=2026-01-02T00:00:00Z", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"error_code":"AMBIGUOUS_MATCH"`)

	tests := []struct {
		name  string
		query string
	}{
		{"bad status", "status=done"},
		{"bad from", "from=yesterday"},
		{"inverted range", "from=2026-01-02T00:00:00Z&to=2026-01-01T00:00:00Z"},
		{"bad job id", "job_id=42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, performRequest(r, http.MethodGet, "/logs?"+tt.query, nil, nil).Code)
		})
	}
	store.AssertNumberOfCalls(t, "List", 1)
}

func TestJobHandler_RetryLogEntry(t *testing.T) {
	engine := new(MockJobController)
	retried := newTestJob(t)
	retried.Kind = integration.JobKindIncremental
	retried.Trigger = integration.TriggerRetry
	entryID := uuid.New()
	successID := uuid.New()
	downID := uuid.New()
	engine.On("RetryEntry", mock.Anything, entryID).Return(retried, nil)
	engine.On("RetryEntry", mock.Anything, successID).Return(nil, integration.ErrLogEntryNotRetryable)
	engine.On("RetryEntry", mock.Anything, downID).Return(nil, fmt.Errorf("list orders: %w", integration.ErrRemoteUnavailable))
	r := setupJobRouter(new(MockJobStore), engine)

	w := performRequest(r, http.MethodPost, "/logs/"+entryID.String()+"/retry", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"trigger":"retry"`)

	assert.Equal(t, http.StatusUnprocessableEntity, performRequest(r, http.MethodPost, "/logs/"+successID.String()+"/retry", nil, nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, performRequest(r, http.MethodPost, "/logs/"+downID.String()+"/retry", nil, nil).Code)
}
