package handler

import (
	"time"

	"github.com/erp/shopsync/internal/domain/integration"
	"github.com/erp/shopsync/internal/infrastructure/scheduler"
)

// TaskResponse is a queued or finished scheduler task
// @Description Scheduler task wrapping one or more sync jobs
type TaskResponse struct {
	ID          string        `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Kind        string        `json:"kind" example:"pipeline" enums:"pipeline,webhook"`
	InstanceID  string        `json:"instance_id"`
	Status      string        `json:"status" example:"queued" enums:"queued,running,completed,failed"`
	Steps       []TaskStepDTO `json:"steps,omitempty"`
	JobIDs      []string      `json:"job_ids"`
	Skipped     int           `json:"skipped"`
	Error       string        `json:"error,omitempty"`
	SubmittedAt time.Time     `json:"submitted_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// TaskStepDTO is one pass of a pipeline task
type TaskStepDTO struct {
	Entity    string `json:"entity" example:"product"`
	Direction string `json:"direction" example:"import"`
	Trigger   string `json:"trigger" example:"manual"`
}

// JobResponse is a sync job with its record counters
// @Description Sync job details
type JobResponse struct {
	ID             string     `json:"id"`
	InstanceID     string     `json:"instance_id"`
	Entity         string     `json:"entity" example:"product" enums:"product,customer,order,inventory"`
	Direction      string     `json:"direction" example:"import" enums:"import,export"`
	Kind           string     `json:"kind" example:"batch" enums:"batch,incremental"`
	Trigger        string     `json:"trigger" example:"manual" enums:"manual,schedule,webhook,retry"`
	WebhookEventID *string    `json:"webhook_event_id,omitempty"`
	Status         string     `json:"status" example:"success" enums:"pending,running,success,partial,failed,cancelling,cancelled"`
	Created        int        `json:"created"`
	Updated        int        `json:"updated"`
	Unchanged      int        `json:"unchanged"`
	Skipped        int        `json:"skipped"`
	Errored        int        `json:"errored"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	Retryable      bool       `json:"retryable"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// LogEntryResponse is one per-record outcome
// @Description Sync log entry
type LogEntryResponse struct {
	ID            string    `json:"id"`
	JobID         string    `json:"job_id"`
	InstanceID    string    `json:"instance_id"`
	Entity        string    `json:"entity"`
	Direction     string    `json:"direction"`
	LocalID       string    `json:"local_id,omitempty"`
	RemoteID      string    `json:"remote_id,omitempty"`
	NaturalKey    string    `json:"natural_key,omitempty"`
	Action        string    `json:"action" example:"update" enums:"create,update,unchanged,deactivate,skip"`
	Status        string    `json:"status" example:"success" enums:"success,skipped,errored"`
	ErrorCode     string    `json:"error_code,omitempty" example:"AMBIGUOUS_MATCH"`
	Message       string    `json:"message,omitempty"`
	ChangedFields []string  `json:"changed_fields,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// WebhookEventResponse is a recorded inbound delivery
// @Description Webhook event
type WebhookEventResponse struct {
	ID             string     `json:"id"`
	InstanceID     string     `json:"instance_id"`
	RemoteEventID  string     `json:"remote_event_id"`
	Topic          string     `json:"topic"`
	RemoteEntityID string     `json:"remote_entity_id,omitempty"`
	Status         string     `json:"status" enums:"received,validated,enqueued,processed,failed,rejected,duplicated"`
	Reason         string     `json:"reason,omitempty"`
	JobID          *string    `json:"job_id,omitempty"`
	ReceivedAt     time.Time  `json:"received_at"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
}

// WebhookAckResponse is returned to the remote platform
type WebhookAckResponse struct {
	EventID string `json:"event_id"`
	Status  string `json:"status"`
}

func uuidString(id interface{ String() string }) *string {
	s := id.String()
	return &s
}

func toTaskResponse(task *scheduler.Task) TaskResponse {
	resp := TaskResponse{
		ID:          task.ID.String(),
		Kind:        string(task.Kind),
		InstanceID:  task.InstanceID.String(),
		Status:      string(task.Status),
		JobIDs:      make([]string, len(task.JobIDs)),
		Skipped:     task.Skipped,
		Error:       task.Error,
		SubmittedAt: task.SubmittedAt,
		StartedAt:   task.StartedAt,
		CompletedAt: task.CompletedAt,
	}
	for i, id := range task.JobIDs {
		resp.JobIDs[i] = id.String()
	}
	for _, step := range task.Steps {
		resp.Steps = append(resp.Steps, TaskStepDTO{
			Entity:    step.Entity.String(),
			Direction: step.Direction.String(),
			Trigger:   string(step.Trigger),
		})
	}
	return resp
}

func toTaskResponses(tasks []*scheduler.Task) []TaskResponse {
	out := make([]TaskResponse, len(tasks))
	for i, task := range tasks {
		out[i] = toTaskResponse(task)
	}
	return out
}

func toJobResponse(job *integration.SyncJob) JobResponse {
	resp := JobResponse{
		ID:           job.ID.String(),
		InstanceID:   job.InstanceID.String(),
		Entity:       job.Entity.String(),
		Direction:    job.Direction.String(),
		Kind:         string(job.Kind),
		Trigger:      string(job.Trigger),
		Status:       string(job.Status),
		Created:      job.Created,
		Updated:      job.Updated,
		Unchanged:    job.Unchanged,
		Skipped:      job.Skipped,
		Errored:      job.Errored,
		ErrorMessage: job.ErrorMessage,
		Retryable:    job.Retryable,
		StartedAt:    job.StartedAt,
		FinishedAt:   job.FinishedAt,
		CreatedAt:    job.CreatedAt,
	}
	if job.WebhookEventID != nil {
		resp.WebhookEventID = uuidString(job.WebhookEventID)
	}
	return resp
}

func toJobResponses(jobs []integration.SyncJob) []JobResponse {
	out := make([]JobResponse, len(jobs))
	for i := range jobs {
		out[i] = toJobResponse(&jobs[i])
	}
	return out
}

func toLogEntryResponses(entries []integration.SyncLogEntry) []LogEntryResponse {
	out := make([]LogEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = LogEntryResponse{
			ID:            e.ID.String(),
			JobID:         e.JobID.String(),
			InstanceID:    e.InstanceID.String(),
			Entity:        e.Entity.String(),
			Direction:     e.Direction.String(),
			LocalID:       e.LocalID,
			RemoteID:      e.RemoteID,
			NaturalKey:    e.NaturalKey,
			Action:        string(e.Action),
			Status:        string(e.Status),
			ErrorCode:     e.ErrorCode,
			Message:       e.Message,
			ChangedFields: e.ChangedFields,
			CreatedAt:     e.CreatedAt,
		}
	}
	return out
}

func toWebhookEventResponse(e *integration.WebhookEvent) WebhookEventResponse {
	resp := WebhookEventResponse{
		ID:             e.ID.String(),
		InstanceID:     e.InstanceID.String(),
		RemoteEventID:  e.RemoteEventID,
		Topic:          e.Topic.String(),
		RemoteEntityID: e.RemoteEntityID,
		Status:         string(e.Status),
		Reason:         e.Reason,
		ReceivedAt:     e.ReceivedAt,
		ProcessedAt:    e.ProcessedAt,
	}
	if e.JobID != nil {
		resp.JobID = uuidString(e.JobID)
	}
	return resp
}

func toWebhookEventResponses(events []integration.WebhookEvent) []WebhookEventResponse {
	out := make([]WebhookEventResponse, len(events))
	for i := range events {
		out[i] = toWebhookEventResponse(&events[i])
	}
	return out
}
