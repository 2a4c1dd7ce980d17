package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// JobStatus
// ---------------------------------------------------------------------------

// JobStatus represents the lifecycle state of a sync job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusRunning    JobStatus = "running"
	JobStatusSuccess    JobStatus = "success"
	JobStatusPartial    JobStatus = "partial"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelling JobStatus = "cancelling"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsValid returns true if the status is valid
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusSuccess, JobStatusPartial,
		JobStatusFailed, JobStatusCancelling, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if no further transition is possible
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSuccess, JobStatusPartial, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// ---------------------------------------------------------------------------
// SyncJob Entity
// ---------------------------------------------------------------------------

// SyncJob is one execution of an import, export or incremental pass.
// It owns its log entries exclusively.
type SyncJob struct {
	ID             uuid.UUID
	InstanceID     uuid.UUID
	Entity         EntityType
	Direction      Direction
	Kind           JobKind
	Trigger        Trigger
	WebhookEventID *uuid.UUID
	Status         JobStatus

	Created   int
	Updated   int
	Unchanged int
	Skipped   int
	Errored   int

	ErrorMessage string
	// Retryable is set on failed jobs whose cause is expected to clear by
	// the next scheduled run.
	Retryable bool

	StartedAt  *time.Time
	FinishedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewSyncJob creates a pending job
func NewSyncJob(instanceID uuid.UUID, entity EntityType, direction Direction, kind JobKind, trigger Trigger) (*SyncJob, error) {
	if instanceID == uuid.Nil {
		return nil, ErrInstanceNotFound
	}
	if !entity.IsValid() {
		return nil, ErrInvalidEntityType
	}
	if !direction.IsValid() {
		return nil, ErrInvalidDirection
	}
	if kind == "" {
		kind = JobKindBatch
	}
	if !trigger.IsValid() {
		trigger = TriggerManual
	}
	now := time.Now()
	return &SyncJob{
		ID:         uuid.New(),
		InstanceID: instanceID,
		Entity:     entity,
		Direction:  direction,
		Kind:       kind,
		Trigger:    trigger,
		Status:     JobStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// MarkCancelling records a cancellation request observed from storage
func (j *SyncJob) MarkCancelling() {
	if j.Status == JobStatusRunning {
		j.Status = JobStatusCancelling
		j.UpdatedAt = time.Now()
	}
}

// Start moves a pending job to running
func (j *SyncJob) Start() error {
	if j.Status != JobStatusPending {
		return ErrInvalidJobTransition
	}
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.UpdatedAt = now
	return nil
}

// RequestCancel asks a job to stop. A pending job is cancelled at once; a
// running job becomes cancelling and stops at the next record boundary.
func (j *SyncJob) RequestCancel() error {
	now := time.Now()
	switch j.Status {
	case JobStatusPending:
		j.Status = JobStatusCancelled
		j.FinishedAt = &now
	case JobStatusRunning:
		j.Status = JobStatusCancelling
	case JobStatusCancelling:
		return nil
	default:
		return ErrJobNotCancellable
	}
	j.UpdatedAt = now
	return nil
}

// RecordOutcome counts one per-record outcome
func (j *SyncJob) RecordOutcome(action SyncAction, status LogStatus) {
	switch status {
	case LogStatusErrored:
		j.Errored++
	case LogStatusSkipped:
		j.Skipped++
	default:
		switch action {
		case ActionCreate:
			j.Created++
		case ActionUnchanged, ActionSkip:
			j.Unchanged++
		default:
			j.Updated++
		}
	}
	j.UpdatedAt = time.Now()
}

// Finish closes a running or cancelling job. A cancelling job becomes
// cancelled; otherwise the job is partial if any record errored or was
// skipped for manual resolution, success if not.
func (j *SyncJob) Finish() error {
	switch j.Status {
	case JobStatusCancelling:
		j.Status = JobStatusCancelled
	case JobStatusRunning:
		if j.Errored > 0 || j.Skipped > 0 {
			j.Status = JobStatusPartial
		} else {
			j.Status = JobStatusSuccess
		}
	default:
		return ErrInvalidJobTransition
	}
	now := time.Now()
	j.FinishedAt = &now
	j.UpdatedAt = now
	return nil
}

// Fail marks the job failed because of a systemic error
func (j *SyncJob) Fail(cause error) {
	now := time.Now()
	j.Status = JobStatusFailed
	if cause != nil {
		j.ErrorMessage = cause.Error()
	}
	j.Retryable = IsRetryable(cause)
	j.FinishedAt = &now
	j.UpdatedAt = now
}

// Total returns the number of records the job has looked at
func (j *SyncJob) Total() int {
	return j.Created + j.Updated + j.Unchanged + j.Skipped + j.Errored
}

// Duration returns how long the job ran, zero if it never started
func (j *SyncJob) Duration() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if j.FinishedAt != nil {
		end = *j.FinishedAt
	}
	return end.Sub(*j.StartedAt)
}

// ---------------------------------------------------------------------------
// SyncRequest
// ---------------------------------------------------------------------------

// SyncRequest asks for one batch pass of one entity type
type SyncRequest struct {
	InstanceID uuid.UUID
	Entity     EntityType
	Direction  Direction
	Trigger    Trigger
}

// Validate validates the request
func (r SyncRequest) Validate() error {
	if r.InstanceID == uuid.Nil {
		return ErrInstanceNotFound
	}
	if !r.Entity.IsValid() {
		return ErrInvalidEntityType
	}
	if !r.Direction.IsValid() {
		return ErrInvalidDirection
	}
	return nil
}

// LockKey is the serialization key of the (instance, entity type) pair
func (r SyncRequest) LockKey() string {
	return LockKey(r.InstanceID, r.Entity)
}

// LockKey returns the key under which passes over one entity type of one
// instance are serialized
func LockKey(instanceID uuid.UUID, entity EntityType) string {
	return "sync:" + instanceID.String() + ":" + string(entity)
}

// ---------------------------------------------------------------------------
// Repository
// ---------------------------------------------------------------------------

// JobFilter defines filtering options for listing jobs
type JobFilter struct {
	InstanceID *uuid.UUID
	Entity     *EntityType
	Direction  *Direction
	Status     *JobStatus
	Page       int
	PageSize   int
}

// JobRepository persists sync jobs
type JobRepository interface {
	Save(ctx context.Context, job *SyncJob) error
	FindByID(ctx context.Context, id uuid.UUID) (*SyncJob, error)
	FindAll(ctx context.Context, filter JobFilter) ([]SyncJob, int64, error)
	// Status reads only the status column. The engine polls it between
	// records to observe cancellation requested by another process.
	Status(ctx context.Context, id uuid.UUID) (JobStatus, error)
	// SaveProgress writes the counters without touching the status, so a
	// concurrent cancellation request is never overwritten.
	SaveProgress(ctx context.Context, job *SyncJob) error
	// TransitionStatus moves a job from one status to another only if it
	// is still in the expected status. It reports whether the row changed.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to JobStatus) (bool, error)
}
