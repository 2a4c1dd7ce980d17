package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// SyncLogEntry
// ---------------------------------------------------------------------------

// SyncLogEntry is the outcome of one record inside one job. Entries are
// append-only: once written they are never updated or deleted. A correction
// is a new entry produced by running the sync again.
type SyncLogEntry struct {
	ID            uuid.UUID
	JobID         uuid.UUID
	InstanceID    uuid.UUID
	Entity        EntityType
	Direction     Direction
	LocalID       string
	RemoteID      string
	NaturalKey    string
	Action        SyncAction
	Status        LogStatus
	ErrorCode     string
	Message       string
	ChangedFields []string
	CreatedAt     time.Time
}

// NewSyncLogEntry builds the entry for one record of a job. A nil cause
// yields a success entry; ErrAmbiguousMatch yields a skipped entry; any
// other cause yields an errored entry.
func NewSyncLogEntry(job *SyncJob, action SyncAction, localID, remoteID, naturalKey string, changed []string, cause error) *SyncLogEntry {
	entry := &SyncLogEntry{
		ID:            uuid.New(),
		JobID:         job.ID,
		InstanceID:    job.InstanceID,
		Entity:        job.Entity,
		Direction:     job.Direction,
		LocalID:       localID,
		RemoteID:      remoteID,
		NaturalKey:    naturalKey,
		Action:        action,
		Status:        LogStatusSuccess,
		ChangedFields: changed,
		CreatedAt:     time.Now(),
	}
	if cause != nil {
		entry.ErrorCode = ErrorCode(cause)
		entry.Message = cause.Error()
		if entry.ErrorCode == CodeAmbiguousMatch {
			entry.Status = LogStatusSkipped
			entry.Action = ActionSkip
		} else {
			entry.Status = LogStatusErrored
		}
	}
	return entry
}

// IsRetryable returns true if the entry describes a record that was not synced
func (e *SyncLogEntry) IsRetryable() bool {
	return e.Status == LogStatusErrored || e.Status == LogStatusSkipped
}

// ---------------------------------------------------------------------------
// SyncLog (append-only store)
// ---------------------------------------------------------------------------

// SyncLogFilter defines filtering options for reading the log
type SyncLogFilter struct {
	InstanceID *uuid.UUID
	JobID      *uuid.UUID
	Entity     *EntityType
	Direction  *Direction
	Status     *LogStatus
	From       *time.Time
	To         *time.Time
	Page       int
	PageSize   int
}

// SyncLog is the append-only audit trail. It deliberately exposes no update
// or delete operation.
type SyncLog interface {
	Append(ctx context.Context, entry *SyncLogEntry) error
	FindByID(ctx context.Context, id uuid.UUID) (*SyncLogEntry, error)
	// List returns entries matching the filter, newest first, and the total count
	List(ctx context.Context, filter SyncLogFilter) ([]SyncLogEntry, int64, error)
	Count(ctx context.Context, filter SyncLogFilter) (int64, error)
}
