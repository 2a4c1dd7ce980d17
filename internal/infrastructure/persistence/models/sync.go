package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/erp/shopsync/internal/domain/integration"
)

// Column types are chosen so that the same models migrate on PostgreSQL and
// SQLite; JSON documents are stored as text.

// SyncInstanceModel is the persistence model for the SyncInstance domain entity.
type SyncInstanceModel struct {
	BaseModel
	Name            string                       `gorm:"type:varchar(100);not null"`
	ShopURL         string                       `gorm:"type:varchar(255);not null;uniqueIndex:idx_sync_instance_shop_url"`
	AccessToken     string                       `gorm:"type:varchar(255);not null"`
	WebhookSecret   string                       `gorm:"type:varchar(255)"`
	APIVersion      string                       `gorm:"type:varchar(10);not null"`
	LocationIDsJSON string                       `gorm:"type:text;column:location_ids"`
	AutoSync        bool                         `gorm:"not null;default:false;index"`
	ExportEnabled   bool                         `gorm:"not null;default:false"`
	Status          integration.ConnectionStatus `gorm:"type:varchar(20);not null;default:'unverified'"`
	ShopName        string                       `gorm:"type:varchar(255)"`
	Currency        string                       `gorm:"type:varchar(3)"`
	VerifiedAt      *time.Time
	LastSyncAtJSON  string `gorm:"type:text;column:last_sync_at"`
}

// TableName returns the table name for GORM
func (SyncInstanceModel) TableName() string {
	return "sync_instances"
}

// ToDomain converts the persistence model to a domain SyncInstance entity.
func (m *SyncInstanceModel) ToDomain() *integration.SyncInstance {
	inst := &integration.SyncInstance{
		ID:            m.ID,
		Name:          m.Name,
		ShopURL:       m.ShopURL,
		AccessToken:   m.AccessToken,
		WebhookSecret: m.WebhookSecret,
		APIVersion:    m.APIVersion,
		LocationIDs:   []string{},
		AutoSync:      m.AutoSync,
		ExportEnabled: m.ExportEnabled,
		Status:        m.Status,
		ShopName:      m.ShopName,
		Currency:      m.Currency,
		VerifiedAt:    m.VerifiedAt,
		LastSyncAt:    make(map[integration.EntityType]time.Time),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if m.LocationIDsJSON != "" {
		var ids []string
		if err := json.Unmarshal([]byte(m.LocationIDsJSON), &ids); err == nil {
			inst.LocationIDs = ids
		}
	}
	if m.LastSyncAtJSON != "" {
		var marks map[integration.EntityType]time.Time
		if err := json.Unmarshal([]byte(m.LastSyncAtJSON), &marks); err == nil {
			inst.LastSyncAt = marks
		}
	}
	return inst
}

// FromDomain populates the persistence model from a domain SyncInstance entity.
func (m *SyncInstanceModel) FromDomain(inst *integration.SyncInstance) {
	m.setBase(inst.ID, inst.CreatedAt, inst.UpdatedAt)
	m.Name = inst.Name
	m.ShopURL = inst.ShopURL
	m.AccessToken = inst.AccessToken
	m.WebhookSecret = inst.WebhookSecret
	m.APIVersion = inst.APIVersion
	m.AutoSync = inst.AutoSync
	m.ExportEnabled = inst.ExportEnabled
	m.Status = inst.Status
	m.ShopName = inst.ShopName
	m.Currency = inst.Currency
	m.VerifiedAt = inst.VerifiedAt

	m.LocationIDsJSON = "[]"
	if len(inst.LocationIDs) > 0 {
		if b, err := json.Marshal(inst.LocationIDs); err == nil {
			m.LocationIDsJSON = string(b)
		}
	}
	m.LastSyncAtJSON = "{}"
	if len(inst.LastSyncAt) > 0 {
		if b, err := json.Marshal(inst.LastSyncAt); err == nil {
			m.LastSyncAtJSON = string(b)
		}
	}
}

// CrossReferenceModel links a local record to its remote counterpart.
// Both sides are unique per (instance, entity).
type CrossReferenceModel struct {
	BaseModel
	InstanceID   uuid.UUID              `gorm:"type:uuid;not null;uniqueIndex:idx_xref_local,priority:1;uniqueIndex:idx_xref_remote,priority:1"`
	Entity       integration.EntityType `gorm:"type:varchar(20);not null;uniqueIndex:idx_xref_local,priority:2;uniqueIndex:idx_xref_remote,priority:2"`
	LocalID      string                 `gorm:"type:varchar(64);not null;uniqueIndex:idx_xref_local,priority:3"`
	RemoteID     string                 `gorm:"type:varchar(64);not null;uniqueIndex:idx_xref_remote,priority:3"`
	ParentID     string                 `gorm:"column:parent_remote_id;type:varchar(64);index:idx_xref_parent"`
	NaturalKey   string                 `gorm:"type:varchar(255);index"`
	BaselineJSON string                 `gorm:"type:text;column:baseline"`
	LastSyncedAt time.Time              `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CrossReferenceModel) TableName() string {
	return "sync_cross_references"
}

// ToDomain converts the persistence model to a domain CrossReference.
func (m *CrossReferenceModel) ToDomain() *integration.CrossReference {
	ref := &integration.CrossReference{
		ID:             m.ID,
		InstanceID:     m.InstanceID,
		Entity:         m.Entity,
		LocalID:        m.LocalID,
		RemoteID:       m.RemoteID,
		RemoteParentID: m.ParentID,
		NaturalKey:     m.NaturalKey,
		Baseline:       integration.FieldSet{},
		LastSyncedAt:   m.LastSyncedAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if m.BaselineJSON != "" {
		var baseline integration.FieldSet
		if err := json.Unmarshal([]byte(m.BaselineJSON), &baseline); err == nil && baseline != nil {
			ref.Baseline = baseline
		}
	}
	return ref
}

// FromDomain populates the persistence model from a domain CrossReference.
func (m *CrossReferenceModel) FromDomain(ref *integration.CrossReference) {
	m.setBase(ref.ID, ref.CreatedAt, ref.UpdatedAt)
	m.InstanceID = ref.InstanceID
	m.Entity = ref.Entity
	m.LocalID = ref.LocalID
	m.RemoteID = ref.RemoteID
	m.ParentID = ref.RemoteParentID
	m.NaturalKey = ref.NaturalKey
	m.LastSyncedAt = ref.LastSyncedAt
	m.BaselineJSON = "{}"
	if len(ref.Baseline) > 0 {
		if b, err := json.Marshal(ref.Baseline); err == nil {
			m.BaselineJSON = string(b)
		}
	}
}

// SyncJobModel is the persistence model for the SyncJob domain entity.
type SyncJobModel struct {
	BaseModel
	InstanceID     uuid.UUID              `gorm:"type:uuid;not null;index:idx_sync_job_instance,priority:1"`
	Entity         integration.EntityType `gorm:"type:varchar(20);not null"`
	Direction      integration.Direction  `gorm:"type:varchar(10);not null"`
	Kind           integration.JobKind    `gorm:"type:varchar(20);not null"`
	Trigger        integration.Trigger    `gorm:"type:varchar(20);not null"`
	WebhookEventID *uuid.UUID             `gorm:"type:uuid"`
	Status         integration.JobStatus  `gorm:"type:varchar(20);not null;index"`
	Created        int                    `gorm:"not null;default:0"`
	Updated        int                    `gorm:"not null;default:0"`
	Unchanged      int                    `gorm:"not null;default:0"`
	Skipped        int                    `gorm:"not null;default:0"`
	Errored        int                    `gorm:"not null;default:0"`
	ErrorMessage   string                 `gorm:"type:text"`
	Retryable      bool                   `gorm:"not null;default:false"`
	StartedAt      *time.Time
	FinishedAt     *time.Time
}

// TableName returns the table name for GORM
func (SyncJobModel) TableName() string {
	return "sync_jobs"
}

// ToDomain converts the persistence model to a domain SyncJob.
func (m *SyncJobModel) ToDomain() *integration.SyncJob {
	return &integration.SyncJob{
		ID:             m.ID,
		InstanceID:     m.InstanceID,
		Entity:         m.Entity,
		Direction:      m.Direction,
		Kind:           m.Kind,
		Trigger:        m.Trigger,
		WebhookEventID: m.WebhookEventID,
		Status:         m.Status,
		Created:        m.Created,
		Updated:        m.Updated,
		Unchanged:      m.Unchanged,
		Skipped:        m.Skipped,
		Errored:        m.Errored,
		ErrorMessage:   m.ErrorMessage,
		Retryable:      m.Retryable,
		StartedAt:      m.StartedAt,
		FinishedAt:     m.FinishedAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain SyncJob.
func (m *SyncJobModel) FromDomain(job *integration.SyncJob) {
	m.setBase(job.ID, job.CreatedAt, job.UpdatedAt)
	m.InstanceID = job.InstanceID
	m.Entity = job.Entity
	m.Direction = job.Direction
	m.Kind = job.Kind
	m.Trigger = job.Trigger
	m.WebhookEventID = job.WebhookEventID
	m.Status = job.Status
	m.Created = job.Created
	m.Updated = job.Updated
	m.Unchanged = job.Unchanged
	m.Skipped = job.Skipped
	m.Errored = job.Errored
	m.ErrorMessage = job.ErrorMessage
	m.Retryable = job.Retryable
	m.StartedAt = job.StartedAt
	m.FinishedAt = job.FinishedAt
}

// SyncLogEntryModel is one row of the append-only sync log.
type SyncLogEntryModel struct {
	ID                uuid.UUID              `gorm:"type:uuid;primary_key"`
	JobID             uuid.UUID              `gorm:"type:uuid;not null;index"`
	InstanceID        uuid.UUID              `gorm:"type:uuid;not null;index:idx_sync_log_instance_created,priority:1"`
	Entity            integration.EntityType `gorm:"type:varchar(20);not null"`
	Direction         integration.Direction  `gorm:"type:varchar(10);not null"`
	LocalID           string                 `gorm:"type:varchar(64)"`
	RemoteID          string                 `gorm:"type:varchar(64)"`
	NaturalKey        string                 `gorm:"type:varchar(255)"`
	Action            integration.SyncAction `gorm:"type:varchar(20);not null"`
	Status            integration.LogStatus  `gorm:"type:varchar(20);not null;index"`
	ErrorCode         string                 `gorm:"type:varchar(50)"`
	Message           string                 `gorm:"type:text"`
	ChangedFieldsJSON string                 `gorm:"type:text;column:changed_fields"`
	CreatedAt         time.Time              `gorm:"not null;index:idx_sync_log_instance_created,priority:2"`
}

// TableName returns the table name for GORM
func (SyncLogEntryModel) TableName() string {
	return "sync_log_entries"
}

// ToDomain converts the persistence model to a domain SyncLogEntry.
func (m *SyncLogEntryModel) ToDomain() *integration.SyncLogEntry {
	entry := &integration.SyncLogEntry{
		ID:         m.ID,
		JobID:      m.JobID,
		InstanceID: m.InstanceID,
		Entity:     m.Entity,
		Direction:  m.Direction,
		LocalID:    m.LocalID,
		RemoteID:   m.RemoteID,
		NaturalKey: m.NaturalKey,
		Action:     m.Action,
		Status:     m.Status,
		ErrorCode:  m.ErrorCode,
		Message:    m.Message,
		CreatedAt:  m.CreatedAt,
	}
	if m.ChangedFieldsJSON != "" {
		var changed []string
		if err := json.Unmarshal([]byte(m.ChangedFieldsJSON), &changed); err == nil {
			entry.ChangedFields = changed
		}
	}
	return entry
}

// SyncLogEntryModelFromDomain creates a persistence model from a domain SyncLogEntry.
func SyncLogEntryModelFromDomain(e *integration.SyncLogEntry) *SyncLogEntryModel {
	m := &SyncLogEntryModel{
		ID:                e.ID,
		JobID:             e.JobID,
		InstanceID:        e.InstanceID,
		Entity:            e.Entity,
		Direction:         e.Direction,
		LocalID:           e.LocalID,
		RemoteID:          e.RemoteID,
		NaturalKey:        e.NaturalKey,
		Action:            e.Action,
		Status:            e.Status,
		ErrorCode:         e.ErrorCode,
		Message:           e.Message,
		ChangedFieldsJSON: "[]",
		CreatedAt:         e.CreatedAt,
	}
	if len(e.ChangedFields) > 0 {
		if b, err := json.Marshal(e.ChangedFields); err == nil {
			m.ChangedFieldsJSON = string(b)
		}
	}
	return m
}

// WebhookEventModel is the persistence model for received webhook deliveries.
type WebhookEventModel struct {
	ID             uuid.UUID                 `gorm:"type:uuid;primary_key"`
	InstanceID     uuid.UUID                 `gorm:"type:uuid;not null;index:idx_webhook_event_instance,priority:1"`
	RemoteEventID  string                    `gorm:"type:varchar(100);index:idx_webhook_event_instance,priority:2"`
	Topic          integration.WebhookTopic  `gorm:"type:varchar(50);not null"`
	ShopDomain     string                    `gorm:"type:varchar(255)"`
	RemoteEntityID string                    `gorm:"type:varchar(64)"`
	Payload        string                    `gorm:"type:text"`
	Status         integration.WebhookStatus `gorm:"type:varchar(20);not null;index"`
	Reason         string                    `gorm:"type:text"`
	JobID          *uuid.UUID                `gorm:"type:uuid"`
	ReceivedAt     time.Time                 `gorm:"not null"`
	ProcessedAt    *time.Time
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (WebhookEventModel) TableName() string {
	return "webhook_events"
}

// ToDomain converts the persistence model to a domain WebhookEvent.
func (m *WebhookEventModel) ToDomain() *integration.WebhookEvent {
	return &integration.WebhookEvent{
		ID:             m.ID,
		InstanceID:     m.InstanceID,
		RemoteEventID:  m.RemoteEventID,
		Topic:          m.Topic,
		ShopDomain:     m.ShopDomain,
		RemoteEntityID: m.RemoteEntityID,
		Payload:        integration.RemotePayload(m.Payload),
		Status:         m.Status,
		Reason:         m.Reason,
		JobID:          m.JobID,
		ReceivedAt:     m.ReceivedAt,
		ProcessedAt:    m.ProcessedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain WebhookEvent.
func (m *WebhookEventModel) FromDomain(e *integration.WebhookEvent) {
	m.ID = e.ID
	m.InstanceID = e.InstanceID
	m.RemoteEventID = e.RemoteEventID
	m.Topic = e.Topic
	m.ShopDomain = e.ShopDomain
	m.RemoteEntityID = e.RemoteEntityID
	m.Payload = string(e.Payload)
	m.Status = e.Status
	m.Reason = e.Reason
	m.JobID = e.JobID
	m.ReceivedAt = e.ReceivedAt
	m.ProcessedAt = e.ProcessedAt
	m.UpdatedAt = e.UpdatedAt
}

// WebhookSubscriptionModel records a webhook registered on the remote store.
type WebhookSubscriptionModel struct {
	ID         uuid.UUID                `gorm:"type:uuid;primary_key"`
	InstanceID uuid.UUID                `gorm:"type:uuid;not null;uniqueIndex:idx_webhook_sub_topic,priority:1"`
	Topic      integration.WebhookTopic `gorm:"type:varchar(50);not null;uniqueIndex:idx_webhook_sub_topic,priority:2"`
	RemoteID   string                   `gorm:"type:varchar(64);not null"`
	Address    string                   `gorm:"type:varchar(512);not null"`
	CreatedAt  time.Time                `gorm:"not null"`
}

// TableName returns the table name for GORM
func (WebhookSubscriptionModel) TableName() string {
	return "webhook_subscriptions"
}

// ToDomain converts the persistence model to a domain WebhookSubscription.
func (m *WebhookSubscriptionModel) ToDomain() *integration.WebhookSubscription {
	return &integration.WebhookSubscription{
		ID:         m.ID,
		InstanceID: m.InstanceID,
		Topic:      m.Topic,
		RemoteID:   m.RemoteID,
		Address:    m.Address,
		CreatedAt:  m.CreatedAt,
	}
}

// FromDomain populates the persistence model from a domain WebhookSubscription.
func (m *WebhookSubscriptionModel) FromDomain(s *integration.WebhookSubscription) {
	m.ID = s.ID
	m.InstanceID = s.InstanceID
	m.Topic = s.Topic
	m.RemoteID = s.RemoteID
	m.Address = s.Address
	m.CreatedAt = s.CreatedAt
}
