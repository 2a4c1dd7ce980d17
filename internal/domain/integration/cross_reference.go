package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// CrossReference Entity
// ---------------------------------------------------------------------------

// CrossReference links one local record to one remote record for an
// instance. The pair is unique in both directions: a local record has at
// most one remote counterpart per instance and vice versa.
type CrossReference struct {
	ID         uuid.UUID
	InstanceID uuid.UUID
	Entity     EntityType
	LocalID    string
	RemoteID   string
	// RemoteParentID is the remote resource the record is part of, the
	// product of a variant. Empty for top level resources.
	RemoteParentID string
	NaturalKey     string
	// Baseline is the field set both sides agreed on at the last sync.
	// The conflict policy compares each side against it to tell which
	// side changed a field.
	Baseline     FieldSet
	LastSyncedAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewCrossReference creates a cross reference after a successful create or match
func NewCrossReference(instanceID uuid.UUID, entity EntityType, localID, remoteID, naturalKey string, baseline FieldSet) (*CrossReference, error) {
	if instanceID == uuid.Nil {
		return nil, ErrInstanceNotFound
	}
	if !entity.IsValid() {
		return nil, ErrInvalidEntityType
	}
	if localID == "" || remoteID == "" {
		return nil, fmt.Errorf("%w: cross reference needs both local and remote ids", ErrValidation)
	}
	now := time.Now()
	return &CrossReference{
		ID:           uuid.New(),
		InstanceID:   instanceID,
		Entity:       entity,
		LocalID:      localID,
		RemoteID:     remoteID,
		NaturalKey:   naturalKey,
		Baseline:     baseline.Clone(),
		LastSyncedAt: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// RecordSync refreshes the baseline after both sides were brought in line
func (x *CrossReference) RecordSync(baseline FieldSet, naturalKey string) {
	x.Baseline = x.Baseline.Merge(baseline)
	if naturalKey != "" {
		x.NaturalKey = naturalKey
	}
	now := time.Now()
	x.LastSyncedAt = now
	x.UpdatedAt = now
}

// HasBaseline reports whether a previous sync recorded agreed values
func (x *CrossReference) HasBaseline() bool {
	return x != nil && len(x.Baseline) > 0
}

// ---------------------------------------------------------------------------
// Repository
// ---------------------------------------------------------------------------

// CrossReferenceRepository is the keyed local id ⇄ remote id store.
// Only the sync engine writes to it, and only while holding the
// (instance, entity type) lock.
type CrossReferenceRepository interface {
	FindByLocalID(ctx context.Context, instanceID uuid.UUID, entity EntityType, localID string) (*CrossReference, error)
	FindByRemoteID(ctx context.Context, instanceID uuid.UUID, entity EntityType, remoteID string) (*CrossReference, error)
	// FindByRemoteParent returns the references of every record that is
	// part of one remote resource
	FindByRemoteParent(ctx context.Context, instanceID uuid.UUID, entity EntityType, parentID string) ([]CrossReference, error)
	// Save inserts or updates the reference. It returns
	// ErrCrossReferenceConflict when either id is already linked to a
	// different counterpart.
	Save(ctx context.Context, ref *CrossReference) error
	CountByInstance(ctx context.Context, instanceID uuid.UUID, entity EntityType) (int64, error)
}
