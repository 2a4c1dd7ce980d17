package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/erp/shopsync/internal/domain/integration"
	"github.com/erp/shopsync/internal/infrastructure/persistence/models"
)

// GormCrossReferenceRepository implements integration.CrossReferenceRepository using GORM
type GormCrossReferenceRepository struct {
	db *gorm.DB
}

// NewGormCrossReferenceRepository creates a new GormCrossReferenceRepository
func NewGormCrossReferenceRepository(db *gorm.DB) *GormCrossReferenceRepository {
	return &GormCrossReferenceRepository{db: db}
}

// FindByLocalID finds the reference of a local record
func (r *GormCrossReferenceRepository) FindByLocalID(ctx context.Context, instanceID uuid.UUID, entity integration.EntityType, localID string) (*integration.CrossReference, error) {
	return r.findOne(r.db.WithContext(ctx).
		Where("instance_id = ? AND entity = ? AND local_id = ?", instanceID, entity, localID))
}

// FindByRemoteID finds the reference of a remote record
func (r *GormCrossReferenceRepository) FindByRemoteID(ctx context.Context, instanceID uuid.UUID, entity integration.EntityType, remoteID string) (*integration.CrossReference, error) {
	return r.findOne(r.db.WithContext(ctx).
		Where("instance_id = ? AND entity = ? AND remote_id = ?", instanceID, entity, remoteID))
}

// FindByRemoteParent lists the references of the parts of one remote resource
func (r *GormCrossReferenceRepository) FindByRemoteParent(ctx context.Context, instanceID uuid.UUID, entity integration.EntityType, parentID string) ([]integration.CrossReference, error) {
	if parentID == "" {
		return nil, nil
	}
	var rows []models.CrossReferenceModel
	if err := r.db.WithContext(ctx).
		Where("instance_id = ? AND entity = ? AND parent_remote_id = ?", instanceID, entity, parentID).
		Order("remote_id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]integration.CrossReference, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

func (r *GormCrossReferenceRepository) findOne(query *gorm.DB) (*integration.CrossReference, error) {
	var model models.CrossReferenceModel
	if err := query.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrCrossReferenceNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save inserts or updates a reference. Either id being linked to another
// counterpart already is a conflict.
func (r *GormCrossReferenceRepository) Save(ctx context.Context, ref *integration.CrossReference) error {
	model := &models.CrossReferenceModel{}
	model.FromDomain(ref)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var clashes int64
		if err := tx.Model(&models.CrossReferenceModel{}).
			Where("instance_id = ? AND entity = ? AND id <> ?", ref.InstanceID, ref.Entity, ref.ID).
			Where("local_id = ? OR remote_id = ?", ref.LocalID, ref.RemoteID).
			Count(&clashes).Error; err != nil {
			return err
		}
		if clashes > 0 {
			return integration.ErrCrossReferenceConflict
		}
		return tx.Save(model).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return integration.ErrCrossReferenceConflict
	}
	return err
}

// CountByInstance counts the references of one entity type for an instance
func (r *GormCrossReferenceRepository) CountByInstance(ctx context.Context, instanceID uuid.UUID, entity integration.EntityType) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.CrossReferenceModel{}).
		Where("instance_id = ? AND entity = ?", instanceID, entity).
		Count(&count).Error
	return count, err
}

// Ensure GormCrossReferenceRepository implements CrossReferenceRepository
var _ integration.CrossReferenceRepository = (*GormCrossReferenceRepository)(nil)
