package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/erp/shopsync/internal/domain/integration"
	"github.com/erp/shopsync/internal/infrastructure/persistence/models"
)

// GormInstanceRepository implements integration.InstanceRepository using GORM
type GormInstanceRepository struct {
	db *gorm.DB
}

// NewGormInstanceRepository creates a new GormInstanceRepository
func NewGormInstanceRepository(db *gorm.DB) *GormInstanceRepository {
	return &GormInstanceRepository{db: db}
}

// Save creates or updates an instance
func (r *GormInstanceRepository) Save(ctx context.Context, instance *integration.SyncInstance) error {
	model := &models.SyncInstanceModel{}
	model.FromDomain(instance)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindByID finds an instance by its ID
func (r *GormInstanceRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.SyncInstance, error) {
	var model models.SyncInstanceModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrInstanceNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByShopURL finds an instance by its normalized shop URL
func (r *GormInstanceRepository) FindByShopURL(ctx context.Context, shopURL string) (*integration.SyncInstance, error) {
	var model models.SyncInstanceModel
	if err := r.db.WithContext(ctx).Where("shop_url = ?", shopURL).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrInstanceNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll lists instances matching the filter and the total count
func (r *GormInstanceRepository) FindAll(ctx context.Context, filter integration.InstanceFilter) ([]integration.SyncInstance, int64, error) {
	var total int64
	if err := r.applyFilterWithoutPagination(r.db.WithContext(ctx).Model(&models.SyncInstanceModel{}), filter).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var instanceModels []models.SyncInstanceModel
	if err := r.applyFilter(r.db.WithContext(ctx).Model(&models.SyncInstanceModel{}), filter).
		Find(&instanceModels).Error; err != nil {
		return nil, 0, err
	}

	instances := make([]integration.SyncInstance, len(instanceModels))
	for i := range instanceModels {
		instances[i] = *instanceModels[i].ToDomain()
	}
	return instances, total, nil
}

func (r *GormInstanceRepository) applyFilter(query *gorm.DB, filter integration.InstanceFilter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)
	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset((filter.Page - 1) * filter.PageSize).Limit(filter.PageSize)
	}
	return query.Order("name ASC")
}

func (r *GormInstanceRepository) applyFilterWithoutPagination(query *gorm.DB, filter integration.InstanceFilter) *gorm.DB {
	if filter.AutoSync != nil {
		query = query.Where("auto_sync = ?", *filter.AutoSync)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	return query
}

// Ensure GormInstanceRepository implements InstanceRepository
var _ integration.InstanceRepository = (*GormInstanceRepository)(nil)
