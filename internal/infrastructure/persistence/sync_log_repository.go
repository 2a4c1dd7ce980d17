package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/erp/shopsync/internal/domain/integration"
	"github.com/erp/shopsync/internal/infrastructure/persistence/models"
)

// GormSyncLog implements the append-only integration.SyncLog using GORM.
// It only ever inserts rows.
type GormSyncLog struct {
	db *gorm.DB
}

// NewGormSyncLog creates a new GormSyncLog
func NewGormSyncLog(db *gorm.DB) *GormSyncLog {
	return &GormSyncLog{db: db}
}

// Append writes one entry, assigning its id and timestamp when missing
func (r *GormSyncLog) Append(ctx context.Context, entry *integration.SyncLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(models.SyncLogEntryModelFromDomain(entry)).Error
}

// FindByID finds an entry by its ID
func (r *GormSyncLog) FindByID(ctx context.Context, id uuid.UUID) (*integration.SyncLogEntry, error) {
	var model models.SyncLogEntryModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrLogEntryNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// List returns entries matching the filter, newest first, and the total count
func (r *GormSyncLog) List(ctx context.Context, filter integration.SyncLogFilter) ([]integration.SyncLogEntry, int64, error) {
	total, err := r.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	var entryModels []models.SyncLogEntryModel
	if err := r.applyFilter(r.db.WithContext(ctx).Model(&models.SyncLogEntryModel{}), filter).
		Find(&entryModels).Error; err != nil {
		return nil, 0, err
	}

	entries := make([]integration.SyncLogEntry, len(entryModels))
	for i := range entryModels {
		entries[i] = *entryModels[i].ToDomain()
	}
	return entries, total, nil
}

// Count counts entries matching the filter
func (r *GormSyncLog) Count(ctx context.Context, filter integration.SyncLogFilter) (int64, error) {
	var total int64
	err := r.applyFilterWithoutPagination(r.db.WithContext(ctx).Model(&models.SyncLogEntryModel{}), filter).
		Count(&total).Error
	return total, err
}

func (r *GormSyncLog) applyFilter(query *gorm.DB, filter integration.SyncLogFilter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)
	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset((filter.Page - 1) * filter.PageSize).Limit(filter.PageSize)
	}
	return query.Order("created_at DESC")
}

func (r *GormSyncLog) applyFilterWithoutPagination(query *gorm.DB, filter integration.SyncLogFilter) *gorm.DB {
	if filter.InstanceID != nil {
		query = query.Where("instance_id = ?", *filter.InstanceID)
	}
	if filter.JobID != nil {
		query = query.Where("job_id = ?", *filter.JobID)
	}
	if filter.Entity != nil {
		query = query.Where("entity = ?", *filter.Entity)
	}
	if filter.Direction != nil {
		query = query.Where("direction = ?", *filter.Direction)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at <= ?", *filter.To)
	}
	return query
}

// Ensure GormSyncLog implements SyncLog
var _ integration.SyncLog = (*GormSyncLog)(nil)
