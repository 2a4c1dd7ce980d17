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

// GormJobRepository implements integration.JobRepository using GORM
type GormJobRepository struct {
	db *gorm.DB
}

// NewGormJobRepository creates a new GormJobRepository
func NewGormJobRepository(db *gorm.DB) *GormJobRepository {
	return &GormJobRepository{db: db}
}

// Save creates or updates a job
func (r *GormJobRepository) Save(ctx context.Context, job *integration.SyncJob) error {
	model := &models.SyncJobModel{}
	model.FromDomain(job)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindByID finds a job by its ID
func (r *GormJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.SyncJob, error) {
	var model models.SyncJobModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrJobNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll lists jobs matching the filter, newest first, and the total count
func (r *GormJobRepository) FindAll(ctx context.Context, filter integration.JobFilter) ([]integration.SyncJob, int64, error) {
	var total int64
	if err := r.applyFilterWithoutPagination(r.db.WithContext(ctx).Model(&models.SyncJobModel{}), filter).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var jobModels []models.SyncJobModel
	if err := r.applyFilter(r.db.WithContext(ctx).Model(&models.SyncJobModel{}), filter).
		Find(&jobModels).Error; err != nil {
		return nil, 0, err
	}

	jobs := make([]integration.SyncJob, len(jobModels))
	for i := range jobModels {
		jobs[i] = *jobModels[i].ToDomain()
	}
	return jobs, total, nil
}

// Status reads the status column only
func (r *GormJobRepository) Status(ctx context.Context, id uuid.UUID) (integration.JobStatus, error) {
	var model models.SyncJobModel
	if err := r.db.WithContext(ctx).Select("status").First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", integration.ErrJobNotFound
		}
		return "", err
	}
	return model.Status, nil
}

// SaveProgress writes the counters, leaving the status untouched
func (r *GormJobRepository) SaveProgress(ctx context.Context, job *integration.SyncJob) error {
	result := r.db.WithContext(ctx).Model(&models.SyncJobModel{}).
		Where("id = ?", job.ID).
		Updates(map[string]any{
			"created":    job.Created,
			"updated":    job.Updated,
			"unchanged":  job.Unchanged,
			"skipped":    job.Skipped,
			"errored":    job.Errored,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrJobNotFound
	}
	return nil
}

// TransitionStatus is a compare-and-set on the status column
func (r *GormJobRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to integration.JobStatus) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now(),
	}
	switch {
	case to == integration.JobStatusRunning:
		updates["started_at"] = time.Now()
	case to.IsTerminal():
		updates["finished_at"] = time.Now()
	}
	result := r.db.WithContext(ctx).Model(&models.SyncJobModel{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *GormJobRepository) applyFilter(query *gorm.DB, filter integration.JobFilter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)
	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset((filter.Page - 1) * filter.PageSize).Limit(filter.PageSize)
	}
	return query.Order("created_at DESC")
}

func (r *GormJobRepository) applyFilterWithoutPagination(query *gorm.DB, filter integration.JobFilter) *gorm.DB {
	if filter.InstanceID != nil {
		query = query.Where("instance_id = ?", *filter.InstanceID)
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
	return query
}

// Ensure GormJobRepository implements JobRepository
var _ integration.JobRepository = (*GormJobRepository)(nil)
