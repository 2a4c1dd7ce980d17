package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/erp/shopsync/internal/domain/integration"
	"github.com/erp/shopsync/internal/infrastructure/persistence/models"
)

// GormWebhookEventRepository implements integration.WebhookEventRepository using GORM
type GormWebhookEventRepository struct {
	db *gorm.DB
}

// NewGormWebhookEventRepository creates a new GormWebhookEventRepository
func NewGormWebhookEventRepository(db *gorm.DB) *GormWebhookEventRepository {
	return &GormWebhookEventRepository{db: db}
}

// Save creates or updates an event
func (r *GormWebhookEventRepository) Save(ctx context.Context, event *integration.WebhookEvent) error {
	model := &models.WebhookEventModel{}
	model.FromDomain(event)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindByID finds an event by its ID
func (r *GormWebhookEventRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.WebhookEvent, error) {
	var model models.WebhookEventModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrWebhookEventNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll lists events matching the filter, newest first, and the total count
func (r *GormWebhookEventRepository) FindAll(ctx context.Context, filter integration.WebhookEventFilter) ([]integration.WebhookEvent, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.WebhookEventModel{})
	if filter.InstanceID != nil {
		query = query.Where("instance_id = ?", *filter.InstanceID)
	}
	if filter.Topic != nil {
		query = query.Where("topic = ?", *filter.Topic)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset((filter.Page - 1) * filter.PageSize).Limit(filter.PageSize)
	}
	var eventModels []models.WebhookEventModel
	if err := query.Order("received_at DESC").Find(&eventModels).Error; err != nil {
		return nil, 0, err
	}

	events := make([]integration.WebhookEvent, len(eventModels))
	for i := range eventModels {
		events[i] = *eventModels[i].ToDomain()
	}
	return events, total, nil
}

// Ensure GormWebhookEventRepository implements WebhookEventRepository
var _ integration.WebhookEventRepository = (*GormWebhookEventRepository)(nil)

// GormWebhookSubscriptionRepository implements integration.WebhookSubscriptionRepository using GORM
type GormWebhookSubscriptionRepository struct {
	db *gorm.DB
}

// NewGormWebhookSubscriptionRepository creates a new GormWebhookSubscriptionRepository
func NewGormWebhookSubscriptionRepository(db *gorm.DB) *GormWebhookSubscriptionRepository {
	return &GormWebhookSubscriptionRepository{db: db}
}

// Save creates or updates a subscription
func (r *GormWebhookSubscriptionRepository) Save(ctx context.Context, sub *integration.WebhookSubscription) error {
	model := &models.WebhookSubscriptionModel{}
	model.FromDomain(sub)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindByInstance lists the subscriptions of an instance ordered by topic
func (r *GormWebhookSubscriptionRepository) FindByInstance(ctx context.Context, instanceID uuid.UUID) ([]integration.WebhookSubscription, error) {
	var subModels []models.WebhookSubscriptionModel
	if err := r.db.WithContext(ctx).
		Where("instance_id = ?", instanceID).
		Order("topic ASC").
		Find(&subModels).Error; err != nil {
		return nil, err
	}
	subs := make([]integration.WebhookSubscription, len(subModels))
	for i := range subModels {
		subs[i] = *subModels[i].ToDomain()
	}
	return subs, nil
}

// Delete removes a subscription
func (r *GormWebhookSubscriptionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.WebhookSubscriptionModel{}, "id = ?", id).Error
}

// Ensure GormWebhookSubscriptionRepository implements WebhookSubscriptionRepository
var _ integration.WebhookSubscriptionRepository = (*GormWebhookSubscriptionRepository)(nil)
