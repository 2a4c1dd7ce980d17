package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/erp/shopsync/internal/domain/integration"
	"github.com/erp/shopsync/internal/infrastructure/persistence/models"
)

// localBinding ties an entity type to its local table
type localBinding struct {
	newModel func() models.LocalModel
	find     func(db *gorm.DB) ([]models.LocalModel, error)
	// byKey narrows a query to the records carrying a natural key
	byKey func(db *gorm.DB, key string) *gorm.DB
}

func findLocal[T any, PT interface {
	*T
	models.LocalModel
}](db *gorm.DB) ([]models.LocalModel, error) {
	var rows []T
	if err := db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.LocalModel, len(rows))
	for i := range rows {
		out[i] = PT(&rows[i])
	}
	return out, nil
}

var localBindings = map[integration.EntityType]localBinding{
	integration.EntityProduct: {
		newModel: func() models.LocalModel { return &models.LocalProduct{} },
		find:     findLocal[models.LocalProduct],
		byKey: func(db *gorm.DB, key string) *gorm.DB {
			return db.Where("sku = ?", strings.TrimSpace(key))
		},
	},
	integration.EntityCustomer: {
		newModel: func() models.LocalModel { return &models.LocalPartner{} },
		find:     findLocal[models.LocalPartner],
		byKey: func(db *gorm.DB, key string) *gorm.DB {
			return db.Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(key)))
		},
	},
	integration.EntityOrder: {
		newModel: func() models.LocalModel { return &models.LocalSaleOrder{} },
		find:     findLocal[models.LocalSaleOrder],
		byKey: func(db *gorm.DB, key string) *gorm.DB {
			key = strings.TrimPrefix(strings.TrimSpace(key), "#")
			return db.Where("order_number IN ?", []string{key, "#" + key})
		},
	},
	integration.EntityInventory: {
		newModel: func() models.LocalModel { return &models.LocalStockQuant{} },
		find:     findLocal[models.LocalStockQuant],
		byKey: func(db *gorm.DB, key string) *gorm.DB {
			item, location, _ := strings.Cut(key, ":")
			return db.Where("inventory_item_id = ? AND location_id = ?", item, location)
		},
	},
	integration.EntityCollection: {
		newModel: func() models.LocalModel { return &models.LocalCollection{} },
		find:     findLocal[models.LocalCollection],
		byKey: func(db *gorm.DB, key string) *gorm.DB {
			return db.Where("LOWER(handle) = ?", strings.ToLower(strings.TrimSpace(key)))
		},
	},
	integration.EntityPriceRule: {
		newModel: func() models.LocalModel { return &models.LocalDiscount{} },
		find:     findLocal[models.LocalDiscount],
		// the key is the discount code, or the title of a rule without one
		byKey: func(db *gorm.DB, key string) *gorm.DB {
			key = strings.TrimSpace(key)
			return db.Where("UPPER(code) = ? OR ((code IS NULL OR code = '') AND name = ?)", strings.ToUpper(key), key)
		},
	},
}

// GormLocalStore implements integration.LocalStore over the host system's tables
type GormLocalStore struct {
	db *gorm.DB
}

// NewGormLocalStore creates a new GormLocalStore
func NewGormLocalStore(db *gorm.DB) *GormLocalStore {
	return &GormLocalStore{db: db}
}

func bindingFor(entity integration.EntityType) (localBinding, error) {
	b, ok := localBindings[entity]
	if !ok {
		return localBinding{}, fmt.Errorf("%w: %s", integration.ErrInvalidEntityType, entity)
	}
	return b, nil
}

func toLocalRecord(entity integration.EntityType, m models.LocalModel) integration.LocalRecord {
	return integration.LocalRecord{
		ID:        m.RecordID().String(),
		Entity:    entity,
		Fields:    m.Fields(),
		Active:    m.IsActive(),
		UpdatedAt: m.ModifiedAt(),
	}
}

func toLocalRecords(entity integration.EntityType, rows []models.LocalModel) []integration.LocalRecord {
	out := make([]integration.LocalRecord, len(rows))
	for i, m := range rows {
		out[i] = toLocalRecord(entity, m)
	}
	return out
}

// List returns active records ordered by id
func (s *GormLocalStore) List(ctx context.Context, entity integration.EntityType, offset, limit int) ([]integration.LocalRecord, error) {
	b, err := bindingFor(entity)
	if err != nil {
		return nil, err
	}
	query := s.db.WithContext(ctx).Where("active = ?", true).Order("id ASC").Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}
	rows, err := b.find(query)
	if err != nil {
		return nil, err
	}
	return toLocalRecords(entity, rows), nil
}

func (s *GormLocalStore) load(ctx context.Context, b localBinding, id string) (models.LocalModel, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", integration.ErrRecordNotFound, id)
	}
	m := b.newModel()
	if err := s.db.WithContext(ctx).First(m, "id = ?", uid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrRecordNotFound
		}
		return nil, err
	}
	return m, nil
}

// Get returns a record by id, including deactivated ones
func (s *GormLocalStore) Get(ctx context.Context, entity integration.EntityType, id string) (*integration.LocalRecord, error) {
	b, err := bindingFor(entity)
	if err != nil {
		return nil, err
	}
	m, err := s.load(ctx, b, id)
	if err != nil {
		return nil, err
	}
	rec := toLocalRecord(entity, m)
	return &rec, nil
}

// FindByKey returns every active record whose natural key equals key
func (s *GormLocalStore) FindByKey(ctx context.Context, entity integration.EntityType, key string) ([]integration.LocalRecord, error) {
	b, err := bindingFor(entity)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(key) == "" {
		return nil, nil
	}
	rows, err := b.find(b.byKey(s.db.WithContext(ctx), key).Where("active = ?", true).Order("id ASC"))
	if err != nil {
		return nil, err
	}
	return toLocalRecords(entity, rows), nil
}

// Create inserts a new active record
func (s *GormLocalStore) Create(ctx context.Context, entity integration.EntityType, fields integration.FieldSet) (*integration.LocalRecord, error) {
	b, err := bindingFor(entity)
	if err != nil {
		return nil, err
	}
	m := b.newModel()
	if err := m.ApplyFields(fields); err != nil {
		return nil, err
	}
	m.Touch(true, time.Now())
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	rec := toLocalRecord(entity, m)
	return &rec, nil
}

// Update writes only the changed fields
func (s *GormLocalStore) Update(ctx context.Context, entity integration.EntityType, id string, changes integration.FieldSet) (*integration.LocalRecord, error) {
	b, err := bindingFor(entity)
	if err != nil {
		return nil, err
	}
	m, err := s.load(ctx, b, id)
	if err != nil {
		return nil, err
	}
	if err := m.ApplyFields(changes); err != nil {
		return nil, err
	}
	m.Touch(m.IsActive(), time.Now())

	columns := m.Columns(changes.Keys())
	if err := s.db.WithContext(ctx).Model(m).Select(columns).Updates(m).Error; err != nil {
		return nil, err
	}
	rec := toLocalRecord(entity, m)
	return &rec, nil
}

// Deactivate archives a record; it stays readable by id
func (s *GormLocalStore) Deactivate(ctx context.Context, entity integration.EntityType, id string) error {
	b, err := bindingFor(entity)
	if err != nil {
		return err
	}
	m, err := s.load(ctx, b, id)
	if err != nil {
		return err
	}
	m.Touch(false, time.Now())
	return s.db.WithContext(ctx).Model(m).Select("active", "updated_at").Updates(m).Error
}

var _ integration.LocalStore = (*GormLocalStore)(nil)
