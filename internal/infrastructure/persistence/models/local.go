package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/erp/shopsync/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Local business records
// ---------------------------------------------------------------------------
//
// These models are the host system's own tables. Each one carries an explicit
// table binding its columns to the field names used by the sync engine, so the
// adapter never reflects over struct attributes.

// LocalModel is implemented by every local record model
type LocalModel interface {
	TableName() string
	RecordID() uuid.UUID
	IsActive() bool
	ModifiedAt() time.Time
	// Fields returns the synchronized fields as canonical strings
	Fields() integration.FieldSet
	// ApplyFields sets the given fields; unknown names are ignored
	ApplyFields(fields integration.FieldSet) error
	// Columns returns the columns written for the given field names
	Columns(fields []string) []string
	Touch(active bool, now time.Time)
}

// LocalBase holds the columns every local record shares
type LocalBase struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	Active    bool      `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// RecordID returns the record id
func (b *LocalBase) RecordID() uuid.UUID { return b.ID }

// IsActive reports whether the record was not deactivated
func (b *LocalBase) IsActive() bool { return b.Active }

// ModifiedAt returns the last modification time
func (b *LocalBase) ModifiedAt() time.Time { return b.UpdatedAt }

// Touch initializes a new record or stamps a modification
func (b *LocalBase) Touch(active bool, now time.Time) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
		b.CreatedAt = now
	}
	b.Active = active
	b.UpdatedAt = now
}

// LocalProduct is one sellable product variant of the host system
type LocalProduct struct {
	LocalBase
	Name             string              `gorm:"type:varchar(255);not null"`
	Description      string              `gorm:"type:text"`
	Vendor           string              `gorm:"type:varchar(255)"`
	ProductType      string              `gorm:"type:varchar(255)"`
	Tags             string              `gorm:"type:text"`
	Status           string              `gorm:"type:varchar(20)"`
	SKU              string              `gorm:"column:sku;type:varchar(100);index"`
	ListPrice        decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	Barcode          string              `gorm:"type:varchar(100)"`
	Weight           decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	WeightUnit       string              `gorm:"type:varchar(5)"`
	InventoryPolicy  string              `gorm:"type:varchar(20)"`
	Taxable          *bool               `gorm:"column:taxable"`
	RequiresShipping *bool               `gorm:"column:requires_shipping"`
	VariantTitle     string              `gorm:"type:varchar(255)"`
	InventoryItemID  string              `gorm:"type:varchar(64)"`
}

// TableName returns the table name for GORM
func (LocalProduct) TableName() string {
	return "products"
}

var localProductColumns = columnTable[LocalProduct]{
	"name":              textColumn("name", func(m *LocalProduct) *string { return &m.Name }),
	"description":       textColumn("description", func(m *LocalProduct) *string { return &m.Description }),
	"vendor":            textColumn("vendor", func(m *LocalProduct) *string { return &m.Vendor }),
	"product_type":      textColumn("product_type", func(m *LocalProduct) *string { return &m.ProductType }),
	"tags":              textColumn("tags", func(m *LocalProduct) *string { return &m.Tags }),
	"status":            textColumn("status", func(m *LocalProduct) *string { return &m.Status }),
	"sku":               textColumn("sku", func(m *LocalProduct) *string { return &m.SKU }),
	"list_price":        decimalColumn("list_price", func(m *LocalProduct) *decimal.NullDecimal { return &m.ListPrice }),
	"barcode":           textColumn("barcode", func(m *LocalProduct) *string { return &m.Barcode }),
	"weight":            decimalColumn("weight", func(m *LocalProduct) *decimal.NullDecimal { return &m.Weight }),
	"weight_unit":       textColumn("weight_unit", func(m *LocalProduct) *string { return &m.WeightUnit }),
	"inventory_policy":  textColumn("inventory_policy", func(m *LocalProduct) *string { return &m.InventoryPolicy }),
	"taxable":           boolColumn("taxable", func(m *LocalProduct) **bool { return &m.Taxable }),
	"requires_shipping": boolColumn("requires_shipping", func(m *LocalProduct) **bool { return &m.RequiresShipping }),
	"variant_title":     textColumn("variant_title", func(m *LocalProduct) *string { return &m.VariantTitle }),
	"inventory_item_id": textColumn("inventory_item_id", func(m *LocalProduct) *string { return &m.InventoryItemID }),
}

func (m *LocalProduct) Fields() integration.FieldSet { return localProductColumns.fields(m) }
func (m *LocalProduct) ApplyFields(f integration.FieldSet) error {
	return localProductColumns.apply(m, f)
}
func (m *LocalProduct) Columns(fields []string) []string { return localProductColumns.columns(fields) }

// LocalPartner is a customer contact of the host system
type LocalPartner struct {
	LocalBase
	Email            string              `gorm:"type:varchar(255);index"`
	FirstName        string              `gorm:"type:varchar(100)"`
	LastName         string              `gorm:"type:varchar(100)"`
	Name             string              `gorm:"type:varchar(255)"`
	Phone            string              `gorm:"type:varchar(50)"`
	AcceptsMarketing *bool               `gorm:"column:accepts_marketing"`
	VerifiedEmail    *bool               `gorm:"column:verified_email"`
	OrdersCount      *int64              `gorm:"column:orders_count"`
	TotalSpent       decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	State            string              `gorm:"type:varchar(20)"`
	Tags             string              `gorm:"type:text"`
	Note             string              `gorm:"type:text"`
	Street           string              `gorm:"type:varchar(255)"`
	City             string              `gorm:"type:varchar(100)"`
	Zip              string              `gorm:"type:varchar(20)"`
	ProvinceCode     string              `gorm:"type:varchar(10)"`
	CountryCode      string              `gorm:"type:varchar(2)"`
}

// TableName returns the table name for GORM
func (LocalPartner) TableName() string {
	return "partners"
}

var localPartnerColumns = columnTable[LocalPartner]{
	"email":             textColumn("email", func(m *LocalPartner) *string { return &m.Email }),
	"first_name":        textColumn("first_name", func(m *LocalPartner) *string { return &m.FirstName }),
	"last_name":         textColumn("last_name", func(m *LocalPartner) *string { return &m.LastName }),
	"name":              textColumn("name", func(m *LocalPartner) *string { return &m.Name }),
	"phone":             textColumn("phone", func(m *LocalPartner) *string { return &m.Phone }),
	"accepts_marketing": boolColumn("accepts_marketing", func(m *LocalPartner) **bool { return &m.AcceptsMarketing }),
	"verified_email":    boolColumn("verified_email", func(m *LocalPartner) **bool { return &m.VerifiedEmail }),
	"orders_count":      intColumn("orders_count", func(m *LocalPartner) **int64 { return &m.OrdersCount }),
	"total_spent":       decimalColumn("total_spent", func(m *LocalPartner) *decimal.NullDecimal { return &m.TotalSpent }),
	"state":             textColumn("state", func(m *LocalPartner) *string { return &m.State }),
	"tags":              textColumn("tags", func(m *LocalPartner) *string { return &m.Tags }),
	"note":              textColumn("note", func(m *LocalPartner) *string { return &m.Note }),
	"street":            textColumn("street", func(m *LocalPartner) *string { return &m.Street }),
	"city":              textColumn("city", func(m *LocalPartner) *string { return &m.City }),
	"zip":               textColumn("zip", func(m *LocalPartner) *string { return &m.Zip }),
	"province_code":     textColumn("province_code", func(m *LocalPartner) *string { return &m.ProvinceCode }),
	"country_code":      textColumn("country_code", func(m *LocalPartner) *string { return &m.CountryCode }),
}

func (m *LocalPartner) Fields() integration.FieldSet { return localPartnerColumns.fields(m) }
func (m *LocalPartner) ApplyFields(f integration.FieldSet) error {
	return localPartnerColumns.apply(m, f)
}
func (m *LocalPartner) Columns(fields []string) []string { return localPartnerColumns.columns(fields) }

// LocalSaleOrder is a sales order of the host system
type LocalSaleOrder struct {
	LocalBase
	OrderNumber       string              `gorm:"type:varchar(50);index"`
	Name              string              `gorm:"type:varchar(50)"`
	PartnerEmail      string              `gorm:"type:varchar(255)"`
	FinancialStatus   string              `gorm:"type:varchar(30)"`
	FulfillmentStatus string              `gorm:"type:varchar(30)"`
	Currency          string              `gorm:"type:varchar(3)"`
	TotalPrice        decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	SubtotalPrice     decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	TotalTax          decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	TotalDiscounts    decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	TotalShipping     decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	Note              string              `gorm:"type:text"`
	Tags              string              `gorm:"type:text"`
	CancelReason      string              `gorm:"type:varchar(50)"`
	CancelledAt       *time.Time
	ClosedAt          *time.Time
	ProcessedAt       *time.Time
	LineItems         string `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (LocalSaleOrder) TableName() string {
	return "sale_orders"
}

var localSaleOrderColumns = columnTable[LocalSaleOrder]{
	"order_number":       textColumn("order_number", func(m *LocalSaleOrder) *string { return &m.OrderNumber }),
	"name":               textColumn("name", func(m *LocalSaleOrder) *string { return &m.Name }),
	"partner_email":      textColumn("partner_email", func(m *LocalSaleOrder) *string { return &m.PartnerEmail }),
	"financial_status":   textColumn("financial_status", func(m *LocalSaleOrder) *string { return &m.FinancialStatus }),
	"fulfillment_status": textColumn("fulfillment_status", func(m *LocalSaleOrder) *string { return &m.FulfillmentStatus }),
	"currency":           textColumn("currency", func(m *LocalSaleOrder) *string { return &m.Currency }),
	"total_price":        decimalColumn("total_price", func(m *LocalSaleOrder) *decimal.NullDecimal { return &m.TotalPrice }),
	"subtotal_price":     decimalColumn("subtotal_price", func(m *LocalSaleOrder) *decimal.NullDecimal { return &m.SubtotalPrice }),
	"total_tax":          decimalColumn("total_tax", func(m *LocalSaleOrder) *decimal.NullDecimal { return &m.TotalTax }),
	"total_discounts":    decimalColumn("total_discounts", func(m *LocalSaleOrder) *decimal.NullDecimal { return &m.TotalDiscounts }),
	"total_shipping":     decimalColumn("total_shipping", func(m *LocalSaleOrder) *decimal.NullDecimal { return &m.TotalShipping }),
	"note":               textColumn("note", func(m *LocalSaleOrder) *string { return &m.Note }),
	"tags":               textColumn("tags", func(m *LocalSaleOrder) *string { return &m.Tags }),
	"cancel_reason":      textColumn("cancel_reason", func(m *LocalSaleOrder) *string { return &m.CancelReason }),
	"cancelled_at":       timeColumn("cancelled_at", func(m *LocalSaleOrder) **time.Time { return &m.CancelledAt }),
	"closed_at":          timeColumn("closed_at", func(m *LocalSaleOrder) **time.Time { return &m.ClosedAt }),
	"processed_at":       timeColumn("processed_at", func(m *LocalSaleOrder) **time.Time { return &m.ProcessedAt }),
	"line_items":         textColumn("line_items", func(m *LocalSaleOrder) *string { return &m.LineItems }),
}

func (m *LocalSaleOrder) Fields() integration.FieldSet { return localSaleOrderColumns.fields(m) }
func (m *LocalSaleOrder) ApplyFields(f integration.FieldSet) error {
	return localSaleOrderColumns.apply(m, f)
}
func (m *LocalSaleOrder) Columns(fields []string) []string {
	return localSaleOrderColumns.columns(fields)
}

// LocalStockQuant is the on-hand quantity of one item at one location
type LocalStockQuant struct {
	LocalBase
	InventoryItemID string `gorm:"type:varchar(64);not null;index:idx_stock_quant_item_location,priority:1"`
	LocationID      string `gorm:"type:varchar(64);not null;index:idx_stock_quant_item_location,priority:2"`
	Quantity        *int64
}

// TableName returns the table name for GORM
func (LocalStockQuant) TableName() string {
	return "stock_quants"
}

var localStockQuantColumns = columnTable[LocalStockQuant]{
	"inventory_item_id": textColumn("inventory_item_id", func(m *LocalStockQuant) *string { return &m.InventoryItemID }),
	"location_id":       textColumn("location_id", func(m *LocalStockQuant) *string { return &m.LocationID }),
	"quantity":          intColumn("quantity", func(m *LocalStockQuant) **int64 { return &m.Quantity }),
}

func (m *LocalStockQuant) Fields() integration.FieldSet { return localStockQuantColumns.fields(m) }
func (m *LocalStockQuant) ApplyFields(f integration.FieldSet) error {
	return localStockQuantColumns.apply(m, f)
}
func (m *LocalStockQuant) Columns(fields []string) []string {
	return localStockQuantColumns.columns(fields)
}

// LocalCollection is a product category published as a storefront collection
type LocalCollection struct {
	LocalBase
	Name           string `gorm:"type:varchar(255);not null"`
	Handle         string `gorm:"type:varchar(255);index"`
	Description    string `gorm:"type:text"`
	SortOrder      string `gorm:"type:varchar(30)"`
	PublishedScope string `gorm:"type:varchar(20)"`
	Published      *bool
	CollectionType string `gorm:"type:varchar(10)"`
	ImageURL       string `gorm:"column:image_url;type:varchar(1024)"`
}

// TableName returns the table name for GORM
func (LocalCollection) TableName() string {
	return "product_collections"
}

var localCollectionColumns = columnTable[LocalCollection]{
	"name":            textColumn("name", func(m *LocalCollection) *string { return &m.Name }),
	"handle":          textColumn("handle", func(m *LocalCollection) *string { return &m.Handle }),
	"description":     textColumn("description", func(m *LocalCollection) *string { return &m.Description }),
	"sort_order":      textColumn("sort_order", func(m *LocalCollection) *string { return &m.SortOrder }),
	"published_scope": textColumn("published_scope", func(m *LocalCollection) *string { return &m.PublishedScope }),
	"published":       boolColumn("published", func(m *LocalCollection) **bool { return &m.Published }),
	"collection_type": textColumn("collection_type", func(m *LocalCollection) *string { return &m.CollectionType }),
	"image_url":       textColumn("image_url", func(m *LocalCollection) *string { return &m.ImageURL }),
}

func (m *LocalCollection) Fields() integration.FieldSet { return localCollectionColumns.fields(m) }
func (m *LocalCollection) ApplyFields(f integration.FieldSet) error {
	return localCollectionColumns.apply(m, f)
}
func (m *LocalCollection) Columns(fields []string) []string {
	return localCollectionColumns.columns(fields)
}

// LocalDiscount is a promotion imported from a store price rule
type LocalDiscount struct {
	LocalBase
	Name                  string              `gorm:"type:varchar(255);not null"`
	Code                  string              `gorm:"type:varchar(255);index"`
	ValueType             string              `gorm:"type:varchar(20)"`
	Value                 decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	TargetType            string              `gorm:"type:varchar(20)"`
	TargetSelection       string              `gorm:"type:varchar(20)"`
	AllocationMethod      string              `gorm:"type:varchar(20)"`
	UsageLimit            *int64
	OncePerCustomer       *bool
	MinimumAmount         decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	MinimumQuantity       *int64
	EntitledProductIDs    string `gorm:"column:entitled_product_ids;type:text"`
	EntitledCollectionIDs string `gorm:"column:entitled_collection_ids;type:text"`
	StartsAt              *time.Time
	EndsAt                *time.Time
}

// TableName returns the table name for GORM
func (LocalDiscount) TableName() string {
	return "discounts"
}

var localDiscountColumns = columnTable[LocalDiscount]{
	"name":                    textColumn("name", func(m *LocalDiscount) *string { return &m.Name }),
	"code":                    textColumn("code", func(m *LocalDiscount) *string { return &m.Code }),
	"value_type":              textColumn("value_type", func(m *LocalDiscount) *string { return &m.ValueType }),
	"value":                   decimalColumn("value", func(m *LocalDiscount) *decimal.NullDecimal { return &m.Value }),
	"target_type":             textColumn("target_type", func(m *LocalDiscount) *string { return &m.TargetType }),
	"target_selection":        textColumn("target_selection", func(m *LocalDiscount) *string { return &m.TargetSelection }),
	"allocation_method":       textColumn("allocation_method", func(m *LocalDiscount) *string { return &m.AllocationMethod }),
	"usage_limit":             intColumn("usage_limit", func(m *LocalDiscount) **int64 { return &m.UsageLimit }),
	"once_per_customer":       boolColumn("once_per_customer", func(m *LocalDiscount) **bool { return &m.OncePerCustomer }),
	"minimum_amount":          decimalColumn("minimum_amount", func(m *LocalDiscount) *decimal.NullDecimal { return &m.MinimumAmount }),
	"minimum_quantity":        intColumn("minimum_quantity", func(m *LocalDiscount) **int64 { return &m.MinimumQuantity }),
	"entitled_product_ids":    textColumn("entitled_product_ids", func(m *LocalDiscount) *string { return &m.EntitledProductIDs }),
	"entitled_collection_ids": textColumn("entitled_collection_ids", func(m *LocalDiscount) *string { return &m.EntitledCollectionIDs }),
	"starts_at":               timeColumn("starts_at", func(m *LocalDiscount) **time.Time { return &m.StartsAt }),
	"ends_at":                 timeColumn("ends_at", func(m *LocalDiscount) **time.Time { return &m.EndsAt }),
}

func (m *LocalDiscount) Fields() integration.FieldSet { return localDiscountColumns.fields(m) }
func (m *LocalDiscount) ApplyFields(f integration.FieldSet) error {
	return localDiscountColumns.apply(m, f)
}
func (m *LocalDiscount) Columns(fields []string) []string {
	return localDiscountColumns.columns(fields)
}

// ---------------------------------------------------------------------------
// Column tables
// ---------------------------------------------------------------------------

// fieldColumn binds one synchronized field to one column of model T
type fieldColumn[T any] struct {
	column string
	get    func(m *T) string
	set    func(m *T, v string) error
}

type columnTable[T any] map[string]fieldColumn[T]

func (t columnTable[T]) fields(m *T) integration.FieldSet {
	out := make(integration.FieldSet, len(t))
	for name, c := range t {
		out[name] = c.get(m)
	}
	return out
}

func (t columnTable[T]) apply(m *T, fields integration.FieldSet) error {
	for name, v := range fields {
		c, ok := t[name]
		if !ok {
			continue
		}
		if err := c.set(m, v); err != nil {
			return err
		}
	}
	return nil
}

func (t columnTable[T]) columns(fields []string) []string {
	out := make([]string, 0, len(fields)+1)
	for _, name := range fields {
		if c, ok := t[name]; ok {
			out = append(out, c.column)
		}
	}
	return append(out, "updated_at")
}

func textColumn[T any](column string, ref func(*T) *string) fieldColumn[T] {
	return fieldColumn[T]{
		column: column,
		get:    func(m *T) string { return *ref(m) },
		set: func(m *T, v string) error {
			*ref(m) = v
			return nil
		},
	}
}

func decimalColumn[T any](column string, ref func(*T) *decimal.NullDecimal) fieldColumn[T] {
	return fieldColumn[T]{
		column: column,
		get: func(m *T) string {
			d := ref(m)
			if !d.Valid {
				return ""
			}
			return d.Decimal.String()
		},
		set: func(m *T, v string) error {
			v = strings.TrimSpace(v)
			if v == "" {
				*ref(m) = decimal.NullDecimal{}
				return nil
			}
			d, err := decimal.NewFromString(v)
			if err != nil {
				return columnError(column, v, "a decimal")
			}
			*ref(m) = decimal.NewNullDecimal(d)
			return nil
		},
	}
}

func intColumn[T any](column string, ref func(*T) **int64) fieldColumn[T] {
	return fieldColumn[T]{
		column: column,
		get: func(m *T) string {
			if p := *ref(m); p != nil {
				return strconv.FormatInt(*p, 10)
			}
			return ""
		},
		set: func(m *T, v string) error {
			v = strings.TrimSpace(v)
			if v == "" {
				*ref(m) = nil
				return nil
			}
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return columnError(column, v, "an integer")
			}
			*ref(m) = &n
			return nil
		},
	}
}

func boolColumn[T any](column string, ref func(*T) **bool) fieldColumn[T] {
	return fieldColumn[T]{
		column: column,
		get: func(m *T) string {
			if p := *ref(m); p != nil {
				return strconv.FormatBool(*p)
			}
			return ""
		},
		set: func(m *T, v string) error {
			v = strings.TrimSpace(v)
			if v == "" {
				*ref(m) = nil
				return nil
			}
			b, err := strconv.ParseBool(v)
			if err != nil {
				return columnError(column, v, "a boolean")
			}
			*ref(m) = &b
			return nil
		},
	}
}

func timeColumn[T any](column string, ref func(*T) **time.Time) fieldColumn[T] {
	return fieldColumn[T]{
		column: column,
		get: func(m *T) string {
			if p := *ref(m); p != nil {
				return p.UTC().Format(time.RFC3339)
			}
			return ""
		},
		set: func(m *T, v string) error {
			v = strings.TrimSpace(v)
			if v == "" {
				*ref(m) = nil
				return nil
			}
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return columnError(column, v, "an RFC 3339 timestamp")
			}
			t = t.UTC()
			*ref(m) = &t
			return nil
		},
	}
}

func columnError(column, value, want string) error {
	return fmt.Errorf("%w: %s: %q is not %s", integration.ErrValidation, column, value, want)
}

var (
	_ LocalModel = (*LocalProduct)(nil)
	_ LocalModel = (*LocalPartner)(nil)
	_ LocalModel = (*LocalSaleOrder)(nil)
	_ LocalModel = (*LocalStockQuant)(nil)
	_ LocalModel = (*LocalCollection)(nil)
	_ LocalModel = (*LocalDiscount)(nil)
)
