package mapper

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/erp/shopsync/internal/domain/integration"
)

// Mode restricts the direction a field travels in
type Mode int

const (
	Both Mode = iota
	ImportOnly
	ExportOnly
)

// FieldRule maps one local field to a remote JSON path
type FieldRule struct {
	Local string
	// Remote is the gjson path read on import and, unless Write is set,
	// the sjson path written on export
	Remote string
	// Alt lists import paths tried in order when Remote is absent
	Alt []string
	// Write overrides the export path
	Write string
	Kind  Kind
	Mode  Mode
	// CreateOnly fields are sent when the remote record is created but
	// cannot be changed afterwards
	CreateOnly bool
	// Default replaces a missing or null remote value on import
	Default string
	// Compute derives an import-only value from the whole resource
	Compute func(doc gjson.Result) string
}

func (r FieldRule) imports() bool { return r.Mode != ExportOnly }
func (r FieldRule) exports() bool { return r.Mode != ImportOnly && r.Compute == nil }

func (r FieldRule) writePath() string {
	if r.Write != "" {
		return r.Write
	}
	return r.Remote
}

// identityPath is copied from the current remote resource into outgoing
// payloads so partial updates address the right nested resources
type identityPath struct {
	From string
	To   string
}

// Table is the declarative mapping of one entity type
type Table struct {
	Entity integration.EntityType
	Rules  []FieldRule
	// Required local fields after an import mapping
	Required []string
	// ExportRequired local fields before an export mapping
	ExportRequired []string
	Identity       []identityPath
	// LocalKey and RemoteKey compute the natural key of each side
	LocalKey  func(fields integration.FieldSet) string
	RemoteKey func(doc gjson.Result) string
	// KeyAssignedRemotely marks keys the remote platform allocates on
	// create (order numbers); a local record without one is new.
	KeyAssignedRemotely bool
	// ImportOnly tables describe remote resources that are never written
	ImportOnly bool
}

// Rule returns the rule of a local field
func (t *Table) Rule(local string) (FieldRule, bool) {
	for _, r := range t.Rules {
		if r.Local == local {
			return r, true
		}
	}
	return FieldRule{}, false
}

// productTable maps one variant of a remote product. Product level members
// are shared by the sibling variants of the same product.
var productTable = Table{
	Entity: integration.EntityProduct,
	Rules: []FieldRule{
		{Local: "name", Remote: "title", Kind: KindString},
		{Local: "description", Remote: "body_html", Kind: KindText},
		{Local: "vendor", Remote: "vendor", Kind: KindString},
		{Local: "product_type", Remote: "product_type", Kind: KindString},
		{Local: "tags", Remote: "tags", Kind: KindTags},
		{Local: "status", Remote: "status", Kind: KindLower},
		{Local: "sku", Remote: "variants.0.sku", Kind: KindString},
		{Local: "list_price", Remote: "variants.0.price", Kind: KindDecimal},
		{Local: "barcode", Remote: "variants.0.barcode", Kind: KindString},
		{Local: "weight", Remote: "variants.0.weight", Kind: KindDecimal},
		{Local: "weight_unit", Remote: "variants.0.weight_unit", Kind: KindLower},
		{Local: "inventory_policy", Remote: "variants.0.inventory_policy", Kind: KindLower},
		{Local: "taxable", Remote: "variants.0.taxable", Kind: KindBool},
		{Local: "requires_shipping", Remote: "variants.0.requires_shipping", Kind: KindBool},
		{Local: "variant_title", Remote: "variants.0.title", Kind: KindString, Mode: ImportOnly},
		{Local: "inventory_item_id", Remote: "variants.0.inventory_item_id", Kind: KindString, Mode: ImportOnly},
	},
	Required:       []string{"name"},
	ExportRequired: []string{"name"},
	Identity: []identityPath{
		{From: "id", To: "id"},
		{From: "product_id", To: "product_id"},
		{From: "variants.0.id", To: "variants.0.id"},
	},
	LocalKey: func(f integration.FieldSet) string {
		return strings.TrimSpace(f["sku"])
	},
	// a product record carries exactly one variant
	RemoteKey: func(doc gjson.Result) string {
		return strings.TrimSpace(doc.Get("variants.0.sku").String())
	},
}

var customerTable = Table{
	Entity: integration.EntityCustomer,
	Rules: []FieldRule{
		{Local: "email", Remote: "email", Kind: KindLower},
		{Local: "first_name", Remote: "first_name", Kind: KindString},
		{Local: "last_name", Remote: "last_name", Kind: KindString},
		{Local: "name", Kind: KindString, Mode: ImportOnly, Compute: joinName},
		{Local: "phone", Remote: "phone", Kind: KindPhone},
		{Local: "accepts_marketing", Remote: "accepts_marketing", Kind: KindBool},
		{Local: "verified_email", Remote: "verified_email", Kind: KindBool, Mode: ImportOnly},
		{Local: "orders_count", Remote: "orders_count", Kind: KindInt, Mode: ImportOnly},
		{Local: "total_spent", Remote: "total_spent", Kind: KindDecimal, Mode: ImportOnly},
		{Local: "state", Remote: "state", Kind: KindLower, Mode: ImportOnly},
		{Local: "tags", Remote: "tags", Kind: KindTags},
		{Local: "note", Remote: "note", Kind: KindText},
		{Local: "street", Remote: "default_address.address1", Alt: []string{"addresses.0.address1"}, Write: "addresses.0.address1", Kind: KindString},
		{Local: "city", Remote: "default_address.city", Alt: []string{"addresses.0.city"}, Write: "addresses.0.city", Kind: KindString},
		{Local: "zip", Remote: "default_address.zip", Alt: []string{"addresses.0.zip"}, Write: "addresses.0.zip", Kind: KindString},
		{Local: "province_code", Remote: "default_address.province_code", Alt: []string{"addresses.0.province_code"}, Write: "addresses.0.province_code", Kind: KindString},
		{Local: "country_code", Remote: "default_address.country_code", Alt: []string{"addresses.0.country_code"}, Write: "addresses.0.country_code", Kind: KindCountry},
	},
	Required:       []string{"email"},
	ExportRequired: []string{"email"},
	Identity: []identityPath{
		{From: "id", To: "id"},
		{From: "default_address.id", To: "addresses.0.id"},
	},
	LocalKey: func(f integration.FieldSet) string {
		return strings.ToLower(strings.TrimSpace(f["email"]))
	},
	RemoteKey: func(doc gjson.Result) string {
		return strings.ToLower(strings.TrimSpace(doc.Get("email").String()))
	},
}

var orderTable = Table{
	Entity: integration.EntityOrder,
	Rules: []FieldRule{
		{Local: "order_number", Remote: "order_number", Kind: KindInt, Mode: ImportOnly},
		{Local: "name", Remote: "name", Kind: KindString, Mode: ImportOnly},
		{Local: "partner_email", Remote: "email", Kind: KindLower},
		{Local: "financial_status", Remote: "financial_status", Kind: KindLower, Mode: ImportOnly},
		{Local: "fulfillment_status", Remote: "fulfillment_status", Kind: KindLower, Mode: ImportOnly, Default: "unfulfilled"},
		{Local: "currency", Remote: "currency", Kind: KindCurrency, Mode: ImportOnly},
		{Local: "total_price", Remote: "total_price", Kind: KindMoney, Mode: ImportOnly},
		{Local: "subtotal_price", Remote: "subtotal_price", Kind: KindMoney, Mode: ImportOnly},
		{Local: "total_tax", Remote: "total_tax", Kind: KindMoney, Mode: ImportOnly},
		{Local: "total_discounts", Remote: "total_discounts", Kind: KindMoney, Mode: ImportOnly},
		{Local: "total_shipping", Kind: KindMoney, Mode: ImportOnly, Compute: shippingTotal},
		{Local: "note", Remote: "note", Kind: KindText},
		{Local: "tags", Remote: "tags", Kind: KindTags},
		{Local: "cancel_reason", Remote: "cancel_reason", Kind: KindLower, Mode: ImportOnly},
		{Local: "cancelled_at", Remote: "cancelled_at", Kind: KindTimestamp, Mode: ImportOnly},
		{Local: "closed_at", Remote: "closed_at", Kind: KindTimestamp, Mode: ImportOnly},
		{Local: "processed_at", Remote: "processed_at", Kind: KindTimestamp, Mode: ImportOnly},
		{Local: "line_items", Remote: "line_items", Kind: KindLineItems, CreateOnly: true},
	},
	Required:       []string{"order_number"},
	ExportRequired: []string{"line_items"},
	Identity:       []identityPath{{From: "id", To: "id"}},
	LocalKey: func(f integration.FieldSet) string {
		return strings.TrimPrefix(strings.TrimSpace(f["order_number"]), "#")
	},
	RemoteKey: func(doc gjson.Result) string {
		return strings.TrimSpace(doc.Get("order_number").String())
	},
	KeyAssignedRemotely: true,
}

var inventoryTable = Table{
	Entity: integration.EntityInventory,
	Rules: []FieldRule{
		{Local: "inventory_item_id", Remote: "inventory_item_id", Kind: KindInt},
		{Local: "location_id", Remote: "location_id", Kind: KindInt},
		{Local: "quantity", Remote: "available", Kind: KindInt},
	},
	Required:       []string{"inventory_item_id", "location_id"},
	ExportRequired: []string{"inventory_item_id", "location_id"},
	Identity: []identityPath{
		{From: "inventory_item_id", To: "inventory_item_id"},
		{From: "location_id", To: "location_id"},
	},
	LocalKey: func(f integration.FieldSet) string {
		return inventoryKey(f["inventory_item_id"], f["location_id"])
	},
	RemoteKey: func(doc gjson.Result) string {
		return inventoryKey(doc.Get("inventory_item_id").String(), doc.Get("location_id").String())
	},
}

func inventoryKey(item, location string) string {
	item, location = strings.TrimSpace(item), strings.TrimSpace(location)
	if item == "" || location == "" {
		return ""
	}
	return item + ":" + location
}

// collectionTable covers custom and smart collections. Only custom
// collections are created by exports; smart collection rules stay remote.
var collectionTable = Table{
	Entity: integration.EntityCollection,
	Rules: []FieldRule{
		{Local: "name", Remote: "title", Kind: KindString},
		{Local: "handle", Remote: "handle", Kind: KindLower},
		{Local: "description", Remote: "body_html", Kind: KindText},
		{Local: "sort_order", Remote: "sort_order", Kind: KindLower},
		{Local: "published_scope", Remote: "published_scope", Kind: KindLower},
		{Local: "published", Kind: KindBool, Mode: ImportOnly, Compute: publishedFlag},
		{Local: "collection_type", Remote: "collection_type", Kind: KindLower, Mode: ImportOnly, Default: "custom"},
		{Local: "image_url", Remote: "image.src", Kind: KindString, Mode: ImportOnly},
	},
	Required:       []string{"name"},
	ExportRequired: []string{"name"},
	Identity: []identityPath{
		{From: "id", To: "id"},
		{From: "collection_type", To: "collection_type"},
	},
	LocalKey: func(f integration.FieldSet) string {
		if h := strings.ToLower(strings.TrimSpace(f["handle"])); h != "" {
			return h
		}
		return handleize(f["name"])
	},
	RemoteKey: func(doc gjson.Result) string {
		return strings.ToLower(strings.TrimSpace(doc.Get("handle").String()))
	},
}

// priceRuleTable is import only. Entitled ids stay remote ids.
var priceRuleTable = Table{
	Entity: integration.EntityPriceRule,
	Rules: []FieldRule{
		{Local: "name", Remote: "title", Kind: KindString, Mode: ImportOnly},
		{Local: "code", Remote: "discount_code", Kind: KindString, Mode: ImportOnly},
		{Local: "value_type", Remote: "value_type", Kind: KindLower, Mode: ImportOnly},
		{Local: "value", Kind: KindDecimal, Mode: ImportOnly, Compute: discountValue},
		{Local: "target_type", Remote: "target_type", Kind: KindLower, Mode: ImportOnly},
		{Local: "target_selection", Remote: "target_selection", Kind: KindLower, Mode: ImportOnly},
		{Local: "allocation_method", Remote: "allocation_method", Kind: KindLower, Mode: ImportOnly},
		{Local: "usage_limit", Remote: "usage_limit", Kind: KindInt, Mode: ImportOnly},
		{Local: "once_per_customer", Remote: "once_per_customer", Kind: KindBool, Mode: ImportOnly},
		{Local: "minimum_amount", Remote: "prerequisite_subtotal_range.greater_than_or_equal_to", Kind: KindDecimal, Mode: ImportOnly},
		{Local: "minimum_quantity", Remote: "prerequisite_quantity_range.greater_than_or_equal_to", Kind: KindInt, Mode: ImportOnly},
		{Local: "entitled_product_ids", Kind: KindString, Mode: ImportOnly, Compute: joinIDs("entitled_product_ids")},
		{Local: "entitled_collection_ids", Kind: KindString, Mode: ImportOnly, Compute: joinIDs("entitled_collection_ids")},
		{Local: "starts_at", Remote: "starts_at", Kind: KindTimestamp, Mode: ImportOnly},
		{Local: "ends_at", Remote: "ends_at", Kind: KindTimestamp, Mode: ImportOnly},
	},
	Required: []string{"name"},
	Identity: []identityPath{{From: "id", To: "id"}},
	LocalKey: func(f integration.FieldSet) string {
		return discountKey(f["code"], f["name"])
	},
	RemoteKey: func(doc gjson.Result) string {
		return discountKey(doc.Get("discount_code").String(), doc.Get("title").String())
	},
	ImportOnly: true,
}

// discountKey prefers the shop-unique code over the rule title
func discountKey(code, title string) string {
	if c := strings.TrimSpace(code); c != "" {
		return strings.ToUpper(c)
	}
	return strings.TrimSpace(title)
}

var tables = map[integration.EntityType]*Table{
	integration.EntityProduct:    &productTable,
	integration.EntityCustomer:   &customerTable,
	integration.EntityOrder:      &orderTable,
	integration.EntityInventory:  &inventoryTable,
	integration.EntityCollection: &collectionTable,
	integration.EntityPriceRule:  &priceRuleTable,
}

// TableFor returns the mapping table of an entity type
func TableFor(entity integration.EntityType) (*Table, bool) {
	t, ok := tables[entity]
	return t, ok
}
