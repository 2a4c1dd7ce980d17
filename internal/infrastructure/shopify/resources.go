package shopify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/erp/shopsync/internal/domain/integration"
)

// resource describes the REST collection backing an entity type
type resource struct {
	path     string // collection path segment, e.g. "products"
	singular string // envelope of a single resource
	plural   string // envelope of a collection
	// listQuery holds the extra parameters of a first-page request
	listQuery url.Values
}

var resources = map[integration.EntityType]resource{
	integration.EntityProduct:  {path: "products", singular: "product", plural: "products"},
	integration.EntityCustomer: {path: "customers", singular: "customer", plural: "customers"},
	integration.EntityOrder: {
		path: "orders", singular: "order", plural: "orders",
		listQuery: url.Values{"status": {"any"}},
	},
	integration.EntityInventory:  {path: "inventory_levels", singular: "inventory_level", plural: "inventory_levels"},
	integration.EntityCollection: {path: "custom_collections", singular: "custom_collection", plural: "custom_collections"},
	integration.EntityPriceRule:  {path: "price_rules", singular: "price_rule", plural: "price_rules"},
}

func resourceFor(entity integration.EntityType) (resource, error) {
	r, ok := resources[entity]
	if !ok {
		return resource{}, fmt.Errorf("%w: %s", integration.ErrInvalidEntityType, entity)
	}
	return r, nil
}

// ---------------------------------------------------------------------------
// RemoteStore
// ---------------------------------------------------------------------------

// List returns one page of the collection. A non-empty cursor is a
// page_info token; with a cursor only page_info and limit may be sent.
// Products come back as one record per variant.
func (c *Client) List(ctx context.Context, entity integration.EntityType, cursor string, pageSize int) (integration.RemotePage, error) {
	switch entity {
	case integration.EntityCollection:
		return c.listCollections(ctx, cursor, pageSize)
	case integration.EntityProduct:
		page, err := c.list(ctx, entity, cursor, pageSize)
		if err != nil {
			return integration.RemotePage{}, err
		}
		records, err := variantRecords(page.Records)
		if err != nil {
			return integration.RemotePage{}, err
		}
		page.Records = records
		return page, nil
	case integration.EntityPriceRule:
		page, err := c.list(ctx, entity, cursor, pageSize)
		if err != nil {
			return integration.RemotePage{}, err
		}
		for i, rule := range page.Records {
			if page.Records[i], err = c.withDiscountCode(ctx, rule); err != nil {
				return integration.RemotePage{}, err
			}
		}
		return page, nil
	}
	return c.list(ctx, entity, cursor, pageSize)
}

func (c *Client) list(ctx context.Context, entity integration.EntityType, cursor string, pageSize int) (integration.RemotePage, error) {
	res, err := resourceFor(entity)
	if err != nil {
		return integration.RemotePage{}, err
	}

	query := url.Values{"limit": {strconv.Itoa(clampPageSize(pageSize))}}
	if cursor != "" {
		query.Set("page_info", cursor)
	} else {
		for k, v := range res.listQuery {
			query[k] = v
		}
		if entity == integration.EntityInventory {
			locations, err := c.inventoryLocations(ctx)
			if err != nil {
				return integration.RemotePage{}, err
			}
			if len(locations) == 0 {
				return integration.RemotePage{}, nil
			}
			query.Set("location_ids", strings.Join(locations, ","))
		}
	}

	resp, err := c.do(ctx, request{method: http.MethodGet, path: "/" + res.path + ".json", query: query})
	if err != nil {
		return integration.RemotePage{}, err
	}

	records, err := unwrapList(resp.body, res.plural, entity)
	if err != nil {
		return integration.RemotePage{}, err
	}
	return integration.RemotePage{
		Records:    records,
		NextCursor: nextPageInfo(resp.header.Get(headerLink)),
	}, nil
}

// Get fetches one resource by remote id. A product record is fetched by
// variant id.
func (c *Client) Get(ctx context.Context, entity integration.EntityType, remoteID string) (integration.RemotePayload, error) {
	if remoteID == "" && entity != integration.EntityInventory {
		return nil, fmt.Errorf("%w: empty remote id", integration.ErrRemoteNotFound)
	}
	switch entity {
	case integration.EntityInventory:
		levels, err := c.inventoryLevel(ctx, remoteID)
		if err != nil {
			return nil, err
		}
		if len(levels) == 0 {
			return nil, fmt.Errorf("%w: inventory level %s", integration.ErrRemoteNotFound, remoteID)
		}
		return levels[0], nil
	case integration.EntityProduct:
		return c.getVariantRecord(ctx, remoteID)
	case integration.EntityCollection:
		resp, err := c.do(ctx, request{method: http.MethodGet, path: "/collections/" + url.PathEscape(remoteID) + ".json"})
		if err != nil {
			return nil, err
		}
		return unwrapOne(resp.body, "collection")
	}

	res, err := resourceFor(entity)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, request{method: http.MethodGet, path: resourcePath(res, remoteID)})
	if err != nil {
		return nil, err
	}
	rec, err := unwrapOne(resp.body, res.singular)
	if err != nil {
		return nil, err
	}
	if entity == integration.EntityPriceRule {
		return c.withDiscountCode(ctx, rec)
	}
	return rec, nil
}

// Create creates a resource and returns it as stored remotely. A product
// is created with the record's single variant.
func (c *Client) Create(ctx context.Context, entity integration.EntityType, payload integration.RemotePayload) (integration.RemotePayload, error) {
	switch entity {
	case integration.EntityInventory:
		return c.setInventoryLevel(ctx, payload)
	case integration.EntityPriceRule:
		return nil, errImportOnly(entity)
	}
	res, err := resourceFor(entity)
	if err != nil {
		return nil, err
	}
	if payload, err = without(payload, "id", "product_id", "collection_type"); err != nil {
		return nil, err
	}
	body, err := wrap(res.singular, payload)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, request{method: http.MethodPost, path: "/" + res.path + ".json", body: body})
	if err != nil {
		return nil, err
	}
	created, err := unwrapOne(resp.body, res.singular)
	if err != nil {
		return nil, err
	}
	switch entity {
	case integration.EntityProduct:
		records, err := integration.ProductRecords(created)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, fmt.Errorf("shopify: created product %s has no variant", created.ID())
		}
		return records[0], nil
	case integration.EntityCollection:
		return tagCollection(created, collectionCustom)
	}
	return created, nil
}

// Update sends a partial resource; fields absent from payload are left
// untouched remotely.
func (c *Client) Update(ctx context.Context, entity integration.EntityType, remoteID string, payload integration.RemotePayload) (integration.RemotePayload, error) {
	switch entity {
	case integration.EntityInventory:
		item, location, err := splitInventoryID(remoteID)
		if err != nil {
			return nil, err
		}
		payload, err = setRaw(payload, "inventory_item_id", item)
		if err != nil {
			return nil, err
		}
		payload, err = setRaw(payload, "location_id", location)
		if err != nil {
			return nil, err
		}
		return c.setInventoryLevel(ctx, payload)
	case integration.EntityPriceRule:
		return nil, errImportOnly(entity)
	}

	if remoteID == "" {
		return nil, fmt.Errorf("%w: empty remote id", integration.ErrRemoteNotFound)
	}
	if !payload.IsObject() {
		return nil, fmt.Errorf("%w: %s payload must be a JSON object", integration.ErrValidation, entity)
	}
	switch entity {
	case integration.EntityProduct:
		return c.updateVariantRecord(ctx, remoteID, payload)
	case integration.EntityCollection:
		return c.updateCollection(ctx, remoteID, payload)
	}

	res, err := resourceFor(entity)
	if err != nil {
		return nil, err
	}
	return c.put(ctx, res, remoteID, payload)
}

func (c *Client) put(ctx context.Context, res resource, remoteID string, payload integration.RemotePayload) (integration.RemotePayload, error) {
	payload, err := setRaw(payload, "id", remoteID)
	if err != nil {
		return nil, err
	}
	body, err := wrap(res.singular, payload)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, request{method: http.MethodPut, path: resourcePath(res, remoteID), body: body})
	if err != nil {
		return nil, err
	}
	return unwrapOne(resp.body, res.singular)
}

// FindByKey looks up resources by natural key: variant SKU for products,
// email for customers, order number for orders, "item:location" for
// inventory, handle for collections and discount code or title for price
// rules.
func (c *Client) FindByKey(ctx context.Context, entity integration.EntityType, naturalKey string) ([]integration.RemotePayload, error) {
	naturalKey = strings.TrimSpace(naturalKey)
	if naturalKey == "" {
		return nil, nil
	}
	switch entity {
	case integration.EntityProduct:
		return c.findVariantsBySKU(ctx, naturalKey)
	case integration.EntityCustomer:
		return c.findCustomersByEmail(ctx, naturalKey)
	case integration.EntityOrder:
		return c.findOrdersByNumber(ctx, naturalKey)
	case integration.EntityInventory:
		return c.inventoryLevel(ctx, naturalKey)
	case integration.EntityCollection:
		return c.findCollectionsByHandle(ctx, naturalKey)
	case integration.EntityPriceRule:
		return c.findPriceRules(ctx, naturalKey)
	default:
		return nil, fmt.Errorf("%w: %s", integration.ErrInvalidEntityType, entity)
	}
}

func (c *Client) findCustomersByEmail(ctx context.Context, email string) ([]integration.RemotePayload, error) {
	query := url.Values{"query": {"email:" + email}, "limit": {strconv.Itoa(maxPageSize)}}
	resp, err := c.do(ctx, request{method: http.MethodGet, path: "/customers/search.json", query: query})
	if err != nil {
		return nil, err
	}
	found, err := unwrapList(resp.body, "customers", integration.EntityCustomer)
	if err != nil {
		return nil, err
	}
	// search is fuzzy, keep exact matches only
	var matches []integration.RemotePayload
	for _, p := range found {
		if strings.EqualFold(p.Get("email").String(), email) {
			matches = append(matches, p)
		}
	}
	return matches, nil
}

func (c *Client) findOrdersByNumber(ctx context.Context, number string) ([]integration.RemotePayload, error) {
	number = strings.TrimPrefix(number, "#")
	query := url.Values{"name": {"#" + number}, "status": {"any"}}
	resp, err := c.do(ctx, request{method: http.MethodGet, path: "/orders.json", query: query})
	if err != nil {
		return nil, err
	}
	found, err := unwrapList(resp.body, "orders", integration.EntityOrder)
	if err != nil {
		return nil, err
	}
	var matches []integration.RemotePayload
	for _, p := range found {
		if p.Get("order_number").String() == number {
			matches = append(matches, p)
		}
	}
	return matches, nil
}

// scan visits every record of a collection
func (c *Client) scan(ctx context.Context, entity integration.EntityType, visit func(integration.RemotePayload)) error {
	cursor := ""
	for {
		page, err := c.List(ctx, entity, cursor, maxPageSize)
		if err != nil {
			return err
		}
		for _, p := range page.Records {
			visit(p)
		}
		if page.NextCursor == "" {
			return nil
		}
		cursor = page.NextCursor
	}
}

func errImportOnly(entity integration.EntityType) error {
	return fmt.Errorf("%w: %s records are import only", integration.ErrValidation, entity)
}

// ---------------------------------------------------------------------------
// Product variants
// ---------------------------------------------------------------------------

func variantRecords(products []integration.RemotePayload) ([]integration.RemotePayload, error) {
	var out []integration.RemotePayload
	for _, p := range products {
		records, err := integration.ProductRecords(p)
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
	}
	return out, nil
}

// findVariantsBySKU scans the catalog since the REST API cannot filter
// variants by SKU. Each match is the record of one variant, so a product
// whose other variants carry other SKUs is never matched as a whole.
func (c *Client) findVariantsBySKU(ctx context.Context, sku string) ([]integration.RemotePayload, error) {
	var matches []integration.RemotePayload
	err := c.scan(ctx, integration.EntityProduct, func(rec integration.RemotePayload) {
		if strings.TrimSpace(rec.Get("variants.0.sku").String()) == sku {
			matches = append(matches, rec)
		}
	})
	return matches, err
}

func (c *Client) getProduct(ctx context.Context, productID string) (integration.RemotePayload, error) {
	resp, err := c.do(ctx, request{method: http.MethodGet, path: "/products/" + url.PathEscape(productID) + ".json"})
	if err != nil {
		return nil, err
	}
	return unwrapOne(resp.body, "product")
}

func (c *Client) getVariantRecord(ctx context.Context, variantID string) (integration.RemotePayload, error) {
	resp, err := c.do(ctx, request{method: http.MethodGet, path: "/variants/" + url.PathEscape(variantID) + ".json"})
	if err != nil {
		return nil, err
	}
	variant, err := unwrapOne(resp.body, "variant")
	if err != nil {
		return nil, err
	}
	productID := variant.Get("product_id").String()
	if productID == "" {
		return nil, fmt.Errorf("shopify: variant %s has no product_id", variantID)
	}
	product, err := c.getProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	return integration.ProductRecord(product, variantID)
}

// productMembers are the record members owned by the record itself rather
// than by its product
var productMembers = []string{"id", "product_id", "variants", "updated_at", "created_at"}

// updateVariantRecord writes the variant part of a product record to the
// variant and the remaining members to its product, leaving the product's
// other variants untouched.
func (c *Client) updateVariantRecord(ctx context.Context, variantID string, payload integration.RemotePayload) (integration.RemotePayload, error) {
	productID := payload.Get("product_id").String()

	if variant := payload.Get("variants.0"); variant.IsObject() && hasMembersBesides(variant, "id") {
		body, err := setRaw(integration.RemotePayload(variant.Raw), "id", variantID)
		if err != nil {
			return nil, err
		}
		wrapped, err := wrap("variant", body)
		if err != nil {
			return nil, err
		}
		resp, err := c.do(ctx, request{method: http.MethodPut, path: "/variants/" + url.PathEscape(variantID) + ".json", body: wrapped})
		if err != nil {
			return nil, err
		}
		if productID == "" {
			productID = gjson.GetBytes(resp.body, "variant.product_id").String()
		}
	}

	if productID == "" {
		current, err := c.getVariantRecord(ctx, variantID)
		if err != nil {
			return nil, err
		}
		productID = current.Get("product_id").String()
	}

	fields, err := without(payload, productMembers...)
	if err != nil {
		return nil, err
	}
	var product integration.RemotePayload
	if hasMembersBesides(gjson.ParseBytes(fields)) {
		product, err = c.put(ctx, resources[integration.EntityProduct], productID, fields)
	} else {
		product, err = c.getProduct(ctx, productID)
	}
	if err != nil {
		return nil, err
	}
	return integration.ProductRecord(product, variantID)
}

// ---------------------------------------------------------------------------
// Collections
// ---------------------------------------------------------------------------

const (
	collectionCustom = "custom"
	collectionSmart  = "smart"
)

var collectionResources = map[string]resource{
	collectionCustom: resources[integration.EntityCollection],
	collectionSmart:  {path: "smart_collections", singular: "smart_collection", plural: "smart_collections"},
}

// listCollections pages through custom collections, then smart ones. The
// cursor is "<kind>:<page_info>".
func (c *Client) listCollections(ctx context.Context, cursor string, pageSize int) (integration.RemotePage, error) {
	kind, pageInfo := collectionCustom, ""
	if cursor != "" {
		var ok bool
		kind, pageInfo, ok = strings.Cut(cursor, ":")
		if _, known := collectionResources[kind]; !ok || !known {
			return integration.RemotePage{}, fmt.Errorf("%w: collection cursor %q", integration.ErrValidation, cursor)
		}
	}
	res := collectionResources[kind]

	query := url.Values{"limit": {strconv.Itoa(clampPageSize(pageSize))}}
	if pageInfo != "" {
		query.Set("page_info", pageInfo)
	}
	resp, err := c.do(ctx, request{method: http.MethodGet, path: "/" + res.path + ".json", query: query})
	if err != nil {
		return integration.RemotePage{}, err
	}
	records, err := unwrapList(resp.body, res.plural, integration.EntityCollection)
	if err != nil {
		return integration.RemotePage{}, err
	}
	for i := range records {
		if records[i], err = tagCollection(records[i], kind); err != nil {
			return integration.RemotePage{}, err
		}
	}

	page := integration.RemotePage{Records: records}
	switch next := nextPageInfo(resp.header.Get(headerLink)); {
	case next != "":
		page.NextCursor = kind + ":" + next
	case kind == collectionCustom:
		page.NextCursor = collectionSmart + ":"
	}
	return page, nil
}

func (c *Client) findCollectionsByHandle(ctx context.Context, handle string) ([]integration.RemotePayload, error) {
	var matches []integration.RemotePayload
	for _, kind := range []string{collectionCustom, collectionSmart} {
		res := collectionResources[kind]
		resp, err := c.do(ctx, request{method: http.MethodGet, path: "/" + res.path + ".json", query: url.Values{"handle": {handle}}})
		if err != nil {
			return nil, err
		}
		found, err := unwrapList(resp.body, res.plural, integration.EntityCollection)
		if err != nil {
			return nil, err
		}
		for _, p := range found {
			if !strings.EqualFold(p.Get("handle").String(), handle) {
				continue
			}
			tagged, err := tagCollection(p, kind)
			if err != nil {
				return nil, err
			}
			matches = append(matches, tagged)
		}
	}
	return matches, nil
}

// updateCollection routes the update by the collection_type the payload
// carries over from the current remote collection
func (c *Client) updateCollection(ctx context.Context, id string, payload integration.RemotePayload) (integration.RemotePayload, error) {
	kind := payload.Get("collection_type").String()
	if _, ok := collectionResources[kind]; !ok {
		kind = collectionCustom
	}
	payload, err := without(payload, "collection_type")
	if err != nil {
		return nil, err
	}
	updated, err := c.put(ctx, collectionResources[kind], id, payload)
	if err != nil {
		return nil, err
	}
	return tagCollection(updated, kind)
}

func tagCollection(p integration.RemotePayload, kind string) (integration.RemotePayload, error) {
	out, err := sjson.SetBytes(p, "collection_type", kind)
	if err != nil {
		return nil, fmt.Errorf("shopify: failed to tag collection: %w", err)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Price rules
// ---------------------------------------------------------------------------

// withDiscountCode adds the first discount code of a price rule as
// "discount_code"
func (c *Client) withDiscountCode(ctx context.Context, rule integration.RemotePayload) (integration.RemotePayload, error) {
	id := rule.ID()
	if id == "" {
		return rule, nil
	}
	query := url.Values{"limit": {"1"}}
	resp, err := c.do(ctx, request{method: http.MethodGet, path: "/price_rules/" + url.PathEscape(id) + "/discount_codes.json", query: query})
	if err != nil {
		return nil, err
	}
	code := gjson.GetBytes(resp.body, "discount_codes.0.code")
	if !code.Exists() {
		return rule, nil
	}
	out, err := sjson.SetBytes(rule, "discount_code", code.String())
	if err != nil {
		return nil, fmt.Errorf("shopify: failed to add discount code: %w", err)
	}
	return out, nil
}

// findPriceRules matches on the discount code, or on the title of rules
// without a code
func (c *Client) findPriceRules(ctx context.Context, key string) ([]integration.RemotePayload, error) {
	var matches []integration.RemotePayload
	err := c.scan(ctx, integration.EntityPriceRule, func(rule integration.RemotePayload) {
		code := strings.TrimSpace(rule.Get("discount_code").String())
		if (code != "" && strings.EqualFold(code, key)) ||
			(code == "" && strings.TrimSpace(rule.Get("title").String()) == key) {
			matches = append(matches, rule)
		}
	})
	return matches, err
}

// ---------------------------------------------------------------------------
// Inventory levels
// ---------------------------------------------------------------------------

// InventoryLevelID builds the composite id of an inventory level
func InventoryLevelID(inventoryItemID, locationID string) string {
	return inventoryItemID + ":" + locationID
}

func splitInventoryID(id string) (item, location string, err error) {
	item, location, ok := strings.Cut(id, ":")
	if !ok || item == "" || location == "" {
		return "", "", fmt.Errorf("%w: inventory level id %q must be item:location", integration.ErrValidation, id)
	}
	return item, location, nil
}

// inventoryLocations returns the configured locations, or every active
// location when none is configured.
func (c *Client) inventoryLocations(ctx context.Context) ([]string, error) {
	if len(c.config.LocationIDs) > 0 {
		return c.config.LocationIDs, nil
	}
	locations, err := c.Locations(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(locations))
	for _, l := range locations {
		if l.Active {
			ids = append(ids, l.ID)
		}
	}
	return ids, nil
}

func (c *Client) inventoryLevel(ctx context.Context, id string) ([]integration.RemotePayload, error) {
	item, location, err := splitInventoryID(id)
	if err != nil {
		return nil, err
	}
	query := url.Values{"inventory_item_ids": {item}, "location_ids": {location}}
	resp, err := c.do(ctx, request{method: http.MethodGet, path: "/inventory_levels.json", query: query})
	if err != nil {
		return nil, err
	}
	return unwrapList(resp.body, "inventory_levels", integration.EntityInventory)
}

func (c *Client) setInventoryLevel(ctx context.Context, payload integration.RemotePayload) (integration.RemotePayload, error) {
	if !payload.IsObject() {
		return nil, fmt.Errorf("%w: inventory payload must be a JSON object", integration.ErrValidation)
	}
	item := payload.Get("inventory_item_id")
	location := payload.Get("location_id")
	available := payload.Get("available")
	if !item.Exists() || !location.Exists() || !available.Exists() {
		return nil, fmt.Errorf("%w: inventory_item_id, location_id and available are required", integration.ErrValidation)
	}

	body := []byte(`{}`)
	var err error
	for _, kv := range []struct {
		path string
		raw  string
	}{
		{"location_id", location.Raw},
		{"inventory_item_id", item.Raw},
		{"available", available.Raw},
	} {
		body, err = sjson.SetRawBytes(body, kv.path, []byte(kv.raw))
		if err != nil {
			return nil, fmt.Errorf("shopify: failed to encode inventory level: %w", err)
		}
	}

	resp, err := c.do(ctx, request{method: http.MethodPost, path: "/inventory_levels/set.json", body: body, idempotent: true})
	if err != nil {
		return nil, err
	}
	level, err := unwrapOne(resp.body, "inventory_level")
	if err != nil {
		return nil, err
	}
	return withInventoryID(level)
}

// withInventoryID adds the composite "id" member inventory levels lack
func withInventoryID(p integration.RemotePayload) (integration.RemotePayload, error) {
	id := InventoryLevelID(p.Get("inventory_item_id").String(), p.Get("location_id").String())
	out, err := sjson.SetBytes(p, "id", id)
	if err != nil {
		return nil, fmt.Errorf("shopify: failed to tag inventory level: %w", err)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Envelopes
// ---------------------------------------------------------------------------

func resourcePath(res resource, id string) string {
	return "/" + res.path + "/" + url.PathEscape(id) + ".json"
}

func wrap(envelope string, payload integration.RemotePayload) ([]byte, error) {
	if !payload.IsObject() {
		return nil, fmt.Errorf("%w: %s payload must be a JSON object", integration.ErrValidation, envelope)
	}
	body, err := sjson.SetRawBytes([]byte(`{}`), envelope, payload)
	if err != nil {
		return nil, fmt.Errorf("shopify: failed to wrap %s: %w", envelope, err)
	}
	return body, nil
}

func unwrapOne(body []byte, envelope string) (integration.RemotePayload, error) {
	v := gjson.GetBytes(body, envelope)
	if !v.IsObject() {
		return nil, fmt.Errorf("shopify: response has no %q object", envelope)
	}
	return integration.RemotePayload(v.Raw), nil
}

func unwrapList(body []byte, envelope string, entity integration.EntityType) ([]integration.RemotePayload, error) {
	v := gjson.GetBytes(body, envelope)
	if !v.IsArray() {
		return nil, fmt.Errorf("shopify: response has no %q array", envelope)
	}
	items := v.Array()
	out := make([]integration.RemotePayload, 0, len(items))
	for _, item := range items {
		p := integration.RemotePayload(item.Raw)
		if entity == integration.EntityInventory {
			tagged, err := withInventoryID(p)
			if err != nil {
				return nil, err
			}
			p = tagged
		}
		out = append(out, p)
	}
	return out, nil
}

// without returns p minus the given top level members
func without(p integration.RemotePayload, members ...string) (integration.RemotePayload, error) {
	out := []byte(p)
	for _, m := range members {
		if !gjson.GetBytes(out, m).Exists() {
			continue
		}
		var err error
		if out, err = sjson.DeleteBytes(out, m); err != nil {
			return nil, fmt.Errorf("%w: cannot drop %s: %v", integration.ErrValidation, m, err)
		}
	}
	return out, nil
}

// hasMembersBesides reports whether object v has a member not in skip
func hasMembersBesides(v gjson.Result, skip ...string) bool {
	found := false
	v.ForEach(func(k, _ gjson.Result) bool {
		for _, s := range skip {
			if k.String() == s {
				return true
			}
		}
		found = true
		return false
	})
	return found
}

// setRaw sets path to value, keeping numeric ids numeric on the wire
func setRaw(p integration.RemotePayload, path, value string) (integration.RemotePayload, error) {
	var (
		out []byte
		err error
	)
	if n, convErr := strconv.ParseInt(value, 10, 64); convErr == nil {
		out, err = sjson.SetBytes(p, path, n)
	} else {
		out, err = sjson.SetBytes(p, path, value)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: cannot set %s: %v", integration.ErrValidation, path, err)
	}
	return out, nil
}
