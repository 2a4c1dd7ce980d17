package integration

import (
	"context"
	"fmt"
	"runtime/pprof"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/erp/shopsync/internal/application/integration/mapper"
	"github.com/erp/shopsync/internal/domain/integration"
	"github.com/erp/shopsync/internal/infrastructure/lock"
	"github.com/erp/shopsync/internal/infrastructure/persistence"
)

// ---------------------------------------------------------------------------
// In-memory remote store
// ---------------------------------------------------------------------------

type fakeRemote struct {
	mu      sync.Mutex
	nextID  int
	records map[integration.EntityType][]integration.RemotePayload

	shopErr error
	// listErr is returned for the page starting at listErrAt
	listErr   error
	listErrAt int
	getErr    error

	creates int
	updates int
	// listLabels holds the profiling labels seen by the last List
	listLabels map[string]string

	webhooks []integration.RemoteWebhook
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		nextID:  1000,
		records: make(map[integration.EntityType][]integration.RemotePayload),
	}
}

func (f *fakeRemote) stamp(p []byte, at time.Time) []byte {
	out, _ := sjson.SetBytes(p, "updated_at", at.UTC().Format(time.RFC3339))
	return out
}

// seed stores a record as is, assigning an id when missing. Products are
// stored whole and their variants get ids too.
func (f *fakeRemote) seed(entity integration.EntityType, raw string) integration.RemotePayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := []byte(raw)
	if !gjson.GetBytes(p, "id").Exists() {
		f.nextID++
		p, _ = sjson.SetBytes(p, "id", f.nextID)
	}
	if entity == integration.EntityProduct {
		p = f.assignVariantIDs(p, nil)
	}
	if !gjson.GetBytes(p, "updated_at").Exists() {
		p = f.stamp(p, time.Now().Add(-time.Hour))
	}
	f.records[entity] = append(f.records[entity], p)
	return p
}

// assignVariantIDs gives every variant of product an id, keeping the ids
// of the variants of previous at the same position
func (f *fakeRemote) assignVariantIDs(product []byte, previous []byte) []byte {
	for i := range gjson.GetBytes(product, "variants").Array() {
		path := fmt.Sprintf("variants.%d.id", i)
		if gjson.GetBytes(product, path).Exists() {
			continue
		}
		if old := gjson.GetBytes(previous, path); old.Exists() {
			product, _ = sjson.SetRawBytes(product, path, []byte(old.Raw))
			continue
		}
		f.nextID++
		product, _ = sjson.SetBytes(product, path, f.nextID)
	}
	return product
}

// replace overwrites a stored record keyed by id. Variant ids of a
// replaced product are kept.
func (f *fakeRemote) replace(entity integration.EntityType, id, raw string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.records[entity] {
		if p.ID() == id {
			next := []byte(raw)
			if entity == integration.EntityProduct {
				next = f.assignVariantIDs(next, p)
			}
			f.records[entity][i] = next
			return
		}
	}
}

func (f *fakeRemote) all(entity integration.EntityType) []integration.RemotePayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]integration.RemotePayload(nil), f.records[entity]...)
}

// scoped returns the records of entity the way the remote API hands them
// out: one per variant for products. Callers hold mu.
func (f *fakeRemote) scoped(entity integration.EntityType) []integration.RemotePayload {
	if entity != integration.EntityProduct {
		return f.records[entity]
	}
	var out []integration.RemotePayload
	for _, p := range f.records[entity] {
		records, _ := integration.ProductRecords(p)
		out = append(out, records...)
	}
	return out
}

// variantOf returns the id of the first variant of a stored product
func variantOf(product integration.RemotePayload) string {
	return product.Get("variants.0.id").String()
}

func (f *fakeRemote) List(ctx context.Context, entity integration.EntityType, cursor string, pageSize int) (integration.RemotePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listLabels = map[string]string{}
	pprof.ForLabels(ctx, func(k, v string) bool {
		f.listLabels[k] = v
		return true
	})
	start := 0
	if cursor != "" {
		start, _ = strconv.Atoi(cursor)
	}
	if f.listErr != nil && start >= f.listErrAt {
		return integration.RemotePage{}, f.listErr
	}
	all := f.scoped(entity)
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	page := integration.RemotePage{Records: append([]integration.RemotePayload(nil), all[start:end]...)}
	if end < len(all) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

func (f *fakeRemote) Get(_ context.Context, entity integration.EntityType, remoteID string) (integration.RemotePayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, p := range f.scoped(entity) {
		if p.ID() == remoteID {
			return p, nil
		}
	}
	return nil, integration.ErrRemoteNotFound
}

func (f *fakeRemote) Create(_ context.Context, entity integration.EntityType, payload integration.RemotePayload) (integration.RemotePayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	f.nextID++
	p := []byte(payload)
	if entity == integration.EntityInventory {
		p, _ = sjson.SetBytes(p, "id", gjson.GetBytes(p, "inventory_item_id").String()+":"+gjson.GetBytes(p, "location_id").String())
	} else {
		p, _ = sjson.SetBytes(p, "id", f.nextID)
	}
	switch entity {
	case integration.EntityProduct:
		p, _ = sjson.SetBytes(p, "variants.0.id", f.nextID+5000)
		p, _ = sjson.SetBytes(p, "variants.0.inventory_item_id", f.nextID+9000)
	case integration.EntityOrder:
		p, _ = sjson.SetBytes(p, "order_number", f.nextID)
	}
	p = f.stamp(p, time.Now())
	f.records[entity] = append(f.records[entity], p)
	if entity == integration.EntityProduct {
		return integration.ProductRecord(p, strconv.Itoa(f.nextID+5000))
	}
	return p, nil
}

func (f *fakeRemote) Update(_ context.Context, entity integration.EntityType, remoteID string, payload integration.RemotePayload) (integration.RemotePayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if entity == integration.EntityProduct {
		return f.updateVariant(remoteID, payload)
	}
	for i, p := range f.records[entity] {
		if p.ID() != remoteID {
			continue
		}
		f.updates++
		merged := mergeJSON([]byte(p), "", gjson.ParseBytes(payload))
		merged = f.stamp(merged, time.Now())
		f.records[entity][i] = merged
		return merged, nil
	}
	return nil, integration.ErrRemoteNotFound
}

// updateVariant applies a product record update to the one variant it
// names and to the product's own members, like the variant and product
// endpoints do
func (f *fakeRemote) updateVariant(variantID string, payload integration.RemotePayload) (integration.RemotePayload, error) {
	for i, p := range f.records[integration.EntityProduct] {
		for j, v := range p.Get("variants").Array() {
			if v.Get("id").String() != variantID {
				continue
			}
			f.updates++
			merged := []byte(p)
			if variant := payload.Get("variants.0"); variant.Exists() {
				merged = mergeJSON(merged, fmt.Sprintf("variants.%d", j), variant)
			}
			gjson.ParseBytes(payload).ForEach(func(k, child gjson.Result) bool {
				switch k.String() {
				case "id", "product_id", "variants", "updated_at":
				default:
					merged = mergeJSON(merged, k.String(), child)
				}
				return true
			})
			merged = f.stamp(merged, time.Now())
			f.records[integration.EntityProduct][i] = merged
			return integration.ProductRecord(merged, variantID)
		}
	}
	return nil, integration.ErrRemoteNotFound
}

// mergeJSON writes every leaf of v into doc below path
func mergeJSON(doc []byte, path string, v gjson.Result) []byte {
	join := func(k string) string {
		if path == "" {
			return k
		}
		return path + "." + k
	}
	switch {
	case v.IsObject():
		v.ForEach(func(k, child gjson.Result) bool {
			doc = mergeJSON(doc, join(k.String()), child)
			return true
		})
	case v.IsArray() && path != "line_items":
		for i, child := range v.Array() {
			doc = mergeJSON(doc, join(strconv.Itoa(i)), child)
		}
	default:
		doc, _ = sjson.SetRawBytes(doc, path, []byte(v.Raw))
	}
	return doc
}

// FindByKey matches the natural key of each record the way List returns
// them, so a product is found through its matching variant only
func (f *fakeRemote) FindByKey(_ context.Context, entity integration.EntityType, naturalKey string) ([]integration.RemotePayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := mapper.New(nil, nil)
	var out []integration.RemotePayload
	for _, p := range f.scoped(entity) {
		if m.RemoteNaturalKey(entity, p) == naturalKey {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRemote) Shop(context.Context) (*integration.ShopInfo, error) {
	if f.shopErr != nil {
		return nil, f.shopErr
	}
	return &integration.ShopInfo{Name: "Test Shop", Domain: "test-shop.myshopify.com", Currency: "USD"}, nil
}

func (f *fakeRemote) Locations(context.Context) ([]integration.Location, error) {
	return []integration.Location{
		{ID: "55", Name: "Warehouse", Active: true},
		{ID: "66", Name: "Closed store", Active: false},
	}, nil
}

func (f *fakeRemote) Webhooks(context.Context) ([]integration.RemoteWebhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]integration.RemoteWebhook(nil), f.webhooks...), nil
}

func (f *fakeRemote) CreateWebhook(_ context.Context, topic integration.WebhookTopic, address string) (*integration.RemoteWebhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	hook := integration.RemoteWebhook{ID: strconv.Itoa(f.nextID), Topic: topic, Address: address}
	f.webhooks = append(f.webhooks, hook)
	return &hook, nil
}

func (f *fakeRemote) DeleteWebhook(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, h := range f.webhooks {
		if h.ID == id {
			f.webhooks = append(f.webhooks[:i], f.webhooks[i+1:]...)
			return nil
		}
	}
	return integration.ErrRemoteNotFound
}

var _ integration.RemoteClient = (*fakeRemote)(nil)

type fakeFactory struct {
	remote *fakeRemote
}

func (f fakeFactory) ForInstance(*integration.SyncInstance) (integration.RemoteClient, error) {
	return f.remote, nil
}

// ---------------------------------------------------------------------------
// Engine fixture
// ---------------------------------------------------------------------------

// recordingObserver collects outcomes and can hook into each record
type recordingObserver struct {
	mu      sync.Mutex
	jobs    []integration.SyncJob
	entries []integration.SyncLogEntry
	onEntry func(entry *integration.SyncLogEntry)
}

func (o *recordingObserver) ObserveJob(job *integration.SyncJob) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.jobs = append(o.jobs, *job)
}

func (o *recordingObserver) ObserveLogEntry(entry *integration.SyncLogEntry) {
	o.mu.Lock()
	o.entries = append(o.entries, *entry)
	hook := o.onEntry
	o.mu.Unlock()
	if hook != nil {
		hook(entry)
	}
}

type engineFixture struct {
	db        *gorm.DB
	remote    *fakeRemote
	observer  *recordingObserver
	instances *persistence.GormInstanceRepository
	refs      *persistence.GormCrossReferenceRepository
	jobs      *persistence.GormJobRepository
	log       *persistence.GormSyncLog
	local     *persistence.GormLocalStore
	engine    *SyncEngine
	instance  *integration.SyncInstance
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(persistence.AllModels()...))
	return db
}

func newEngineFixture(t *testing.T, pageSize int) *engineFixture {
	t.Helper()
	db := setupTestDB(t)
	f := &engineFixture{
		db:        db,
		remote:    newFakeRemote(),
		observer:  &recordingObserver{},
		instances: persistence.NewGormInstanceRepository(db),
		refs:      persistence.NewGormCrossReferenceRepository(db),
		jobs:      persistence.NewGormJobRepository(db),
		log:       persistence.NewGormSyncLog(db),
		local:     persistence.NewGormLocalStore(db),
	}
	f.engine = NewSyncEngine(EngineDeps{
		Instances: f.instances,
		Refs:      f.refs,
		Jobs:      f.jobs,
		Log:       f.log,
		Local:     f.local,
		Remotes:   fakeFactory{remote: f.remote},
		Locker:    lock.NewLocalLocker(),
	}, zap.NewNop(),
		WithObserver(f.observer),
		WithEngineConfig(EngineConfig{PageSize: pageSize, LockTTL: time.Minute}),
	)

	inst, err := integration.NewSyncInstance("Test shop", "test-shop", "shpat_token", "hook-secret", "")
	require.NoError(t, err)
	inst.ExportEnabled = true
	require.NoError(t, f.instances.Save(context.Background(), inst))
	f.instance = inst
	return f
}

func (f *engineFixture) entries(t *testing.T, job *integration.SyncJob) []integration.SyncLogEntry {
	t.Helper()
	id := job.ID
	entries, _, err := f.log.List(context.Background(), integration.SyncLogFilter{JobID: &id})
	require.NoError(t, err)
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.Before(entries[j].CreatedAt) })
	return entries
}

func (f *engineFixture) localRecords(t *testing.T, entity integration.EntityType) []integration.LocalRecord {
	t.Helper()
	recs, err := f.local.List(context.Background(), entity, 0, 1000)
	require.NoError(t, err)
	return recs
}

func productJSON(title, sku, price string) string {
	return fmt.Sprintf(`{"title":%q,"status":"active","vendor":"ACME","variants":[{"sku":%q,"price":%q}]}`, title, sku, price)
}

func countByStatus(entries []integration.SyncLogEntry) map[integration.LogStatus]int {
	out := make(map[integration.LogStatus]int)
	for _, e := range entries {
		out[e.Status]++
	}
	return out
}
