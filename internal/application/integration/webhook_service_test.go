package integration

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erp/shopsync/internal/domain/integration"
	"github.com/erp/shopsync/internal/infrastructure/cache"
	"github.com/erp/shopsync/internal/infrastructure/persistence"
)

// inlineDispatcher processes events synchronously
type inlineDispatcher struct {
	svc   *WebhookService
	err   error
	calls int
}

func (d *inlineDispatcher) DispatchWebhook(ctx context.Context, event *integration.WebhookEvent) error {
	d.calls++
	if d.err != nil {
		return d.err
	}
	return d.svc.Process(ctx, event)
}

// queueingDispatcher accepts events without running them, like a worker
// pool that is stopped before it reaches them
type queueingDispatcher struct {
	queued []*integration.WebhookEvent
	limit  int
}

func (d *queueingDispatcher) DispatchWebhook(_ context.Context, event *integration.WebhookEvent) error {
	if d.limit > 0 && len(d.queued) == d.limit {
		return errors.New("queue full")
	}
	d.queued = append(d.queued, event)
	return nil
}

// interruptedRunner fails the way the engine does when its context is
// cancelled mid-run
type interruptedRunner struct{}

func (interruptedRunner) RunIncremental(ctx context.Context, _ uuid.UUID, _ *integration.WebhookEvent) (*integration.SyncJob, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type failingSet struct{}

func (failingSet) Add(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}
func (failingSet) Contains(context.Context, string) (bool, error) { return false, nil }
func (failingSet) Remove(context.Context, string) error           { return nil }
func (failingSet) Close() error                                   { return nil }

type webhookFixture struct {
	*engineFixture
	events     *persistence.GormWebhookEventRepository
	dedup      *cache.MemoryExpiringSet
	dispatcher *inlineDispatcher
	svc        *WebhookService
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	f := &webhookFixture{engineFixture: newEngineFixture(t, 10)}
	f.events = persistence.NewGormWebhookEventRepository(f.db)
	f.dedup = cache.NewMemoryExpiringSet(time.Minute)
	t.Cleanup(func() { f.dedup.Close() })
	f.svc = NewWebhookService(WebhookServiceConfig{
		Instances: f.instances,
		Events:    f.events,
		Dedup:     f.dedup,
		Runner:    f.engine,
		Retention: time.Hour,
		Logger:    zap.NewNop(),
	})
	f.dispatcher = &inlineDispatcher{svc: f.svc}
	f.svc.SetDispatcher(f.dispatcher)
	return f
}

func (f *webhookFixture) delivery(eventID string, topic integration.WebhookTopic, body string) ReceiveWebhookInput {
	return ReceiveWebhookInput{
		InstanceID:    f.instance.ID,
		RemoteEventID: eventID,
		Topic:         topic.String(),
		ShopDomain:    "test-shop.myshopify.com",
		Signature:     Sign(f.instance.WebhookSecret, []byte(body)),
		Body:          []byte(body),
	}
}

func (f *webhookFixture) stored(t *testing.T, id uuid.UUID) *integration.WebhookEvent {
	t.Helper()
	event, err := f.events.FindByID(context.Background(), id)
	require.NoError(t, err)
	return event
}

const productWebhookBody = `{"id":501,"title":"Mug","status":"active","vendor":"ACME","updated_at":"2024-03-01T10:00:00Z","variants":[{"id":9001,"sku":"MUG-1","price":"12.50"}]}`

func TestWebhookService_DuplicateDeliveryAppliedOnce(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	first, err := f.svc.Receive(ctx, f.delivery("evt-1", integration.TopicProductsUpdate, productWebhookBody))
	require.NoError(t, err)
	second, err := f.svc.Receive(ctx, f.delivery("evt-1", integration.TopicProductsUpdate, productWebhookBody))
	require.NoError(t, err)

	assert.Equal(t, integration.WebhookProcessed, f.stored(t, first.ID).Status)
	assert.Equal(t, integration.WebhookDuplicated, f.stored(t, second.ID).Status)
	assert.Equal(t, 1, f.dispatcher.calls)

	recs := f.localRecords(t, integration.EntityProduct)
	require.Len(t, recs, 1)
	assert.Equal(t, "Mug", recs[0].Fields["name"])

	instID := f.instance.ID
	entries, total, err := f.log.List(ctx, integration.SyncLogFilter{InstanceID: &instID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, entries, 1)
	assert.Equal(t, integration.ActionCreate, entries[0].Action)

	processed := f.stored(t, first.ID)
	require.NotNil(t, processed.JobID)
	assert.Equal(t, entries[0].JobID, *processed.JobID)
	assert.NotNil(t, processed.ProcessedAt)
}

func TestWebhookService_DistinctDeliveriesAreBothApplied(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	_, err := f.svc.Receive(ctx, f.delivery("evt-1", integration.TopicProductsCreate, productWebhookBody))
	require.NoError(t, err)
	renamed := `{"id":501,"title":"Big mug","status":"active","vendor":"ACME","updated_at":"2099-03-01T10:00:00Z","variants":[{"id":9001,"sku":"MUG-1","price":"12.50"}]}`
	event, err := f.svc.Receive(ctx, f.delivery("evt-2", integration.TopicProductsUpdate, renamed))
	require.NoError(t, err)

	assert.Equal(t, integration.WebhookProcessed, f.stored(t, event.ID).Status)
	recs := f.localRecords(t, integration.EntityProduct)
	require.Len(t, recs, 1)
	assert.Equal(t, "Big mug", recs[0].Fields["name"])
}

func TestWebhookService_RejectsForgedSignature(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	in := f.delivery("evt-1", integration.TopicProductsUpdate, productWebhookBody)
	in.Signature = Sign("wrong-secret", in.Body)

	event, err := f.svc.Receive(ctx, in)
	require.ErrorIs(t, err, integration.ErrWebhookAuthenticity)
	require.NotNil(t, event)

	stored := f.stored(t, event.ID)
	assert.Equal(t, integration.WebhookRejected, stored.Status)
	assert.NotEmpty(t, stored.Reason)
	assert.Equal(t, 0, f.dispatcher.calls)
	assert.Empty(t, f.localRecords(t, integration.EntityProduct))

	present, err := f.dedup.Contains(ctx, stored.DedupKey())
	require.NoError(t, err)
	assert.False(t, present, "a forged delivery must not burn the dedup key")
}

func TestWebhookService_RejectsInvalidDeliveries(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		id    string
		topic integration.WebhookTopic
		body  string
	}{
		{"unknown topic", "evt-a", integration.WebhookTopic("carts/update"), productWebhookBody},
		{"payload not an object", "evt-b", integration.TopicProductsUpdate, `[1,2,3]`},
		{"payload without id", "evt-c", integration.TopicCustomersUpdate, `{"email":"a@example.com"}`},
		{"inventory without location", "evt-d", integration.TopicInventoryLevelsUpdate, `{"inventory_item_id":1,"available":3}`},
		{"missing delivery id", "", integration.TopicProductsUpdate, productWebhookBody},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := f.svc.Receive(ctx, f.delivery(tt.id, tt.topic, tt.body))
			require.ErrorIs(t, err, integration.ErrValidation)
			assert.Equal(t, integration.WebhookRejected, f.stored(t, event.ID).Status)
		})
	}
	assert.Equal(t, 0, f.dispatcher.calls)
}

func TestWebhookService_UnknownInstance(t *testing.T) {
	f := newWebhookFixture(t)
	in := f.delivery("evt-1", integration.TopicProductsUpdate, productWebhookBody)
	in.InstanceID = uuid.New()

	_, err := f.svc.Receive(context.Background(), in)
	assert.ErrorIs(t, err, integration.ErrInstanceNotFound)
}

func TestWebhookService_DispatchFailureReleasesDedupKey(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()
	f.dispatcher.err = errors.New("queue full")

	event, err := f.svc.Receive(ctx, f.delivery("evt-1", integration.TopicProductsUpdate, productWebhookBody))
	require.ErrorIs(t, err, integration.ErrRemoteUnavailable)
	assert.Equal(t, integration.WebhookFailed, f.stored(t, event.ID).Status)

	// the platform's redelivery goes through
	f.dispatcher.err = nil
	retried, err := f.svc.Receive(ctx, f.delivery("evt-1", integration.TopicProductsUpdate, productWebhookBody))
	require.NoError(t, err)
	assert.Equal(t, integration.WebhookProcessed, f.stored(t, retried.ID).Status)
	assert.Len(t, f.localRecords(t, integration.EntityProduct), 1)
}

func TestWebhookService_DedupStoreOutageAcceptsDelivery(t *testing.T) {
	f := newWebhookFixture(t)
	f.svc.dedup = failingSet{}

	event, err := f.svc.Receive(context.Background(), f.delivery("evt-1", integration.TopicProductsUpdate, productWebhookBody))
	require.NoError(t, err)
	assert.Equal(t, integration.WebhookProcessed, f.stored(t, event.ID).Status)
}

func TestWebhookService_DeleteTopicDeactivates(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	_, err := f.svc.Receive(ctx, f.delivery("evt-1", integration.TopicProductsCreate, productWebhookBody))
	require.NoError(t, err)
	event, err := f.svc.Receive(ctx, f.delivery("evt-2", integration.TopicProductsDelete, `{"id":501}`))
	require.NoError(t, err)
	assert.Equal(t, integration.WebhookProcessed, f.stored(t, event.ID).Status)

	instID := f.instance.ID
	entries, _, err := f.log.List(ctx, integration.SyncLogFilter{InstanceID: &instID})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, entry := range entries {
		if entry.Action != integration.ActionDeactivate {
			continue
		}
		rec, err := f.local.Get(ctx, integration.EntityProduct, entry.LocalID)
		require.NoError(t, err)
		assert.False(t, rec.Active)
	}
	assert.Empty(t, f.localRecords(t, integration.EntityProduct))
}

func productDelivery(id int) string {
	return fmt.Sprintf(`{"id":%d,"title":"Mug %d","status":"active","vendor":"ACME","updated_at":"2024-03-01T10:00:00Z",`+
		`"variants":[{"id":%d,"sku":"MUG-%d","price":"12.50"}]}`, id, id, id*10, id)
}

func TestWebhookService_RecoverDispatchesEnqueuedEvents(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()
	stopped := &queueingDispatcher{}
	f.svc.SetDispatcher(stopped)

	var ids []uuid.UUID
	for i := 1; i <= 5; i++ {
		event, err := f.svc.Receive(ctx, f.delivery(fmt.Sprintf("evt-%d", i), integration.TopicProductsCreate, productDelivery(600+i)))
		require.NoError(t, err)
		ids = append(ids, event.ID)
	}
	require.Len(t, stopped.queued, 5)
	for _, id := range ids {
		assert.Equal(t, integration.WebhookEnqueued, f.stored(t, id).Status)
	}
	assert.Empty(t, f.localRecords(t, integration.EntityProduct))

	// next start
	f.svc.SetDispatcher(f.dispatcher)
	n, err := f.svc.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, f.dispatcher.calls)
	for _, id := range ids {
		assert.Equal(t, integration.WebhookProcessed, f.stored(t, id).Status)
	}
	assert.Len(t, f.localRecords(t, integration.EntityProduct), 5)

	t.Run("nothing left to recover", func(t *testing.T) {
		n, err := f.svc.Recover(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestWebhookService_RecoverStopsWhenQueueIsFull(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()
	f.svc.SetDispatcher(&queueingDispatcher{})
	for i := 1; i <= 3; i++ {
		_, err := f.svc.Receive(ctx, f.delivery(fmt.Sprintf("evt-%d", i), integration.TopicProductsCreate, productDelivery(700+i)))
		require.NoError(t, err)
	}

	full := &queueingDispatcher{limit: 2}
	f.svc.SetDispatcher(full)
	n, err := f.svc.Recover(ctx)
	require.Error(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, full.queued, 2)

	status := integration.WebhookEnqueued
	_, pending, err := f.events.FindAll(ctx, integration.WebhookEventFilter{Status: &status})
	require.NoError(t, err)
	assert.EqualValues(t, 3, pending, "dispatched events stay enqueued until a worker runs them")
}

func TestWebhookService_InterruptedEventStaysEnqueued(t *testing.T) {
	f := newWebhookFixture(t)
	f.svc.SetDispatcher(&queueingDispatcher{})
	event, err := f.svc.Receive(context.Background(), f.delivery("evt-1", integration.TopicProductsCreate, productWebhookBody))
	require.NoError(t, err)

	f.svc.runner = interruptedRunner{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = f.svc.Process(ctx, event)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, integration.WebhookEnqueued, f.stored(t, event.ID).Status)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"id":1}`)
	sig := Sign("secret", body)

	assert.True(t, VerifySignature("secret", body, sig))
	assert.False(t, VerifySignature("other", body, sig))
	assert.False(t, VerifySignature("secret", []byte(`{"id":2}`), sig))
	assert.False(t, VerifySignature("secret", body, ""))
	assert.False(t, VerifySignature("secret", body, "not base64!"))
	assert.False(t, VerifySignature("", body, sig))
}
