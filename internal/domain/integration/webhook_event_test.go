package integration

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookTopic(t *testing.T) {
	tests := []struct {
		topic  WebhookTopic
		entity EntityType
		effect TopicEffect
	}{
		{TopicProductsUpdate, EntityProduct, EffectUpsert},
		{TopicProductsDelete, EntityProduct, EffectDeactivate},
		{TopicCustomersCreate, EntityCustomer, EffectUpsert},
		{TopicOrdersCancelled, EntityOrder, EffectUpsert},
		{TopicInventoryLevelsUpdate, EntityInventory, EffectUpsert},
		{TopicRefundsCreate, EntityOrder, EffectParentOrder},
		{TopicCollectionsUpdate, EntityCollection, EffectUpsert},
		{TopicCollectionsDelete, EntityCollection, EffectDeactivate},
	}

	for _, tt := range tests {
		t.Run(tt.topic.String(), func(t *testing.T) {
			assert.True(t, tt.topic.IsValid())
			assert.Equal(t, tt.entity, tt.topic.Entity())
			assert.Equal(t, tt.effect, tt.topic.Effect())
		})
	}

	assert.False(t, WebhookTopic("carts/create").IsValid())
	assert.Len(t, AllTopics(), 14)
}

func TestWebhookEvent_Lifecycle(t *testing.T) {
	instanceID := uuid.New()

	t.Run("Happy path", func(t *testing.T) {
		ev := NewWebhookEvent(instanceID, "evt-1", TopicOrdersCreate, "acme.myshopify.com", []byte(`{"id":42}`))
		assert.Equal(t, WebhookReceived, ev.Status)
		assert.Equal(t, "42", ev.RemoteEntityID)
		assert.Equal(t, "webhook:"+instanceID.String()+":evt-1", ev.DedupKey())

		require.NoError(t, ev.Validate())
		require.NoError(t, ev.Enqueue())
		jobID := uuid.New()
		require.NoError(t, ev.Complete(&jobID, nil))
		assert.Equal(t, WebhookProcessed, ev.Status)
		assert.Equal(t, &jobID, ev.JobID)
		assert.NotNil(t, ev.ProcessedAt)
		assert.True(t, ev.Status.IsTerminal())
	})

	t.Run("Failed processing", func(t *testing.T) {
		ev := NewWebhookEvent(instanceID, "evt-2", TopicOrdersCreate, "", []byte(`{"id":1}`))
		require.NoError(t, ev.Validate())
		require.NoError(t, ev.Enqueue())
		require.NoError(t, ev.Complete(nil, errors.New("remote down")))
		assert.Equal(t, WebhookFailed, ev.Status)
		assert.Equal(t, "remote down", ev.Reason)
	})

	t.Run("Rejected", func(t *testing.T) {
		ev := NewWebhookEvent(instanceID, "evt-3", TopicOrdersCreate, "", []byte(`not json`))
		assert.Empty(t, ev.RemoteEntityID)
		require.NoError(t, ev.Reject(ErrWebhookAuthenticity))
		assert.Equal(t, WebhookRejected, ev.Status)
		assert.ErrorIs(t, ev.Enqueue(), ErrInvalidWebhookTransition)
	})

	t.Run("Duplicated only after validation", func(t *testing.T) {
		ev := NewWebhookEvent(instanceID, "evt-4", TopicOrdersCreate, "", []byte(`{"id":1}`))
		assert.ErrorIs(t, ev.MarkDuplicated(), ErrInvalidWebhookTransition)
		require.NoError(t, ev.Validate())
		require.NoError(t, ev.MarkDuplicated())
		assert.Equal(t, WebhookDuplicated, ev.Status)
	})
}
