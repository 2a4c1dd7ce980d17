package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// WebhookTopic
// ---------------------------------------------------------------------------

// WebhookTopic is the remote notification topic, e.g. "orders/create"
type WebhookTopic string

const (
	TopicProductsCreate        WebhookTopic = "products/create"
	TopicProductsUpdate        WebhookTopic = "products/update"
	TopicProductsDelete        WebhookTopic = "products/delete"
	TopicCustomersCreate       WebhookTopic = "customers/create"
	TopicCustomersUpdate       WebhookTopic = "customers/update"
	TopicOrdersCreate          WebhookTopic = "orders/create"
	TopicOrdersUpdated         WebhookTopic = "orders/updated"
	TopicOrdersCancelled       WebhookTopic = "orders/cancelled"
	TopicOrdersFulfilled       WebhookTopic = "orders/fulfilled"
	TopicInventoryLevelsUpdate WebhookTopic = "inventory_levels/update"
	TopicRefundsCreate         WebhookTopic = "refunds/create"
	TopicCollectionsCreate     WebhookTopic = "collections/create"
	TopicCollectionsUpdate     WebhookTopic = "collections/update"
	TopicCollectionsDelete     WebhookTopic = "collections/delete"
)

// TopicEffect tells the engine how to apply a topic's payload
type TopicEffect string

const (
	// EffectUpsert imports the payload as one record
	EffectUpsert TopicEffect = "upsert"
	// EffectDeactivate deactivates the matching local record
	EffectDeactivate TopicEffect = "deactivate"
	// EffectParentOrder re-imports the order referenced by the payload's order_id
	EffectParentOrder TopicEffect = "parent_order"
)

type topicRoute struct {
	entity EntityType
	effect TopicEffect
}

var topicRoutes = map[WebhookTopic]topicRoute{
	TopicProductsCreate:        {EntityProduct, EffectUpsert},
	TopicProductsUpdate:        {EntityProduct, EffectUpsert},
	TopicProductsDelete:        {EntityProduct, EffectDeactivate},
	TopicCustomersCreate:       {EntityCustomer, EffectUpsert},
	TopicCustomersUpdate:       {EntityCustomer, EffectUpsert},
	TopicOrdersCreate:          {EntityOrder, EffectUpsert},
	TopicOrdersUpdated:         {EntityOrder, EffectUpsert},
	TopicOrdersCancelled:       {EntityOrder, EffectUpsert},
	TopicOrdersFulfilled:       {EntityOrder, EffectUpsert},
	TopicInventoryLevelsUpdate: {EntityInventory, EffectUpsert},
	TopicRefundsCreate:         {EntityOrder, EffectParentOrder},
	TopicCollectionsCreate:     {EntityCollection, EffectUpsert},
	TopicCollectionsUpdate:     {EntityCollection, EffectUpsert},
	TopicCollectionsDelete:     {EntityCollection, EffectDeactivate},
}

// IsValid returns true if the topic is handled
func (t WebhookTopic) IsValid() bool {
	_, ok := topicRoutes[t]
	return ok
}

// Entity returns the entity type the topic concerns
func (t WebhookTopic) Entity() EntityType {
	return topicRoutes[t].entity
}

// Effect returns how the topic's payload is applied
func (t WebhookTopic) Effect() TopicEffect {
	return topicRoutes[t].effect
}

// String returns the string representation of WebhookTopic
func (t WebhookTopic) String() string {
	return string(t)
}

// AllTopics returns every handled topic in a stable order
func AllTopics() []WebhookTopic {
	return []WebhookTopic{
		TopicProductsCreate, TopicProductsUpdate, TopicProductsDelete,
		TopicCustomersCreate, TopicCustomersUpdate,
		TopicOrdersCreate, TopicOrdersUpdated, TopicOrdersCancelled, TopicOrdersFulfilled,
		TopicInventoryLevelsUpdate, TopicRefundsCreate,
		TopicCollectionsCreate, TopicCollectionsUpdate, TopicCollectionsDelete,
	}
}

// ---------------------------------------------------------------------------
// WebhookStatus
// ---------------------------------------------------------------------------

// WebhookStatus is the state of an inbound event
type WebhookStatus string

const (
	WebhookReceived   WebhookStatus = "received"
	WebhookValidated  WebhookStatus = "validated"
	WebhookEnqueued   WebhookStatus = "enqueued"
	WebhookProcessed  WebhookStatus = "processed"
	WebhookFailed     WebhookStatus = "failed"
	WebhookRejected   WebhookStatus = "rejected"
	WebhookDuplicated WebhookStatus = "duplicated"
)

var webhookTransitions = map[WebhookStatus][]WebhookStatus{
	WebhookReceived:  {WebhookValidated, WebhookRejected},
	WebhookValidated: {WebhookEnqueued, WebhookDuplicated},
	WebhookEnqueued:  {WebhookProcessed, WebhookFailed},
}

// CanTransitionTo returns true if the state machine allows moving to next
func (s WebhookStatus) CanTransitionTo(next WebhookStatus) bool {
	for _, allowed := range webhookTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal returns true if the event will not change anymore
func (s WebhookStatus) IsTerminal() bool {
	return len(webhookTransitions[s]) == 0
}

// ---------------------------------------------------------------------------
// WebhookEvent Entity
// ---------------------------------------------------------------------------

// WebhookEvent is one inbound notification from the remote platform
type WebhookEvent struct {
	ID         uuid.UUID
	InstanceID uuid.UUID
	// RemoteEventID is the platform's delivery id, the dedup key
	RemoteEventID  string
	Topic          WebhookTopic
	ShopDomain     string
	RemoteEntityID string
	Payload        RemotePayload
	Status         WebhookStatus
	Reason         string
	JobID          *uuid.UUID
	ReceivedAt     time.Time
	ProcessedAt    *time.Time
	UpdatedAt      time.Time
}

// NewWebhookEvent records a freshly received notification
func NewWebhookEvent(instanceID uuid.UUID, remoteEventID string, topic WebhookTopic, shopDomain string, payload []byte) *WebhookEvent {
	now := time.Now()
	p := RemotePayload(payload)
	var entityID string
	if p.IsObject() {
		entityID = p.ID()
	}
	return &WebhookEvent{
		ID:             uuid.New(),
		InstanceID:     instanceID,
		RemoteEventID:  remoteEventID,
		Topic:          topic,
		ShopDomain:     shopDomain,
		RemoteEntityID: entityID,
		Payload:        p,
		Status:         WebhookReceived,
		ReceivedAt:     now,
		UpdatedAt:      now,
	}
}

func (e *WebhookEvent) transition(next WebhookStatus, reason string) error {
	if !e.Status.CanTransitionTo(next) {
		return ErrInvalidWebhookTransition
	}
	e.Status = next
	if reason != "" {
		e.Reason = reason
	}
	e.UpdatedAt = time.Now()
	return nil
}

// Validate moves the event to validated
func (e *WebhookEvent) Validate() error { return e.transition(WebhookValidated, "") }

// Reject moves the event to rejected with the cause as reason
func (e *WebhookEvent) Reject(cause error) error {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	return e.transition(WebhookRejected, reason)
}

// MarkDuplicated moves the event to duplicated
func (e *WebhookEvent) MarkDuplicated() error {
	return e.transition(WebhookDuplicated, "remote event already processed")
}

// Enqueue moves the event to enqueued
func (e *WebhookEvent) Enqueue() error { return e.transition(WebhookEnqueued, "") }

// Complete closes an enqueued event with the outcome of its incremental job
func (e *WebhookEvent) Complete(jobID *uuid.UUID, cause error) error {
	next := WebhookProcessed
	reason := ""
	if cause != nil {
		next = WebhookFailed
		reason = cause.Error()
	}
	if err := e.transition(next, reason); err != nil {
		return err
	}
	now := time.Now()
	e.JobID = jobID
	e.ProcessedAt = &now
	return nil
}

// DedupKey is the key used in the expiring dedup set
func (e *WebhookEvent) DedupKey() string {
	return "webhook:" + e.InstanceID.String() + ":" + e.RemoteEventID
}

// WebhookEventFilter defines filtering options for listing events
type WebhookEventFilter struct {
	InstanceID *uuid.UUID
	Topic      *WebhookTopic
	Status     *WebhookStatus
	Page       int
	PageSize   int
}

// WebhookEventRepository persists inbound events
type WebhookEventRepository interface {
	Save(ctx context.Context, event *WebhookEvent) error
	FindByID(ctx context.Context, id uuid.UUID) (*WebhookEvent, error)
	FindAll(ctx context.Context, filter WebhookEventFilter) ([]WebhookEvent, int64, error)
}

// ---------------------------------------------------------------------------
// WebhookSubscription
// ---------------------------------------------------------------------------

// WebhookSubscription is a webhook registered on the remote platform
type WebhookSubscription struct {
	ID         uuid.UUID
	InstanceID uuid.UUID
	Topic      WebhookTopic
	RemoteID   string
	Address    string
	CreatedAt  time.Time
}

// WebhookSubscriptionRepository persists remote webhook registrations
type WebhookSubscriptionRepository interface {
	Save(ctx context.Context, sub *WebhookSubscription) error
	FindByInstance(ctx context.Context, instanceID uuid.UUID) ([]WebhookSubscription, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// NewWebhookSubscription records a webhook registered on the remote platform
func NewWebhookSubscription(instanceID uuid.UUID, topic WebhookTopic, remoteID, address string) *WebhookSubscription {
	return &WebhookSubscription{
		ID:         uuid.New(),
		InstanceID: instanceID,
		Topic:      topic,
		RemoteID:   remoteID,
		Address:    address,
		CreatedAt:  time.Now(),
	}
}
