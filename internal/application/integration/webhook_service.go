package integration

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/shopsync/internal/domain/integration"
	"github.com/erp/shopsync/internal/domain/shared"
)

// IncrementalDispatcher hands validated webhook events to a worker that
// runs them through the engine. DispatchWebhook must not block on the
// sync itself.
type IncrementalDispatcher interface {
	DispatchWebhook(ctx context.Context, event *integration.WebhookEvent) error
}

// IncrementalRunner applies one webhook event, normally *SyncEngine
type IncrementalRunner interface {
	RunIncremental(ctx context.Context, instanceID uuid.UUID, event *integration.WebhookEvent) (*integration.SyncJob, error)
}

// WebhookObserver receives the final state of every inbound event
type WebhookObserver interface {
	ObserveWebhook(event *integration.WebhookEvent)
}

// WebhookServiceConfig contains configuration for WebhookService
type WebhookServiceConfig struct {
	Instances  integration.InstanceRepository
	Events     integration.WebhookEventRepository
	Dedup      shared.ExpiringSet
	Dispatcher IncrementalDispatcher
	Runner     IncrementalRunner
	Observer   WebhookObserver
	// Retention is how long a delivery id is remembered for dedup
	Retention time.Duration
	Logger    *zap.Logger
}

// WebhookService receives, authenticates and deduplicates webhook
// deliveries. It never touches local records itself: accepted events are
// handed to the dispatcher and applied by the engine.
type WebhookService struct {
	instances  integration.InstanceRepository
	events     integration.WebhookEventRepository
	dedup      shared.ExpiringSet
	dispatcher IncrementalDispatcher
	runner     IncrementalRunner
	observer   WebhookObserver
	retention  time.Duration
	logger     *zap.Logger
}

// NewWebhookService creates a new WebhookService
func NewWebhookService(cfg WebhookServiceConfig) *WebhookService {
	retention := cfg.Retention
	if retention <= 0 {
		retention = shared.DefaultExpiringSetConfig().Retention
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookService{
		instances:  cfg.Instances,
		events:     cfg.Events,
		dedup:      cfg.Dedup,
		dispatcher: cfg.Dispatcher,
		runner:     cfg.Runner,
		observer:   cfg.Observer,
		retention:  retention,
		logger:     log,
	}
}

// SetDispatcher sets the dispatcher after construction. The production
// dispatcher is the scheduler, which itself needs this service to process
// events.
func (s *WebhookService) SetDispatcher(d IncrementalDispatcher) {
	s.dispatcher = d
}

// ReceiveWebhookInput is one raw delivery as read from the HTTP request
type ReceiveWebhookInput struct {
	InstanceID    uuid.UUID
	RemoteEventID string
	Topic         string
	ShopDomain    string
	// Signature is the base64 HMAC-SHA256 header value
	Signature string
	Body      []byte
}

// Receive records a delivery and, when it is authentic, valid and new,
// enqueues it. Duplicates return the duplicated event and a nil error.
func (s *WebhookService) Receive(ctx context.Context, in ReceiveWebhookInput) (*integration.WebhookEvent, error) {
	instance, err := s.instances.FindByID(ctx, in.InstanceID)
	if err != nil {
		return nil, err
	}

	event := integration.NewWebhookEvent(instance.ID, in.RemoteEventID, integration.WebhookTopic(in.Topic), in.ShopDomain, in.Body)
	log := s.logger.With(
		zap.String("instance_id", instance.ID.String()),
		zap.String("webhook_id", in.RemoteEventID),
		zap.String("webhook_topic", in.Topic),
	)
	if err := s.events.Save(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to save webhook event: %w", err)
	}

	if !VerifySignature(instance.WebhookSecret, in.Body, in.Signature) {
		log.Warn("Webhook signature verification failed")
		return event, s.reject(ctx, event, integration.ErrWebhookAuthenticity)
	}

	if err := checkDelivery(event); err != nil {
		log.Warn("Invalid webhook delivery", zap.Error(err))
		return event, s.reject(ctx, event, err)
	}
	if err := event.Validate(); err != nil {
		return event, err
	}

	added, err := s.dedup.Add(ctx, event.DedupKey(), s.retention)
	if err != nil {
		// processing is idempotent, so an unavailable dedup store only
		// costs a redundant pass
		log.Warn("Dedup store unavailable, accepting delivery", zap.Error(err))
		added = true
	}
	if !added {
		if err := event.MarkDuplicated(); err != nil {
			return event, err
		}
		if err := s.events.Save(ctx, event); err != nil {
			return event, fmt.Errorf("failed to save webhook event: %w", err)
		}
		log.Info("Duplicate webhook delivery ignored")
		s.observe(event)
		return event, nil
	}

	if err := event.Enqueue(); err != nil {
		return event, err
	}
	if err := s.events.Save(ctx, event); err != nil {
		s.forget(ctx, event, log)
		return event, fmt.Errorf("failed to save webhook event: %w", err)
	}
	if s.dispatcher == nil {
		err = errors.New("integration: no webhook dispatcher configured")
	} else {
		err = s.dispatcher.DispatchWebhook(ctx, event)
	}
	if err != nil {
		// let the platform's redelivery through
		s.forget(ctx, event, log)
		_ = event.Complete(nil, err)
		if saveErr := s.events.Save(ctx, event); saveErr != nil {
			log.Error("Failed to save webhook event", zap.Error(saveErr))
		}
		log.Error("Failed to dispatch webhook event", zap.Error(err))
		s.observe(event)
		return event, fmt.Errorf("%w: %v", integration.ErrRemoteUnavailable, err)
	}

	log.Info("Webhook event enqueued", zap.String("event_id", event.ID.String()))
	return event, nil
}

// Process runs an enqueued event through the engine and records the
// outcome. It is called by the dispatcher's workers.
func (s *WebhookService) Process(ctx context.Context, event *integration.WebhookEvent) error {
	job, runErr := s.runner.RunIncremental(ctx, event.InstanceID, event)
	if ctx.Err() != nil && (errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded)) {
		// interrupted by shutdown: the event stays enqueued for Recover
		s.logger.Warn("Webhook event interrupted, left enqueued",
			zap.String("event_id", event.ID.String()), zap.Error(runErr))
		return runErr
	}
	var jobID *uuid.UUID
	if job != nil {
		id := job.ID
		jobID = &id
		if runErr == nil && job.Status == integration.JobStatusPartial {
			runErr = errors.New("record could not be applied, see sync log")
		}
	}
	return s.MarkProcessed(ctx, event.ID, jobID, runErr)
}

// Recover dispatches again every event still enqueued, oldest first. Events
// are left enqueued when the process stops before a worker picks them up.
// It stops at the first dispatch error, the remaining events wait for the
// next start.
func (s *WebhookService) Recover(ctx context.Context) (int, error) {
	if s.dispatcher == nil {
		return 0, errors.New("integration: no webhook dispatcher configured")
	}
	status := integration.WebhookEnqueued
	pending, _, err := s.events.FindAll(ctx, integration.WebhookEventFilter{Status: &status})
	if err != nil {
		return 0, fmt.Errorf("failed to list enqueued webhook events: %w", err)
	}

	dispatched := 0
	for i := len(pending) - 1; i >= 0; i-- {
		event := &pending[i]
		if err := s.dispatcher.DispatchWebhook(ctx, event); err != nil {
			s.logger.Warn("Webhook recovery stopped",
				zap.Int("dispatched", dispatched),
				zap.Int("remaining", i+1),
				zap.Error(err),
			)
			return dispatched, err
		}
		dispatched++
	}
	if dispatched > 0 {
		s.logger.Info("Enqueued webhook events dispatched again", zap.Int("count", dispatched))
	}
	return dispatched, nil
}

// MarkProcessed closes an enqueued event as processed, or failed when
// cause is non-nil
func (s *WebhookService) MarkProcessed(ctx context.Context, eventID uuid.UUID, jobID *uuid.UUID, cause error) error {
	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		return err
	}
	if err := event.Complete(jobID, cause); err != nil {
		return err
	}
	if err := s.events.Save(ctx, event); err != nil {
		return fmt.Errorf("failed to save webhook event: %w", err)
	}
	s.observe(event)

	fields := []zap.Field{
		zap.String("event_id", event.ID.String()),
		zap.String("webhook_topic", event.Topic.String()),
		zap.String("status", string(event.Status)),
	}
	if jobID != nil {
		fields = append(fields, zap.String("job_id", jobID.String()))
	}
	if cause != nil {
		s.logger.Warn("Webhook event failed", append(fields, zap.Error(cause))...)
	} else {
		s.logger.Info("Webhook event processed", fields...)
	}
	return nil
}

// GetEvent returns one recorded event
func (s *WebhookService) GetEvent(ctx context.Context, id uuid.UUID) (*integration.WebhookEvent, error) {
	return s.events.FindByID(ctx, id)
}

// ListEvents returns recorded events
func (s *WebhookService) ListEvents(ctx context.Context, filter integration.WebhookEventFilter) ([]integration.WebhookEvent, int64, error) {
	return s.events.FindAll(ctx, filter)
}

func (s *WebhookService) reject(ctx context.Context, event *integration.WebhookEvent, cause error) error {
	if err := event.Reject(cause); err != nil {
		return err
	}
	if err := s.events.Save(ctx, event); err != nil {
		return fmt.Errorf("failed to save webhook event: %w", err)
	}
	s.observe(event)
	return cause
}

func (s *WebhookService) forget(ctx context.Context, event *integration.WebhookEvent, log *zap.Logger) {
	if err := s.dedup.Remove(ctx, event.DedupKey()); err != nil {
		log.Warn("Failed to release dedup key", zap.Error(err))
	}
}

func (s *WebhookService) observe(event *integration.WebhookEvent) {
	if s.observer != nil {
		s.observer.ObserveWebhook(event)
	}
}

// VerifySignature reports whether signature is the base64 HMAC-SHA256 of
// body under secret
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	given, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(given, mac.Sum(nil))
}

// Sign returns the signature VerifySignature accepts
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// checkDelivery validates the topic, the delivery id and the payload's
// identity
func checkDelivery(event *integration.WebhookEvent) error {
	if !event.Topic.IsValid() {
		return fmt.Errorf("%w: %w: %q", integration.ErrValidation, integration.ErrUnknownWebhookTopic, event.Topic)
	}
	if event.RemoteEventID == "" {
		return fmt.Errorf("%w: missing webhook id", integration.ErrValidation)
	}
	if !event.Payload.IsObject() {
		return fmt.Errorf("%w: payload is not a JSON object", integration.ErrValidation)
	}
	if event.Topic.Entity() == integration.EntityInventory {
		if !event.Payload.Get("inventory_item_id").Exists() || !event.Payload.Get("location_id").Exists() {
			return fmt.Errorf("%w: inventory level needs inventory_item_id and location_id", integration.ErrValidation)
		}
		return nil
	}
	if event.Payload.ID() == "" {
		return fmt.Errorf("%w: payload has no id", integration.ErrValidation)
	}
	return nil
}
