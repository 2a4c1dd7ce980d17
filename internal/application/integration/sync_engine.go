package integration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/shopsync/internal/application/integration/mapper"
	"github.com/erp/shopsync/internal/domain/integration"
	"github.com/erp/shopsync/internal/infrastructure/logger"
	"github.com/erp/shopsync/internal/infrastructure/telemetry"
)

// Observer receives job and record outcomes, e.g. for Prometheus
type Observer interface {
	ObserveJob(job *integration.SyncJob)
	ObserveLogEntry(entry *integration.SyncLogEntry)
}

type nopObserver struct{}

func (nopObserver) ObserveJob(*integration.SyncJob)           {}
func (nopObserver) ObserveLogEntry(*integration.SyncLogEntry) {}

// EngineConfig holds configuration for the sync engine
type EngineConfig struct {
	// PageSize bounds how many records are read from the source at once
	PageSize int
	// LockTTL bounds how long a crashed process can hold an
	// (instance, entity type) lock
	LockTTL time.Duration
}

// DefaultEngineConfig returns default configuration
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		PageSize: 50,
		LockTTL:  30 * time.Minute,
	}
}

// EngineDeps groups the ports the engine works with
type EngineDeps struct {
	Instances integration.InstanceRepository
	Refs      integration.CrossReferenceRepository
	Jobs      integration.JobRepository
	Log       integration.SyncLog
	Local     integration.LocalStore
	Remotes   integration.RemoteClientFactory
	Locker    integration.KeyedLocker
}

// SyncEngine runs import, export and incremental passes. Passes over the
// same (instance, entity type) pair are serialized through the locker;
// different pairs run concurrently.
type SyncEngine struct {
	EngineDeps
	mapper   *mapper.Mapper
	observer Observer
	logger   *zap.Logger
	config   EngineConfig

	mu      sync.Mutex
	running map[uuid.UUID]*atomic.Bool
}

// EngineOption configures a SyncEngine
type EngineOption func(*SyncEngine)

// WithObserver sets the outcome observer
func WithObserver(o Observer) EngineOption {
	return func(e *SyncEngine) { e.observer = o }
}

// WithEngineConfig overrides the default configuration
func WithEngineConfig(cfg EngineConfig) EngineOption {
	return func(e *SyncEngine) { e.config = cfg }
}

// NewSyncEngine creates a new SyncEngine
func NewSyncEngine(deps EngineDeps, logger *zap.Logger, opts ...EngineOption) *SyncEngine {
	e := &SyncEngine{
		EngineDeps: deps,
		mapper:     mapper.New(deps.Refs, deps.Local),
		observer:   nopObserver{},
		logger:     logger,
		config:     DefaultEngineConfig(),
		running:    make(map[uuid.UUID]*atomic.Bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.config.PageSize <= 0 {
		e.config.PageSize = DefaultEngineConfig().PageSize
	}
	if e.config.LockTTL <= 0 {
		e.config.LockTTL = DefaultEngineConfig().LockTTL
	}
	return e
}

// Mapper returns the entity mapper used by the engine
func (e *SyncEngine) Mapper() *mapper.Mapper {
	return e.mapper
}

// jobRun is the state of one executing job
type jobRun struct {
	job       *integration.SyncJob
	instance  *integration.SyncInstance
	client    integration.RemoteClient
	log       *zap.Logger
	cancelled *atomic.Bool
}

// ---------------------------------------------------------------------------
// Batch passes
// ---------------------------------------------------------------------------

// Run executes the batch pass described by req
func (e *SyncEngine) Run(ctx context.Context, req integration.SyncRequest) (*integration.SyncJob, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Direction == integration.DirectionExport {
		return e.RunExport(ctx, req.InstanceID, req.Entity, req.Trigger)
	}
	return e.RunImport(ctx, req.InstanceID, req.Entity, req.Trigger)
}

// RunImport pages through the remote collection and brings the local store
// in line with it. The returned error is non-nil only when no job could be
// started or the job failed on a systemic error; per-record problems are
// reported through the sync log and a partial status.
func (e *SyncEngine) RunImport(ctx context.Context, instanceID uuid.UUID, entity integration.EntityType, trigger integration.Trigger) (*integration.SyncJob, error) {
	spec := jobSpec{instanceID: instanceID, entity: entity, direction: integration.DirectionImport, kind: integration.JobKindBatch, trigger: trigger}
	return e.execute(ctx, spec, e.importBatch)
}

// RunExport pages through the local store and brings the remote store in
// line with it. Errors are reported as for RunImport.
func (e *SyncEngine) RunExport(ctx context.Context, instanceID uuid.UUID, entity integration.EntityType, trigger integration.Trigger) (*integration.SyncJob, error) {
	if entity.IsValid() && !e.mapper.Exportable(entity) {
		return nil, fmt.Errorf("%w: %s records are import only", integration.ErrInvalidDirection, entity)
	}
	spec := jobSpec{instanceID: instanceID, entity: entity, direction: integration.DirectionExport, kind: integration.JobKindBatch, trigger: trigger}
	return e.execute(ctx, spec, e.exportBatch)
}

// Plan returns the batch passes a scheduled pipeline runs for an instance,
// in dependency order. Export plans are empty when export is disabled and
// leave out import-only entity types.
func (e *SyncEngine) Plan(ctx context.Context, instanceID uuid.UUID, direction integration.Direction) ([]integration.SyncRequest, error) {
	if !direction.IsValid() {
		return nil, integration.ErrInvalidDirection
	}
	instance, err := e.Instances.FindByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if direction == integration.DirectionExport && !instance.ExportEnabled {
		return []integration.SyncRequest{}, nil
	}
	order := integration.PipelineOrder()
	plan := make([]integration.SyncRequest, 0, len(order))
	for _, entity := range order {
		if direction == integration.DirectionExport && !e.mapper.Exportable(entity) {
			continue
		}
		plan = append(plan, integration.SyncRequest{
			InstanceID: instanceID,
			Entity:     entity,
			Direction:  direction,
			Trigger:    integration.TriggerSchedule,
		})
	}
	return plan, nil
}

func (e *SyncEngine) importBatch(ctx context.Context, run *jobRun) error {
	cursor := ""
	for {
		page, err := run.client.List(ctx, run.job.Entity, cursor, e.config.PageSize)
		if err != nil {
			return fmt.Errorf("list remote %s: %w", run.job.Entity, err)
		}
		for _, remote := range page.Records {
			if stop, err := e.shouldStop(ctx, run); stop || err != nil {
				return err
			}
			entry, err := e.importRecord(ctx, run, remote)
			if err != nil {
				return err
			}
			if err := e.record(ctx, run, entry); err != nil {
				return err
			}
		}
		if page.NextCursor == "" {
			return nil
		}
		cursor = page.NextCursor
	}
}

func (e *SyncEngine) exportBatch(ctx context.Context, run *jobRun) error {
	offset := 0
	for {
		records, err := e.Local.List(ctx, run.job.Entity, offset, e.config.PageSize)
		if err != nil {
			return fmt.Errorf("list local %s: %w", run.job.Entity, err)
		}
		for i := range records {
			if stop, err := e.shouldStop(ctx, run); stop || err != nil {
				return err
			}
			entry, err := e.exportRecord(ctx, run, &records[i])
			if err != nil {
				return err
			}
			if err := e.record(ctx, run, entry); err != nil {
				return err
			}
		}
		if len(records) < e.config.PageSize {
			return nil
		}
		offset += len(records)
	}
}

// ---------------------------------------------------------------------------
// Incremental passes
// ---------------------------------------------------------------------------

// RunIncremental applies one webhook event as a single-record job
func (e *SyncEngine) RunIncremental(ctx context.Context, instanceID uuid.UUID, event *integration.WebhookEvent) (*integration.SyncJob, error) {
	if !event.Topic.IsValid() {
		return nil, integration.ErrUnknownWebhookTopic
	}
	eventID := event.ID
	spec := jobSpec{
		instanceID: instanceID,
		entity:     event.Topic.Entity(),
		direction:  integration.DirectionImport,
		kind:       integration.JobKindIncremental,
		trigger:    integration.TriggerWebhook,
		eventID:    &eventID,
	}
	return e.execute(ctx, spec, func(ctx context.Context, run *jobRun) error {
		run.log = run.log.With(zap.String("webhook_topic", event.Topic.String()))
		var (
			entry *integration.SyncLogEntry
			err   error
		)
		switch event.Topic.Effect() {
		case integration.EffectDeactivate:
			entry, err = e.deactivateRecord(ctx, run, event.Payload)
		case integration.EffectParentOrder:
			entry, err = e.importParentOrder(ctx, run, event.Payload)
		default:
			entry, err = e.importRecords(ctx, run, event.Payload)
		}
		if err != nil {
			return err
		}
		return e.record(ctx, run, entry)
	})
}

// RetryEntry re-syncs the single record of an errored or skipped log entry
// in the entry's direction
func (e *SyncEngine) RetryEntry(ctx context.Context, entryID uuid.UUID) (*integration.SyncJob, error) {
	entry, err := e.Log.FindByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if !entry.IsRetryable() {
		return nil, integration.ErrLogEntryNotRetryable
	}
	spec := jobSpec{
		instanceID: entry.InstanceID,
		entity:     entry.Entity,
		direction:  entry.Direction,
		kind:       integration.JobKindIncremental,
		trigger:    integration.TriggerRetry,
	}
	return e.execute(ctx, spec, func(ctx context.Context, run *jobRun) error {
		run.log = run.log.With(zap.String("retry_of", entry.ID.String()))
		var (
			result *integration.SyncLogEntry
			err    error
		)
		if entry.Direction == integration.DirectionExport {
			result, err = e.retryExport(ctx, run, entry)
		} else {
			result, err = e.retryImport(ctx, run, entry)
		}
		if err != nil {
			return err
		}
		return e.record(ctx, run, result)
	})
}

func (e *SyncEngine) retryImport(ctx context.Context, run *jobRun, entry *integration.SyncLogEntry) (*integration.SyncLogEntry, error) {
	var (
		payload integration.RemotePayload
		err     error
	)
	if entry.RemoteID != "" {
		payload, err = run.client.Get(ctx, entry.Entity, entry.RemoteID)
	} else {
		payload, err = single(run.client.FindByKey(ctx, entry.Entity, entry.NaturalKey))
	}
	if err != nil {
		return e.recordError(run, integration.ActionUpdate, entry.LocalID, entry.RemoteID, entry.NaturalKey, err)
	}
	return e.importRecord(ctx, run, payload)
}

func (e *SyncEngine) retryExport(ctx context.Context, run *jobRun, entry *integration.SyncLogEntry) (*integration.SyncLogEntry, error) {
	var (
		rec *integration.LocalRecord
		err error
	)
	if entry.LocalID != "" {
		rec, err = e.Local.Get(ctx, entry.Entity, entry.LocalID)
	} else {
		var found []integration.LocalRecord
		found, err = e.Local.FindByKey(ctx, entry.Entity, entry.NaturalKey)
		if err == nil {
			switch len(found) {
			case 0:
				err = integration.ErrRecordNotFound
			case 1:
				rec = &found[0]
			default:
				err = fmt.Errorf("%w: %d local records share key %q", integration.ErrAmbiguousMatch, len(found), entry.NaturalKey)
			}
		}
	}
	if err != nil {
		return e.recordError(run, integration.ActionUpdate, entry.LocalID, entry.RemoteID, entry.NaturalKey, err)
	}
	return e.exportRecord(ctx, run, rec)
}

// single narrows a key lookup to exactly one result
func single(found []integration.RemotePayload, err error) (integration.RemotePayload, error) {
	if err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, integration.ErrRemoteNotFound
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("%w: %d remote records share the key", integration.ErrAmbiguousMatch, len(found))
	}
}

// ---------------------------------------------------------------------------
// Cancellation
// ---------------------------------------------------------------------------

// Cancel asks a job to stop. A pending job is cancelled at once; a running
// job becomes cancelling and stops before its next record, keeping the
// entries written so far.
func (e *SyncEngine) Cancel(ctx context.Context, jobID uuid.UUID) (*integration.SyncJob, error) {
	for attempt := 0; attempt < 3; attempt++ {
		job, err := e.Jobs.FindByID(ctx, jobID)
		if err != nil {
			return nil, err
		}
		from := job.Status
		if err := job.RequestCancel(); err != nil {
			return nil, err
		}
		if job.Status == from {
			return job, nil
		}
		changed, err := e.Jobs.TransitionStatus(ctx, jobID, from, job.Status)
		if err != nil {
			return nil, err
		}
		if !changed {
			// the job moved on meanwhile, decide again on its new status
			continue
		}
		if job.Status == integration.JobStatusCancelling {
			e.flagCancelled(jobID)
		}
		e.logger.Info("Sync job cancellation requested",
			zap.String("job_id", jobID.String()),
			zap.String("status", string(job.Status)),
		)
		return e.Jobs.FindByID(ctx, jobID)
	}
	return nil, integration.ErrJobNotCancellable
}

func (e *SyncEngine) register(jobID uuid.UUID) *atomic.Bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	flag := &atomic.Bool{}
	e.running[jobID] = flag
	return flag
}

func (e *SyncEngine) unregister(jobID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, jobID)
}

func (e *SyncEngine) flagCancelled(jobID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if flag, ok := e.running[jobID]; ok {
		flag.Store(true)
	}
}

// IsRunning reports whether this process is executing the job
func (e *SyncEngine) IsRunning(jobID uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.running[jobID]
	return ok
}

// shouldStop is checked between records. The job row is the flag so that
// a cancellation requested by another process is seen too.
func (e *SyncEngine) shouldStop(ctx context.Context, run *jobRun) (bool, error) {
	if err := ctx.Err(); err != nil {
		return true, err
	}
	if run.cancelled.Load() {
		return true, nil
	}
	status, err := e.Jobs.Status(ctx, run.job.ID)
	if err != nil {
		return true, fmt.Errorf("read job status: %w", err)
	}
	if status == integration.JobStatusCancelling {
		run.cancelled.Store(true)
		return true, nil
	}
	return false, nil
}

// ---------------------------------------------------------------------------
// Job lifecycle
// ---------------------------------------------------------------------------

type jobSpec struct {
	instanceID uuid.UUID
	entity     integration.EntityType
	direction  integration.Direction
	kind       integration.JobKind
	trigger    integration.Trigger
	eventID    *uuid.UUID
}

func (e *SyncEngine) execute(ctx context.Context, spec jobSpec, body func(context.Context, *jobRun) error) (*integration.SyncJob, error) {
	if !spec.entity.IsValid() {
		return nil, integration.ErrInvalidEntityType
	}
	instance, client, err := e.prepare(ctx, spec.instanceID)
	if err != nil {
		return nil, err
	}

	release, err := e.Locker.Lock(ctx, integration.LockKey(spec.instanceID, spec.entity), e.config.LockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	job, err := integration.NewSyncJob(spec.instanceID, spec.entity, spec.direction, spec.kind, spec.trigger)
	if err != nil {
		return nil, err
	}
	job.WebhookEventID = spec.eventID
	if err := e.Jobs.Save(ctx, job); err != nil {
		return nil, err
	}
	started, err := e.Jobs.TransitionStatus(ctx, job.ID, integration.JobStatusPending, integration.JobStatusRunning)
	if err != nil {
		return nil, err
	}
	if !started {
		// cancelled while pending
		return e.Jobs.FindByID(ctx, job.ID)
	}
	if err := job.Start(); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartJobSpan(ctx, job.ID.String(), spec.instanceID.String(), string(spec.entity), string(spec.direction))
	defer span.End()
	ctx, log := logger.WithInstanceID(ctx, e.logger, spec.instanceID.String())
	ctx, log = logger.WithJobID(ctx, log, job.ID.String())
	log = log.With(
		zap.String("entity", string(spec.entity)),
		zap.String("direction", string(spec.direction)),
		zap.String("kind", string(spec.kind)),
	)

	run := &jobRun{
		job:       job,
		instance:  instance,
		client:    client,
		log:       log,
		cancelled: e.register(job.ID),
	}
	defer e.unregister(job.ID)

	log.Info("Sync job started", zap.String("trigger", string(spec.trigger)))
	var cause error
	labels := telemetry.SyncJobLabels(job.ID.String(), spec.instanceID.String(), string(spec.entity), string(spec.direction))
	telemetry.WithProfilingLabels(ctx, labels, func(ctx context.Context) {
		cause = body(ctx, run)
	})
	e.finish(ctx, run, cause)

	telemetry.SetAttributes(span,
		telemetry.SpanAttrJobKind, string(spec.kind),
		telemetry.SpanAttrProcessed, job.Total(),
		telemetry.SpanAttrFailed, job.Errored,
	)
	if job.Status == integration.JobStatusFailed {
		telemetry.RecordError(span, cause)
		return job, cause
	}
	telemetry.SetOK(span)
	return job, nil
}

// prepare loads the instance and makes sure its credentials were accepted
// by a connectivity probe
func (e *SyncEngine) prepare(ctx context.Context, instanceID uuid.UUID) (*integration.SyncInstance, integration.RemoteClient, error) {
	instance, err := e.Instances.FindByID(ctx, instanceID)
	if err != nil {
		return nil, nil, err
	}
	if err := instance.CanSync(); err != nil {
		return nil, nil, err
	}
	client, err := e.Remotes.ForInstance(instance)
	if err != nil {
		return nil, nil, err
	}
	if instance.IsVerified() {
		return instance, client, nil
	}

	shop, err := client.Shop(ctx)
	if err != nil {
		if errors.Is(err, integration.ErrAuthRejected) {
			e.markAuthRejected(ctx, instanceID)
		}
		return nil, nil, err
	}
	instance.MarkVerified(shop.Name, shop.Currency)
	if err := e.Instances.Save(ctx, instance); err != nil {
		return nil, nil, err
	}
	return instance, client, nil
}

func (e *SyncEngine) markAuthRejected(ctx context.Context, instanceID uuid.UUID) {
	instance, err := e.Instances.FindByID(ctx, instanceID)
	if err != nil {
		e.logger.Error("Failed to load instance to mark credentials rejected", zap.Error(err))
		return
	}
	instance.MarkAuthRejected()
	if err := e.Instances.Save(ctx, instance); err != nil {
		e.logger.Error("Failed to mark instance credentials rejected", zap.Error(err))
	}
}

// finish settles the job's final status. The status column is moved with a
// compare-and-set so a cancellation landing meanwhile is never overwritten.
func (e *SyncEngine) finish(ctx context.Context, run *jobRun, cause error) {
	ctx = context.WithoutCancel(ctx)
	job := run.job

	stored := integration.JobStatusRunning
	if run.cancelled.Load() {
		stored = integration.JobStatusCancelling
		job.MarkCancelling()
	}
	if cause != nil {
		job.Fail(cause)
	} else if err := job.Finish(); err != nil {
		job.Fail(err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		moved, err := e.Jobs.TransitionStatus(ctx, job.ID, stored, job.Status)
		if err != nil {
			run.log.Error("Failed to settle sync job status", zap.Error(err))
			break
		}
		if moved {
			break
		}
		stored = integration.JobStatusCancelling
		if job.Status != integration.JobStatusFailed {
			job.Status = integration.JobStatusCancelled
		}
	}
	if err := e.Jobs.Save(ctx, job); err != nil {
		run.log.Error("Failed to save finished sync job", zap.Error(err))
	}

	switch {
	case errors.Is(cause, integration.ErrAuthRejected):
		e.markAuthRejected(ctx, job.InstanceID)
	case job.Kind == integration.JobKindBatch && job.Direction == integration.DirectionImport &&
		(job.Status == integration.JobStatusSuccess || job.Status == integration.JobStatusPartial):
		e.advanceWatermark(ctx, run)
	}

	e.observer.ObserveJob(job)
	fields := []zap.Field{
		zap.String("status", string(job.Status)),
		zap.Int("created", job.Created),
		zap.Int("updated", job.Updated),
		zap.Int("unchanged", job.Unchanged),
		zap.Int("skipped", job.Skipped),
		zap.Int("errored", job.Errored),
		zap.Duration("duration", job.Duration()),
	}
	if cause != nil {
		run.log.Error("Sync job failed", append(fields, zap.Error(cause), zap.Bool("retryable", job.Retryable))...)
		return
	}
	run.log.Info("Sync job finished", fields...)
}

// advanceWatermark reloads the instance so watermarks written by concurrent
// jobs of other entity types are kept
func (e *SyncEngine) advanceWatermark(ctx context.Context, run *jobRun) {
	instance, err := e.Instances.FindByID(ctx, run.job.InstanceID)
	if err != nil {
		run.log.Warn("Failed to reload instance for watermark", zap.Error(err))
		return
	}
	instance.AdvanceWatermark(run.job.Entity, *run.job.StartedAt)
	if err := e.Instances.Save(ctx, instance); err != nil {
		run.log.Warn("Failed to advance sync watermark", zap.Error(err))
	}
}

// record appends the entry and counts it. A failed append is systemic: an
// outcome that cannot be audited must not be followed by more writes.
func (e *SyncEngine) record(ctx context.Context, run *jobRun, entry *integration.SyncLogEntry) error {
	if err := e.Log.Append(ctx, entry); err != nil {
		return fmt.Errorf("append sync log: %w", err)
	}
	run.job.RecordOutcome(entry.Action, entry.Status)
	if err := e.Jobs.SaveProgress(ctx, run.job); err != nil {
		run.log.Warn("Failed to save sync job progress", zap.Error(err))
	}
	e.observer.ObserveLogEntry(entry)

	fields := []zap.Field{
		zap.String("action", string(entry.Action)),
		zap.String("local_id", entry.LocalID),
		zap.String("remote_id", entry.RemoteID),
		zap.String("natural_key", entry.NaturalKey),
	}
	switch entry.Status {
	case integration.LogStatusErrored:
		run.log.Warn("Record failed", append(fields, zap.String("code", entry.ErrorCode), zap.String("error", entry.Message))...)
	case integration.LogStatusSkipped:
		run.log.Warn("Record skipped", append(fields, zap.String("code", entry.ErrorCode), zap.String("reason", entry.Message))...)
	default:
		run.log.Debug("Record synced", append(fields, zap.Strings("changed", entry.ChangedFields))...)
	}
	return nil
}

// recordError turns a per-record error into its log entry and passes
// systemic errors up to abort the job
func (e *SyncEngine) recordError(run *jobRun, action integration.SyncAction, localID, remoteID, key string, err error) (*integration.SyncLogEntry, error) {
	if isFatal(err) {
		return nil, err
	}
	return integration.NewSyncLogEntry(run.job, action, localID, remoteID, key, nil, err), nil
}

// isFatal reports whether err must abort the whole job
func isFatal(err error) bool {
	return integration.IsSystemic(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
