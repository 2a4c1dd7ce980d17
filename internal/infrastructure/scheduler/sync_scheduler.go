package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/shopsync/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Task Types
// ---------------------------------------------------------------------------

// TaskStatus represents the status of a queued task
type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// TaskKind tells pipelines and webhook events apart
type TaskKind string

const (
	TaskKindPipeline TaskKind = "pipeline"
	TaskKindWebhook  TaskKind = "webhook"
)

// Task is one unit of queued work: an ordered pipeline of batch passes of
// one instance, or one webhook event
type Task struct {
	ID         uuid.UUID
	Kind       TaskKind
	InstanceID uuid.UUID
	Steps      []integration.SyncRequest
	Event      *integration.WebhookEvent
	Status     TaskStatus
	// JobIDs lists the sync jobs the task ran, in step order
	JobIDs []uuid.UUID
	// Skipped counts the steps left out after a systemic failure
	Skipped     int
	Error       string
	SubmittedAt time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

func newTask(kind TaskKind, instanceID uuid.UUID) *Task {
	return &Task{
		ID:          uuid.New(),
		Kind:        kind,
		InstanceID:  instanceID,
		Status:      TaskStatusQueued,
		SubmittedAt: time.Now(),
	}
}

func (t *Task) start() {
	now := time.Now()
	t.Status = TaskStatusRunning
	t.StartedAt = &now
}

func (t *Task) complete(err error) {
	now := time.Now()
	t.CompletedAt = &now
	if err != nil {
		t.Status = TaskStatusFailed
		t.Error = err.Error()
		return
	}
	t.Status = TaskStatusCompleted
}

func (t *Task) snapshot() *Task {
	cp := *t
	cp.Steps = append([]integration.SyncRequest(nil), t.Steps...)
	cp.JobIDs = append([]uuid.UUID(nil), t.JobIDs...)
	return &cp
}

// ---------------------------------------------------------------------------
// Collaborators
// ---------------------------------------------------------------------------

// Executor runs one batch pass, normally the sync engine
type Executor interface {
	Run(ctx context.Context, req integration.SyncRequest) (*integration.SyncJob, error)
}

// WebhookProcessor applies one enqueued webhook event
type WebhookProcessor interface {
	Process(ctx context.Context, event *integration.WebhookEvent) error
}

// QueueObserver receives the queue depth after every change
type QueueObserver interface {
	SetQueueDepth(n int)
}

// ---------------------------------------------------------------------------
// SyncSchedulerConfig
// ---------------------------------------------------------------------------

// SyncSchedulerConfig holds configuration for the sync scheduler
type SyncSchedulerConfig struct {
	// MaxConcurrentJobs is the number of workers
	MaxConcurrentJobs int
	// QueueSize bounds the number of waiting tasks
	QueueSize int
	// JobTimeout bounds one pipeline step or webhook event
	JobTimeout time.Duration
	// HistoryLimit is how many finished tasks are kept for monitoring
	HistoryLimit int
}

// DefaultSyncSchedulerConfig returns default configuration
func DefaultSyncSchedulerConfig() SyncSchedulerConfig {
	return SyncSchedulerConfig{
		MaxConcurrentJobs: 3,
		QueueSize:         100,
		JobTimeout:        30 * time.Minute,
		HistoryLimit:      500,
	}
}

// Validate validates the configuration
func (c *SyncSchedulerConfig) Validate() error {
	if c.MaxConcurrentJobs <= 0 {
		return ErrInvalidConfig
	}
	if c.QueueSize <= 0 {
		return ErrInvalidConfig
	}
	if c.JobTimeout <= 0 {
		return ErrInvalidConfig
	}
	if c.HistoryLimit < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// ---------------------------------------------------------------------------
// SyncScheduler
// ---------------------------------------------------------------------------

// SyncScheduler runs sync pipelines and webhook events on a bounded worker
// pool. It is also the dispatcher the webhook receiver hands events to.
type SyncScheduler struct {
	config    SyncSchedulerConfig
	executor  Executor
	processor WebhookProcessor
	observer  QueueObserver
	logger    *zap.Logger

	tasks     chan *Task
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	// pipelines queued or running per instance
	inflightMu sync.Mutex
	inflight   map[uuid.UUID]int

	historyMu sync.RWMutex
	history   []*Task
}

// NewSyncScheduler creates a new sync scheduler
func NewSyncScheduler(config SyncSchedulerConfig, executor Executor, logger *zap.Logger) (*SyncScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &SyncScheduler{
		config:   config,
		executor: executor,
		logger:   logger,
		tasks:    make(chan *Task, config.QueueSize),
		inflight: make(map[uuid.UUID]int),
		history:  make([]*Task, 0, config.HistoryLimit),
	}, nil
}

// SetWebhookProcessor sets the processor of webhook tasks. The webhook
// service both dispatches to and is called back by the scheduler, so it is
// wired after construction.
func (s *SyncScheduler) SetWebhookProcessor(p WebhookProcessor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processor = p
}

// SetQueueObserver sets the queue depth observer
func (s *SyncScheduler) SetQueueObserver(o QueueObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = o
}

// Start starts the scheduler
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.config.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("Sync scheduler started",
		zap.Int("workers", s.config.MaxConcurrentJobs),
		zap.Int("queue_size", s.config.QueueSize),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels running tasks and waits for the workers to return. Running
// jobs stop at the next record boundary. Tasks still queued are closed as
// failed with ErrSchedulerStopped; their webhook events stay enqueued in
// the event store for the next start to dispatch again.
func (s *SyncScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	close(s.tasks)
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		s.logger.Info("Sync scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.Warn("Sync scheduler stop timed out")
		err = ctx.Err()
	}
	s.abandonQueued()
	return err
}

// abandonQueued closes every task left in the queue. The channel is closed,
// so workers still draining it and this loop each receive distinct tasks.
func (s *SyncScheduler) abandonQueued() {
	abandoned := 0
	for task := range s.tasks {
		task.complete(ErrSchedulerStopped)
		fields := []zap.Field{
			zap.String("task_id", task.ID.String()),
			zap.String("instance_id", task.InstanceID.String()),
			zap.String("kind", string(task.Kind)),
		}
		if task.Kind == TaskKindWebhook {
			fields = append(fields, zap.String("event_id", task.Event.ID.String()))
		} else {
			task.Skipped = len(task.Steps)
			s.trackInflight(task.InstanceID, -1)
		}
		s.logger.Warn("Queued sync task abandoned on stop", fields...)
		s.addToHistory(task)
		abandoned++
	}
	s.mu.Lock()
	s.observeQueue()
	s.mu.Unlock()
	if abandoned > 0 {
		s.logger.Warn("Sync scheduler stopped with queued tasks", zap.Int("abandoned", abandoned))
	}
}

// IsRunning returns true if the scheduler accepts tasks
func (s *SyncScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// Submit queues a single batch pass
func (s *SyncScheduler) Submit(req integration.SyncRequest) (*Task, error) {
	return s.SubmitPipeline(req.InstanceID, []integration.SyncRequest{req})
}

// SubmitPipeline queues ordered batch passes of one instance. A step that
// fails systemically skips the remaining steps.
func (s *SyncScheduler) SubmitPipeline(instanceID uuid.UUID, steps []integration.SyncRequest) (*Task, error) {
	if len(steps) == 0 {
		return nil, ErrEmptyPipeline
	}
	for _, step := range steps {
		if err := step.Validate(); err != nil {
			return nil, err
		}
	}
	task := newTask(TaskKindPipeline, instanceID)
	task.Steps = append(task.Steps, steps...)

	s.trackInflight(instanceID, 1)
	if err := s.enqueue(task); err != nil {
		s.trackInflight(instanceID, -1)
		return nil, err
	}
	s.logger.Debug("Sync pipeline submitted",
		zap.String("task_id", task.ID.String()),
		zap.String("instance_id", instanceID.String()),
		zap.Int("steps", len(steps)),
	)
	return task.snapshot(), nil
}

// DispatchWebhook queues a webhook event for processing
func (s *SyncScheduler) DispatchWebhook(_ context.Context, event *integration.WebhookEvent) error {
	s.mu.Lock()
	hasProcessor := s.processor != nil
	s.mu.Unlock()
	if !hasProcessor {
		return ErrNoWebhookProcessor
	}
	task := newTask(TaskKindWebhook, event.InstanceID)
	task.Event = event
	return s.enqueue(task)
}

// HasPending returns true if a pipeline of the instance is queued or running
func (s *SyncScheduler) HasPending(instanceID uuid.UUID) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	return s.inflight[instanceID] > 0
}

// QueueDepth returns the number of waiting tasks
func (s *SyncScheduler) QueueDepth() int {
	return len(s.tasks)
}

func (s *SyncScheduler) enqueue(task *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return ErrSchedulerNotRunning
	}
	select {
	case s.tasks <- task:
		s.observeQueue()
		return nil
	default:
		return ErrJobQueueFull
	}
}

func (s *SyncScheduler) observeQueue() {
	if s.observer != nil {
		s.observer.SetQueueDepth(len(s.tasks))
	}
}

func (s *SyncScheduler) trackInflight(instanceID uuid.UUID, delta int) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	s.inflight[instanceID] += delta
	if s.inflight[instanceID] <= 0 {
		delete(s.inflight, instanceID)
	}
}

// worker processes tasks from the queue
func (s *SyncScheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	s.logger.Debug("Sync worker started", zap.Int("worker_id", workerID))

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Sync worker stopping", zap.Int("worker_id", workerID))
			return
		case task, ok := <-s.tasks:
			if !ok {
				s.logger.Debug("Sync task channel closed", zap.Int("worker_id", workerID))
				return
			}
			s.mu.Lock()
			s.observeQueue()
			s.mu.Unlock()
			s.processTask(ctx, task, workerID)
		}
	}
}

// processTask executes a single task
func (s *SyncScheduler) processTask(ctx context.Context, task *Task, workerID int) {
	task.start()
	log := s.logger.With(
		zap.Int("worker_id", workerID),
		zap.String("task_id", task.ID.String()),
		zap.String("instance_id", task.InstanceID.String()),
		zap.String("kind", string(task.Kind)),
	)

	var err error
	switch task.Kind {
	case TaskKindWebhook:
		err = s.runWebhook(ctx, task)
	default:
		err = s.runPipeline(ctx, task, log)
		s.trackInflight(task.InstanceID, -1)
	}
	task.complete(err)

	if err != nil {
		log.Error("Sync task failed", zap.Error(err), zap.Int("skipped_steps", task.Skipped))
	} else {
		log.Info("Sync task completed", zap.Int("jobs", len(task.JobIDs)))
	}
	s.addToHistory(task)
}

func (s *SyncScheduler) runWebhook(ctx context.Context, task *Task) error {
	s.mu.Lock()
	processor := s.processor
	s.mu.Unlock()
	if processor == nil {
		return ErrNoWebhookProcessor
	}
	eventCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()
	return processor.Process(eventCtx, task.Event)
}

// runPipeline runs the steps in order. Per-record problems never stop the
// pipeline; a systemic failure skips the remaining steps, which the next
// scheduled run picks up again.
func (s *SyncScheduler) runPipeline(ctx context.Context, task *Task, log *zap.Logger) error {
	var firstErr error
	for i, step := range task.Steps {
		if ctx.Err() != nil {
			task.Skipped = len(task.Steps) - i
			return ctx.Err()
		}

		stepCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
		job, err := s.executor.Run(stepCtx, step)
		cancel()
		if job != nil {
			task.JobIDs = append(task.JobIDs, job.ID)
		}
		if err == nil {
			continue
		}

		log.Warn("Pipeline step failed",
			zap.String("entity_type", string(step.Entity)),
			zap.String("direction", string(step.Direction)),
			zap.Error(err),
		)
		if firstErr == nil {
			firstErr = err
		}
		if stopsPipeline(err) {
			task.Skipped = len(task.Steps) - i - 1
			return err
		}
	}
	return firstErr
}

func stopsPipeline(err error) bool {
	return integration.IsSystemic(err) ||
		errors.Is(err, integration.ErrInstanceAuthRejected) ||
		errors.Is(err, integration.ErrInstanceNotFound)
}

// addToHistory adds a finished task to history
func (s *SyncScheduler) addToHistory(task *Task) {
	if s.config.HistoryLimit == 0 {
		return
	}
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	s.history = append([]*Task{task.snapshot()}, s.history...)
	if len(s.history) > s.config.HistoryLimit {
		s.history = s.history[:s.config.HistoryLimit]
	}
}

// GetTaskHistory returns recently finished tasks, newest first
func (s *SyncScheduler) GetTaskHistory(limit int) []*Task {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	result := make([]*Task, limit)
	copy(result, s.history[:limit])
	return result
}

// GetTaskHistoryByInstance returns recently finished tasks of one instance
func (s *SyncScheduler) GetTaskHistoryByInstance(instanceID uuid.UUID, limit int) []*Task {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	result := make([]*Task, 0, limit)
	for _, task := range s.history {
		if task.InstanceID == instanceID {
			result = append(result, task)
			if len(result) >= limit {
				break
			}
		}
	}
	return result
}
