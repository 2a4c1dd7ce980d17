package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/shopsync/internal/domain/integration"
)

// InstanceProvider lists the instances the trigger visits
type InstanceProvider interface {
	FindAll(ctx context.Context, filter integration.InstanceFilter) ([]integration.SyncInstance, int64, error)
}

// Planner expands an instance into its ordered batch passes, normally the
// sync engine
type Planner interface {
	Plan(ctx context.Context, instanceID uuid.UUID, direction integration.Direction) ([]integration.SyncRequest, error)
}

// Pipelines is the part of the scheduler the trigger submits to
type Pipelines interface {
	SubmitPipeline(instanceID uuid.UUID, steps []integration.SyncRequest) (*Task, error)
	HasPending(instanceID uuid.UUID) bool
}

// CronTriggerConfig holds configuration for the cron trigger
type CronTriggerConfig struct {
	// CheckInterval is how often auto-sync instances are visited
	CheckInterval time.Duration
	// MinInterval is the minimum gap between two pipelines of one instance
	MinInterval time.Duration
}

// DefaultCronTriggerConfig returns default cron trigger configuration
func DefaultCronTriggerConfig() CronTriggerConfig {
	return CronTriggerConfig{
		CheckInterval: 15 * time.Minute,
		MinInterval:   5 * time.Minute,
	}
}

// CronTrigger periodically submits the import pipeline, followed by the
// export pipeline when enabled, of every auto-sync instance. Instances
// whose credentials were rejected are left alone until rotated; other
// failures are picked up again on the next tick.
type CronTrigger struct {
	config    CronTriggerConfig
	pipelines Pipelines
	instances InstanceProvider
	planner   Planner
	logger    *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	lastScheduledMu sync.RWMutex
	lastScheduled   map[uuid.UUID]time.Time

	now func() time.Time
}

// NewCronTrigger creates a new cron trigger
func NewCronTrigger(
	config CronTriggerConfig,
	pipelines Pipelines,
	instances InstanceProvider,
	planner Planner,
	logger *zap.Logger,
) *CronTrigger {
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultCronTriggerConfig().CheckInterval
	}
	return &CronTrigger{
		config:        config,
		pipelines:     pipelines,
		instances:     instances,
		planner:       planner,
		logger:        logger,
		lastScheduled: make(map[uuid.UUID]time.Time),
		now:           time.Now,
	}
}

// Start starts the cron trigger
func (c *CronTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = true
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.runLoop(ctx)

	c.logger.Info("Sync cron trigger started",
		zap.Duration("check_interval", c.config.CheckInterval),
		zap.Duration("min_interval", c.config.MinInterval),
	)
	return nil
}

// Stop stops the cron trigger
func (c *CronTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Sync cron trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runLoop visits the instances on every tick
func (c *CronTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.CheckInterval)
	defer ticker.Stop()

	// Run immediately on start
	c.CheckAndSchedule(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CheckAndSchedule(ctx)
		}
	}
}

// CheckAndSchedule submits a pipeline for every due auto-sync instance and
// returns how many were submitted
func (c *CronTrigger) CheckAndSchedule(ctx context.Context) int {
	autoSync := true
	instances, _, err := c.instances.FindAll(ctx, integration.InstanceFilter{AutoSync: &autoSync})
	if err != nil {
		c.logger.Error("Failed to list auto-sync instances", zap.Error(err))
		return 0
	}
	if len(instances) == 0 {
		c.logger.Debug("No auto-sync instances found")
		return 0
	}

	now := c.now()
	scheduled := 0
	for i := range instances {
		inst := &instances[i]
		if !c.isDue(inst, now) {
			continue
		}
		if _, err := c.submit(ctx, inst.ID, integration.TriggerSchedule); err != nil {
			c.logger.Error("Failed to schedule sync pipeline",
				zap.String("instance_id", inst.ID.String()),
				zap.Error(err),
			)
			continue
		}
		c.updateLastScheduled(inst.ID, now)
		scheduled++
	}

	c.logger.Debug("Sync schedules checked",
		zap.Int("instance_count", len(instances)),
		zap.Int("scheduled", scheduled),
	)
	return scheduled
}

func (c *CronTrigger) isDue(inst *integration.SyncInstance, now time.Time) bool {
	if err := inst.CanSync(); err != nil {
		c.logger.Debug("Skipping instance with rejected credentials",
			zap.String("instance_id", inst.ID.String()))
		return false
	}
	if c.pipelines.HasPending(inst.ID) {
		return false
	}
	c.lastScheduledMu.RLock()
	last, exists := c.lastScheduled[inst.ID]
	c.lastScheduledMu.RUnlock()
	return !exists || now.Sub(last) >= c.config.MinInterval
}

// TriggerInstance submits the full pipeline of one instance right away
func (c *CronTrigger) TriggerInstance(ctx context.Context, instanceID uuid.UUID) (*Task, error) {
	c.logger.Info("Manual sync pipeline triggered", zap.String("instance_id", instanceID.String()))
	task, err := c.submit(ctx, instanceID, integration.TriggerManual)
	if err != nil {
		return nil, err
	}
	c.updateLastScheduled(instanceID, c.now())
	return task, nil
}

func (c *CronTrigger) submit(ctx context.Context, instanceID uuid.UUID, trigger integration.Trigger) (*Task, error) {
	imports, err := c.planner.Plan(ctx, instanceID, integration.DirectionImport)
	if err != nil {
		return nil, err
	}
	exports, err := c.planner.Plan(ctx, instanceID, integration.DirectionExport)
	if err != nil {
		return nil, err
	}
	steps := append(imports, exports...)
	for i := range steps {
		steps[i].Trigger = trigger
	}
	return c.pipelines.SubmitPipeline(instanceID, steps)
}

func (c *CronTrigger) updateLastScheduled(instanceID uuid.UUID, t time.Time) {
	c.lastScheduledMu.Lock()
	c.lastScheduled[instanceID] = t
	c.lastScheduledMu.Unlock()
}

// GetSchedulerStats returns statistics about the trigger
func (c *CronTrigger) GetSchedulerStats() map[string]interface{} {
	c.mu.Lock()
	running := c.isRunning
	c.mu.Unlock()

	c.lastScheduledMu.RLock()
	defer c.lastScheduledMu.RUnlock()

	stats := make(map[string]interface{})
	stats["is_running"] = running
	stats["check_interval"] = c.config.CheckInterval.String()
	stats["tracked_instances"] = len(c.lastScheduled)

	lastScheduledTimes := make(map[string]string)
	for id, t := range c.lastScheduled {
		lastScheduledTimes[id.String()] = t.Format(time.RFC3339)
	}
	stats["last_scheduled"] = lastScheduledTimes
	return stats
}
