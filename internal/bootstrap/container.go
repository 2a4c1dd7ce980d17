// Package bootstrap assembles the sync service from configuration. The HTTP
// server and the operator CLI share it so both run against the same object
// graph.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appintegration "github.com/erp/shopsync/internal/application/integration"
	"github.com/erp/shopsync/internal/domain/integration"
	"github.com/erp/shopsync/internal/domain/shared"
	"github.com/erp/shopsync/internal/infrastructure/auth"
	"github.com/erp/shopsync/internal/infrastructure/cache"
	"github.com/erp/shopsync/internal/infrastructure/config"
	"github.com/erp/shopsync/internal/infrastructure/lock"
	"github.com/erp/shopsync/internal/infrastructure/logger"
	"github.com/erp/shopsync/internal/infrastructure/metrics"
	"github.com/erp/shopsync/internal/infrastructure/persistence"
	"github.com/erp/shopsync/internal/infrastructure/scheduler"
	"github.com/erp/shopsync/internal/infrastructure/shopify"
	"github.com/erp/shopsync/internal/infrastructure/telemetry"
)

const (
	dedupKeyPrefix   = "shopsync:webhook:"
	revokedKeyPrefix = "shopsync:revoked:"
	lockKeyPrefix    = "shopsync:lock:"
)

// Repositories groups the gorm adapters
type Repositories struct {
	Instances     *persistence.GormInstanceRepository
	Subscriptions *persistence.GormWebhookSubscriptionRepository
	Refs          *persistence.GormCrossReferenceRepository
	Jobs          *persistence.GormJobRepository
	Log           *persistence.GormSyncLog
	Events        *persistence.GormWebhookEventRepository
	Local         *persistence.GormLocalStore
}

// Container holds the wired components. Close releases them in reverse
// order of construction.
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	DB      *persistence.Database
	Redis   *redis.Client
	Metrics *metrics.SyncMetrics

	Repos     Repositories
	Remotes   *shopify.Factory
	Engine    *appintegration.SyncEngine
	Instances *appintegration.InstanceService
	Webhooks  *appintegration.WebhookService
	Scheduler *scheduler.SyncScheduler
	Cron      *scheduler.CronTrigger

	JWT       *auth.JWTService
	Blacklist *auth.TokenBlacklist

	closers []func() error
}

// Option customizes New
type Option func(*options)

type options struct {
	withScheduler bool
}

// WithScheduler builds the worker pool and the cron trigger. The CLI runs
// passes inline and leaves it out.
func WithScheduler() Option {
	return func(o *options) {
		o.withScheduler = true
	}
}

// New opens the database and, when a Redis backend is configured, Redis,
// then wires repositories, the Shopify client factory, the engine and the
// services on top.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, opts ...Option) (c *Container, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	c = &Container{Config: cfg, Logger: log}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	if err = c.openDatabase(); err != nil {
		return nil, err
	}
	if err = c.openRedis(ctx); err != nil {
		return nil, err
	}

	if cfg.Metrics.Enabled {
		mcfg := metrics.DefaultConfig()
		if cfg.Metrics.Path != "" {
			mcfg.Path = cfg.Metrics.Path
		}
		c.Metrics = metrics.New(mcfg)
		sqlDB, err := c.DB.SQL()
		if err != nil {
			return nil, err
		}
		if err := c.Metrics.RegisterDB(sqlDB, c.DB.Name()); err != nil {
			return nil, fmt.Errorf("failed to register pool metrics: %w", err)
		}
	}

	db := c.DB.DB
	c.Repos = Repositories{
		Instances:     persistence.NewGormInstanceRepository(db),
		Subscriptions: persistence.NewGormWebhookSubscriptionRepository(db),
		Refs:          persistence.NewGormCrossReferenceRepository(db),
		Jobs:          persistence.NewGormJobRepository(db),
		Log:           persistence.NewGormSyncLog(db),
		Events:        persistence.NewGormWebhookEventRepository(db),
		Local:         persistence.NewGormLocalStore(db),
	}

	var clientOpts []shopify.Option
	if c.Metrics != nil {
		clientOpts = append(clientOpts, shopify.WithObserver(c.Metrics))
	}
	c.Remotes = shopify.NewFactory(shopifyDefaults(cfg.Shopify), log.Named("shopify"), clientOpts...)

	locker, err := c.newLocker()
	if err != nil {
		return nil, err
	}

	engineOpts := []appintegration.EngineOption{
		appintegration.WithEngineConfig(appintegration.EngineConfig{
			PageSize: cfg.Sync.PageSize,
			LockTTL:  cfg.Sync.LockTTL,
		}),
	}
	if c.Metrics != nil {
		engineOpts = append(engineOpts, appintegration.WithObserver(c.Metrics))
	}
	c.Engine = appintegration.NewSyncEngine(appintegration.EngineDeps{
		Instances: c.Repos.Instances,
		Refs:      c.Repos.Refs,
		Jobs:      c.Repos.Jobs,
		Log:       c.Repos.Log,
		Local:     c.Repos.Local,
		Remotes:   c.Remotes,
		Locker:    locker,
	}, log.Named("engine"), engineOpts...)

	c.Instances = appintegration.NewInstanceService(c.Repos.Instances, c.Repos.Subscriptions, c.Remotes, log.Named("instances"))

	webhookCfg := appintegration.WebhookServiceConfig{
		Instances: c.Repos.Instances,
		Events:    c.Repos.Events,
		Dedup:     c.newExpiringSet(dedupKeyPrefix),
		Runner:    c.Engine,
		Retention: cfg.Webhook.Retention,
		Logger:    log.Named("webhooks"),
	}
	if c.Metrics != nil {
		webhookCfg.Observer = c.Metrics
	}
	c.Webhooks = appintegration.NewWebhookService(webhookCfg)

	c.JWT = auth.NewJWTService(cfg.JWT)
	c.Blacklist = auth.NewTokenBlacklist(c.newExpiringSet(revokedKeyPrefix))

	if o.withScheduler {
		if err = c.buildScheduler(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Container) openDatabase() error {
	cfg := c.Config
	gormLog := logger.NewGormLogger(c.Logger, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Database.SlowQuery))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		return err
	}
	c.DB = db
	c.closers = append(c.closers, db.Close)

	if cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled {
		dbCfg := telemetry.DefaultDBTracingConfig()
		dbCfg.LogFullSQL = cfg.Telemetry.DBLogFullSQL
		dbCfg.SlowQueryThresh = cfg.Database.SlowQuery
		dbCfg.DBSystem = telemetry.DBSystemForDriver(cfg.Database.Driver)
		if err := telemetry.NewDBTracingPlugin(dbCfg, c.Logger).Register(db.DB); err != nil {
			return fmt.Errorf("failed to register database tracing: %w", err)
		}
	}

	if cfg.Database.Driver == config.DriverSQLite {
		if err := db.AutoMigrate(); err != nil {
			return err
		}
	}
	c.Logger.Info("Database connected", zap.String("driver", cfg.Database.Driver))
	return nil
}

func (c *Container) openRedis(ctx context.Context) error {
	cfg := c.Config
	if cfg.Webhook.DedupBackend != config.BackendRedis && cfg.Sync.LockBackend != config.BackendRedis {
		return nil
	}
	client, err := cache.NewRedisClient(ctx, cache.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return err
	}
	c.Redis = client
	c.closers = append(c.closers, client.Close)
	c.Logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	return nil
}

func (c *Container) newExpiringSet(prefix string) shared.ExpiringSet {
	if c.Config.Webhook.DedupBackend == config.BackendRedis {
		return cache.NewRedisExpiringSet(c.Redis, prefix)
	}
	set := cache.NewMemoryExpiringSet(time.Minute)
	c.closers = append(c.closers, set.Close)
	return set
}

func (c *Container) newLocker() (integration.KeyedLocker, error) {
	switch c.Config.Sync.LockBackend {
	case config.BackendRedis:
		return lock.NewRedisLocker(c.Redis, lockKeyPrefix, c.Logger.Named("lock")), nil
	case config.BackendMemory, "":
		return lock.NewLocalLocker(), nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", c.Config.Sync.LockBackend)
	}
}

func (c *Container) buildScheduler() error {
	cfg := c.Config.Scheduler
	s, err := scheduler.NewSyncScheduler(scheduler.SyncSchedulerConfig{
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		QueueSize:         cfg.QueueSize,
		JobTimeout:        cfg.JobTimeout,
		HistoryLimit:      cfg.HistoryLimit,
	}, c.Engine, c.Logger.Named("scheduler"))
	if err != nil {
		return err
	}
	s.SetWebhookProcessor(c.Webhooks)
	if c.Metrics != nil {
		s.SetQueueObserver(c.Metrics)
	}
	c.Webhooks.SetDispatcher(s)
	c.Scheduler = s

	c.Cron = scheduler.NewCronTrigger(scheduler.CronTriggerConfig{
		CheckInterval: cfg.SyncInterval,
		MinInterval:   cfg.MinInterval,
	}, s, c.Repos.Instances, c.Engine, c.Logger.Named("cron"))
	return nil
}

// Start starts the worker pool, hands it the webhook events left enqueued
// by the previous run and, when periodic sync is enabled, starts the cron
// trigger
func (c *Container) Start(ctx context.Context) error {
	if c.Scheduler == nil {
		return nil
	}
	if err := c.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	// events accepted before the last shutdown but never run
	if n, err := c.Webhooks.Recover(ctx); err != nil {
		c.Logger.Warn("Webhook recovery incomplete", zap.Int("dispatched", n), zap.Error(err))
	} else if n > 0 {
		c.Logger.Info("Recovered enqueued webhook events", zap.Int("count", n))
	}
	if c.Config.Scheduler.Enabled {
		if err := c.Cron.Start(ctx); err != nil {
			return fmt.Errorf("failed to start cron trigger: %w", err)
		}
		c.Logger.Info("Periodic sync enabled",
			zap.Duration("interval", c.Config.Scheduler.SyncInterval),
			zap.Int("max_concurrent_jobs", c.Config.Scheduler.MaxConcurrentJobs),
		)
	}
	return nil
}

// Stop stops the cron trigger, then drains the worker pool
func (c *Container) Stop(ctx context.Context) error {
	if c.Scheduler == nil {
		return nil
	}
	var errs []error
	if c.Config.Scheduler.Enabled {
		errs = append(errs, c.Cron.Stop(ctx))
	}
	errs = append(errs, c.Scheduler.Stop(ctx))
	return errors.Join(errs...)
}

// Close releases connections and background sweepers
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	c.closers = nil
	return errors.Join(errs...)
}

func shopifyDefaults(cfg config.ShopifyConfig) shopify.Config {
	out := shopify.DefaultConfig()
	if cfg.APIVersion != "" {
		out.APIVersion = cfg.APIVersion
	}
	if cfg.Timeout > 0 {
		out.Timeout = cfg.Timeout
	}
	if cfg.RequestsPerSecond > 0 {
		out.RequestsPerSecond = cfg.RequestsPerSecond
	}
	if cfg.Burst > 0 {
		out.Burst = cfg.Burst
	}
	if cfg.ThrottleThreshold > 0 {
		out.ThrottleThreshold = cfg.ThrottleThreshold
	}
	if cfg.MaxAttempts > 0 {
		out.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BaseBackoff > 0 {
		out.BaseBackoff = cfg.BaseBackoff
	}
	if cfg.MaxBackoff > 0 {
		out.MaxBackoff = cfg.MaxBackoff
	}
	return out
}
