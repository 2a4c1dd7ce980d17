package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appintegration "github.com/erp/shopsync/internal/application/integration"
	"github.com/erp/shopsync/internal/domain/integration"
	"github.com/erp/shopsync/internal/infrastructure/config"
)

func testConfig() *config.Config {
	return &config.Config{
		App:      config.AppConfig{Name: "shopsync", Env: "test"},
		Database: config.DatabaseConfig{Driver: config.DriverSQLite, Path: ":memory:"},
		JWT:      config.JWTConfig{Secret: "bootstrap-test-secret-0123456789", Issuer: "shopsync"},
		Log:      config.LogConfig{Level: "error"},
		Scheduler: config.SchedulerConfig{
			SyncInterval:      time.Hour,
			MinInterval:       time.Minute,
			MaxConcurrentJobs: 2,
			QueueSize:         10,
			JobTimeout:        time.Minute,
			HistoryLimit:      10,
		},
		Webhook: config.WebhookConfig{Retention: time.Hour, DedupBackend: config.BackendMemory},
		Sync:    config.SyncConfig{PageSize: 25, LockBackend: config.BackendMemory, LockTTL: time.Minute},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

func TestNew_SQLiteWithoutScheduler(t *testing.T) {
	ctx := context.Background()
	c, err := New(ctx, testConfig(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	assert.Nil(t, c.Scheduler)
	assert.Nil(t, c.Redis)
	assert.NotNil(t, c.Metrics)
	require.NoError(t, c.DB.Ping(ctx))

	// the schema is migrated, so the instance service works end to end
	inst, err := c.Instances.Create(ctx, appintegration.CreateInstanceInput{
		Name:        "Main store",
		ShopURL:     "acme",
		AccessToken: "shpat_token",
	})
	require.NoError(t, err)
	found, err := c.Repos.Instances.FindByID(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://acme.myshopify.com", found.ShopURL)

	// Start and Stop are no-ops without the scheduler
	assert.NoError(t, c.Start(ctx))
	assert.NoError(t, c.Stop(ctx))
}

func TestNew_WithScheduler(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Scheduler.Enabled = true
	c, err := New(ctx, cfg, zap.NewNop(), WithScheduler())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NotNil(t, c.Scheduler)
	require.NotNil(t, c.Cron)
	require.NoError(t, c.Start(ctx))
	assert.True(t, c.Scheduler.IsRunning())

	task, err := c.Scheduler.Submit(integration.SyncRequest{
		InstanceID: uuid.New(),
		Entity:     integration.EntityProduct,
		Direction:  integration.DirectionImport,
		Trigger:    integration.TriggerManual,
	})
	require.NoError(t, err)
	assert.NotNil(t, task)

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, c.Stop(stopCtx))
	assert.False(t, c.Scheduler.IsRunning())
}

func TestStart_RedispatchesEnqueuedWebhookEvents(t *testing.T) {
	ctx := context.Background()
	c, err := New(ctx, testConfig(), zap.NewNop(), WithScheduler())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	// accepted by a previous run that stopped before a worker reached it
	event := integration.NewWebhookEvent(uuid.New(), "evt-1", integration.TopicCustomersUpdate, "acme.myshopify.com", []byte(`{"id":7}`))
	require.NoError(t, event.Validate())
	require.NoError(t, event.Enqueue())
	require.NoError(t, c.Repos.Events.Save(ctx, event))

	require.NoError(t, c.Start(ctx))
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Stop(stopCtx)
	})

	assert.Eventually(t, func() bool {
		stored, err := c.Repos.Events.FindByID(ctx, event.ID)
		return err == nil && stored.Status != integration.WebhookEnqueued
	}, 5*time.Second, 20*time.Millisecond)
}

func TestNew_UnknownLockBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Sync.LockBackend = "etcd"
	_, err := New(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "unknown lock backend")
}

func TestShopifyDefaults(t *testing.T) {
	out := shopifyDefaults(config.ShopifyConfig{APIVersion: "2024-07", Burst: 10})
	assert.Equal(t, "2024-07", out.APIVersion)
	assert.Equal(t, 10, out.Burst)
	assert.Equal(t, 2.0, out.RequestsPerSecond)
	assert.Equal(t, 5, out.MaxAttempts)
}
