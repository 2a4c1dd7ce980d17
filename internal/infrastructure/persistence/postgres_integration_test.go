//go:build integration

package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/erp/shopsync/internal/domain/integration"
	"github.com/erp/shopsync/internal/infrastructure/migration"
)

// setupPostgres starts a throwaway PostgreSQL, applies the embedded
// migrations and returns a gorm handle on it
func setupPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("shopsync_test"),
		tcpostgres.WithUsername("shopsync"),
		tcpostgres.WithPassword("shopsync"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	m, err := migration.New(sqlDB, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up())

	version, dirty, err := m.Version()
	require.NoError(t, err)
	require.False(t, dirty)
	require.EqualValues(t, 4, version)
	return db
}

func TestPostgres_MigratedSchemaCoversModels(t *testing.T) {
	db := setupPostgres(t)
	for _, model := range AllModels() {
		assert.True(t, db.Migrator().HasTable(model), "missing table for %T", model)
	}
}

func TestPostgres_Repositories(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	instances := NewGormInstanceRepository(db)
	inst := newTestInstance(t, "Main store", "main-store")
	require.NoError(t, inst.SetLocations([]string{"111"}))
	inst.AdvanceWatermark(integration.EntityOrder, time.Date(2024, 5, 2, 8, 30, 0, 0, time.UTC))
	require.NoError(t, instances.Save(ctx, inst))

	t.Run("instance round trip", func(t *testing.T) {
		found, err := instances.FindByShopURL(ctx, "https://main-store.myshopify.com")
		require.NoError(t, err)
		assert.Equal(t, inst.ID, found.ID)
		assert.Equal(t, []string{"111"}, found.LocationIDs)
		assert.True(t, found.Watermark(integration.EntityOrder).Equal(time.Date(2024, 5, 2, 8, 30, 0, 0, time.UTC)))
	})

	t.Run("cross reference uniqueness is enforced by the schema", func(t *testing.T) {
		refs := NewGormCrossReferenceRepository(db)
		ref, err := integration.NewCrossReference(inst.ID, integration.EntityProduct, "local-1", "9001", "MUG-BLUE", nil)
		require.NoError(t, err)
		require.NoError(t, refs.Save(ctx, ref))

		found, err := refs.FindByRemoteID(ctx, inst.ID, integration.EntityProduct, "9001")
		require.NoError(t, err)
		assert.Equal(t, "local-1", found.LocalID)

		dupLocal, err := integration.NewCrossReference(inst.ID, integration.EntityProduct, "local-1", "9002", "", nil)
		require.NoError(t, err)
		assert.ErrorIs(t, refs.Save(ctx, dupLocal), integration.ErrCrossReferenceConflict)

		dupRemote, err := integration.NewCrossReference(inst.ID, integration.EntityProduct, "local-2", "9001", "", nil)
		require.NoError(t, err)
		assert.ErrorIs(t, refs.Save(ctx, dupRemote), integration.ErrCrossReferenceConflict)

		count, err := refs.CountByInstance(ctx, inst.ID, integration.EntityProduct)
		require.NoError(t, err)
		assert.EqualValues(t, 1, count)
	})

	t.Run("job status transitions are conditional", func(t *testing.T) {
		jobs := NewGormJobRepository(db)
		job := newTestJob(t, inst.ID, integration.EntityProduct)
		require.NoError(t, job.Start())
		require.NoError(t, jobs.Save(ctx, job))

		changed, err := jobs.TransitionStatus(ctx, job.ID, integration.JobStatusRunning, integration.JobStatusCancelling)
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = jobs.TransitionStatus(ctx, job.ID, integration.JobStatusRunning, integration.JobStatusCancelling)
		require.NoError(t, err)
		assert.False(t, changed)

		status, err := jobs.Status(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, integration.JobStatusCancelling, status)
	})

	t.Run("sync log filters by job and status", func(t *testing.T) {
		log := NewGormSyncLog(db)
		job := newTestJob(t, inst.ID, integration.EntityCustomer)
		require.NoError(t, NewGormJobRepository(db).Save(ctx, job))
		require.NoError(t, log.Append(ctx, integration.NewSyncLogEntry(job, integration.ActionCreate, uuid.NewString(), "77", "a@example.com", nil, nil)))
		require.NoError(t, log.Append(ctx, integration.NewSyncLogEntry(job, integration.ActionCreate, uuid.NewString(), "", "b@example.com", nil, integration.ErrAmbiguousMatch)))

		entries, total, err := log.List(ctx, integration.SyncLogFilter{JobID: &job.ID})
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		assert.Len(t, entries, 2)

		skipped := integration.LogStatusSkipped
		count, err := log.Count(ctx, integration.SyncLogFilter{JobID: &job.ID, Status: &skipped})
		require.NoError(t, err)
		assert.EqualValues(t, 1, count)
	})
}
