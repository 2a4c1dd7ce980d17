package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/shopsync/internal/domain/integration"
)

type mockInstanceProvider struct {
	instances []integration.SyncInstance
}

func (m *mockInstanceProvider) FindAll(_ context.Context, filter integration.InstanceFilter) ([]integration.SyncInstance, int64, error) {
	out := make([]integration.SyncInstance, 0, len(m.instances))
	for _, inst := range m.instances {
		if filter.AutoSync != nil && inst.AutoSync != *filter.AutoSync {
			continue
		}
		out = append(out, inst)
	}
	return out, int64(len(out)), nil
}

type mockPlanner struct {
	exportEnabled map[uuid.UUID]bool
}

func (m *mockPlanner) Plan(_ context.Context, instanceID uuid.UUID, direction integration.Direction) ([]integration.SyncRequest, error) {
	if direction == integration.DirectionExport && !m.exportEnabled[instanceID] {
		return nil, nil
	}
	var plan []integration.SyncRequest
	for _, entity := range integration.PipelineOrder() {
		plan = append(plan, integration.SyncRequest{InstanceID: instanceID, Entity: entity, Direction: direction, Trigger: integration.TriggerSchedule})
	}
	return plan, nil
}

type mockPipelines struct {
	mu        sync.Mutex
	submitted map[uuid.UUID][][]integration.SyncRequest
	pending   map[uuid.UUID]bool
}

func newMockPipelines() *mockPipelines {
	return &mockPipelines{
		submitted: make(map[uuid.UUID][][]integration.SyncRequest),
		pending:   make(map[uuid.UUID]bool),
	}
}

func (m *mockPipelines) SubmitPipeline(instanceID uuid.UUID, steps []integration.SyncRequest) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted[instanceID] = append(m.submitted[instanceID], steps)
	task := newTask(TaskKindPipeline, instanceID)
	task.Steps = steps
	return task, nil
}

func (m *mockPipelines) HasPending(instanceID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending[instanceID]
}

func (m *mockPipelines) count(instanceID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.submitted[instanceID])
}

func newInstance(autoSync bool, status integration.ConnectionStatus) integration.SyncInstance {
	return integration.SyncInstance{ID: uuid.New(), Name: "shop", AutoSync: autoSync, Status: status}
}

func TestCronTrigger_CheckAndSchedule(t *testing.T) {
	auto := newInstance(true, integration.ConnectionConnected)
	exporting := newInstance(true, integration.ConnectionUnverified)
	manual := newInstance(false, integration.ConnectionConnected)
	rejected := newInstance(true, integration.ConnectionAuthRejected)

	provider := &mockInstanceProvider{instances: []integration.SyncInstance{auto, exporting, manual, rejected}}
	planner := &mockPlanner{exportEnabled: map[uuid.UUID]bool{exporting.ID: true}}
	pipelines := newMockPipelines()

	config := DefaultCronTriggerConfig()
	trigger := NewCronTrigger(config, pipelines, provider, planner, newTestLogger())
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	trigger.now = func() time.Time { return now }
	ctx := context.Background()

	assert.Equal(t, 2, trigger.CheckAndSchedule(ctx))

	t.Run("auto-sync instances get an import pipeline", func(t *testing.T) {
		require.Equal(t, 1, pipelines.count(auto.ID))
		steps := pipelines.submitted[auto.ID][0]
		assert.Len(t, steps, len(integration.PipelineOrder()))
		for _, step := range steps {
			assert.Equal(t, integration.DirectionImport, step.Direction)
		}
	})

	t.Run("export follows import when enabled", func(t *testing.T) {
		require.Equal(t, 1, pipelines.count(exporting.ID))
		steps := pipelines.submitted[exporting.ID][0]
		n := len(integration.PipelineOrder())
		require.Len(t, steps, 2*n)
		assert.Equal(t, integration.DirectionImport, steps[0].Direction)
		assert.Equal(t, integration.DirectionExport, steps[n].Direction)
	})

	t.Run("manual and rejected instances are left alone", func(t *testing.T) {
		assert.Zero(t, pipelines.count(manual.ID))
		assert.Zero(t, pipelines.count(rejected.ID))
	})

	t.Run("minimum interval is respected", func(t *testing.T) {
		now = now.Add(config.MinInterval / 2)
		assert.Zero(t, trigger.CheckAndSchedule(ctx))

		now = now.Add(config.MinInterval)
		assert.Equal(t, 2, trigger.CheckAndSchedule(ctx))
		assert.Equal(t, 2, pipelines.count(auto.ID))
	})

	t.Run("instances with a pending pipeline are skipped", func(t *testing.T) {
		pipelines.pending[auto.ID] = true
		now = now.Add(config.CheckInterval)
		assert.Equal(t, 1, trigger.CheckAndSchedule(ctx))
		assert.Equal(t, 2, pipelines.count(auto.ID))
	})
}

func TestCronTrigger_TriggerInstance(t *testing.T) {
	inst := newInstance(false, integration.ConnectionConnected)
	pipelines := newMockPipelines()
	trigger := NewCronTrigger(DefaultCronTriggerConfig(), pipelines, &mockInstanceProvider{}, &mockPlanner{}, newTestLogger())

	task, err := trigger.TriggerInstance(context.Background(), inst.ID)
	require.NoError(t, err)
	require.NotEmpty(t, task.Steps)
	for _, step := range task.Steps {
		assert.Equal(t, integration.TriggerManual, step.Trigger)
	}

	stats := trigger.GetSchedulerStats()
	assert.Equal(t, 1, stats["tracked_instances"])
	assert.Equal(t, false, stats["is_running"])
}

func TestCronTrigger_StartStop(t *testing.T) {
	inst := newInstance(true, integration.ConnectionConnected)
	pipelines := newMockPipelines()
	trigger := NewCronTrigger(CronTriggerConfig{CheckInterval: time.Hour}, pipelines,
		&mockInstanceProvider{instances: []integration.SyncInstance{inst}}, &mockPlanner{}, newTestLogger())

	ctx := context.Background()
	require.NoError(t, trigger.Start(ctx))
	require.NoError(t, trigger.Start(ctx))

	// runs once right away
	require.Eventually(t, func() bool { return pipelines.count(inst.ID) == 1 }, 2*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, trigger.Stop(stopCtx))
	require.NoError(t, trigger.Stop(stopCtx))
}

func TestCronTrigger_WithScheduler(t *testing.T) {
	executor := &mockExecutor{}
	scheduler := startScheduler(t, DefaultSyncSchedulerConfig(), executor)
	inst := newInstance(true, integration.ConnectionConnected)
	trigger := NewCronTrigger(DefaultCronTriggerConfig(), scheduler,
		&mockInstanceProvider{instances: []integration.SyncInstance{inst}}, &mockPlanner{}, newTestLogger())

	assert.Equal(t, 1, trigger.CheckAndSchedule(context.Background()))
	require.Eventually(t, func() bool { return len(executor.ran()) == len(integration.PipelineOrder()) }, 2*time.Second, 10*time.Millisecond)
}
