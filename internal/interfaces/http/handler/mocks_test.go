package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	appintegration "github.com/erp/shopsync/internal/application/integration"
	"github.com/erp/shopsync/internal/domain/integration"
	"github.com/erp/shopsync/internal/infrastructure/scheduler"
)

// MockInstanceManager implements InstanceManager for testing
type MockInstanceManager struct {
	mock.Mock
}

func (m *MockInstanceManager) instance(args mock.Arguments) (*integration.SyncInstance, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.SyncInstance), args.Error(1)
}

func (m *MockInstanceManager) Create(ctx context.Context, in appintegration.CreateInstanceInput) (*integration.SyncInstance, error) {
	return m.instance(m.Called(ctx, in))
}

func (m *MockInstanceManager) Get(ctx context.Context, id uuid.UUID) (*integration.SyncInstance, error) {
	return m.instance(m.Called(ctx, id))
}

func (m *MockInstanceManager) List(ctx context.Context, filter integration.InstanceFilter) ([]integration.SyncInstance, int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]integration.SyncInstance), args.Get(1).(int64), args.Error(2)
}

func (m *MockInstanceManager) Update(ctx context.Context, id uuid.UUID, in appintegration.UpdateInstanceInput) (*integration.SyncInstance, error) {
	return m.instance(m.Called(ctx, id, in))
}

func (m *MockInstanceManager) RotateCredentials(ctx context.Context, id uuid.UUID, accessToken, webhookSecret string) (*integration.SyncInstance, error) {
	return m.instance(m.Called(ctx, id, accessToken, webhookSecret))
}

func (m *MockInstanceManager) SetLocations(ctx context.Context, id uuid.UUID, locationIDs []string) (*integration.SyncInstance, error) {
	return m.instance(m.Called(ctx, id, locationIDs))
}

func (m *MockInstanceManager) TestConnection(ctx context.Context, id uuid.UUID) (*integration.SyncInstance, error) {
	return m.instance(m.Called(ctx, id))
}

func (m *MockInstanceManager) SyncLocations(ctx context.Context, id uuid.UUID) (*integration.SyncInstance, error) {
	return m.instance(m.Called(ctx, id))
}

func (m *MockInstanceManager) RegisterWebhooks(ctx context.Context, id uuid.UUID, baseURL string) ([]integration.WebhookSubscription, error) {
	args := m.Called(ctx, id, baseURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.WebhookSubscription), args.Error(1)
}

func (m *MockInstanceManager) UnregisterWebhooks(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockInstanceManager) Subscriptions(ctx context.Context, id uuid.UUID) ([]integration.WebhookSubscription, error) {
	args := m.Called(ctx, id)
	return args.Get(0).([]integration.WebhookSubscription), args.Error(1)
}

// MockTaskQueue implements TaskQueue for testing
type MockTaskQueue struct {
	mock.Mock
}

func (m *MockTaskQueue) Submit(req integration.SyncRequest) (*scheduler.Task, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scheduler.Task), args.Error(1)
}

func (m *MockTaskQueue) GetTaskHistory(limit int) []*scheduler.Task {
	return m.Called(limit).Get(0).([]*scheduler.Task)
}

func (m *MockTaskQueue) GetTaskHistoryByInstance(instanceID uuid.UUID, limit int) []*scheduler.Task {
	return m.Called(instanceID, limit).Get(0).([]*scheduler.Task)
}

// MockPipelineTrigger implements PipelineTrigger for testing
type MockPipelineTrigger struct {
	mock.Mock
}

func (m *MockPipelineTrigger) TriggerInstance(ctx context.Context, instanceID uuid.UUID) (*scheduler.Task, error) {
	args := m.Called(ctx, instanceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scheduler.Task), args.Error(1)
}

// MockJobStore implements JobReader and LogReader for testing
type MockJobStore struct {
	mock.Mock
}

func (m *MockJobStore) FindByID(ctx context.Context, id uuid.UUID) (*integration.SyncJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.SyncJob), args.Error(1)
}

func (m *MockJobStore) FindAll(ctx context.Context, filter integration.JobFilter) ([]integration.SyncJob, int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]integration.SyncJob), args.Get(1).(int64), args.Error(2)
}

func (m *MockJobStore) List(ctx context.Context, filter integration.SyncLogFilter) ([]integration.SyncLogEntry, int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]integration.SyncLogEntry), args.Get(1).(int64), args.Error(2)
}

// MockJobController implements JobController for testing
type MockJobController struct {
	mock.Mock
}

func (m *MockJobController) Cancel(ctx context.Context, jobID uuid.UUID) (*integration.SyncJob, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.SyncJob), args.Error(1)
}

func (m *MockJobController) RetryEntry(ctx context.Context, entryID uuid.UUID) (*integration.SyncJob, error) {
	args := m.Called(ctx, entryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.SyncJob), args.Error(1)
}

// MockWebhookReceiver implements WebhookReceiver for testing
type MockWebhookReceiver struct {
	mock.Mock
}

func (m *MockWebhookReceiver) Receive(ctx context.Context, in appintegration.ReceiveWebhookInput) (*integration.WebhookEvent, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.WebhookEvent), args.Error(1)
}

func (m *MockWebhookReceiver) GetEvent(ctx context.Context, id uuid.UUID) (*integration.WebhookEvent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.WebhookEvent), args.Error(1)
}

func (m *MockWebhookReceiver) ListEvents(ctx context.Context, filter integration.WebhookEventFilter) ([]integration.WebhookEvent, int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]integration.WebhookEvent), args.Get(1).(int64), args.Error(2)
}

// performRequest runs one request through a router. body may be nil, a
// []byte or a value encoded as JSON.
func performRequest(r http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf *bytes.Buffer
	switch b := body.(type) {
	case nil:
		buf = &bytes.Buffer{}
	case []byte:
		buf = bytes.NewBuffer(b)
	default:
		raw, _ := json.Marshal(b)
		buf = bytes.NewBuffer(raw)
	}
	req := httptest.NewRequest(method, path, buf)
	if buf.Len() > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func newTestInstance() *integration.SyncInstance {
	inst, err := integration.NewSyncInstance("Main store", "acme", "shpat_token", "whsec", "")
	if err != nil {
		panic(err)
	}
	return inst
}

func newTestEngine() *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(RequestIDKey, "test-request")
		c.Next()
	})
	return r
}
