package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arcline/maestro/pkg/metadata"
	"github.com/arcline/maestro/pkg/orchestrator"
	"github.com/arcline/maestro/pkg/schedule"
	"github.com/arcline/maestro/pkg/temporal"
	"github.com/stretchr/testify/require"
	taskqueuepb "go.temporal.io/api/taskqueue/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
	"go.uber.org/zap/zaptest"
)

type stubEngine struct {
	healthErr error
}

func (e *stubEngine) ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow any, args ...any) (client.WorkflowRun, error) {
	return nil, errors.New("not implemented")
}

func (e *stubEngine) SignalWorkflow(ctx context.Context, workflowID, runID, signalName string, arg any) error {
	return nil
}

func (e *stubEngine) QueryWorkflow(ctx context.Context, workflowID, runID, queryType string, args ...any) (converter.EncodedValue, error) {
	return nil, nil
}

func (e *stubEngine) TerminateWorkflow(ctx context.Context, workflowID, runID, reason string, details ...any) error {
	return nil
}

func (e *stubEngine) CancelWorkflow(ctx context.Context, workflowID, runID string) error {
	return nil
}

func (e *stubEngine) CheckHealth(ctx context.Context, request *client.CheckHealthRequest) (*client.CheckHealthResponse, error) {
	if e.healthErr != nil {
		return nil, e.healthErr
	}
	return &client.CheckHealthResponse{}, nil
}

func (e *stubEngine) Close() {}

type stubScheduler struct{}

func (stubScheduler) Create(ctx context.Context, options client.ScheduleOptions) (client.ScheduleHandle, error) {
	return nil, errors.New("not implemented")
}

func (stubScheduler) GetHandle(ctx context.Context, scheduleID string) client.ScheduleHandle {
	return nil
}

type stubProber struct {
	health temporal.Health
}

func (p *stubProber) Health(ctx context.Context) temporal.Health { return p.health }

func newTestController(t *testing.T, engine *stubEngine, prober EngineProber) *Controller {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := metadata.NewMapStore()
	discovery := metadata.NewRegistry(store, metadata.StaticProvider(nil), logger)
	schedules := schedule.NewRegistry(stubScheduler{}, logger, "")

	svc := orchestrator.NewService(orchestrator.Options{Namespace: "test"},
		logger, engine, discovery, schedules, nil, nil)
	return NewController(svc, prober, logger)
}

func getHealth(t *testing.T, ctrl *Controller) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	ctrl.NewRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return rec.Code, body
}

func TestHandleHealthIncludesEngineProbe(t *testing.T) {
	prober := &stubProber{health: temporal.Health{
		ConnectionOK: true,
		DefaultQueue: []*taskqueuepb.PollerInfo{{Identity: "worker-1"}},
	}}
	ctrl := newTestController(t, &stubEngine{}, prober)

	code, body := getHealth(t, ctrl)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "healthy", body["status"])

	engine, ok := body["engine"].(map[string]any)
	require.True(t, ok, "engine probe must be embedded in the health payload")
	require.Equal(t, true, engine["connection_ok"])
}

func TestHandleHealthWithoutProberOmitsEngine(t *testing.T) {
	ctrl := newTestController(t, &stubEngine{}, nil)

	code, body := getHealth(t, ctrl)
	require.Equal(t, http.StatusOK, code)
	require.NotContains(t, body, "engine")
}

func TestHandleHealthUnavailableWhenEngineDown(t *testing.T) {
	ctrl := newTestController(t, &stubEngine{healthErr: errors.New("connection refused")}, nil)

	code, body := getHealth(t, ctrl)
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "unhealthy", body["status"])
}
