package metadata

import (
	"context"
	"testing"

	"github.com/arcline/maestro/pkg/errs"
	"github.com/arcline/maestro/pkg/schedule"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type ordersController struct{}
type billingController struct{}

func dailyReport() {}
func addItem()     {}
func getStatus()   {}

func newRegistry(t *testing.T, store MetadataStore, controllers ...any) *Registry {
	t.Helper()
	return NewRegistry(store, StaticProvider(controllers), zaptest.NewLogger(t))
}

func annotatedOrders(store MetadataStore, ctrl *ordersController) {
	Annotate(store, ctrl,
		ControllerOptions{TaskQueue: "orders"},
		[]MethodMeta{
			{Kind: KindWorkflow, MethodName: "ProcessOrder", Handler: dailyReport},
			{Kind: KindSignal, MethodName: "AddItem", Handler: addItem, Signal: &SignalOptions{Name: "addItem"}},
			{Kind: KindQuery, MethodName: "GetStatus", Handler: getStatus},
			{Kind: KindScheduled, MethodName: "DailyReport", Handler: dailyReport, Schedule: &ScheduleOptions{
				ScheduleID: "daily-report",
				Descriptor: schedule.Descriptor{Cron: schedule.Raw{"0 8 * * *"}},
			}},
		})
}

func TestScanBuildsInventory(t *testing.T) {
	store := NewMapStore()
	ctrl := &ordersController{}
	annotatedOrders(store, ctrl)

	reg := newRegistry(t, store, ctrl)
	inventory, err := reg.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, inventory, 1)

	info := inventory[0]
	require.Same(t, ctrl, info.Instance)
	require.Equal(t, "orders", info.TaskQueue)
	require.Len(t, info.Workflows, 1)
	require.Len(t, info.Signals, 1)
	require.Len(t, info.Queries, 1)
	require.Len(t, info.Scheduled, 1)

	require.Equal(t, Stats{Controllers: 1, Workflows: 1, Signals: 1, Queries: 1, Scheduled: 1}, reg.Stats())
	require.True(t, reg.Scanned())
}

func TestPublicNameResolution(t *testing.T) {
	store := NewMapStore()
	ctrl := &ordersController{}
	annotatedOrders(store, ctrl)

	reg := newRegistry(t, store, ctrl)
	inventory, err := reg.Scan(context.Background())
	require.NoError(t, err)

	info := inventory[0]
	require.Equal(t, "ProcessOrder", info.Workflows[0].PublicName, "public name defaults to the method name")
	require.Equal(t, "addItem", info.Signals[0].PublicName, "explicit name wins")
	require.Equal(t, "GetStatus", info.Queries[0].PublicName)
}

func TestScheduledMethodResolution(t *testing.T) {
	store := NewMapStore()
	ctrl := &ordersController{}
	annotatedOrders(store, ctrl)

	reg := newRegistry(t, store, ctrl)
	_, err := reg.Scan(context.Background())
	require.NoError(t, err)

	scheduled := reg.ScheduledMethods()
	require.Len(t, scheduled, 1)
	sm := scheduled[0]
	require.Equal(t, "DailyReport", sm.WorkflowName)
	require.Equal(t, "orders", sm.TaskQueue, "task queue inherited from the controller")
	require.Equal(t, "daily-report", sm.Schedule.ScheduleID)
	require.NotNil(t, sm.Controller)
	require.Same(t, ctrl, sm.Controller.Instance)
}

func TestScheduledMethodWithoutResolvableQueueFailsScan(t *testing.T) {
	store := NewMapStore()
	ctrl := &billingController{}
	Annotate(store, ctrl,
		ControllerOptions{}, // no default queue
		[]MethodMeta{
			{Kind: KindScheduled, MethodName: "Reconcile", Handler: dailyReport, Schedule: &ScheduleOptions{
				Descriptor: schedule.Descriptor{Interval: schedule.Raw{"1h"}},
			}},
		})

	reg := newRegistry(t, store, ctrl)
	_, err := reg.Scan(context.Background())
	require.Error(t, err)
	require.True(t, errs.IsValidation(err))
	require.Contains(t, err.Error(), "Reconcile")
}

func TestWorkflowMethodWithoutQueueFailsScan(t *testing.T) {
	store := NewMapStore()
	ctrl := &billingController{}
	Annotate(store, ctrl, ControllerOptions{}, []MethodMeta{
		{Kind: KindWorkflow, MethodName: "Reconcile", Handler: dailyReport},
	})

	reg := newRegistry(t, store, ctrl)
	_, err := reg.Scan(context.Background())
	require.True(t, errs.IsValidation(err))
}

func TestDuplicatePublicNamesRejected(t *testing.T) {
	store := NewMapStore()
	ctrl := &ordersController{}
	Annotate(store, ctrl, ControllerOptions{TaskQueue: "orders"}, []MethodMeta{
		{Kind: KindWorkflow, MethodName: "A", Handler: dailyReport, Workflow: &WorkflowOptions{Name: "Process"}},
		{Kind: KindWorkflow, MethodName: "B", Handler: dailyReport, Workflow: &WorkflowOptions{Name: "Process"}},
	})

	reg := newRegistry(t, store, ctrl)
	_, err := reg.Scan(context.Background())
	require.True(t, errs.IsValidation(err))
	require.Contains(t, err.Error(), "Process")
}

func TestSameNameOnDifferentQueuesAllowed(t *testing.T) {
	store := NewMapStore()
	orders := &ordersController{}
	billing := &billingController{}
	Annotate(store, orders, ControllerOptions{TaskQueue: "orders"}, []MethodMeta{
		{Kind: KindWorkflow, MethodName: "Process", Handler: dailyReport},
	})
	Annotate(store, billing, ControllerOptions{TaskQueue: "billing"}, []MethodMeta{
		{Kind: KindWorkflow, MethodName: "Process", Handler: dailyReport},
	})

	reg := newRegistry(t, store, orders, billing)
	_, err := reg.Scan(context.Background())
	require.NoError(t, err)
}

func TestControllerWithoutWorkflowMethodsIsLegal(t *testing.T) {
	store := NewMapStore()
	ctrl := &billingController{}
	Annotate(store, ctrl, ControllerOptions{TaskQueue: "billing"}, []MethodMeta{
		{Kind: KindSignal, MethodName: "Nudge", Handler: addItem},
	})

	reg := newRegistry(t, store, ctrl)
	inventory, err := reg.Scan(context.Background())
	require.NoError(t, err)
	require.Empty(t, inventory[0].Workflows)
	require.Len(t, inventory[0].Signals, 1)
}

func TestUnannotatedControllerContributesNothing(t *testing.T) {
	store := NewMapStore()
	ctrl := &billingController{}

	reg := newRegistry(t, store, ctrl)
	inventory, err := reg.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, inventory, 1)
	require.Equal(t, Stats{Controllers: 1}, reg.Stats())
}
