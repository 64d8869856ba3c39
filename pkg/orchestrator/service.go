// Package orchestrator composes discovery, schedule registration,
// worker lifecycle, and health aggregation into one facade over the
// workflow engine. The engine itself (execution, durability, business
// retries) stays behind the WorkflowClient boundary.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/arcline/maestro/pkg/errs"
	"github.com/arcline/maestro/pkg/events"
	"github.com/arcline/maestro/pkg/health"
	"github.com/arcline/maestro/pkg/metadata"
	"github.com/arcline/maestro/pkg/schedule"
	"github.com/arcline/maestro/pkg/worker"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
	"go.uber.org/zap"
)

// EventSink receives lifecycle notifications. *events.Publisher
// satisfies it, including as a typed nil (publishing disabled).
type EventSink interface {
	Publish(ctx context.Context, e events.Event)
	Close() error
}

// WorkflowClient is the engine boundary: the pass-through calls the
// facade forwards. *client.Client values satisfy it.
type WorkflowClient interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow any, args ...any) (client.WorkflowRun, error)
	SignalWorkflow(ctx context.Context, workflowID, runID, signalName string, arg any) error
	QueryWorkflow(ctx context.Context, workflowID, runID, queryType string, args ...any) (converter.EncodedValue, error)
	TerminateWorkflow(ctx context.Context, workflowID, runID, reason string, details ...any) error
	CancelWorkflow(ctx context.Context, workflowID, runID string) error
	CheckHealth(ctx context.Context, request *client.CheckHealthRequest) (*client.CheckHealthResponse, error)
	Close()
}

// Options configures the facade. Zero values fall back to the defaults
// below.
type Options struct {
	Namespace          string
	DefaultTaskQueue   string
	AutoStartWorkers   bool
	AllowWorkerFailure bool
	StrictCron         bool
	ScheduleTimeZone   string

	// Bootstrap readiness wait. Best-effort: on timeout bootstrap
	// logs a warning and proceeds, because connectivity may recover
	// after startup.
	ReadinessPollInterval time.Duration
	ReadinessTimeout      time.Duration

	// Parallelism for schedule materialization at bootstrap.
	RegistrationConcurrency int
}

const (
	defaultReadinessPollInterval   = 100 * time.Millisecond
	defaultReadinessTimeout        = 30 * time.Second
	defaultRegistrationConcurrency = 4
)

func (o *Options) fill() {
	if o.Namespace == "" {
		o.Namespace = "default"
	}
	if o.DefaultTaskQueue == "" {
		o.DefaultTaskQueue = schedule.DefaultTaskQueue
	}
	if o.ScheduleTimeZone == "" {
		o.ScheduleTimeZone = schedule.DefaultTimeZone
	}
	if o.ReadinessPollInterval <= 0 {
		o.ReadinessPollInterval = defaultReadinessPollInterval
	}
	if o.ReadinessTimeout <= 0 {
		o.ReadinessTimeout = defaultReadinessTimeout
	}
	if o.RegistrationConcurrency <= 0 {
		o.RegistrationConcurrency = defaultRegistrationConcurrency
	}
}

// Execution identifies a started workflow run.
type Execution struct {
	WorkflowID string `json:"workflowId"`
	RunID      string `json:"runId"`
}

// StartOptions are the caller-facing options for StartWorkflow. Absent
// fields are default-filled by the facade.
type StartOptions struct {
	TaskQueue                string
	WorkflowID               string
	WorkflowExecutionTimeout time.Duration
	WorkflowTaskTimeout      time.Duration
	Memo                     map[string]any
}

// OpResult is the fire-and-report outcome used by terminate and cancel.
// Those operations report failure in the result instead of returning an
// error; the message is always human-readable.
type OpResult struct {
	Success    bool   `json:"success"`
	WorkflowID string `json:"workflowId"`
	Error      string `json:"error,omitempty"`
}

// Stats is the combined counters snapshot.
type Stats struct {
	Discovery metadata.Stats           `json:"discovery"`
	Schedules schedule.Stats           `json:"schedules"`
	Workers   map[string]worker.Status `json:"workers"`
}

// Service is the orchestration facade.
type Service struct {
	opts      Options
	logger    *zap.Logger
	client    WorkflowClient
	discovery *metadata.Registry
	schedules *schedule.Registry
	workers   *worker.Manager
	publisher EventSink

	initialized  atomic.Bool
	shutdownOnce sync.Once
	shutdownDone chan struct{}
	shutdownErr  error
}

// NewService wires the facade. workers may be nil for a client-only
// deployment; publisher may be nil when events are disabled.
func NewService(opts Options, logger *zap.Logger, wc WorkflowClient, discovery *metadata.Registry, schedules *schedule.Registry, workers *worker.Manager, publisher EventSink) *Service {
	opts.fill()
	if publisher == nil {
		publisher = (*events.Publisher)(nil)
	}
	return &Service{
		opts:         opts,
		logger:       logger,
		client:       wc,
		discovery:    discovery,
		schedules:    schedules,
		workers:      workers,
		publisher:    publisher,
		shutdownDone: make(chan struct{}),
	}
}

// Initialize runs the bootstrap sequence: discovery, best-effort
// readiness wait, schedule materialization, then optional worker
// startup. Discovery always completes before registration reads its
// scheduled-method inventory.
func (s *Service) Initialize(ctx context.Context) error {
	if _, err := s.discovery.Scan(ctx); err != nil {
		return err
	}

	s.awaitReadiness(ctx)

	if err := s.registerSchedules(ctx); err != nil {
		return err
	}

	if s.workers != nil {
		if err := s.registerDiscoveredWorkers(); err != nil {
			return err
		}
		if s.opts.AutoStartWorkers {
			if err := s.workers.StartAll(ctx); err != nil {
				return err
			}
			for queue, st := range s.workers.AllStatuses() {
				if st.IsRunning {
					s.publisher.Publish(ctx, events.Event{Type: events.TypeWorkerStarted, TaskQueue: queue})
				}
			}
		}
	}

	s.initialized.Store(true)
	s.logger.Info("Orchestrator initialized",
		zap.String("namespace", s.opts.Namespace),
		zap.String("defaultTaskQueue", s.opts.DefaultTaskQueue))
	return nil
}

// awaitReadiness polls engine connectivity and discovery completeness
// on a bounded loop, then proceeds regardless of outcome.
func (s *Service) awaitReadiness(ctx context.Context) {
	deadline := time.Now().Add(s.opts.ReadinessTimeout)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return
		}
		if s.connected(ctx) && s.discovery.Scanned() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.opts.ReadinessPollInterval):
		}
	}
	s.logger.Warn("Readiness wait timed out, continuing bootstrap",
		zap.Duration("timeout", s.opts.ReadinessTimeout))
}

func (s *Service) connected(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()
	_, err := s.client.CheckHealth(probeCtx, nil)
	return err == nil
}

// registerSchedules materializes every discovered schedule in parallel
// on a bounded pool. Builder validation failures abort; remote create
// failures are recorded in the registry and degrade health instead.
func (s *Service) registerSchedules(ctx context.Context) error {
	scheduled := s.discovery.ScheduledMethods()
	if len(scheduled) == 0 {
		return nil
	}

	var buildOpts []schedule.BuildOption
	if s.opts.StrictCron {
		buildOpts = append(buildOpts, schedule.WithStrictCron())
	}

	type job struct {
		id   string
		opts schedule.CreateOptions
	}
	jobs := make([]job, 0, len(scheduled))
	for _, sm := range scheduled {
		spec, err := schedule.Build(sm.Schedule.Descriptor, buildOpts...)
		if err != nil {
			return fmt.Errorf("schedule for %s: %w", sm.WorkflowName, err)
		}
		id := sm.Schedule.ScheduleID
		if id == "" {
			id = "schedule:" + sm.WorkflowName
		}
		jobs = append(jobs, job{
			id: id,
			opts: schedule.CreateOptions{
				Spec: spec,
				Action: schedule.Action{
					WorkflowType: sm.WorkflowName,
					TaskQueue:    sm.TaskQueue,
					Args:         sm.Schedule.Args,
					Memo:         sm.Schedule.Memo,
				},
			},
		})
	}

	pool := pond.NewPool(s.opts.RegistrationConcurrency)
	defer pool.StopAndWait()
	group := pool.NewGroupContext(ctx)

	for _, j := range jobs {
		group.Submit(func() {
			if _, err := s.schedules.Create(ctx, j.id, j.opts); err != nil {
				// already counted by the registry; health reports it
				return
			}
			s.publisher.Publish(ctx, events.Event{Type: events.TypeScheduleCreated, ScheduleID: j.id})
		})
	}

	return group.Wait()
}

// registerDiscoveredWorkers declares one worker per distinct task queue
// referenced by the inventory. Queues already registered by the caller
// are left untouched.
func (s *Service) registerDiscoveredWorkers() error {
	type queueInfo struct {
		workflows int
	}
	queues := make(map[string]*queueInfo)
	claim := func(queue string) *queueInfo {
		qi, ok := queues[queue]
		if !ok {
			qi = &queueInfo{}
			queues[queue] = qi
		}
		return qi
	}

	for _, c := range s.discovery.Inventory() {
		for _, wm := range c.Workflows {
			queue := wm.Options.TaskQueue
			if queue == "" {
				queue = c.TaskQueue
			}
			claim(queue).workflows++
		}
		for _, sm := range c.Scheduled {
			claim(sm.TaskQueue)
		}
	}

	for queue, qi := range queues {
		if s.workers.Has(queue) {
			continue
		}
		source := worker.SourceNone
		if qi.workflows > 0 {
			source = worker.SourceBundle
		}
		err := s.workers.Register(worker.Config{
			TaskQueue:       queue,
			Namespace:       s.opts.Namespace,
			WorkflowSource:  source,
			ActivitiesCount: qi.workflows,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) requireInit() error {
	if !s.initialized.Load() {
		return &errs.InitializationError{Subsystem: "orchestrator", Err: fmt.Errorf("not initialized")}
	}
	return nil
}

func (s *Service) resolveTaskQueue(requested string) string {
	if requested != "" {
		return requested
	}
	if s.opts.DefaultTaskQueue != "" {
		return s.opts.DefaultTaskQueue
	}
	return schedule.DefaultTaskQueue
}

// StartWorkflow starts a workflow execution, default-filling task queue
// and workflow id.
func (s *Service) StartWorkflow(ctx context.Context, workflowType string, args []any, opts StartOptions) (Execution, error) {
	if err := s.requireInit(); err != nil {
		return Execution{}, err
	}
	if workflowType == "" {
		return Execution{}, errs.Validationf("workflowType is required")
	}

	workflowID := opts.WorkflowID
	if workflowID == "" {
		workflowID = fmt.Sprintf("%s-%d", workflowType, time.Now().UnixNano())
	}

	run, err := s.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                       workflowID,
		TaskQueue:                s.resolveTaskQueue(opts.TaskQueue),
		WorkflowExecutionTimeout: opts.WorkflowExecutionTimeout,
		WorkflowTaskTimeout:      opts.WorkflowTaskTimeout,
		Memo:                     opts.Memo,
	}, workflowType, args...)
	if err != nil {
		s.logger.Error("Failed to start workflow",
			zap.String("workflowType", workflowType),
			zap.String("workflowId", workflowID),
			zap.Error(err))
		return Execution{}, err
	}

	return Execution{WorkflowID: run.GetID(), RunID: run.GetRunID()}, nil
}

// SignalWorkflow delivers a signal to a running workflow.
func (s *Service) SignalWorkflow(ctx context.Context, workflowID, signalName string, args ...any) error {
	if err := s.requireInit(); err != nil {
		return err
	}
	if workflowID == "" {
		return errs.Validationf("workflowId required")
	}

	var arg any
	switch len(args) {
	case 0:
	case 1:
		arg = args[0]
	default:
		arg = args
	}

	if err := s.client.SignalWorkflow(ctx, workflowID, "", signalName, arg); err != nil {
		s.logger.Error("Failed to signal workflow",
			zap.String("workflowId", workflowID),
			zap.String("signal", signalName),
			zap.Error(err))
		return err
	}
	return nil
}

// QueryWorkflow queries a workflow and returns the encoded result.
func (s *Service) QueryWorkflow(ctx context.Context, workflowID, queryName string, args ...any) (converter.EncodedValue, error) {
	if err := s.requireInit(); err != nil {
		return nil, err
	}
	if workflowID == "" {
		return nil, errs.Validationf("workflowId required")
	}

	val, err := s.client.QueryWorkflow(ctx, workflowID, "", queryName, args...)
	if err != nil {
		s.logger.Error("Failed to query workflow",
			zap.String("workflowId", workflowID),
			zap.String("query", queryName),
			zap.Error(err))
		return nil, err
	}
	return val, nil
}

// TerminateWorkflow forcefully terminates a workflow. Fire-and-report:
// failure comes back in the result, never as an error.
func (s *Service) TerminateWorkflow(ctx context.Context, workflowID, reason string) OpResult {
	if err := s.requireInit(); err != nil {
		return OpResult{WorkflowID: workflowID, Error: errs.ExtractMessage(err)}
	}
	if workflowID == "" {
		return OpResult{Error: "workflowId required"}
	}

	if err := s.client.TerminateWorkflow(ctx, workflowID, "", reason); err != nil {
		s.logger.Error("Failed to terminate workflow",
			zap.String("workflowId", workflowID),
			zap.Error(err))
		return OpResult{WorkflowID: workflowID, Error: errs.ExtractMessage(err)}
	}
	return OpResult{Success: true, WorkflowID: workflowID}
}

// CancelWorkflow requests cooperative cancellation of a workflow.
// Fire-and-report like TerminateWorkflow.
func (s *Service) CancelWorkflow(ctx context.Context, workflowID, reason string) OpResult {
	if err := s.requireInit(); err != nil {
		return OpResult{WorkflowID: workflowID, Error: errs.ExtractMessage(err)}
	}
	if workflowID == "" {
		return OpResult{Error: "workflowId required"}
	}

	if err := s.client.CancelWorkflow(ctx, workflowID, ""); err != nil {
		s.logger.Error("Failed to cancel workflow",
			zap.String("workflowId", workflowID),
			zap.String("reason", reason),
			zap.Error(err))
		return OpResult{WorkflowID: workflowID, Error: errs.ExtractMessage(err)}
	}
	return OpResult{Success: true, WorkflowID: workflowID}
}

// CreateSchedule builds and registers a schedule from a raw descriptor.
func (s *Service) CreateSchedule(ctx context.Context, id string, desc schedule.Descriptor, action schedule.Action) (client.ScheduleHandle, error) {
	if err := s.requireInit(); err != nil {
		return nil, err
	}
	var buildOpts []schedule.BuildOption
	if s.opts.StrictCron {
		buildOpts = append(buildOpts, schedule.WithStrictCron())
	}
	spec, err := schedule.Build(desc, buildOpts...)
	if err != nil {
		return nil, err
	}
	if action.TaskQueue == "" {
		action.TaskQueue = s.resolveTaskQueue("")
	}
	handle, err := s.schedules.Create(ctx, id, schedule.CreateOptions{Spec: spec, Action: action})
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(ctx, events.Event{Type: events.TypeScheduleCreated, ScheduleID: id})
	return handle, nil
}

// GetSchedule resolves a schedule handle by id.
func (s *Service) GetSchedule(ctx context.Context, id string) (client.ScheduleHandle, error) {
	if err := s.requireInit(); err != nil {
		return nil, err
	}
	return s.schedules.Get(ctx, id)
}

// PauseSchedule suspends a schedule.
func (s *Service) PauseSchedule(ctx context.Context, id, note string) error {
	if err := s.requireInit(); err != nil {
		return err
	}
	return s.schedules.Pause(ctx, id, note)
}

// ResumeSchedule unpauses a schedule.
func (s *Service) ResumeSchedule(ctx context.Context, id, note string) error {
	if err := s.requireInit(); err != nil {
		return err
	}
	return s.schedules.Resume(ctx, id, note)
}

// TriggerSchedule fires a schedule immediately.
func (s *Service) TriggerSchedule(ctx context.Context, id string) error {
	if err := s.requireInit(); err != nil {
		return err
	}
	return s.schedules.Trigger(ctx, id)
}

// DeleteSchedule removes a schedule remotely and locally.
func (s *Service) DeleteSchedule(ctx context.Context, id string) error {
	if err := s.requireInit(); err != nil {
		return err
	}
	if err := s.schedules.Delete(ctx, id); err != nil {
		return err
	}
	s.publisher.Publish(ctx, events.Event{Type: events.TypeScheduleDeleted, ScheduleID: id})
	return nil
}

// RestartWorker restarts the worker for a task queue (single-flight per
// queue).
func (s *Service) RestartWorker(ctx context.Context, taskQueue string) error {
	if err := s.requireInit(); err != nil {
		return err
	}
	if s.workers == nil {
		return errs.NotFound("worker", taskQueue)
	}
	return s.workers.Restart(ctx, taskQueue)
}

// WorkerStatus returns the status of one worker.
func (s *Service) WorkerStatus(taskQueue string) (worker.Status, error) {
	if s.workers == nil {
		return worker.Status{}, errs.NotFound("worker", taskQueue)
	}
	return s.workers.Status(taskQueue)
}

// Health recomputes the aggregated service health from live component
// snapshots. It never fails; an unreachable engine shows up as an
// unhealthy status, not an error.
func (s *Service) Health(ctx context.Context) health.Report {
	clientHealth := health.ClientHealth{Connected: s.connected(ctx)}

	var workerSnap *health.WorkerSnapshot
	if s.workers != nil && s.workers.Count() > 0 {
		workerSnap = combineWorkerStatuses(s.workers.AllStatuses())
	}

	schedStats := s.schedules.Stats()
	discStats := s.discovery.Stats()

	return health.Aggregate(
		clientHealth,
		workerSnap,
		health.ScheduleSnapshot{Count: schedStats.Cached, Errors: schedStats.Errors},
		health.DiscoverySnapshot{Controllers: discStats.Controllers, Scheduled: discStats.Scheduled},
	)
}

// combineWorkerStatuses folds per-queue statuses into the single worker
// contribution health aggregation expects: initialized if any worker
// initialized, running only if every initialized worker runs, healthy
// only if every running worker reports healthy.
func combineWorkerStatuses(statuses map[string]worker.Status) *health.WorkerSnapshot {
	snap := &health.WorkerSnapshot{IsRunning: true, IsHealthy: true}
	for queue, st := range statuses {
		if st.IsInitialized {
			snap.IsInitialized = true
			if !st.IsRunning {
				snap.IsRunning = false
				snap.TaskQueue = queue
			}
		}
		if st.IsRunning && !st.IsHealthy {
			snap.IsHealthy = false
			snap.TaskQueue = queue
		}
		if st.LastError != "" && snap.LastError == "" {
			snap.LastError = st.LastError
		}
	}
	if !snap.IsInitialized {
		snap.IsRunning = false
	}
	return snap
}

// Stats returns the combined counters snapshot. Never fails.
func (s *Service) Stats() Stats {
	st := Stats{
		Discovery: s.discovery.Stats(),
		Schedules: s.schedules.Stats(),
	}
	if s.workers != nil {
		st.Workers = s.workers.AllStatuses()
	}
	return st
}

// DiscoveryStats returns the discovery counters from the last scan.
func (s *Service) DiscoveryStats() metadata.Stats {
	return s.discovery.Stats()
}

// Shutdown tears the facade down exactly once. Concurrent and repeated
// calls all resolve with the first teardown's outcome.
func (s *Service) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		defer close(s.shutdownDone)
		s.initialized.Store(false)
		s.logger.Info("Shutting down orchestrator")

		if s.workers != nil {
			var running []string
			for queue, st := range s.workers.AllStatuses() {
				if st.IsRunning {
					running = append(running, queue)
				}
			}
			s.workers.StopAll(ctx)
			for _, queue := range running {
				s.publisher.Publish(ctx, events.Event{Type: events.TypeWorkerStopped, TaskQueue: queue})
			}
		}
		s.publisher.Publish(ctx, events.Event{Type: events.TypeShutdown})
		if err := s.publisher.Close(); err != nil {
			s.logger.Warn("Failed to close event publisher", zap.Error(err))
		}
		s.client.Close()
	})
	<-s.shutdownDone
	return s.shutdownErr
}
