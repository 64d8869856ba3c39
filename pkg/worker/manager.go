package worker

import (
	"context"
	"sync"
	"time"

	"github.com/arcline/maestro/pkg/errs"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// State of a managed worker.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateRunning       State = "running"
	StateStopping      State = "stopping"
	StateStopped       State = "stopped"
	StateError         State = "error"
)

// Source describes where a worker's workflow definitions come from.
type Source string

const (
	SourceBundle     Source = "bundle"
	SourceFilesystem Source = "filesystem"
	SourceNone       Source = "none"
)

// Runner is the start/stop surface of an engine worker. The production
// factory returns go.temporal.io/sdk/worker.Worker values; tests stub it.
type Runner interface {
	Start() error
	Stop()
}

// Factory builds a runner bound to a task queue, with all workflow and
// activity registration already done.
type Factory interface {
	NewWorker(taskQueue string) (Runner, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(taskQueue string) (Runner, error)

func (f FactoryFunc) NewWorker(taskQueue string) (Runner, error) { return f(taskQueue) }

// Config is the full configuration of one managed worker. TaskQueue and
// Namespace are mandatory; a partially configured worker is a validation
// error, never a partial start.
type Config struct {
	TaskQueue       string
	Namespace       string
	WorkflowSource  Source
	ActivitiesCount int
}

// Status is the externally visible view of one worker. The three
// booleans are independent: initialization survives stop, and health is
// an externally reported liveness signal orthogonal to running.
type Status struct {
	State           State         `json:"state"`
	IsInitialized   bool          `json:"isInitialized"`
	IsRunning       bool          `json:"isRunning"`
	IsHealthy       bool          `json:"isHealthy"`
	TaskQueue       string        `json:"taskQueue"`
	Namespace       string        `json:"namespace"`
	WorkflowSource  Source        `json:"workflowSource"`
	ActivitiesCount int           `json:"activitiesCount"`
	LastError       string        `json:"lastError,omitempty"`
	StartedAt       time.Time     `json:"startedAt,omitempty"`
	Uptime          time.Duration `json:"uptime,omitempty"`
}

type managed struct {
	mu          sync.Mutex
	cfg         Config
	runner      Runner
	state       State
	initialized bool
	running     bool
	healthy     bool
	lastError   string
	startedAt   time.Time
}

// Manager owns zero or more named workers keyed by task queue. Start,
// stop, and status on one queue never touch another queue's worker.
type Manager struct {
	factory      Factory
	logger       *zap.Logger
	allowFailure bool

	workers  *xsync.Map[string, *managed]
	restarts singleflight.Group
}

// NewManager builds a lifecycle manager. When allowFailure is true a
// worker that fails to start is recorded as degraded instead of
// propagating the failure to the caller.
func NewManager(factory Factory, logger *zap.Logger, allowFailure bool) *Manager {
	return &Manager{
		factory:      factory,
		logger:       logger,
		allowFailure: allowFailure,
		workers:      xsync.NewMap[string, *managed](),
	}
}

// Register declares a worker for cfg.TaskQueue without starting it.
// Registering an already known queue is a validation error.
func (m *Manager) Register(cfg Config) error {
	if cfg.TaskQueue == "" {
		return errs.Validationf("worker task queue is required")
	}
	if cfg.Namespace == "" {
		return errs.Validationf("worker namespace is required for task queue %q", cfg.TaskQueue)
	}
	if cfg.WorkflowSource == "" {
		cfg.WorkflowSource = SourceNone
	}

	w := &managed{cfg: cfg, state: StateUninitialized, healthy: true}
	if _, loaded := m.workers.LoadOrStore(cfg.TaskQueue, w); loaded {
		return errs.Validationf("worker for task queue %q is already registered", cfg.TaskQueue)
	}
	m.logger.Info("Registered worker",
		zap.String("taskQueue", cfg.TaskQueue),
		zap.String("namespace", cfg.Namespace))
	return nil
}

// Has reports whether a worker is registered for taskQueue.
func (m *Manager) Has(taskQueue string) bool {
	_, ok := m.workers.Load(taskQueue)
	return ok
}

// Start brings the worker for taskQueue to running. Starting a running
// worker is a no-op. On failure the error is either recorded (degraded)
// or propagated, depending on the manager's allow-failure flag.
func (m *Manager) Start(ctx context.Context, taskQueue string) error {
	w, ok := m.workers.Load(taskQueue)
	if !ok {
		return errs.NotFound("worker", taskQueue)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	w.state = StateInitializing
	if w.runner == nil {
		runner, err := m.factory.NewWorker(taskQueue)
		if err != nil {
			return m.fail(w, "initialize", err)
		}
		w.runner = runner
	}
	w.initialized = true

	if err := w.runner.Start(); err != nil {
		return m.fail(w, "start", err)
	}

	w.state = StateRunning
	w.running = true
	w.lastError = ""
	w.startedAt = time.Now()
	m.logger.Info("Worker started", zap.String("taskQueue", taskQueue))
	return nil
}

// fail records the error on the worker and applies the allow-failure
// policy. Caller holds w.mu. allowFailure only suppresses the returned
// error; an initialized worker left not running still reports through
// aggregated health as a hard failure.
func (m *Manager) fail(w *managed, phase string, err error) error {
	w.state = StateError
	w.running = false
	w.lastError = err.Error()
	m.logger.Error("Worker "+phase+" failed",
		zap.String("taskQueue", w.cfg.TaskQueue),
		zap.Error(err))
	if m.allowFailure {
		return nil
	}
	return &errs.InitializationError{Subsystem: "worker:" + w.cfg.TaskQueue, Err: err}
}

// Stop transitions a running worker to stopped. Stopping a worker that
// is not running is a no-op.
func (m *Manager) Stop(ctx context.Context, taskQueue string) error {
	w, ok := m.workers.Load(taskQueue)
	if !ok {
		return errs.NotFound("worker", taskQueue)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	w.state = StateStopping
	w.runner.Stop()
	w.state = StateStopped
	w.running = false
	w.startedAt = time.Time{}
	m.logger.Info("Worker stopped", zap.String("taskQueue", taskQueue))
	return nil
}

// Restart stops and starts the worker. Concurrent restarts of the same
// task queue are collapsed into one stop/start cycle; every caller
// observes that cycle's outcome. Interleaved stop/start on one worker
// can otherwise leave it in an inconsistent running state.
func (m *Manager) Restart(ctx context.Context, taskQueue string) error {
	_, err, _ := m.restarts.Do(taskQueue, func() (any, error) {
		if err := m.Stop(ctx, taskQueue); err != nil {
			return nil, err
		}
		return nil, m.Start(ctx, taskQueue)
	})
	return err
}

// SetHealthy records the externally reported liveness signal for a
// worker. It is independent of running state.
func (m *Manager) SetHealthy(taskQueue string, healthy bool, reason string) {
	w, ok := m.workers.Load(taskQueue)
	if !ok {
		return
	}
	w.mu.Lock()
	w.healthy = healthy
	if !healthy && reason != "" {
		w.lastError = reason
	}
	w.mu.Unlock()
}

// StartAll starts every registered worker, honoring the allow-failure
// policy per worker.
func (m *Manager) StartAll(ctx context.Context) error {
	var firstErr error
	m.workers.Range(func(taskQueue string, _ *managed) bool {
		if err := m.Start(ctx, taskQueue); err != nil {
			firstErr = err
			return false
		}
		return true
	})
	return firstErr
}

// StopAll stops every registered worker. Errors are not possible from
// Stop on a healthy registry, so this never fails part-way.
func (m *Manager) StopAll(ctx context.Context) {
	m.workers.Range(func(taskQueue string, _ *managed) bool {
		_ = m.Stop(ctx, taskQueue)
		return true
	})
}

// Status returns the in-memory status of one worker. No I/O.
func (m *Manager) Status(taskQueue string) (Status, error) {
	w, ok := m.workers.Load(taskQueue)
	if !ok {
		return Status{}, errs.NotFound("worker", taskQueue)
	}
	return w.status(), nil
}

// AllStatuses returns the status of every registered worker, keyed by
// task queue. No I/O.
func (m *Manager) AllStatuses() map[string]Status {
	out := make(map[string]Status)
	m.workers.Range(func(taskQueue string, w *managed) bool {
		out[taskQueue] = w.status()
		return true
	})
	return out
}

// Count returns the number of registered workers.
func (m *Manager) Count() int {
	return m.workers.Size()
}

func (w *managed) status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := Status{
		State:           w.state,
		IsInitialized:   w.initialized,
		IsRunning:       w.running,
		IsHealthy:       w.healthy,
		TaskQueue:       w.cfg.TaskQueue,
		Namespace:       w.cfg.Namespace,
		WorkflowSource:  w.cfg.WorkflowSource,
		ActivitiesCount: w.cfg.ActivitiesCount,
		LastError:       w.lastError,
		StartedAt:       w.startedAt,
	}
	if w.running && !w.startedAt.IsZero() {
		s.Uptime = time.Since(w.startedAt)
	}
	return s
}
