package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/arcline/maestro/pkg/errs"
	"github.com/puzpuzpuz/xsync/v4"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"
)

// DefaultTaskQueue is used when a schedule action resolves no queue of
// its own.
const DefaultTaskQueue = "default"

// DefaultTimeZone is applied when neither the descriptor nor the
// registry configuration carries a time zone.
const DefaultTimeZone = "UTC"

// SchedulerClient is the subset of the remote scheduler used by the
// registry. *client.ScheduleClient implementations satisfy it.
type SchedulerClient interface {
	Create(ctx context.Context, options client.ScheduleOptions) (client.ScheduleHandle, error)
	GetHandle(ctx context.Context, scheduleID string) client.ScheduleHandle
}

// Action is the payload a schedule fires: which workflow to start, where,
// and with what arguments.
type Action struct {
	WorkflowType string
	TaskQueue    string
	Args         []any
	Memo         map[string]any
}

// CreateOptions carries everything needed to materialize one schedule.
type CreateOptions struct {
	Spec             Spec
	Action           Action
	SearchAttributes map[string]any
}

// Stats is a point-in-time view of the registry for health reporting.
type Stats struct {
	Cached  int   `json:"cached"`
	Created int64 `json:"created"`
	Errors  int64 `json:"errors"`
}

// Registry tracks remote schedules through a local write-through handle
// cache. The cache is restart-volatile; the remote scheduler remains the
// source of truth. Known limitation: a schedule deleted out-of-band
// leaves a stale cached handle until the process restarts.
type Registry struct {
	scheduler SchedulerClient
	logger    *zap.Logger
	timeZone  string

	cache   *xsync.Map[string, client.ScheduleHandle]
	created atomic.Int64
	errored atomic.Int64
}

// NewRegistry builds a registry over the given scheduler client.
// timeZone is the deployment default applied to specs without one; pass
// "" to use DefaultTimeZone.
func NewRegistry(scheduler SchedulerClient, logger *zap.Logger, timeZone string) *Registry {
	if timeZone == "" {
		timeZone = DefaultTimeZone
	}
	return &Registry{
		scheduler: scheduler,
		logger:    logger,
		timeZone:  timeZone,
		cache:     xsync.NewMap[string, client.ScheduleHandle](),
	}
}

// Create materializes a schedule remotely, once per id per process.
// A cached id returns its handle without a remote call; a schedule that
// already exists remotely is adopted rather than failing.
func (r *Registry) Create(ctx context.Context, id string, opts CreateOptions) (client.ScheduleHandle, error) {
	if id == "" {
		return nil, errs.Validationf("scheduleId is required")
	}
	if handle, ok := r.cache.Load(id); ok {
		r.logger.Debug("Schedule already registered, returning cached handle", zap.String("id", id))
		return handle, nil
	}

	spec, err := ToTemporal(opts.Spec, r.timeZone)
	if err != nil {
		r.errored.Add(1)
		return nil, err
	}

	taskQueue := opts.Action.TaskQueue
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}

	scheduleOpts := client.ScheduleOptions{
		ID:   id,
		Spec: spec,
		Action: &client.ScheduleWorkflowAction{
			Workflow:  opts.Action.WorkflowType,
			TaskQueue: taskQueue,
			Args:      opts.Action.Args,
			Memo:      opts.Action.Memo,
		},
		SearchAttributes: opts.SearchAttributes,
	}

	handle, err := r.scheduler.Create(ctx, scheduleOpts)
	if err != nil {
		var exists *serviceerror.AlreadyExists
		if errors.As(err, &exists) || errors.Is(err, temporal.ErrScheduleAlreadyRunning) {
			handle = r.scheduler.GetHandle(ctx, id)
			r.cache.Store(id, handle)
			r.logger.Info("Adopted existing schedule", zap.String("id", id))
			return handle, nil
		}
		r.errored.Add(1)
		r.logger.Error("Failed to create schedule", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	r.cache.Store(id, handle)
	r.created.Add(1)
	r.logger.Info("Created schedule",
		zap.String("id", id),
		zap.String("taskQueue", taskQueue),
		zap.Strings("cron", opts.Spec.CronExpressions),
		zap.Int("intervals", len(opts.Spec.Intervals)))
	return handle, nil
}

// Get returns the handle for id, fetching and caching it from the
// remote scheduler on a cache miss. An id unknown remotely yields a
// NotFound error carrying the id.
func (r *Registry) Get(ctx context.Context, id string) (client.ScheduleHandle, error) {
	if handle, ok := r.cache.Load(id); ok {
		return handle, nil
	}

	handle := r.scheduler.GetHandle(ctx, id)
	if _, err := handle.Describe(ctx); err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return nil, errs.NotFound("schedule", id)
		}
		return nil, err
	}

	r.cache.Store(id, handle)
	return handle, nil
}

// Trigger fires the schedule immediately, outside its spec.
func (r *Registry) Trigger(ctx context.Context, id string) error {
	handle, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return handle.Trigger(ctx, client.ScheduleTriggerOptions{})
}

// Pause suspends the schedule with an optional operator note.
func (r *Registry) Pause(ctx context.Context, id, note string) error {
	handle, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if note == "" {
		note = "Paused at " + time.Now().Format(time.RFC3339)
	}
	return handle.Pause(ctx, client.SchedulePauseOptions{Note: note})
}

// Resume unpauses the schedule with an optional operator note.
func (r *Registry) Resume(ctx context.Context, id, note string) error {
	handle, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if note == "" {
		note = "Resumed at " + time.Now().Format(time.RFC3339)
	}
	return handle.Unpause(ctx, client.ScheduleUnpauseOptions{Note: note})
}

// Delete removes the schedule remotely and evicts it from the cache.
func (r *Registry) Delete(ctx context.Context, id string) error {
	handle, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := handle.Delete(ctx); err != nil {
		return err
	}
	r.cache.Delete(id)
	return nil
}

// Stats reports cache size plus create/error counters.
func (r *Registry) Stats() Stats {
	return Stats{
		Cached:  r.cache.Size(),
		Created: r.created.Load(),
		Errors:  r.errored.Load(),
	}
}

// Errors returns the count of failed remote operations since startup.
func (r *Registry) Errors() int64 { return r.errored.Load() }
