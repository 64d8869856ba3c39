package metadata

import (
	"context"
	"fmt"
	"sync"

	"github.com/arcline/maestro/pkg/errs"
	"go.uber.org/zap"
)

// Registry discovers annotated controllers and builds the method
// inventory. It never talks to the engine; its only side effect is the
// inventory it retains for later reads.
type Registry struct {
	store    MetadataStore
	provider ControllerProvider
	logger   *zap.Logger

	mu        sync.RWMutex
	inventory []*ControllerInfo
	stats     Stats
	scanned   bool
}

// NewRegistry builds a discovery registry over the injected store and
// provider.
func NewRegistry(store MetadataStore, provider ControllerProvider, logger *zap.Logger) *Registry {
	return &Registry{store: store, provider: provider, logger: logger}
}

// Scan reads metadata for every provided controller and rebuilds the
// inventory. Validation failures (unresolvable task queues, duplicate
// public names) surface here, not at runtime.
func (r *Registry) Scan(ctx context.Context) ([]*ControllerInfo, error) {
	controllers := r.provider.Controllers()
	inventory := make([]*ControllerInfo, 0, len(controllers))
	stats := Stats{}

	// uniqueness is per category per task queue
	seen := make(map[string]string)

	for _, instance := range controllers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		info, err := r.scanController(instance, seen)
		if err != nil {
			return nil, err
		}

		inventory = append(inventory, info)
		stats.Controllers++
		stats.Workflows += len(info.Workflows)
		stats.Signals += len(info.Signals)
		stats.Queries += len(info.Queries)
		stats.Scheduled += len(info.Scheduled)
	}

	r.mu.Lock()
	r.inventory = inventory
	r.stats = stats
	r.scanned = true
	r.mu.Unlock()

	r.logger.Info("Controller discovery complete",
		zap.Int("controllers", stats.Controllers),
		zap.Int("workflows", stats.Workflows),
		zap.Int("signals", stats.Signals),
		zap.Int("queries", stats.Queries),
		zap.Int("scheduled", stats.Scheduled))

	return inventory, nil
}

func (r *Registry) scanController(instance any, seen map[string]string) (*ControllerInfo, error) {
	var opts ControllerOptions
	if v, ok := r.store.Get(instance, KeyController); ok {
		co, ok := v.(ControllerOptions)
		if !ok {
			return nil, errs.Validationf("controller metadata for %T has unexpected type %T", instance, v)
		}
		opts = co
	}

	info := &ControllerInfo{Instance: instance, TaskQueue: opts.TaskQueue}

	v, ok := r.store.Get(instance, KeyMethods)
	if !ok {
		// A controller with no annotated methods is legal; it just
		// contributes nothing to the inventory.
		return info, nil
	}
	methods, ok := v.([]MethodMeta)
	if !ok {
		return nil, errs.Validationf("method metadata for %T has unexpected type %T", instance, v)
	}

	for _, m := range methods {
		if m.MethodName == "" {
			return nil, errs.Validationf("method on %T is missing a method name", instance)
		}

		switch m.Kind {
		case KindWorkflow:
			var wo WorkflowOptions
			if m.Workflow != nil {
				wo = *m.Workflow
			}
			public := wo.Name
			if public == "" {
				public = m.MethodName
			}
			queue := wo.TaskQueue
			if queue == "" {
				queue = info.TaskQueue
			}
			if queue == "" {
				return nil, errs.Validationf("workflow method %q on %T has no task queue and the controller declares no default", m.MethodName, instance)
			}
			if err := claim(seen, KindWorkflow, queue, public, m.MethodName); err != nil {
				return nil, err
			}
			info.Workflows = append(info.Workflows, WorkflowMethodInfo{
				MethodName: m.MethodName,
				PublicName: public,
				Options:    wo,
				Handler:    m.Handler,
			})

		case KindSignal:
			var so SignalOptions
			if m.Signal != nil {
				so = *m.Signal
			}
			public := so.Name
			if public == "" {
				public = m.MethodName
			}
			if err := claim(seen, KindSignal, info.TaskQueue, public, m.MethodName); err != nil {
				return nil, err
			}
			info.Signals = append(info.Signals, SignalMethodInfo{
				MethodName: m.MethodName,
				PublicName: public,
				Options:    so,
				Handler:    m.Handler,
			})

		case KindQuery:
			var qo QueryOptions
			if m.Query != nil {
				qo = *m.Query
			}
			public := qo.Name
			if public == "" {
				public = m.MethodName
			}
			if err := claim(seen, KindQuery, info.TaskQueue, public, m.MethodName); err != nil {
				return nil, err
			}
			info.Queries = append(info.Queries, QueryMethodInfo{
				MethodName: m.MethodName,
				PublicName: public,
				Options:    qo,
				Handler:    m.Handler,
			})

		case KindScheduled:
			if m.Schedule == nil {
				return nil, errs.Validationf("scheduled method %q on %T has no schedule options", m.MethodName, instance)
			}
			so := *m.Schedule
			workflowName := so.WorkflowName
			if workflowName == "" {
				workflowName = m.MethodName
			}
			queue := so.TaskQueue
			if queue == "" {
				queue = info.TaskQueue
			}
			if queue == "" {
				return nil, errs.Validationf("scheduled method %q on %T has no task queue resolvable from itself or its controller", m.MethodName, instance)
			}
			info.Scheduled = append(info.Scheduled, ScheduledMethodInfo{
				MethodName:   m.MethodName,
				WorkflowName: workflowName,
				Schedule:     so,
				TaskQueue:    queue,
				Handler:      m.Handler,
				Controller:   info,
			})

		default:
			return nil, errs.Validationf("method %q on %T has unknown kind %q", m.MethodName, instance, m.Kind)
		}
	}

	return info, nil
}

func claim(seen map[string]string, kind MethodKind, queue, public, method string) error {
	key := fmt.Sprintf("%s/%s/%s", kind, queue, public)
	if prev, ok := seen[key]; ok {
		return errs.Validationf("duplicate %s name %q on task queue %q (already declared by %s)", kind, public, queue, prev)
	}
	seen[key] = method
	return nil
}

// Inventory returns the controllers discovered by the last Scan.
func (r *Registry) Inventory() []*ControllerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.inventory
}

// ScheduledMethods flattens the scheduled methods across all discovered
// controllers, in scan order.
func (r *Registry) ScheduledMethods() []ScheduledMethodInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []ScheduledMethodInfo
	for _, c := range r.inventory {
		out = append(out, c.Scheduled...)
	}
	return out
}

// Stats returns the summary counters from the last Scan.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

// Scanned reports whether discovery has completed at least once.
func (r *Registry) Scanned() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scanned
}
