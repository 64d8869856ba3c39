package maestro

import (
	"context"
	"net/http"
	"time"

	"github.com/arcline/maestro/pkg/events"
	"github.com/arcline/maestro/pkg/logging"
	"github.com/arcline/maestro/pkg/metadata"
	"github.com/arcline/maestro/pkg/orchestrator"
	"github.com/arcline/maestro/pkg/schedule"
	"github.com/arcline/maestro/pkg/temporal"
	"github.com/arcline/maestro/pkg/utils"
	"github.com/arcline/maestro/pkg/worker"
	sdkworker "go.temporal.io/sdk/worker"
	temporalworkflow "go.temporal.io/sdk/workflow"
	"go.uber.org/zap"
)

// App bundles the orchestrator service with its HTTP surface.
type App struct {
	Logger   *zap.Logger
	Temporal *temporal.Client
	Service  *orchestrator.Service
	Server   *http.Server
}

// Initialize wires the full orchestrator from environment configuration
// plus the caller's controllers. store and provider are the annotation
// capabilities; embedding applications supply their own.
func Initialize(ctx context.Context, store metadata.MetadataStore, provider metadata.ControllerProvider) (*App, error) {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	tc, err := temporal.NewClient(ctx, logger)
	if err != nil {
		logger.Fatal("Unable to establish temporal connection", zap.Error(err))
	}

	retention := utils.EnvDuration("NAMESPACE_RETENTION", 72*time.Hour)
	if err := tc.EnsureNamespace(ctx, retention); err != nil {
		// a pre-provisioned namespace makes this a permissions warning,
		// not a startup failure
		logger.Warn("Unable to ensure namespace", zap.String("namespace", tc.Namespace), zap.Error(err))
	}

	discovery := metadata.NewRegistry(store, provider, logger)
	schedules := schedule.NewRegistry(tc.TSClient, logger, utils.Env("SCHEDULE_TIMEZONE", ""))
	workers := worker.NewManager(
		newWorkerFactory(tc, discovery),
		logger,
		utils.EnvBool("ALLOW_WORKER_FAILURE", false),
	)

	publisher, err := events.NewPublisher(ctx, logger)
	if err != nil {
		// events are best-effort; a misconfigured Redis degrades, never aborts
		logger.Warn("Lifecycle event publisher unavailable", zap.Error(err))
	}

	svc := orchestrator.NewService(
		orchestrator.Options{
			Namespace:             tc.Namespace,
			DefaultTaskQueue:      tc.DefaultQueue,
			AutoStartWorkers:      utils.EnvBool("AUTO_START_WORKERS", true),
			AllowWorkerFailure:    utils.EnvBool("ALLOW_WORKER_FAILURE", false),
			StrictCron:            utils.EnvBool("STRICT_CRON", false),
			ReadinessPollInterval: utils.EnvDuration("READINESS_POLL_INTERVAL", 100*time.Millisecond),
			ReadinessTimeout:      utils.EnvDuration("READINESS_TIMEOUT", 30*time.Second),
		},
		logger, tc.TClient, discovery, schedules, workers, publisher,
	)

	if err := svc.Initialize(ctx); err != nil {
		return nil, err
	}

	app := &App{Logger: logger, Temporal: tc, Service: svc}
	if err := NewServer(app); err != nil {
		return nil, err
	}
	return app, nil
}

// newWorkerFactory builds engine workers that register every discovered
// workflow handler bound to the worker's task queue.
func newWorkerFactory(tc *temporal.Client, discovery *metadata.Registry) worker.Factory {
	return worker.FactoryFunc(func(taskQueue string) (worker.Runner, error) {
		wkr := sdkworker.New(tc.TClient, taskQueue, sdkworker.Options{
			MaxConcurrentWorkflowTaskPollers: utils.EnvInt("WORKER_WORKFLOW_POLLERS", 5),
			MaxConcurrentActivityTaskPollers: utils.EnvInt("WORKER_ACTIVITY_POLLERS", 5),
			WorkerStopTimeout:                1 * time.Minute,
		})

		for _, c := range discovery.Inventory() {
			for _, wm := range c.Workflows {
				queue := wm.Options.TaskQueue
				if queue == "" {
					queue = c.TaskQueue
				}
				if queue != taskQueue || wm.Handler == nil {
					continue
				}
				wkr.RegisterWorkflowWithOptions(
					wm.Handler,
					temporalworkflow.RegisterOptions{Name: wm.PublicName},
				)
			}
		}

		return wkr, nil
	})
}

// Start blocks until ctx is cancelled, then shuts the service down.
func (a *App) Start(ctx context.Context) {
	go func() { _ = a.Server.ListenAndServe() }()
	<-ctx.Done()
	a.Stop()
}

// Stop tears everything down. Safe to call more than once.
func (a *App) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.Service.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("Shutdown finished with error", zap.Error(err))
	}

	a.Logger.Info("shutting down server")
	_ = a.Server.Shutdown(shutdownCtx)

	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("さようなら!")
}
