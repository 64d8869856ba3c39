package temporal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arcline/maestro/pkg/errs"
	"github.com/arcline/maestro/pkg/retry"
	"github.com/arcline/maestro/pkg/utils"
	"go.uber.org/zap"

	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	taskqueuepb "go.temporal.io/api/taskqueue/v1"
	workflowservicepb "go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
	"google.golang.org/protobuf/types/known/durationpb"
)

// Client wraps the engine connection plus the identifiers the facade
// operates with: the namespace and the default task queue.
type Client struct {
	TClient   client.Client
	TSClient  client.ScheduleClient
	Namespace string
	HostPort  string

	DefaultQueue string

	logger *zap.Logger
}

// Health is the connectivity probe result. Poller listings are a
// best-effort enrichment; ConnectionOK alone decides connectivity.
type Health struct {
	ConnectionOK bool                      `json:"connection_ok"`
	DefaultQueue []*taskqueuepb.PollerInfo `json:"default_queue,omitempty"`
}

// NewClient connects to the engine using environment configuration,
// retrying with backoff until the connection health-checks or the
// policy is exhausted.
func NewClient(ctx context.Context, logger *zap.Logger) (*Client, error) {
	host := utils.Env("TEMPORAL_HOSTPORT", "localhost:7233")
	ns := utils.Env("TEMPORAL_NAMESPACE", "maestro")
	queue := utils.Env("TASK_QUEUE", "default")
	loggerWrapper := NewZapAdapter(logger)

	logger.Info("Connecting to Temporal", zap.String("host", host), zap.String("namespace", ns))

	tClient, err := connectWithRetry(ctx, retry.DefaultPolicy(), logger, func(ctx context.Context) (client.Client, error) {
		return Dial(ctx, host, ns, loggerWrapper)
	})
	if err != nil {
		return nil, err
	}

	return &Client{
		TClient:      tClient,
		TSClient:     tClient.ScheduleClient(),
		Namespace:    ns,
		HostPort:     host,
		DefaultQueue: queue,
		logger:       logger,
	}, nil
}

type dialFunc func(ctx context.Context) (client.Client, error)

// connectWithRetry dials and health-checks the engine under the backoff
// policy. An exhausted policy surfaces as a ConnectivityError wrapping
// the last dial or health-check failure.
func connectWithRetry(ctx context.Context, p retry.Policy, logger *zap.Logger, dial dialFunc) (client.Client, error) {
	var tClient client.Client
	err := retry.Do(ctx, p, logger, "temporal_connection", func() error {
		var err error
		tClient, err = dial(ctx)
		if err != nil {
			return err
		}
		if _, err = tClient.CheckHealth(ctx, nil); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, &errs.ConnectivityError{Err: err}
	}
	return tClient, nil
}

// Dial connects to Temporal using the provided hostPort and namespace.
func Dial(ctx context.Context, hostPort, namespace string, logger log.Logger) (client.Client, error) {
	return client.DialContext(
		ctx,
		client.Options{
			HostPort:  hostPort,
			Namespace: namespace,
			Logger:    logger,
		},
	)
}

// Health probes the engine connection and, when reachable, lists the
// pollers on the default task queue.
func (c *Client) Health(ctx context.Context) Health {
	h := Health{}
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	if _, err := c.TClient.CheckHealth(ctx, nil); err != nil {
		return h
	}
	h.ConnectionOK = true

	svc := c.TClient.WorkflowService()
	if svc != nil {
		if rep, err := svc.DescribeTaskQueue(ctx, &workflowservicepb.DescribeTaskQueueRequest{
			Namespace:     c.Namespace,
			TaskQueue:     &taskqueuepb.TaskQueue{Name: c.DefaultQueue},
			TaskQueueType: enums.TASK_QUEUE_TYPE_WORKFLOW,
		}); err == nil {
			h.DefaultQueue = rep.GetPollers()
		}
	}
	return h
}

// namespaceClient is the slice of client.NamespaceClient the ensure
// path needs.
type namespaceClient interface {
	Describe(ctx context.Context, name string) (*workflowservicepb.DescribeNamespaceResponse, error)
	Register(ctx context.Context, request *workflowservicepb.RegisterNamespaceRequest) error
}

// Registration is eventually consistent; the ensure loop re-describes
// on this interval until the namespace turns visible.
var namespaceVisibilityPoll = 2 * time.Second

// EnsureNamespace creates the configured namespace when it does not
// exist yet, with the given workflow retention period, and waits for it
// to become visible.
func (c *Client) EnsureNamespace(ctx context.Context, retention time.Duration) error {
	nsClient, err := client.NewNamespaceClient(client.Options{
		HostPort: c.HostPort,
		Logger:   NewZapAdapter(c.logger),
	})
	if err != nil {
		return fmt.Errorf("failed to create namespace client: %w", err)
	}
	defer nsClient.Close()

	return c.ensureNamespace(ctx, nsClient, retention)
}

func (c *Client) ensureNamespace(ctx context.Context, nsClient namespaceClient, retention time.Duration) error {
	for {
		_, err := nsClient.Describe(ctx, c.Namespace)
		if err == nil {
			return nil
		}

		var notFound *serviceerror.NamespaceNotFound
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to describe namespace: %w", err)
		}

		c.logger.Info("Creating namespace", zap.String("namespace", c.Namespace))
		err = nsClient.Register(ctx, &workflowservicepb.RegisterNamespaceRequest{
			Namespace:                        c.Namespace,
			WorkflowExecutionRetentionPeriod: durationpb.New(retention),
		})
		if err != nil {
			var exists *serviceerror.NamespaceAlreadyExists
			if !errors.As(err, &exists) {
				return fmt.Errorf("failed to register namespace: %w", err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(namespaceVisibilityPoll):
		}
	}
}

// Close closes the underlying engine connection.
func (c *Client) Close() {
	if c.TClient != nil {
		c.TClient.Close()
	}
}
