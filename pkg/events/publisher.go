// Package events publishes orchestration lifecycle events (worker
// started/stopped, schedule created/deleted) onto a capped Redis stream
// for ops tooling. The publisher is optional: without Redis
// configuration it stays disabled and every publish is a no-op.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/arcline/maestro/pkg/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Event types emitted by the orchestrator.
const (
	TypeWorkerStarted   = "worker.started"
	TypeWorkerStopped   = "worker.stopped"
	TypeScheduleCreated = "schedule.created"
	TypeScheduleDeleted = "schedule.deleted"
	TypeShutdown        = "service.shutdown"
)

const defaultStreamMaxLen = 10000

// Event is one lifecycle notification.
type Event struct {
	Type       string
	TaskQueue  string
	ScheduleID string
	Detail     string
}

// Publisher writes events to a Redis stream. A nil Publisher is valid
// and drops everything.
type Publisher struct {
	client *redis.Client
	logger *zap.Logger
	stream string
	maxLen int64
}

// NewPublisher builds a publisher from environment configuration.
// Returns (nil, nil) when REDIS_HOST is unset: event publishing is
// opt-in and its absence never fails bootstrap.
func NewPublisher(ctx context.Context, logger *zap.Logger) (*Publisher, error) {
	host := utils.Env("REDIS_HOST", "")
	if host == "" {
		logger.Debug("Redis not configured, lifecycle events disabled")
		return nil, nil
	}
	port := utils.Env("REDIS_PORT", "6379")
	password := utils.Env("REDIS_PASSWORD", "")
	db := utils.EnvInt("REDIS_DB", 0)
	stream := utils.Env("REDIS_EVENTS_STREAM", "maestro:events")
	maxLen := int64(utils.EnvInt("REDIS_STREAM_MAXLEN", defaultStreamMaxLen))

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       db,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info("Lifecycle event publisher enabled",
		zap.String("addr", rdb.Options().Addr),
		zap.String("stream", stream))

	return &Publisher{client: rdb, logger: logger, stream: stream, maxLen: maxLen}, nil
}

// Publish appends the event to the stream. Failures are logged, never
// returned: event delivery is best-effort by contract.
func (p *Publisher) Publish(ctx context.Context, e Event) {
	if p == nil {
		return
	}
	values := map[string]any{
		"type": e.Type,
		"at":   time.Now().UTC().Format(time.RFC3339Nano),
	}
	if e.TaskQueue != "" {
		values["taskQueue"] = e.TaskQueue
	}
	if e.ScheduleID != "" {
		values["scheduleId"] = e.ScheduleID
	}
	if e.Detail != "" {
		values["detail"] = e.Detail
	}

	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		p.logger.Warn("Failed to publish lifecycle event",
			zap.String("type", e.Type),
			zap.Error(err))
	}
}

// Close releases the Redis connection.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.client.Close()
}
