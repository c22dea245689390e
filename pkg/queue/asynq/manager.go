package asynq

import (
	"context"
	"fmt"
	"time"

	"taskstream/pkg/config"
	"taskstream/pkg/interfaces"
	"taskstream/pkg/logger"

	"github.com/hibiken/asynq"
)

const defaultQueue = "default"

// Manager queue manager backed by Asynq. Implements
// interfaces.TaskRegistry.
type Manager struct {
	client    *asynq.Client
	server    *asynq.Server
	mux       *asynq.ServeMux
	inspector *asynq.Inspector
}

// NewManager creates queue manager
func NewManager(cfg *config.Config) (*Manager, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	client := asynq.NewClient(redisOpt)

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Queue.Concurrency,
			Queues: map[string]int{
				defaultQueue: 10,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(n) * time.Second
			},
		},
	)

	mux := asynq.NewServeMux()

	return &Manager{
		client:    client,
		server:    server,
		mux:       mux,
		inspector: asynq.NewInspector(redisOpt),
	}, nil
}

// EnqueueTask enqueues a payload under the given task type
func (m *Manager) EnqueueTask(ctx context.Context, taskID, taskName string, payload []byte) error {
	task := asynq.NewTask(taskName, payload)

	opts := []asynq.Option{
		asynq.TaskID(taskID),
		asynq.Timeout(time.Duration(config.GlobalConfig.Queue.TaskTimeout) * time.Second),
		asynq.MaxRetry(config.GlobalConfig.Queue.MaxRetry),
	}

	info, err := m.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	logger.InfoCtx(ctx, "task enqueued, task_id: %s, type: %s, queue: %s", taskID, taskName, info.Queue)

	return nil
}

// GetTaskMeta retrieves queue-level metadata for a task
func (m *Manager) GetTaskMeta(ctx context.Context, taskID string) (*interfaces.TaskMeta, error) {
	info, err := m.inspector.GetTaskInfo(defaultQueue, taskID)
	if err != nil {
		return nil, fmt.Errorf("task not found: %s", taskID)
	}

	meta := &interfaces.TaskMeta{
		ID:         info.ID,
		Name:       info.Type,
		State:      queueState(info.State),
		Queue:      info.Queue,
		MaxRetries: info.MaxRetry,
		Retries:    info.Retried,
		LastErr:    info.LastErr,
		Timeout:    info.Timeout,
	}
	if !info.CompletedAt.IsZero() {
		completedAt := info.CompletedAt
		meta.CompletedAt = &completedAt
	}
	return meta, nil
}

// CancelTask cancels task
func (m *Manager) CancelTask(ctx context.Context, taskID string) error {
	if err := m.inspector.DeleteTask(defaultQueue, taskID); err != nil {
		return fmt.Errorf("failed to cancel task: %w", err)
	}

	logger.InfoCtx(ctx, "task cancelled, task_id: %s", taskID)
	return nil
}

// GetQueueStats retrieves queue statistics
func (m *Manager) GetQueueStats(ctx context.Context) (*interfaces.QueueStats, error) {
	info, err := m.inspector.GetQueueInfo(defaultQueue)
	if err != nil {
		return nil, err
	}

	return &interfaces.QueueStats{
		Queue:          info.Queue,
		PendingCount:   info.Pending,
		ActiveCount:    info.Active,
		CompletedCount: info.Completed,
		FailedCount:    info.Failed,
		RetryCount:     info.Retry,
	}, nil
}

// RegisterHandler registers task handler
func (m *Manager) RegisterHandler(pattern string, handler asynq.Handler) {
	m.mux.Handle(pattern, handler)
}

// Use installs middleware on the handler mux, in registration order
func (m *Manager) Use(mws ...asynq.MiddlewareFunc) {
	m.mux.Use(mws...)
}

// Start starts queue processor
func (m *Manager) Start() error {
	logger.InfoCtx(context.Background(), "starting queue server")
	return m.server.Start(m.mux)
}

// Stop stops queue processor
func (m *Manager) Stop() {
	logger.InfoCtx(context.Background(), "stopping queue server")
	m.server.Stop()
	m.server.Shutdown()
}

// Close closes client
func (m *Manager) Close() error {
	if err := m.inspector.Close(); err != nil {
		logger.Warnf("failed to close inspector: %v", err)
	}
	return m.client.Close()
}

func queueState(state asynq.TaskState) interfaces.QueueState {
	switch state {
	case asynq.TaskStateActive:
		return interfaces.QueueStateActive
	case asynq.TaskStateCompleted:
		return interfaces.QueueStateCompleted
	case asynq.TaskStateRetry:
		return interfaces.QueueStateRetry
	case asynq.TaskStateArchived:
		return interfaces.QueueStateArchived
	default:
		return interfaces.QueueStatePending
	}
}
