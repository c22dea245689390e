package interfaces

import (
	"context"
	"time"
)

// TaskRegistry task queue introspection and control.
// Supports multiple implementations, the default is Redis/Asynq.
type TaskRegistry interface {
	// EnqueueTask submits a payload for background execution
	EnqueueTask(ctx context.Context, taskID, taskName string, payload []byte) error

	// GetTaskMeta retrieves queue-level metadata for a task, used by
	// the failure hook to decide dead-letter escalation
	GetTaskMeta(ctx context.Context, taskID string) (*TaskMeta, error)

	// CancelTask cancels a queued task
	CancelTask(ctx context.Context, taskID string) error

	// GetQueueStats retrieves queue statistics
	GetQueueStats(ctx context.Context) (*QueueStats, error)

	// Close closes queue connection
	Close() error
}

// TaskMeta queue-level task metadata
type TaskMeta struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	State       QueueState    `json:"state"`
	Queue       string        `json:"queue"`
	MaxRetries  int           `json:"max_retries"`
	Retries     int           `json:"retries"`
	LastErr     string        `json:"last_err,omitempty"`
	Timeout     time.Duration `json:"timeout"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// QueueState task state at the queue level
type QueueState string

const (
	QueueStatePending   QueueState = "pending"
	QueueStateActive    QueueState = "active"
	QueueStateCompleted QueueState = "completed"
	QueueStateFailed    QueueState = "failed"
	QueueStateRetry     QueueState = "retry"
	QueueStateArchived  QueueState = "archived"
)

// QueueStats queue statistics
type QueueStats struct {
	Queue          string `json:"queue"`
	PendingCount   int    `json:"pending_count"`
	ActiveCount    int    `json:"active_count"`
	CompletedCount int    `json:"completed_count"`
	FailedCount    int    `json:"failed_count"`
	RetryCount     int    `json:"retry_count"`
}
