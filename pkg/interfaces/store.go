package interfaces

import (
	"context"

	"taskstream/internal/model"
)

// StatusStore durable persistence for task status snapshots.
type StatusStore interface {
	// UpsertTaskStatus writes the latest snapshot for a task, keyed
	// by task_id
	UpsertTaskStatus(ctx context.Context, msg *model.TaskStatusMessage) error

	// UpdateDocumentStatus updates the current processing status of a
	// correlated document
	UpdateDocumentStatus(ctx context.Context, documentID string, status model.TaskState) error
}

// HistoryStore append-only per-task status history.
type HistoryStore interface {
	// AppendHistory records one status observation for a task
	AppendHistory(ctx context.Context, msg *model.TaskStatusMessage) error

	// GetHistory loads the recorded history for a task, newest last
	GetHistory(ctx context.Context, taskID string) (*model.TaskStatusHistory, error)
}

// DeadLetterStore durable queue of tasks that exhausted their retry
// budget.
type DeadLetterStore interface {
	// PushDeadLetter appends a dead letter record
	PushDeadLetter(ctx context.Context, record *model.DeadLetterRecord) error

	// ListDeadLetters returns up to limit records, oldest first
	ListDeadLetters(ctx context.Context, limit int) ([]*model.DeadLetterRecord, error)

	// PopDeadLetter removes and returns the oldest record, nil when
	// the queue is empty
	PopDeadLetter(ctx context.Context) (*model.DeadLetterRecord, error)
}
