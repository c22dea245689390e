package service

import (
	"context"
	"encoding/json"
	"fmt"

	"taskstream/internal/model"
	"taskstream/pkg/interfaces"
	"taskstream/pkg/store/mysql"
	storemodel "taskstream/pkg/store/mysql/model"
)

// StatusService provides read access to task status for the REST API,
// combining the durable MySQL snapshot, the Redis status history and
// queue-level metadata.
type StatusService struct {
	statusRepo  *mysql.StatusRepository
	history     interfaces.HistoryStore
	deadLetters interfaces.DeadLetterStore
	tasks       interfaces.TaskRegistry
}

// NewStatusService creates a new status service
func NewStatusService(statusRepo *mysql.StatusRepository, history interfaces.HistoryStore, deadLetters interfaces.DeadLetterStore, tasks interfaces.TaskRegistry) *StatusService {
	return &StatusService{
		statusRepo:  statusRepo,
		history:     history,
		deadLetters: deadLetters,
		tasks:       tasks,
	}
}

// GetTaskStatus retrieves the latest snapshot for a task. Tasks that
// never reported a status but sit in the queue are synthesized as
// pending from queue metadata. Returns nil when the task is unknown
// everywhere.
func (s *StatusService) GetTaskStatus(ctx context.Context, taskID string) (*storemodel.ProcessingTask, error) {
	row, err := s.statusRepo.GetTaskStatus(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if row != nil {
		return row, nil
	}

	if s.tasks == nil {
		return nil, nil
	}
	meta, err := s.tasks.GetTaskMeta(ctx, taskID)
	if err != nil || meta == nil {
		return nil, nil
	}
	return &storemodel.ProcessingTask{
		TaskID:     meta.ID,
		TaskName:   meta.Name,
		TaskType:   model.InferTaskType(meta.Name).String(),
		Status:     string(queuedState(meta.State)),
		QueueName:  meta.Queue,
		RetryCount: meta.Retries,
		MaxRetries: meta.MaxRetries,
	}, nil
}

// GetTaskHistory retrieves the recorded status history for a task,
// nil when no history exists yet.
func (s *StatusService) GetTaskHistory(ctx context.Context, taskID string) (*model.TaskStatusHistory, error) {
	return s.history.GetHistory(ctx, taskID)
}

// ListDocumentTasks retrieves status snapshots for every task
// correlated with a document, newest first.
func (s *StatusService) ListDocumentTasks(ctx context.Context, documentID string, limit int) ([]*storemodel.ProcessingTask, error) {
	return s.statusRepo.ListTasksByDocument(ctx, documentID, limit)
}

// CancelTask cancels a queued task
func (s *StatusService) CancelTask(ctx context.Context, taskID string) error {
	if s.tasks == nil {
		return fmt.Errorf("task registry not configured")
	}
	return s.tasks.CancelTask(ctx, taskID)
}

// GetQueueStats retrieves queue statistics
func (s *StatusService) GetQueueStats(ctx context.Context) (*interfaces.QueueStats, error) {
	if s.tasks == nil {
		return nil, fmt.Errorf("task registry not configured")
	}
	return s.tasks.GetQueueStats(ctx)
}

// ListDeadLetters retrieves up to limit dead letter records, oldest
// first.
func (s *StatusService) ListDeadLetters(ctx context.Context, limit int) ([]*model.DeadLetterRecord, error) {
	return s.deadLetters.ListDeadLetters(ctx, limit)
}

// RequeueDeadLetter pops the oldest dead letter record and submits it
// back to the task queue. Returns the record, nil when the queue is
// empty.
func (s *StatusService) RequeueDeadLetter(ctx context.Context) (*model.DeadLetterRecord, error) {
	record, err := s.deadLetters.PopDeadLetter(ctx)
	if err != nil || record == nil {
		return nil, err
	}

	if s.tasks == nil {
		return nil, fmt.Errorf("task registry not configured")
	}
	payload, err := json.Marshal(record.Payload)
	if err != nil {
		return nil, fmt.Errorf("serialize dead letter payload: %w", err)
	}
	if err := s.tasks.EnqueueTask(ctx, record.TaskID, record.TaskName, payload); err != nil {
		// Put the record back so it is not lost.
		if pushErr := s.deadLetters.PushDeadLetter(ctx, record); pushErr != nil {
			return nil, fmt.Errorf("requeue failed (%v) and restore failed: %w", err, pushErr)
		}
		return nil, fmt.Errorf("requeue dead letter task %s: %w", record.TaskID, err)
	}
	return record, nil
}

// queuedState maps queue-level state onto the status vocabulary the
// API exposes.
func queuedState(state interfaces.QueueState) model.TaskState {
	switch state {
	case interfaces.QueueStateActive:
		return model.TaskStateStarted
	case interfaces.QueueStateCompleted:
		return model.TaskStateSuccess
	case interfaces.QueueStateArchived:
		return model.TaskStateFailure
	case interfaces.QueueStateRetry:
		return model.TaskStateRetry
	default:
		return model.TaskStatePending
	}
}
