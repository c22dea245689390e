package mysql

import (
	"context"
	"fmt"
	"time"

	"taskstream/internal/model"
	storemodel "taskstream/pkg/store/mysql/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StatusRepository persists task status snapshots in MySQL
type StatusRepository struct {
	ds *Datastore
}

// NewStatusRepository creates a new status repository
func NewStatusRepository(ds *Datastore) *StatusRepository {
	return &StatusRepository{ds: ds}
}

// UpsertTaskStatus writes the latest snapshot for a task, inserting on
// first sight and updating the existing row afterwards, keyed by
// task_id.
func (r *StatusRepository) UpsertTaskStatus(ctx context.Context, msg *model.TaskStatusMessage) error {
	row := toProcessingTask(msg)

	err := r.ds.DB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "task_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"task_name", "task_type", "status", "status_message",
			"progress_current", "progress_total", "progress_percentage", "progress_stage",
			"document_id", "query_id", "user_id", "session_id", "batch_id", "source_id", "project_id",
			"error_type", "error_message", "retry_count", "max_retries",
			"result", "metadata", "worker_id", "queue_name", "priority",
			"runtime_seconds", "schema_version", "updated_at", "started_at", "completed_at",
		}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert task status: %w", err)
	}
	return nil
}

// GetTaskStatus retrieves the latest snapshot for a task, nil when the
// task is unknown.
func (r *StatusRepository) GetTaskStatus(ctx context.Context, taskID string) (*storemodel.ProcessingTask, error) {
	var row storemodel.ProcessingTask
	err := r.ds.DB(ctx).Where("task_id = ?", taskID).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get task status: %w", err)
	}
	return &row, nil
}

// UpdateDocumentStatus updates the current processing status of a
// correlated document. An unknown document id is not an error, the
// document may not have been ingested through this deployment.
func (r *StatusRepository) UpdateDocumentStatus(ctx context.Context, documentID string, status model.TaskState) error {
	err := r.ds.DB(ctx).Model(&storemodel.Document{}).
		Where("id = ?", documentID).
		Updates(map[string]interface{}{
			"processing_status": status.String(),
			"updated_at":        time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	return nil
}

// ListTasksByDocument retrieves snapshots for every task correlated
// with a document, newest first.
func (r *StatusRepository) ListTasksByDocument(ctx context.Context, documentID string, limit int) ([]*storemodel.ProcessingTask, error) {
	var rows []*storemodel.ProcessingTask
	q := r.ds.DB(ctx).Where("document_id = ?", documentID).Order("updated_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list tasks by document: %w", err)
	}
	return rows, nil
}

func toProcessingTask(msg *model.TaskStatusMessage) *storemodel.ProcessingTask {
	row := &storemodel.ProcessingTask{
		TaskID:        msg.TaskID,
		TaskName:      msg.TaskName,
		TaskType:      msg.TaskType.String(),
		Status:        msg.Status.String(),
		StatusMessage: msg.StatusMessage,
		DocumentID:    msg.DocumentID,
		QueryID:       msg.QueryID,
		UserID:        msg.UserID,
		SessionID:     msg.SessionID,
		BatchID:       msg.BatchID,
		SourceID:      msg.SourceID,
		ProjectID:     msg.ProjectID,
		Result:        storemodel.JSONMap(msg.Result),
		Metadata:      storemodel.JSONMap(msg.Metadata),
		WorkerID:      msg.WorkerID,
		QueueName:     msg.QueueName,
		Priority:      msg.Priority,
		RuntimeSeconds: msg.RuntimeSeconds,
		SchemaVersion: msg.SchemaVersion,
		CreatedAt:     msg.CreatedAt,
		UpdatedAt:     msg.UpdatedAt,
		StartedAt:     msg.StartedAt,
		CompletedAt:   msg.CompletedAt,
	}
	if msg.Progress != nil {
		row.ProgressCurrent = msg.Progress.Current
		row.ProgressTotal = msg.Progress.Total
		row.ProgressPercentage = msg.Progress.Percentage
		row.ProgressStage = string(msg.Progress.Stage)
	}
	if msg.Error != nil {
		row.ErrorType = msg.Error.ErrorType
		row.ErrorMessage = msg.Error.ErrorMessage
		row.RetryCount = msg.Error.RetryCount
		row.MaxRetries = msg.Error.MaxRetries
	}
	return row
}
