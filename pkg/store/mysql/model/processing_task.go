package model

import "time"

// ProcessingTask MySQL model for the processing_tasks table. One row
// per task id holding the latest status snapshot, written by upsert.
type ProcessingTask struct {
	ID       int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	TaskID   string `gorm:"column:task_id;type:varchar(255);not null;uniqueIndex:idx_task_id_unique" json:"task_id"`
	TaskName string `gorm:"column:task_name;type:varchar(512);not null" json:"task_name"`
	TaskType string `gorm:"column:task_type;type:varchar(64);not null;index:idx_task_type" json:"task_type"`

	Status        string `gorm:"column:status;type:varchar(32);not null;index:idx_status" json:"status"`
	StatusMessage string `gorm:"column:status_message;type:text" json:"status_message"`

	ProgressCurrent    int     `gorm:"column:progress_current" json:"progress_current"`
	ProgressTotal      int     `gorm:"column:progress_total" json:"progress_total"`
	ProgressPercentage float64 `gorm:"column:progress_percentage" json:"progress_percentage"`
	ProgressStage      string  `gorm:"column:progress_stage;type:varchar(64)" json:"progress_stage"`

	DocumentID string `gorm:"column:document_id;type:varchar(255);index:idx_document_id" json:"document_id"`
	QueryID    string `gorm:"column:query_id;type:varchar(255);index:idx_query_id" json:"query_id"`
	UserID     string `gorm:"column:user_id;type:varchar(255);index:idx_user_id" json:"user_id"`
	SessionID  string `gorm:"column:session_id;type:varchar(255)" json:"session_id"`
	BatchID    string `gorm:"column:batch_id;type:varchar(255)" json:"batch_id"`
	SourceID   string `gorm:"column:source_id;type:varchar(255)" json:"source_id"`
	ProjectID  string `gorm:"column:project_id;type:varchar(255)" json:"project_id"`

	ErrorType    string `gorm:"column:error_type;type:varchar(255)" json:"error_type"`
	ErrorMessage string `gorm:"column:error_message;type:text" json:"error_message"`
	RetryCount   int    `gorm:"column:retry_count" json:"retry_count"`
	MaxRetries   int    `gorm:"column:max_retries" json:"max_retries"`

	Result   JSONMap `gorm:"column:result;type:json" json:"result"`
	Metadata JSONMap `gorm:"column:metadata;type:json" json:"metadata"`

	WorkerID  string `gorm:"column:worker_id;type:varchar(255)" json:"worker_id"`
	QueueName string `gorm:"column:queue_name;type:varchar(255)" json:"queue_name"`
	Priority  int    `gorm:"column:priority" json:"priority"`

	RuntimeSeconds *float64 `gorm:"column:runtime_seconds" json:"runtime_seconds"`

	SchemaVersion string `gorm:"column:schema_version;type:varchar(16)" json:"schema_version"`

	CreatedAt   time.Time  `gorm:"column:created_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3)" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3)" json:"updated_at"`
	StartedAt   *time.Time `gorm:"column:started_at;type:datetime(3)" json:"started_at"`
	CompletedAt *time.Time `gorm:"column:completed_at;type:datetime(3)" json:"completed_at"`
}

// TableName specifies the table name for ProcessingTask
func (ProcessingTask) TableName() string {
	return "processing_tasks"
}
