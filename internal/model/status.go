package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// TaskState task lifecycle state
type TaskState string

const (
	TaskStatePending TaskState = "pending"
	TaskStateStarted TaskState = "started"
	TaskStateSuccess TaskState = "success"
	TaskStateFailure TaskState = "failure"
	TaskStateRetry   TaskState = "retry"
	TaskStateRevoked TaskState = "revoked"

	// Extended states for finer-grained progress tracking
	TaskStateQueued     TaskState = "queued"
	TaskStateProcessing TaskState = "processing"
	TaskStateProgress   TaskState = "progress"
	TaskStateCompleted  TaskState = "completed"
	TaskStateCancelled  TaskState = "cancelled"
)

func (s TaskState) String() string {
	return string(s)
}

// IsTerminal reports whether the state ends one execution attempt.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateSuccess, TaskStateFailure, TaskStateCompleted, TaskStateCancelled:
		return true
	}
	return false
}

// TaskType category of background task
type TaskType string

const (
	TaskTypeDocumentProcessing  TaskType = "document_processing"
	TaskTypeEmbeddingGeneration TaskType = "embedding_generation"
	TaskTypeGraphSync           TaskType = "graph_sync"
	TaskTypeAgenticWorkflow     TaskType = "agentic_workflow"
	TaskTypeQueryProcessing     TaskType = "query_processing"
	TaskTypeBatchOperation      TaskType = "batch_operation"
	TaskTypeHealthCheck         TaskType = "health_check"
	TaskTypeGeneric             TaskType = "generic"
)

func (t TaskType) String() string {
	return string(t)
}

// taskTypeRules maps task name substrings to types. Order matters,
// first match wins.
var taskTypeRules = []struct {
	substring string
	taskType  TaskType
}{
	{"document", TaskTypeDocumentProcessing},
	{"process", TaskTypeDocumentProcessing},
	{"embedding", TaskTypeEmbeddingGeneration},
	{"graph", TaskTypeGraphSync},
	{"sync", TaskTypeGraphSync},
	{"crew", TaskTypeAgenticWorkflow},
	{"agent", TaskTypeAgenticWorkflow},
	{"query", TaskTypeQueryProcessing},
	{"batch", TaskTypeBatchOperation},
	{"health", TaskTypeHealthCheck},
}

// InferTaskType derives the task type from a free-text task name.
func InferTaskType(taskName string) TaskType {
	name := strings.ToLower(taskName)
	for _, rule := range taskTypeRules {
		if strings.Contains(name, rule.substring) {
			return rule.taskType
		}
	}
	return TaskTypeGeneric
}

// ProcessingStage named stage within a multi-stage task
type ProcessingStage string

const (
	// Document processing stages
	StageUploading          ProcessingStage = "uploading"
	StageParsing            ProcessingStage = "parsing"
	StageExtractingMetadata ProcessingStage = "extracting_metadata"
	StageChunking           ProcessingStage = "chunking"
	StageEmbedding          ProcessingStage = "embedding"
	StageIndexing           ProcessingStage = "indexing"
	StageGraphSyncing       ProcessingStage = "graph_syncing"

	// Query processing stages
	StageRefining     ProcessingStage = "refining"
	StageSearching    ProcessingStage = "searching"
	StageReranking    ProcessingStage = "reranking"
	StageSynthesizing ProcessingStage = "synthesizing"

	// Agent workflow stages
	StageAgentInitializing ProcessingStage = "agent_initializing"
	StageAgentExecuting    ProcessingStage = "agent_executing"
	StageAgentDelegating   ProcessingStage = "agent_delegating"

	// Generic stages
	StageInitializing ProcessingStage = "initializing"
	StageProcessing   ProcessingStage = "processing"
	StageFinalizing   ProcessingStage = "finalizing"
	StageCompleted    ProcessingStage = "completed"
)

// ProgressInfo progress of a long-running task. Percentage is always
// derived from Current/Total, never set by callers.
type ProgressInfo struct {
	Current     int             `json:"current"`
	Total       int             `json:"total"`
	Percentage  float64         `json:"percentage"`
	Message     string          `json:"message,omitempty"`
	Stage       ProcessingStage `json:"stage,omitempty"`
	StageIndex  *int            `json:"stage_index,omitempty"`
	TotalStages *int            `json:"total_stages,omitempty"`
}

// NewProgress builds a ProgressInfo with the percentage derived.
// Current exceeding total is a validation error. A non-positive total
// yields percentage 0 rather than dividing by zero.
func NewProgress(current, total int, message string) (*ProgressInfo, error) {
	if current < 0 {
		return nil, fmt.Errorf("progress current must not be negative, got %d", current)
	}
	if current > total {
		return nil, fmt.Errorf("progress current %d exceeds total %d", current, total)
	}
	p := &ProgressInfo{Current: current, Total: total, Message: message}
	p.Recalc()
	return p, nil
}

// Recalc rederives the percentage from Current and Total.
func (p *ProgressInfo) Recalc() {
	p.Percentage = ComputePercentage(p.Current, p.Total)
}

// ComputePercentage returns 100*current/total rounded to two decimals
// and clamped to [0, 100]. A non-positive total yields 0.
func ComputePercentage(current, total int) float64 {
	if total <= 0 {
		return 0
	}
	pct := math.Round(float64(current)/float64(total)*100*100) / 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

const maxStackTraceLen = 1000

// ErrorInfo structured error detail for failed tasks. IsRetryable is
// always derived from RetryCount/MaxRetries, never stored independently.
type ErrorInfo struct {
	ErrorType    string    `json:"error_type"`
	ErrorMessage string    `json:"error_message"`
	StackTrace   string    `json:"stack_trace,omitempty"`
	RetryCount   int       `json:"retry_count"`
	MaxRetries   int       `json:"max_retries"`
	IsRetryable  bool      `json:"is_retryable"`
	Timestamp    time.Time `json:"timestamp"`
}

// TaskStatusMessage canonical schema for one lifecycle observation of
// one task execution. Used for pub/sub broadcasting, WebSocket
// notifications, status persistence and REST responses.
type TaskStatusMessage struct {
	TaskID   string   `json:"task_id"`
	TaskName string   `json:"task_name"`
	TaskType TaskType `json:"task_type"`

	Status        TaskState `json:"status"`
	StatusMessage string    `json:"status_message,omitempty"`

	Progress *ProgressInfo `json:"progress,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	RuntimeSeconds            *float64 `json:"runtime_seconds,omitempty"`
	EstimatedRemainingSeconds *float64 `json:"estimated_remaining_seconds,omitempty"`

	// Resource associations for targeted delivery
	DocumentID string `json:"document_id,omitempty"`
	QueryID    string `json:"query_id,omitempty"`
	UserID     string `json:"user_id,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	BatchID    string `json:"batch_id,omitempty"`
	SourceID   string `json:"source_id,omitempty"`
	ProjectID  string `json:"project_id,omitempty"`

	Result map[string]interface{} `json:"result,omitempty"`
	Error  *ErrorInfo             `json:"error,omitempty"`

	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	WorkerID  string                 `json:"worker_id,omitempty"`
	QueueName string                 `json:"queue_name,omitempty"`
	Priority  int                    `json:"priority"`

	SchemaVersion string `json:"schema_version"`
}

// SchemaVersion current wire schema version.
const SchemaVersion = "1.0"

// DefaultPriority middle of the 0-9 priority range.
const DefaultPriority = 5

// Validate checks field constraints that must hold before broadcast.
func (m *TaskStatusMessage) Validate() error {
	if m.TaskID == "" {
		return fmt.Errorf("task_id is required")
	}
	if m.Status == "" {
		return fmt.Errorf("status is required")
	}
	if m.Priority < 0 || m.Priority > 9 {
		return fmt.Errorf("priority must be in [0, 9], got %d", m.Priority)
	}
	if m.Progress != nil {
		if m.Progress.Current < 0 {
			return fmt.Errorf("progress current must not be negative, got %d", m.Progress.Current)
		}
		if m.Progress.Current > m.Progress.Total {
			return fmt.Errorf("progress current %d exceeds total %d", m.Progress.Current, m.Progress.Total)
		}
	}
	return nil
}

// Normalize rederives the computed fields so they cannot drift from
// their inputs: progress percentage and, for failure states, error
// retryability. Retry events are retryable by construction.
func (m *TaskStatusMessage) Normalize() {
	if m.Progress != nil {
		m.Progress.Recalc()
	}
	if m.Error != nil {
		if m.Status == TaskStateRetry {
			m.Error.IsRetryable = true
		} else {
			m.Error.IsRetryable = m.Error.RetryCount < m.Error.MaxRetries
		}
	}
	if m.TaskType == "" {
		m.TaskType = InferTaskType(m.TaskName)
	}
	if m.SchemaVersion == "" {
		m.SchemaVersion = SchemaVersion
	}
}

// ToJSON converts the message to JSON bytes
func (m *TaskStatusMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON converts JSON bytes to a message
func (m *TaskStatusMessage) FromJSON(data []byte) error {
	return json.Unmarshal(data, m)
}

// shortTaskName trims a dotted task path down to its last segment.
func shortTaskName(taskName string) string {
	if idx := strings.LastIndex(taskName, "."); idx >= 0 {
		return taskName[idx+1:]
	}
	return taskName
}

// StatusOption sets optional fields on a factory-built message.
type StatusOption func(*TaskStatusMessage)

// WithDocument associates the message with a document.
func WithDocument(documentID string) StatusOption {
	return func(m *TaskStatusMessage) { m.DocumentID = documentID }
}

// WithQuery associates the message with a query.
func WithQuery(queryID string) StatusOption {
	return func(m *TaskStatusMessage) { m.QueryID = queryID }
}

// WithUser associates the message with the initiating user.
func WithUser(userID string) StatusOption {
	return func(m *TaskStatusMessage) { m.UserID = userID }
}

// WithSession associates the message with a client session.
func WithSession(sessionID string) StatusOption {
	return func(m *TaskStatusMessage) { m.SessionID = sessionID }
}

// WithBatch associates the message with a batch operation.
func WithBatch(batchID string) StatusOption {
	return func(m *TaskStatusMessage) { m.BatchID = batchID }
}

// WithSource associates the message with a knowledge source.
func WithSource(sourceID string) StatusOption {
	return func(m *TaskStatusMessage) { m.SourceID = sourceID }
}

// WithProject associates the message with a project.
func WithProject(projectID string) StatusOption {
	return func(m *TaskStatusMessage) { m.ProjectID = projectID }
}

// WithTaskType overrides the inferred task type.
func WithTaskType(taskType TaskType) StatusOption {
	return func(m *TaskStatusMessage) { m.TaskType = taskType }
}

// WithMetadata merges extra metadata into the message.
func WithMetadata(metadata map[string]interface{}) StatusOption {
	return func(m *TaskStatusMessage) {
		if m.Metadata == nil {
			m.Metadata = make(map[string]interface{}, len(metadata))
		}
		for k, v := range metadata {
			m.Metadata[k] = v
		}
	}
}

// WithWorker records the worker that processed the task.
func WithWorker(workerID string) StatusOption {
	return func(m *TaskStatusMessage) { m.WorkerID = workerID }
}

// WithQueue records the queue the task was submitted to.
func WithQueue(queueName string) StatusOption {
	return func(m *TaskStatusMessage) { m.QueueName = queueName }
}

// WithPriority sets the task priority (0-9, 9 highest).
func WithPriority(priority int) StatusOption {
	return func(m *TaskStatusMessage) { m.Priority = priority }
}

func newBaseMessage(taskID, taskName string, status TaskState, opts ...StatusOption) *TaskStatusMessage {
	now := time.Now().UTC()
	m := &TaskStatusMessage{
		TaskID:        taskID,
		TaskName:      taskName,
		TaskType:      InferTaskType(taskName),
		Status:        status,
		CreatedAt:     now,
		UpdatedAt:     now,
		Metadata:      map[string]interface{}{},
		Priority:      DefaultPriority,
		SchemaVersion: SchemaVersion,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewStartedStatus builds a STARTED lifecycle event.
func NewStartedStatus(taskID, taskName string, opts ...StatusOption) *TaskStatusMessage {
	m := newBaseMessage(taskID, taskName, TaskStateStarted, opts...)
	m.StatusMessage = fmt.Sprintf("Task %s started", shortTaskName(taskName))
	m.StartedAt = &m.CreatedAt
	m.Progress = &ProgressInfo{Current: 0, Total: 100, Message: "Starting..."}
	m.Progress.Recalc()
	return m
}

// NewProgressStatus builds a PROGRESS lifecycle event with the
// percentage derived from current/total.
func NewProgressStatus(taskID, taskName string, current, total int, message string, stage ProcessingStage, opts ...StatusOption) (*TaskStatusMessage, error) {
	progress, err := NewProgress(current, total, message)
	if err != nil {
		return nil, err
	}
	progress.Stage = stage

	m := newBaseMessage(taskID, taskName, TaskStateProgress, opts...)
	m.StatusMessage = message
	m.Progress = progress
	return m, nil
}

// NewSuccessStatus builds a SUCCESS lifecycle event with progress
// forced to 100%.
func NewSuccessStatus(taskID, taskName string, result map[string]interface{}, runtimeSeconds *float64, opts ...StatusOption) *TaskStatusMessage {
	m := newBaseMessage(taskID, taskName, TaskStateSuccess, opts...)
	m.StatusMessage = fmt.Sprintf("Task %s completed successfully", shortTaskName(taskName))
	m.Progress = &ProgressInfo{Current: 100, Total: 100, Percentage: 100.0, Message: "Completed"}
	m.CompletedAt = &m.UpdatedAt
	m.RuntimeSeconds = runtimeSeconds
	m.Result = result
	return m
}

// NewFailureStatus builds a FAILURE lifecycle event. Retryability is
// derived from retryCount < maxRetries.
func NewFailureStatus(taskID, taskName, errorType, errorMessage string, retryCount, maxRetries int, stackTrace string, runtimeSeconds *float64, opts ...StatusOption) *TaskStatusMessage {
	if len(stackTrace) > maxStackTraceLen {
		stackTrace = stackTrace[:maxStackTraceLen]
	}

	m := newBaseMessage(taskID, taskName, TaskStateFailure, opts...)
	m.StatusMessage = fmt.Sprintf("Task failed: %s", errorMessage)
	m.CompletedAt = &m.UpdatedAt
	m.RuntimeSeconds = runtimeSeconds
	m.Error = &ErrorInfo{
		ErrorType:    errorType,
		ErrorMessage: errorMessage,
		StackTrace:   stackTrace,
		RetryCount:   retryCount,
		MaxRetries:   maxRetries,
		IsRetryable:  retryCount < maxRetries,
		Timestamp:    m.UpdatedAt,
	}
	return m
}

// NewRetryStatus builds a RETRY lifecycle event. A retry always
// precedes another attempt, so it is retryable by construction.
func NewRetryStatus(taskID, taskName string, retryCount, maxRetries int, errorMessage string, countdownSeconds int, opts ...StatusOption) *TaskStatusMessage {
	m := newBaseMessage(taskID, taskName, TaskStateRetry, opts...)
	m.StatusMessage = fmt.Sprintf("Retrying (%d/%d) in %ds: %s", retryCount+1, maxRetries, countdownSeconds, errorMessage)
	m.Progress = &ProgressInfo{
		Current: 0,
		Total:   100,
		Message: fmt.Sprintf("Retry %d of %d", retryCount+1, maxRetries),
	}
	m.Progress.Recalc()
	remaining := float64(countdownSeconds)
	m.EstimatedRemainingSeconds = &remaining
	m.Error = &ErrorInfo{
		ErrorType:    "RetryError",
		ErrorMessage: errorMessage,
		RetryCount:   retryCount,
		MaxRetries:   maxRetries,
		IsRetryable:  true,
		Timestamp:    m.UpdatedAt,
	}
	m.Metadata["countdown_seconds"] = countdownSeconds
	return m
}
