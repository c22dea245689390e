package model

import (
	"encoding/json"
	"time"
)

// TaskStatusHistoryEntry single observation in a task's status history
type TaskStatusHistoryEntry struct {
	Status    TaskState              `json:"status"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	Progress  *ProgressInfo          `json:"progress,omitempty"`
	Error     *ErrorInfo             `json:"error,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// TaskStatusHistory ordered append-only status log for one task.
// Entries are never removed by this subsystem, retention is a
// persistence concern.
type TaskStatusHistory struct {
	TaskID        string                   `json:"task_id"`
	TaskName      string                   `json:"task_name"`
	TaskType      TaskType                 `json:"task_type"`
	CurrentStatus TaskState                `json:"current_status"`
	Entries       []TaskStatusHistoryEntry `json:"entries"`

	StartedAt           *time.Time `json:"started_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	TotalRuntimeSeconds *float64   `json:"total_runtime_seconds,omitempty"`

	FinalResult map[string]interface{} `json:"final_result,omitempty"`
	FinalError  *ErrorInfo             `json:"final_error,omitempty"`
}

// NewTaskStatusHistory creates an empty history for a task.
func NewTaskStatusHistory(taskID, taskName string, taskType TaskType) *TaskStatusHistory {
	return &TaskStatusHistory{
		TaskID:        taskID,
		TaskName:      taskName,
		TaskType:      taskType,
		CurrentStatus: TaskStatePending,
		Entries:       []TaskStatusHistoryEntry{},
	}
}

// AddEntry appends a status observation and updates the derived
// lifecycle timestamps. StartedAt is set by the first STARTED entry
// and CompletedAt by the first terminal entry; later entries leave
// them unchanged.
func (h *TaskStatusHistory) AddEntry(status TaskState, message string, progress *ProgressInfo, errInfo *ErrorInfo, metadata map[string]interface{}) {
	entry := TaskStatusHistoryEntry{
		Status:    status,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Progress:  progress,
		Error:     errInfo,
		Metadata:  metadata,
	}
	h.Entries = append(h.Entries, entry)
	h.CurrentStatus = status

	switch {
	case status == TaskStateStarted && h.StartedAt == nil:
		h.StartedAt = &entry.Timestamp
	case status.IsTerminal() && h.CompletedAt == nil:
		h.CompletedAt = &entry.Timestamp
		if h.StartedAt != nil {
			runtime := entry.Timestamp.Sub(*h.StartedAt).Seconds()
			h.TotalRuntimeSeconds = &runtime
		}
	}
}

// Apply records a full status message into the history, capturing the
// final result or error on terminal entries.
func (h *TaskStatusHistory) Apply(msg *TaskStatusMessage) {
	h.AddEntry(msg.Status, msg.StatusMessage, msg.Progress, msg.Error, msg.Metadata)
	if msg.Status.IsTerminal() {
		if msg.Result != nil {
			h.FinalResult = msg.Result
		}
		if msg.Error != nil {
			h.FinalError = msg.Error
		}
	}
}

// ToJSON converts the history to JSON bytes
func (h *TaskStatusHistory) ToJSON() ([]byte, error) {
	return json.Marshal(h)
}

// FromJSON converts JSON bytes to a history
func (h *TaskStatusHistory) FromJSON(data []byte) error {
	return json.Unmarshal(data, h)
}
