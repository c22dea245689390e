package model

import (
	"encoding/json"
	"time"
)

// DeadLetterRecord durable record of a task that exhausted its retry
// budget, preserved for manual or automated reprocessing.
type DeadLetterRecord struct {
	TaskID     string                 `json:"task_id"`
	TaskName   string                 `json:"task_name"`
	Exception  string                 `json:"exception"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	Retries    int                    `json:"retries"`
	MaxRetries int                    `json:"max_retries"`
	FailedAt   time.Time              `json:"failed_at"`
}

// ToJSON converts the record to JSON bytes
func (r *DeadLetterRecord) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON converts JSON bytes to a record
func (r *DeadLetterRecord) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}
