package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"taskstream/internal/model"
	"taskstream/pkg/constants"

	"github.com/go-redis/redis/v8"
)

// StatusRepository manages per-task status history in Redis. The
// history document is read-modified-written as a whole, task status
// events are produced by a single writer per task id.
type StatusRepository struct {
	redis        *redis.Client
	historyLimit int
	historyTTL   time.Duration
}

// NewStatusRepository creates a status history repository.
// historyLimit caps entries per task, historyTTL of zero disables
// expiry.
func NewStatusRepository(redisClient *RedisClient, historyLimit int, historyTTL time.Duration) *StatusRepository {
	if historyLimit <= 0 {
		historyLimit = 100
	}
	return &StatusRepository{
		redis:        redisClient.GetClient(),
		historyLimit: historyLimit,
		historyTTL:   historyTTL,
	}
}

func historyKey(taskID string) string {
	return constants.KeyTaskHistoryPrefix + taskID
}

// AppendHistory records one status observation, creating the history
// document on first write.
func (r *StatusRepository) AppendHistory(ctx context.Context, msg *model.TaskStatusMessage) error {
	history, err := r.GetHistory(ctx, msg.TaskID)
	if err != nil {
		return err
	}
	if history == nil {
		history = model.NewTaskStatusHistory(msg.TaskID, msg.TaskName, msg.TaskType)
	}

	history.Apply(msg)
	if len(history.Entries) > r.historyLimit {
		history.Entries = history.Entries[len(history.Entries)-r.historyLimit:]
	}

	data, err := history.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := r.redis.Set(ctx, historyKey(msg.TaskID), data, r.historyTTL).Err(); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}

// GetHistory loads the recorded history for a task, nil when the task
// has none.
func (r *StatusRepository) GetHistory(ctx context.Context, taskID string) (*model.TaskStatusHistory, error) {
	data, err := r.redis.Get(ctx, historyKey(taskID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}

	var history model.TaskStatusHistory
	if err := json.Unmarshal([]byte(data), &history); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}
	return &history, nil
}
