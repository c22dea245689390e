package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"taskstream/internal/model"
	"taskstream/pkg/constants"

	"github.com/go-redis/redis/v8"
)

// DeadLetterRepository manages the dead letter queue as a Redis list,
// oldest records first.
type DeadLetterRepository struct {
	redis *redis.Client
	cap   int
}

// NewDeadLetterRepository creates a dead letter repository. cap of
// zero keeps the queue unbounded.
func NewDeadLetterRepository(redisClient *RedisClient, cap int) *DeadLetterRepository {
	return &DeadLetterRepository{
		redis: redisClient.GetClient(),
		cap:   cap,
	}
}

// PushDeadLetter appends a record, trimming the oldest entries past
// the configured cap.
func (r *DeadLetterRepository) PushDeadLetter(ctx context.Context, record *model.DeadLetterRecord) error {
	data, err := record.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}

	pipe := r.redis.Pipeline()
	pipe.RPush(ctx, constants.KeyDeadLetterQueue, data)
	if r.cap > 0 {
		pipe.LTrim(ctx, constants.KeyDeadLetterQueue, int64(-r.cap), -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push dead letter: %w", err)
	}
	return nil
}

// ListDeadLetters returns up to limit records, oldest first.
func (r *DeadLetterRepository) ListDeadLetters(ctx context.Context, limit int) ([]*model.DeadLetterRecord, error) {
	end := int64(-1)
	if limit > 0 {
		end = int64(limit) - 1
	}
	items, err := r.redis.LRange(ctx, constants.KeyDeadLetterQueue, 0, end).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}

	records := make([]*model.DeadLetterRecord, 0, len(items))
	for _, item := range items {
		var record model.DeadLetterRecord
		if err := json.Unmarshal([]byte(item), &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal dead letter: %w", err)
		}
		records = append(records, &record)
	}
	return records, nil
}

// PopDeadLetter removes and returns the oldest record, nil when the
// queue is empty.
func (r *DeadLetterRepository) PopDeadLetter(ctx context.Context) (*model.DeadLetterRecord, error) {
	data, err := r.redis.LPop(ctx, constants.KeyDeadLetterQueue).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop dead letter: %w", err)
	}

	var record model.DeadLetterRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dead letter: %w", err)
	}
	return &record, nil
}
