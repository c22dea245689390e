package asynq

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"taskstream/internal/model"
	"taskstream/pkg/interfaces"
	"taskstream/pkg/logger"
	"taskstream/pkg/metrics"

	"github.com/hibiken/asynq"
)

// StatusNotifier is the slice of the status broadcaster the lifecycle
// hooks need. Satisfied by service.Broadcaster.
type StatusNotifier interface {
	BroadcastStarted(ctx context.Context, taskID, taskName string, opts ...model.StatusOption) error
	BroadcastSuccess(ctx context.Context, taskID, taskName string, result map[string]interface{}, runtimeSeconds *float64, opts ...model.StatusOption) error
	BroadcastFailure(ctx context.Context, taskID, taskName, errorType, errorMessage string, retryCount, maxRetries int, stackTrace string, runtimeSeconds *float64, opts ...model.StatusOption) error
	BroadcastRetry(ctx context.Context, taskID, taskName string, retryCount, maxRetries int, errorMessage string, countdownSeconds int, opts ...model.StatusOption) error
}

// DeadLetterAlerter notifies operators about a dead lettered task.
// Satisfied by notification.FeishuNotifier.
type DeadLetterAlerter interface {
	SendDeadLetterAlert(ctx context.Context, record *model.DeadLetterRecord) error
}

// LifecycleHooks broadcasts a status event at each point of a task's
// execution and escalates exhausted tasks to the dead letter queue.
// Installed as handler middleware, so every registered task type gets
// the same lifecycle telemetry.
type LifecycleHooks struct {
	notifier    StatusNotifier
	deadLetters interfaces.DeadLetterStore
	alerter     DeadLetterAlerter
	m           *metrics.Metrics
}

// NewLifecycleHooks creates the hook middleware. deadLetters may be
// nil, escalation is then log-only.
func NewLifecycleHooks(notifier StatusNotifier, deadLetters interfaces.DeadLetterStore, m *metrics.Metrics) *LifecycleHooks {
	return &LifecycleHooks{
		notifier:    notifier,
		deadLetters: deadLetters,
		m:           m,
	}
}

// WithAlerter attaches an operator alert channel for dead lettered
// tasks.
func (h *LifecycleHooks) WithAlerter(alerter DeadLetterAlerter) *LifecycleHooks {
	h.alerter = alerter
	return h
}

// Middleware returns the asynq middleware wrapping every handler with
// the pre-run, post-run and failure hooks.
func (h *LifecycleHooks) Middleware() asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			taskID, _ := asynq.GetTaskID(ctx)
			retryCount, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			opts := correlationOptions(task.Payload())

			h.preRun(ctx, taskID, task.Type(), opts)

			start := time.Now()
			err := next.ProcessTask(ctx, task)
			runtime := time.Since(start).Seconds()

			if err == nil {
				h.postRun(ctx, taskID, task.Type(), runtime, opts)
				return nil
			}

			h.failure(ctx, task, taskID, err, retryCount, maxRetry, runtime, opts)
			return err
		})
	}
}

// hookTimeout bounds each lifecycle broadcast so a slow bus cannot
// stall task processing.
const hookTimeout = 5 * time.Second

// hookContext detaches the broadcast from the task context. A task
// cancelled by its own deadline must still emit its failure event.
func hookContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), hookTimeout)
}

func (h *LifecycleHooks) preRun(_ context.Context, taskID, taskName string, opts []model.StatusOption) {
	ctx, cancel := hookContext()
	defer cancel()
	if err := h.notifier.BroadcastStarted(ctx, taskID, taskName, opts...); err != nil {
		logger.Warnf("started hook for task %s: %v", taskID, err)
	}
}

func (h *LifecycleHooks) postRun(_ context.Context, taskID, taskName string, runtime float64, opts []model.StatusOption) {
	ctx, cancel := hookContext()
	defer cancel()
	if err := h.notifier.BroadcastSuccess(ctx, taskID, taskName, nil, &runtime, opts...); err != nil {
		logger.Warnf("success hook for task %s: %v", taskID, err)
	}
}

// failure distinguishes "will be retried" from "retry budget
// exhausted". Exhausted tasks get a terminal failure event and a dead
// letter record, retryable ones a retry event with the countdown the
// server will actually apply.
func (h *LifecycleHooks) failure(_ context.Context, task *asynq.Task, taskID string, taskErr error, retryCount, maxRetry int, runtime float64, opts []model.StatusOption) {
	ctx, cancel := hookContext()
	defer cancel()
	exhausted := retryCount >= maxRetry || errors.Is(taskErr, asynq.SkipRetry)

	if !exhausted {
		countdown := retryCount + 1
		if err := h.notifier.BroadcastRetry(ctx, taskID, task.Type(), retryCount, maxRetry, taskErr.Error(), countdown, opts...); err != nil {
			logger.Warnf("retry hook for task %s: %v", taskID, err)
		}
		return
	}

	if err := h.notifier.BroadcastFailure(ctx, taskID, task.Type(), errorType(taskErr), taskErr.Error(), retryCount, maxRetry, "", &runtime, opts...); err != nil {
		logger.Warnf("failure hook for task %s: %v", taskID, err)
	}

	record := &model.DeadLetterRecord{
		TaskID:     taskID,
		TaskName:   task.Type(),
		Exception:  taskErr.Error(),
		Payload:    payloadMap(task.Payload()),
		Retries:    retryCount,
		MaxRetries: maxRetry,
		FailedAt:   time.Now().UTC(),
	}
	if h.deadLetters == nil {
		logger.Errorf("task %s exhausted retries (%d/%d), no dead letter store configured: %v", taskID, retryCount, maxRetry, taskErr)
		return
	}
	if err := h.deadLetters.PushDeadLetter(ctx, record); err != nil {
		logger.Errorf("dead letter task %s: %v", taskID, err)
		return
	}
	h.m.DeadLetters.Inc()
	logger.Infof("task %s routed to dead letter queue after %d/%d retries", taskID, retryCount, maxRetry)

	if h.alerter != nil {
		if err := h.alerter.SendDeadLetterAlert(ctx, record); err != nil {
			logger.Warnf("dead letter alert for task %s: %v", taskID, err)
		}
	}
}

// correlationOptions lifts well-known correlation ids out of a JSON
// task payload so status events can be routed to resource channels.
func correlationOptions(payload []byte) []model.StatusOption {
	fields := payloadMap(payload)
	if fields == nil {
		return nil
	}

	var opts []model.StatusOption
	if v, ok := fields["document_id"].(string); ok && v != "" {
		opts = append(opts, model.WithDocument(v))
	}
	if v, ok := fields["query_id"].(string); ok && v != "" {
		opts = append(opts, model.WithQuery(v))
	}
	if v, ok := fields["user_id"].(string); ok && v != "" {
		opts = append(opts, model.WithUser(v))
	}
	if v, ok := fields["session_id"].(string); ok && v != "" {
		opts = append(opts, model.WithSession(v))
	}
	if v, ok := fields["batch_id"].(string); ok && v != "" {
		opts = append(opts, model.WithBatch(v))
	}
	if v, ok := fields["source_id"].(string); ok && v != "" {
		opts = append(opts, model.WithSource(v))
	}
	if v, ok := fields["project_id"].(string); ok && v != "" {
		opts = append(opts, model.WithProject(v))
	}
	return opts
}

func payloadMap(payload []byte) map[string]interface{} {
	if len(payload) == 0 {
		return nil
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil
	}
	return fields
}

func errorType(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "TimeoutError"
	}
	if errors.Is(err, context.Canceled) {
		return "CancelledError"
	}
	return "TaskError"
}
