package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"taskstream/internal/model"
	"taskstream/pkg/constants"
	"taskstream/pkg/interfaces"
	"taskstream/pkg/logger"
	"taskstream/pkg/metrics"
	"taskstream/pkg/pubsub"
	"taskstream/pkg/status"
)

// FanoutPublisher pushes a routing envelope onto the shared broadcast
// channel every instance's bridge listens on. Satisfied by ws.Bridge.
type FanoutPublisher interface {
	Publish(ctx context.Context, message map[string]interface{}) error
}

// Broadcaster fans a task status message out to every resolved channel,
// routes it to WebSocket subscribers through the fan-out bridge and
// persists a durable snapshot. Publish and persistence failures are
// logged and counted, never returned: background jobs must not crash
// because telemetry failed.
type Broadcaster struct {
	bus       interfaces.PubSub
	fan       FanoutPublisher
	statuses  interfaces.StatusStore
	history   interfaces.HistoryStore
	sanitizer *status.Sanitizer
	m         *metrics.Metrics
}

// NewBroadcaster creates a status broadcaster. fan, statuses and
// history may each be nil, the corresponding stage is then skipped.
func NewBroadcaster(bus interfaces.PubSub, fan FanoutPublisher, statuses interfaces.StatusStore, history interfaces.HistoryStore, m *metrics.Metrics) *Broadcaster {
	return &Broadcaster{
		bus:       bus,
		fan:       fan,
		statuses:  statuses,
		history:   history,
		sanitizer: status.NewSanitizer(),
		m:         m,
	}
}

// Broadcast publishes a status message to all of its channels and
// persists the snapshot. Only validation errors are returned.
func (b *Broadcaster) Broadcast(ctx context.Context, msg *model.TaskStatusMessage) error {
	return b.broadcast(ctx, msg, true)
}

// BroadcastEphemeral publishes without persisting, for high-frequency
// intermediate updates that have no value after the fact.
func (b *Broadcaster) BroadcastEphemeral(ctx context.Context, msg *model.TaskStatusMessage) error {
	return b.broadcast(ctx, msg, false)
}

func (b *Broadcaster) broadcast(ctx context.Context, msg *model.TaskStatusMessage, persist bool) error {
	start := time.Now()
	defer func() {
		b.m.BroadcastDuration.WithLabelValues("broadcast").Observe(time.Since(start).Seconds())
	}()

	msg.Normalize()
	if err := msg.Validate(); err != nil {
		logger.Errorf("invalid status message for task %s: %v", msg.TaskID, err)
		b.m.StatusBroadcastErrors.WithLabelValues("validate", "none").Inc()
		return err
	}

	// Clients get the sanitized rendition, persistence keeps the full
	// diagnostics.
	outbound := b.sanitizer.Sanitize(msg)
	payload, err := outbound.ToJSON()
	if err != nil {
		logger.Errorf("serialize status message for task %s: %v", msg.TaskID, err)
		b.m.StatusBroadcastErrors.WithLabelValues("serialize", "none").Inc()
		return err
	}

	if b.busReachable(ctx, msg) {
		b.publishAll(ctx, msg, payload)
		b.fanout(ctx, msg, payload)
	}

	if persist {
		b.persist(ctx, msg)
	}
	return nil
}

// busReachable probes the bus before publishing. The second ping
// doubles as the reconnect attempt, the client redials on demand. On
// failure the broadcast degrades to persist-only.
func (b *Broadcaster) busReachable(ctx context.Context, msg *model.TaskStatusMessage) bool {
	if b.bus.Connected(ctx) || b.bus.Connected(ctx) {
		return true
	}
	logger.Warnf("pub/sub bus unreachable, task %s status %s degraded to persist-only", msg.TaskID, msg.Status)
	b.m.StatusBroadcastErrors.WithLabelValues("publish", "disconnected").Inc()
	return false
}

// publishAll publishes the payload to every resolved channel
// concurrently. A slow or failing channel does not delay the others.
func (b *Broadcaster) publishAll(ctx context.Context, msg *model.TaskStatusMessage, payload []byte) {
	start := time.Now()
	defer func() {
		b.m.BroadcastDuration.WithLabelValues("publish").Observe(time.Since(start).Seconds())
	}()

	channels := model.ResolveChannels(msg)
	var wg sync.WaitGroup
	for _, channel := range channels {
		wg.Add(1)
		go func(channel string) {
			defer wg.Done()
			channelType := pubsub.ChannelType(channel)
			if err := b.bus.Publish(ctx, channel, payload); err != nil {
				logger.Errorf("publish task %s status %s to %s: %v", msg.TaskID, msg.Status, channel, err)
				b.m.StatusBroadcastErrors.WithLabelValues("publish", channelType).Inc()
				return
			}
			b.m.StatusBroadcasts.WithLabelValues(string(msg.Status), channelType, string(msg.TaskType)).Inc()
		}(channel)
	}
	wg.Wait()
}

// fanout routes the payload to WebSocket subscribers on every
// instance: one envelope per present correlation id, tagged with the
// target_type the receiving bridge dispatches on. The local instance
// receives its own envelopes through the same listener, so local and
// remote connections share one delivery path.
func (b *Broadcaster) fanout(ctx context.Context, msg *model.TaskStatusMessage, payload []byte) {
	if b.fan == nil {
		return
	}

	targets := make([]string, 0, 4)
	if msg.DocumentID != "" {
		targets = append(targets, constants.TargetDocument)
	}
	if msg.QueryID != "" {
		targets = append(targets, constants.TargetQuery)
	}
	if msg.UserID != "" {
		targets = append(targets, constants.TargetUser)
	}
	if msg.SessionID != "" {
		targets = append(targets, constants.TargetSession)
	}
	if len(targets) == 0 {
		return
	}

	var envelope map[string]interface{}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		logger.Errorf("build fan-out envelope for task %s: %v", msg.TaskID, err)
		b.m.StatusBroadcastErrors.WithLabelValues("fanout", "envelope").Inc()
		return
	}
	envelope["type"] = constants.MessageTypeTaskStatus

	for _, target := range targets {
		envelope["target_type"] = target
		if err := b.fan.Publish(ctx, envelope); err != nil {
			logger.Errorf("fan out task %s status %s to %s subscribers: %v", msg.TaskID, msg.Status, target, err)
			b.m.StatusBroadcastErrors.WithLabelValues("fanout", target).Inc()
		}
	}
}

func (b *Broadcaster) persist(ctx context.Context, msg *model.TaskStatusMessage) {
	start := time.Now()
	defer func() {
		b.m.BroadcastDuration.WithLabelValues("persist").Observe(time.Since(start).Seconds())
	}()

	if b.statuses != nil {
		if err := b.statuses.UpsertTaskStatus(ctx, msg); err != nil {
			logger.Errorf("persist task %s status snapshot: %v", msg.TaskID, err)
			b.m.StatusBroadcastErrors.WithLabelValues("persist", "status").Inc()
		}
		if msg.DocumentID != "" && msg.TaskType == model.TaskTypeDocumentProcessing {
			if err := b.statuses.UpdateDocumentStatus(ctx, msg.DocumentID, msg.Status); err != nil {
				logger.Errorf("update document %s processing status: %v", msg.DocumentID, err)
				b.m.StatusBroadcastErrors.WithLabelValues("persist", "document").Inc()
			}
		}
	}
	if b.history != nil {
		if err := b.history.AppendHistory(ctx, msg); err != nil {
			logger.Errorf("append task %s status history: %v", msg.TaskID, err)
			b.m.StatusBroadcastErrors.WithLabelValues("persist", "history").Inc()
		}
	}
}

// BroadcastStarted announces that a task began executing.
func (b *Broadcaster) BroadcastStarted(ctx context.Context, taskID, taskName string, opts ...model.StatusOption) error {
	return b.Broadcast(ctx, model.NewStartedStatus(taskID, taskName, opts...))
}

// BroadcastProgress announces partial completion of a running task.
func (b *Broadcaster) BroadcastProgress(ctx context.Context, taskID, taskName string, current, total int, message string, stage model.ProcessingStage, opts ...model.StatusOption) error {
	msg, err := model.NewProgressStatus(taskID, taskName, current, total, message, stage, opts...)
	if err != nil {
		return err
	}
	return b.Broadcast(ctx, msg)
}

// BroadcastSuccess announces successful completion with an optional
// result payload.
func (b *Broadcaster) BroadcastSuccess(ctx context.Context, taskID, taskName string, result map[string]interface{}, runtimeSeconds *float64, opts ...model.StatusOption) error {
	return b.Broadcast(ctx, model.NewSuccessStatus(taskID, taskName, result, runtimeSeconds, opts...))
}

// BroadcastFailure announces a failed execution attempt.
func (b *Broadcaster) BroadcastFailure(ctx context.Context, taskID, taskName, errorType, errorMessage string, retryCount, maxRetries int, stackTrace string, runtimeSeconds *float64, opts ...model.StatusOption) error {
	return b.Broadcast(ctx, model.NewFailureStatus(taskID, taskName, errorType, errorMessage, retryCount, maxRetries, stackTrace, runtimeSeconds, opts...))
}

// BroadcastRetry announces that the runner will re-execute the task
// after countdownSeconds.
func (b *Broadcaster) BroadcastRetry(ctx context.Context, taskID, taskName string, retryCount, maxRetries int, errorMessage string, countdownSeconds int, opts ...model.StatusOption) error {
	return b.Broadcast(ctx, model.NewRetryStatus(taskID, taskName, retryCount, maxRetries, errorMessage, countdownSeconds, opts...))
}
