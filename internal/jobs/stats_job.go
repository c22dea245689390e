package jobs

import (
	"context"
	"time"

	"taskstream/internal/ws"
	"taskstream/pkg/interfaces"
	"taskstream/pkg/logger"
)

// StatsJob periodically logs connection and queue statistics, a cheap
// liveness signal for deployments without a metrics scraper.
type StatsJob struct {
	registry *ws.Registry
	tasks    interfaces.TaskRegistry
	interval time.Duration
}

// NewStatsJob creates a stats job. tasks may be nil, queue stats are
// then omitted.
func NewStatsJob(registry *ws.Registry, tasks interfaces.TaskRegistry, interval time.Duration) *StatsJob {
	if interval <= 0 {
		interval = time.Minute
	}
	return &StatsJob{registry: registry, tasks: tasks, interval: interval}
}

func (j *StatsJob) Name() string { return "stats" }

func (j *StatsJob) Interval() time.Duration { return j.interval }

func (j *StatsJob) Run(ctx context.Context) error {
	stats := j.registry.GetStats()
	logger.InfoCtx(ctx, "websocket stats, connections: %d, sessions: %d, users: %d",
		stats.ActiveConnections, stats.ActiveSessions, stats.ConnectedUsers)

	if j.tasks == nil {
		return nil
	}
	queueStats, err := j.tasks.GetQueueStats(ctx)
	if err != nil {
		return err
	}
	logger.InfoCtx(ctx, "queue stats, queue: %s, pending: %d, active: %d, retry: %d, failed: %d",
		queueStats.Queue, queueStats.PendingCount, queueStats.ActiveCount,
		queueStats.RetryCount, queueStats.FailedCount)
	return nil
}
