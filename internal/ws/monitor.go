package ws

import (
	"context"
	"sync"
	"time"

	"taskstream/pkg/logger"
)

// Monitor watches one connection for heartbeat timeouts and imminent
// credential expiry. It checks at half the heartbeat interval, fires
// onTimeout once and stops, and fires onTokenRefreshNeeded repeatedly
// until the client refreshes.
type Monitor struct {
	authCtx *AuthContext

	heartbeatInterval time.Duration
	connectionTimeout time.Duration
	refreshThreshold  time.Duration

	onTimeout            func()
	onTokenRefreshNeeded func()

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a monitor for one connection's auth context.
// Either callback may be nil.
func NewMonitor(authCtx *AuthContext, heartbeatInterval, connectionTimeout, refreshThreshold time.Duration, onTimeout, onTokenRefreshNeeded func()) *Monitor {
	return &Monitor{
		authCtx:              authCtx,
		heartbeatInterval:    heartbeatInterval,
		connectionTimeout:    connectionTimeout,
		refreshThreshold:     refreshThreshold,
		onTimeout:            onTimeout,
		onTokenRefreshNeeded: onTokenRefreshNeeded,
	}
}

// Start launches the background check loop.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.loop(loopCtx)
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	interval := m.heartbeatInterval / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if elapsed := time.Since(m.authCtx.LastHeartbeat()); elapsed > m.connectionTimeout {
				logger.Infof("websocket heartbeat timeout after %s, user=%s", elapsed.Round(time.Second), m.authCtx.UserID())
				if m.onTimeout != nil {
					m.onTimeout()
				}
				return
			}

			if remaining, ok := m.authCtx.TimeToExpiry(); ok && remaining > 0 && remaining < m.refreshThreshold {
				logger.Debugf("websocket token refresh needed, user=%s remaining=%s", m.authCtx.UserID(), remaining.Round(time.Second))
				if m.onTokenRefreshNeeded != nil {
					m.onTokenRefreshNeeded()
				}
			}
		}
	}
}

// Stop cancels the check loop and waits for it to exit. Safe to call
// multiple times and before Start.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}
