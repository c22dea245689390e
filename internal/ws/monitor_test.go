package ws

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMonitorFiresTimeoutAndExits(t *testing.T) {
	authCtx := NewAnonymousContext()
	authCtx.mu.Lock()
	authCtx.lastHeartbeat = time.Now().Add(-time.Hour)
	authCtx.mu.Unlock()

	var timedOut int32
	m := NewMonitor(authCtx, 20*time.Millisecond, time.Second, 5*time.Minute,
		func() { atomic.AddInt32(&timedOut, 1) }, nil)

	m.Start(context.Background())
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&timedOut) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// The loop exits after timeout, Stop returns immediately.
	m.Stop()
	assert.Equal(t, int32(1), atomic.LoadInt32(&timedOut))
}

func TestMonitorHealthyHeartbeatDoesNotTimeout(t *testing.T) {
	authCtx := NewAnonymousContext()

	var timedOut int32
	m := NewMonitor(authCtx, 10*time.Millisecond, time.Hour, 5*time.Minute,
		func() { atomic.AddInt32(&timedOut, 1) }, nil)

	m.Start(context.Background())
	time.Sleep(60 * time.Millisecond)
	m.Stop()

	assert.Equal(t, int32(0), atomic.LoadInt32(&timedOut))
}

func TestMonitorRequestsTokenRefreshRepeatedly(t *testing.T) {
	authCtx := NewAnonymousContext()
	// Credential expiring inside the refresh threshold.
	authCtx.swapToken("tok", "u1", time.Now().Add(time.Minute))

	var refreshes int32
	m := NewMonitor(authCtx, 20*time.Millisecond, time.Hour, 5*time.Minute,
		nil, func() { atomic.AddInt32(&refreshes, 1) })

	m.Start(context.Background())
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&refreshes) >= 2
	}, 2*time.Second, 5*time.Millisecond)
	m.Stop()
}

func TestMonitorNoRefreshForAnonymous(t *testing.T) {
	authCtx := NewAnonymousContext()

	var refreshes int32
	m := NewMonitor(authCtx, 10*time.Millisecond, time.Hour, 5*time.Minute,
		nil, func() { atomic.AddInt32(&refreshes, 1) })

	m.Start(context.Background())
	time.Sleep(60 * time.Millisecond)
	m.Stop()

	assert.Equal(t, int32(0), atomic.LoadInt32(&refreshes))
}

func TestMonitorStopIsSafe(t *testing.T) {
	m := NewMonitor(NewAnonymousContext(), 10*time.Millisecond, time.Hour, time.Minute, nil, nil)

	// Stop before Start is a no-op.
	m.Stop()

	m.Start(context.Background())
	m.Stop()
	m.Stop()
}
