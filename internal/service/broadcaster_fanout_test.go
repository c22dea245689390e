package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"taskstream/internal/model"
	"taskstream/internal/ws"
	"taskstream/pkg/metrics"
	"taskstream/pkg/pubsub"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingConn struct {
	mu     sync.Mutex
	frames [][]byte
}

func (c *recordingConn) SendText(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, data)
	return nil
}

func (c *recordingConn) Close(code int, reason string) error { return nil }

func (c *recordingConn) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *recordingConn) lastFrame() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		return nil
	}
	return c.frames[len(c.frames)-1]
}

// fanoutInstance is one server process: its own Redis connection,
// pub/sub listener, registry and bridge, all sharing the same Redis.
type fanoutInstance struct {
	bus      *pubsub.RedisPubSub
	registry *ws.Registry
	bridge   *ws.Bridge
}

func newFanoutInstance(t *testing.T, addr string) *fanoutInstance {
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	bus := pubsub.NewRedisPubSub(client, nil)
	registry := ws.NewRegistry(metrics.New())
	bridge := ws.NewBridge(registry, bus)
	require.NoError(t, bridge.Register())
	require.NoError(t, bus.StartListener(context.Background()))
	t.Cleanup(bus.StopListener)

	return &fanoutInstance{bus: bus, registry: registry, bridge: bridge}
}

// A status event raised on one instance must reach WebSocket
// connections held by another instance of the same Redis deployment.
func TestBroadcastReachesConnectionsOnOtherInstance(t *testing.T) {
	mr := miniredis.RunT(t)

	instanceA := newFanoutInstance(t, mr.Addr())
	instanceB := newFanoutInstance(t, mr.Addr())

	conn := &recordingConn{}
	require.NoError(t, instanceB.registry.Connect(conn, "c1", ws.ConnectParams{
		UserID: "u1",
		Type:   "notifications",
	}))
	confirmed := conn.frameCount() // connection confirmation frame

	b := NewBroadcaster(instanceA.bus, instanceA.bridge, nil, nil, metrics.New())
	require.NoError(t, b.BroadcastStarted(context.Background(), "t1", "document_processing.process",
		model.WithUser("u1")))

	require.Eventually(t, func() bool {
		return conn.frameCount() > confirmed
	}, 2*time.Second, 10*time.Millisecond, "status event never crossed instances")

	var frame map[string]interface{}
	require.NoError(t, json.Unmarshal(conn.lastFrame(), &frame))
	assert.Equal(t, "task_status", frame["type"])
	assert.Equal(t, "user", frame["target_type"])
	assert.Equal(t, "t1", frame["task_id"])
	assert.Equal(t, "started", frame["status"])
}

// The publishing instance's own connections receive through the same
// bus path as remote ones.
func TestBroadcastReachesLocalConnectionsThroughBus(t *testing.T) {
	mr := miniredis.RunT(t)

	instance := newFanoutInstance(t, mr.Addr())

	conn := &recordingConn{}
	require.NoError(t, instance.registry.Connect(conn, "c1", ws.ConnectParams{
		DocumentID: "d1",
		Type:       "document",
	}))
	confirmed := conn.frameCount()

	b := NewBroadcaster(instance.bus, instance.bridge, nil, nil, metrics.New())
	require.NoError(t, b.BroadcastStarted(context.Background(), "t1", "document_processing.process",
		model.WithDocument("d1")))

	require.Eventually(t, func() bool {
		return conn.frameCount() > confirmed
	}, 2*time.Second, 10*time.Millisecond, "status event never delivered locally")

	var frame map[string]interface{}
	require.NoError(t, json.Unmarshal(conn.lastFrame(), &frame))
	assert.Equal(t, "d1", frame["document_id"])
}
