package pubsub

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"taskstream/pkg/interfaces"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ interfaces.PubSub = (*RedisPubSub)(nil)

func newTestPubSub(t *testing.T) (*RedisPubSub, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisPubSub(client, nil), client
}

func TestChannelType(t *testing.T) {
	assert.Equal(t, "task", ChannelType("task:abc"))
	assert.Equal(t, "tasks", ChannelType("tasks:all"))
	assert.Equal(t, "plain", ChannelType("plain"))
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	ps, _ := newTestPubSub(t)

	received := make(chan []byte, 1)
	require.NoError(t, ps.Subscribe("task:t1", func(ctx context.Context, channel string, payload []byte) error {
		received <- payload
		return nil
	}))

	ctx := context.Background()
	require.NoError(t, ps.StartListener(ctx))
	defer ps.StopListener()

	require.NoError(t, ps.Publish(ctx, "task:t1", []byte(`{"status":"started"}`)))

	select {
	case payload := <-received:
		assert.JSONEq(t, `{"status":"started"}`, string(payload))
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestSamePublisherSharesDeliveryPath(t *testing.T) {
	// A message published by the process holding the subscription must
	// arrive through the same receive path as a remote one.
	ps, client := newTestPubSub(t)

	var count int32
	require.NoError(t, ps.Subscribe("tasks:all", func(ctx context.Context, channel string, payload []byte) error {
		atomic.AddInt32(&count, 1)
		return nil
	}))

	ctx := context.Background()
	require.NoError(t, ps.StartListener(ctx))
	defer ps.StopListener()

	require.NoError(t, ps.Publish(ctx, "tasks:all", []byte("local")))
	require.NoError(t, client.Publish(ctx, "tasks:all", "remote").Err())

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&count) == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandlerErrorDoesNotKillListener(t *testing.T) {
	ps, _ := newTestPubSub(t)

	var delivered int32
	require.NoError(t, ps.Subscribe("task:t1", func(ctx context.Context, channel string, payload []byte) error {
		if atomic.AddInt32(&delivered, 1) == 1 {
			return errors.New("handler blew up")
		}
		return nil
	}))

	ctx := context.Background()
	require.NoError(t, ps.StartListener(ctx))
	defer ps.StopListener()

	require.NoError(t, ps.Publish(ctx, "task:t1", []byte("first")))
	require.NoError(t, ps.Publish(ctx, "task:t1", []byte("second")))

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&delivered) == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubscribeAfterListenerStarted(t *testing.T) {
	ps, _ := newTestPubSub(t)

	require.NoError(t, ps.Subscribe("task:t1", func(ctx context.Context, channel string, payload []byte) error {
		return nil
	}))

	ctx := context.Background()
	require.NoError(t, ps.StartListener(ctx))
	defer ps.StopListener()

	late := make(chan struct{}, 1)
	require.NoError(t, ps.Subscribe("task:t2", func(ctx context.Context, channel string, payload []byte) error {
		late <- struct{}{}
		return nil
	}))

	require.NoError(t, ps.Publish(ctx, "task:t2", []byte("late")))

	select {
	case <-late:
	case <-time.After(2 * time.Second):
		t.Fatal("late subscription did not receive message")
	}
}

func TestDuplicateSubscribeRejected(t *testing.T) {
	ps, _ := newTestPubSub(t)

	handler := func(ctx context.Context, channel string, payload []byte) error { return nil }
	require.NoError(t, ps.Subscribe("task:t1", handler))
	assert.Error(t, ps.Subscribe("task:t1", handler))
}

func TestStopListenerIsIdempotent(t *testing.T) {
	ps, _ := newTestPubSub(t)

	require.NoError(t, ps.Subscribe("task:t1", func(ctx context.Context, channel string, payload []byte) error {
		return nil
	}))
	require.NoError(t, ps.StartListener(context.Background()))

	ps.StopListener()
	ps.StopListener()
}

func TestConnected(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ps := NewRedisPubSub(client, nil)
	assert.True(t, ps.Connected(context.Background()))

	mr.Close()
	assert.False(t, ps.Connected(context.Background()))
}
