package ws

import (
	"context"
	"encoding/json"
	"testing"

	"taskstream/pkg/constants"
	"taskstream/pkg/interfaces"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePubSub records publishes and lets tests feed received messages
// straight into the registered handler.
type fakePubSub struct {
	published map[string][][]byte
	handlers  map[string]interfaces.MessageHandler
}

func newFakePubSub() *fakePubSub {
	return &fakePubSub{
		published: make(map[string][][]byte),
		handlers:  make(map[string]interfaces.MessageHandler),
	}
}

func (f *fakePubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	f.published[channel] = append(f.published[channel], payload)
	return nil
}

func (f *fakePubSub) Subscribe(channel string, handler interfaces.MessageHandler) error {
	f.handlers[channel] = handler
	return nil
}

func (f *fakePubSub) StartListener(ctx context.Context) error { return nil }
func (f *fakePubSub) StopListener()                           {}
func (f *fakePubSub) Connected(ctx context.Context) bool      { return true }
func (f *fakePubSub) Close() error                            { return nil }

func envelope(t *testing.T, fields map[string]interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(fields)
	require.NoError(t, err)
	return data
}

func TestBridgeRoutesByTargetType(t *testing.T) {
	registry := NewRegistry(nil)
	docConn := &fakeConn{}
	queryConn := &fakeConn{}
	userConn := &fakeConn{}
	sessionConn := &fakeConn{}
	sourceConn := &fakeConn{}
	projectConn := &fakeConn{}

	require.NoError(t, registry.Connect(docConn, "c1", ConnectParams{DocumentID: "d1"}))
	require.NoError(t, registry.Connect(queryConn, "c2", ConnectParams{QueryID: "q1"}))
	require.NoError(t, registry.Connect(userConn, "c3", ConnectParams{UserID: "u1"}))
	require.NoError(t, registry.Connect(sessionConn, "c4", ConnectParams{SessionID: "s1"}))
	require.NoError(t, registry.Connect(sourceConn, "c5", ConnectParams{SourceID: "src1"}))
	require.NoError(t, registry.Connect(projectConn, "c6", ConnectParams{ProjectID: "p1"}))

	bridge := NewBridge(registry, newFakePubSub())
	ctx := context.Background()

	tests := []struct {
		name   string
		fields map[string]interface{}
		conn   *fakeConn
	}{
		{"document", map[string]interface{}{"target_type": "document", "document_id": "d1"}, docConn},
		{"query", map[string]interface{}{"target_type": "query", "query_id": "q1"}, queryConn},
		{"user", map[string]interface{}{"target_type": "user", "user_id": "u1"}, userConn},
		{"session", map[string]interface{}{"target_type": "session", "session_id": "s1"}, sessionConn},
		{"source", map[string]interface{}{"target_type": "source", "source_id": "src1"}, sourceConn},
		{"project_sources", map[string]interface{}{"target_type": "project_sources", "project_id": "p1"}, projectConn},
	}

	all := []*fakeConn{docConn, queryConn, userConn, sessionConn, sourceConn, projectConn}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := make([]int, len(all))
			for i, c := range all {
				before[i] = c.sentCount()
			}
			require.NoError(t, bridge.HandleBroadcast(ctx, constants.ChannelBroadcast, envelope(t, tt.fields)))
			for i, c := range all {
				want := before[i]
				if c == tt.conn {
					want++
				}
				assert.Equal(t, want, c.sentCount())
			}
		})
	}
}

func TestBridgeUnsetTargetBroadcasts(t *testing.T) {
	registry := NewRegistry(nil)
	a, b := &fakeConn{}, &fakeConn{}
	require.NoError(t, registry.Connect(a, "c1", ConnectParams{}))
	require.NoError(t, registry.Connect(b, "c2", ConnectParams{}))

	bridge := NewBridge(registry, newFakePubSub())
	require.NoError(t, bridge.HandleBroadcast(context.Background(), constants.ChannelBroadcast,
		envelope(t, map[string]interface{}{"type": "announcement"})))

	assert.Equal(t, 2, a.sentCount())
	assert.Equal(t, 2, b.sentCount())
}

func TestBridgeMalformedEnvelope(t *testing.T) {
	bridge := NewBridge(NewRegistry(nil), newFakePubSub())
	err := bridge.HandleBroadcast(context.Background(), constants.ChannelBroadcast, []byte("{broken"))
	assert.Error(t, err)
}

func TestBridgePublishGoesThroughBus(t *testing.T) {
	ps := newFakePubSub()
	bridge := NewBridge(NewRegistry(nil), ps)
	require.NoError(t, bridge.Register())

	require.NoError(t, bridge.Publish(context.Background(), map[string]interface{}{
		"target_type": "user",
		"user_id":     "u1",
	}))

	require.Len(t, ps.published[constants.ChannelBroadcast], 1)
	// Local delivery is not special-cased, nothing was sent directly.
	assert.NotNil(t, ps.handlers[constants.ChannelBroadcast])
}
