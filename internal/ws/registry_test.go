package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	sent   [][]byte
	fail   bool
	closed bool
}

func (c *fakeConn) SendText(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("socket closed")
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.sent = append(c.sent, buf)
	return nil
}

func (c *fakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *fakeConn) lastSent() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return nil
	}
	return c.sent[len(c.sent)-1]
}

func TestConnectSendsConfirmation(t *testing.T) {
	r := NewRegistry(nil)
	sock := &fakeConn{}

	require.NoError(t, r.Connect(sock, "c1", ConnectParams{UserID: "u1", Type: "notifications"}))
	require.Equal(t, 1, sock.sentCount())

	var frame map[string]interface{}
	require.NoError(t, json.Unmarshal(sock.lastSent(), &frame))
	assert.Equal(t, "connection", frame["type"])
	assert.Equal(t, "connected", frame["status"])
	assert.Equal(t, "c1", frame["connection_id"])
}

func TestConnectDuplicateIDRejected(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Connect(&fakeConn{}, "c1", ConnectParams{}))
	assert.Error(t, r.Connect(&fakeConn{}, "c1", ConnectParams{}))
	assert.Equal(t, 1, r.Count())
}

func TestConnectFailedConfirmationRollsBack(t *testing.T) {
	r := NewRegistry(nil)
	sock := &fakeConn{fail: true}

	assert.Error(t, r.Connect(sock, "c1", ConnectParams{UserID: "u1", DocumentID: "d1"}))
	assert.Equal(t, 0, r.Count())
	assert.True(t, r.indexesConsistent())
}

func TestDisconnectRemovesAllIndexes(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Connect(&fakeConn{}, "c1", ConnectParams{
		SessionID: "s1", UserID: "u1", DocumentID: "d1",
		QueryID: "q1", SourceID: "src1", ProjectID: "p1",
	}))

	r.Disconnect("c1")
	assert.Equal(t, 0, r.Count())
	assert.True(t, r.indexesConsistent())

	// Idempotent, and unknown ids are a no-op.
	r.Disconnect("c1")
	r.Disconnect("never-existed")
	assert.Equal(t, 0, r.Count())
}

func TestSendFailureTriggersFullCleanup(t *testing.T) {
	r := NewRegistry(nil)
	sock := &fakeConn{}
	require.NoError(t, r.Connect(sock, "c1", ConnectParams{UserID: "u1", DocumentID: "d1", SessionID: "s1"}))

	sock.mu.Lock()
	sock.fail = true
	sock.mu.Unlock()

	err := r.SendPersonal([]byte("hello"), "c1")
	assert.Error(t, err)
	assert.Equal(t, 0, r.Count())
	assert.True(t, r.indexesConsistent())

	// Targeted sends to the cleaned-up ids must now be quiet no-ops.
	r.SendToUser([]byte("x"), "u1")
	r.SendToDocument([]byte("x"), "d1")
}

func TestSendToUnknownConnectionIsNoOp(t *testing.T) {
	r := NewRegistry(nil)
	assert.NoError(t, r.SendPersonal([]byte("x"), "missing"))
}

func TestTargetedFanOut(t *testing.T) {
	r := NewRegistry(nil)
	docWatcher := &fakeConn{}
	userConn1 := &fakeConn{}
	userConn2 := &fakeConn{}

	require.NoError(t, r.Connect(docWatcher, "c1", ConnectParams{DocumentID: "d1"}))
	require.NoError(t, r.Connect(userConn1, "c2", ConnectParams{UserID: "u1"}))
	require.NoError(t, r.Connect(userConn2, "c3", ConnectParams{UserID: "u1"}))

	r.SendToDocument([]byte("doc-update"), "d1")
	assert.Equal(t, 2, docWatcher.sentCount()) // confirmation + update
	assert.Equal(t, 1, userConn1.sentCount())

	r.SendToUser([]byte("user-update"), "u1")
	assert.Equal(t, 2, userConn1.sentCount())
	assert.Equal(t, 2, userConn2.sentCount())
	assert.Equal(t, 2, docWatcher.sentCount())
}

func TestBroadcastWithExclude(t *testing.T) {
	r := NewRegistry(nil)
	a, b, c := &fakeConn{}, &fakeConn{}, &fakeConn{}
	require.NoError(t, r.Connect(a, "c1", ConnectParams{}))
	require.NoError(t, r.Connect(b, "c2", ConnectParams{}))
	require.NoError(t, r.Connect(c, "c3", ConnectParams{}))

	r.Broadcast([]byte("all"), map[string]struct{}{"c2": {}})
	assert.Equal(t, 2, a.sentCount())
	assert.Equal(t, 1, b.sentCount()) // confirmation only
	assert.Equal(t, 2, c.sentCount())
}

func TestBroadcastCleansUpDeadConnections(t *testing.T) {
	r := NewRegistry(nil)
	alive := &fakeConn{}
	dead := &fakeConn{}
	require.NoError(t, r.Connect(alive, "c1", ConnectParams{}))
	require.NoError(t, r.Connect(dead, "c2", ConnectParams{UserID: "u1"}))

	dead.mu.Lock()
	dead.fail = true
	dead.mu.Unlock()

	r.Broadcast([]byte("all"), nil)
	assert.Equal(t, 1, r.Count())
	assert.True(t, r.indexesConsistent())
}

func TestRegistryIndexConsistencyUnderConcurrency(t *testing.T) {
	r := NewRegistry(nil)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i)
			_ = r.Connect(&fakeConn{}, id, ConnectParams{
				UserID:     fmt.Sprintf("u%d", i%5),
				DocumentID: fmt.Sprintf("d%d", i%7),
				SessionID:  fmt.Sprintf("s%d", i%3),
			})
			if i%2 == 0 {
				r.Disconnect(id)
			}
		}(i)
	}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.SendToUser([]byte("ping"), fmt.Sprintf("u%d", i%5))
			r.Broadcast([]byte("b"), nil)
		}(i)
	}
	wg.Wait()

	assert.True(t, r.indexesConsistent())
	assert.Equal(t, 25, r.Count())
}

func TestGetStats(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Connect(&fakeConn{}, "c1", ConnectParams{SessionID: "s1", UserID: "u1"}))
	require.NoError(t, r.Connect(&fakeConn{}, "c2", ConnectParams{SessionID: "s1", UserID: "u2"}))

	stats := r.GetStats()
	assert.Equal(t, 2, stats.ActiveConnections)
	assert.Equal(t, 1, stats.ActiveSessions)
	assert.Equal(t, 2, stats.ConnectedUsers)
	assert.False(t, stats.Timestamp.IsZero())
}
