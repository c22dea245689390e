package handler

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"taskstream/internal/ws"
	"taskstream/pkg/config"
	"taskstream/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *ws.Registry) {
	config.GlobalConfig = &config.Config{
		WebSocket: config.WebSocketConfig{
			HeartbeatInterval: 30,
			ConnectionTimeout: 90,
			WriteTimeout:      5,
		},
		Auth: config.AuthConfig{
			TokenRefreshThreshold: 300,
		},
	}

	gin.SetMode(gin.TestMode)
	registry := ws.NewRegistry(metrics.New())
	auth := ws.NewAuthenticator("test-secret", nil, false)
	h := NewWebSocketHandler(registry, auth)

	r := gin.New()
	r.GET("/ws/notifications", h.Notifications)
	r.GET("/ws/document/:document_id", h.Document)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, registry
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame
}

func TestNotificationsConnectAndHeartbeat(t *testing.T) {
	srv, registry := newTestServer(t)

	conn := dial(t, srv, "/ws/notifications?session_id=s1")

	frame := readFrame(t, conn)
	assert.Equal(t, "connection", frame["type"])

	require.Eventually(t, func() bool {
		return registry.GetStats().ActiveConnections == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"ping"}`)))
	frame = readFrame(t, conn)
	assert.Equal(t, "pong", frame["event"])
}

func TestDocumentEndpointConfirmsSubscription(t *testing.T) {
	srv, _ := newTestServer(t)

	conn := dial(t, srv, "/ws/document/d1")

	frame := readFrame(t, conn) // connection
	assert.Equal(t, "connection", frame["type"])

	frame = readFrame(t, conn)
	assert.Equal(t, "subscription_confirmed", frame["type"])
	assert.Equal(t, "document", frame["resource_type"])
	assert.Equal(t, "d1", frame["resource_id"])
}

func TestUnknownActionGetsErrorReply(t *testing.T) {
	srv, _ := newTestServer(t)

	conn := dial(t, srv, "/ws/notifications")
	readFrame(t, conn) // connection

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"subscribe"}`)))
	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, "unknown action", frame["message"])
}

func TestDisconnectDeregisters(t *testing.T) {
	srv, registry := newTestServer(t)

	conn := dial(t, srv, "/ws/notifications")
	readFrame(t, conn) // connection
	require.Eventually(t, func() bool {
		return registry.GetStats().ActiveConnections == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return registry.GetStats().ActiveConnections == 0
	}, time.Second, 10*time.Millisecond)
}
