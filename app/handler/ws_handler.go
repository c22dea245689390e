package handler

import (
	"errors"
	"net/http"
	"time"

	"taskstream/internal/ws"
	"taskstream/pkg/config"
	"taskstream/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WebSocketHandler upgrades HTTP requests to WebSocket connections,
// authenticates them and pumps client messages until disconnect.
type WebSocketHandler struct {
	registry *ws.Registry
	auth     *ws.Authenticator
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates websocket handler
func NewWebSocketHandler(registry *ws.Registry, auth *ws.Authenticator) *WebSocketHandler {
	return &WebSocketHandler{
		registry: registry,
		auth:     auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browsers connect from arbitrary frontend origins, access
			// control happens at token level.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Notifications handles the general notification stream
// @Summary General notification WebSocket
// @Description Streams task status updates for the authenticated user
// @Tags websocket
// @Param session_id query string false "Session ID"
// @Param token query string false "JWT bearer token"
// @Router /ws/notifications [get]
func (h *WebSocketHandler) Notifications(c *gin.Context) {
	h.serve(c, "", "", "notifications")
}

// Document handles the per-document status stream
// @Summary Document status WebSocket
// @Description Streams processing status updates for one document
// @Tags websocket
// @Param document_id path string true "Document ID"
// @Router /ws/document/{document_id} [get]
func (h *WebSocketHandler) Document(c *gin.Context) {
	h.serve(c, "document", c.Param("document_id"), "document")
}

// Query handles the per-query status stream
// @Summary Query status WebSocket
// @Description Streams processing status updates for one query
// @Tags websocket
// @Param query_id path string true "Query ID"
// @Router /ws/query/{query_id} [get]
func (h *WebSocketHandler) Query(c *gin.Context) {
	h.serve(c, "query", c.Param("query_id"), "query")
}

// Source handles the per-source status stream
// @Summary Source status WebSocket
// @Description Streams status updates for every task of one source
// @Tags websocket
// @Param source_id path string true "Source ID"
// @Router /ws/source/{source_id} [get]
func (h *WebSocketHandler) Source(c *gin.Context) {
	h.serve(c, "source", c.Param("source_id"), "source")
}

// Project handles the per-project status stream
// @Summary Project sources WebSocket
// @Description Streams status updates for every source of one project
// @Tags websocket
// @Param project_id path string true "Project ID"
// @Router /ws/project/{project_id} [get]
func (h *WebSocketHandler) Project(c *gin.Context) {
	h.serve(c, "project", c.Param("project_id"), "project")
}

func (h *WebSocketHandler) serve(c *gin.Context, resourceType, resourceID, connType string) {
	if resourceType != "" && resourceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": resourceType + "_id required"})
		return
	}

	cfg := config.GlobalConfig

	// Browsers require the negotiated subprotocol to be echoed back.
	// Tokens ride in a Bearer.<token> protocol, so echo whatever the
	// client offered first.
	var respHeader http.Header
	if protos := websocket.Subprotocols(c.Request); len(protos) > 0 {
		respHeader = http.Header{"Sec-WebSocket-Protocol": {protos[0]}}
	}
	sock, err := h.upgrader.Upgrade(c.Writer, c.Request, respHeader)
	if err != nil {
		logger.WarnCtx(c.Request.Context(), "websocket upgrade failed: %v", err)
		return
	}
	if cfg.WebSocket.MaxMessageSize > 0 {
		sock.SetReadLimit(int64(cfg.WebSocket.MaxMessageSize))
	}
	conn := ws.NewGorillaConn(sock, time.Duration(cfg.WebSocket.WriteTimeout)*time.Second)

	authCtx, err := h.auth.Authenticate(c.Request.Context(), c.Request)
	if err != nil {
		var authErr *ws.ErrAuthRequired
		if errors.As(err, &authErr) {
			_ = conn.Close(websocket.ClosePolicyViolation, authErr.Reason)
			return
		}
		logger.ErrorCtx(c.Request.Context(), "websocket authentication failed: %v", err)
		_ = conn.Close(websocket.CloseInternalServerErr, "authentication error")
		return
	}

	connID := uuid.NewString()
	params := ws.ConnectParams{
		SessionID: c.Query("session_id"),
		Type:      connType,
	}
	if authCtx.IsAuthenticated() {
		params.UserID = authCtx.UserID()
	}
	switch resourceType {
	case "document":
		params.DocumentID = resourceID
	case "query":
		params.QueryID = resourceID
	case "source":
		params.SourceID = resourceID
	case "project":
		params.ProjectID = resourceID
	}

	if err := h.registry.Connect(conn, connID, params); err != nil {
		logger.WarnCtx(c.Request.Context(), "websocket registration failed, conn_id: %s, error: %v", connID, err)
		return
	}
	defer h.registry.Disconnect(connID)

	if resourceType != "" {
		if err := h.registry.SendPersonal(ws.SubscriptionConfirmedFrame(resourceType, resourceID), connID); err != nil {
			return
		}
	}

	monitor := ws.NewMonitor(
		authCtx,
		time.Duration(cfg.WebSocket.HeartbeatInterval)*time.Second,
		time.Duration(cfg.WebSocket.ConnectionTimeout)*time.Second,
		time.Duration(cfg.Auth.TokenRefreshThreshold)*time.Second,
		func() {
			logger.Infof("websocket heartbeat timeout, conn_id: %s, user: %s", connID, authCtx.UserID())
			_ = conn.Close(websocket.CloseGoingAway, "heartbeat timeout")
			h.registry.Disconnect(connID)
		},
		func() {
			_ = h.registry.SendPersonal(ws.TokenRefreshNeededFrame(authCtx.TokenExp()), connID)
		},
	)
	monitor.Start(c.Request.Context())
	defer monitor.Stop()

	logger.Infof("websocket connected, conn_id: %s, type: %s, user: %s", connID, connType, authCtx.UserID())

	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debugf("websocket read error, conn_id: %s: %v", connID, err)
			}
			return
		}
		reply, handled := ws.HandleClientMessage(raw, authCtx, h.auth)
		if !handled {
			logger.Debugf("websocket unknown action, conn_id: %s", connID)
		}
		if reply != nil {
			if err := h.registry.SendPersonal(reply, connID); err != nil {
				return
			}
		}
	}
}

// Stats returns connection registry statistics
// @Summary WebSocket connection statistics
// @Description Get active connection, session and user counts
// @Tags websocket
// @Produce json
// @Success 200 {object} ws.Stats
// @Router /ws/stats [get]
func (h *WebSocketHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.GetStats())
}
