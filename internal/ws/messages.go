package ws

import (
	"encoding/json"
	"time"

	"taskstream/pkg/constants"
	"taskstream/pkg/logger"
)

// clientMessage inbound frame from a WebSocket client. The protocol
// accepts either an event or a type discriminator.
type clientMessage struct {
	Event string `json:"event"`
	Type  string `json:"type"`
	Token string `json:"token"`
	Data  struct {
		Token string `json:"token"`
	} `json:"data"`
}

// ErrorFrame builds the error reply sent instead of silently dropping
// an unparseable or unknown client message.
func ErrorFrame(message string) []byte {
	data, _ := json.Marshal(map[string]interface{}{
		"type":    "error",
		"message": message,
	})
	return data
}

// PongFrame builds the heartbeat reply.
func PongFrame() []byte {
	now := time.Now().UTC()
	data, _ := json.Marshal(map[string]interface{}{
		"event":       constants.MessageTypePong,
		"timestamp":   float64(now.UnixNano()) / float64(time.Second),
		"server_time": now.Format(time.RFC3339),
	})
	return data
}

// SubscriptionConfirmedFrame builds the subscription confirmation sent
// after a resource-scoped endpoint registers its connection.
func SubscriptionConfirmedFrame(resourceType, resourceID string) []byte {
	data, _ := json.Marshal(map[string]interface{}{
		"type":          constants.MessageTypeSubscription,
		"resource_type": resourceType,
		"resource_id":   resourceID,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
	return data
}

// TokenRefreshNeededFrame notifies a client its credential is close to
// expiry.
func TokenRefreshNeededFrame(expiresAt time.Time) []byte {
	data, _ := json.Marshal(map[string]interface{}{
		"event":      "token_refresh_needed",
		"expires_at": expiresAt.Format(time.RFC3339),
		"message":    "Token expiring soon, please refresh",
	})
	return data
}

// HandleClientMessage processes one inbound frame uniformly across
// endpoints: heartbeats update the auth context and yield a pong,
// refresh_token swaps the credential on success. An action outside the
// shared protocol yields an error frame with handled=false so callers
// can log the drop.
func HandleClientMessage(raw []byte, authCtx *AuthContext, auth *Authenticator) (reply []byte, handled bool) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ErrorFrame("malformed message"), true
	}

	eventType := msg.Event
	if eventType == "" {
		eventType = msg.Type
	}

	switch eventType {
	case constants.MessageTypeHeartbeat, constants.MessageTypePing:
		authCtx.Touch()
		return PongFrame(), true

	case constants.MessageTypeRefreshToken:
		token := msg.Data.Token
		if token == "" {
			token = msg.Token
		}
		return handleTokenRefresh(token, authCtx, auth), true
	}
	return ErrorFrame("unknown action"), false
}

// handleTokenRefresh validates the replacement credential and installs
// it atomically. A failed validation leaves the context untouched.
func handleTokenRefresh(token string, authCtx *AuthContext, auth *Authenticator) []byte {
	fail := func(reason string) []byte {
		data, _ := json.Marshal(map[string]interface{}{
			"event": constants.MessageTypeTokenRefreshFailed,
			"error": reason,
		})
		return data
	}

	if token == "" {
		return fail("no token provided")
	}
	if auth == nil {
		return fail("token refresh not supported")
	}

	userID, exp, err := auth.validateToken(token)
	if err != nil {
		logger.Warnf("websocket token refresh failed: %v", err)
		return fail("invalid token")
	}

	authCtx.swapToken(token, userID, exp)
	logger.Infof("websocket token refreshed, user=%s", userID)

	data, _ := json.Marshal(map[string]interface{}{
		"event":      constants.MessageTypeTokenRefreshSuccess,
		"user_id":    userID,
		"expires_at": exp.Format(time.RFC3339),
	})
	return data
}
