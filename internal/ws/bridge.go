package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"taskstream/pkg/constants"
	"taskstream/pkg/interfaces"
	"taskstream/pkg/logger"
)

// broadcastEnvelope is the routing header of a cross-instance fan-out
// message. The full payload is forwarded to the matching connections,
// only these fields steer delivery.
type broadcastEnvelope struct {
	Type       string `json:"type"`
	TargetType string `json:"target_type"`
	DocumentID string `json:"document_id"`
	QueryID    string `json:"query_id"`
	UserID     string `json:"user_id"`
	SessionID  string `json:"session_id"`
	SourceID   string `json:"source_id"`
	ProjectID  string `json:"project_id"`
}

// Bridge connects the distributed pub/sub bus to the local connection
// registry. Every instance subscribes to the same broadcast channel,
// a message published on any instance reaches the connections of all.
type Bridge struct {
	registry *Registry
	pubsub   interfaces.PubSub
}

// NewBridge creates a fan-out bridge for a registry.
func NewBridge(registry *Registry, pubsub interfaces.PubSub) *Bridge {
	return &Bridge{registry: registry, pubsub: pubsub}
}

// Register subscribes the bridge's routing handler on the broadcast
// channel. Call before the pub/sub listener starts.
func (b *Bridge) Register() error {
	return b.pubsub.Subscribe(constants.ChannelBroadcast, b.HandleBroadcast)
}

// Publish sends an envelope through the bus. Local delivery also goes
// through the bus so one receive path serves local and remote
// publishers alike.
func (b *Bridge) Publish(ctx context.Context, message map[string]interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal broadcast message: %w", err)
	}
	return b.pubsub.Publish(ctx, constants.ChannelBroadcast, payload)
}

// HandleBroadcast routes one received envelope to the registry method
// matching its target_type. Unset or unknown target types broadcast
// to every local connection.
func (b *Bridge) HandleBroadcast(ctx context.Context, channel string, payload []byte) error {
	var env broadcastEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("malformed broadcast envelope: %w", err)
	}

	switch env.TargetType {
	case constants.TargetDocument:
		if env.DocumentID != "" {
			b.registry.SendToDocument(payload, env.DocumentID)
		}
	case constants.TargetQuery:
		if env.QueryID != "" {
			b.registry.SendToQuery(payload, env.QueryID)
		}
	case constants.TargetUser:
		if env.UserID != "" {
			b.registry.SendToUser(payload, env.UserID)
		}
	case constants.TargetSession:
		if env.SessionID != "" {
			b.registry.SendToSession(payload, env.SessionID)
		}
	case constants.TargetSource:
		if env.SourceID != "" {
			b.registry.SendToSource(payload, env.SourceID)
		}
	case constants.TargetProjectSources:
		if env.ProjectID != "" {
			b.registry.SendToProjectSources(payload, env.ProjectID)
		}
	default:
		logger.Debugf("broadcast envelope type=%s target=%s, broadcasting locally", env.Type, env.TargetType)
		b.registry.Broadcast(payload, nil)
	}
	return nil
}
