package constants

// Redis channel prefixes for status broadcasting
const (
	ChannelTaskPrefix     = "task:"
	ChannelDocumentPrefix = "document:"
	ChannelQueryPrefix    = "query:"
	ChannelUserPrefix     = "user:"

	ChannelGlobalTasks = "tasks:all"

	// ChannelBroadcast carries cross-instance WebSocket fan-out envelopes
	ChannelBroadcast = "websocket:broadcast"
)

// Redis key prefixes for status persistence
const (
	KeyTaskHistoryPrefix = "task:history:"
	KeyDeadLetterQueue   = "tasks:dead_letter"
)

// WebSocket message types
const (
	MessageTypeConnection   = "connection"
	MessageTypeHeartbeat    = "heartbeat"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
	MessageTypeRefreshToken = "refresh_token"
	MessageTypeTaskStatus   = "task_status"
	MessageTypeSubscription = "subscription_confirmed"

	MessageTypeTokenRefreshSuccess = "token_refresh_success"
	MessageTypeTokenRefreshFailed  = "token_refresh_failed"
)

// Fan-out target types understood by the broadcast bridge
const (
	TargetDocument       = "document"
	TargetQuery          = "query"
	TargetUser           = "user"
	TargetSession        = "session"
	TargetSource         = "source"
	TargetProjectSources = "project_sources"
	TargetBroadcast      = "broadcast"
)
