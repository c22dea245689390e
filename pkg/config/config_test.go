package config

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	assert.Equal(t, 30, cfg.WebSocket.HeartbeatInterval)
	assert.Equal(t, 90, cfg.WebSocket.ConnectionTimeout)
	assert.Equal(t, 10, cfg.WebSocket.WriteTimeout)
	assert.Equal(t, 300, cfg.Auth.TokenRefreshThreshold)
	assert.Equal(t, 100, cfg.Broadcast.HistoryLimit)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, 3, cfg.Queue.MaxRetry)
}

func TestApplyDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.WebSocket.HeartbeatInterval = 15
	cfg.Auth.TokenRefreshThreshold = 60
	cfg.Broadcast.HistoryLimit = 500
	cfg.Metrics.Path = "/internal/metrics"
	cfg.applyDefaults()

	assert.Equal(t, 15, cfg.WebSocket.HeartbeatInterval)
	assert.Equal(t, 60, cfg.Auth.TokenRefreshThreshold)
	assert.Equal(t, 500, cfg.Broadcast.HistoryLimit)
	assert.Equal(t, "/internal/metrics", cfg.Metrics.Path)
}

func TestProperty_InvalidIntervalsFallBackToDefaults(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("non-positive intervals fall back to defaults", prop.ForAll(
		func(heartbeat, timeout, refresh int) bool {
			cfg := &Config{}
			cfg.WebSocket.HeartbeatInterval = heartbeat
			cfg.WebSocket.ConnectionTimeout = timeout
			cfg.Auth.TokenRefreshThreshold = refresh
			cfg.applyDefaults()

			return cfg.WebSocket.HeartbeatInterval == 30 &&
				cfg.WebSocket.ConnectionTimeout == 90 &&
				cfg.Auth.TokenRefreshThreshold == 300
		},
		gen.IntRange(-1000, 0),
		gen.IntRange(-1000, 0),
		gen.IntRange(-1000, 0),
	))

	properties.Property("applyDefaults is idempotent", prop.ForAll(
		func(heartbeat, limit int) bool {
			cfg := &Config{}
			cfg.WebSocket.HeartbeatInterval = heartbeat
			cfg.Broadcast.HistoryLimit = limit
			cfg.applyDefaults()
			first := cfg.WebSocket
			firstLimit := cfg.Broadcast.HistoryLimit
			cfg.applyDefaults()

			return cfg.WebSocket == first && cfg.Broadcast.HistoryLimit == firstLimit
		},
		gen.IntRange(-100, 100),
		gen.IntRange(-100, 100),
	))

	properties.TestingRun(t)
}
