package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

var GlobalConfig *Config

// Config global configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Redis        RedisConfig        `yaml:"redis"`
	MySQL        MySQLConfig        `yaml:"mysql"`
	Queue        QueueConfig        `yaml:"queue"`
	WebSocket    WebSocketConfig    `yaml:"websocket"`
	Auth         AuthConfig         `yaml:"auth"`
	Broadcast    BroadcastConfig    `yaml:"broadcast"`
	Logger       LoggerConfig       `yaml:"logger"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Notification NotificationConfig `yaml:"notification"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Port   int    `yaml:"port"`
	Mode   string `yaml:"mode"`    // debug, release
	APIKey string `yaml:"api_key"` // API key for internal REST endpoints (optional, if empty, auth is disabled)
}

// RedisConfig Redis configuration
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MySQLConfig MySQL configuration
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// QueueConfig task queue configuration
type QueueConfig struct {
	Concurrency int `yaml:"concurrency"`  // queue processing concurrency
	MaxRetry    int `yaml:"max_retry"`    // maximum retry count
	TaskTimeout int `yaml:"task_timeout"` // task timeout (seconds)
}

// WebSocketConfig WebSocket connection configuration
type WebSocketConfig struct {
	HeartbeatInterval int `yaml:"heartbeat_interval"` // expected client heartbeat interval (seconds)
	ConnectionTimeout int `yaml:"connection_timeout"` // disconnect after this long without a heartbeat (seconds)
	WriteTimeout      int `yaml:"write_timeout"`      // per-message write deadline (seconds)
	MaxMessageSize    int `yaml:"max_message_size"`   // maximum inbound message size (bytes)
}

// AuthConfig JWT authentication configuration
type AuthConfig struct {
	JWTSecret             string `yaml:"jwt_secret"`
	RequireAuth           bool   `yaml:"require_auth"`            // reject unauthenticated connections
	TokenRefreshThreshold int    `yaml:"token_refresh_threshold"` // prompt refresh when expiry is closer than this (seconds)
}

// BroadcastConfig status broadcasting configuration
type BroadcastConfig struct {
	HistoryLimit  int `yaml:"history_limit"`   // status entries retained per task
	HistoryTTL    int `yaml:"history_ttl"`     // task history retention (seconds)
	DeadLetterCap int `yaml:"dead_letter_cap"` // maximum dead letter entries retained
}

// LoggerConfig logger configuration
type LoggerConfig struct {
	Level  string           `yaml:"level"`  // debug, info, warn, error
	Output string           `yaml:"output"` // console, file, both
	File   LoggerFileConfig `yaml:"file"`
}

// LoggerFileConfig logger file configuration
type LoggerFileConfig struct {
	Path string `yaml:"path"`
}

// NotificationConfig operational alerting configuration
type NotificationConfig struct {
	FeishuWebhookURL string `yaml:"feishu_webhook_url"` // Feishu bot webhook, alerts disabled when empty
}

// MetricsConfig Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // scrape path, defaults to /metrics
}

// Init initializes configuration
func Init() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return err
	}

	cfg.applyDefaults()
	GlobalConfig = &cfg
	return nil
}

func (c *Config) applyDefaults() {
	if c.WebSocket.HeartbeatInterval <= 0 {
		c.WebSocket.HeartbeatInterval = 30
	}
	if c.WebSocket.ConnectionTimeout <= 0 {
		c.WebSocket.ConnectionTimeout = 90
	}
	if c.WebSocket.WriteTimeout <= 0 {
		c.WebSocket.WriteTimeout = 10
	}
	if c.Auth.TokenRefreshThreshold <= 0 {
		c.Auth.TokenRefreshThreshold = 300
	}
	if c.Broadcast.HistoryLimit <= 0 {
		c.Broadcast.HistoryLimit = 100
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Queue.MaxRetry <= 0 {
		c.Queue.MaxRetry = 3
	}
}
