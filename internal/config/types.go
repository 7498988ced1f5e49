package config

import "time"

// Config represents the complete configuration structure
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	AdminAPI     AdminAPIConfig     `yaml:"admin_api"`
	WebSocket    WebSocketConfig    `yaml:"websocket"`
	Pipeline     PipelineConfig     `yaml:"pipeline"`
	Reconnection ReconnectionConfig `yaml:"reconnection"`
	Heartbeat    HeartbeatConfig    `yaml:"heartbeat"`
	Offline      OfflineConfig      `yaml:"offline"`
	Store        StoreConfig        `yaml:"store"`
	Auth         AuthConfig         `yaml:"auth"`
	Monitor      MonitorConfig      `yaml:"monitor"`
	Logging      LoggingConfig      `yaml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

// ServerConfig represents the public HTTP/WebSocket server configuration
type ServerConfig struct {
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// AdminAPIConfig represents the admin/status API server configuration
type AdminAPIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// WebSocketConfig represents WebSocket endpoint configuration
type WebSocketConfig struct {
	Path            string        `yaml:"path"`
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size"`
	MaxConnections  int           `yaml:"max_connections"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	SendBuffer      int           `yaml:"send_buffer"`
}

// PipelineConfig represents the message routing pipeline configuration
type PipelineConfig struct {
	QueueSize        int           `yaml:"queue_size"`
	MaxConcurrent    int           `yaml:"max_concurrent"`
	DefaultTimeout   time.Duration `yaml:"default_timeout"`
	DefaultRateLimit int           `yaml:"default_rate_limit"`
	IdlePollInterval time.Duration `yaml:"idle_poll_interval"`
}

// ReconnectionConfig represents the reconnection scheduler configuration
type ReconnectionConfig struct {
	Strategy     string        `yaml:"strategy"`
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	Jitter       bool          `yaml:"jitter"`
}

// HeartbeatConfig represents the heartbeat monitor configuration
type HeartbeatConfig struct {
	Interval time.Duration `yaml:"interval"`
	// Timeout defaults to twice the interval when zero.
	Timeout time.Duration `yaml:"timeout"`
}

// OfflineConfig represents the offline buffer configuration
type OfflineConfig struct {
	CacheTTL   time.Duration `yaml:"cache_ttl"`
	QueueLimit int           `yaml:"queue_limit"`
}

// StoreConfig represents the key-value store backing the offline cache
type StoreConfig struct {
	Type  string      `yaml:"type"` // "memory" or "redis"
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig represents Redis store configuration
type RedisConfig struct {
	Address   string        `yaml:"address"`
	Password  string        `yaml:"password"`
	Database  int           `yaml:"database"`
	KeyPrefix string        `yaml:"key_prefix"`
	Timeout   time.Duration `yaml:"timeout"`
}

// AuthConfig represents WebSocket client authentication configuration
type AuthConfig struct {
	Enabled       bool          `yaml:"enabled"`
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenDuration time.Duration `yaml:"token_duration"`
	Issuer        string        `yaml:"issuer"`
}

// MonitorConfig represents the system metrics provider configuration
type MonitorConfig struct {
	Interval           time.Duration `yaml:"interval"`
	CPUAlertPercent    float64       `yaml:"cpu_alert_percent"`
	MemoryAlertPercent float64       `yaml:"memory_alert_percent"`
	DiskAlertPercent   float64       `yaml:"disk_alert_percent"`
	// BroadcastMinInterval throttles periodic status broadcasts.
	BroadcastMinInterval time.Duration `yaml:"broadcast_min_interval"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Development  bool   `yaml:"development"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// MetricsConfig represents Prometheus metrics configuration
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}
