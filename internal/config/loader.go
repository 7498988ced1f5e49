package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from file with environment variable overrides
func Load(configFile string) (*Config, error) {
	cfg := Default()

	// Load from file if specified
	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Override with environment variables
	loadFromEnv(cfg)

	// Validate configuration
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      ":8000",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		AdminAPI: AdminAPIConfig{
			Enabled: true,
			Address: ":9090",
		},
		WebSocket: WebSocketConfig{
			Path:            "/ws",
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			MaxConnections:  1000,
			WriteTimeout:    10 * time.Second,
			PingInterval:    25 * time.Second,
			SendBuffer:      256,
		},
		Pipeline: PipelineConfig{
			QueueSize:        1000,
			MaxConcurrent:    10,
			DefaultTimeout:   30 * time.Second,
			DefaultRateLimit: 60,
			IdlePollInterval: 100 * time.Millisecond,
		},
		Reconnection: ReconnectionConfig{
			Strategy:     "exponential_backoff",
			MaxAttempts:  10,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		},
		Heartbeat: HeartbeatConfig{
			Interval: 30 * time.Second,
		},
		Offline: OfflineConfig{
			CacheTTL:   5 * time.Minute,
			QueueLimit: 100,
		},
		Store: StoreConfig{
			Type: "memory",
			Redis: RedisConfig{
				Address:   "localhost:6379",
				KeyPrefix: "statuspulse",
				Timeout:   5 * time.Second,
			},
		},
		Auth: AuthConfig{
			Enabled:       false,
			TokenDuration: 24 * time.Hour,
			Issuer:        "statuspulse",
		},
		Monitor: MonitorConfig{
			Interval:             5 * time.Second,
			CPUAlertPercent:      85.0,
			MemoryAlertPercent:   90.0,
			DiskAlertPercent:     95.0,
			BroadcastMinInterval: 2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:        "info",
			Development:  false,
			EnableCaller: false,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "statuspulse",
		},
	}
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(cfg *Config, filename string) error {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return fmt.Errorf("config file does not exist: %s", filename)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables
func loadFromEnv(cfg *Config) {
	if addr := os.Getenv("STATUSPULSE_SERVER_ADDRESS"); addr != "" {
		cfg.Server.Address = addr
	}
	if addr := os.Getenv("STATUSPULSE_ADMIN_ADDRESS"); addr != "" {
		cfg.AdminAPI.Address = addr
	}
	if storeType := os.Getenv("STATUSPULSE_STORE_TYPE"); storeType != "" {
		cfg.Store.Type = storeType
	}
	if addr := os.Getenv("STATUSPULSE_REDIS_ADDRESS"); addr != "" {
		cfg.Store.Redis.Address = addr
	}
	if password := os.Getenv("STATUSPULSE_REDIS_PASSWORD"); password != "" {
		cfg.Store.Redis.Password = password
	}
	if secret := os.Getenv("STATUSPULSE_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if level := os.Getenv("STATUSPULSE_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.Address == "" {
		return fmt.Errorf("server address cannot be empty")
	}

	if cfg.Pipeline.QueueSize <= 0 {
		return fmt.Errorf("pipeline queue size must be positive, got %d", cfg.Pipeline.QueueSize)
	}
	if cfg.Pipeline.MaxConcurrent <= 0 {
		return fmt.Errorf("pipeline max concurrent must be positive, got %d", cfg.Pipeline.MaxConcurrent)
	}

	validStrategies := map[string]bool{
		"exponential_backoff": true,
		"fixed_interval":      true,
		"immediate":           true,
		"none":                true,
	}
	if !validStrategies[cfg.Reconnection.Strategy] {
		return fmt.Errorf("invalid reconnection strategy: %s", cfg.Reconnection.Strategy)
	}

	switch cfg.Store.Type {
	case "memory":
	case "redis":
		if cfg.Store.Redis.Address == "" {
			return fmt.Errorf("redis address cannot be empty")
		}
	default:
		return fmt.Errorf("invalid store type: %s", cfg.Store.Type)
	}

	if cfg.Auth.Enabled && cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret cannot be empty when auth is enabled")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}

	return nil
}
