package config

import "time"

// Config holds client configuration values.
type Config struct {
	APIBaseURL           string        `mapstructure:"api_base_url" yaml:"api_base_url"`
	WSBaseURL            string        `mapstructure:"ws_base_url" yaml:"ws_base_url"`
	LogLevel             string        `mapstructure:"log_level" yaml:"log_level"`
	StatePath            string        `mapstructure:"state_path" yaml:"state_path"`
	StateSecret          string        `mapstructure:"state_secret" yaml:"state_secret"`
	RequestTimeout       time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	HeartbeatInterval    time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
	PingInterval         time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
	ReconnectDelay       time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
	NotifyReconnectDelay time.Duration `mapstructure:"notify_reconnect_delay" yaml:"notify_reconnect_delay"`
	MaxImageBytes        int64         `mapstructure:"max_image_bytes" yaml:"max_image_bytes"`
	MetricsAddr          string        `mapstructure:"metrics_addr" yaml:"metrics_addr"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		APIBaseURL:           "https://gamgyulhouse.store",
		WSBaseURL:            "ws://127.0.0.1:8000",
		LogLevel:             "warn",
		StatePath:            "marketchat.db",
		RequestTimeout:       15 * time.Second,
		HeartbeatInterval:    30 * time.Second,
		PingInterval:         30 * time.Second,
		ReconnectDelay:       3 * time.Second,
		NotifyReconnectDelay: 5 * time.Second,
		MaxImageBytes:        5 << 20,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.APIBaseURL != "" {
		c.APIBaseURL = other.APIBaseURL
	}
	if other.WSBaseURL != "" {
		c.WSBaseURL = other.WSBaseURL
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.StatePath != "" {
		c.StatePath = other.StatePath
	}
	if other.StateSecret != "" {
		c.StateSecret = other.StateSecret
	}
	if other.RequestTimeout != 0 {
		c.RequestTimeout = other.RequestTimeout
	}
	if other.HeartbeatInterval != 0 {
		c.HeartbeatInterval = other.HeartbeatInterval
	}
	if other.PingInterval != 0 {
		c.PingInterval = other.PingInterval
	}
	if other.ReconnectDelay != 0 {
		c.ReconnectDelay = other.ReconnectDelay
	}
	if other.NotifyReconnectDelay != 0 {
		c.NotifyReconnectDelay = other.NotifyReconnectDelay
	}
	if other.MaxImageBytes != 0 {
		c.MaxImageBytes = other.MaxImageBytes
	}
	if other.MetricsAddr != "" {
		c.MetricsAddr = other.MetricsAddr
	}
}
