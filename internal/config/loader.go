package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envConfigDefaultPath = "MARKETCHAT_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "marketchat.yaml"
)

// Load builds configuration from defaults, optional config file, env vars, and returns the resolved path.
// Precedence: defaults < config file < env vars < caller overrides.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("api_base_url", cfg.APIBaseURL)
	v.SetDefault("ws_base_url", cfg.WSBaseURL)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("state_path", cfg.StatePath)
	v.SetDefault("state_secret", cfg.StateSecret)
	v.SetDefault("request_timeout", cfg.RequestTimeout)
	v.SetDefault("heartbeat_interval", cfg.HeartbeatInterval)
	v.SetDefault("ping_interval", cfg.PingInterval)
	v.SetDefault("reconnect_delay", cfg.ReconnectDelay)
	v.SetDefault("notify_reconnect_delay", cfg.NotifyReconnectDelay)
	v.SetDefault("max_image_bytes", cfg.MaxImageBytes)
	v.SetDefault("metrics_addr", cfg.MetricsAddr)

	v.SetEnvPrefix("MARKETCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if writeErr := writeDefaultConfig(configPath, cfg); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			// try reading again in case it was just written
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		} else {
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, configPath, err
	}

	return cfg, configPath, nil
}

// Validate rejects configurations the client cannot run with.
func (c Config) Validate() error {
	if c.APIBaseURL == "" {
		return errors.New("config: api_base_url is required")
	}
	if c.WSBaseURL == "" {
		return errors.New("config: ws_base_url is required")
	}
	if c.HeartbeatInterval <= 0 || c.PingInterval <= 0 {
		return errors.New("config: heartbeat_interval and ping_interval must be positive")
	}
	if c.ReconnectDelay < 0 || c.NotifyReconnectDelay < 0 {
		return errors.New("config: reconnect delays must not be negative")
	}
	return nil
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "marketchat", defaultConfigName)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
