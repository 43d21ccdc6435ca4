package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// APIConfig holds the endpoints of the Studium backend.
type APIConfig struct {
	// BaseURL is the root URL for REST calls (e.g. https://studium.example).
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// SocketURL is the realtime endpoint; the access token is appended
	// as a query parameter when dialing.
	SocketURL string `mapstructure:"socket_url" yaml:"socket_url"`

	// TimeoutSec bounds individual REST requests.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// SessionConfig holds token-refresh settings.
type SessionConfig struct {
	// RefreshIntervalSec is the silent-refresh cadence. The server issues
	// five-minute access tokens, so the default stays just under that.
	RefreshIntervalSec int `mapstructure:"refresh_interval_sec" yaml:"refresh_interval_sec"`

	// ExpiryMarginSec refreshes early when the token's exp claim would
	// lapse before the next scheduled refresh.
	ExpiryMarginSec int `mapstructure:"expiry_margin_sec" yaml:"expiry_margin_sec"`
}

// CacheConfig controls the optional local notification cache.
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// AppConfig is the top-level client configuration.
type AppConfig struct {
	Env     string        `mapstructure:"env" yaml:"env"`
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/studium/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "studium", "config.yaml")
}

// defaultCachePath places the notification cache next to the config file.
func defaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "notifications.db")
	}
	return filepath.Join(home, ".config", "studium", "notifications.db")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Env: "development",
		API: APIConfig{
			BaseURL:    "http://localhost:8000",
			SocketURL:  "ws://localhost:8000/ws/connect/",
			TimeoutSec: 30,
		},
		Session: SessionConfig{
			RefreshIntervalSec: 240,
			ExpiryMarginSec:    30,
		},
		Cache: CacheConfig{
			Enabled: false,
			Path:    defaultCachePath(),
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("env", "development")
	v.SetDefault("api.base_url", "http://localhost:8000")
	v.SetDefault("api.socket_url", "ws://localhost:8000/ws/connect/")
	v.SetDefault("api.timeout_sec", 30)
	v.SetDefault("session.refresh_interval_sec", 240)
	v.SetDefault("session.expiry_margin_sec", 30)
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.path", defaultCachePath())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("env", cfg.Env)
	v.Set("api", cfg.API)
	v.Set("session", cfg.Session)
	v.Set("cache", cfg.Cache)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
