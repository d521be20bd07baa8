// Package config loads PromptBot settings from defaults, an optional YAML file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for PromptBot.
type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Firebase FirebaseConfig `mapstructure:"firebase"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

// CatalogConfig points at the options file. Empty means the built-in catalog.
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// BackendConfig selects and tunes the image generation backend.
type BackendConfig struct {
	// Kind is "diffusion" or "dalle".
	Kind       string        `mapstructure:"kind"`
	URL        string        `mapstructure:"url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// FirebaseConfig enables the generation archive when both fields are set.
type FirebaseConfig struct {
	ServiceAccountKeyPath string `mapstructure:"service_account_key_path"`
	DatabaseURL           string `mapstructure:"database_url"`
}

// StorageConfig enables the S3 image mirror when Bucket is set.
type StorageConfig struct {
	Endpoint  string        `mapstructure:"endpoint"`
	Region    string        `mapstructure:"region"`
	Bucket    string        `mapstructure:"bucket"`
	AccessKey string        `mapstructure:"access_key"`
	SecretKey string        `mapstructure:"secret_key"`
	URLExpiry time.Duration `mapstructure:"url_expiry"`
	PathStyle bool          `mapstructure:"path_style"`
}

type MetricsConfig struct {
	// Addr is the listen address of the /metrics endpoint. Empty disables it.
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

var ErrNoToken = errors.New("no Telegram bot token configured")

// Load reads configuration. Precedence (highest to lowest):
// 1. Environment variables (PROMPTBOT_*, TELEGRAM_BOT_TOKEN, FIREBASE_*)
// 2. The file at path, or promptbot.yaml in the working or user config directory
// 3. Built-in defaults
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("promptbot")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(userConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	bindEnv(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("PROMPTBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Names the bot has always been deployed with.
	_ = v.BindEnv("telegram.token", "PROMPTBOT_TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("firebase.service_account_key_path", "PROMPTBOT_FIREBASE_SERVICE_ACCOUNT_KEY_PATH", "FIREBASE_SERVICE_ACCOUNT_KEY_PATH")
	_ = v.BindEnv("firebase.database_url", "PROMPTBOT_FIREBASE_DATABASE_URL", "FIREBASE_DATABASE_URL")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram.token", "")

	v.SetDefault("catalog.path", "")

	v.SetDefault("backend.kind", "diffusion")
	v.SetDefault("backend.url", "http://localhost:32553")
	v.SetDefault("backend.timeout", "2m")
	v.SetDefault("backend.max_retries", 3)
	v.SetDefault("backend.retry_delay", "500ms")

	v.SetDefault("firebase.service_account_key_path", "")
	v.SetDefault("firebase.database_url", "")

	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.url_expiry", "24h")
	v.SetDefault("storage.path_style", false)

	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Validate checks the settings needed to run the bot.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return ErrNoToken
	}
	return c.ValidateBackend()
}

// ValidateBackend checks the settings needed to call the generation backend.
func (c *Config) ValidateBackend() error {
	switch c.Backend.Kind {
	case "diffusion", "dalle":
	default:
		return fmt.Errorf("backend.kind must be diffusion or dalle, got %q", c.Backend.Kind)
	}
	if c.Backend.URL == "" {
		return errors.New("backend.url is required")
	}
	if c.Backend.MaxRetries < 0 {
		return errors.New("backend.max_retries must not be negative")
	}
	return nil
}

func (c *Config) FirebaseEnabled() bool {
	return c.Firebase.ServiceAccountKeyPath != "" && c.Firebase.DatabaseURL != ""
}

func (c *Config) StorageEnabled() bool {
	return c.Storage.Bucket != ""
}

func userConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "promptbot")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "promptbot")
	}
	return filepath.Join(home, ".config", "promptbot")
}
