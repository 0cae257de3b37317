// Package config loads and validates progressd configuration via Viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/progressd/internal/storage/local"
	pkgconfig "github.com/JakeFAU/progressd/pkg/config"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Application ApplicationConfig `mapstructure:"application"`
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Registry    RegistryConfig    `mapstructure:"registry"`
	Delivery    DeliveryConfig    `mapstructure:"delivery"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Storage     StorageConfig     `mapstructure:"storage"`
	PubSub      PubSubConfig      `mapstructure:"pubsub"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
}

// ApplicationConfig identifies the service to telemetry exporters.
type ApplicationConfig struct {
	ServiceName   string `mapstructure:"service_name"`
	Version       string `mapstructure:"version"`
	ProjectID     string `mapstructure:"project_id"`
	ProjectNumber string `mapstructure:"project_number"`
	Region        string `mapstructure:"region"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig selects the zap profile and level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// RegistryConfig governs live-task bookkeeping.
type RegistryConfig struct {
	RetainFinished   int `mapstructure:"retain_finished"`
	EnqueueTimeoutMs int `mapstructure:"enqueue_timeout_ms"`
}

// DeliveryConfig governs the finished-record delivery pipeline.
type DeliveryConfig struct {
	QueueDepth     int `mapstructure:"queue_depth"`
	Workers        int `mapstructure:"workers"`
	SinkTimeoutMs  int `mapstructure:"sink_timeout_ms"`
	MaxRetries     int `mapstructure:"max_retries"`
	RetryBackoffMs int `mapstructure:"retry_backoff_ms"`
}

// DatabaseConfig controls access to the relational database.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// StorageConfig selects the report archive provider.
type StorageConfig struct {
	Provider string       `mapstructure:"provider"`
	Prefix   string       `mapstructure:"prefix"`
	Bucket   string       `mapstructure:"bucket"`
	Local    local.Config `mapstructure:"local"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// RateLimitConfig throttles per-task report submissions.
type RateLimitConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	DefaultRPS   float64 `mapstructure:"default_rps"`
	DefaultBurst int     `mapstructure:"default_burst"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	pkgconfig.BindEnv(v, "PROGRESSD")
	setDefaults(v)

	if err := pkgconfig.ReadFile(v, path, ".", "/etc/progressd/", "$HOME/.progressd"); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("application.service_name", "progressd")
	v.SetDefault("application.version", "dev")
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("registry.retain_finished", 256)
	v.SetDefault("registry.enqueue_timeout_ms", 50)
	v.SetDefault("delivery.queue_depth", 64)
	v.SetDefault("delivery.workers", 4)
	v.SetDefault("delivery.sink_timeout_ms", 10000)
	v.SetDefault("delivery.max_retries", 2)
	v.SetDefault("delivery.retry_backoff_ms", 250)
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("storage.prefix", "reports")
	v.SetDefault("pubsub.topic_name", "task-events")
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.default_rps", 20)
	v.SetDefault("rate_limit.default_burst", 40)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Registry.RetainFinished <= 0 {
		return fmt.Errorf("registry.retain_finished must be > 0")
	}
	if c.Delivery.Workers <= 0 {
		return fmt.Errorf("delivery.workers must be > 0")
	}
	if c.Delivery.QueueDepth <= 0 {
		return fmt.Errorf("delivery.queue_depth must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Storage.Provider {
	case "", "memory":
	case "local":
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir must be set for the local provider")
		}
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket must be set for the gcs provider")
		}
	default:
		return fmt.Errorf("storage.provider %q is not one of memory, local, gcs", c.Storage.Provider)
	}
	if c.RateLimit.Enabled && c.RateLimit.DefaultRPS <= 0 {
		return fmt.Errorf("rate_limit.default_rps must be > 0 when rate limiting is enabled")
	}
	return nil
}

// EnqueueTimeout converts the registry enqueue budget into a duration.
func (c Config) EnqueueTimeout() time.Duration {
	return time.Duration(c.Registry.EnqueueTimeoutMs) * time.Millisecond
}

// SinkTimeout converts the per-sink delivery budget into a duration.
func (c Config) SinkTimeout() time.Duration {
	return time.Duration(c.Delivery.SinkTimeoutMs) * time.Millisecond
}

// RetryBackoff converts the initial delivery retry backoff into a duration.
func (c Config) RetryBackoff() time.Duration {
	return time.Duration(c.Delivery.RetryBackoffMs) * time.Millisecond
}
