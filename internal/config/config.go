// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Estimator EstimatorConfig `mapstructure:"estimator"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	Hub       HubConfig       `mapstructure:"hub"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	History   HistoryConfig   `mapstructure:"history"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port               int `mapstructure:"port"`
	RequestTimeoutSecs int `mapstructure:"request_timeout_seconds"`
	ShutdownSecs       int `mapstructure:"shutdown_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features and file rotation.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
	Compress    bool   `mapstructure:"compress"`
}

// EstimatorConfig tunes the time-to-complete calculation.
type EstimatorConfig struct {
	Precision int `mapstructure:"precision"`
}

// TrackerConfig bounds the in-memory series registry.
type TrackerConfig struct {
	MaxSeries      int `mapstructure:"max_series"`
	RetainFinished int `mapstructure:"retain_finished"`
}

// HubConfig controls progress event batching.
type HubConfig struct {
	BufferSize     int  `mapstructure:"buffer_size"`
	MaxBatchEvents int  `mapstructure:"max_batch_events"`
	MaxBatchWaitMs int  `mapstructure:"max_batch_wait_ms"`
	SinkTimeoutSec int  `mapstructure:"sink_timeout_seconds"`
	LogEvents      bool `mapstructure:"log_events"`
}

// DBConfig controls access to the relational database. An empty DSN keeps
// history in memory.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	SeriesTable     string `mapstructure:"series_table"`
	SnapshotTable   string `mapstructure:"snapshot_table"`
	MaxConns        int32  `mapstructure:"max_conns"`
	ConnectAttempts uint   `mapstructure:"connect_attempts"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// HistoryConfig bounds the in-memory history store used when db.dsn is empty.
type HistoryConfig struct {
	MaxFinished int `mapstructure:"max_finished"`
}

// MetricsConfig toggles the Prometheus progress sink.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// RateLimitConfig throttles observations per series.
type RateLimitConfig struct {
	Enabled               bool    `mapstructure:"enabled"`
	ObservationsPerSecond float64 `mapstructure:"observations_per_second"`
	Burst                 int     `mapstructure:"burst"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ETA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("server.shutdown_seconds", 10)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
	v.SetDefault("logging.compress", false)
	v.SetDefault("estimator.precision", 2)
	v.SetDefault("tracker.max_series", 1024)
	v.SetDefault("tracker.retain_finished", 256)
	v.SetDefault("hub.buffer_size", 4096)
	v.SetDefault("hub.max_batch_events", 1000)
	v.SetDefault("hub.max_batch_wait_ms", 500)
	v.SetDefault("hub.sink_timeout_seconds", 10)
	v.SetDefault("hub.log_events", false)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.series_table", "progress_series")
	v.SetDefault("db.snapshot_table", "progress_snapshots")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.connect_attempts", 3)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("history.max_finished", 10000)
	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.observations_per_second", 50.0)
	v.SetDefault("rate_limit.burst", 100)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSecs <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Estimator.Precision < 0 || c.Estimator.Precision > 9 {
		return fmt.Errorf("estimator.precision must be between 0 and 9")
	}
	if c.Tracker.MaxSeries <= 0 {
		return fmt.Errorf("tracker.max_series must be > 0")
	}
	if c.Tracker.RetainFinished < 0 {
		return fmt.Errorf("tracker.retain_finished must be >= 0")
	}
	if c.History.MaxFinished < 0 {
		return fmt.Errorf("history.max_finished must be >= 0")
	}
	if c.RateLimit.Enabled && c.RateLimit.ObservationsPerSecond <= 0 {
		return fmt.Errorf("rate_limit.observations_per_second must be > 0 when rate limiting is enabled")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// RequestTimeout converts the server timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSecs) * time.Second
}

// ShutdownTimeout is how long serve waits for in-flight requests on exit.
func (c Config) ShutdownTimeout() time.Duration {
	if c.Server.ShutdownSecs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Server.ShutdownSecs) * time.Second
}

// MaxBatchWait converts the hub batch wait into a duration.
func (c Config) MaxBatchWait() time.Duration {
	return time.Duration(c.Hub.MaxBatchWaitMs) * time.Millisecond
}

// SinkTimeout converts the hub sink timeout into a duration.
func (c Config) SinkTimeout() time.Duration {
	return time.Duration(c.Hub.SinkTimeoutSec) * time.Second
}
