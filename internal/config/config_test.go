package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Estimator.Precision != 2 {
		t.Fatalf("expected default precision 2, got %d", cfg.Estimator.Precision)
	}
	if cfg.Tracker.MaxSeries != 1024 {
		t.Fatalf("expected default max_series 1024, got %d", cfg.Tracker.MaxSeries)
	}
	if cfg.DB.SeriesTable != "progress_series" || cfg.DB.SnapshotTable != "progress_snapshots" {
		t.Fatalf("unexpected default tables: %+v", cfg.DB)
	}
	if cfg.RateLimit.Enabled || cfg.RateLimit.ObservationsPerSecond != 50 || cfg.RateLimit.Burst != 100 {
		t.Fatalf("unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
	if cfg.History.MaxFinished != 10000 {
		t.Fatalf("expected default history.max_finished 10000, got %d", cfg.History.MaxFinished)
	}
	if got := cfg.MaxBatchWait(); got != 500*time.Millisecond {
		t.Fatalf("expected 500ms batch wait, got %v", got)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  request_timeout_seconds: 5
auth:
  enabled: true
  api_key: secret
logging:
  development: false
  level: warn
  file: /var/log/eta.log
estimator:
  precision: 3
tracker:
  max_series: 10
  retain_finished: 2
hub:
  buffer_size: 16
  max_batch_events: 4
  max_batch_wait_ms: 50
  sink_timeout_seconds: 2
db:
  dsn: postgres://localhost/eta
  max_conns: 8
pubsub:
  project_id: demo
  topic_name: progress
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Logging.Development || cfg.Logging.Level != "warn" || cfg.Logging.File != "/var/log/eta.log" {
		t.Fatalf("expected logging overrides to apply: %+v", cfg.Logging)
	}
	if cfg.Estimator.Precision != 3 {
		t.Fatalf("expected precision 3, got %d", cfg.Estimator.Precision)
	}
	if cfg.Tracker.MaxSeries != 10 || cfg.Tracker.RetainFinished != 2 {
		t.Fatalf("expected tracker overrides to apply: %+v", cfg.Tracker)
	}
	if cfg.DB.DSN != "postgres://localhost/eta" || cfg.DB.MaxConns != 8 {
		t.Fatalf("expected db overrides to apply: %+v", cfg.DB)
	}
	if cfg.PubSub.TopicName != "progress" {
		t.Fatalf("expected pubsub topic, got %q", cfg.PubSub.TopicName)
	}
	if got := cfg.RequestTimeout(); got != 5*time.Second {
		t.Fatalf("expected request timeout 5s, got %v", got)
	}
	if got := cfg.SinkTimeout(); got != 2*time.Second {
		t.Fatalf("expected sink timeout 2s, got %v", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:    ServerConfig{Port: 8080, RequestTimeoutSecs: 10},
		Estimator: EstimatorConfig{Precision: 2},
		Tracker:   TrackerConfig{MaxSeries: 4},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "invalid request timeout",
			cfg: func() Config {
				c := base
				c.Server.RequestTimeoutSecs = 0
				return c
			}(),
			want: "server.request_timeout_seconds",
		},
		{
			name: "auth missing api key",
			cfg: func() Config {
				c := base
				c.Auth.Enabled = true
				return c
			}(),
			want: "auth.api_key",
		},
		{
			name: "precision out of range",
			cfg: func() Config {
				c := base
				c.Estimator.Precision = 12
				return c
			}(),
			want: "estimator.precision",
		},
		{
			name: "no series capacity",
			cfg: func() Config {
				c := base
				c.Tracker.MaxSeries = 0
				return c
			}(),
			want: "tracker.max_series",
		},
		{
			name: "topic without project",
			cfg: func() Config {
				c := base
				c.PubSub.TopicName = "progress"
				return c
			}(),
			want: "pubsub.project_id",
		},
		{
			name: "rate limit without rate",
			cfg: func() Config {
				c := base
				c.RateLimit.Enabled = true
				return c
			}(),
			want: "rate_limit.observations_per_second",
		},
		{
			name: "negative history cap",
			cfg: func() Config {
				c := base
				c.History.MaxFinished = -1
				return c
			}(),
			want: "history.max_finished",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
