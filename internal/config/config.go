// Package config loads the ingestion engine's process configuration:
// defaults, an optional YAML file, then environment overrides, in that
// order, matching the teacher's layered Load() convention.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DatabaseConfig controls the Postgres pool backing the artifact and
// config-key/value stores (§3, §6).
type DatabaseConfig struct {
	DSN             string `json:"dsn" yaml:"dsn" env:"DATABASE_DSN"`
	MaxOpenConns    int    `json:"max_open_conns" yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `json:"max_idle_conns" yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `json:"conn_max_lifetime" yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
	MigrateOnStart  bool   `json:"migrate_on_start" yaml:"migrate_on_start" env:"DATABASE_MIGRATE_ON_START"`
}

// QueueConfig addresses the SQS-compatible FIFO ingest/webhook lanes and
// the KMS-encrypted S3 large-payload bucket (§5, §6).
type QueueConfig struct {
	Region          string `json:"region" yaml:"region" env:"QUEUE_REGION"`
	IngestQueueURL  string `json:"ingest_queue_url" yaml:"ingest_queue_url" env:"QUEUE_INGEST_URL"`
	WebhookQueueURL string `json:"webhook_queue_url" yaml:"webhook_queue_url" env:"QUEUE_WEBHOOK_URL"`
	BlobBucket      string `json:"blob_bucket" yaml:"blob_bucket" env:"QUEUE_BLOB_BUCKET"`
	BlobKMSKeyID    string `json:"blob_kms_key_id" yaml:"blob_kms_key_id" env:"QUEUE_BLOB_KMS_KEY_ID"`
}

// VaultConfig addresses the Azure Key Vault credentials store (§6).
type VaultConfig struct {
	URL string `json:"url" yaml:"url" env:"VAULT_URL"`
}

// CDCConfig controls the CDC manager's per-tenant listener fleet (§4.4).
type CDCConfig struct {
	Endpoint          string `json:"endpoint" yaml:"endpoint" env:"CDC_ENDPOINT"`
	RepollInterval    int    `json:"repoll_interval_seconds" yaml:"repoll_interval_seconds" env:"CDC_REPOLL_INTERVAL_SECONDS"`
	MaxBackoffSeconds int    `json:"max_backoff_seconds" yaml:"max_backoff_seconds" env:"CDC_MAX_BACKOFF_SECONDS"`
}

// WorkerConfig controls the worker pool's concurrency and visibility
// budget (§5).
type WorkerConfig struct {
	Concurrency              int `json:"concurrency" yaml:"concurrency" env:"WORKER_CONCURRENCY"`
	VisibilityTimeoutSeconds int `json:"visibility_timeout_seconds" yaml:"visibility_timeout_seconds" env:"WORKER_VISIBILITY_TIMEOUT_SECONDS"`
	PollWaitSeconds          int `json:"poll_wait_seconds" yaml:"poll_wait_seconds" env:"WORKER_POLL_WAIT_SECONDS"`
}

// PrunerConfig controls the reconciliation sweep schedule (§4.6).
type PrunerConfig struct {
	CronSchedule string `json:"cron_schedule" yaml:"cron_schedule" env:"PRUNER_CRON_SCHEDULE"`
}

// IndexConfig addresses the downstream index service, an external
// collaborator specified only at its interface: delete-by-doc-id and
// list-indexed-doc-ids per tenant namespace (§4.6).
type IndexConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url" env:"INDEX_SERVICE_URL"`
	Timeout int    `json:"timeout_seconds" yaml:"timeout_seconds" env:"INDEX_SERVICE_TIMEOUT_SECONDS"`
}

// LoggingConfig controls structured log output, mirroring the teacher's
// logger.go configuration surface.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" env:"LOG_LEVEL"`
	Format string `json:"format" yaml:"format" env:"LOG_FORMAT"`
}

// HealthConfig controls the liveness/readiness HTTP surface (§6).
type HealthConfig struct {
	Host string `json:"host" yaml:"host" env:"HEALTH_HOST"`
	Port int    `json:"port" yaml:"port" env:"HEALTH_PORT"`
}

// MetricsConfig controls the Prometheus scrape surface.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" env:"METRICS_ENABLED"`
	Path    string `json:"path" yaml:"path" env:"METRICS_PATH"`
}

// Config is the top-level process configuration for cmd/worker,
// cmd/cdcmanager, and cmd/pruner. All three entrypoints load the same
// struct and use only the sections they need.
type Config struct {
	ServiceName string         `json:"service_name" yaml:"service_name" env:"SERVICE_NAME"`
	Database    DatabaseConfig `json:"database" yaml:"database"`
	Queue       QueueConfig    `json:"queue" yaml:"queue"`
	Vault       VaultConfig    `json:"vault" yaml:"vault"`
	CDC         CDCConfig      `json:"cdc" yaml:"cdc"`
	Worker      WorkerConfig   `json:"worker" yaml:"worker"`
	Pruner      PrunerConfig   `json:"pruner" yaml:"pruner"`
	Index       IndexConfig    `json:"index" yaml:"index"`
	Logging     LoggingConfig  `json:"logging" yaml:"logging"`
	Health      HealthConfig   `json:"health" yaml:"health"`
	Metrics     MetricsConfig  `json:"metrics" yaml:"metrics"`
}

// New returns a Config populated with the defaults every entrypoint
// falls back to when a section is left unconfigured.
func New() *Config {
	return &Config{
		ServiceName: "ingestflow",
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
			MigrateOnStart:  true,
		},
		Queue: QueueConfig{
			Region: "us-east-1",
		},
		CDC: CDCConfig{
			RepollInterval:    60,
			MaxBackoffSeconds: 300,
		},
		Worker: WorkerConfig{
			Concurrency:              8,
			VisibilityTimeoutSeconds: 30,
			PollWaitSeconds:          10,
		},
		Pruner: PrunerConfig{
			CronSchedule: "0 3 * * *",
		},
		Index: IndexConfig{
			Timeout: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Health: HealthConfig{
			Host: "0.0.0.0",
			Port: 8081,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads .env (if present), an optional YAML file named by
// CONFIG_FILE or configs/config.yaml, and finally environment variable
// overrides, in that priority order — matching the teacher's layered
// Load() convention.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	path := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	if path == "" {
		path = "configs/config.yaml"
	}
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		cfg.Database.DSN = dsn
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}
