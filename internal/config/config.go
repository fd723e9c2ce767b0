// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Load layers defaults, an optional YAML file and CALLLEDGER_* env vars.
// - External errors are wrapped with this package's sentinel kinds.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json output. Cloud Logging parses json.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr" validate:"required"`

	// ProjectID is the cloud project for storage, warehouse and lead store clients.
	ProjectID string `koanf:"project_id"`

	// StorageBackend selects the ledger object store: gcs or memory.
	StorageBackend string `koanf:"storage_backend" validate:"oneof=gcs memory"`

	// DefaultBucket and DefaultCSVPath fill routing entries that omit them.
	DefaultBucket  string `koanf:"default_bucket"`
	DefaultCSVPath string `koanf:"default_csv_path" validate:"required"`

	// AgentConfigURI points at an optional routing override, "bucket/path/agents.json".
	AgentConfigURI string `koanf:"agent_config_uri"`

	// RoutingStrict fails startup when the override is configured but unusable.
	RoutingStrict bool `koanf:"routing_strict"`

	// AnalyticsBackend selects the warehouse sink: bigquery, postgres or none.
	AnalyticsBackend string `koanf:"analytics_backend" validate:"oneof=bigquery postgres none"`

	// BQDataset and BQTable name the BigQuery call history table. Empty table disables it.
	BQDataset string `koanf:"bq_dataset"`
	BQTable   string `koanf:"bq_table"`

	// PostgresDSN is used when AnalyticsBackend is postgres.
	PostgresDSN string `koanf:"postgres_dsn" validate:"required_if=AnalyticsBackend postgres"`

	// FirestoreEnabled turns on lead updates for routes that opt in.
	FirestoreEnabled bool `koanf:"firestore_enabled"`

	// LeadsCollection is the Firestore collection holding lead documents.
	LeadsCollection string `koanf:"leads_collection" validate:"required"`

	// Ledger retry policy for generation conflicts.
	LedgerMaxAttempts      int `koanf:"ledger_max_attempts" validate:"min=2,max=20"`
	LedgerInitialBackoffMS int `koanf:"ledger_initial_backoff_ms" validate:"min=1"`
	LedgerMaxBackoffMS     int `koanf:"ledger_max_backoff_ms" validate:"gtefield=LedgerInitialBackoffMS"`

	// Side effect task queue.
	SideEffectQueueSize int `koanf:"side_effect_queue_size" validate:"min=1"`
	SideEffectWorkers   int `koanf:"side_effect_workers" validate:"min=1"`
	SideEffectTimeoutMS int `koanf:"side_effect_timeout_ms" validate:"min=1"`

	// MaxBodyBytes caps webhook request bodies.
	MaxBodyBytes int64 `koanf:"max_body_bytes" validate:"min=1024"`

	// RateLimitPerMinute limits webhook requests per client IP. Zero disables.
	RateLimitPerMinute int `koanf:"rate_limit_per_minute" validate:"min=0"`

	// Timezone renders call dates, IANA name or "Local".
	Timezone string `koanf:"timezone"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":8080",
		ProjectID:              "retell-calling",
		StorageBackend:         "gcs",
		DefaultBucket:          "retell-calling-reference-data",
		DefaultCSVPath:         "raw_leads/inbound_webhook.csv",
		AnalyticsBackend:       "bigquery",
		BQDataset:              "lead_warehouse",
		BQTable:                "retell_call_history",
		FirestoreEnabled:       true,
		LeadsCollection:        "leads",
		LedgerMaxAttempts:      4,
		LedgerInitialBackoffMS: 50,
		LedgerMaxBackoffMS:     1000,
		SideEffectQueueSize:    1024,
		SideEffectWorkers:      4,
		SideEffectTimeoutMS:    10_000,
		MaxBodyBytes:           5 << 20,
		Timezone:               "Local",
	}
}

// Validate checks field constraints and the timezone name.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("%w: timezone %q: %w", ErrInvalidConfig, c.Timezone, err)
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Timezone {
	case "", "Local":
		return time.Local, nil
	default:
		return time.LoadLocation(c.Timezone)
	}
}

// SideEffectTimeout returns the per-task deadline.
func (c *Config) SideEffectTimeout() time.Duration {
	return time.Duration(c.SideEffectTimeoutMS) * time.Millisecond
}

// LedgerBackoff returns the initial and maximum retry delays.
func (c *Config) LedgerBackoff() (initial, max time.Duration) {
	return time.Duration(c.LedgerInitialBackoffMS) * time.Millisecond,
		time.Duration(c.LedgerMaxBackoffMS) * time.Millisecond
}
