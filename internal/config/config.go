// Package config provides configuration loading for fieldgovd.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config is the full fieldgovd configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Jira       JiraConfig       `koanf:"jira"`
	Catalog    CatalogConfig    `koanf:"catalog"`
	Governance GovernanceConfig `koanf:"governance"`
	Upstream   UpstreamConfig   `koanf:"upstream"`
	Worker     WorkerConfig     `koanf:"worker"`
	Sweep      SweepConfig      `koanf:"sweep"`
	Webhook    WebhookConfig    `koanf:"webhook"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// JiraConfig holds tracker connection settings.
type JiraConfig struct {
	BaseURL           string        `koanf:"base_url"`
	Email             string        `koanf:"email"`
	APIToken          string        `koanf:"api_token"`
	BearerToken       string        `koanf:"bearer_token"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
}

// CatalogConfig tunes the schema catalog cache.
type CatalogConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

// GovernanceConfig tunes duplicate detection and the policy rule set.
type GovernanceConfig struct {
	// SimilarityThreshold is the near-duplicate cutoff (0.0-1.0).
	SimilarityThreshold float64 `koanf:"similarity_threshold"`

	// ReservedNames are display names that may never be requested.
	ReservedNames []string `koanf:"reserved_names"`

	// MaxOptions caps the option set size for choice fields.
	MaxOptions int `koanf:"max_options"`

	// Screens are the default screen IDs new fields are bound to.
	Screens []string `koanf:"screens"`
}

// UpstreamConfig controls the retry policy for tracker write calls.
type UpstreamConfig struct {
	MaxRetries        int           `koanf:"max_retries"`
	InitialBackoff    time.Duration `koanf:"initial_backoff"`
	MaxBackoff        time.Duration `koanf:"max_backoff"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`
}

// WorkerConfig sizes the request worker pool.
type WorkerConfig struct {
	Count     int `koanf:"count"`
	QueueSize int `koanf:"queue_size"`
}

// SweepConfig controls the periodic governance sweep.
type SweepConfig struct {
	Enabled      bool          `koanf:"enabled"`
	Interval     time.Duration `koanf:"interval"`
	JQL          string        `koanf:"jql"`
	BatchLimit   int           `koanf:"batch_limit"`
	StaleAfter   time.Duration `koanf:"stale_after"`
	DefaultOwner string        `koanf:"default_owner"`
	DefaultLabel string        `koanf:"default_label"`
}

// WebhookConfig holds inbound hook authentication.
type WebhookConfig struct {
	Secret string `koanf:"secret"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Validation errors.
var (
	ErrJiraBaseURLRequired = errors.New("jira.base_url is required")
	ErrJiraCredsRequired   = errors.New("jira credentials required: email+api_token or bearer_token")
	ErrWebhookSecretWeak   = errors.New("webhook.secret must be set and not a placeholder")
)

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Jira.BaseURL == "" {
		return ErrJiraBaseURLRequired
	}
	if (c.Jira.Email == "" || c.Jira.APIToken == "") && c.Jira.BearerToken == "" {
		return ErrJiraCredsRequired
	}
	if c.Webhook.Secret == "" || c.Webhook.Secret == "changeme" {
		return ErrWebhookSecretWeak
	}
	if c.Governance.SimilarityThreshold < 0 || c.Governance.SimilarityThreshold > 1 {
		return fmt.Errorf("governance.similarity_threshold must be between 0.0 and 1.0, got %v", c.Governance.SimilarityThreshold)
	}
	if c.Upstream.MaxRetries < 0 {
		return fmt.Errorf("upstream.max_retries must not be negative, got %d", c.Upstream.MaxRetries)
	}
	if c.Worker.Count < 1 {
		return fmt.Errorf("worker.count must be at least 1, got %d", c.Worker.Count)
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// applyDefaults fills in defaults for unset fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Jira.Timeout == 0 {
		cfg.Jira.Timeout = 15 * time.Second
	}
	if cfg.Jira.RequestsPerSecond == 0 {
		cfg.Jira.RequestsPerSecond = 10
	}

	if cfg.Catalog.TTL == 0 {
		cfg.Catalog.TTL = 5 * time.Minute
	}

	if cfg.Governance.SimilarityThreshold == 0 {
		cfg.Governance.SimilarityThreshold = 0.85
	}
	if cfg.Governance.MaxOptions == 0 {
		cfg.Governance.MaxOptions = 20
	}

	if cfg.Upstream.MaxRetries == 0 {
		cfg.Upstream.MaxRetries = 3
	}
	if cfg.Upstream.InitialBackoff == 0 {
		cfg.Upstream.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.Upstream.MaxBackoff == 0 {
		cfg.Upstream.MaxBackoff = 10 * time.Second
	}
	if cfg.Upstream.BackoffMultiplier == 0 {
		cfg.Upstream.BackoffMultiplier = 2.0
	}

	if cfg.Worker.Count == 0 {
		cfg.Worker.Count = 4
	}
	if cfg.Worker.QueueSize == 0 {
		cfg.Worker.QueueSize = 64
	}

	if cfg.Sweep.Interval == 0 {
		cfg.Sweep.Interval = time.Hour
	}
	if cfg.Sweep.BatchLimit == 0 {
		cfg.Sweep.BatchLimit = 50
	}
	if cfg.Sweep.StaleAfter == 0 {
		cfg.Sweep.StaleAfter = 7 * 24 * time.Hour
	}
	if cfg.Sweep.JQL == "" {
		cfg.Sweep.JQL = "statusCategory != Done ORDER BY updated ASC"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}
