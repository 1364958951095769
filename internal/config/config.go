// Package config provides configuration loading for dialogd.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/dialogd/internal/budget"
	"github.com/fyrsmithlabs/dialogd/internal/http"
	"github.com/fyrsmithlabs/dialogd/internal/knowledge"
	"github.com/fyrsmithlabs/dialogd/internal/logging"
	"github.com/fyrsmithlabs/dialogd/internal/telemetry"
	"github.com/fyrsmithlabs/dialogd/internal/usage"
)

// Config is the root dialogd configuration.
type Config struct {
	Server    ServerConfig     `koanf:"server"`
	Logging   logging.Config   `koanf:"logging"`
	Telemetry telemetry.Config `koanf:"telemetry"`
	Store     StoreConfig      `koanf:"store"`
	Budget    BudgetConfig     `koanf:"budget"`
	Knowledge knowledge.Config `koanf:"knowledge"`
	LLM       LLMConfig        `koanf:"llm"`
	NATS      NATSConfig       `koanf:"nats"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	RateLimit       float64       `koanf:"rate_limit"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// HTTPConfig converts the server section for the http package.
func (s ServerConfig) HTTPConfig() *http.Config {
	return &http.Config{
		Host:      s.Host,
		Port:      s.Port,
		RateLimit: s.RateLimit,
	}
}

// StoreConfig selects the session persistence backend.
type StoreConfig struct {
	// Provider is "memory" or "sqlite".
	Provider string `koanf:"provider"`

	// Path is the SQLite database file, used by the sqlite provider.
	// The budget ledger, confidence scores and usage records share it.
	Path string `koanf:"path"`
}

// BudgetConfig holds cost control settings.
type BudgetConfig struct {
	DailyBudgetUSD float64 `koanf:"daily_budget_usd"`
}

// LLMConfig selects the analysis model provider.
type LLMConfig struct {
	// Provider is "openai" (OpenAI-compatible endpoints) or "static".
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   string `koanf:"api_key"`
}

// NATSConfig controls usage event publishing.
type NATSConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// applyDefaults fills in missing values.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = 10
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if len(cfg.Logging.OutputPaths) == 0 {
		cfg.Logging.OutputPaths = []string{"stderr"}
	}

	defaults := telemetry.NewDefaultConfig()
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = defaults.Endpoint
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = defaults.ServiceName
	}
	if cfg.Telemetry.ServiceVersion == "" {
		cfg.Telemetry.ServiceVersion = defaults.ServiceVersion
	}
	if cfg.Telemetry.Sampling.Rate == 0 {
		cfg.Telemetry.Sampling = defaults.Sampling
	}
	if cfg.Telemetry.Metrics.ExportInterval == 0 {
		cfg.Telemetry.Metrics = defaults.Metrics
	}
	if cfg.Telemetry.ShutdownTimeout == 0 {
		cfg.Telemetry.ShutdownTimeout = defaults.ShutdownTimeout
	}

	if cfg.Store.Provider == "" {
		cfg.Store.Provider = "memory"
	}

	if cfg.Budget.DailyBudgetUSD == 0 {
		cfg.Budget.DailyBudgetUSD = budget.DefaultDailyBudgetUSD
	}

	cfg.Knowledge.ApplyDefaults()

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "static"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "deepseek-chat"
	}

	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = usage.DefaultSubjectPrefix
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative")
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	switch c.Store.Provider {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite provider")
		}
	default:
		return fmt.Errorf("store.provider must be memory or sqlite, got %q", c.Store.Provider)
	}

	if c.Budget.DailyBudgetUSD <= 0 {
		return fmt.Errorf("budget.daily_budget_usd must be positive")
	}

	if err := c.Knowledge.Validate(); err != nil {
		return fmt.Errorf("knowledge: %w", err)
	}

	switch c.LLM.Provider {
	case "openai", "static":
	default:
		return fmt.Errorf("llm.provider must be openai or static, got %q", c.LLM.Provider)
	}
	if c.LLM.Provider == "openai" && c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required for the openai provider")
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats is enabled")
	}

	return nil
}
