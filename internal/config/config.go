package config

import "time"

// Config is the root configuration for the market data cache service.
type Config struct {
	Database  DBConfig        `yaml:"database"`
	Providers ProvidersConfig `yaml:"providers"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Refresh   RefreshConfig   `yaml:"refresh"`
	Server    ServerConfig    `yaml:"server"`
	Universe  UniverseConfig  `yaml:"universe"`
}

// DBConfig holds the PostgreSQL connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// ProvidersConfig holds upstream provider settings and priority ordering.
// Order slices list provider names highest priority first; a name absent
// from an order slice is not used for that operation.
type ProvidersConfig struct {
	HistoryOrder []string `yaml:"history_order"`
	QuoteOrder   []string `yaml:"quote_order"`

	Yahoo        YahooConfig        `yaml:"yahoo"`
	AlphaVantage AlphaVantageConfig `yaml:"alphavantage"`
	Stooq        StooqConfig        `yaml:"stooq"`
}

// YahooConfig holds Yahoo Finance chart API settings.
type YahooConfig struct {
	Enabled   bool              `yaml:"enabled"`
	BaseURL   string            `yaml:"base_url"`
	SymbolMap map[string]string `yaml:"symbol_map"`
}

// AlphaVantageConfig holds Alpha Vantage API settings, including its
// per-minute request cost budget.
type AlphaVantageConfig struct {
	Enabled     bool          `yaml:"enabled"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	RateCeiling int           `yaml:"rate_ceiling"` // cost units per window
	RateWindow  time.Duration `yaml:"rate_window"`
}

// StooqConfig holds Stooq CSV endpoint settings.
type StooqConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	Suffix  string `yaml:"suffix"` // market suffix, e.g. ".us"
}

// FetchConfig tunes the fallback orchestrator.
type FetchConfig struct {
	ProviderTimeout  time.Duration `yaml:"provider_timeout"`   // per-provider call timeout
	RetryBudget      int           `yaml:"retry_budget"`       // extra attempts after a rate limit
	Backoff          time.Duration `yaml:"backoff"`            // base rate-limit backoff
	BackoffJitterPct int           `yaml:"backoff_jitter_pct"` // +- percent jitter on backoff
}

// RefreshConfig tunes the batch refresh scheduler. Values are deployment
// tuning for an external execution-time ceiling, not invariants.
type RefreshConfig struct {
	StaleAfter      time.Duration `yaml:"stale_after"`       // coarse select threshold
	BatchSize       int           `yaml:"batch_size"`        // symbols per invocation
	Concurrency     int           `yaml:"concurrency"`       // concurrent fetches per sub-batch
	InterBatchDelay time.Duration `yaml:"inter_batch_delay"` // pause between sub-batches
	Horizon         string        `yaml:"horizon"`           // horizon refreshed in bulk
	Cron            string        `yaml:"cron"`              // cmd/refresher cadence
	RunOnStart      bool          `yaml:"run_on_start"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// UniverseConfig seeds the tradable symbol universe.
type UniverseConfig struct {
	Symbols []string `yaml:"symbols"`
}
