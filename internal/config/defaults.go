package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultDBPort    = 5432
	DefaultDBSSLMode = "prefer"
	DefaultMaxConns  = 10
	DefaultMinConns  = 2

	DefaultProviderTimeout  = 10 * time.Second
	DefaultRetryBudget      = 2
	DefaultBackoff          = 10 * time.Second
	DefaultBackoffJitterPct = 30

	DefaultRateCeiling = 1200
	DefaultRateWindow  = time.Minute
	DefaultStooqSuffix = ".us"

	DefaultStaleAfter      = 20 * time.Hour
	DefaultRefreshBatch    = 8
	DefaultRefreshConc     = 3
	DefaultInterBatchDelay = 500 * time.Millisecond
	DefaultRefreshHorizon  = "1y"
	DefaultRefreshCron     = "*/10 * * * *"

	DefaultServerPort      = 8080
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

func (c *Config) applyDefaults() {
	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Provider defaults: every enabled provider in priority order.
	if len(c.Providers.HistoryOrder) == 0 {
		c.Providers.HistoryOrder = c.enabledProviders()
	}
	if len(c.Providers.QuoteOrder) == 0 {
		c.Providers.QuoteOrder = c.enabledProviders()
	}
	if c.Providers.AlphaVantage.RateCeiling == 0 {
		c.Providers.AlphaVantage.RateCeiling = DefaultRateCeiling
	}
	if c.Providers.AlphaVantage.RateWindow == 0 {
		c.Providers.AlphaVantage.RateWindow = DefaultRateWindow
	}
	if c.Providers.Stooq.Suffix == "" {
		c.Providers.Stooq.Suffix = DefaultStooqSuffix
	}

	// Fetch defaults
	if c.Fetch.ProviderTimeout == 0 {
		c.Fetch.ProviderTimeout = DefaultProviderTimeout
	}
	if c.Fetch.RetryBudget == 0 {
		c.Fetch.RetryBudget = DefaultRetryBudget
	}
	if c.Fetch.Backoff == 0 {
		c.Fetch.Backoff = DefaultBackoff
	}
	if c.Fetch.BackoffJitterPct == 0 {
		c.Fetch.BackoffJitterPct = DefaultBackoffJitterPct
	}

	// Refresh defaults
	if c.Refresh.StaleAfter == 0 {
		c.Refresh.StaleAfter = DefaultStaleAfter
	}
	if c.Refresh.BatchSize == 0 {
		c.Refresh.BatchSize = DefaultRefreshBatch
	}
	if c.Refresh.Concurrency == 0 {
		c.Refresh.Concurrency = DefaultRefreshConc
	}
	if c.Refresh.InterBatchDelay == 0 {
		c.Refresh.InterBatchDelay = DefaultInterBatchDelay
	}
	if c.Refresh.Horizon == "" {
		c.Refresh.Horizon = DefaultRefreshHorizon
	}
	if c.Refresh.Cron == "" {
		c.Refresh.Cron = DefaultRefreshCron
	}

	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// enabledProviders returns the built-in priority ordering: scrape-style
// primary, paid secondary, public tertiary.
func (c *Config) enabledProviders() []string {
	var order []string
	if c.Providers.Yahoo.Enabled {
		order = append(order, "yahoo")
	}
	if c.Providers.AlphaVantage.Enabled {
		order = append(order, "alphavantage")
	}
	if c.Providers.Stooq.Enabled {
		order = append(order, "stooq")
	}
	return order
}
