package config

import (
	"errors"
	"fmt"
)

var knownProviders = map[string]bool{
	"yahoo":        true,
	"alphavantage": true,
	"stooq":        true,
}

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if len(c.Providers.HistoryOrder) == 0 {
		return errors.New("providers.history_order is empty: enable at least one provider")
	}
	if len(c.Providers.QuoteOrder) == 0 {
		return errors.New("providers.quote_order is empty: enable at least one provider")
	}
	for _, name := range append(append([]string{}, c.Providers.HistoryOrder...), c.Providers.QuoteOrder...) {
		if !knownProviders[name] {
			return fmt.Errorf("unknown provider %q in priority order", name)
		}
	}
	if alphaInUse(c.Providers.AlphaVantage, c.Providers.HistoryOrder, c.Providers.QuoteOrder) &&
		c.Providers.AlphaVantage.APIKey == "" {
		return errors.New("providers.alphavantage.api_key is required when alphavantage is in use")
	}

	if c.Fetch.RetryBudget < 0 {
		return errors.New("fetch.retry_budget must be >= 0")
	}
	if c.Fetch.BackoffJitterPct < 0 || c.Fetch.BackoffJitterPct > 100 {
		return fmt.Errorf("fetch.backoff_jitter_pct must be between 0 and 100, got %d", c.Fetch.BackoffJitterPct)
	}

	if c.Refresh.BatchSize < 1 {
		return errors.New("refresh.batch_size must be >= 1")
	}
	if c.Refresh.Concurrency < 1 {
		return errors.New("refresh.concurrency must be >= 1")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if len(c.Universe.Symbols) == 0 {
		return errors.New("universe.symbols is empty")
	}

	return nil
}

func alphaInUse(av AlphaVantageConfig, orders ...[]string) bool {
	if !av.Enabled {
		return false
	}
	for _, order := range orders {
		for _, name := range order {
			if name == "alphavantage" {
				return true
			}
		}
	}
	return false
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
