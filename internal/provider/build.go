package provider

import (
	"fmt"
	"log/slog"

	"marketcache/internal/config"
	"marketcache/internal/provider/ratelimit"
)

// FromConfig builds the configured providers and assembles them into the
// history and quote fallback chains, highest priority first. Each provider
// is constructed once and shared between both chains so Alpha Vantage's
// rate budget is accounted in one place.
func FromConfig(cfg config.ProvidersConfig, logger *slog.Logger) (history []HistoryProvider, quotes []QuoteProvider, err error) {
	built := make(map[string]any)

	if cfg.Yahoo.Enabled {
		opts := []YahooOption{WithYahooLogger(logger)}
		if cfg.Yahoo.BaseURL != "" {
			opts = append(opts, WithYahooBaseURL(cfg.Yahoo.BaseURL))
		}
		if len(cfg.Yahoo.SymbolMap) > 0 {
			opts = append(opts, WithYahooSymbolMap(cfg.Yahoo.SymbolMap))
		}
		built["yahoo"] = NewYahoo(opts...)
	}

	if cfg.AlphaVantage.Enabled {
		limiter := ratelimit.New(cfg.AlphaVantage.RateCeiling, cfg.AlphaVantage.RateWindow)
		opts := []AlphaVantageOption{
			WithAlphaVantageLimiter(limiter),
			WithAlphaVantageLogger(logger),
		}
		if cfg.AlphaVantage.BaseURL != "" {
			opts = append(opts, WithAlphaVantageBaseURL(cfg.AlphaVantage.BaseURL))
		}
		built["alphavantage"] = NewAlphaVantage(cfg.AlphaVantage.APIKey, opts...)
	}

	if cfg.Stooq.Enabled {
		opts := []StooqOption{
			WithStooqSuffix(cfg.Stooq.Suffix),
			WithStooqLogger(logger),
		}
		if cfg.Stooq.BaseURL != "" {
			opts = append(opts, WithStooqBaseURL(cfg.Stooq.BaseURL))
		}
		built["stooq"] = NewStooq(opts...)
	}

	for _, name := range cfg.HistoryOrder {
		p, ok := built[name].(HistoryProvider)
		if !ok {
			return nil, nil, fmt.Errorf("history_order names %q, which is not an enabled provider", name)
		}
		history = append(history, p)
	}
	for _, name := range cfg.QuoteOrder {
		p, ok := built[name].(QuoteProvider)
		if !ok {
			return nil, nil, fmt.Errorf("quote_order names %q, which is not an enabled provider", name)
		}
		quotes = append(quotes, p)
	}
	return history, quotes, nil
}
