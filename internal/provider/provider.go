package provider

import (
	"context"

	"marketcache/internal/model"
)

// QuoteProvider fetches the latest price snapshot for a symbol.
type QuoteProvider interface {
	Name() string
	FetchQuote(ctx context.Context, symbol string) (*model.Quote, error)
}

// HistoryProvider fetches daily OHLCV bars covering the horizon's lookback
// window. Returned bars are ascending by date with at most one per date.
type HistoryProvider interface {
	Name() string
	FetchHistory(ctx context.Context, symbol string, horizon model.Horizon) ([]model.Bar, error)
}
