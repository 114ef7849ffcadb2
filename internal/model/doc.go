// Package model defines shared data types used across the market data cache:
// OHLCV bars, bar series, quote snapshots, time horizons, and batch-refresh
// reports.
//
// Conventions:
//   - Prices: float64 in the instrument's quote currency
//   - Bar dates: time.Time normalized to midnight UTC, one bar per date
//   - Symbols: opaque strings; provider-specific tickers never leak here
package model
