// Package provider defines the upstream market-data provider interfaces,
// the retryable/terminal error taxonomy, and the concrete providers
// (Yahoo Finance chart API, Alpha Vantage, Stooq).
//
// Providers are interchangeable: each maps the opaque internal symbol to its
// own ticker representation at the request boundary and normalizes responses
// into model.Bar / model.Quote. Priority ordering, retries, and fallback
// live in the fetch package, not here.
package provider
