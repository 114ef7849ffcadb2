// Package fetch is the provider fallback orchestrator and request
// coalescer: the single path through which quotes and history reach the
// cache.
//
// Providers are tried strictly in priority order. Rate-limit responses are
// retried against the same provider with jittered backoff inside a fixed
// budget; any other failure falls through to the next provider immediately.
// When every provider fails, history and quote reads degrade to the store's
// stale-but-present data before surfacing ErrAllProvidersExhausted.
//
// Concurrent identical requests are coalesced in-process so at most one
// upstream fetch is in flight per (symbol, horizon) key. The coalescer is
// scoped to this process; duplicate fetches across instances are accepted.
package fetch
