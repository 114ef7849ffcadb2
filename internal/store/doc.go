// Package store is the persistent cache for bars, quotes, and refresh
// marks, backed by PostgreSQL.
//
// Write semantics: idempotent upserts keyed by (symbol, bar_date) for bars
// and by symbol for quotes, last-write-wins, no historical revisions. Bar
// writes are chunked to respect payload limits, and a failed chunk never
// aborts its siblings. Nothing in this package deletes data; retention is an
// external concern.
package store
