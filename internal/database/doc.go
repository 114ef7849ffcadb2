// Package database provides PostgreSQL connection pool management for the
// market data cache. Bars, quotes, and refresh marks all live in one
// database; the pool is shared by every component that touches storage.
package database
