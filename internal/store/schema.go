package store

import (
	"context"
	"fmt"
)

// Migrate creates the cache tables when they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bars (
			symbol     TEXT             NOT NULL,
			bar_date   DATE             NOT NULL,
			open       DOUBLE PRECISION NOT NULL,
			high       DOUBLE PRECISION NOT NULL,
			low        DOUBLE PRECISION NOT NULL,
			close      DOUBLE PRECISION NOT NULL,
			volume     BIGINT           NOT NULL DEFAULT 0,
			fetched_at TIMESTAMPTZ      NOT NULL,
			PRIMARY KEY (symbol, bar_date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bars_symbol_date ON bars(symbol, bar_date DESC)`,

		`CREATE TABLE IF NOT EXISTS quotes (
			symbol     TEXT             PRIMARY KEY,
			price      DOUBLE PRECISION NOT NULL,
			change     DOUBLE PRECISION NOT NULL DEFAULT 0,
			change_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
			prev_close DOUBLE PRECISION NOT NULL DEFAULT 0,
			day_low    DOUBLE PRECISION NOT NULL DEFAULT 0,
			day_high   DOUBLE PRECISION NOT NULL DEFAULT 0,
			volume     BIGINT           NOT NULL DEFAULT 0,
			quote_ts   TIMESTAMPTZ      NOT NULL,
			provider   TEXT             NOT NULL,
			fetched_at TIMESTAMPTZ      NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS refresh_marks (
			symbol       TEXT        PRIMARY KEY,
			attempted_at TIMESTAMPTZ NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
