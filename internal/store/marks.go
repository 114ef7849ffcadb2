package store

import (
	"context"
	"fmt"
	"time"
)

// StaleSymbols returns up to limit symbols from the universe whose refresh
// mark is missing or older than olderThan, oldest first with never-attempted
// symbols first. This is the batch scheduler's Select step; its threshold is
// deliberately coarser than the per-horizon staleness policy.
func (s *Store) StaleSymbols(ctx context.Context, universe []string, olderThan time.Duration, limit int) ([]string, error) {
	threshold := time.Now().UTC().Add(-olderThan)

	rows, err := s.db.Query(ctx, `
		SELECT u.symbol
		FROM unnest($1::text[]) AS u(symbol)
		LEFT JOIN refresh_marks rm ON rm.symbol = u.symbol
		WHERE rm.attempted_at IS NULL OR rm.attempted_at < $2
		ORDER BY rm.attempted_at ASC NULLS FIRST, u.symbol ASC
		LIMIT $3
	`, universe, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("query stale symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		symbols = append(symbols, sym)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale symbols: %w", err)
	}
	return symbols, nil
}

// CountStale returns how many universe symbols are currently past the
// refresh threshold; the scheduler reports it as remaining work.
func (s *Store) CountStale(ctx context.Context, universe []string, olderThan time.Duration) (int, error) {
	threshold := time.Now().UTC().Add(-olderThan)

	var n int
	err := s.db.QueryRow(ctx, `
		SELECT count(*)
		FROM unnest($1::text[]) AS u(symbol)
		LEFT JOIN refresh_marks rm ON rm.symbol = u.symbol
		WHERE rm.attempted_at IS NULL OR rm.attempted_at < $2
	`, universe, threshold).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count stale symbols: %w", err)
	}
	return n, nil
}

// MarkAttempt stamps attempted_at for every given symbol, including ones
// whose fetch failed. Failed symbols rotate to the back of the staleness
// queue instead of being retried every invocation, so one permanently
// broken symbol cannot starve the rest of the universe.
func (s *Store) MarkAttempt(ctx context.Context, symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO refresh_marks (symbol, attempted_at)
		SELECT u.symbol, $2
		FROM unnest($1::text[]) AS u(symbol)
		ON CONFLICT (symbol) DO UPDATE SET attempted_at = EXCLUDED.attempted_at
	`, symbols, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark attempts: %w", err)
	}
	return nil
}
