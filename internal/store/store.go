package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"marketcache/internal/model"
)

// ErrNotFound is returned when no cached data exists for the request.
var ErrNotFound = errors.New("store: not found")

// maxBatchRows bounds one upsert batch to stay under storage payload
// limits. Larger writes are split into sibling chunks.
const maxBatchRows = 100

// Store is the persistent cache over a PostgreSQL pool.
type Store struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store.
func New(db *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// ReadSeries returns cached bars for the symbol inside the horizon's
// lookback window, ascending by date. ErrNotFound when no bar exists.
func (s *Store) ReadSeries(ctx context.Context, symbol string, horizon model.Horizon) (*model.Series, error) {
	cutoff := model.Day(time.Now()).AddDate(0, 0, -horizon.Params().LookbackDays)
	return s.readSeries(ctx, symbol, horizon, &cutoff, false)
}

// ReadSeriesAny is the stale-but-present read path used as a last resort
// when every live provider fails. It ignores the lookback cutoff and any
// staleness consideration but still requires at least one bar.
func (s *Store) ReadSeriesAny(ctx context.Context, symbol string, horizon model.Horizon) (*model.Series, error) {
	return s.readSeries(ctx, symbol, horizon, nil, true)
}

func (s *Store) readSeries(ctx context.Context, symbol string, horizon model.Horizon, cutoff *time.Time, stale bool) (*model.Series, error) {
	query := `
		SELECT bar_date, open, high, low, close, volume, fetched_at
		FROM bars
		WHERE symbol = $1`
	args := []any{symbol}
	if cutoff != nil {
		query += ` AND bar_date >= $2`
		args = append(args, *cutoff)
	}
	query += ` ORDER BY bar_date ASC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	series := &model.Series{Symbol: symbol, Horizon: horizon, Stale: stale}
	for rows.Next() {
		var b model.Bar
		var fetchedAt time.Time
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &fetchedAt); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Date = model.Day(b.Date)
		if fetchedAt.After(series.FetchedAt) {
			series.FetchedAt = fetchedAt
		}
		series.Bars = append(series.Bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bars: %w", err)
	}
	if len(series.Bars) == 0 {
		return nil, ErrNotFound
	}
	return series, nil
}

// WriteSeries upserts bars keyed by (symbol, date), last-write-wins.
// Writes are chunked; a failed chunk is logged and reported but does not
// abort sibling chunks, so a transient failure loses at most one chunk.
func (s *Store) WriteSeries(ctx context.Context, symbol string, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	fetchedAt := time.Now().UTC()
	var failed int
	var lastErr error

	for _, chunk := range chunkBars(bars, maxBatchRows) {
		if err := s.writeChunk(ctx, symbol, chunk, fetchedAt); err != nil {
			failed++
			lastErr = err
			s.logger.Error("bar chunk write failed",
				"symbol", symbol,
				"rows", len(chunk),
				"err", err,
			)
		}
	}

	if failed > 0 {
		return fmt.Errorf("write series %s: %d chunk(s) failed: %w", symbol, failed, lastErr)
	}
	return nil
}

func (s *Store) writeChunk(ctx context.Context, symbol string, bars []model.Bar, fetchedAt time.Time) error {
	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(`
			INSERT INTO bars (symbol, bar_date, open, high, low, close, volume, fetched_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (symbol, bar_date) DO UPDATE SET
				open = EXCLUDED.open,
				high = EXCLUDED.high,
				low = EXCLUDED.low,
				close = EXCLUDED.close,
				volume = EXCLUDED.volume,
				fetched_at = EXCLUDED.fetched_at
		`, symbol, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume, fetchedAt)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for range bars {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// ReadQuote returns the cached quote for the symbol, ErrNotFound when none
// has ever been written.
func (s *Store) ReadQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	q := &model.Quote{Symbol: symbol}
	err := s.db.QueryRow(ctx, `
		SELECT price, change, change_pct, prev_close, day_low, day_high, volume, quote_ts, provider
		FROM quotes
		WHERE symbol = $1
	`, symbol).Scan(&q.Price, &q.Change, &q.ChangePct, &q.PrevClose, &q.DayLow, &q.DayHigh,
		&q.Volume, &q.Timestamp, &q.Provider)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query quote: %w", err)
	}
	return q, nil
}

// WriteQuote overwrites the symbol's quote row.
func (s *Store) WriteQuote(ctx context.Context, q *model.Quote) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO quotes (symbol, price, change, change_pct, prev_close, day_low, day_high, volume, quote_ts, provider, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (symbol) DO UPDATE SET
			price = EXCLUDED.price,
			change = EXCLUDED.change,
			change_pct = EXCLUDED.change_pct,
			prev_close = EXCLUDED.prev_close,
			day_low = EXCLUDED.day_low,
			day_high = EXCLUDED.day_high,
			volume = EXCLUDED.volume,
			quote_ts = EXCLUDED.quote_ts,
			provider = EXCLUDED.provider,
			fetched_at = EXCLUDED.fetched_at
	`, q.Symbol, q.Price, q.Change, q.ChangePct, q.PrevClose, q.DayLow, q.DayHigh,
		q.Volume, q.Timestamp, q.Provider, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert quote: %w", err)
	}
	return nil
}

// chunkBars splits bars into slices of at most size rows.
func chunkBars(bars []model.Bar, size int) [][]model.Bar {
	if size < 1 {
		size = 1
	}
	chunks := make([][]model.Bar, 0, (len(bars)+size-1)/size)
	for start := 0; start < len(bars); start += size {
		end := start + size
		if end > len(bars) {
			end = len(bars)
		}
		chunks = append(chunks, bars[start:end])
	}
	return chunks
}
