// Package refresh drives time-boxed bulk refresh across the symbol
// universe, keeping the cache warm ahead of on-demand reads.
//
// Each invocation runs one Select -> Fetch -> Persist -> Report pass over a
// bounded slice of the universe and terminates well inside an external
// execution-time ceiling. All state between invocations lives in the cache
// store's refresh marks, so the scheduler is stateless and safely
// re-invokable at any cadence: the next invocation always recomputes "most
// stale" from current store state.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"marketcache/internal/model"
)

// Config tunes one refresh invocation. Values are deployment tuning for a
// specific execution-time ceiling, not business rules.
type Config struct {
	StaleAfter      time.Duration // coarse staleness threshold for Select
	BatchSize       int           // symbols per invocation
	Concurrency     int           // concurrent fetches per sub-batch
	InterBatchDelay time.Duration // pause between sub-batches
	Horizon         model.Horizon // horizon refreshed in bulk
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		StaleAfter:      20 * time.Hour,
		BatchSize:       8,
		Concurrency:     3,
		InterBatchDelay: 500 * time.Millisecond,
		Horizon:         model.Horizon1Y,
	}
}

// Marks is the store surface for selection and rotation.
type Marks interface {
	StaleSymbols(ctx context.Context, universe []string, olderThan time.Duration, limit int) ([]string, error)
	CountStale(ctx context.Context, universe []string, olderThan time.Duration) (int, error)
	MarkAttempt(ctx context.Context, symbols []string) error
}

// Fetcher is the on-demand fetch path the refresher shares with live reads.
type Fetcher interface {
	GetHistory(ctx context.Context, symbol string, horizon model.Horizon) (*model.Series, error)
}

// Universe yields the full symbol universe.
type Universe interface {
	Symbols() []string
}

// Refresher executes batch refresh invocations.
type Refresher struct {
	cfg      Config
	marks    Marks
	fetcher  Fetcher
	universe Universe
	logger   *slog.Logger
}

// New creates a Refresher.
func New(cfg Config, marks Marks, fetcher Fetcher, universe Universe, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		cfg:      cfg,
		marks:    marks,
		fetcher:  fetcher,
		universe: universe,
		logger:   logger,
	}
}

// Run executes one invocation. Per-symbol failures never abort the batch;
// they are reported in aggregate and surface over time through the symbol's
// refresh mark aging back into selection. Zero candidates is a valid
// no-op success meaning the universe is fully up to date.
func (r *Refresher) Run(ctx context.Context) (*model.RefreshReport, error) {
	start := time.Now()
	report := &model.RefreshReport{JobID: uuid.New()}
	symbols := r.universe.Symbols()

	// Select: most stale first, never-attempted before everything else.
	selected, err := r.marks.StaleSymbols(ctx, symbols, r.cfg.StaleAfter, r.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("select stale symbols: %w", err)
	}
	if len(selected) == 0 {
		report.Elapsed = time.Since(start)
		r.logger.Info("refresh invocation: fully up to date", "job_id", report.JobID)
		return report, nil
	}

	// Fetch: small concurrent sub-batches with a delay in between, so one
	// invocation cannot stampede the providers past their rate budgets.
	failed := r.fetchAll(ctx, selected)

	// Persist: successes were written by the fetch path itself. Stamp every
	// selected symbol, failures included, so broken symbols rotate to the
	// back of the queue instead of starving it.
	if err := r.marks.MarkAttempt(ctx, selected); err != nil {
		return nil, fmt.Errorf("mark attempts: %w", err)
	}

	// Report.
	report.Updated = len(selected) - len(failed)
	report.Failed = len(failed)
	report.FailedSymbols = failed
	report.Elapsed = time.Since(start)

	remaining, err := r.marks.CountStale(ctx, symbols, r.cfg.StaleAfter)
	if err != nil {
		r.logger.Warn("count stale failed", "err", err)
	} else {
		report.Remaining = remaining
		report.InvocationsLeft = (remaining + r.cfg.BatchSize - 1) / r.cfg.BatchSize
	}

	r.logger.Info("refresh invocation complete",
		"job_id", report.JobID,
		"updated", report.Updated,
		"failed", report.Failed,
		"remaining", report.Remaining,
		"elapsed", report.Elapsed,
	)
	return report, nil
}

// fetchAll fetches the selected symbols and returns the ones that failed.
// A series served from the stale-cache fallback counts as a failure here:
// the providers did not deliver, and the mark rotation plus the aggregate
// count are how that stays visible.
func (r *Refresher) fetchAll(ctx context.Context, selected []string) []string {
	var mu sync.Mutex
	var failed []string

	for batchStart := 0; batchStart < len(selected); batchStart += r.cfg.Concurrency {
		batchEnd := batchStart + r.cfg.Concurrency
		if batchEnd > len(selected) {
			batchEnd = len(selected)
		}

		var wg sync.WaitGroup
		for _, symbol := range selected[batchStart:batchEnd] {
			wg.Add(1)
			go func(symbol string) {
				defer wg.Done()

				s, err := r.fetcher.GetHistory(ctx, symbol, r.cfg.Horizon)
				if err != nil || s.Stale {
					if err != nil {
						r.logger.Warn("refresh fetch failed", "symbol", symbol, "err", err)
					} else {
						r.logger.Warn("refresh fetch degraded to stale cache", "symbol", symbol)
					}
					mu.Lock()
					failed = append(failed, symbol)
					mu.Unlock()
				}
			}(symbol)
		}
		wg.Wait()

		if batchEnd < len(selected) && r.cfg.InterBatchDelay > 0 {
			select {
			case <-ctx.Done():
				mu.Lock()
				defer mu.Unlock()
				return failed
			case <-time.After(r.cfg.InterBatchDelay):
			}
		}
	}

	return failed
}
