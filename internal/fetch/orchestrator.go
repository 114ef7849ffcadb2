package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"marketcache/internal/model"
	"marketcache/internal/provider"
	"marketcache/internal/staleness"
	"marketcache/internal/store"
)

// ErrAllProvidersExhausted is surfaced only when no provider succeeded AND
// no cached data exists to fall back on.
var ErrAllProvidersExhausted = errors.New("fetch: all providers exhausted")

// writeTimeout bounds the async cache write-back that follows a successful
// fetch.
const writeTimeout = 30 * time.Second

// Config tunes provider calls and rate-limit retries.
type Config struct {
	ProviderTimeout  time.Duration // per-provider call timeout
	RetryBudget      int           // extra attempts after a rate-limit response
	Backoff          time.Duration // base backoff before a rate-limit retry
	BackoffJitterPct int           // +- percent jitter applied to Backoff
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		ProviderTimeout:  10 * time.Second,
		RetryBudget:      2,
		Backoff:          10 * time.Second,
		BackoffJitterPct: 30,
	}
}

// Cache is the store surface the orchestrator needs.
type Cache interface {
	ReadSeries(ctx context.Context, symbol string, horizon model.Horizon) (*model.Series, error)
	ReadSeriesAny(ctx context.Context, symbol string, horizon model.Horizon) (*model.Series, error)
	WriteSeries(ctx context.Context, symbol string, bars []model.Bar) error
	ReadQuote(ctx context.Context, symbol string) (*model.Quote, error)
	WriteQuote(ctx context.Context, q *model.Quote) error
}

// Orchestrator serves quotes and history through the cache, falling back
// across providers in priority order when a live fetch is needed.
type Orchestrator struct {
	cfg     Config
	cache   Cache
	history []provider.HistoryProvider
	quotes  []provider.QuoteProvider
	co      *Coalescer
	logger  *slog.Logger

	// sleep is swapped out by tests to skip real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error

	writeWG sync.WaitGroup
}

// New creates an Orchestrator. Provider slices are highest priority first.
func New(cfg Config, cache Cache, history []provider.HistoryProvider, quotes []provider.QuoteProvider, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:     cfg,
		cache:   cache,
		history: history,
		quotes:  quotes,
		co:      NewCoalescer(),
		logger:  logger,
		sleep:   sleepCtx,
	}
}

// GetHistory returns the best available series for the symbol: the cached
// one when the staleness policy accepts it, otherwise a coalesced live
// fetch with cache fallback. It returns an error only when no provider
// succeeded and nothing usable is cached.
func (o *Orchestrator) GetHistory(ctx context.Context, symbol string, horizon model.Horizon) (*model.Series, error) {
	cached, err := o.cache.ReadSeries(ctx, symbol, horizon)
	if err == nil && staleness.Usable(cached, horizon, time.Now()) {
		return cached, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		// A broken cache read is not fatal: the live path may still serve.
		o.logger.Warn("cache read failed", "symbol", symbol, "horizon", horizon, "err", err)
	}

	return o.co.series(historyKey(symbol, horizon), func() (*model.Series, error) {
		return o.fetchHistory(ctx, symbol, horizon)
	})
}

// GetQuote returns a live quote through the synchronous provider fallback,
// degrading to the last cached quote when every provider fails.
func (o *Orchestrator) GetQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	return o.co.quote(quoteKey(symbol), func() (*model.Quote, error) {
		return o.fetchQuote(ctx, symbol)
	})
}

// fetchHistory walks the history providers in priority order and persists
// the first success.
func (o *Orchestrator) fetchHistory(ctx context.Context, symbol string, horizon model.Horizon) (*model.Series, error) {
	for _, p := range o.history {
		bars, err := attempt(ctx, o, p.Name(), func(callCtx context.Context) ([]model.Bar, error) {
			return p.FetchHistory(callCtx, symbol, horizon)
		})
		if err != nil {
			o.logger.Warn("history provider failed",
				"provider", p.Name(),
				"symbol", symbol,
				"horizon", horizon,
				"err", err,
			)
			continue
		}

		series := &model.Series{
			Symbol:    symbol,
			Horizon:   horizon,
			Bars:      bars,
			FetchedAt: time.Now().UTC(),
		}
		o.writeBarsAsync(symbol, bars)
		return series, nil
	}

	// Every provider failed: degrade to whatever the cache still holds.
	stale, err := o.cache.ReadSeriesAny(ctx, symbol, horizon)
	if err == nil {
		o.logger.Warn("serving stale series after provider exhaustion",
			"symbol", symbol,
			"horizon", horizon,
			"bars", len(stale.Bars),
		)
		return stale, nil
	}

	return nil, fmt.Errorf("%w: history %s/%s", ErrAllProvidersExhausted, symbol, horizon)
}

// fetchQuote walks the quote providers in priority order and persists the
// first success.
func (o *Orchestrator) fetchQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	for _, p := range o.quotes {
		q, err := attempt(ctx, o, p.Name(), func(callCtx context.Context) (*model.Quote, error) {
			return p.FetchQuote(callCtx, symbol)
		})
		if err != nil {
			o.logger.Warn("quote provider failed",
				"provider", p.Name(),
				"symbol", symbol,
				"err", err,
			)
			continue
		}

		o.writeQuoteAsync(q)
		return q, nil
	}

	cached, err := o.cache.ReadQuote(ctx, symbol)
	if err == nil {
		cached.Stale = true
		o.logger.Warn("serving stale quote after provider exhaustion",
			"symbol", symbol,
			"age", time.Since(cached.Timestamp),
		)
		return cached, nil
	}

	return nil, fmt.Errorf("%w: quote %s", ErrAllProvidersExhausted, symbol)
}

// attempt runs one provider call with a timeout, retrying rate-limit
// responses against the same provider within the retry budget. Terminal
// failures return immediately so the caller falls through to the next
// provider. Total attempts on a persistently rate-limited provider are
// RetryBudget+1.
func attempt[T any](ctx context.Context, o *Orchestrator, name string, call func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for try := 0; try <= o.cfg.RetryBudget; try++ {
		if try > 0 {
			backoff := o.jitteredBackoff()
			o.logger.Debug("rate limited, backing off",
				"provider", name,
				"attempt", try,
				"backoff", backoff,
			)
			if err := o.sleep(ctx, backoff); err != nil {
				return zero, err
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, o.cfg.ProviderTimeout)
		result, err := call(callCtx)
		cancel()

		if err == nil {
			return result, nil
		}
		lastErr = err

		if !provider.IsRateLimited(err) {
			// Terminal for this provider; no retry-after-timeout either.
			return zero, err
		}
	}

	return zero, lastErr
}

// jitteredBackoff returns the base backoff with +- jitter applied.
func (o *Orchestrator) jitteredBackoff() time.Duration {
	base := o.cfg.Backoff
	if base <= 0 {
		return 0
	}
	pct := o.cfg.BackoffJitterPct
	if pct <= 0 {
		return base
	}
	span := float64(base) * float64(pct) / 100
	jitter := (rand.Float64()*2 - 1) * span
	return base + time.Duration(jitter)
}

// writeBarsAsync persists fetched bars without blocking the caller. A
// write failure is logged, never surfaced: the fetch itself succeeded.
func (o *Orchestrator) writeBarsAsync(symbol string, bars []model.Bar) {
	o.writeWG.Add(1)
	go func() {
		defer o.writeWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		if err := o.cache.WriteSeries(ctx, symbol, bars); err != nil {
			o.logger.Error("async series write failed", "symbol", symbol, "err", err)
		}
	}()
}

func (o *Orchestrator) writeQuoteAsync(q *model.Quote) {
	o.writeWG.Add(1)
	go func() {
		defer o.writeWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		if err := o.cache.WriteQuote(ctx, q); err != nil {
			o.logger.Error("async quote write failed", "symbol", q.Symbol, "err", err)
		}
	}()
}

// Drain blocks until pending async cache writes finish. Called on shutdown
// and by tests.
func (o *Orchestrator) Drain() {
	o.writeWG.Wait()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
