package fetch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketcache/internal/model"
	"marketcache/internal/provider"
	"marketcache/internal/store"
)

// fakeCache is an in-memory Cache with controllable failure modes.
type fakeCache struct {
	mu         sync.Mutex
	series     map[string][]model.Bar
	quotes     map[string]model.Quote
	failWrites bool
	writes     int
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		series: make(map[string][]model.Bar),
		quotes: make(map[string]model.Quote),
	}
}

func (f *fakeCache) ReadSeries(_ context.Context, symbol string, horizon model.Horizon) (*model.Series, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bars, ok := f.series[symbol]
	if !ok || len(bars) == 0 {
		return nil, store.ErrNotFound
	}
	return &model.Series{Symbol: symbol, Horizon: horizon, Bars: bars, FetchedAt: time.Now()}, nil
}

func (f *fakeCache) ReadSeriesAny(ctx context.Context, symbol string, horizon model.Horizon) (*model.Series, error) {
	s, err := f.ReadSeries(ctx, symbol, horizon)
	if err != nil {
		return nil, err
	}
	s.Stale = true
	return s, nil
}

func (f *fakeCache) WriteSeries(_ context.Context, symbol string, bars []model.Bar) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.failWrites {
		return errors.New("disk on fire")
	}
	f.series[symbol] = bars
	return nil
}

func (f *fakeCache) ReadQuote(_ context.Context, symbol string) (*model.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.quotes[symbol]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &q, nil
}

func (f *fakeCache) WriteQuote(_ context.Context, q *model.Quote) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.failWrites {
		return errors.New("disk on fire")
	}
	f.quotes[q.Symbol] = *q
	return nil
}

// fakeHistory counts calls and replays a scripted response.
type fakeHistory struct {
	name  string
	calls atomic.Int32
	bars  []model.Bar
	err   error
	delay time.Duration
}

func (f *fakeHistory) Name() string { return f.name }

func (f *fakeHistory) FetchHistory(ctx context.Context, symbol string, horizon model.Horizon) ([]model.Bar, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.bars, nil
}

type fakeQuote struct {
	name  string
	calls atomic.Int32
	quote *model.Quote
	err   error
}

func (f *fakeQuote) Name() string { return f.name }

func (f *fakeQuote) FetchQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	q := *f.quote
	q.Symbol = symbol
	return &q, nil
}

func recentBars(n int) []model.Bar {
	now := model.Day(time.Now())
	bars := make([]model.Bar, n)
	for i := range bars {
		bars[i] = model.Bar{Date: now.AddDate(0, 0, -(n - i)), Open: 100, High: 101, Low: 99, Close: 100}
	}
	return bars
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Backoff = time.Millisecond
	return cfg
}

func newTestOrchestrator(cache Cache, history []provider.HistoryProvider, quotes []provider.QuoteProvider) *Orchestrator {
	o := New(testConfig(), cache, history, quotes, nil)
	o.sleep = func(context.Context, time.Duration) error { return nil }
	return o
}

func TestGetHistory_SecondCallServedFromCache(t *testing.T) {
	cache := newFakeCache()
	p := &fakeHistory{name: "p1", bars: recentBars(30)}
	o := newTestOrchestrator(cache, []provider.HistoryProvider{p}, nil)

	ctx := context.Background()

	first, err := o.GetHistory(ctx, "AAPL", model.Horizon1M)
	require.NoError(t, err)
	assert.Len(t, first.Bars, 30)
	assert.Equal(t, int32(1), p.calls.Load())

	o.Drain() // let the async write land

	second, err := o.GetHistory(ctx, "AAPL", model.Horizon1M)
	require.NoError(t, err)
	assert.Len(t, second.Bars, 30)
	assert.Equal(t, int32(1), p.calls.Load(), "second call must not hit the provider")
}

func TestGetHistory_ConcurrentCallsCoalesced(t *testing.T) {
	cache := newFakeCache()
	p := &fakeHistory{name: "p1", bars: recentBars(30), delay: 100 * time.Millisecond}
	o := newTestOrchestrator(cache, []provider.HistoryProvider{p}, nil)

	const n = 10
	var wg sync.WaitGroup
	results := make([]*model.Series, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = o.GetHistory(context.Background(), "AAPL", model.Horizon1M)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), p.calls.Load(), "coalescer must allow exactly one upstream fetch")
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Len(t, results[i].Bars, 30)
	}
}

func TestGetHistory_RateLimitRetryBudget(t *testing.T) {
	cache := newFakeCache()
	limited := &fakeHistory{name: "limited", err: provider.RateLimited("limited", 429, errors.New("throttled"))}
	backup := &fakeHistory{name: "backup", bars: recentBars(30)}
	o := newTestOrchestrator(cache, []provider.HistoryProvider{limited, backup}, nil)

	var backoffs []time.Duration
	o.sleep = func(_ context.Context, d time.Duration) error {
		backoffs = append(backoffs, d)
		return nil
	}

	s, err := o.GetHistory(context.Background(), "AAPL", model.Horizon1M)
	require.NoError(t, err)
	assert.Len(t, s.Bars, 30)

	// budget 2 -> 3 total attempts on the limited provider, then fallthrough.
	assert.Equal(t, int32(3), limited.calls.Load())
	assert.Equal(t, int32(1), backup.calls.Load())
	assert.Len(t, backoffs, 2)
}

func TestGetHistory_TerminalFailureSkipsRetry(t *testing.T) {
	cache := newFakeCache()
	broken := &fakeHistory{name: "broken", err: provider.Terminal("broken", 500, errors.New("boom"))}
	backup := &fakeHistory{name: "backup", bars: recentBars(30)}
	o := newTestOrchestrator(cache, []provider.HistoryProvider{broken, backup}, nil)

	_, err := o.GetHistory(context.Background(), "AAPL", model.Horizon1M)
	require.NoError(t, err)
	assert.Equal(t, int32(1), broken.calls.Load(), "terminal failure must not be retried")
}

func TestGetHistory_StaleFallbackWhenAllProvidersFail(t *testing.T) {
	cache := newFakeCache()
	// Old bars: present but nowhere near fresh enough for 1mo.
	old := make([]model.Bar, 20)
	base := model.Day(time.Now()).AddDate(0, 0, -90)
	for i := range old {
		old[i] = model.Bar{Date: base.AddDate(0, 0, i), Close: 50}
	}
	cache.series["AAPL"] = old

	broken := &fakeHistory{name: "broken", err: provider.Terminal("broken", 500, errors.New("boom"))}
	o := newTestOrchestrator(cache, []provider.HistoryProvider{broken}, nil)

	s, err := o.GetHistory(context.Background(), "AAPL", model.Horizon1M)
	require.NoError(t, err, "stale cache must win over an error")
	assert.True(t, s.Stale)
	assert.Len(t, s.Bars, 20)
}

func TestGetHistory_AllProvidersExhausted(t *testing.T) {
	cache := newFakeCache()
	broken := &fakeHistory{name: "broken", err: provider.Terminal("broken", 500, errors.New("boom"))}
	o := newTestOrchestrator(cache, []provider.HistoryProvider{broken}, nil)

	_, err := o.GetHistory(context.Background(), "AAPL", model.Horizon1M)
	assert.ErrorIs(t, err, ErrAllProvidersExhausted)
}

func TestGetQuote_FallbackOrder(t *testing.T) {
	cache := newFakeCache()
	primary := &fakeQuote{name: "primary", err: provider.Terminal("primary", 502, errors.New("bad gateway"))}
	secondary := &fakeQuote{name: "secondary", quote: &model.Quote{Price: 101.5, Provider: "secondary", Timestamp: time.Now()}}
	o := newTestOrchestrator(cache, nil, []provider.QuoteProvider{primary, secondary})

	q, err := o.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "secondary", q.Provider)
	assert.Equal(t, int32(1), primary.calls.Load())
	assert.False(t, q.Stale)
}

func TestGetQuote_StaleCacheFallback(t *testing.T) {
	cache := newFakeCache()
	cache.quotes["AAPL"] = model.Quote{Symbol: "AAPL", Price: 99.0, Provider: "yahoo", Timestamp: time.Now().Add(-2 * time.Hour)}

	broken := &fakeQuote{name: "broken", err: provider.Terminal("broken", 500, errors.New("boom"))}
	o := newTestOrchestrator(cache, nil, []provider.QuoteProvider{broken})

	q, err := o.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.True(t, q.Stale)
	assert.Equal(t, 99.0, q.Price)
}

func TestGetQuote_WriteFailureNotSurfaced(t *testing.T) {
	cache := newFakeCache()
	cache.failWrites = true
	p := &fakeQuote{name: "p1", quote: &model.Quote{Price: 101.5, Provider: "p1", Timestamp: time.Now()}}
	o := newTestOrchestrator(cache, nil, []provider.QuoteProvider{p})

	q, err := o.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err, "cache write failure must never fail a successful fetch")
	assert.Equal(t, 101.5, q.Price)

	o.Drain()
	cache.mu.Lock()
	defer cache.mu.Unlock()
	assert.Equal(t, 1, cache.writes, "write must still have been attempted")
}

func TestJitteredBackoff_WithinBounds(t *testing.T) {
	o := New(Config{Backoff: 10 * time.Second, BackoffJitterPct: 30}, newFakeCache(), nil, nil, nil)

	for i := 0; i < 100; i++ {
		d := o.jitteredBackoff()
		assert.GreaterOrEqual(t, d, 7*time.Second)
		assert.LessOrEqual(t, d, 13*time.Second)
	}
}
