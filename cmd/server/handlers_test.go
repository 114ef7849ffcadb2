package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketcache/internal/fetch"
	"marketcache/internal/model"
	"marketcache/internal/provider"
	"marketcache/internal/refresh"
	"marketcache/internal/store"
	"marketcache/internal/universe"
)

// memCache is a minimal in-memory fetch.Cache for handler tests.
type memCache struct {
	mu     sync.Mutex
	series map[string][]model.Bar
	quotes map[string]model.Quote
}

func newMemCache() *memCache {
	return &memCache{series: map[string][]model.Bar{}, quotes: map[string]model.Quote{}}
}

func (c *memCache) ReadSeries(_ context.Context, symbol string, horizon model.Horizon) (*model.Series, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bars, ok := c.series[symbol]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &model.Series{Symbol: symbol, Horizon: horizon, Bars: bars}, nil
}

func (c *memCache) ReadSeriesAny(ctx context.Context, symbol string, horizon model.Horizon) (*model.Series, error) {
	s, err := c.ReadSeries(ctx, symbol, horizon)
	if err != nil {
		return nil, err
	}
	s.Stale = true
	return s, nil
}

func (c *memCache) WriteSeries(_ context.Context, symbol string, bars []model.Bar) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.series[symbol] = bars
	return nil
}

func (c *memCache) ReadQuote(_ context.Context, symbol string) (*model.Quote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.quotes[symbol]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &q, nil
}

func (c *memCache) WriteQuote(_ context.Context, q *model.Quote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[q.Symbol] = *q
	return nil
}

type stubProvider struct {
	bars  []model.Bar
	quote *model.Quote
	err   error
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) FetchHistory(context.Context, string, model.Horizon) ([]model.Bar, error) {
	return s.bars, s.err
}

func (s *stubProvider) FetchQuote(_ context.Context, symbol string) (*model.Quote, error) {
	if s.err != nil {
		return nil, s.err
	}
	q := *s.quote
	q.Symbol = symbol
	return &q, nil
}

type memMarks struct{}

func (memMarks) StaleSymbols(_ context.Context, universe []string, _ time.Duration, limit int) ([]string, error) {
	if len(universe) > limit {
		universe = universe[:limit]
	}
	return universe, nil
}
func (memMarks) CountStale(context.Context, []string, time.Duration) (int, error) { return 0, nil }
func (memMarks) MarkAttempt(context.Context, []string) error                      { return nil }

func newTestServer(t *testing.T, stub *stubProvider, pingErr error) *server {
	t.Helper()

	cache := newMemCache()
	orch := fetch.New(fetch.DefaultConfig(), cache,
		[]provider.HistoryProvider{stub}, []provider.QuoteProvider{stub}, nil)
	uni := universe.New([]string{"AAPL", "MSFT"})

	cfg := refresh.DefaultConfig()
	cfg.InterBatchDelay = 0
	refresher := refresh.New(cfg, memMarks{}, orch, uni, nil)

	return &server{
		orch:     orch,
		refresh:  refresher,
		universe: uni,
		ping:     func(context.Context) error { return pingErr },
		logger:   slog.Default(),
	}
}

func recentBars(n int) []model.Bar {
	day := model.Day(time.Now())
	bars := make([]model.Bar, n)
	for i := range bars {
		bars[i] = model.Bar{Date: day.AddDate(0, 0, -(n - i)), Open: 10, High: 11, Low: 9, Close: 10, Volume: 100}
	}
	return bars
}

func TestHandleQuote(t *testing.T) {
	stub := &stubProvider{quote: &model.Quote{Price: 187.5, Provider: "stub", Timestamp: time.Now()}}
	srv := newTestServer(t, stub, nil)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/quote/aapl")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var q quoteResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&q))
	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, 187.5, q.Price)
	assert.False(t, q.Stale)
}

func TestHandleQuote_UnknownSymbol(t *testing.T) {
	srv := newTestServer(t, &stubProvider{}, nil)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/quote/TSLA")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleHistory(t *testing.T) {
	stub := &stubProvider{bars: recentBars(30)}
	srv := newTestServer(t, stub, nil)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/history/AAPL?horizon=1mo")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var h historyResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
	assert.Equal(t, "AAPL", h.Symbol)
	assert.Equal(t, "1mo", h.Horizon)
	assert.Len(t, h.Bars, 30)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}$`, h.Bars[0].Date)
}

func TestHandleHistory_BadHorizon(t *testing.T) {
	srv := newTestServer(t, &stubProvider{bars: recentBars(5)}, nil)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/history/AAPL?horizon=2fortnights")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleHistory_AllProvidersDown(t *testing.T) {
	stub := &stubProvider{err: errors.New("upstream down")}
	srv := newTestServer(t, stub, nil)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/history/AAPL?horizon=1mo")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestHandleRefresh_AlwaysReportsPartialFailure(t *testing.T) {
	// Every fetch fails, yet the endpoint still answers 200 with a report.
	stub := &stubProvider{err: errors.New("upstream down")}
	srv := newTestServer(t, stub, nil)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/refresh", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report model.RefreshReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 0, report.Updated)
}

func TestHandleHealthz(t *testing.T) {
	srv := newTestServer(t, &stubProvider{}, nil)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleHealthz_DatabaseDown(t *testing.T) {
	srv := newTestServer(t, &stubProvider{}, errors.New("connection refused"))
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
