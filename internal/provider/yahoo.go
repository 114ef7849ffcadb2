package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"

	"marketcache/internal/model"
)

const defaultYahooBaseURL = "https://query1.finance.yahoo.com"

// Yahoo fetches quotes and history from the public Yahoo Finance chart API.
// It is the primary (scrape-style) source: free, no key, occasionally
// throttled with 429s.
type Yahoo struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	symbolMap  map[string]string // internal symbol -> Yahoo ticker
}

// YahooOption configures a Yahoo provider.
type YahooOption func(*Yahoo)

// WithYahooBaseURL overrides the API base URL (used by tests).
func WithYahooBaseURL(u string) YahooOption {
	return func(y *Yahoo) { y.baseURL = u }
}

// WithYahooHTTPClient sets a custom HTTP client.
func WithYahooHTTPClient(hc *http.Client) YahooOption {
	return func(y *Yahoo) { y.httpClient = hc }
}

// WithYahooSymbolMap maps internal symbols to Yahoo tickers (e.g. index
// symbols that Yahoo prefixes with a caret).
func WithYahooSymbolMap(m map[string]string) YahooOption {
	return func(y *Yahoo) { y.symbolMap = m }
}

// WithYahooLogger sets the logger.
func WithYahooLogger(logger *slog.Logger) YahooOption {
	return func(y *Yahoo) { y.logger = logger }
}

// NewYahoo creates a Yahoo Finance provider.
func NewYahoo(opts ...YahooOption) *Yahoo {
	y := &Yahoo{
		baseURL:    defaultYahooBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

func (y *Yahoo) Name() string { return "yahoo" }

func (y *Yahoo) ticker(symbol string) string {
	if mapped, ok := y.symbolMap[symbol]; ok {
		return mapped
	}
	return symbol
}

// yahooChart is the chart API response envelope.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				PreviousClose      float64 `json:"chartPreviousClose"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// yahooRange maps a horizon's lookback to the closest chart API range.
func yahooRange(h model.Horizon) string {
	switch days := h.Params().LookbackDays; {
	case days <= 5:
		return "5d"
	case days <= 31:
		return "1mo"
	case days <= 93:
		return "3mo"
	case days <= 186:
		return "6mo"
	case days <= 366:
		return "1y"
	case days <= 1830:
		return "5y"
	default:
		return "max"
	}
}

func (y *Yahoo) fetchChart(ctx context.Context, symbol, rng string) (*yahooChart, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=%s",
		y.baseURL, url.PathEscape(y.ticker(symbol)), rng)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, Terminal(y.Name(), 0, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return nil, Terminal(y.Name(), 0, fmt.Errorf("do request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Terminal(y.Name(), 0, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, RateLimited(y.Name(), resp.StatusCode, fmt.Errorf("throttled"))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, Terminal(y.Name(), resp.StatusCode, fmt.Errorf("unexpected status"))
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, Terminal(y.Name(), 0, fmt.Errorf("unmarshal response: %w", err))
	}
	if chart.Chart.Error != nil {
		return nil, Terminal(y.Name(), 0, fmt.Errorf("api error %s: %s",
			chart.Chart.Error.Code, chart.Chart.Error.Description))
	}
	if len(chart.Chart.Result) == 0 {
		return nil, Terminal(y.Name(), 0, fmt.Errorf("empty result"))
	}
	return &chart, nil
}

// FetchHistory returns daily bars covering the horizon's lookback window.
func (y *Yahoo) FetchHistory(ctx context.Context, symbol string, horizon model.Horizon) ([]model.Bar, error) {
	chart, err := y.fetchChart(ctx, symbol, yahooRange(horizon))
	if err != nil {
		return nil, err
	}

	result := chart.Chart.Result[0]
	if len(result.Timestamp) == 0 || len(result.Indicators.Quote) == 0 {
		return nil, Terminal(y.Name(), 0, fmt.Errorf("no bars returned"))
	}
	quote := result.Indicators.Quote[0]

	bars := make([]model.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		b := model.Bar{Date: model.Day(time.Unix(ts, 0))}
		if i < len(quote.Open) && quote.Open[i] != nil {
			b.Open = *quote.Open[i]
		}
		if i < len(quote.High) && quote.High[i] != nil {
			b.High = *quote.High[i]
		}
		if i < len(quote.Low) && quote.Low[i] != nil {
			b.Low = *quote.Low[i]
		}
		if i < len(quote.Close) && quote.Close[i] != nil {
			b.Close = *quote.Close[i]
		}
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			b.Volume = *quote.Volume[i]
		}
		// Null bars show up on holidays; drop them.
		if b.Open == 0 && b.High == 0 && b.Low == 0 && b.Close == 0 {
			continue
		}
		bars = append(bars, b)
	}
	if len(bars) == 0 {
		return nil, Terminal(y.Name(), 0, fmt.Errorf("all bars empty"))
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return dedupeByDate(bars), nil
}

// FetchQuote returns the latest price snapshot derived from a short chart
// window (the chart meta carries the live price and previous close).
func (y *Yahoo) FetchQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	chart, err := y.fetchChart(ctx, symbol, "5d")
	if err != nil {
		return nil, err
	}

	result := chart.Chart.Result[0]
	price := result.Meta.RegularMarketPrice
	if price == 0 {
		return nil, Terminal(y.Name(), 0, fmt.Errorf("no market price in meta"))
	}

	q := &model.Quote{
		Symbol:    symbol,
		Price:     price,
		PrevClose: result.Meta.PreviousClose,
		Timestamp: time.Now().UTC(),
		Provider:  y.Name(),
	}
	if len(result.Indicators.Quote) > 0 && len(result.Timestamp) > 0 {
		iq := result.Indicators.Quote[0]
		last := len(result.Timestamp) - 1
		if last < len(iq.Low) && iq.Low[last] != nil {
			q.DayLow = *iq.Low[last]
		}
		if last < len(iq.High) && iq.High[last] != nil {
			q.DayHigh = *iq.High[last]
		}
		if last < len(iq.Volume) && iq.Volume[last] != nil {
			q.Volume = *iq.Volume[last]
		}
	}
	if q.PrevClose != 0 {
		q.Change = q.Price - q.PrevClose
		q.ChangePct = q.Change / q.PrevClose * 100
	}
	return q, nil
}

// dedupeByDate collapses duplicate dates, keeping the later entry. Input
// must be sorted ascending.
func dedupeByDate(bars []model.Bar) []model.Bar {
	out := bars[:0]
	for _, b := range bars {
		if n := len(out); n > 0 && out[n-1].Date.Equal(b.Date) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}
