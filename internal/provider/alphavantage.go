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
	"strconv"
	"time"

	"marketcache/internal/model"
	"marketcache/internal/provider/ratelimit"
)

const defaultAlphaVantageBaseURL = "https://www.alphavantage.co"

// Call weights for the shared request-rate budget. Full-output history
// pulls cost more upstream credits than single quotes.
const (
	alphaQuoteWeight       = 1
	alphaHistoryWeight     = 5
	alphaHistoryFullWeight = 10
)

// AlphaVantage fetches quotes and history from the Alpha Vantage REST API.
// It is the secondary (paid) source. All calls pass through a weighted
// sliding-window limiter since the plan enforces a hard per-minute budget;
// on top of that the API signals throttling with a 200 response carrying a
// "Note" payload, which is mapped to a rate-limited error.
type AlphaVantage struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	logger     *slog.Logger
}

// AlphaVantageOption configures an AlphaVantage provider.
type AlphaVantageOption func(*AlphaVantage)

// WithAlphaVantageBaseURL overrides the API base URL (used by tests).
func WithAlphaVantageBaseURL(u string) AlphaVantageOption {
	return func(a *AlphaVantage) { a.baseURL = u }
}

// WithAlphaVantageHTTPClient sets a custom HTTP client.
func WithAlphaVantageHTTPClient(hc *http.Client) AlphaVantageOption {
	return func(a *AlphaVantage) { a.httpClient = hc }
}

// WithAlphaVantageLimiter sets the outbound request-rate limiter.
func WithAlphaVantageLimiter(l *ratelimit.Limiter) AlphaVantageOption {
	return func(a *AlphaVantage) { a.limiter = l }
}

// WithAlphaVantageLogger sets the logger.
func WithAlphaVantageLogger(logger *slog.Logger) AlphaVantageOption {
	return func(a *AlphaVantage) { a.logger = logger }
}

// NewAlphaVantage creates an Alpha Vantage provider.
func NewAlphaVantage(apiKey string, opts ...AlphaVantageOption) *AlphaVantage {
	a := &AlphaVantage{
		baseURL:    defaultAlphaVantageBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *AlphaVantage) Name() string { return "alphavantage" }

// alphaEnvelope captures the throttle/error fields Alpha Vantage returns
// with HTTP 200.
type alphaEnvelope struct {
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

func (a *AlphaVantage) get(ctx context.Context, weight int, params url.Values) ([]byte, error) {
	if a.limiter != nil {
		if err := a.limiter.Acquire(ctx, weight); err != nil {
			return nil, Terminal(a.Name(), 0, fmt.Errorf("acquire rate budget: %w", err))
		}
	}

	params.Set("apikey", a.apiKey)
	u := a.baseURL + "/query?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, Terminal(a.Name(), 0, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, Terminal(a.Name(), 0, fmt.Errorf("do request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Terminal(a.Name(), 0, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, RateLimited(a.Name(), resp.StatusCode, fmt.Errorf("throttled"))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, Terminal(a.Name(), resp.StatusCode, fmt.Errorf("unexpected status"))
	}

	var env alphaEnvelope
	if err := json.Unmarshal(body, &env); err == nil {
		if env.Note != "" {
			return nil, RateLimited(a.Name(), resp.StatusCode, fmt.Errorf("throttle note: %s", env.Note))
		}
		if env.ErrorMessage != "" {
			return nil, Terminal(a.Name(), resp.StatusCode, fmt.Errorf("api error: %s", env.ErrorMessage))
		}
	}
	return body, nil
}

// FetchHistory returns daily bars via TIME_SERIES_DAILY. Horizons deeper
// than the compact window (100 bars) request the full output.
func (a *AlphaVantage) FetchHistory(ctx context.Context, symbol string, horizon model.Horizon) ([]model.Bar, error) {
	outputSize, weight := "compact", alphaHistoryWeight
	if horizon.Params().LookbackDays > 100 {
		outputSize, weight = "full", alphaHistoryFullWeight
	}

	params := url.Values{}
	params.Set("function", "TIME_SERIES_DAILY")
	params.Set("symbol", symbol)
	params.Set("outputsize", outputSize)

	body, err := a.get(ctx, weight, params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		TimeSeries map[string]struct {
			Open   string `json:"1. open"`
			High   string `json:"2. high"`
			Low    string `json:"3. low"`
			Close  string `json:"4. close"`
			Volume string `json:"5. volume"`
		} `json:"Time Series (Daily)"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, Terminal(a.Name(), 0, fmt.Errorf("unmarshal response: %w", err))
	}
	if len(payload.TimeSeries) == 0 {
		return nil, Terminal(a.Name(), 0, fmt.Errorf("no time series returned"))
	}

	cutoff := model.Day(time.Now()).AddDate(0, 0, -horizon.Params().LookbackDays)
	bars := make([]model.Bar, 0, len(payload.TimeSeries))
	for date, row := range payload.TimeSeries {
		d, err := time.Parse("2006-01-02", date)
		if err != nil {
			continue
		}
		if d.Before(cutoff) {
			continue
		}
		b := model.Bar{
			Date:  model.Day(d),
			Open:  parseFloat(row.Open),
			High:  parseFloat(row.High),
			Low:   parseFloat(row.Low),
			Close: parseFloat(row.Close),
		}
		if v, err := strconv.ParseInt(row.Volume, 10, 64); err == nil {
			b.Volume = v
		}
		if b.Close == 0 {
			continue
		}
		bars = append(bars, b)
	}
	if len(bars) == 0 {
		return nil, Terminal(a.Name(), 0, fmt.Errorf("no bars within lookback"))
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

// FetchQuote returns the latest snapshot via GLOBAL_QUOTE.
func (a *AlphaVantage) FetchQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", symbol)

	body, err := a.get(ctx, alphaQuoteWeight, params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		GlobalQuote struct {
			Price         string `json:"05. price"`
			Volume        string `json:"06. volume"`
			PrevClose     string `json:"08. previous close"`
			Change        string `json:"09. change"`
			ChangePercent string `json:"10. change percent"`
			High          string `json:"03. high"`
			Low           string `json:"04. low"`
		} `json:"Global Quote"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, Terminal(a.Name(), 0, fmt.Errorf("unmarshal response: %w", err))
	}

	gq := payload.GlobalQuote
	price := parseFloat(gq.Price)
	if price == 0 {
		return nil, Terminal(a.Name(), 0, fmt.Errorf("empty global quote"))
	}

	q := &model.Quote{
		Symbol:    symbol,
		Price:     price,
		PrevClose: parseFloat(gq.PrevClose),
		Change:    parseFloat(gq.Change),
		DayHigh:   parseFloat(gq.High),
		DayLow:    parseFloat(gq.Low),
		Timestamp: time.Now().UTC(),
		Provider:  a.Name(),
	}
	if v, err := strconv.ParseInt(gq.Volume, 10, 64); err == nil {
		q.Volume = v
	}
	// "1.2345%" -> 1.2345
	if pct := gq.ChangePercent; len(pct) > 1 {
		q.ChangePct = parseFloat(pct[:len(pct)-1])
	}
	return q, nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
