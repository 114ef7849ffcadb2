package provider

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"marketcache/internal/model"
)

const defaultStooqBaseURL = "https://stooq.com"

// Stooq fetches daily bars and quotes from the public Stooq CSV endpoints.
// It is the tertiary fallback: keyless and lenient, but data lags and some
// symbols are missing (Stooq answers those with an empty CSV).
type Stooq struct {
	baseURL    string
	suffix     string // market suffix appended to symbols, e.g. ".us"
	httpClient *http.Client
	logger     *slog.Logger
}

// StooqOption configures a Stooq provider.
type StooqOption func(*Stooq)

// WithStooqBaseURL overrides the base URL (used by tests).
func WithStooqBaseURL(u string) StooqOption {
	return func(s *Stooq) { s.baseURL = u }
}

// WithStooqHTTPClient sets a custom HTTP client.
func WithStooqHTTPClient(hc *http.Client) StooqOption {
	return func(s *Stooq) { s.httpClient = hc }
}

// WithStooqSuffix sets the market suffix appended to every symbol.
func WithStooqSuffix(suffix string) StooqOption {
	return func(s *Stooq) { s.suffix = suffix }
}

// WithStooqLogger sets the logger.
func WithStooqLogger(logger *slog.Logger) StooqOption {
	return func(s *Stooq) { s.logger = logger }
}

// NewStooq creates a Stooq provider.
func NewStooq(opts ...StooqOption) *Stooq {
	s := &Stooq{
		baseURL:    defaultStooqBaseURL,
		suffix:     ".us",
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Stooq) Name() string { return "stooq" }

func (s *Stooq) ticker(symbol string) string {
	return strings.ToLower(symbol) + s.suffix
}

func (s *Stooq) fetchCSV(ctx context.Context, path string, query url.Values) ([][]string, error) {
	u := s.baseURL + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, Terminal(s.Name(), 0, fmt.Errorf("create request: %w", err))
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, Terminal(s.Name(), 0, fmt.Errorf("do request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, RateLimited(s.Name(), resp.StatusCode, fmt.Errorf("throttled"))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, Terminal(s.Name(), resp.StatusCode, fmt.Errorf("unexpected status"))
	}

	r := csv.NewReader(resp.Body)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, Terminal(s.Name(), 0, fmt.Errorf("read csv: %w", err))
	}
	// Header plus at least one data row.
	if len(records) < 2 {
		return nil, Terminal(s.Name(), 0, fmt.Errorf("empty csv"))
	}
	return records, nil
}

// FetchHistory returns daily bars from the historical download endpoint.
// CSV columns: Date,Open,High,Low,Close,Volume.
func (s *Stooq) FetchHistory(ctx context.Context, symbol string, horizon model.Horizon) ([]model.Bar, error) {
	lookback := horizon.Params().LookbackDays
	from := model.Day(time.Now()).AddDate(0, 0, -lookback)

	query := url.Values{}
	query.Set("s", s.ticker(symbol))
	query.Set("i", "d")
	query.Set("d1", from.Format("20060102"))
	query.Set("d2", time.Now().UTC().Format("20060102"))

	records, err := s.fetchCSV(ctx, "/q/d/l/", query)
	if err != nil {
		return nil, err
	}

	bars := make([]model.Bar, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) < 5 {
			continue
		}
		d, err := time.Parse("2006-01-02", rec[0])
		if err != nil {
			continue
		}
		b := model.Bar{
			Date:  model.Day(d),
			Open:  parseFloat(rec[1]),
			High:  parseFloat(rec[2]),
			Low:   parseFloat(rec[3]),
			Close: parseFloat(rec[4]),
		}
		if len(rec) >= 6 {
			if v, err := strconv.ParseInt(rec[5], 10, 64); err == nil {
				b.Volume = v
			}
		}
		if b.Close == 0 {
			continue
		}
		bars = append(bars, b)
	}
	if len(bars) == 0 {
		return nil, Terminal(s.Name(), 0, fmt.Errorf("no usable rows"))
	}
	// The download endpoint already returns ascending unique dates, but a
	// defensive dedupe costs nothing on a series this small.
	return dedupeByDate(bars), nil
}

// FetchQuote returns the latest snapshot from the lightweight quote
// endpoint. CSV columns: Symbol,Date,Time,Open,High,Low,Close,Volume.
func (s *Stooq) FetchQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	query := url.Values{}
	query.Set("s", s.ticker(symbol))
	query.Set("f", "sd2t2ohlcv")
	query.Set("h", "")
	query.Set("e", "csv")

	records, err := s.fetchCSV(ctx, "/q/l/", query)
	if err != nil {
		return nil, err
	}

	rec := records[1]
	if len(rec) < 7 {
		return nil, Terminal(s.Name(), 0, fmt.Errorf("short quote row"))
	}
	price := parseFloat(rec[6])
	if price == 0 {
		// Stooq reports unknown symbols as N/D fields.
		return nil, Terminal(s.Name(), 0, fmt.Errorf("no price for %s", symbol))
	}

	q := &model.Quote{
		Symbol:    symbol,
		Price:     price,
		PrevClose: parseFloat(rec[3]), // open stands in; stooq has no prev close field
		DayHigh:   parseFloat(rec[4]),
		DayLow:    parseFloat(rec[5]),
		Timestamp: time.Now().UTC(),
		Provider:  s.Name(),
	}
	if len(rec) >= 8 {
		if v, err := strconv.ParseInt(rec[7], 10, 64); err == nil {
			q.Volume = v
		}
	}
	if q.PrevClose != 0 {
		q.Change = q.Price - q.PrevClose
		q.ChangePct = q.Change / q.PrevClose * 100
	}
	return q, nil
}
