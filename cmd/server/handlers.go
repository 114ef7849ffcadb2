package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"marketcache/internal/fetch"
	"marketcache/internal/model"
	"marketcache/internal/refresh"
	"marketcache/internal/universe"
)

// quoteResponse is the wire shape for GET /api/quote/{symbol}.
type quoteResponse struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Change    float64   `json:"change"`
	ChangePct float64   `json:"change_pct"`
	PrevClose float64   `json:"prev_close"`
	DayLow    float64   `json:"day_low,omitempty"`
	DayHigh   float64   `json:"day_high,omitempty"`
	Volume    int64     `json:"volume,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Provider  string    `json:"provider"`
	Stale     bool      `json:"stale"`
}

type barResponse struct {
	Date   string  `json:"date"` // YYYY-MM-DD
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume,omitempty"`
}

// historyResponse is the wire shape for GET /api/history/{symbol}.
type historyResponse struct {
	Symbol  string        `json:"symbol"`
	Horizon string        `json:"horizon"`
	Bars    []barResponse `json:"bars"`
	Stale   bool          `json:"stale"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type server struct {
	orch     *fetch.Orchestrator
	refresh  *refresh.Refresher
	universe *universe.Registry
	ping     func(ctx context.Context) error
	logger   *slog.Logger
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/quote/{symbol}", s.handleQuote)
	mux.HandleFunc("GET /api/history/{symbol}", s.handleHistory)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	return mux
}

func (s *server) handleQuote(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	if !s.universe.Contains(symbol) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown symbol: " + symbol})
		return
	}

	q, err := s.orch.GetQuote(r.Context(), symbol)
	if err != nil {
		s.writeFetchError(w, err, "quote", symbol)
		return
	}

	writeJSON(w, http.StatusOK, quoteResponse{
		Symbol:    q.Symbol,
		Price:     q.Price,
		Change:    q.Change,
		ChangePct: q.ChangePct,
		PrevClose: q.PrevClose,
		DayLow:    q.DayLow,
		DayHigh:   q.DayHigh,
		Volume:    q.Volume,
		Timestamp: q.Timestamp,
		Provider:  q.Provider,
		Stale:     q.Stale,
	})
}

func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	if !s.universe.Contains(symbol) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown symbol: " + symbol})
		return
	}

	horizonParam := r.URL.Query().Get("horizon")
	if horizonParam == "" {
		horizonParam = string(model.Horizon1M)
	}
	horizon, err := model.ParseHorizon(horizonParam)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	series, err := s.orch.GetHistory(r.Context(), symbol, horizon)
	if err != nil {
		s.writeFetchError(w, err, "history", symbol)
		return
	}

	resp := historyResponse{
		Symbol:  series.Symbol,
		Horizon: string(series.Horizon),
		Bars:    make([]barResponse, 0, len(series.Bars)),
		Stale:   series.Stale,
	}
	for _, b := range series.Bars {
		resp.Bars = append(resp.Bars, barResponse{
			Date:   b.Date.Format("2006-01-02"),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRefresh runs one batch-refresh invocation inline and returns its
// report. Per-symbol failures are part of a successful report, not an HTTP
// error.
func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	report, err := s.refresh.Run(r.Context())
	if err != nil {
		s.logger.Error("refresh invocation failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := struct {
		Status   string `json:"status"`
		Database string `json:"database"`
		Universe int    `json:"universe"`
	}{
		Status:   "healthy",
		Database: "connected",
		Universe: s.universe.Len(),
	}

	status := http.StatusOK
	if err := s.ping(ctx); err != nil {
		health.Status = "unhealthy"
		health.Database = "disconnected"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

// writeFetchError maps orchestrator errors to HTTP statuses. Exhaustion with
// no cached fallback is the upstream's fault, not the client's.
func (s *server) writeFetchError(w http.ResponseWriter, err error, op, symbol string) {
	s.logger.Error("fetch failed", "op", op, "symbol", symbol, "err", err)
	status := http.StatusInternalServerError
	if errors.Is(err, fetch.ErrAllProvidersExhausted) {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
