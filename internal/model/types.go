package model

import (
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Time-Series Types
// -----------------------------------------------------------------------------

// Bar is one OHLCV record for a (symbol, date) pair.
type Bar struct {
	Date   time.Time // Trading day, midnight UTC
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64 // Optional; 0 when the provider omits it
}

// Series is an ordered sequence of bars for one symbol over one horizon.
// Dates are strictly increasing with at most one bar per date.
type Series struct {
	Symbol    string
	Horizon   Horizon
	Bars      []Bar
	FetchedAt time.Time // When the most recent provider fetch persisted these bars
	Stale     bool      // Set when served from the last-resort stale read path
}

// Last returns the most recent bar, or false when the series is empty.
func (s *Series) Last() (Bar, bool) {
	if s == nil || len(s.Bars) == 0 {
		return Bar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// Quote is the latest-price snapshot for a symbol. Not versioned; each
// refresh overwrites the prior value.
type Quote struct {
	Symbol    string
	Price     float64
	Change    float64
	ChangePct float64
	PrevClose float64
	DayLow    float64
	DayHigh   float64
	Volume    int64
	Timestamp time.Time
	Provider  string // Provider of record (whichever answered first)
	Stale     bool   // Set when served from the cache after every provider failed
}

// -----------------------------------------------------------------------------
// Batch Refresh Types
// -----------------------------------------------------------------------------

// RefreshReport summarizes one batch-refresh invocation. Per-symbol outcomes
// are recorded in the cache store itself (refresh marks), which keeps the
// scheduler stateless: the next invocation recomputes "most stale" from
// current store state.
type RefreshReport struct {
	JobID           uuid.UUID     `json:"job_id"`
	Updated         int           `json:"updated"`
	Failed          int           `json:"failed"`
	FailedSymbols   []string      `json:"failed_symbols,omitempty"`
	Remaining       int           `json:"remaining"`
	InvocationsLeft int           `json:"invocations_left"`
	Elapsed         time.Duration `json:"elapsed"`
}

// UpToDate reports whether the invocation found nothing to do, which is a
// valid terminal state, not an error.
func (r *RefreshReport) UpToDate() bool {
	return r.Updated == 0 && r.Failed == 0 && r.Remaining == 0
}

// Day truncates t to midnight UTC, the canonical form for bar dates.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
