// Package staleness decides whether a cached series is still usable for a
// given horizon or must be refreshed from a live provider.
package staleness

import (
	"time"

	"marketcache/internal/model"
)

// weekendGraceDays extends the staleness window when "now" falls on a
// non-trading day, so a cache populated on the last trading day is not
// spuriously invalidated over a weekend.
const weekendGraceDays = 2

// Usable reports whether the cached series satisfies the horizon's staleness
// and completeness requirements at the given instant.
//
// A series is usable iff:
//   - its most recent bar is within MaxStalenessDays of now (plus the
//     weekend grace when now is Saturday or Sunday), and
//   - it holds at least MinDataPoints bars inside the lookback window.
//
// A horizon with MaxStalenessDays == 0 is always stale, forcing a live
// fetch. A series that fails the MinDataPoints check is stale even when
// freshly fetched; the caller reacts with a deeper backfill rather than a
// shallow top-up.
func Usable(s *model.Series, h model.Horizon, now time.Time) bool {
	if s == nil || len(s.Bars) == 0 {
		return false
	}

	p := h.Params()
	if p.MaxStalenessDays == 0 {
		return false
	}

	last, ok := s.Last()
	if !ok {
		return false
	}

	maxAge := p.MaxStalenessDays
	if isNonTradingDay(now) {
		maxAge += weekendGraceDays
	}

	age := daysBetween(last.Date, now)
	if age > maxAge {
		return false
	}

	cutoff := model.Day(now).AddDate(0, 0, -p.LookbackDays)
	points := 0
	for _, b := range s.Bars {
		if !b.Date.Before(cutoff) {
			points++
		}
	}
	return points >= p.MinDataPoints
}

// isNonTradingDay reports whether t falls on a weekend. Exchange holiday
// calendars are out of scope; the weekend grace absorbs long weekends too.
func isNonTradingDay(t time.Time) bool {
	wd := t.UTC().Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// daysBetween counts whole calendar days from the bar date to now.
func daysBetween(barDate, now time.Time) int {
	return int(model.Day(now).Sub(model.Day(barDate)).Hours() / 24)
}
