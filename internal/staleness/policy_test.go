package staleness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"marketcache/internal/model"
)

// barsEndingAt builds n daily bars with the most recent dated last.
func barsEndingAt(last time.Time, n int) []model.Bar {
	bars := make([]model.Bar, n)
	for i := 0; i < n; i++ {
		bars[i] = model.Bar{
			Date:  model.Day(last.AddDate(0, 0, -(n - 1 - i))),
			Open:  100, High: 101, Low: 99, Close: 100,
		}
	}
	return bars
}

func TestUsable_FreshCompleteSeries(t *testing.T) {
	// Wednesday.
	now := time.Date(2025, 6, 4, 15, 0, 0, 0, time.UTC)
	s := &model.Series{Bars: barsEndingAt(now.AddDate(0, 0, -1), 25)}

	assert.True(t, Usable(s, model.Horizon1M, now))
}

func TestUsable_EmptyOrNil(t *testing.T) {
	now := time.Date(2025, 6, 4, 15, 0, 0, 0, time.UTC)
	assert.False(t, Usable(nil, model.Horizon1M, now))
	assert.False(t, Usable(&model.Series{}, model.Horizon1M, now))
}

func TestUsable_IntradayAlwaysStale(t *testing.T) {
	now := time.Date(2025, 6, 4, 15, 0, 0, 0, time.UTC)
	s := &model.Series{Bars: barsEndingAt(now, 5)}

	assert.False(t, Usable(s, model.Horizon1D, now))
}

// 1-month horizon (lookback 35, staleness 1, min points 15):
// 20 bars with the most recent dated 3 days before a weekday now. Stale,
// because 3 > 1 and no weekend grace applies.
func TestUsable_StaleOnWeekday(t *testing.T) {
	// Wednesday.
	now := time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC)
	s := &model.Series{Bars: barsEndingAt(now.AddDate(0, 0, -3), 20)}

	assert.False(t, Usable(s, model.Horizon1M, now))
}

func TestUsable_WeekendGrace(t *testing.T) {
	// Sunday; last bar is Friday, 2 days old. 1mo allows 1 day + 2 grace.
	now := time.Date(2025, 6, 8, 12, 0, 0, 0, time.UTC)
	s := &model.Series{Bars: barsEndingAt(now.AddDate(0, 0, -2), 25)}

	assert.True(t, Usable(s, model.Horizon1M, now))

	// The same series on Tuesday is out of grace.
	tuesday := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	assert.False(t, Usable(s, model.Horizon1M, tuesday))
}

func TestUsable_TooFewDataPoints(t *testing.T) {
	// Fresh but incomplete: 10 bars where 1mo requires 15. Forces backfill.
	now := time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC)
	s := &model.Series{Bars: barsEndingAt(now.AddDate(0, 0, -1), 10)}

	assert.False(t, Usable(s, model.Horizon1M, now))
}

func TestUsable_OldBarsOutsideLookbackDoNotCount(t *testing.T) {
	// 30 bars but they end 40 days ago: none inside the 35-day lookback.
	now := time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC)
	s := &model.Series{Bars: barsEndingAt(now.AddDate(0, 0, -40), 30)}

	assert.False(t, Usable(s, model.Horizon1M, now))
}
