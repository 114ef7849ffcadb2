package model

import "fmt"

// Horizon is a named time window with its own lookback and staleness
// parameters. The set is fixed; callers select one per history request.
type Horizon string

const (
	Horizon1D  Horizon = "1d"
	Horizon1W  Horizon = "1w"
	Horizon1M  Horizon = "1mo"
	Horizon3M  Horizon = "3mo"
	Horizon6M  Horizon = "6mo"
	Horizon1Y  Horizon = "1y"
	Horizon5Y  Horizon = "5y"
	HorizonMax Horizon = "max"
)

// HorizonParams are the static tuning parameters for one horizon.
type HorizonParams struct {
	// LookbackDays is how far back to request and retain bars.
	LookbackDays int
	// MaxStalenessDays is how old the most recent cached bar may be before a
	// refresh is forced. Zero means always stale (live fetch every time).
	MaxStalenessDays int
	// MinDataPoints is the minimum number of bars within the lookback window
	// required to consider a cached series complete. A series below this is
	// stale even if freshly fetched, which triggers a deeper backfill.
	MinDataPoints int
}

// horizonParams holds the per-horizon defaults. Values are deployment tuning,
// not business rules; MinDataPoints approximates trading days (~21/month).
var horizonParams = map[Horizon]HorizonParams{
	Horizon1D:  {LookbackDays: 2, MaxStalenessDays: 0, MinDataPoints: 1},
	Horizon1W:  {LookbackDays: 10, MaxStalenessDays: 1, MinDataPoints: 3},
	Horizon1M:  {LookbackDays: 35, MaxStalenessDays: 1, MinDataPoints: 15},
	Horizon3M:  {LookbackDays: 100, MaxStalenessDays: 2, MinDataPoints: 45},
	Horizon6M:  {LookbackDays: 190, MaxStalenessDays: 3, MinDataPoints: 90},
	Horizon1Y:  {LookbackDays: 370, MaxStalenessDays: 5, MinDataPoints: 200},
	Horizon5Y:  {LookbackDays: 1850, MaxStalenessDays: 10, MinDataPoints: 1000},
	HorizonMax: {LookbackDays: 7320, MaxStalenessDays: 15, MinDataPoints: 1000},
}

// Horizons lists all horizons from shortest to longest.
func Horizons() []Horizon {
	return []Horizon{
		Horizon1D, Horizon1W, Horizon1M, Horizon3M,
		Horizon6M, Horizon1Y, Horizon5Y, HorizonMax,
	}
}

// Params returns the tuning parameters for h.
func (h Horizon) Params() HorizonParams {
	return horizonParams[h]
}

// Valid reports whether h is a member of the fixed horizon set.
func (h Horizon) Valid() bool {
	_, ok := horizonParams[h]
	return ok
}

// ParseHorizon converts a request string into a Horizon.
func ParseHorizon(s string) (Horizon, error) {
	h := Horizon(s)
	if !h.Valid() {
		return "", fmt.Errorf("unknown horizon %q", s)
	}
	return h, nil
}

func (h Horizon) String() string { return string(h) }
