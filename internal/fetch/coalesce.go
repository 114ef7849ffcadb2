package fetch

import (
	"golang.org/x/sync/singleflight"

	"marketcache/internal/model"
)

// Coalescer deduplicates concurrent identical fetches: the first caller for
// a key runs the fetch, later callers await and share its result. The entry
// is removed when the fetch completes, success or failure, so a failed
// fetch never blocks future attempts for that key.
//
// This is an in-process optimization only. It provides no cross-instance
// guarantee, and a rare duplicate fetch across instances is fine: cache
// writes are idempotent upserts.
type Coalescer struct {
	group singleflight.Group
}

// NewCoalescer creates a Coalescer.
func NewCoalescer() *Coalescer {
	return &Coalescer{}
}

// historyKey identifies an in-flight history fetch.
func historyKey(symbol string, horizon model.Horizon) string {
	return symbol + "|" + string(horizon)
}

// quoteKey identifies an in-flight quote fetch.
func quoteKey(symbol string) string {
	return symbol + "|quote"
}

// series runs fn once per key among concurrent callers and hands every
// caller the shared result.
func (c *Coalescer) series(key string, fn func() (*model.Series, error)) (*model.Series, error) {
	v, err, _ := c.group.Do(key, func() (any, error) {
		return fn()
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Series), nil
}

// quote is the quote-typed counterpart of series.
func (c *Coalescer) quote(key string, fn func() (*model.Quote, error)) (*model.Quote, error) {
	v, err, _ := c.group.Do(key, func() (any, error) {
		return fn()
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Quote), nil
}
