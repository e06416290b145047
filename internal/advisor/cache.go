package advisor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"crypto-trading-bot/internal/interfaces"
	"crypto-trading-bot/internal/logger"
	"crypto-trading-bot/internal/types"
)

// Cache gates external AI advisory calls behind a per-pair wall-clock
// interval. Each pair has an independent entry; refreshing one never touches
// another. The per-pair lock makes the timestamp check-and-set atomic, so
// concurrent callers for the same pair issue at most one provider call.
type Cache struct {
	provider interfaces.AIProvider
	store    interfaces.Store // optional history sink, may be nil
	interval atomic.Int64     // seconds, adjustable at runtime
	timeout  time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*pairEntry
}

type pairEntry struct {
	mu          sync.Mutex
	rec         types.Recommendation
	lastRefresh time.Time
}

type Option func(*Cache)

// WithClock injects a clock; used by tests to drive interval expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithHistory persists every successful refresh for dashboard display.
func WithHistory(store interfaces.Store) Option {
	return func(c *Cache) { c.store = store }
}

func NewCache(provider interfaces.AIProvider, interval, timeout time.Duration, opts ...Option) *Cache {
	c := &Cache{
		provider: provider,
		timeout:  timeout,
		now:      time.Now,
		entries:  map[string]*pairEntry{},
	}
	c.interval.Store(int64(interval / time.Second))
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Interval returns the current refresh interval.
func (c *Cache) Interval() time.Duration {
	return time.Duration(c.interval.Load()) * time.Second
}

// SetInterval adjusts the refresh interval at runtime.
func (c *Cache) SetInterval(d time.Duration) {
	c.interval.Store(int64(d / time.Second))
}

func (c *Cache) entry(pair string) *pairEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[pair]
	if !ok {
		e = &pairEntry{}
		c.entries[pair] = e
	}
	return e
}

// Recommendation returns the cached value when it is fresh, otherwise calls
// the provider with a bounded timeout. Failures wrap ErrAdvisory; callers
// degrade to HOLD with confidence 0 instead of aborting the cycle.
func (c *Cache) Recommendation(ctx context.Context, pair string, candles []types.Candle, inds types.IndicatorSet) (types.Recommendation, error) {
	e := c.entry(pair)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := c.now()
	if !e.lastRefresh.IsZero() && now.Sub(e.lastRefresh) < c.Interval() {
		return e.rec, nil
	}

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rec, err := c.provider.Recommend(cctx, types.PromptContext{
		Pair:       pair,
		Candles:    candles,
		Indicators: inds,
	})
	if err != nil {
		return types.Recommendation{}, fmt.Errorf("%w: refresh %s: %v", interfaces.ErrAdvisory, pair, err)
	}

	normalize(&rec, pair, now)
	e.rec = rec
	e.lastRefresh = now

	if c.store != nil {
		if serr := c.store.AppendRecommendation(ctx, rec); serr != nil {
			logger.Warn(ctx, "Failed to persist AI recommendation history", "pair", pair, "error", serr)
		}
	}
	return rec, nil
}

// Latest returns the cached recommendation for a pair without refreshing.
func (c *Cache) Latest(pair string) (types.Recommendation, bool) {
	e := c.entry(pair)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastRefresh.IsZero() {
		return types.Recommendation{}, false
	}
	return e.rec, true
}

func normalize(r *types.Recommendation, pair string, now time.Time) {
	r.Pair = pair
	r.Action = strings.ToUpper(strings.TrimSpace(r.Action))
	if r.Action != types.ActionBuy && r.Action != types.ActionSell && r.Action != types.ActionHold {
		r.Action = types.ActionHold
	}
	if r.Confidence < 0 {
		r.Confidence = 0
	}
	if r.Confidence > 100 {
		r.Confidence = 100
	}
	r.Ts = now.Unix()
}
