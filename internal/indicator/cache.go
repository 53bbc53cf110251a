// Package indicator caches auxiliary market indicators (bitvol implied
// volatility and the BLX spot index) with a TTL and a get-or-refresh API.
//
// The cache is an explicit object passed into the state engine rather than
// process-wide state; the stream feeds it and a REST fetcher backs it.
package indicator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultTTL is how long a cached observation stays fresh.
const DefaultTTL = 2 * time.Minute

// DefaultResolution is the bitvol series resolution requested on refresh.
const DefaultResolution = "1W"

// Fetcher is the REST fallback used when a cached value is missing or stale.
type Fetcher interface {
	FetchBitvol(ctx context.Context, asset, resolution string) (decimal.Decimal, time.Time, error)
}

// Observation is one cached indicator value.
type Observation struct {
	Asset string
	Value decimal.Decimal
	At    time.Time
}

// Cache holds the latest bitvol and spot observations per asset.
type Cache struct {
	ttl     time.Duration
	fetcher Fetcher
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	bitvol map[string]Observation
	spot   map[string]Observation
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides the freshness window.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a Cache backed by the given REST fetcher. A nil fetcher is
// allowed; the cache then serves only stream-fed values.
func New(fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		ttl:     DefaultTTL,
		fetcher: fetcher,
		logger:  slog.Default(),
		now:     time.Now,
		bitvol:  make(map[string]Observation),
		spot:    make(map[string]Observation),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// canonicalAsset folds venue asset aliases: CBTC quotes off BTC indicators.
func canonicalAsset(asset string) string {
	if asset == "CBTC" {
		return "BTC"
	}
	return asset
}

// UpdateBitvol records a stream-delivered bitvol tick.
func (c *Cache) UpdateBitvol(asset, value, at string) {
	v, err := decimal.NewFromString(value)
	if err != nil {
		c.logger.Warn("unparseable bitvol value", "asset", asset, "value", value)
		return
	}
	c.store(c.bitvol, canonicalAsset(asset), v, at)
}

// UpdateSpot records a stream-delivered BLX index tick.
func (c *Cache) UpdateSpot(asset, price, at string) {
	v, err := decimal.NewFromString(price)
	if err != nil {
		c.logger.Warn("unparseable spot price", "asset", asset, "price", price)
		return
	}
	c.store(c.spot, canonicalAsset(asset), v, at)
}

func (c *Cache) store(m map[string]Observation, asset string, v decimal.Decimal, at string) {
	obsTime := c.now()
	if at != "" {
		if t, err := time.Parse(time.RFC3339, at); err == nil {
			obsTime = t
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := m[asset]
	if ok && prev.At.After(obsTime) {
		return // stale tick
	}
	m[asset] = Observation{Asset: asset, Value: v, At: obsTime}
}

// Bitvol returns the bitvol value for an asset, refreshing through the REST
// fetcher when the cached value is missing or older than the TTL.
func (c *Cache) Bitvol(ctx context.Context, asset string) (decimal.Decimal, error) {
	asset = canonicalAsset(asset)

	c.mu.Lock()
	obs, ok := c.bitvol[asset]
	c.mu.Unlock()

	if ok && c.now().Sub(obs.At) <= c.ttl {
		return obs.Value, nil
	}

	if c.fetcher == nil {
		if ok {
			return obs.Value, nil // stale but better than nothing
		}
		return decimal.Zero, fmt.Errorf("no bitvol for %s", asset)
	}

	v, at, err := c.fetcher.FetchBitvol(ctx, asset, DefaultResolution)
	if err != nil {
		if ok {
			c.logger.Warn("bitvol refresh failed, serving stale value",
				"asset", asset,
				"age", c.now().Sub(obs.At),
				"error", err,
			)
			return obs.Value, nil
		}
		return decimal.Zero, fmt.Errorf("fetch bitvol for %s: %w", asset, err)
	}

	c.mu.Lock()
	c.bitvol[asset] = Observation{Asset: asset, Value: v, At: at}
	c.mu.Unlock()
	return v, nil
}

// Spot returns the most recent BLX index price for an asset, if any.
func (c *Cache) Spot(asset string) (decimal.Decimal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	obs, ok := c.spot[canonicalAsset(asset)]
	if !ok {
		return decimal.Zero, false
	}
	return obs.Value, true
}

// SpotCents returns the spot price converted to integer cents for use
// against book prices.
func (c *Cache) SpotCents(asset string) (int64, bool) {
	v, ok := c.Spot(asset)
	if !ok {
		return 0, false
	}
	return v.Mul(decimal.NewFromInt(100)).IntPart(), true
}
