package indicator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type fakeFetcher struct {
	value decimal.Decimal
	at    time.Time
	err   error
	calls int
}

func (f *fakeFetcher) FetchBitvol(ctx context.Context, asset, resolution string) (decimal.Decimal, time.Time, error) {
	f.calls++
	if f.err != nil {
		return decimal.Zero, time.Time{}, f.err
	}
	return f.value, f.at, nil
}

func TestBitvolServesFreshStreamValue(t *testing.T) {
	now := time.Date(2023, 6, 15, 12, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{}
	c := New(fetcher, WithClock(func() time.Time { return now }))

	c.UpdateBitvol("BTC", "54.2", now.Format(time.RFC3339))

	v, err := c.Bitvol(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("Bitvol failed: %v", err)
	}
	if !v.Equal(decimal.RequireFromString("54.2")) {
		t.Errorf("Bitvol = %s, want 54.2", v)
	}
	if fetcher.calls != 0 {
		t.Errorf("fetcher called %d times, want 0 for fresh value", fetcher.calls)
	}
}

func TestBitvolRefreshesExpiredValue(t *testing.T) {
	now := time.Date(2023, 6, 15, 12, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{value: decimal.RequireFromString("60.0"), at: now}
	c := New(fetcher,
		WithTTL(time.Minute),
		WithClock(func() time.Time { return now }),
	)

	c.UpdateBitvol("BTC", "54.2", now.Add(-2*time.Minute).Format(time.RFC3339))

	v, err := c.Bitvol(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("Bitvol failed: %v", err)
	}
	if !v.Equal(decimal.RequireFromString("60.0")) {
		t.Errorf("Bitvol = %s, want refreshed 60.0", v)
	}
	if fetcher.calls != 1 {
		t.Errorf("fetcher called %d times, want 1", fetcher.calls)
	}
}

func TestBitvolServesStaleOnFetchFailure(t *testing.T) {
	now := time.Date(2023, 6, 15, 12, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{err: errors.New("api down")}
	c := New(fetcher,
		WithTTL(time.Minute),
		WithClock(func() time.Time { return now }),
	)

	c.UpdateBitvol("BTC", "54.2", now.Add(-time.Hour).Format(time.RFC3339))

	v, err := c.Bitvol(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("Bitvol should serve stale value, got error: %v", err)
	}
	if !v.Equal(decimal.RequireFromString("54.2")) {
		t.Errorf("Bitvol = %s, want stale 54.2", v)
	}
}

func TestBitvolErrorWhenNothingCached(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("api down")}
	c := New(fetcher)

	if _, err := c.Bitvol(context.Background(), "BTC"); err == nil {
		t.Error("expected error with no cached value and failing fetcher")
	}
}

func TestStaleStreamTickIgnored(t *testing.T) {
	now := time.Date(2023, 6, 15, 12, 0, 0, 0, time.UTC)
	c := New(nil, WithClock(func() time.Time { return now }))

	c.UpdateSpot("BTC", "30000.50", now.Format(time.RFC3339))
	c.UpdateSpot("BTC", "29000.00", now.Add(-time.Minute).Format(time.RFC3339))

	v, ok := c.Spot("BTC")
	if !ok {
		t.Fatal("Spot missing")
	}
	if !v.Equal(decimal.RequireFromString("30000.50")) {
		t.Errorf("Spot = %s, want newer 30000.50", v)
	}
}

func TestCanonicalAsset(t *testing.T) {
	now := time.Date(2023, 6, 15, 12, 0, 0, 0, time.UTC)
	c := New(nil, WithClock(func() time.Time { return now }))

	c.UpdateSpot("BTC", "30000", now.Format(time.RFC3339))

	if _, ok := c.Spot("CBTC"); !ok {
		t.Error("CBTC should resolve to the BTC observation")
	}
}

func TestSpotCents(t *testing.T) {
	now := time.Date(2023, 6, 15, 12, 0, 0, 0, time.UTC)
	c := New(nil, WithClock(func() time.Time { return now }))

	c.UpdateSpot("ETH", "1850.25", now.Format(time.RFC3339))

	cents, ok := c.SpotCents("ETH")
	if !ok {
		t.Fatal("SpotCents missing")
	}
	if cents != 185025 {
		t.Errorf("SpotCents = %d, want 185025", cents)
	}

	if _, ok := c.SpotCents("DOGE"); ok {
		t.Error("SpotCents for unknown asset should report missing")
	}
}

func TestUnparseableTickDropped(t *testing.T) {
	c := New(nil)
	c.UpdateBitvol("BTC", "not-a-number", "")
	if _, ok := c.Spot("BTC"); ok {
		t.Error("unparseable tick should not be stored")
	}
}
