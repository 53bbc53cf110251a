package indicator

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/a-re/ledgerx-go/internal/api"
)

// ErrNoData is returned when the venue has no bitvol series for an asset.
var ErrNoData = errors.New("indicator: no bitvol data")

// APIFetcher adapts the REST client to the cache's Fetcher interface, taking
// the newest point of the returned series.
type APIFetcher struct {
	Client *api.Client
}

func (f APIFetcher) FetchBitvol(ctx context.Context, asset, resolution string) (decimal.Decimal, time.Time, error) {
	points, err := f.Client.GetBitvol(ctx, asset, resolution)
	if err != nil {
		return decimal.Zero, time.Time{}, err
	}
	if len(points) == 0 {
		return decimal.Zero, time.Time{}, ErrNoData
	}

	latest := points[len(points)-1]
	v, err := decimal.NewFromString(latest.Value)
	if err != nil {
		return decimal.Zero, time.Time{}, err
	}
	at, err := time.Parse(time.RFC3339, latest.Time)
	if err != nil {
		at = time.Now()
	}
	return v, at, nil
}
