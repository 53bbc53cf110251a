package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// GlobalTrade is one row of the market-wide trade tape.
type GlobalTrade struct {
	ID          string `json:"id"`
	ContractID  int64  `json:"contract_id,string"`
	FilledPrice int64  `json:"filled_price"`
	FilledSize  int64  `json:"filled_size"`
	Side        string `json:"side"` // "bid" or "ask"
	Timestamp   int64  `json:"timestamp,string"`
}

// ListGlobalTradesOptions bounds a global trade tape fetch.
type ListGlobalTradesOptions struct {
	After  time.Time
	Before time.Time
}

// ListGlobalTrades fetches the market-wide trade tape within the window,
// invoking handle once per page so large windows stream incrementally.
func (c *Client) ListGlobalTrades(ctx context.Context, opts ListGlobalTradesOptions, handle func([]GlobalTrade) error) error {
	query := url.Values{}
	if !opts.After.IsZero() {
		query.Set("after_ts", opts.After.UTC().Format("2006-01-02T15:04"))
	}
	if !opts.Before.IsZero() {
		query.Set("before_ts", opts.Before.UTC().Format("2006-01-02T15:04"))
	}

	return c.listAll(ctx, "/trading/trades/global", query, func(data json.RawMessage) error {
		var page []GlobalTrade
		if err := json.Unmarshal(data, &page); err != nil {
			return fmt.Errorf("unmarshal global trades: %w", err)
		}
		return handle(page)
	})
}

// BitvolPoint is one implied-volatility observation.
type BitvolPoint struct {
	Asset string `json:"asset"`
	Value string `json:"value"`
	Time  string `json:"time"`
}

// GetBitvol fetches the latest bitvol series for an asset at the given
// resolution. Used by the indicator cache as the REST fallback.
func (c *Client) GetBitvol(ctx context.Context, asset, resolution string) ([]BitvolPoint, error) {
	query := url.Values{}
	query.Set("asset", asset)
	query.Set("resolution", resolution)

	var resp struct {
		Data []BitvolPoint `json:"data"`
	}
	if err := c.get(ctx, "/trading/bitvol", query, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}
