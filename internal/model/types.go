package model

import (
	"time"
)

// -----------------------------------------------------------------------------
// Units and fees
// -----------------------------------------------------------------------------

// LedgerX balance unit conversions. Divide raw balances by these to get
// tradable units.
const (
	ConvUSD  = 100            // 100 units == $1
	ConvCBTC = 100_000_000    // 100M units == 0.01 BTC == 1 CBTC
	ConvETH  = 1_000_000_000  // 1B units == 1 ETH
	ConvBTC  = ConvCBTC * 100 // 100 CBTC == 1 BTC
)

// AssetUnits maps an asset code to its balance conversion divisor.
var AssetUnits = map[string]int64{
	"USD":  ConvUSD,
	"CBTC": ConvCBTC,
	"ETH":  ConvETH,
}

// Fee returns the venue fee for a trade at the given price (cents) and size:
// $0.15 per contract or 20% of price, whichever is less.
func Fee(price int64, size int64) int64 {
	perContract := price / (5 * ConvUSD)
	if perContract >= 15 {
		perContract = 15
	}
	if size < 0 {
		size = -size
	}
	return size * perContract
}

// -----------------------------------------------------------------------------
// Contracts
// -----------------------------------------------------------------------------

// Derivative types listed by the venue.
const (
	DerivOption       = "options_contract"
	DerivFuture       = "future_contract"
	DerivDayAheadSwap = "day_ahead_swap"
)

// Contract is the immutable identity of one listed instrument. Contracts are
// created on first reference and never deleted; expiry is a one-way flag
// tracked by the engine.
type Contract struct {
	ID              int64     `json:"id"`
	Label           string    `json:"label"`
	UnderlyingAsset string    `json:"underlying_asset"`
	CollateralAsset string    `json:"collateral_asset"`
	DerivativeType  string    `json:"derivative_type"`
	IsCall          bool      `json:"is_call"`
	IsNextDay       bool      `json:"is_next_day"`
	Active          bool      `json:"active"`
	StrikePrice     int64     `json:"strike_price"`
	Multiplier      int64     `json:"multiplier"`
	DateExpires     VenueTime `json:"date_expires"`
	DateLive        VenueTime `json:"date_live"`
}

// IsExpired reports whether the contract expires within preemptive of now.
// The preemptive window avoids acting on contracts about to expire.
func (c *Contract) IsExpired(now time.Time, preemptive time.Duration) bool {
	return c.DateExpires.Time().Sub(now) < preemptive
}

// IsLive reports whether the contract has gone live.
func (c *Contract) IsLive(now time.Time) bool {
	return !now.Before(c.DateLive.Time())
}

// -----------------------------------------------------------------------------
// Book
// -----------------------------------------------------------------------------

// BookEntry is one resting order in a contract's book. Size 0 implies removal.
type BookEntry struct {
	Mid        string `json:"mid"`
	ContractID int64  `json:"contract_id"`
	Price      int64  `json:"price"` // cents
	Size       int64  `json:"size"`
	IsAsk      bool   `json:"is_ask"`
	Clock      int64  `json:"clock"`
}

// BookTop is the best bid/ask pair for a contract, tagged with the clock it
// was observed at. Zero bid or ask means that side is empty.
type BookTop struct {
	ContractID int64
	Bid        int64
	Ask        int64
	Clock      int64
	Synthetic  bool // computed from book entries rather than stream-delivered
}

// Mid returns the midpoint of bid and ask, falling back to whichever side is
// present. Returns 0 when both sides are empty.
func (t BookTop) Mid() int64 {
	switch {
	case t.Bid > 0 && t.Ask > 0:
		return (t.Bid + t.Ask) / 2
	case t.Bid > 0:
		return t.Bid
	case t.Ask > 0:
		return t.Ask
	default:
		return 0
	}
}

// SameOrAbsent reports whether two top-of-book prices agree under the
// same-or-zero-or-absent equivalence: equal values match, and zero matches
// absent.
func SameOrAbsent(a, b int64) bool {
	if a == b {
		return true
	}
	return a <= 0 && b <= 0
}

// BookSnapshot is a full fetch of a contract's resting orders, used to
// resynchronize after a detected gap.
type BookSnapshot struct {
	ContractID int64       `json:"contract_id"`
	Entries    []BookEntry `json:"book_states"`
}

// -----------------------------------------------------------------------------
// Positions and trades
// -----------------------------------------------------------------------------

// Position is the trader's holding in one contract. Size is tracked live from
// fills; Basis is authoritative only after a trade-history recomputation.
type Position struct {
	PositionID    int64 // venue position id, 0 until a snapshot supplies it
	ContractID    int64
	Size          int64
	ExercisedSize int64
	Basis         int64 // cents, signed
	HasBasis      bool
	Type          string // "long" or "short"
}

// PositionTrade is one row of the trade history for a position, as returned
// by the trades-for-position endpoint.
type PositionTrade struct {
	ContractID int64  `json:"contract_id"`
	Side       string `json:"side"` // "bid" or "ask"
	Fee        int64  `json:"fee"`
	Rebate     int64  `json:"rebate"`
	Premium    int64  `json:"premium"`
	FilledSize int64  `json:"filled_size"`
}

// LastTrade is the most recent observed trade on a contract.
type LastTrade struct {
	ContractID  int64
	FilledPrice int64
	FilledSize  int64
	IsAsk       bool
	Mine        bool
	Timestamp   int64 // µs since epoch
}

// CostToClose is the valuation of closing a position at the current top.
type CostToClose struct {
	ContractID int64
	Size       int64
	Bid        int64
	Ask        int64
	Fee        int64
	Cost       int64 // dollars, at mid
	Basis      int64 // dollars
	Net        int64 // dollars, at the crossing side, net of basis
	Low        int64 // dollars, worst case at top
	High       int64 // dollars, best case at top
	HasBasis   bool
}

// -----------------------------------------------------------------------------
// Balances
// -----------------------------------------------------------------------------

// Balances holds per-asset account balances in raw venue units, keyed by
// balance class ("available_balances", "position_locked_balances").
type Balances map[string]map[string]int64
