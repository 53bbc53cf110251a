// Package schema defines the decoded forms of venue stream events.
//
// The transport decodes each frame exactly once into a tagged union over the
// event kinds the engine understands; each variant carries only its required
// fields. Unknown kinds surface as Unknown so callers can count and skip them.
package schema

import (
	"github.com/google/uuid"

	"github.com/a-re/ledgerx-go/internal/model"
)

// Kind discriminates decoded events.
type Kind string

// Stream event kinds.
const (
	KindHeartbeat         Kind = "heartbeat"
	KindBookTop           Kind = "book_top"
	KindActionReport      Kind = "action_report"
	KindOpenPositions     Kind = "open_positions_update"
	KindCollateralBalance Kind = "collateral_balance_update"
	KindContractAdded     Kind = "contract_added"
	KindContractRemoved   Kind = "contract_removed"
	KindTradeBusted       Kind = "trade_busted"
	KindWebsocketStarting Kind = "websocket_starting"
	KindWebsocketError    Kind = "websocket_exception"
	KindBitvol            Kind = "bitvol"
	KindBrave             Kind = "brave"
	KindUnknown           Kind = "unknown"
)

// Event is one decoded stream event.
type Event interface {
	Kind() Kind
}

// Action report status types.
const (
	StatusInserted      = 200 // a resting order was inserted
	StatusCross         = 201 // a trade occurred
	StatusNotFilled     = 202 // a market order was not filled
	StatusCancelled     = 203 // order cancelled
	StatusCancelReplace = 204 // order cancelled and replaced
	StatusAck           = 300 // acknowledged
	StatusExpired       = 610 // order expired
	StatusRejectFloor   = 600 // statuses >= 600 are rejects/expiries
)

// ReasonFullFill is the status_reason accompanying a complete fill.
const ReasonFullFill = 52

// Heartbeat drives the heartbeat monitor. Ticks must increase by exactly 1;
// a RunID change signals an upstream restart.
type Heartbeat struct {
	Ticks     int64
	RunID     uuid.UUID
	Timestamp int64 // ns since epoch, venue clock
}

func (Heartbeat) Kind() Kind { return KindHeartbeat }

// BookTop is a stream-delivered top-of-book update.
type BookTop struct {
	ContractID int64
	Clock      int64
	Bid        int64
	Ask        int64
}

func (BookTop) Kind() Kind { return KindBookTop }

// ActionReport is one order-lifecycle event on a contract's book.
// Mpid is empty for third-party orders; the trader's own reports arrive twice,
// once with the mpid and once without.
type ActionReport struct {
	ContractID    int64
	Clock         int64
	Mid           string
	StatusType    int
	StatusReason  int
	IsAsk         bool
	Price         int64
	Size          int64
	InsertedPrice int64
	InsertedSize  int64
	OriginalPrice int64
	OriginalSize  int64
	FilledPrice   int64
	FilledSize    int64
	OrderType     string
	Mpid          string
	Cid           int64
	Ticks         int64
	UpdatedTime   int64 // µs since epoch
}

func (ActionReport) Kind() Kind { return KindActionReport }

// IsRemoval reports whether the status removes the resting order outright.
func (a ActionReport) IsRemoval() bool {
	return a.StatusType == StatusCancelled || a.StatusType >= StatusRejectFloor
}

// PositionUpdate is one row of an open-positions push.
type PositionUpdate struct {
	ContractID    int64  `json:"contract_id"`
	Size          int64  `json:"size"`
	ExercisedSize int64  `json:"exercised_size"`
	Mpid          string `json:"mpid"`
}

// OpenPositions carries the venue's pushed view of the trader's positions.
type OpenPositions struct {
	Positions []PositionUpdate
}

func (OpenPositions) Kind() Kind { return KindOpenPositions }

// CollateralBalance carries pushed account balances in raw venue units.
type CollateralBalance struct {
	Collateral model.Balances
}

func (CollateralBalance) Kind() Kind { return KindCollateralBalance }

// ContractAdded announces a newly listed contract.
type ContractAdded struct {
	Contract model.Contract
}

func (ContractAdded) Kind() Kind { return KindContractAdded }

// ContractRemoved announces a delisted (expired) contract.
type ContractRemoved struct {
	Contract model.Contract
}

func (ContractRemoved) Kind() Kind { return KindContractRemoved }

// TradeBusted announces a busted trade. Logged, never auto-corrected.
type TradeBusted struct {
	ContractID int64
	TradeID    string
}

func (TradeBusted) Kind() Kind { return KindTradeBusted }

// WebsocketStarting is injected by the transport when a (re)connection
// completes; books may be stale and need a full resync.
type WebsocketStarting struct{}

func (WebsocketStarting) Kind() Kind { return KindWebsocketStarting }

// WebsocketError is injected by the transport when the stream fails; the
// engine marks itself inactive until the next WebsocketStarting.
type WebsocketError struct {
	Err error
}

func (WebsocketError) Kind() Kind { return KindWebsocketError }

// Bitvol is an implied-volatility indicator tick, forwarded to the indicator
// cache collaborator.
type Bitvol struct {
	Asset string
	Value string // decimal string, parsed by the cache
	Time  string
}

func (Bitvol) Kind() Kind { return KindBitvol }

// Brave is a BLX index price tick, forwarded to the indicator cache.
type Brave struct {
	Asset string
	Price string // decimal string, parsed by the cache
	Time  string
}

func (Brave) Kind() Kind { return KindBrave }

// Unknown is any frame whose type the decoder does not recognize.
type Unknown struct {
	Type string
}

func (Unknown) Kind() Kind { return KindUnknown }
