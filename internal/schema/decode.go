package schema

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/a-re/ledgerx-go/internal/model"
)

// messageEnvelope is the minimal frame parse used to discriminate by type.
type messageEnvelope struct {
	Type string `json:"type"`
}

// Wire structs mirror the venue's frame layout for each event kind.

type heartbeatWire struct {
	Ticks     int64  `json:"ticks"`
	RunID     string `json:"run_id"`
	Timestamp int64  `json:"timestamp"`
}

type bookTopWire struct {
	ContractID int64 `json:"contract_id"`
	Clock      int64 `json:"clock"`
	Bid        int64 `json:"bid"`
	Ask        int64 `json:"ask"`
}

type actionReportWire struct {
	ContractID    int64  `json:"contract_id"`
	Clock         int64  `json:"clock"`
	Mid           string `json:"mid"`
	StatusType    int    `json:"status_type"`
	StatusReason  int    `json:"status_reason"`
	IsAsk         bool   `json:"is_ask"`
	Price         int64  `json:"price"`
	Size          int64  `json:"size"`
	InsertedPrice int64  `json:"inserted_price"`
	InsertedSize  int64  `json:"inserted_size"`
	OriginalPrice int64  `json:"original_price"`
	OriginalSize  int64  `json:"original_size"`
	FilledPrice   int64  `json:"filled_price"`
	FilledSize    int64  `json:"filled_size"`
	OrderType     string `json:"order_type"`
	Mpid          string `json:"mpid"`
	Cid           int64  `json:"cid"`
	Ticks         int64  `json:"ticks"`
	UpdatedTime   int64  `json:"updated_time"`
}

type openPositionsWire struct {
	Positions []PositionUpdate `json:"positions"`
}

type collateralWire struct {
	Collateral model.Balances `json:"collateral"`
}

type contractLifecycleWire struct {
	Data model.Contract `json:"data"`
}

type tradeBustedWire struct {
	Data struct {
		ContractID int64  `json:"contract_id"`
		TradeID    string `json:"trade_id"`
	} `json:"data"`
}

type indicatorWire struct {
	Asset string `json:"asset"`
	Value string `json:"value"`
	Price string `json:"price"`
	Time  string `json:"time"`
}

// Decode parses one raw frame into its typed event.
func Decode(data []byte) (Event, error) {
	var env messageEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch Kind(env.Type) {
	case KindHeartbeat:
		var w heartbeatWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode heartbeat: %w", err)
		}
		runID, err := uuid.Parse(w.RunID)
		if err != nil {
			return nil, fmt.Errorf("decode heartbeat run_id: %w", err)
		}
		return Heartbeat{Ticks: w.Ticks, RunID: runID, Timestamp: w.Timestamp}, nil

	case KindBookTop:
		var w bookTopWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode book_top: %w", err)
		}
		return BookTop(w), nil

	case KindActionReport:
		var w actionReportWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode action_report: %w", err)
		}
		return ActionReport(w), nil

	case KindOpenPositions:
		var w openPositionsWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode open_positions_update: %w", err)
		}
		return OpenPositions{Positions: w.Positions}, nil

	case KindCollateralBalance:
		var w collateralWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode collateral_balance_update: %w", err)
		}
		return CollateralBalance{Collateral: w.Collateral}, nil

	case KindContractAdded:
		var w contractLifecycleWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode contract_added: %w", err)
		}
		return ContractAdded{Contract: w.Data}, nil

	case KindContractRemoved:
		var w contractLifecycleWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode contract_removed: %w", err)
		}
		return ContractRemoved{Contract: w.Data}, nil

	case KindTradeBusted:
		var w tradeBustedWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode trade_busted: %w", err)
		}
		return TradeBusted{ContractID: w.Data.ContractID, TradeID: w.Data.TradeID}, nil

	case KindWebsocketStarting:
		return WebsocketStarting{}, nil

	case KindWebsocketError:
		return WebsocketError{}, nil

	case KindBitvol:
		var w indicatorWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode bitvol: %w", err)
		}
		return Bitvol{Asset: w.Asset, Value: w.Value, Time: w.Time}, nil

	case KindBrave:
		var w indicatorWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode brave: %w", err)
		}
		return Brave{Asset: w.Asset, Price: w.Price, Time: w.Time}, nil

	default:
		return Unknown{Type: env.Type}, nil
	}
}
