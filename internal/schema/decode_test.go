package schema

import (
	"testing"

	"github.com/google/uuid"
)

func TestDecodeHeartbeat(t *testing.T) {
	runID := uuid.New()
	data := []byte(`{"type":"heartbeat","ticks":42,"run_id":"` + runID.String() + `","timestamp":1687000000000000000}`)

	ev, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	hb, ok := ev.(Heartbeat)
	if !ok {
		t.Fatalf("Decode returned %T, want Heartbeat", ev)
	}
	if hb.Ticks != 42 {
		t.Errorf("Ticks = %d, want 42", hb.Ticks)
	}
	if hb.RunID != runID {
		t.Errorf("RunID = %v, want %v", hb.RunID, runID)
	}
	if hb.Timestamp != 1687000000000000000 {
		t.Errorf("Timestamp = %d", hb.Timestamp)
	}
}

func TestDecodeHeartbeatBadRunID(t *testing.T) {
	data := []byte(`{"type":"heartbeat","ticks":1,"run_id":"not-a-uuid","timestamp":1}`)
	if _, err := Decode(data); err == nil {
		t.Error("expected error for malformed run_id")
	}
}

func TestDecodeBookTop(t *testing.T) {
	data := []byte(`{"type":"book_top","contract_id":22222,"clock":100,"bid":1500,"ask":1600}`)

	ev, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	top, ok := ev.(BookTop)
	if !ok {
		t.Fatalf("Decode returned %T, want BookTop", ev)
	}
	if top.ContractID != 22222 || top.Clock != 100 || top.Bid != 1500 || top.Ask != 1600 {
		t.Errorf("BookTop = %+v", top)
	}
}

func TestDecodeActionReport(t *testing.T) {
	data := []byte(`{
		"type": "action_report",
		"contract_id": 22222,
		"clock": 7,
		"mid": "abc123",
		"status_type": 201,
		"status_reason": 52,
		"is_ask": true,
		"price": 1500,
		"size": 0,
		"inserted_price": 0,
		"inserted_size": 0,
		"original_price": 1500,
		"original_size": 2,
		"filled_price": 1500,
		"filled_size": 2,
		"order_type": "customer_limit_order",
		"mpid": "MYFIRM",
		"cid": 9001,
		"ticks": 123456,
		"updated_time": 1687000000000000
	}`)

	ev, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	ar, ok := ev.(ActionReport)
	if !ok {
		t.Fatalf("Decode returned %T, want ActionReport", ev)
	}
	if ar.ContractID != 22222 || ar.Clock != 7 || ar.Mid != "abc123" {
		t.Errorf("identity fields = %+v", ar)
	}
	if ar.StatusType != StatusCross || ar.StatusReason != ReasonFullFill {
		t.Errorf("status = %d/%d, want 201/52", ar.StatusType, ar.StatusReason)
	}
	if !ar.IsAsk || ar.FilledPrice != 1500 || ar.FilledSize != 2 {
		t.Errorf("fill fields = %+v", ar)
	}
	if ar.Mpid != "MYFIRM" || ar.Cid != 9001 {
		t.Errorf("ownership fields = %q/%d", ar.Mpid, ar.Cid)
	}
}

func TestActionReportIsRemoval(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{StatusInserted, false},
		{StatusCross, false},
		{StatusCancelled, true},
		{StatusCancelReplace, false},
		{StatusAck, false},
		{StatusExpired, true},
		{615, true},
	}
	for _, tt := range tests {
		ar := ActionReport{StatusType: tt.status}
		if got := ar.IsRemoval(); got != tt.want {
			t.Errorf("IsRemoval(status %d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestDecodeCollateralBalance(t *testing.T) {
	data := []byte(`{
		"type": "collateral_balance_update",
		"collateral": {
			"available_balances": {"USD": 123400, "CBTC": 500000000},
			"position_locked_balances": {"USD": 0}
		}
	}`)

	ev, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	cb, ok := ev.(CollateralBalance)
	if !ok {
		t.Fatalf("Decode returned %T, want CollateralBalance", ev)
	}
	if cb.Collateral["available_balances"]["USD"] != 123400 {
		t.Errorf("USD available = %d, want 123400", cb.Collateral["available_balances"]["USD"])
	}
	if cb.Collateral["available_balances"]["CBTC"] != 500000000 {
		t.Errorf("CBTC available = %d", cb.Collateral["available_balances"]["CBTC"])
	}
}

func TestDecodeOpenPositions(t *testing.T) {
	data := []byte(`{
		"type": "open_positions_update",
		"positions": [
			{"contract_id": 22222, "size": 3, "exercised_size": 0, "mpid": "MYFIRM"},
			{"contract_id": 33333, "size": -1, "exercised_size": 2, "mpid": "MYFIRM"}
		]
	}`)

	ev, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	op, ok := ev.(OpenPositions)
	if !ok {
		t.Fatalf("Decode returned %T, want OpenPositions", ev)
	}
	if len(op.Positions) != 2 {
		t.Fatalf("got %d positions, want 2", len(op.Positions))
	}
	if op.Positions[1].ContractID != 33333 || op.Positions[1].Size != -1 {
		t.Errorf("second position = %+v", op.Positions[1])
	}
}

func TestDecodeLifecycleAndMisc(t *testing.T) {
	t.Run("contract added", func(t *testing.T) {
		data := []byte(`{"type":"contract_added","data":{"id":44444,"label":"BTC-Mini Call","derivative_type":"options_contract"}}`)
		ev, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		ca, ok := ev.(ContractAdded)
		if !ok {
			t.Fatalf("Decode returned %T, want ContractAdded", ev)
		}
		if ca.Contract.ID != 44444 {
			t.Errorf("Contract.ID = %d, want 44444", ca.Contract.ID)
		}
	})

	t.Run("websocket starting", func(t *testing.T) {
		ev, err := Decode([]byte(`{"type":"websocket_starting"}`))
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if _, ok := ev.(WebsocketStarting); !ok {
			t.Fatalf("Decode returned %T, want WebsocketStarting", ev)
		}
	})

	t.Run("bitvol", func(t *testing.T) {
		ev, err := Decode([]byte(`{"type":"bitvol","asset":"BTC","value":"54.2","time":"2023-06-15T12:00:00Z"}`))
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		bv, ok := ev.(Bitvol)
		if !ok {
			t.Fatalf("Decode returned %T, want Bitvol", ev)
		}
		if bv.Asset != "BTC" || bv.Value != "54.2" {
			t.Errorf("Bitvol = %+v", bv)
		}
	})

	t.Run("unknown type passes through", func(t *testing.T) {
		ev, err := Decode([]byte(`{"type":"exposure_reports","data":{}}`))
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		u, ok := ev.(Unknown)
		if !ok {
			t.Fatalf("Decode returned %T, want Unknown", ev)
		}
		if u.Type != "exposure_reports" {
			t.Errorf("Type = %q", u.Type)
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		if _, err := Decode([]byte(`{garbage`)); err == nil {
			t.Error("expected error for malformed frame")
		}
	})
}
