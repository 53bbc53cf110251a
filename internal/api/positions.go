package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/a-re/ledgerx-go/internal/model"
)

// positionWire is the venue's position row, nesting the owning contract.
type positionWire struct {
	ID            int64          `json:"id"`
	Size          int64          `json:"size"`
	ExercisedSize int64          `json:"exercised_size"`
	AssignedSize  int64          `json:"assigned_size"`
	Type          string         `json:"type"`
	Contract      model.Contract `json:"contract"`
}

func (w positionWire) toModel() model.Position {
	return model.Position{
		PositionID:    w.ID,
		ContractID:    w.Contract.ID,
		Size:          w.Size,
		ExercisedSize: w.ExercisedSize,
		Type:          w.Type,
	}
}

// PositionRecord pairs a position with its contract metadata, as returned by
// the positions endpoint.
type PositionRecord struct {
	Position model.Position
	Contract model.Contract
}

// ListAllPositions fetches every position on the account.
func (c *Client) ListAllPositions(ctx context.Context) ([]PositionRecord, error) {
	var records []PositionRecord
	err := c.listAll(ctx, "/trading/positions", nil, func(data json.RawMessage) error {
		var page []positionWire
		if err := json.Unmarshal(data, &page); err != nil {
			return fmt.Errorf("unmarshal positions: %w", err)
		}
		for _, w := range page {
			records = append(records, PositionRecord{
				Position: w.toModel(),
				Contract: w.Contract,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("fetched positions", "count", len(records))
	return records, nil
}

// ListPositionTrades fetches the full trade history for one position. The
// upstream history is eventually consistent; callers retry on disagreement.
func (c *Client) ListPositionTrades(ctx context.Context, positionID int64) ([]model.PositionTrade, error) {
	var trades []model.PositionTrade
	path := "/trading/positions/" + strconv.FormatInt(positionID, 10) + "/trades"
	err := c.listAll(ctx, path, nil, func(data json.RawMessage) error {
		var page []model.PositionTrade
		if err := json.Unmarshal(data, &page); err != nil {
			return fmt.Errorf("unmarshal position trades: %w", err)
		}
		trades = append(trades, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("fetched position trades",
		"position_id", positionID,
		"count", len(trades),
	)
	return trades, nil
}
