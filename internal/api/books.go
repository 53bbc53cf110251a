package api

import (
	"context"
	"strconv"

	"github.com/a-re/ledgerx-go/internal/model"
)

// GetBookStates fetches the full set of resting orders for one contract.
// The snapshot's clock is the max clock across its entries.
func (c *Client) GetBookStates(ctx context.Context, contractID int64) (model.BookSnapshot, error) {
	var resp struct {
		Data model.BookSnapshot `json:"data"`
	}
	path := "/book-states/" + strconv.FormatInt(contractID, 10)
	if err := c.getLegacy(ctx, path, nil, &resp); err != nil {
		return model.BookSnapshot{}, err
	}

	snap := resp.Data
	if snap.ContractID == 0 {
		snap.ContractID = contractID
	}
	// Entries are keyed by contract server-side; stamp the id for callers.
	for i := range snap.Entries {
		if snap.Entries[i].ContractID == 0 {
			snap.Entries[i].ContractID = contractID
		}
	}

	c.logger.Debug("fetched book states",
		"contract_id", contractID,
		"entries", len(snap.Entries),
	)
	return snap, nil
}
