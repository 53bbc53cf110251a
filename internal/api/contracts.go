package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/a-re/ledgerx-go/internal/model"
)

// ListContractsOptions filters ListContracts.
type ListContractsOptions struct {
	DerivativeType string
	ActiveOnly     bool
}

// ListContracts fetches all listed contracts, following pagination.
func (c *Client) ListContracts(ctx context.Context, opts ListContractsOptions) ([]model.Contract, error) {
	query := url.Values{}
	if opts.DerivativeType != "" {
		query.Set("derivative_type", opts.DerivativeType)
	}
	if opts.ActiveOnly {
		query.Set("active", "true")
	}

	var contracts []model.Contract
	err := c.listAll(ctx, "/trading/contracts", query, func(data json.RawMessage) error {
		var page []model.Contract
		if err := json.Unmarshal(data, &page); err != nil {
			return fmt.Errorf("unmarshal contracts: %w", err)
		}
		contracts = append(contracts, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("fetched contracts", "count", len(contracts))
	return contracts, nil
}

// GetContract fetches a single contract by id.
func (c *Client) GetContract(ctx context.Context, contractID int64) (model.Contract, error) {
	var resp struct {
		Data model.Contract `json:"data"`
	}
	path := "/trading/contracts/" + strconv.FormatInt(contractID, 10)
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return model.Contract{}, err
	}
	if resp.Data.ID != contractID {
		return model.Contract{}, fmt.Errorf("contract id mismatch: requested %d, got %d", contractID, resp.Data.ID)
	}
	return resp.Data, nil
}

// ListTradedContracts fetches the contracts the account has ever traded,
// which may include expired ones.
func (c *Client) ListTradedContracts(ctx context.Context) ([]model.Contract, error) {
	var contracts []model.Contract
	err := c.listAll(ctx, "/trading/contracts/traded", nil, func(data json.RawMessage) error {
		var page []model.Contract
		if err := json.Unmarshal(data, &page); err != nil {
			return fmt.Errorf("unmarshal traded contracts: %w", err)
		}
		contracts = append(contracts, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return contracts, nil
}
