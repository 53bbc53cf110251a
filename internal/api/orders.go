package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// OpenOrder is one of the trader's resting limit orders as returned by the
// open-orders endpoint. Every row carries the trader's mpid.
type OpenOrder struct {
	Mid        string `json:"mid"`
	ContractID int64  `json:"contract_id"`
	Price      int64  `json:"price"`
	Size       int64  `json:"size"`
	IsAsk      bool   `json:"is_ask"`
	Clock      int64  `json:"clock"`
	Mpid       string `json:"mpid"`
	Cid        int64  `json:"cid"`
}

// ListOpenOrders fetches all of the trader's resting limit orders.
func (c *Client) ListOpenOrders(ctx context.Context) ([]OpenOrder, error) {
	var resp struct {
		Data []OpenOrder `json:"data"`
	}
	if err := c.getLegacy(ctx, "/open-orders", nil, &resp); err != nil {
		return nil, err
	}

	c.logger.Debug("fetched open orders", "count", len(resp.Data))
	return resp.Data, nil
}

// CreateOrderRequest describes a new resting limit order.
type CreateOrderRequest struct {
	ContractID  int64
	IsAsk       bool
	Size        int64
	Price       int64
	OrderType   string // defaults to "limit"
	SwapPurpose string // defaults to "undisclosed"
	Volatile    bool
}

// CreateOrderResponse is the venue's acknowledgement of a new order.
type CreateOrderResponse struct {
	Mid string `json:"mid"`
}

// CreateOrder places a new resting limit order.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (CreateOrderResponse, error) {
	if req.OrderType == "" {
		req.OrderType = "limit"
	}
	if req.SwapPurpose == "" {
		req.SwapPurpose = "undisclosed"
	}

	query := url.Values{}
	query.Set("contract_id", strconv.FormatInt(req.ContractID, 10))
	query.Set("is_ask", strconv.FormatBool(req.IsAsk))
	query.Set("size", strconv.FormatInt(req.Size, 10))
	query.Set("price", strconv.FormatInt(req.Price, 10))
	query.Set("order_type", req.OrderType)
	query.Set("swap_purpose", req.SwapPurpose)
	query.Set("volatile", strconv.FormatBool(req.Volatile))

	body, err := c.doWithRetry(ctx, http.MethodPost, c.legacyBaseURL+"/orders", query, nil)
	if err != nil {
		return CreateOrderResponse{}, err
	}

	var resp CreateOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return CreateOrderResponse{}, fmt.Errorf("unmarshal create order: %w", err)
	}
	return resp, nil
}

// CancelOrder cancels a single resting limit order. An order that is already
// gone (400) is treated as success.
func (c *Client) CancelOrder(ctx context.Context, mid string, contractID int64) error {
	query := url.Values{}
	query.Set("contract_id", strconv.FormatInt(contractID, 10))

	_, err := c.doWithRetry(ctx, http.MethodDelete, c.legacyBaseURL+"/orders/"+mid, query, nil)
	if err != nil {
		if apiErr, ok := err.(*APIError); ok && apiErr.StatusCode == http.StatusBadRequest {
			c.logger.Debug("order already cancelled", "mid", mid)
			return nil
		}
		return err
	}
	return nil
}

// CancelReplace atomically swaps a resting order for a new one. Rate limited
// upstream; retries are handled by the usual backoff.
func (c *Client) CancelReplace(ctx context.Context, mid string, contractID, price, size int64) (CreateOrderResponse, error) {
	query := url.Values{}
	query.Set("contract_id", strconv.FormatInt(contractID, 10))
	query.Set("price", strconv.FormatInt(price, 10))
	query.Set("size", strconv.FormatInt(size, 10))

	body, err := c.doWithRetry(ctx, http.MethodPost, c.legacyBaseURL+"/orders/"+mid+"/edit", query, nil)
	if err != nil {
		return CreateOrderResponse{}, err
	}

	var resp CreateOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return CreateOrderResponse{}, fmt.Errorf("unmarshal cancel replace: %w", err)
	}
	return resp, nil
}

// CancelAll deletes every outstanding order for the trader's organization.
func (c *Client) CancelAll(ctx context.Context) error {
	_, err := c.doWithRetry(ctx, http.MethodDelete, c.legacyBaseURL+"/orders", nil, nil)
	return err
}
