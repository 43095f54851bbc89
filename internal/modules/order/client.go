package order

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client talks to the order service's REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates an order service client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) GetOrder(ctx context.Context, id string) (*Order, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/orders/%s", c.baseURL, id), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch order %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrInvalidOrderID, id)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("order service returned %d for order %s", resp.StatusCode, id)
	}

	o := &Order{}
	if err := json.NewDecoder(resp.Body).Decode(o); err != nil {
		return nil, fmt.Errorf("decode order %s: %w", id, err)
	}
	return o, nil
}

func (c *Client) ListOrders(ctx context.Context, storeID string) ([]*Order, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/orders/stores/%s", c.baseURL, storeID), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list orders for store %s: %w", storeID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("order service returned %d listing orders for store %s", resp.StatusCode, storeID)
	}

	var body struct {
		Orders []*Order `json:"orders"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode orders for store %s: %w", storeID, err)
	}
	return body.Orders, nil
}
