package gw2

import (
	"context"
	"fmt"
	"strconv"

	"pricewatch/internal/fetcher"
	"pricewatch/internal/ratelimit"

	"resty.dev/v3"
)

const (
	unknownName   = "Unknown"
	noDescription = "No description"
)

// ItemResponse represents the /v2/items/{id} response. Only the fields we
// display are decoded.
type ItemResponse struct {
	ID          int     `json:"id"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Type        string  `json:"type"`
	Rarity      string  `json:"rarity"`
}

// Listing is one side of the trading post order book.
type Listing struct {
	Quantity  int64 `json:"quantity"`
	UnitPrice int64 `json:"unit_price"`
}

// PriceResponse represents the /v2/commerce/prices/{id} response
type PriceResponse struct {
	ID          int      `json:"id"`
	Whitelisted bool     `json:"whitelisted"`
	Buys        *Listing `json:"buys"`
	Sells       *Listing `json:"sells"`
}

// DisplayName returns the item name or a placeholder.
func (r ItemResponse) DisplayName() string {
	if r.Name == nil || *r.Name == "" {
		return unknownName
	}
	return *r.Name
}

// DisplayDescription returns the item description or a placeholder.
func (r ItemResponse) DisplayDescription() string {
	if r.Description == nil || *r.Description == "" {
		return noDescription
	}
	return *r.Description
}

// BuyUnitPrice returns the highest buy order in copper, 0 when absent.
func (r PriceResponse) BuyUnitPrice() int64 {
	if r.Buys == nil {
		return 0
	}
	return r.Buys.UnitPrice
}

// Client talks to the Guild Wars 2 items and commerce endpoints
type Client struct {
	client *resty.Client
}

// NewClient creates a new Guild Wars 2 API client
func NewClient(baseURL string, opts fetcher.ClientOptions) *Client {
	return &Client{
		client: fetcher.NewHTTPClient(baseURL, opts),
	}
}

// Item retrieves item metadata
func (c *Client) Item(ctx context.Context, id int) (ItemResponse, error) {
	var result ItemResponse
	if err := c.get(ctx, id, fmt.Sprintf("/items/%d", id), &result); err != nil {
		return ItemResponse{}, err
	}
	if err := checkID(id, result.ID); err != nil {
		return ItemResponse{}, err
	}
	return result, nil
}

// Price retrieves the current trading post prices
func (c *Client) Price(ctx context.Context, id int) (PriceResponse, error) {
	var result PriceResponse
	if err := c.get(ctx, id, fmt.Sprintf("/commerce/prices/%d", id), &result); err != nil {
		return PriceResponse{}, err
	}
	if err := checkID(id, result.ID); err != nil {
		return PriceResponse{}, err
	}
	return result, nil
}

// checkID rejects an empty body or a response for another item.
func checkID(want, got int) error {
	if got != want {
		return fetcher.NewParseError(fmt.Sprintf("response is for item %d", got), nil).For(strconv.Itoa(want))
	}
	return nil
}

func (c *Client) get(ctx context.Context, id int, path string, result any) error {
	identifier := strconv.Itoa(id)
	if err := ratelimit.GetLimiter().Wait(ctx, ratelimit.APIGuildWars2); err != nil {
		return fetcher.ClassifyTransportError(err).For(identifier)
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(result).
		Get(path)

	return fetcher.FromResponse(identifier, resp, err)
}
