package history

import (
	"context"
	"strconv"

	"pricewatch/internal/fetcher"
	"pricewatch/internal/ratelimit"

	"resty.dev/v3"
)

// Point is one historical trading post snapshot as served by datawars2.
type Point struct {
	Date         string   `json:"date"`
	SellPriceMin *float64 `json:"sell_price_min"`
	BuyPriceMax  *float64 `json:"buy_price_max"`
}

// Client fetches price history series
type Client struct {
	client *resty.Client
}

// NewClient creates a new history client
func NewClient(baseURL string, opts fetcher.ClientOptions) *Client {
	return &Client{
		client: fetcher.NewHTTPClient(baseURL, opts),
	}
}

// Series retrieves every stored snapshot for itemID
func (c *Client) Series(ctx context.Context, itemID int) ([]Point, error) {
	id := strconv.Itoa(itemID)
	if err := ratelimit.GetLimiter().Wait(ctx, ratelimit.APIDataWars); err != nil {
		return nil, fetcher.ClassifyTransportError(err).For(id)
	}

	var points []Point
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("itemID", id).
		SetResult(&points).
		Get("/history")

	if err := fetcher.FromResponse(id, resp, err); err != nil {
		return nil, err
	}

	return points, nil
}
