package bazaar

import (
	"context"

	"pricewatch/internal/fetcher"
	"pricewatch/internal/ratelimit"

	"resty.dev/v3"
)

const snapshotIdentifier = "bazaar"

// QuickStatus is the aggregate order book summary for one product
type QuickStatus struct {
	ProductID      string  `json:"productId"`
	SellPrice      float64 `json:"sellPrice"`
	SellVolume     int64   `json:"sellVolume"`
	SellMovingWeek int64   `json:"sellMovingWeek"`
	SellOrders     int64   `json:"sellOrders"`
	BuyPrice       float64 `json:"buyPrice"`
	BuyVolume      int64   `json:"buyVolume"`
	BuyMovingWeek  int64   `json:"buyMovingWeek"`
	BuyOrders      int64   `json:"buyOrders"`
}

// Product is one bazaar entry
type Product struct {
	ProductID   string       `json:"product_id"`
	QuickStatus *QuickStatus `json:"quick_status"`
}

// SnapshotResponse represents the /skyblock/bazaar response
type SnapshotResponse struct {
	Success     bool               `json:"success"`
	Cause       string             `json:"cause"`
	LastUpdated int64              `json:"lastUpdated"`
	Products    map[string]Product `json:"products"`
}

// Client fetches bazaar snapshots from the Hypixel API
type Client struct {
	client *resty.Client
}

// NewClient creates a new bazaar client
func NewClient(baseURL string, opts fetcher.ClientOptions) *Client {
	return &Client{
		client: fetcher.NewHTTPClient(baseURL, opts),
	}
}

// Snapshot retrieves the current quick status of every product
func (c *Client) Snapshot(ctx context.Context) (SnapshotResponse, error) {
	if err := ratelimit.GetLimiter().Wait(ctx, ratelimit.APIHypixel); err != nil {
		return SnapshotResponse{}, fetcher.ClassifyTransportError(err).For(snapshotIdentifier)
	}

	var result SnapshotResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/skyblock/bazaar")

	if err := fetcher.FromResponse(snapshotIdentifier, resp, err); err != nil {
		return SnapshotResponse{}, err
	}

	if !result.Success {
		msg := "snapshot reported success=false"
		if result.Cause != "" {
			msg += ": " + result.Cause
		}
		return SnapshotResponse{}, fetcher.NewParseError(msg, nil).For(snapshotIdentifier)
	}

	if result.Products == nil {
		return SnapshotResponse{}, fetcher.NewParseError("products not found in response", nil).For(snapshotIdentifier)
	}

	return result, nil
}
