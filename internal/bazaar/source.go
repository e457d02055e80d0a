package bazaar

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"pricewatch/internal/coin"
	"pricewatch/internal/fetcher"

	"github.com/shopspring/decimal"
)

// DefaultExcludePrefixes skips enchantment books.
var DefaultExcludePrefixes = []string{"ENCHANTMENT"}

// Source turns one bazaar snapshot into a fetcher per product.
type Source struct {
	client          *Client
	excludePrefixes []string
}

// NewSource creates a bazaar source
func NewSource(client *Client, excludePrefixes []string) *Source {
	return &Source{
		client:          client,
		excludePrefixes: excludePrefixes,
	}
}

// Fetchers downloads the snapshot and returns one fetcher per product not
// matching an exclusion prefix, ordered by product id.
func (s *Source) Fetchers(ctx context.Context) ([]fetcher.Fetcher, error) {
	snapshot, err := s.client.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(snapshot.Products))
	for id := range snapshot.Products {
		if s.Excluded(id) {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)

	fetchers := make([]fetcher.Fetcher, len(ids))
	for i, id := range ids {
		fetchers[i] = &ProductFetcher{id: id, product: snapshot.Products[id]}
	}
	return fetchers, nil
}

// Excluded reports whether id matches any exclusion prefix.
func (s *Source) Excluded(id string) bool {
	for _, prefix := range s.excludePrefixes {
		if prefix != "" && strings.HasPrefix(id, prefix) {
			return true
		}
	}
	return false
}

// ProductFetcher normalizes one product of an already downloaded snapshot.
type ProductFetcher struct {
	id      string
	product Product
}

// Fetch computes the flip profit for the product
func (f *ProductFetcher) Fetch(ctx context.Context) (fetcher.Record, error) {
	qs := f.product.QuickStatus
	if qs == nil {
		return fetcher.Record{}, fetcher.NewParseError("quick_status not found in response", nil).For(f.id)
	}

	buy := decimal.NewFromFloat(qs.BuyPrice)
	sell := decimal.NewFromFloat(qs.SellPrice)
	profit := buy.Sub(sell)

	name := qs.ProductID
	if name == "" {
		name = f.id
	}

	return fetcher.Record{
		ID:    f.id,
		Name:  name,
		Price: coin.FormatFloat(qs.BuyPrice),
		Columns: []fetcher.Column{
			{Name: "Sell Price", Value: coin.FormatFloat(qs.SellPrice)},
			{Name: "Buy Volume", Value: strconv.FormatInt(qs.BuyVolume, 10)},
			{Name: "Sell Volume", Value: strconv.FormatInt(qs.SellVolume, 10)},
			{Name: "Flip Profit", Value: profit.StringFixed(2)},
		},
		Metric: profit.InexactFloat64(),
	}, nil
}

// Key returns the Redis key for this fetcher
func (f *ProductFetcher) Key() string {
	return fmt.Sprintf("fetcher:hypixel:%s", f.id)
}
