package gw2

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"pricewatch/internal/coin"
	"pricewatch/internal/fetcher"

	"github.com/sirupsen/logrus"
)

// Metric names the value items are ranked by.
type Metric string

const (
	// MetricPrice ranks by the current buy unit price
	MetricPrice Metric = "price"
	// MetricProfit ranks by the buy unit price minus the historical average
	MetricProfit Metric = "profit"
)

// ParseMetric accepts "price" and "profit".
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(strings.ToLower(strings.TrimSpace(s))); m {
	case MetricPrice, MetricProfit:
		return m, nil
	default:
		return "", fmt.Errorf("unknown metric %q", s)
	}
}

// Averager supplies a historical average price for an item.
type Averager interface {
	Average(ctx context.Context, itemID int) (int64, error)
	Window() int
}

// ItemOptions controls how an item is normalized
type ItemOptions struct {
	Format             coin.Format
	Metric             Metric
	IncludeDescription bool
	// Averager enables the average and profit columns when set.
	Averager Averager
	Logger   logrus.FieldLogger
}

// ItemFetcher fetches and normalizes one trading post item
type ItemFetcher struct {
	id     int
	client *Client
	opts   ItemOptions
}

// NewItemFetcher creates a new item fetcher
func NewItemFetcher(id int, client *Client, opts ItemOptions) *ItemFetcher {
	if opts.Format == "" {
		opts.Format = coin.FormatNameTriUnit
	}
	if opts.Metric == "" {
		opts.Metric = MetricPrice
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &ItemFetcher{
		id:     id,
		client: client,
		opts:   opts,
	}
}

// Fetch retrieves item metadata and prices and normalizes them into a record
func (f *ItemFetcher) Fetch(ctx context.Context) (fetcher.Record, error) {
	item, err := f.client.Item(ctx, f.id)
	if err != nil {
		return fetcher.Record{}, err
	}

	price, err := f.client.Price(ctx, f.id)
	if err != nil {
		return fetcher.Record{}, err
	}

	current := price.BuyUnitPrice()
	record := fetcher.Record{
		ID:     strconv.Itoa(f.id),
		Name:   item.DisplayName(),
		Price:  f.opts.Format.Render(current),
		Metric: float64(current),
	}

	if f.opts.IncludeDescription {
		record.Columns = append(record.Columns, fetcher.Column{Name: "Description", Value: item.DisplayDescription()})
	}

	if f.opts.Averager != nil {
		average := f.average(ctx)
		profit := current - average

		record.Columns = append(record.Columns,
			fetcher.Column{
				Name:  fmt.Sprintf("Average Price (%d Entry Avg)", f.opts.Averager.Window()),
				Value: f.opts.Format.Render(average),
			},
			fetcher.Column{Name: "Profit", Value: f.opts.Format.Render(profit)},
		)

		if f.opts.Metric == MetricProfit {
			record.Metric = float64(profit)
		}
	}

	return record, nil
}

// average returns 0 when the history lookup fails.
func (f *ItemFetcher) average(ctx context.Context) int64 {
	average, err := f.opts.Averager.Average(ctx, f.id)
	if err != nil {
		f.opts.Logger.WithFields(logrus.Fields{
			"identifier": f.id,
			"error_type": fetcher.TypeOf(err),
		}).WithError(err).Warn("history average unavailable, using zero")
		return 0
	}
	return average
}

// Key returns the Redis key for this fetcher
func (f *ItemFetcher) Key() string {
	return fmt.Sprintf("fetcher:gw2:%d", f.id)
}
