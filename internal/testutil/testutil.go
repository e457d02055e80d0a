package testutil

import (
	"context"
	"strconv"

	"pricewatch/internal/fetcher"
)

// MockFetcher is a mock implementation of the Fetcher interface for testing
type MockFetcher struct {
	FetchFunc func(ctx context.Context) (fetcher.Record, error)
	KeyFunc   func() string
}

// Fetch implements the Fetcher interface
func (m *MockFetcher) Fetch(ctx context.Context) (fetcher.Record, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx)
	}
	return fetcher.Record{}, nil
}

// Key implements the Fetcher interface
func (m *MockFetcher) Key() string {
	if m.KeyFunc != nil {
		return m.KeyFunc()
	}
	return "mock:key"
}

// NewMockFetcher creates a simple mock fetcher whose record has the given
// id, metric and the metric as its price string.
func NewMockFetcher(id string, metric float64, err error) fetcher.Fetcher {
	return &MockFetcher{
		FetchFunc: func(ctx context.Context) (fetcher.Record, error) {
			if err != nil {
				return fetcher.Record{}, err
			}
			return fetcher.Record{
				ID:     id,
				Name:   "item " + id,
				Price:  strconv.FormatFloat(metric, 'f', -1, 64),
				Metric: metric,
			}, nil
		},
		KeyFunc: func() string {
			return "mock:" + id
		},
	}
}

// MockSource is a fixed list of fetchers, optionally failing.
type MockSource struct {
	List []fetcher.Fetcher
	Err  error
}

// Fetchers implements aggregator.Source
func (m *MockSource) Fetchers(ctx context.Context) ([]fetcher.Fetcher, error) {
	return m.List, m.Err
}
