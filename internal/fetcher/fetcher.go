package fetcher

import "context"

// Fetcher is the core interface that all record fetchers must implement.
// Each fetcher knows how to retrieve and normalize one tradeable entity
// and provides a Redis-compatible key for logging and caching.
type Fetcher interface {
	// Fetch retrieves the entity's raw data and normalizes it into a Record.
	// Returns an error if the fetch operation fails.
	Fetch(ctx context.Context) (Record, error)

	// Key returns a Redis-compatible hierarchical key for this fetcher.
	// Format: fetcher:{source}:{identifier}
	// Examples:
	//   - fetcher:gw2:19721
	//   - fetcher:hypixel:BOOSTER_COOKIE
	Key() string
}

// Column is a named, already formatted display cell.
type Column struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Record is one normalized entity ready to be ranked.
type Record struct {
	ID      string
	Name    string
	Price   string
	Columns []Column

	// Metric orders records. It is never displayed.
	Metric float64
}
