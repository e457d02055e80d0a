package aggregator

import (
	"fmt"
	"strings"
	"time"

	"pricewatch/internal/fetcher"
)

// Direction orders a result set by metric
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// ParseDirection accepts asc/desc and a few aliases. Empty means Descending.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "desc", "descending", "high-to-low":
		return Descending, nil
	case "asc", "ascending", "low-to-high":
		return Ascending, nil
	default:
		return "", fmt.Errorf("unknown sort direction %q", s)
	}
}

// Row is one presentation-ready entry
type Row struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Price   string           `json:"price"`
	Columns []fetcher.Column `json:"columns,omitempty"`
}

// Failure names an identifier dropped from a result set
type Failure struct {
	Key  string `json:"key"`
	Type string `json:"type"`
}

// ResultSet is the ordered output of one refresh cycle. It is never
// modified after being published.
type ResultSet struct {
	Board       string    `json:"board"`
	CycleID     string    `json:"cycle_id"`
	Direction   Direction `json:"sort"`
	RefreshedAt time.Time `json:"refreshed_at"`
	Rows        []Row     `json:"rows"`
	Attempted   int       `json:"attempted"`
	Failures    []Failure `json:"failures,omitempty"`
}

// Failed returns the number of dropped identifiers
func (rs *ResultSet) Failed() int {
	return len(rs.Failures)
}

// IDs lists row identifiers in order
func (rs *ResultSet) IDs() []string {
	ids := make([]string, len(rs.Rows))
	for i, r := range rs.Rows {
		ids[i] = r.ID
	}
	return ids
}

// LastUpdated renders the refresh time the way the dashboards show it.
func (rs *ResultSet) LastUpdated() string {
	return "Last Updated: " + rs.RefreshedAt.UTC().Format("03:04 PM UTC")
}
